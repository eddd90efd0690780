package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	AES      AESConfig      `mapstructure:"aes"`
	Log      LogConfig      `mapstructure:"log"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Payout   PayoutConfig   `mapstructure:"payout"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`       // debug, release, test
	VerifyURL       string        `mapstructure:"verify_url"` // Verification token is appended
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, memory
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"` // Bounds waits on FOR UPDATE row locks
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// LedgerConfig holds the money rules. Amounts are decimal strings so that
// viper never routes them through float64.
type LedgerConfig struct {
	MinWithdrawal   string   `mapstructure:"min_withdrawal"`
	WithdrawalFee   string   `mapstructure:"withdrawal_fee"`
	CommissionRates []string `mapstructure:"commission_rates"` // index 0 = level 1
	// SweepInterval is how often recent deposits are re-swept for unpaid
	// commission levels. Zero disables the sweep.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepWindow   time.Duration `mapstructure:"sweep_window"`
}

// MinWithdrawalAmount parses MinWithdrawal.
func (l LedgerConfig) MinWithdrawalAmount() (decimal.Decimal, error) {
	return decimal.NewFromString(l.MinWithdrawal)
}

// WithdrawalFeeAmount parses WithdrawalFee.
func (l LedgerConfig) WithdrawalFeeAmount() (decimal.Decimal, error) {
	return decimal.NewFromString(l.WithdrawalFee)
}

// Rates parses CommissionRates in level order.
func (l LedgerConfig) Rates() ([]decimal.Decimal, error) {
	rates := make([]decimal.Decimal, 0, len(l.CommissionRates))
	for i, raw := range l.CommissionRates {
		r, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("commission rate level %d: %w", i+1, err)
		}
		rates = append(rates, r)
	}
	return rates, nil
}

type ScannerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Lookback time.Duration `mapstructure:"lookback"` // How far back each scan reads transfers
}

type ChainConfig struct {
	BaseURL      string        `mapstructure:"base_url"` // TronGrid REST endpoint
	APIKey       string        `mapstructure:"api_key"`
	USDTContract string        `mapstructure:"usdt_contract"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type PayoutConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Secret  string        `mapstructure:"secret"` // HMAC secret for request signing
	Timeout time.Duration `mapstructure:"timeout"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// Enabled reports whether outbound email is configured.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != ""
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AdminConfig seeds the first operator account at startup. Empty Email skips it.
type AdminConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: RLG_ (Referral Ledger).
// Nested keys use underscore: RLG_DATABASE_HOST, RLG_LEDGER_WITHDRAWAL_FEE, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.verify_url", "http://localhost:3000/verify-email?token=")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "referral_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.lock_timeout", "5s")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", "3s")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "referral-ledger")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("ledger.min_withdrawal", "10")
	v.SetDefault("ledger.withdrawal_fee", "1")
	v.SetDefault("ledger.commission_rates", []string{"0.05", "0.02", "0.01"})
	v.SetDefault("ledger.sweep_interval", "10m")
	v.SetDefault("ledger.sweep_window", "24h")
	v.SetDefault("scanner.enabled", true)
	v.SetDefault("scanner.interval", "60s")
	v.SetDefault("scanner.lookback", "24h")
	v.SetDefault("chain.base_url", "https://api.trongrid.io")
	v.SetDefault("chain.api_key", "")
	v.SetDefault("chain.usdt_contract", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t")
	v.SetDefault("chain.timeout", "15s")
	v.SetDefault("payout.base_url", "http://localhost:9000")
	v.SetDefault("payout.timeout", "30s")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "ledger-events")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("admin.email", "")
	v.SetDefault("admin.password", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// RLG_DATABASE_HOST -> database.host
	v.SetEnvPrefix("RLG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if key, err := hex.DecodeString(c.AES.Key); err != nil || len(key) != 32 {
		errs = append(errs, errors.New("aes.key must be 64 hex characters"))
	}

	minW, err := c.Ledger.MinWithdrawalAmount()
	if err != nil || !minW.IsPositive() {
		errs = append(errs, errors.New("ledger.min_withdrawal must be a positive decimal"))
	}
	fee, err := c.Ledger.WithdrawalFeeAmount()
	if err != nil || !fee.IsPositive() {
		errs = append(errs, errors.New("ledger.withdrawal_fee must be a positive decimal"))
	}

	rates, err := c.Ledger.Rates()
	switch {
	case err != nil:
		errs = append(errs, err)
	case len(rates) != 3:
		errs = append(errs, fmt.Errorf("ledger.commission_rates must have 3 levels, got %d", len(rates)))
	default:
		for i, r := range rates {
			if r.IsNegative() || r.GreaterThanOrEqual(decimal.NewFromInt(1)) {
				errs = append(errs, fmt.Errorf("commission rate level %d out of range: %s", i+1, r))
			}
		}
	}

	if c.Scanner.Enabled && c.Scanner.Interval <= 0 {
		errs = append(errs, errors.New("scanner.interval must be positive"))
	}
	if c.Admin.Email != "" && len(c.Admin.Password) < 12 {
		errs = append(errs, errors.New("admin.password must be at least 12 characters"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}

	return errors.Join(errs...)
}
