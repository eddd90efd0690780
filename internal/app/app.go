// Package app assembles the ledger service from configuration: storage,
// services, the event bus, background workers and the HTTP router.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"referral-ledger/config"
	"referral-ledger/internal/adapter/custody"
	"referral-ledger/internal/adapter/events"
	httpHandler "referral-ledger/internal/adapter/http/handler"
	"referral-ledger/internal/adapter/mail"
	"referral-ledger/internal/adapter/metrics"
	"referral-ledger/internal/adapter/storage/memory"
	pgStorage "referral-ledger/internal/adapter/storage/postgres"
	redisStorage "referral-ledger/internal/adapter/storage/redis"
	"referral-ledger/internal/adapter/tron"
	"referral-ledger/internal/core/domain"
	"referral-ledger/internal/core/ports"
	"referral-ledger/internal/event"
	"referral-ledger/internal/service"
	"referral-ledger/internal/worker"
	"referral-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const forwardTimeout = 5 * time.Second

// Repositories is the storage surface the services are built on.
type Repositories struct {
	Accounts      ports.AccountRepository
	Wallets       ports.WalletRepository
	Transactions  ports.TransactionRepository
	Referrals     ports.ReferralRepository
	Milestones    ports.MilestoneRepository
	Idempotency   ports.IdempotencyRepository
	ProcessedTx   ports.ProcessedTxRepository
	Notifications ports.NotificationRepository
	Audit         ports.AuditRepository
}

// App is a fully wired ledger service.
type App struct {
	Router  *gin.Engine
	Repos   Repositories
	Metrics *metrics.Metrics

	cfg       *config.Config
	log       zerolog.Logger
	bus       *event.Bus
	audit     *service.AuditServiceImpl
	publisher ports.EventPublisher
	scanner   *worker.DepositScanner
	sweeper   *worker.CommissionSweeper
	closers   []func()
}

type storage struct {
	repos      Repositories
	tx         ports.DBTransactor
	cache      ports.IdempotencyCache
	claims     ports.ClaimStore
	rateLimits ports.RateLimitStore
	health     []ports.HealthChecker
	closers    []func()
}

// New connects the storage backends and builds every component. The caller
// must Close the returned App.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, log: log, Repos: st.repos, closers: st.closers}

	fail := func(err error) (*App, error) {
		a.Close()
		return nil, err
	}

	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		return fail(fmt.Errorf("encryption service: %w", err))
	}
	rates, err := cfg.Ledger.Rates()
	if err != nil {
		return fail(err)
	}
	minWithdrawal, err := cfg.Ledger.MinWithdrawalAmount()
	if err != nil {
		return fail(fmt.Errorf("ledger.min_withdrawal: %w", err))
	}
	fee, err := cfg.Ledger.WithdrawalFeeAmount()
	if err != nil {
		return fail(fmt.Errorf("ledger.withdrawal_fee: %w", err))
	}

	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	a.Metrics = metrics.New()
	a.bus = event.NewBus(logger.Component(log, "event_bus"))

	var mailer ports.Mailer
	if cfg.SMTP.Enabled() {
		mailer = mail.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	}

	custodyClient := custody.NewClient(cfg.Payout.BaseURL, cfg.Payout.APIKey, cfg.Payout.Secret, sigSvc,
		&http.Client{Timeout: cfg.Payout.Timeout})
	chainClient := tron.NewClient(cfg.Chain.BaseURL, cfg.Chain.APIKey, cfg.Chain.USDTContract,
		&http.Client{Timeout: cfg.Chain.Timeout})

	r := st.repos
	notificationSvc := service.NewNotificationService(r.Notifications, r.Accounts, mailer, logger.Component(log, "notifications"))
	milestoneSvc := service.NewMilestoneService(st.tx, r.Milestones, r.Accounts, r.Wallets, r.Transactions, notificationSvc, log)
	authSvc := service.NewAuthService(st.tx, r.Accounts, r.Wallets, hashSvc, encSvc, tokenSvc, custodyClient,
		milestoneSvc, mailer, cfg.Server.VerifyURL, log)
	commissionSvc := service.NewCommissionService(st.tx, r.Accounts, r.Wallets, r.Transactions, r.Referrals,
		r.Idempotency, st.cache, a.bus, a.Metrics, rates, logger.Component(log, "commission"))
	depositSvc := service.NewDepositService(st.tx, r.Accounts, r.Wallets, r.Transactions, r.ProcessedTx, st.claims,
		chainClient, notificationSvc, a.bus, a.Metrics, cfg.Chain.USDTContract, cfg.Scanner.Lookback, logger.Component(log, "deposits"))
	walletSvc := service.NewWalletService(st.tx, r.Wallets, r.Transactions, notificationSvc, log)
	withdrawalSvc := service.NewWithdrawalService(st.tx, r.Wallets, r.Transactions, st.claims, custodyClient,
		notificationSvc, a.bus, a.Metrics, service.WithdrawalPolicy{
			MinAmount:     minWithdrawal,
			Fee:           fee,
			PayoutTimeout: cfg.Payout.Timeout,
		}, logger.Component(log, "withdrawals"))
	a.audit = service.NewAuditService(r.Audit, log)

	a.bus.Subscribe(domain.EventDepositCompleted, commissionSvc.HandleEvent)
	if cfg.Kafka.Enabled {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return fail(fmt.Errorf("kafka publisher: %w", err))
		}
		a.publisher = kp
	} else {
		a.publisher = events.NewLoggingPublisher(logger.Component(log, "events"))
	}
	a.bus.Subscribe("*", events.Forwarder(a.publisher, forwardTimeout))

	if cfg.Admin.Email != "" {
		if _, err := authSvc.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			return fail(fmt.Errorf("seed admin account: %w", err))
		}
	}

	if cfg.Scanner.Enabled {
		a.scanner = worker.NewDepositScanner(r.Wallets, depositSvc, cfg.Scanner.Interval, logger.Component(log, "deposit_scanner"))
	}
	if cfg.Ledger.SweepInterval > 0 {
		a.sweeper = worker.NewCommissionSweeper(commissionSvc, cfg.Ledger.SweepInterval, cfg.Ledger.SweepWindow,
			logger.Component(log, "commission_sweeper"))
	}

	a.Router = httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:         authSvc,
		ReportingSvc:    service.NewReportingService(r.Transactions, r.Wallets),
		WithdrawalSvc:   withdrawalSvc,
		WalletSvc:       walletSvc,
		DepositSvc:      depositSvc,
		ReferralSvc:     service.NewReferralService(r.Accounts, r.Referrals),
		MilestoneSvc:    milestoneSvc,
		NotificationSvc: notificationSvc,
		TokenSvc:        tokenSvc,
		RateLimitStore:  st.rateLimits,
		HealthCheckers:  st.health,
		AuditSvc:        a.audit,
		Metrics:         a.Metrics,
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		Logger:          log,
	})

	return a, nil
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	switch cfg.Database.Driver {
	case "memory":
		store := memory.NewStore()
		mr := store.Repositories()
		kv := memory.NewKV()
		log.Warn().Msg("using in-memory storage, data is lost on exit")
		return &storage{
			repos: Repositories{
				Accounts:      mr.Accounts,
				Wallets:       mr.Wallets,
				Transactions:  mr.Transactions,
				Referrals:     mr.Referrals,
				Milestones:    mr.Milestones,
				Idempotency:   mr.Idempotency,
				ProcessedTx:   mr.ProcessedTx,
				Notifications: mr.Notifications,
				Audit:         mr.Audit,
			},
			tx:         store,
			cache:      kv,
			claims:     kv,
			rateLimits: kv,
			health:     []ports.HealthChecker{store},
		}, nil

	case "postgres", "":
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err := pgStorage.RunMigrations(ctx, pool, log); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return &storage{
			repos: Repositories{
				Accounts:      pgStorage.NewAccountRepo(pool),
				Wallets:       pgStorage.NewWalletRepo(pool),
				Transactions:  pgStorage.NewTransactionRepo(pool),
				Referrals:     pgStorage.NewReferralRepo(pool),
				Milestones:    pgStorage.NewMilestoneRepo(pool),
				Idempotency:   pgStorage.NewIdempotencyRepo(pool),
				ProcessedTx:   pgStorage.NewProcessedTxRepo(pool),
				Notifications: pgStorage.NewNotificationRepo(pool),
				Audit:         pgStorage.NewAuditRepo(pool),
			},
			tx:         pgStorage.NewTransactor(pool),
			cache:      redisStorage.NewIdempotencyCache(rdb),
			claims:     redisStorage.NewClaimStore(rdb),
			rateLimits: redisStorage.NewRateLimitStore(rdb),
			health:     []ports.HealthChecker{pgStorage.NewHealthCheck(pool), redisStorage.NewHealthCheck(rdb)},
			closers: []func(){
				pool.Close,
				func() { _ = rdb.Close() },
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// Run serves HTTP and runs the background workers until ctx is cancelled, then
// shuts the server down within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if a.scanner != nil {
		g.Go(func() error {
			if err := a.scanner.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("deposit scanner: %w", err)
			}
			return nil
		})
	}
	if a.sweeper != nil {
		g.Go(func() error {
			if err := a.sweeper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("commission sweeper: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error().Err(err).Msg("server forced to shutdown")
		}
		return nil
	})

	return g.Wait()
}

// Close drains in-flight events and audit writes, then releases the storage
// connections. It is safe to call on a partially built App.
func (a *App) Close() {
	if a.bus != nil {
		a.bus.Close()
	}
	if a.audit != nil {
		a.audit.Wait()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn().Err(err).Msg("event publisher close failed")
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// WaitEvents blocks until every published event has been handled.
func (a *App) WaitEvents() {
	a.bus.Wait()
}
