package handler

import (
	"net/http"

	"referral-ledger/internal/adapter/http/middleware"
	"referral-ledger/internal/core/domain"
	"referral-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// MetricsProvider records request metrics and serves the scrape endpoint.
type MetricsProvider interface {
	middleware.HTTPObserver
	Handler() http.Handler
}

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc         ports.AuthService
	ReportingSvc    ports.ReportingService
	WithdrawalSvc   ports.WithdrawalService
	WalletSvc       ports.WalletService
	DepositSvc      ports.DepositService
	ReferralSvc     ports.ReferralService
	MilestoneSvc    ports.MilestoneService
	NotificationSvc ports.NotificationService
	TokenSvc        ports.TokenService
	RateLimitStore  ports.RateLimitStore // nil = rate limiting disabled
	HealthCheckers  []ports.HealthChecker
	AuditSvc        ports.AuditService // nil = audit logging disabled
	Metrics         MetricsProvider    // nil = no /metrics
	AllowedOrigins  []string
	MaxBodyBytes    int64
	Logger          zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.CORS(deps.AllowedOrigins))
	r.Use(middleware.MaxBodySize(maxBody))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			rule = rules["default"]
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
		auth.POST("/verify-email", rl("auth_verify"), authHandler.VerifyEmail)
	}

	// --- JWT-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	walletHandler := NewWalletHandler(deps.ReportingSvc, deps.WithdrawalSvc)
	referralHandler := NewReferralHandler(deps.ReferralSvc, deps.MilestoneSvc, deps.NotificationSvc)

	user := v1.Group("", jwtAuth)
	{
		user.GET("/wallet", rl("default"), walletHandler.GetWallet)
		user.GET("/transactions", rl("default"), walletHandler.ListTransactions)
		user.POST("/withdraw", rl("withdraw"), walletHandler.Withdraw)

		user.GET("/referrals/stats", rl("default"), referralHandler.GetStats)
		user.GET("/milestones", rl("default"), referralHandler.ListMilestones)
		user.POST("/milestones/:id/claim", rl("default"), referralHandler.ClaimMilestone)
		user.GET("/notifications", rl("default"), referralHandler.ListNotifications)
		user.POST("/notifications/:id/read", rl("default"), referralHandler.MarkNotificationRead)
	}

	// --- Admin routes ---
	adminHandler := NewAdminHandler(deps.WithdrawalSvc, deps.WalletSvc, deps.DepositSvc)
	admin := v1.Group("/admin", jwtAuth, middleware.RequireRole(domain.RoleAdmin), rl("admin"))
	{
		admin.POST("/withdrawals/:id/process", adminHandler.ProcessWithdrawal)
		admin.POST("/users/:id/balance", adminHandler.AdjustBalance)
		admin.POST("/deposits", adminHandler.ManualDeposit)
	}

	return r
}
