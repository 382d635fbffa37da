package api

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/shiploop/shiploop-api/internal/adapters"
	"github.com/shiploop/shiploop-api/internal/coach"
	"github.com/shiploop/shiploop-api/internal/config"
	"github.com/shiploop/shiploop-api/internal/database"
	"github.com/shiploop/shiploop-api/internal/email"
	"github.com/shiploop/shiploop-api/internal/leaderboard"
	"github.com/shiploop/shiploop-api/internal/middleware"
	"github.com/shiploop/shiploop-api/internal/monitoring"
	"github.com/shiploop/shiploop-api/internal/ratelimit"
	"github.com/shiploop/shiploop-api/internal/resilience"
	"github.com/shiploop/shiploop-api/internal/score"
	"github.com/shiploop/shiploop-api/internal/waitlist"
	"github.com/shiploop/shiploop-api/internal/webhooks"
	"github.com/shiploop/shiploop-api/internal/workspace"
)

const (
	leaderboardTTL = 5 * time.Minute
	devSessionKey  = "shiploop-dev-session-secret"
)

// Endpoints overrides upstream base URLs. Production leaves it empty.
type Endpoints struct {
	Stripe string
	Resend string
	OpenAI string
}

// Build opens storage and constructs every service described by cfg.
func Build(cfg *config.Config, logger *monitoring.Logger, endpoints Endpoints) (*Server, error) {
	if cfg.Auth.SessionSecret == "" {
		logger.Warn("SESSION_SECRET not set, using an insecure development secret")
		cfg.Auth.SessionSecret = devSessionKey
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := database.NewDB(cfg.Server.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	repo := database.NewRepository(db)
	profiles := database.NewProfileService(repo, score.NewTracker(loc), cfg.Auth.SessionSecret)

	metrics := monitoring.NewMetrics()
	health := resilience.NewDegradationManager(resilience.DefaultDegradationConfig())
	breakers := resilience.NewCircuitBreakerRegistry(func(name string) {
		metrics.IncrementCircuitBreakerOpen()
		logger.Warn("Circuit breaker opened", "service", name)
	})
	pool := func(name string, retry resilience.RetryConfig) *resilience.ConnectionPool {
		pc := resilience.DefaultPoolConfig()
		retry.RetryableErrors = resilience.IsRetryable
		pc.Retry = retry
		return resilience.NewConnectionPool(name, pc, breakers.GetOrCreate(name, resilience.CircuitBreakerConfig{}), health)
	}

	health.RegisterService("database", func(ctx context.Context) error {
		return db.PingContext(ctx)
	})

	redisClient, err := ratelimit.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable", "error", err)
	}
	if redisClient.IsEnabled() {
		health.RegisterService("redis", func(ctx context.Context) error {
			_, err := redisClient.HealthCheck(ctx)
			return err
		})
	}
	limits := ratelimit.DefaultConfig()
	limits.IPLimitPerMin = cfg.RateLimit.RequestsPerMinute
	limiter := ratelimit.NewRateLimiter(redisClient, limits, metrics)

	var store waitlist.Store
	switch cfg.Waitlist.Store {
	case "sqlite":
		store = waitlist.NewSQLStore(repo)
	default:
		fs, err := waitlist.NewFileStore(filepath.Join(cfg.Server.DataDir, "waitlist.json"))
		if err != nil {
			db.Close()
			return nil, err
		}
		store = fs
	}

	mailer, err := email.NewService(cfg.Email, cfg.Server.SiteURL, pool("resend", resilience.SlowRetryPolicy), metrics, endpoints.Resend)
	if err != nil {
		db.Close()
		return nil, err
	}

	board := leaderboard.NewService(repo, leaderboardTTL)

	alerts := monitoring.NewAlertManager(logger)
	for _, rule := range monitoring.DefaultAlertRules(metrics) {
		alerts.AddRule(rule)
	}
	alerts.AddNotifier(monitoring.NewLogNotifier(logger))
	if cfg.Log.AlertWebhookURL != "" {
		alerts.AddNotifier(monitoring.NewWebhookNotifier(cfg.Log.AlertWebhookURL))
	}

	d := Deps{
		Config:      cfg,
		DB:          db,
		Profiles:    profiles,
		Leaderboard: board,
		Waitlist:    waitlist.NewService(store, metrics),
		Email:       mailer,
		Coach:       coach.NewService(cfg.Coach, pool("openai", resilience.FastRetryPolicy), metrics, endpoints.OpenAI),
		GitHub:      adapters.NewGitHubAdapter(cfg.GitHub.APIBaseURL, pool("github", resilience.FastRetryPolicy)),
		Stripe:      adapters.NewStripeAdapter(cfg.Stripe, pool("stripe", resilience.FastRetryPolicy), endpoints.Stripe),
		Webhooks: webhooks.NewHandler(profiles, cfg.Stripe.WebhookSecret, cfg.GitHub.WebhookSecret, logger, metrics,
			webhooks.WithScoreChangeHook(board.Invalidate)),
		Workspace:   workspace.New(),
		RateLimiter: limiter,
		Redis:       redisClient,
		Health:      health,
		Breakers:    breakers,
		Compression: middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
		Metrics:     metrics,
		Alerts:      alerts,
		Logger:      logger,
	}
	return NewServer(d), nil
}

// Shutdown releases storage, pools and background goroutines.
func (s *Server) Shutdown() {
	s.Close()
	s.Leaderboard.Close()
	s.RateLimiter.Close()
	if err := s.GitHub.Close(); err != nil {
		s.Logger.Warn("Failed to close GitHub pool", "error", err)
	}
	if err := s.Redis.Close(); err != nil {
		s.Logger.Warn("Failed to close Redis", "error", err)
	}
	if err := s.DB.Close(); err != nil {
		s.Logger.Warn("Failed to close database", "error", err)
	}
}
