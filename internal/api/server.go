// Package api mounts every ShipLoop HTTP route on a gin engine.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/shiploop/shiploop-api/internal/adapters"
	"github.com/shiploop/shiploop-api/internal/cache"
	"github.com/shiploop/shiploop-api/internal/coach"
	"github.com/shiploop/shiploop-api/internal/config"
	"github.com/shiploop/shiploop-api/internal/database"
	"github.com/shiploop/shiploop-api/internal/email"
	"github.com/shiploop/shiploop-api/internal/errors"
	"github.com/shiploop/shiploop-api/internal/leaderboard"
	"github.com/shiploop/shiploop-api/internal/middleware"
	"github.com/shiploop/shiploop-api/internal/monitoring"
	"github.com/shiploop/shiploop-api/internal/ratelimit"
	"github.com/shiploop/shiploop-api/internal/resilience"
	"github.com/shiploop/shiploop-api/internal/security"
	"github.com/shiploop/shiploop-api/internal/waitlist"
	"github.com/shiploop/shiploop-api/internal/webhooks"
	"github.com/shiploop/shiploop-api/internal/workspace"
)

const (
	stripeStatePurpose = "stripe-connect"
	githubCacheTTL     = 2 * time.Minute
)

// Deps is everything the router needs. All fields are required.
type Deps struct {
	Config      *config.Config
	DB          *database.DB
	Profiles    *database.ProfileService
	Leaderboard *leaderboard.Service
	Waitlist    *waitlist.Service
	Email       *email.Service
	Coach       *coach.Service
	GitHub      *adapters.GitHubAdapter
	Stripe      *adapters.StripeAdapter
	Webhooks    *webhooks.Handler
	Workspace   *workspace.Workspace
	RateLimiter *ratelimit.RateLimiter
	Redis       *ratelimit.RedisClient
	Health      *resilience.DegradationManager
	Breakers    *resilience.CircuitBreakerRegistry
	Compression *middleware.CompressionMiddleware
	Metrics     *monitoring.Metrics
	Alerts      *monitoring.AlertManager
	Logger      *monitoring.Logger
}

// Server holds the handler dependencies.
type Server struct {
	Deps
	state       *security.StateSigner
	githubCache *cache.Cache
}

// NewServer prepares the handlers without building a router.
func NewServer(d Deps) *Server {
	return &Server{
		Deps:        d,
		state:       security.NewStateSigner(d.Config.Auth.SessionSecret),
		githubCache: cache.NewCache(githubCacheTTL),
	}
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	s.githubCache.Close()
}

// Router builds the gin engine with middleware and all routes.
func (s *Server) Router() *gin.Engine {
	cfg := s.Config
	r := gin.New()

	sec := security.NewSecurityMiddleware(security.DefaultSecurityConfig(cfg.Server.SiteURL))

	r.Use(monitoring.RequestIDMiddleware())
	r.Use(monitoring.MonitoringMiddleware(s.Metrics, s.Logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(s.Logger))
	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())
	r.Use(sec.CORS())
	r.Use(sec.Headers())
	r.Use(sec.RequestTimeout)
	r.Use(s.Compression.Handler())

	r.GET("/health", s.handleHealth())
	r.GET("/metrics", s.handleMetrics())
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Webhooks read the raw body for signature checks, so they sit outside
	// the content-type and rate-limit middleware.
	hooks := r.Group("/api/webhooks")
	hooks.POST("/stripe", s.Webhooks.HandleStripe())
	hooks.POST("/github", s.Webhooks.HandleGitHub())

	cron := r.Group("/api/cron", security.RequireBearerSecret(cfg.Auth.CronSecret, "cron", s.Logger))
	cron.GET("/streak-reminder", s.handleStreakReminder())

	api := r.Group("/api", s.RateLimiter.IPRateLimitMiddleware(), sec.ValidateContentType)
	api.GET("/ratelimit", s.RateLimiter.HandleStatus())

	api.POST("/waitlist", s.RateLimiter.RouteRateLimitMiddleware("waitlist", 10), s.Waitlist.HandleJoin())
	api.GET("/waitlist", s.Waitlist.HandleCount())

	api.POST("/auth/session", s.RateLimiter.RouteRateLimitMiddleware("auth", 10), s.handleSession())
	api.GET("/leaderboard", s.handleLeaderboard())
	api.POST("/finance/health", s.handleFinanceHealth())

	// The email routes only ever address the caller-supplied address, so
	// they are throttled rather than authenticated.
	mail := api.Group("/email", s.RateLimiter.RouteRateLimitMiddleware("email", 5))
	mail.POST("/welcome", s.Email.HandleWelcome())
	mail.POST("/reminder", s.Email.HandleReminder())

	gh := api.Group("/github", s.githubCache.Middleware(s.Metrics, githubTokenHeader))
	gh.GET("/repos", s.handleGitHubRepos())
	gh.GET("/commits", s.handleGitHubCommits())

	authed := api.Group("", security.RequireSession(s.Profiles, cfg.Auth.DevBypass))
	authed.GET("/score", s.handleScore())
	authed.POST("/score/activity", s.handleActivity())
	authed.PATCH("/score/breakdown", s.handleBreakdown())
	authed.GET("/rank", s.handleRank())
	authed.POST("/coach/ask", s.RateLimiter.RouteRateLimitMiddleware("coach", 20), s.Coach.HandleAsk())
	authed.GET("/stripe/connect", s.handleStripeConnectStart())
	authed.POST("/stripe/connect", s.handleStripeConnectFinish())
	authed.GET("/stripe/revenue", s.handleStripeRevenue())
	s.Workspace.RegisterRoutes(authed)

	admin := api.Group("/admin", security.RequireBearerSecret(cfg.Auth.AdminAPIKey, "admin", s.Logger))
	admin.GET("/waitlist", s.Waitlist.HandleAdminList())
	admin.PATCH("/waitlist", s.Waitlist.HandleAdminInvite())
	admin.GET("/ratelimit", s.RateLimiter.HandleAdminStats())
	admin.DELETE("/ratelimit/ip/:ip", s.RateLimiter.HandleAdminResetIP())
	admin.DELETE("/ratelimit/profile/:id", s.RateLimiter.HandleAdminResetProfile())
	admin.GET("/leaderboard/cache", s.handleLeaderboardCacheStats())
	admin.GET("/alerts", s.handleAlerts())

	return r
}
