package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	_ "github.com/shiploop/shiploop-api/docs"
	"github.com/shiploop/shiploop-api/internal/api"
	"github.com/shiploop/shiploop-api/internal/config"
	"github.com/shiploop/shiploop-api/internal/monitoring"
)

const (
	leaderboardRefresh = 10 * time.Minute
	shutdownTimeout    = 30 * time.Second
	alertInterval      = 30 * time.Second
)

// @title ShipLoop API
// @version 1.0
// @description Ship score, streaks, launches and revenue tracking for indie makers.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @securityDefinitions.apikey CronSecret
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured logging setup
	appLogger := monitoring.NewLogger(cfg.Log.Level)
	slog.SetDefault(appLogger.Logger)

	if missing := cfg.Missing(); len(missing) > 0 {
		slog.Warn("Integrations disabled, environment variables not set", "missing", strings.Join(missing, ","))
	}

	if cfg.Log.Level > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	srv, err := api.Build(cfg, appLogger, api.Endpoints{})
	if err != nil {
		slog.Error("Failed to initialize server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Warm up leaderboard cache and start auto-refresh
	go func() {
		slog.Info("Warming up leaderboard cache")
		srv.Leaderboard.WarmCache(ctx)
		srv.Leaderboard.StartAutoRefresh(ctx, leaderboardRefresh)
	}()
	srv.Alerts.Start(ctx, alertInterval)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.SystemLogger("server_start", "listening on :"+cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			stop()
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	srv.Shutdown()

	appLogger.SystemLogger("server_stop", "shutdown complete")
}
