package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shiploop/shiploop-api/internal/resilience"
)

// handleHealth godoc
// @Summary Service health
// @Description Reports each dependency and an overall status of healthy, degraded or critical.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		services := s.Health.Check(c.Request.Context())
		overall := resilience.Overall(services)

		status := http.StatusOK
		if overall == resilience.LevelCritical.String() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status":           overall,
			"timestamp":        time.Now().UTC().Format(time.RFC3339),
			"services":         services,
			"circuit_breakers": s.Breakers.GetStats(),
		})
	}
}

// handleMetrics godoc
// @Summary Process metrics
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /metrics [get]
func (s *Server) handleMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"requests":    s.Metrics.GetStats(),
			"domain":      s.Metrics.GetDomainStats(),
			"ratelimit":   s.Metrics.GetRateLimitStats(),
			"compression": s.Compression.GetStats(),
			"leaderboard": s.Leaderboard.GetCacheStats(),
			"database":    s.DB.GetPoolStats(),
			"redis":       s.Redis.GetPoolStats(),
		})
	}
}

// handleAlerts godoc
// @Summary Active alerts
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /api/admin/alerts [get]
func (s *Server) handleAlerts() gin.HandlerFunc {
	return func(c *gin.Context) {
		active := s.Alerts.ActiveAlerts()
		c.JSON(http.StatusOK, gin.H{"alerts": active, "count": len(active)})
	}
}
