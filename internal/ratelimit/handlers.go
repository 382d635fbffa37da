package ratelimit

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HandleStatus returns the limiter configuration as seen by the caller.
func (rl *RateLimiter) HandleStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ip":     c.ClientIP(),
			"caller": callerKey(c),
			"limits": gin.H{
				"ip_per_minute": rl.config.IPLimitPerMin,
			},
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// HandleAdminStats returns limiter and metric counters (admin only)
func (rl *RateLimiter) HandleAdminStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		response := gin.H{
			"limiter_stats": rl.GetStats(),
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
		}
		if rl.metrics != nil {
			response["metrics"] = rl.metrics.GetRateLimitStats()
		}
		c.JSON(http.StatusOK, response)
	}
}

// HandleAdminResetIP clears the limits recorded for an IP (admin only)
func (rl *RateLimiter) HandleAdminResetIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.Param("ip")
		if ip == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "IP address is required"})
			return
		}

		removed, err := rl.InvalidateIP(c.Request.Context(), ip)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset rate limits"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ip":      ip,
			"removed": removed,
		})
	}
}

// HandleAdminResetProfile clears all route budgets for a profile (admin only)
func (rl *RateLimiter) HandleAdminResetProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "profile id is required"})
			return
		}

		removed, err := rl.InvalidateCaller(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset rate limits"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"profileId": id,
			"removed":   removed,
		})
	}
}
