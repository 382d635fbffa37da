package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// callerKey prefers the authenticated profile over the client IP.
func callerKey(c *gin.Context) string {
	if v, ok := c.Get("user_id"); ok {
		if id, ok := v.(string); ok && id != "" {
			return "user:" + id
		}
	}
	return "ip:" + c.ClientIP()
}

func writeHeaders(c *gin.Context, prefix string, result *Result) {
	c.Header(prefix+"-Limit", strconv.Itoa(result.Limit))
	c.Header(prefix+"-Remaining", strconv.Itoa(result.Remaining))
	c.Header(prefix+"-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func retryAfterSeconds(result *Result) int {
	secs := int(result.RetryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// IPRateLimitMiddleware creates middleware for IP-based rate limiting
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		result, err := rl.AllowIP(c.Request.Context(), ip)
		if err != nil {
			// Don't block requests on limiter failure
			slog.Error("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		writeHeaders(c, "X-RateLimit", result)

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitIPBlock()
			}

			retry := retryAfterSeconds(result)
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"message":     fmt.Sprintf("You have exceeded the rate limit of %d requests per minute", result.Limit),
				"retry_after": retry,
				"reset_at":    result.ResetAt.Unix(),
			})
			return
		}

		c.Next()
	}
}

// RouteRateLimitMiddleware applies a per-minute budget to one route group.
// Authenticated callers are limited per profile, anonymous ones per IP.
func (rl *RateLimiter) RouteRateLimitMiddleware(route string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := callerKey(c)

		result, err := rl.AllowRoute(c.Request.Context(), route, caller, limit)
		if err != nil {
			slog.Error("Route rate limit check failed", "route", route, "error", err)
			c.Next()
			return
		}

		writeHeaders(c, "X-RateLimit-Route", result)

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitRoute(route)
			}

			retry := retryAfterSeconds(result)
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       fmt.Sprintf("rate limit exceeded for %s", route),
				"message":     fmt.Sprintf("You have exceeded the rate limit of %d requests per minute for this endpoint", result.Limit),
				"retry_after": retry,
			})
			return
		}

		c.Next()
	}
}
