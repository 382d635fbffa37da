package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shiploop/shiploop-api/internal/config"
	"github.com/shiploop/shiploop-api/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newFallbackLimiter(t *testing.T, ipLimit int) (*RateLimiter, *monitoring.Metrics) {
	t.Helper()
	redisClient, err := NewRedisClient(config.RedisConfig{})
	require.NoError(t, err)
	require.False(t, redisClient.IsEnabled())

	metrics := monitoring.NewMetrics()
	limiter := NewRateLimiter(redisClient, Config{IPLimitPerMin: ipLimit, BurstMultiplier: 1}, metrics)
	t.Cleanup(limiter.Close)
	return limiter, metrics
}

func TestAllowIPFallback(t *testing.T) {
	limiter, metrics := newFallbackLimiter(t, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := limiter.AllowIP(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 5, result.Limit)
	}

	result, err := limiter.AllowIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Positive(t, result.RetryAfter)
	assert.Equal(t, 0, result.Remaining)

	// other IPs have their own bucket
	result, err = limiter.AllowIP(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	stats := metrics.GetRateLimitStats()
	assert.EqualValues(t, 7, stats["fallback_count"])
}

func TestRemainingDecreasesOnePerRequest(t *testing.T) {
	limiter, _ := newFallbackLimiter(t, 10)
	ctx := context.Background()

	first, err := limiter.AllowIP(ctx, "10.0.0.9")
	require.NoError(t, err)
	second, err := limiter.AllowIP(ctx, "10.0.0.9")
	require.NoError(t, err)

	assert.Equal(t, 9, first.Remaining)
	assert.Equal(t, 8, second.Remaining)
}

func TestAllowRouteIsIndependentOfIPBudget(t *testing.T) {
	limiter, _ := newFallbackLimiter(t, 1)
	ctx := context.Background()

	result, err := limiter.AllowIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	for i := 0; i < 3; i++ {
		result, err = limiter.AllowRoute(ctx, "coach", "user:p1", 3)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}
	result, err = limiter.AllowRoute(ctx, "coach", "user:p1", 3)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	result, err = limiter.AllowRoute(ctx, "email", "user:p1", 3)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestZeroLimitDisablesCheck(t *testing.T) {
	limiter, _ := newFallbackLimiter(t, 0)

	for i := 0; i < 100; i++ {
		result, err := limiter.AllowIP(context.Background(), "10.0.0.1")
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}
}

func TestInvalidateFallback(t *testing.T) {
	limiter, _ := newFallbackLimiter(t, 1)
	ctx := context.Background()

	_, _ = limiter.AllowIP(ctx, "10.0.0.1")
	_, _ = limiter.AllowRoute(ctx, "coach", "user:p1", 1)
	_, _ = limiter.AllowRoute(ctx, "email", "user:p1", 1)
	_, _ = limiter.AllowRoute(ctx, "email", "user:p2", 1)

	result, err := limiter.AllowIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, result.Allowed)

	removed, err := limiter.InvalidateIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	result, err = limiter.AllowIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	removed, err = limiter.InvalidateCaller(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	removed, err = limiter.InvalidateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, limiter.GetStats()["fallback_limiters"])
}

func TestIPRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter, metrics := newFallbackLimiter(t, 2)

	router := gin.New()
	router.Use(limiter.IPRateLimitMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "192.0.2.10:1234"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)

		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		if w.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
		}
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.EqualValues(t, 1, metrics.GetRateLimitStats()["ip_blocks"])
}

func TestRouteRateLimitMiddlewareKeysByProfile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter, _ := newFallbackLimiter(t, 100)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			c.Set("user_id", id)
		}
		c.Next()
	})
	router.POST("/coach", limiter.RouteRateLimitMiddleware("coach", 1), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	do := func(user string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/coach", nil)
		req.RemoteAddr = "192.0.2.10:1234"
		req.Header.Set("X-Test-User", user)
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, do("alice"))
	assert.Equal(t, http.StatusTooManyRequests, do("alice"))
	// same IP, different profile
	assert.Equal(t, http.StatusNoContent, do("bob"))
}

func TestRedisClientDisabledHealth(t *testing.T) {
	client, err := NewRedisClient(config.RedisConfig{})
	require.NoError(t, err)

	status, err := client.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "disabled", status)
	assert.Equal(t, false, client.GetPoolStats()["enabled"])
	assert.NoError(t, client.Close())
}

func TestLimiterCloseStopsCleanup(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	client, err := NewRedisClient(config.RedisConfig{})
	require.NoError(t, err)
	limiter := NewRateLimiter(client, DefaultConfig(), nil)
	limiter.Close()
	limiter.Close()
}
