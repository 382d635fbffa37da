package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
)

// redis_rate stores its state under this prefix.
const redisRatePrefix = "rate:"

// InvalidateIP removes all rate limit state for an IP address
func (rl *RateLimiter) InvalidateIP(ctx context.Context, ip string) (int, error) {
	return rl.invalidate(ctx, fmt.Sprintf("ratelimit:ip:%s", ip))
}

// InvalidateCaller removes all route budgets for a profile.
func (rl *RateLimiter) InvalidateCaller(ctx context.Context, profileID string) (int, error) {
	return rl.invalidate(ctx, fmt.Sprintf("ratelimit:route:*:user:%s", profileID))
}

// InvalidateAll removes all rate limit keys
func (rl *RateLimiter) InvalidateAll(ctx context.Context) (int, error) {
	slog.Warn("Invalidating all rate limits")
	return rl.invalidate(ctx, "ratelimit:*")
}

func (rl *RateLimiter) invalidate(ctx context.Context, pattern string) (int, error) {
	if !rl.redisClient.IsEnabled() {
		removed := rl.resetFallbackPattern(pattern)
		slog.Info("Invalidated rate limits (in-memory)", "pattern", pattern, "count", removed)
		return removed, nil
	}
	return rl.deleteByPattern(ctx, redisRatePrefix+pattern)
}

// resetFallbackPattern supports the single trailing or embedded '*' our patterns use.
func (rl *RateLimiter) resetFallbackPattern(pattern string) int {
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '*' {
			continue
		}
		prefix, suffix := pattern[:i], pattern[i+1:]
		if suffix == "" {
			return rl.resetFallback(prefix)
		}
		rl.fallbackMutex.Lock()
		defer rl.fallbackMutex.Unlock()
		removed := 0
		for key := range rl.fallbackLimiters {
			if len(key) >= len(prefix)+len(suffix) && key[:len(prefix)] == prefix && key[len(key)-len(suffix):] == suffix {
				delete(rl.fallbackLimiters, key)
				removed++
			}
		}
		return removed
	}

	rl.fallbackMutex.Lock()
	defer rl.fallbackMutex.Unlock()
	if _, ok := rl.fallbackLimiters[pattern]; ok {
		delete(rl.fallbackLimiters, pattern)
		return 1
	}
	return 0
}

// deleteByPattern deletes all Redis keys matching a pattern
func (rl *RateLimiter) deleteByPattern(ctx context.Context, pattern string) (int, error) {
	client := rl.redisClient.GetClient()

	var cursor uint64
	var deletedCount int

	for {
		keys, nextCursor, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deletedCount, fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			deleted, err := client.Del(ctx, keys...).Result()
			if err != nil {
				return deletedCount, fmt.Errorf("failed to delete keys: %w", err)
			}
			deletedCount += int(deleted)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	slog.Info("Deleted rate limit keys by pattern", "pattern", pattern, "count", deletedCount)
	return deletedCount, nil
}
