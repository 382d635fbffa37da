package leaderboard

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shiploop/shiploop-api/internal/cache"
)

const leaderboardPrefix = "leaderboard:"

// LeaderboardCache stores serialized leaderboard responses
type LeaderboardCache struct {
	cache *cache.Cache
}

// NewLeaderboardCache creates a new leaderboard cache
func NewLeaderboardCache(ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		cache: cache.NewCache(ttl),
	}
}

func (lc *LeaderboardCache) key(limit int) string {
	return fmt.Sprintf("%s%d", leaderboardPrefix, limit)
}

// GetLeaderboard retrieves cached leaderboard data
func (lc *LeaderboardCache) GetLeaderboard(limit int) (*Response, bool) {
	data, found := lc.cache.Get(lc.key(limit))
	if !found {
		return nil, false
	}

	var response Response
	if err := json.Unmarshal(data, &response); err != nil {
		slog.Error("Failed to unmarshal cached leaderboard data", "error", err, "limit", limit)
		return nil, false
	}

	slog.Debug("Leaderboard cache hit", "limit", limit)
	return &response, true
}

// SetLeaderboard caches leaderboard data
func (lc *LeaderboardCache) SetLeaderboard(limit int, response *Response) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal leaderboard data for cache", "error", err, "limit", limit)
		return
	}

	lc.cache.Set(lc.key(limit), data)
}

// InvalidateAll drops every cached leaderboard
func (lc *LeaderboardCache) InvalidateAll() {
	if n := lc.cache.DeletePrefix(leaderboardPrefix); n > 0 {
		slog.Debug("Invalidated leaderboard cache", "entries", n)
	}
}

// GetStats returns cache statistics
func (lc *LeaderboardCache) GetStats() map[string]interface{} {
	return lc.cache.Stats()
}

func (lc *LeaderboardCache) Close() {
	lc.cache.Close()
}
