package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/shiploop/shiploop-api/internal/database"
	"github.com/shiploop/shiploop-api/internal/score"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
	rankCacheLen = 4096
)

// Entry is one leaderboard row with its derived tier.
type Entry struct {
	Position      int             `json:"position"`
	ProfileID     string          `json:"profileId"`
	Name          string          `json:"name"`
	Total         int             `json:"total"`
	Breakdown     score.Breakdown `json:"breakdown"`
	CurrentStreak int             `json:"currentStreak"`
	Percentile    float64         `json:"percentile"`
	Tier          score.Tier      `json:"tier"`
}

type Response struct {
	Entries     []Entry   `json:"entries"`
	TotalUsers  int       `json:"totalUsers"`
	Summary     Summary   `json:"summary"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Service ranks profiles by ship score
type Service struct {
	repo  *database.Repository
	cache *LeaderboardCache
	ranks *lru.Cache

	// gen advances on every Invalidate; results computed under an older
	// generation are not cached.
	mu  sync.Mutex
	gen uint64
}

// NewService creates a leaderboard service with the given cache TTL
func NewService(repo *database.Repository, ttl time.Duration) *Service {
	return NewServiceWithCache(repo, NewLeaderboardCache(ttl))
}

// NewServiceWithCache creates a new leaderboard service with custom cache
func NewServiceWithCache(repo *database.Repository, c *LeaderboardCache) *Service {
	ranks, _ := lru.New(rankCacheLen)
	return &Service{
		repo:  repo,
		cache: c,
		ranks: ranks,
	}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// GetLeaderboard returns the top profiles by total score
func (s *Service) GetLeaderboard(ctx context.Context, limit int) (*Response, error) {
	limit = clampLimit(limit)

	if cached, ok := s.cache.GetLeaderboard(limit); ok {
		return cached, nil
	}
	gen := s.generation()

	rows, err := s.repo.ListRanked(ctx, limit)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.CountProfiles(ctx)
	if err != nil {
		return nil, err
	}

	totals, err := s.repo.ListTotals(ctx)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Entries:     make([]Entry, 0, len(rows)),
		TotalUsers:  total,
		Summary:     summarize(totals),
		GeneratedAt: time.Now().UTC(),
	}
	for _, row := range rows {
		rank := score.NewGlobalRank(row.Position, total)
		resp.Entries = append(resp.Entries, Entry{
			Position:      row.Position,
			ProfileID:     row.ProfileID,
			Name:          row.Name,
			Total:         row.Total,
			Breakdown:     row.Breakdown,
			CurrentStreak: row.Streak,
			Percentile:    rank.Percentile,
			Tier:          rank.Tier,
		})
	}

	s.mu.Lock()
	if gen == s.gen {
		s.cache.SetLeaderboard(limit, resp)
	}
	s.mu.Unlock()
	return resp, nil
}

// GetRank returns a profile's global rank, storing it in global_ranks when recomputed
func (s *Service) GetRank(ctx context.Context, profileID string) (score.GlobalRank, error) {
	if v, ok := s.ranks.Get(profileID); ok {
		return v.(score.GlobalRank), nil
	}
	gen := s.generation()

	position, total, err := s.repo.RankOf(ctx, profileID)
	if err != nil {
		return score.GlobalRank{}, err
	}
	rank := score.NewGlobalRank(position, total)

	if err := s.repo.SaveRank(ctx, profileID, rank); err != nil {
		return score.GlobalRank{}, fmt.Errorf("failed to persist rank: %w", err)
	}

	s.storeRank(profileID, rank, gen)
	return rank, nil
}

func (s *Service) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// storeRank memoizes rank unless an Invalidate happened since gen was read.
func (s *Service) storeRank(profileID string, rank score.GlobalRank, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.gen {
		s.ranks.Add(profileID, rank)
	}
}

// Invalidate drops cached rankings after any score change. One score
// moving can shift every other position, so all ranks are purged.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.ranks.Purge()
	s.cache.InvalidateAll()
}

func (s *Service) GetCacheStats() map[string]interface{} {
	stats := s.cache.GetStats()
	stats["rank_entries"] = s.ranks.Len()
	return stats
}

// WarmCache pre-populates the popular leaderboard sizes
func (s *Service) WarmCache(ctx context.Context) {
	for _, limit := range []int{10, 25, DefaultLimit} {
		if _, err := s.GetLeaderboard(ctx, limit); err != nil {
			slog.Error("Failed to warm leaderboard cache", "error", err, "limit", limit)
		}
	}
}

// StartAutoRefresh rebuilds the cached leaderboards every interval until ctx is done
func (s *Service) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cache.InvalidateAll()
				s.WarmCache(ctx)
			}
		}
	}()
}

// Close stops background cache maintenance
func (s *Service) Close() {
	s.cache.Close()
}
