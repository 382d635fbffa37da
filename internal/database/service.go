package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mattn/go-sqlite3"

	"github.com/shiploop/shiploop-api/internal/finance"
	"github.com/shiploop/shiploop-api/internal/score"
)

const (
	sessionTTL    = 7 * 24 * time.Hour
	commitWindow  = 7 * 24 * time.Hour
	launchWindow  = 30 * 24 * time.Hour
	revenueWindow = 30 * 24 * time.Hour
)

// ActivityKind names what a user did.
type ActivityKind string

const (
	ActivityCommit ActivityKind = "commit"
	ActivityLaunch ActivityKind = "launch"
	ActivityGrowth ActivityKind = "growth"
)

// Activity is a single piece of qualifying work reported for a profile.
type Activity struct {
	Kind          ActivityKind `json:"kind" binding:"required,oneof=commit launch growth"`
	Count         int          `json:"count,omitempty" binding:"min=0"`
	Repository    string       `json:"repository,omitempty"`
	Name          string       `json:"name,omitempty"`
	UserGrowthPct float64      `json:"userGrowthPct,omitempty"`
	At            time.Time    `json:"-"`
}

// StreakSweep summarises one pass over all running streaks.
type StreakSweep struct {
	Processed int
	Reset     []ProfileStreak
	AtRisk    []ProfileStreak
	// Rescored counts profiles whose total changed as activity aged out of its window.
	Rescored int
}

// ProfileService owns profiles, their ship scores and streaks
type ProfileService struct {
	repo      *Repository
	tracker   *score.Tracker
	jwtSecret []byte
	now       func() time.Time
}

// NewProfileService creates a new profile service
func NewProfileService(repo *Repository, tracker *score.Tracker, jwtSecret string) *ProfileService {
	return &ProfileService{
		repo:      repo,
		tracker:   tracker,
		jwtSecret: []byte(jwtSecret),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (s *ProfileService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *ProfileService) Tracker() *score.Tracker {
	return s.tracker
}

// Bootstrap returns the profile for email, creating it with its score,
// streak and rank rows in a single transaction when it does not exist.
func (s *ProfileService) Bootstrap(ctx context.Context, email, name, githubLogin string) (*Profile, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	existing, err := s.repo.GetProfileByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	p := NewProfile(email, strings.TrimSpace(name), strings.TrimSpace(githubLogin))
	err = s.repo.DB().WithTx(ctx, func(tx *sql.Tx) error {
		n, err := s.repo.CountProfilesTx(ctx, tx)
		if err != nil {
			return err
		}
		return s.repo.InsertProfileBundle(ctx, tx, p, score.NewGlobalRank(n+1, n+1))
	})
	if isUniqueViolation(err) {
		// A concurrent first login for the same email won the insert.
		if existing, lookupErr := s.repo.GetProfileByEmail(ctx, email); lookupErr == nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// GenerateSessionToken generates a JWT token for the profile session
func (s *ProfileService) GenerateSessionToken(profileID string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": profileID,
		"exp":     now.Add(sessionTTL).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// ValidateSessionToken validates a JWT token and returns the profile ID
func (s *ProfileService) ValidateSessionToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		profileID, ok := claims["user_id"].(string)
		if !ok || profileID == "" {
			return "", fmt.Errorf("user_id not found in token")
		}
		return profileID, nil
	}

	return "", fmt.Errorf("invalid token")
}

func (s *ProfileService) GetProfile(ctx context.Context, id string) (*Profile, error) {
	return s.repo.GetProfile(ctx, id)
}

func (s *ProfileService) GetShipScore(ctx context.Context, profileID string) (score.ShipScore, error) {
	return s.repo.GetShipScore(ctx, profileID)
}

// RecordActivity stores the activity, advances the streak and recomputes the score.
func (s *ProfileService) RecordActivity(ctx context.Context, profileID string, a Activity) (score.ShipScore, error) {
	if a.At.IsZero() {
		a.At = s.now()
	}

	switch a.Kind {
	case ActivityCommit:
		count := max(a.Count, 1)
		repo := a.Repository
		if repo == "" {
			repo = "manual"
		}
		if err := s.repo.RecordCommits(ctx, profileID, repo, count, a.At); err != nil {
			return score.ShipScore{}, err
		}
	case ActivityLaunch:
		name := a.Name
		if name == "" {
			name = "launch"
		}
		if err := s.repo.RecordLaunch(ctx, profileID, name, a.At); err != nil {
			return score.ShipScore{}, err
		}
	case ActivityGrowth:
		if err := s.repo.SetUserGrowth(ctx, profileID, a.UserGrowthPct); err != nil {
			return score.ShipScore{}, err
		}
		return s.Recompute(ctx, profileID)
	default:
		return score.ShipScore{}, fmt.Errorf("unknown activity kind %q", a.Kind)
	}

	current, err := s.repo.GetShipScore(ctx, profileID)
	if err != nil {
		return score.ShipScore{}, err
	}
	next, _ := s.tracker.RecordActivity(current.Streak, a.At)
	if err := s.repo.SaveStreak(ctx, profileID, next); err != nil {
		return score.ShipScore{}, err
	}

	return s.Recompute(ctx, profileID)
}

// Metrics collects the raw activity metrics for a profile at the current time.
func (s *ProfileService) Metrics(ctx context.Context, profileID string) (score.ActivityMetrics, error) {
	now := s.now()

	commits, err := s.repo.CountCommitsSince(ctx, profileID, now.Add(-commitWindow))
	if err != nil {
		return score.ActivityMetrics{}, err
	}
	launches, err := s.repo.CountLaunchesSince(ctx, profileID, now.Add(-launchWindow))
	if err != nil {
		return score.ActivityMetrics{}, err
	}
	current, err := s.repo.SumRevenue(ctx, profileID, now.Add(-revenueWindow), now.Add(time.Second))
	if err != nil {
		return score.ActivityMetrics{}, err
	}
	previous, err := s.repo.SumRevenue(ctx, profileID, now.Add(-2*revenueWindow), now.Add(-revenueWindow))
	if err != nil {
		return score.ActivityMetrics{}, err
	}
	userGrowth, err := s.repo.GetUserGrowth(ctx, profileID)
	if err != nil {
		return score.ActivityMetrics{}, err
	}

	revenueGrowth := finance.GrowthPct(previous, current)
	if previous == 0 && current > 0 {
		// First revenue counts as full growth.
		revenueGrowth = 100
	}

	return score.ActivityMetrics{
		CommitsLast7Days:   commits,
		LaunchesLast30Days: launches,
		RevenueGrowthPct:   revenueGrowth,
		UserGrowthPct:      userGrowth,
	}, nil
}

// Recompute derives the breakdown from stored activity, lays the manual
// overrides over it and saves it.
func (s *ProfileService) Recompute(ctx context.Context, profileID string) (score.ShipScore, error) {
	m, err := s.Metrics(ctx, profileID)
	if err != nil {
		return score.ShipScore{}, err
	}
	manual, err := s.repo.GetManualBreakdown(ctx, profileID)
	if err != nil {
		return score.ShipScore{}, err
	}
	if err := s.repo.SaveBreakdown(ctx, profileID, manual.Apply(score.FromActivity(m)), s.now()); err != nil {
		return score.ShipScore{}, err
	}
	return s.repo.GetShipScore(ctx, profileID)
}

// PatchBreakdown stores a manual partial breakdown. Patched fields keep their
// value through later recomputes; the total is always recomputed.
func (s *ProfileService) PatchBreakdown(ctx context.Context, profileID string, patch score.BreakdownPatch) (score.ShipScore, error) {
	if err := s.repo.SaveManualBreakdown(ctx, profileID, patch); err != nil {
		return score.ShipScore{}, err
	}
	return s.Recompute(ctx, profileID)
}

// RecordRevenue stores a payment and recomputes the owner's score when it is new.
func (s *ProfileService) RecordRevenue(ctx context.Context, ev RevenueEvent) (bool, error) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now()
	}
	created, err := s.repo.RecordRevenue(ctx, ev)
	if err != nil || !created {
		return created, err
	}
	if _, err := s.Recompute(ctx, ev.ProfileID); err != nil {
		return true, err
	}
	return true, nil
}

// SweepStreaks resets broken streaks, collects the ones at risk of breaking
// today and rescores profiles whose activity has aged out of its window.
func (s *ProfileService) SweepStreaks(ctx context.Context) (StreakSweep, error) {
	now := s.now()
	streaks, err := s.repo.ListActiveStreaks(ctx)
	if err != nil {
		return StreakSweep{}, err
	}

	sweep := StreakSweep{Processed: len(streaks)}
	for _, ps := range streaks {
		if next, broken := s.tracker.Evaluate(ps.Streak, now); broken {
			if err := s.repo.SaveStreak(ctx, ps.ProfileID, next); err != nil {
				return sweep, err
			}
			ps.Streak = next
			sweep.Reset = append(sweep.Reset, ps)
			continue
		}
		if s.tracker.AtRisk(ps.Streak, now) {
			sweep.AtRisk = append(sweep.AtRisk, ps)
		}
	}

	totals, err := s.repo.ListScoredTotals(ctx)
	if err != nil {
		return sweep, err
	}
	for id, before := range totals {
		after, err := s.Recompute(ctx, id)
		if err != nil {
			return sweep, err
		}
		if after.Total != before {
			sweep.Rescored++
		}
	}
	return sweep, nil
}

// ProfileForGitHub resolves the profile linked to a GitHub login.
func (s *ProfileService) ProfileForGitHub(ctx context.Context, login string) (*Profile, error) {
	return s.repo.GetProfileByGitHubLogin(ctx, login)
}

// ProfileForStripeAccount resolves the profile that connected a Stripe account.
func (s *ProfileService) ProfileForStripeAccount(ctx context.Context, accountID string) (*Profile, error) {
	return s.repo.GetProfileByStripeAccount(ctx, accountID)
}

// ConnectStripe links a Stripe Connect account to a profile.
func (s *ProfileService) ConnectStripe(ctx context.Context, profileID, accountID string) error {
	return s.repo.SetStripeAccount(ctx, profileID, accountID)
}

// MarkDelivery reports whether a webhook delivery is seen for the first time.
func (s *ProfileService) MarkDelivery(ctx context.Context, source, deliveryID, eventType string) (bool, error) {
	if deliveryID == "" {
		return true, nil
	}
	return s.repo.MarkDelivery(ctx, source, deliveryID, eventType)
}

// ForgetDelivery lets a delivery that failed mid-processing be redelivered.
func (s *ProfileService) ForgetDelivery(ctx context.Context, source, deliveryID string) error {
	if deliveryID == "" {
		return nil
	}
	return s.repo.ForgetDelivery(ctx, source, deliveryID)
}
