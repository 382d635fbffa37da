package waitlist

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/shiploop/shiploop-api/internal/errors"
	"github.com/shiploop/shiploop-api/internal/monitoring"
)

const defaultSource = "landing"

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// JoinResult is the outcome of a signup.
type JoinResult struct {
	Position      int
	AlreadyExists bool
}

// Service validates signups in front of a Store.
type Service struct {
	store   Store
	metrics *monitoring.Metrics
	now     func() time.Time
}

func NewService(store Store, metrics *monitoring.Metrics) *Service {
	return &Service{
		store:   store,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidEmail(email string) bool {
	return len(email) <= 254 && emailPattern.MatchString(email)
}

func (s *Service) Join(ctx context.Context, email, source string) (JoinResult, error) {
	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		return JoinResult{}, errors.NewValidationError("Invalid email address")
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = defaultSource
	}

	pos, created, err := s.store.Add(ctx, Entry{Email: email, JoinedAt: s.now(), Source: source})
	if err != nil {
		return JoinResult{}, errors.NewInternalError("failed to join waitlist", err)
	}
	if created && s.metrics != nil {
		s.metrics.IncrementWaitlistSignup()
	}
	return JoinResult{Position: pos, AlreadyExists: !created}, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

func (s *Service) List(ctx context.Context, invited *bool) ([]Entry, error) {
	return s.store.List(ctx, invited)
}

// Invite stamps the given emails as invited and returns how many changed.
func (s *Service) Invite(ctx context.Context, emails []string) (int, error) {
	normalized := make([]string, 0, len(emails))
	for _, e := range emails {
		if e = NormalizeEmail(e); e != "" {
			normalized = append(normalized, e)
		}
	}
	if len(normalized) == 0 {
		return 0, errors.NewValidationError("emails must not be empty")
	}
	return s.store.MarkInvited(ctx, normalized, s.now())
}
