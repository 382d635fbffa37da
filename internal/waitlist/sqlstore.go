package waitlist

import (
	"context"
	"time"

	"github.com/shiploop/shiploop-api/internal/database"
)

// SQLStore keeps the waitlist in the sqlite database.
type SQLStore struct {
	repo *database.Repository
}

func NewSQLStore(repo *database.Repository) *SQLStore {
	return &SQLStore{repo: repo}
}

func (s *SQLStore) Add(ctx context.Context, e Entry) (int, bool, error) {
	created, err := s.repo.AddWaitlist(ctx, database.WaitlistEntry{
		Email:    e.Email,
		Source:   e.Source,
		JoinedAt: e.JoinedAt,
	})
	if err != nil {
		return 0, false, err
	}
	pos, err := s.repo.WaitlistPosition(ctx, e.Email)
	if err != nil {
		return 0, false, err
	}
	return pos, created, nil
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	return s.repo.CountWaitlist(ctx)
}

func (s *SQLStore) List(ctx context.Context, invited *bool) ([]Entry, error) {
	rows, err := s.repo.ListWaitlist(ctx, invited)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Entry{
			Email:     r.Email,
			JoinedAt:  r.JoinedAt,
			Source:    r.Source,
			InvitedAt: r.InvitedAt,
		})
	}
	return out, nil
}

func (s *SQLStore) MarkInvited(ctx context.Context, emails []string, at time.Time) (int, error) {
	return s.repo.MarkInvited(ctx, emails, at)
}
