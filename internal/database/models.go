package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/shiploop/shiploop-api/internal/score"
)

// Profile is a ShipLoop account.
type Profile struct {
	ID              string    `json:"id" db:"id"`
	Email           string    `json:"email" db:"email"`
	Name            string    `json:"name" db:"name"`
	GitHubLogin     string    `json:"githubLogin,omitempty" db:"github_login"`
	StripeAccountID string    `json:"-" db:"stripe_account_id"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}

// ProfileStreak pairs a profile's contact details with its streak, for reminders.
type ProfileStreak struct {
	ProfileID string       `json:"profileId"`
	Email     string       `json:"email"`
	Name      string       `json:"name"`
	Streak    score.Streak `json:"streak"`
}

// RankedProfile is one leaderboard row.
type RankedProfile struct {
	Position  int             `json:"position"`
	ProfileID string          `json:"profileId"`
	Name      string          `json:"name"`
	Total     int             `json:"total"`
	Breakdown score.Breakdown `json:"breakdown"`
	Streak    int             `json:"currentStreak"`
}

// RevenueEvent is a payment attributed to a profile's connected Stripe account.
type RevenueEvent struct {
	ID         string    `json:"id" db:"id"`
	ProfileID  string    `json:"profileId" db:"profile_id"`
	ExternalID string    `json:"externalId" db:"external_id"`
	Amount     int64     `json:"amount" db:"amount"` // cents
	Currency   string    `json:"currency" db:"currency"`
	OccurredAt time.Time `json:"occurredAt" db:"occurred_at"`
}

// WaitlistEntry is a waitlist signup stored in sqlite.
type WaitlistEntry struct {
	Email     string     `json:"email" db:"email"`
	Source    string     `json:"source" db:"source"`
	JoinedAt  time.Time  `json:"joinedAt" db:"joined_at"`
	InvitedAt *time.Time `json:"invitedAt,omitempty" db:"invited_at"`
}

// NewProfile creates a profile with a generated ID
func NewProfile(email, name, githubLogin string) *Profile {
	now := time.Now().UTC()
	return &Profile{
		ID:          uuid.New().String(),
		Email:       email,
		Name:        name,
		GitHubLogin: githubLogin,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func newID() string {
	return uuid.New().String()
}
