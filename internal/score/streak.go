package score

import "time"

// OnFireThreshold is the streak length at which a user is "on fire".
const OnFireThreshold = 7

type Streak struct {
	CurrentStreak    int       `json:"currentStreak"`
	LongestStreak    int       `json:"longestStreak"`
	LastActivityDate time.Time `json:"lastActivityDate"`
	IsOnFire         bool      `json:"isOnFire"`
}

// Increment counts one more qualifying day ending at now.
func (s Streak) Increment(now time.Time) Streak {
	next := s.CurrentStreak + 1
	return Streak{
		CurrentStreak:    next,
		LongestStreak:    max(s.LongestStreak, next),
		LastActivityDate: now,
		IsOnFire:         next >= OnFireThreshold,
	}
}

// Reset breaks the streak. The longest streak is kept.
func (s Streak) Reset() Streak {
	s.CurrentStreak = 0
	s.IsOnFire = false
	return s
}

// Tracker applies streak transitions on calendar days in a fixed location.
type Tracker struct {
	loc *time.Location
}

func NewTracker(loc *time.Location) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{loc: loc}
}

func (t *Tracker) Location() *time.Location { return t.loc }

// daysBetween counts calendar-day boundaries between a and b in the tracker's location.
func (t *Tracker) daysBetween(a, b time.Time) int {
	ay, am, ad := a.In(t.loc).Date()
	by, bm, bd := b.In(t.loc).Date()
	// Dates are normalised to UTC midnight so DST shifts cannot skew the division.
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// RecordActivity registers qualifying activity at now.
//
// Activity on the same day as the last one only refreshes the timestamp; the
// next calendar day extends the streak; any longer gap restarts it at 1.
func (t *Tracker) RecordActivity(s Streak, now time.Time) (Streak, bool) {
	if s.LastActivityDate.IsZero() || s.CurrentStreak == 0 {
		return s.Reset().Increment(now), true
	}

	switch days := t.daysBetween(s.LastActivityDate, now); {
	case days <= 0:
		s.LastActivityDate = now
		return s, false
	case days == 1:
		return s.Increment(now), true
	default:
		return s.Reset().Increment(now), true
	}
}

// Evaluate resets a streak whose last activity is older than yesterday.
// It reports whether the streak was broken.
func (t *Tracker) Evaluate(s Streak, now time.Time) (Streak, bool) {
	if s.CurrentStreak == 0 || s.LastActivityDate.IsZero() {
		return s, false
	}
	if t.daysBetween(s.LastActivityDate, now) > 1 {
		return s.Reset(), true
	}
	return s, false
}

// AtRisk reports whether the streak is alive but has no activity today.
func (t *Tracker) AtRisk(s Streak, now time.Time) bool {
	return s.CurrentStreak > 0 && t.daysBetween(s.LastActivityDate, now) == 1
}
