package score

import "time"

const (
	// MaxSubScore is the ceiling of each breakdown category.
	MaxSubScore = 25
	// MaxTotal is the ceiling of a ship score.
	MaxTotal = 4 * MaxSubScore
)

// SubScore is a breakdown category value, always within [0, MaxSubScore].
type SubScore int

// NewSubScore clamps v into the valid sub-score range.
func NewSubScore(v int) SubScore {
	switch {
	case v < 0:
		return 0
	case v > MaxSubScore:
		return MaxSubScore
	default:
		return SubScore(v)
	}
}

func (s SubScore) Int() int { return int(s) }

type Breakdown struct {
	Commits  SubScore `json:"commits"`
	Launches SubScore `json:"launches"`
	Revenue  SubScore `json:"revenue"`
	Growth   SubScore `json:"growth"`
}

// NewBreakdown builds a breakdown from raw values, clamping each one.
func NewBreakdown(commits, launches, revenue, growth int) Breakdown {
	return Breakdown{
		Commits:  NewSubScore(commits),
		Launches: NewSubScore(launches),
		Revenue:  NewSubScore(revenue),
		Growth:   NewSubScore(growth),
	}
}

// Total sums the four categories.
func (b Breakdown) Total() int {
	return Aggregate(b)
}

// Aggregate returns commits+launches+revenue+growth, in [0, MaxTotal].
func Aggregate(b Breakdown) int {
	return int(b.Commits) + int(b.Launches) + int(b.Revenue) + int(b.Growth)
}

// BreakdownPatch is a partial breakdown update. Nil fields are left unchanged.
type BreakdownPatch struct {
	Commits  *int `json:"commits,omitempty"`
	Launches *int `json:"launches,omitempty"`
	Revenue  *int `json:"revenue,omitempty"`
	Growth   *int `json:"growth,omitempty"`
}

// Apply returns b with the patch's fields merged in.
func (p BreakdownPatch) Apply(b Breakdown) Breakdown {
	if p.Commits != nil {
		b.Commits = NewSubScore(*p.Commits)
	}
	if p.Launches != nil {
		b.Launches = NewSubScore(*p.Launches)
	}
	if p.Revenue != nil {
		b.Revenue = NewSubScore(*p.Revenue)
	}
	if p.Growth != nil {
		b.Growth = NewSubScore(*p.Growth)
	}
	return b
}

func (p BreakdownPatch) Empty() bool {
	return p.Commits == nil && p.Launches == nil && p.Revenue == nil && p.Growth == nil
}

// ShipScore is a user's gamified activity score. Total is derived from
// Breakdown and is never set on its own.
type ShipScore struct {
	Total       int       `json:"total"`
	Breakdown   Breakdown `json:"breakdown"`
	Streak      Streak    `json:"streak"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// NewShipScore returns a score for the given breakdown and streak.
func NewShipScore(b Breakdown, s Streak, now time.Time) ShipScore {
	return ShipScore{
		Total:       b.Total(),
		Breakdown:   b,
		Streak:      s,
		LastUpdated: now,
	}
}

// WithBreakdown merges a partial update and recomputes the total.
func (s ShipScore) WithBreakdown(p BreakdownPatch, now time.Time) ShipScore {
	return NewShipScore(p.Apply(s.Breakdown), s.Streak, now)
}

// WithStreak replaces the streak, leaving the breakdown untouched.
func (s ShipScore) WithStreak(st Streak, now time.Time) ShipScore {
	return NewShipScore(s.Breakdown, st, now)
}
