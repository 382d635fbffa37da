package score

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrementFromZero(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	for n := 1; n <= 10; n++ {
		s := Streak{}
		for i := 0; i < n; i++ {
			s = s.Increment(now)
		}
		assert.Equal(t, n, s.CurrentStreak)
		assert.Equal(t, n, s.LongestStreak)
		assert.Equal(t, n >= OnFireThreshold, s.IsOnFire, "n=%d", n)
		assert.Equal(t, now, s.LastActivityDate)
	}
}

func TestIncrementKeepsLongest(t *testing.T) {
	s := Streak{CurrentStreak: 2, LongestStreak: 9}.Increment(time.Now())
	assert.Equal(t, 3, s.CurrentStreak)
	assert.Equal(t, 9, s.LongestStreak)
}

func TestRecordActivity(t *testing.T) {
	tr := NewTracker(time.UTC)
	day := func(d, h int) time.Time { return time.Date(2026, 5, d, h, 0, 0, 0, time.UTC) }

	s, changed := tr.RecordActivity(Streak{}, day(1, 10))
	require.True(t, changed)
	assert.Equal(t, 1, s.CurrentStreak)

	s, changed = tr.RecordActivity(s, day(1, 22))
	assert.False(t, changed, "same day does not count twice")
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, day(1, 22), s.LastActivityDate)

	s, changed = tr.RecordActivity(s, day(2, 0))
	assert.True(t, changed)
	assert.Equal(t, 2, s.CurrentStreak)

	s, _ = tr.RecordActivity(s, day(5, 8))
	assert.Equal(t, 1, s.CurrentStreak, "gap restarts the streak")
	assert.Equal(t, 2, s.LongestStreak)
}

func TestTrackerUsesCalendarDaysInLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	tr := NewTracker(ny)

	// 23:00 and 01:00 UTC the next day are the same evening in New York.
	first := time.Date(2026, 6, 10, 23, 0, 0, 0, time.UTC)
	second := time.Date(2026, 6, 11, 1, 0, 0, 0, time.UTC)

	s, _ := tr.RecordActivity(Streak{}, first)
	s, changed := tr.RecordActivity(s, second)
	assert.False(t, changed)
	assert.Equal(t, 1, s.CurrentStreak)

	utc := NewTracker(nil)
	s, _ = utc.RecordActivity(Streak{}, first)
	s, changed = utc.RecordActivity(s, second)
	assert.True(t, changed)
	assert.Equal(t, 2, s.CurrentStreak)
}

func TestEvaluateAndAtRisk(t *testing.T) {
	tr := NewTracker(time.UTC)
	last := time.Date(2026, 7, 1, 18, 0, 0, 0, time.UTC)
	s := Streak{CurrentStreak: 8, LongestStreak: 8, LastActivityDate: last, IsOnFire: true}

	kept, broken := tr.Evaluate(s, last.Add(20*time.Hour))
	assert.False(t, broken)
	assert.Equal(t, 8, kept.CurrentStreak)
	assert.True(t, tr.AtRisk(s, last.Add(20*time.Hour)))
	assert.False(t, tr.AtRisk(s, last.Add(time.Hour)))

	reset, broken := tr.Evaluate(s, last.Add(50*time.Hour))
	assert.True(t, broken)
	assert.Equal(t, 0, reset.CurrentStreak)
	assert.Equal(t, 8, reset.LongestStreak)
	assert.False(t, reset.IsOnFire)

	_, broken = tr.Evaluate(Streak{}, last)
	assert.False(t, broken)
}
