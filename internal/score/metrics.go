package score

// ActivityMetrics are the raw inputs collected from GitHub, Stripe and manual entry.
type ActivityMetrics struct {
	CommitsLast7Days   int     `json:"commitsLast7Days"`
	LaunchesLast30Days int     `json:"launchesLast30Days"`
	RevenueGrowthPct   float64 `json:"revenueGrowthPct"`
	UserGrowthPct      float64 `json:"userGrowthPct"`
}

const (
	commitsPerPoint   = 2
	pointsPerLaunch   = 10
	growthPctPerPoint = 2.0
)

// FromActivity converts raw metrics into a clamped breakdown.
func FromActivity(m ActivityMetrics) Breakdown {
	return NewBreakdown(
		m.CommitsLast7Days/commitsPerPoint,
		m.LaunchesLast30Days*pointsPerLaunch,
		int(m.RevenueGrowthPct/growthPctPerPoint),
		int(m.UserGrowthPct/growthPctPerPoint),
	)
}
