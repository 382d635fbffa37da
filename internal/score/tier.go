package score

import "math"

type Tier string

const (
	TierDiamond Tier = "diamond"
	TierGold    Tier = "gold"
	TierSilver  Tier = "silver"
	TierBronze  Tier = "bronze"
)

// TierFromPercentile maps a percentile (lower is better) to a tier.
func TierFromPercentile(percentile float64) Tier {
	switch {
	case percentile <= 5:
		return TierDiamond
	case percentile <= 15:
		return TierGold
	case percentile <= 35:
		return TierSilver
	default:
		return TierBronze
	}
}

type GlobalRank struct {
	Position   int     `json:"position"`
	TotalUsers int     `json:"totalUsers"`
	Percentile float64 `json:"percentile"`
	Tier       Tier    `json:"tier"`
}

// NewGlobalRank derives percentile and tier from a 1-based position.
func NewGlobalRank(position, totalUsers int) GlobalRank {
	percentile := 100.0
	if totalUsers > 0 && position > 0 {
		percentile = math.Round(float64(position)/float64(totalUsers)*100*100) / 100
	}
	return GlobalRank{
		Position:   position,
		TotalUsers: totalUsers,
		Percentile: percentile,
		Tier:       TierFromPercentile(percentile),
	}
}
