package leaderboard

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Summary describes the distribution of all ranked totals.
type Summary struct {
	MedianScore float64 `json:"medianScore"`
	P90Score    float64 `json:"p90Score"`
}

func summarize(totals []int) Summary {
	if len(totals) == 0 {
		return Summary{}
	}
	data := stats.LoadRawData(totals)

	median, err := stats.Median(data)
	if err != nil {
		return Summary{}
	}
	p90, err := stats.Percentile(data, 90)
	if err != nil {
		p90 = median
	}
	return Summary{
		MedianScore: round1(median),
		P90Score:    round1(p90),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
