// Package finance estimates runway and financial health from monthly figures.
package finance

import "math"

type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthCaution  Health = "caution"
	HealthCritical Health = "critical"
)

const (
	healthyMonths = 12
	cautionMonths = 6
)

// Snapshot holds monthly amounts in cents.
type Snapshot struct {
	CashOnHand      int64 `json:"cashOnHand" binding:"min=0"`
	MonthlyExpenses int64 `json:"monthlyExpenses" binding:"min=0"`
	MonthlyRevenue  int64 `json:"monthlyRevenue" binding:"min=0"`
}

type Report struct {
	NetBurn      int64   `json:"netBurn"`
	RunwayMonths float64 `json:"runwayMonths"`
	Profitable   bool    `json:"profitable"`
	Health       Health  `json:"health"`
}

// Evaluate computes runway and health. A profitable business has infinite
// runway, reported as RunwayMonths = -1 since JSON cannot encode +Inf.
func Evaluate(s Snapshot) Report {
	burn := s.MonthlyExpenses - s.MonthlyRevenue
	if burn <= 0 {
		return Report{NetBurn: burn, RunwayMonths: -1, Profitable: true, Health: HealthHealthy}
	}

	months := math.Round(float64(s.CashOnHand)/float64(burn)*10) / 10
	return Report{
		NetBurn:      burn,
		RunwayMonths: months,
		Health:       healthFor(months),
	}
}

func healthFor(months float64) Health {
	switch {
	case months >= healthyMonths:
		return HealthHealthy
	case months >= cautionMonths:
		return HealthCaution
	default:
		return HealthCritical
	}
}

// GrowthPct is the percentage change from previous to current. A zero
// previous period yields 0.
func GrowthPct(previous, current int64) float64 {
	if previous == 0 {
		return 0
	}
	return math.Round(float64(current-previous)/float64(previous)*100*100) / 100
}
