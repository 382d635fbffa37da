package finance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		in   Snapshot
		want Report
	}{
		{
			name: "profitable",
			in:   Snapshot{CashOnHand: 1000, MonthlyExpenses: 500, MonthlyRevenue: 800},
			want: Report{NetBurn: -300, RunwayMonths: -1, Profitable: true, Health: HealthHealthy},
		},
		{
			name: "break even counts as profitable",
			in:   Snapshot{CashOnHand: 0, MonthlyExpenses: 500, MonthlyRevenue: 500},
			want: Report{NetBurn: 0, RunwayMonths: -1, Profitable: true, Health: HealthHealthy},
		},
		{
			name: "long runway",
			in:   Snapshot{CashOnHand: 2_400_000, MonthlyExpenses: 300_000, MonthlyRevenue: 100_000},
			want: Report{NetBurn: 200_000, RunwayMonths: 12, Health: HealthHealthy},
		},
		{
			name: "caution",
			in:   Snapshot{CashOnHand: 1_000_000, MonthlyExpenses: 150_000},
			want: Report{NetBurn: 150_000, RunwayMonths: 6.7, Health: HealthCaution},
		},
		{
			name: "critical",
			in:   Snapshot{CashOnHand: 100_000, MonthlyExpenses: 60_000},
			want: Report{NetBurn: 60_000, RunwayMonths: 1.7, Health: HealthCritical},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.in))
		})
	}
}

func TestGrowthPct(t *testing.T) {
	assert.Equal(t, 0.0, GrowthPct(0, 500))
	assert.Equal(t, 50.0, GrowthPct(1000, 1500))
	assert.Equal(t, -25.0, GrowthPct(400, 300))
	assert.Equal(t, 33.33, GrowthPct(300, 400))
}
