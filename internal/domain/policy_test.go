package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPortfolioCapOverrides(t *testing.T) {
	g := DefaultGlobalPolicy()
	pct := func(v float64) *float64 { return &v }

	tests := []struct {
		name      string
		event     *float64
		month     *float64
		wantEvent float64
		wantMonth float64
	}{
		{"unset uses global", nil, nil, g.MaxParentAllocationPct, g.MaxMonthAllocationPct},
		{"override wins", pct(0.5), pct(0.1), 0.5, 0.1},
		{"zero falls back to global", pct(0), pct(0), g.MaxParentAllocationPct, g.MaxMonthAllocationPct},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mp := DefaultMarketPolicy()
			mp.MaxPerEventPct = tc.event
			mp.MaxPerMonthPct = tc.month
			assert.InDelta(t, tc.wantEvent, mp.EventCapPct(g), 1e-12)
			assert.InDelta(t, tc.wantMonth, mp.MonthCapPct(g), 1e-12)
		})
	}
}
