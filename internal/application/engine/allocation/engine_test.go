package allocation_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/polyrotate/internal/application/engine/allocation"
	"github.com/alejandrodnm/polyrotate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evaluateFixture(t *testing.T) (*allocation.Engine, *domain.RuntimeState) {
	t.Helper()
	p := autoBuyPolicy()
	disabled := autoBuyMarket()
	disabled.Enabled = false
	p.Markets["disabled"] = disabled
	strict := autoBuyMarket()
	strict.MinG = 0.5
	p.Markets["lowg"] = strict

	s := domain.NewRuntimeState(10000, "")
	addMarket(t, s, "good", "e1", 10, asks(0.40, 1000), bids(0.39, 1000))
	addMarket(t, s, "disabled", "e2", 10, asks(0.40, 1000), nil)
	addMarket(t, s, "noask", "e3", 10, nil, bids(0.2, 10))
	addMarket(t, s, "better", "e4", 10, asks(0.30, 50, 0.31, 1000), nil)
	addMarket(t, s, "pricey", "e5", 10, asks(0.95, 1000), nil)
	addMarket(t, s, "far", "e6", 200, asks(0.40, 1000), nil)
	addMarket(t, s, "lowg", "e7", 10, asks(0.40, 1000), nil)
	return newEngine(p), s
}

func TestEvaluate_RanksEligibleByG(t *testing.T) {
	e, s := evaluateFixture(t)

	rec := e.Evaluate(s)

	require.Len(t, rec.Opportunities, 7)
	assert.Equal(t, "better", rec.Opportunities[0].MarketID)
	assert.Equal(t, 1, rec.Opportunities[0].Rank)
	assert.Equal(t, "good", rec.Opportunities[1].MarketID)
	assert.Equal(t, 2, rec.Opportunities[1].Rank)
	for _, o := range rec.Opportunities[2:] {
		assert.Equal(t, domain.StatusBlocked, o.Status, o.MarketID)
		assert.Zero(t, o.Rank, o.MarketID)
	}
	assert.Equal(t, testNow, rec.Timestamp)
	assert.Empty(t, rec.Buys)
}

func TestEvaluate_BlockedReasons(t *testing.T) {
	e, s := evaluateFixture(t)

	rec := e.Evaluate(s)

	want := map[string]domain.Reason{
		"disabled": domain.ReasonDisabled,
		"noask":    domain.ReasonMissingBestAsk,
		"pricey":   domain.ReasonPriceBounds,
		"far":      domain.ReasonDayBounds,
		"lowg":     domain.ReasonMinG,
	}
	require.Len(t, rec.Rejections, len(want))
	for id, reason := range want {
		r, ok := findRejection(rec, id)
		require.True(t, ok, id)
		assert.Equal(t, []domain.Reason{reason}, r.Reasons, id)
	}

	r, _ := findRejection(rec, "lowg")
	assert.InDelta(t, 0.5, r.Details["min_g"], 1e-12)
	assert.InDelta(t, 0.40, r.Details["best_ask"], 1e-12)

	r, _ = findRejection(rec, "noask")
	assert.Nil(t, r.Details["best_ask"])
	assert.Nil(t, r.G)
}

func TestEvaluate_Idempotent(t *testing.T) {
	e, s := evaluateFixture(t)

	first := e.Evaluate(s)
	second := e.Evaluate(s)

	assert.Equal(t, first.Opportunities, second.Opportunities)
	assert.Equal(t, first.Rejections, second.Rejections)
}

func TestEvaluate_CapacityUsesTopAskLevelOnly(t *testing.T) {
	e, s := evaluateFixture(t)

	rec := e.Evaluate(s)

	o, ok := findOpportunity(rec, "better")
	require.True(t, ok)
	assert.InDelta(t, 0.30*50, o.CapacityValue, 1e-9)
}

func TestEvaluate_StaleQuoteIsBlocked(t *testing.T) {
	s := domain.NewRuntimeState(10000, "")
	m := addMarket(t, s, "old", "e1", 10, asks(0.40, 1000), nil)
	m.LastFetch = testNow.Add(-10 * time.Minute)
	e := newEngine(autoBuyPolicy(), allocation.WithStaleAfter(5*time.Minute))

	rec := e.Evaluate(s)

	r, ok := findRejection(rec, "old")
	require.True(t, ok)
	assert.Equal(t, []domain.Reason{domain.ReasonStaleQuote}, r.Reasons)
}

func TestEvaluate_EmptyState(t *testing.T) {
	e := newEngine(nil)
	rec := e.Evaluate(domain.NewRuntimeState(100, ""))
	require.NotNil(t, rec)
	assert.Empty(t, rec.Opportunities)
}
