package breaker_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/polyrotate/internal/application/engine/breaker"
	"github.com/alejandrodnm/polyrotate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func quote(ask, volume float64) domain.Quote {
	return domain.Quote{
		Volume: volume,
		Book: domain.OrderBook{
			Asks: []domain.BookEntry{{Price: ask, Size: 1000}},
			Bids: []domain.BookEntry{{Price: ask - 0.01, Size: 1000}},
		},
	}
}

func tracked(t *testing.T) (*domain.RuntimeState, *domain.MarketState) {
	t.Helper()
	s := domain.NewRuntimeState(1000, "")
	m := domain.NewMarketState("m1", "Yes")
	m.ResolutionTime = t0.Add(30 * 24 * time.Hour)
	require.NoError(t, s.AddMarket(m))
	return s, m
}

func TestEvaluateAll_PriceDropFreezes(t *testing.T) {
	s, m := tracked(t)
	m.ApplyQuote(quote(0.50, 0), t0.Add(-10*time.Minute))
	m.ApplyQuote(quote(0.45, 0), t0.Add(-5*time.Minute))
	m.ApplyQuote(quote(0.39, 0), t0)

	ev := breaker.New(domain.DefaultPolicy(), func() time.Time { return t0 })
	trips := ev.EvaluateAll(s)

	require.Len(t, trips, 1)
	f := trips[0].Freeze
	assert.Equal(t, domain.FreezePriceDrop, f.Reason)
	assert.InDelta(t, 22.0, f.Details["drop_pct"], 1e-9)
	assert.Equal(t, t0, f.Since)
	assert.Equal(t, t0.Add(3*time.Hour), f.Until)
	assert.Equal(t, "freeze:price_drop", s.FreezeLabel(m.Key(), t0))
}

func TestEvaluateAll_SamplesOutsideWindowAreIgnored(t *testing.T) {
	s, m := tracked(t)
	m.ApplyQuote(quote(0.80, 0), t0.Add(-time.Hour))
	m.ApplyQuote(quote(0.45, 0), t0.Add(-5*time.Minute))
	m.ApplyQuote(quote(0.40, 0), t0)

	trips := breaker.New(domain.DefaultPolicy(), func() time.Time { return t0 }).EvaluateAll(s)

	assert.Empty(t, trips)
	assert.Empty(t, s.FreezeLabel(m.Key(), t0))
}

func TestCheck_DropBelowThreshold(t *testing.T) {
	_, m := tracked(t)
	m.ApplyQuote(quote(0.50, 0), t0.Add(-time.Minute))
	m.ApplyQuote(quote(0.41, 0), t0)

	_, tripped := breaker.New(nil, nil).Check(m, t0)

	assert.False(t, tripped)
}

func TestCheck_WhitelistSkipsPriceDrop(t *testing.T) {
	p := domain.DefaultPolicy()
	mp := domain.DefaultMarketPolicy()
	mp.WhitelistAutoBuy = true
	p.Markets["m1"] = mp

	_, m := tracked(t)
	m.ApplyQuote(quote(0.50, 0), t0.Add(-time.Minute))
	m.ApplyQuote(quote(0.20, 0), t0)

	_, tripped := breaker.New(p, nil).Check(m, t0)

	assert.False(t, tripped)
}

func TestCheck_PerMarketThresholdAndRecovery(t *testing.T) {
	p := domain.DefaultPolicy()
	mp := domain.DefaultMarketPolicy()
	mp.DropFreezePct = 5
	mp.RecoveryWaitHours = 1
	p.Markets["m1"] = mp

	_, m := tracked(t)
	m.ApplyQuote(quote(0.50, 0), t0.Add(-time.Minute))
	m.ApplyQuote(quote(0.47, 0), t0)

	f, tripped := breaker.New(p, nil).Check(m, t0)

	require.True(t, tripped)
	assert.Equal(t, t0.Add(time.Hour), f.Until)
}

func TestCheck_VolumeSpike(t *testing.T) {
	_, m := tracked(t)
	m.ApplyQuote(quote(0.50, 1000), t0.Add(-time.Minute))
	m.ApplyQuote(quote(0.50, 3500), t0)

	f, tripped := breaker.New(nil, nil).Check(m, t0)

	require.True(t, tripped)
	assert.Equal(t, domain.FreezeVolumeSpike, f.Reason)
	assert.InDelta(t, 3.5, f.Details["volume_ratio"], 1e-12)
}

func TestCheck_VolumeSpikeNeedsPreviousVolume(t *testing.T) {
	_, m := tracked(t)
	m.ApplyQuote(quote(0.50, 0), t0.Add(-time.Minute))
	m.ApplyQuote(quote(0.50, 9000), t0)

	_, tripped := breaker.New(nil, nil).Check(m, t0)

	assert.False(t, tripped)
}

func TestFreeze_ExpiresAtUntil(t *testing.T) {
	s, m := tracked(t)
	s.SetFreeze(m.Key(), domain.FreezeStatus{
		Reason: domain.FreezeVolumeSpike,
		Since:  t0,
		Until:  t0.Add(3 * time.Hour),
	})

	assert.Equal(t, "freeze:volume_spike", s.FreezeLabel(m.Key(), t0.Add(2*time.Hour)))
	assert.Empty(t, s.FreezeLabel(m.Key(), t0.Add(3*time.Hour)))
	assert.Empty(t, s.ActiveFreezes)
}
