// Package breaker congela el auto-buy de mercados cuyo precio se desploma o
// cuyo volumen se dispara de un snapshot al siguiente.
//
// Per market key the machine is Normal -> Frozen -> Normal: a tripped check
// writes a FreezeStatus into the RuntimeState and the freeze expires on its
// own at Until. Nothing here ever sells.
package breaker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyrotate/internal/application/engine"
	"github.com/alejandrodnm/polyrotate/internal/domain"
)

// Trip is a freeze raised during one EvaluateAll pass.
type Trip struct {
	Key    string
	Freeze domain.FreezeStatus
}

// Evaluator runs the price-drop and volume-spike checks.
type Evaluator struct {
	policy *domain.Policy
	now    engine.Clock
}

// New crea un Evaluator. A nil clock means the system clock.
func New(policy *domain.Policy, now engine.Clock) *Evaluator {
	if policy == nil {
		policy = domain.DefaultPolicy()
	}
	if now == nil {
		now = engine.SystemClock
	}
	return &Evaluator{policy: policy, now: now}
}

// EvaluateAll checks every tracked market and stores the freezes it raises.
// It should run after quotes are applied and before the allocation engine.
func (ev *Evaluator) EvaluateAll(state *domain.RuntimeState) []Trip {
	now := ev.now().UTC()
	var trips []Trip
	for _, m := range state.Markets() {
		f, tripped := ev.Check(m, now)
		if !tripped {
			continue
		}
		state.SetFreeze(m.Key(), f)
		trips = append(trips, Trip{Key: m.Key(), Freeze: f})
		slog.Warn("breaker: market frozen",
			"market", engine.TruncateStr(m.Question, 40),
			"key", m.Key(),
			"reason", f.Reason,
			"until", f.Until.Format(time.RFC3339),
			"details", fmt.Sprintf("%v", f.Details),
		)
	}
	return trips
}

// Check evaluates one market at now. The price-drop check wins when both trip.
func (ev *Evaluator) Check(m *domain.MarketState, now time.Time) (domain.FreezeStatus, bool) {
	mp := ev.policy.ForMarket(m.MarketID)
	gp := ev.policy.Global
	until := now.Add(mp.RecoveryWait(gp))

	if mp.AutoBuyDropFreeze && !mp.WhitelistAutoBuy && m.BestAsk > 0 {
		if drop, ok := priceDrop(m, now.Add(-mp.DropWindow(gp))); ok && drop >= mp.DropThresholdPct(gp) {
			return domain.FreezeStatus{
				Reason:  domain.FreezePriceDrop,
				Since:   now,
				Until:   until,
				Details: map[string]float64{"drop_pct": drop},
			}, true
		}
	}

	multiplier := gp.CircuitBreakers.VolumeSpikeMultiplier
	if ratio, ok := volumeRatio(m); ok && multiplier > 0 && ratio >= multiplier {
		return domain.FreezeStatus{
			Reason:  domain.FreezeVolumeSpike,
			Since:   now,
			Until:   until,
			Details: map[string]float64{"volume_ratio": ratio},
		}, true
	}
	return domain.FreezeStatus{}, false
}

// priceDrop is the percentage fall from the oldest ask sample at or after
// windowStart to the current best ask.
func priceDrop(m *domain.MarketState, windowStart time.Time) (float64, bool) {
	for _, s := range m.PriceHistory {
		if s.Timestamp.Before(windowStart) {
			continue
		}
		if s.BestAsk <= 0 {
			return 0, false
		}
		return (s.BestAsk - m.BestAsk) / s.BestAsk * 100, true
	}
	return 0, false
}

// volumeRatio compares the latest volume with the sample just before it.
func volumeRatio(m *domain.MarketState) (float64, bool) {
	n := len(m.PriceHistory)
	if m.LastVolume <= 0 || n < 2 {
		return 0, false
	}
	prev := m.PriceHistory[n-2].Volume
	if prev <= 0 {
		return 0, false
	}
	return m.LastVolume / prev, true
}
