package domain

import "time"

// DefaultPolicyKey es la entrada de markets que aplica a mercados sin política propia.
const DefaultPolicyKey = "default"

// CircuitBreakerPolicy holds the global circuit-breaker parameters.
type CircuitBreakerPolicy struct {
	DropPct               float64 `yaml:"drop_pct" json:"drop_pct"`
	DropWindowMinutes     float64 `yaml:"drop_window_minutes" json:"drop_window_minutes"`
	RecoveryWaitHours     float64 `yaml:"recovery_wait_hours" json:"recovery_wait_hours"`
	VolumeSpikeMultiplier float64 `yaml:"volume_spike_multiplier" json:"volume_spike_multiplier"`
}

// GlobalPolicy contains the portfolio-wide thresholds and caps.
type GlobalPolicy struct {
	SettlementLambdaDays   float64              `yaml:"settlement_lambda_days" json:"settlement_lambda_days"`
	DeltaThreshold         float64              `yaml:"delta_threshold" json:"delta_threshold"`
	MinG                   float64              `yaml:"min_g" json:"min_g"`
	CashReservePct         float64              `yaml:"cash_reserve_pct" json:"cash_reserve_pct"`
	MaxParentAllocationPct float64              `yaml:"max_parent_allocation_pct" json:"max_parent_allocation_pct"`
	MaxMonthAllocationPct  float64              `yaml:"max_month_allocation_pct" json:"max_month_allocation_pct"`
	SlippageCapBps         float64              `yaml:"slippage_cap_bps" json:"slippage_cap_bps"`
	ExitSlippageCapBps     float64              `yaml:"exit_slippage_cap_bps" json:"exit_slippage_cap_bps"`
	CircuitBreakers        CircuitBreakerPolicy `yaml:"circuit_breakers" json:"circuit_breakers"`
}

// MarketPolicy is the per-market configuration. Nil pointer fields fall back
// to the global policy.
type MarketPolicy struct {
	Enabled           bool     `yaml:"enabled" json:"enabled"`
	Side              string   `yaml:"side" json:"side"`
	AutoBuy           bool     `yaml:"auto_buy" json:"auto_buy"`
	AutoSell          bool     `yaml:"auto_sell" json:"auto_sell"`
	MaxAllocationPct  float64  `yaml:"max_allocation_pct" json:"max_allocation_pct"`
	MaxNotional       float64  `yaml:"max_notional" json:"max_notional"`
	PerPassBuyCap     float64  `yaml:"per_pass_buy_cap" json:"per_pass_buy_cap"`
	MinPrice          float64  `yaml:"min_price" json:"min_price"`
	MaxPrice          float64  `yaml:"max_price" json:"max_price"`
	MinDays           float64  `yaml:"min_days" json:"min_days"`
	MaxDays           float64  `yaml:"max_days" json:"max_days"`
	MinG              float64  `yaml:"min_g" json:"min_g"`
	SlippageCapBps    *float64 `yaml:"slippage_cap_bps,omitempty" json:"slippage_cap_bps,omitempty"`
	ExitSlippageCap   *float64 `yaml:"exit_slippage_cap_bps,omitempty" json:"exit_slippage_cap_bps,omitempty"`
	DropFreezePct     float64  `yaml:"drop_freeze_pct" json:"drop_freeze_pct"`
	DropWindowMin     float64  `yaml:"drop_window_min" json:"drop_window_min"`
	RecoveryWaitHours float64  `yaml:"recovery_wait_hours" json:"recovery_wait_hours"`
	Priority          int      `yaml:"priority" json:"priority"`
	WhitelistAutoBuy  bool     `yaml:"whitelist_autobuy" json:"whitelist_autobuy"`
	MaxPerEventPct    *float64 `yaml:"max_per_event_pct,omitempty" json:"max_per_event_pct,omitempty"`
	MaxPerMonthPct    *float64 `yaml:"max_per_month_pct,omitempty" json:"max_per_month_pct,omitempty"`
	AutoBuyDropFreeze bool     `yaml:"auto_buy_drop_freeze" json:"auto_buy_drop_freeze"`
}

// DefaultGlobalPolicy devuelve los valores por defecto del simulador.
func DefaultGlobalPolicy() GlobalPolicy {
	return GlobalPolicy{
		SettlementLambdaDays:   1.0,
		DeltaThreshold:         0.0002,
		MinG:                   0.0008,
		CashReservePct:         0.07,
		MaxParentAllocationPct: 0.20,
		MaxMonthAllocationPct:  0.35,
		SlippageCapBps:         40,
		ExitSlippageCapBps:     40,
		CircuitBreakers: CircuitBreakerPolicy{
			DropPct:               20,
			DropWindowMinutes:     15,
			RecoveryWaitHours:     3,
			VolumeSpikeMultiplier: 3.0,
		},
	}
}

// DefaultMarketPolicy devuelve la política conservadora: auto-buy apagado.
func DefaultMarketPolicy() MarketPolicy {
	return MarketPolicy{
		Enabled:           true,
		Side:              "yes",
		AutoBuy:           false,
		AutoSell:          true,
		MaxAllocationPct:  0.20,
		MaxNotional:       15000,
		PerPassBuyCap:     3000,
		MinPrice:          0.02,
		MaxPrice:          0.90,
		MinDays:           1,
		MaxDays:           120,
		MinG:              0.0008,
		DropFreezePct:     20,
		DropWindowMin:     15,
		RecoveryWaitHours: 3,
		Priority:          3,
		AutoBuyDropFreeze: true,
	}
}

// EffectiveSlippageCap is the entry slippage cap in bps.
func (p MarketPolicy) EffectiveSlippageCap(g GlobalPolicy) float64 {
	if p.SlippageCapBps != nil {
		return *p.SlippageCapBps
	}
	return g.SlippageCapBps
}

// EffectiveExitSlippageCap is the exit slippage cap in bps.
func (p MarketPolicy) EffectiveExitSlippageCap(g GlobalPolicy) float64 {
	if p.ExitSlippageCap != nil {
		return *p.ExitSlippageCap
	}
	return g.ExitSlippageCapBps
}

// EventCapPct is the max fraction of the budget in this market's parent event.
// An override of 0 or less falls back to the global cap.
func (p MarketPolicy) EventCapPct(g GlobalPolicy) float64 {
	if p.MaxPerEventPct != nil && *p.MaxPerEventPct > 0 {
		return *p.MaxPerEventPct
	}
	return g.MaxParentAllocationPct
}

// MonthCapPct is the max fraction of the budget resolving in this market's month.
// Igual que EventCapPct, 0 means "use global".
func (p MarketPolicy) MonthCapPct(g GlobalPolicy) float64 {
	if p.MaxPerMonthPct != nil && *p.MaxPerMonthPct > 0 {
		return *p.MaxPerMonthPct
	}
	return g.MaxMonthAllocationPct
}

// MinGFloor is the stricter of the market and global g floors.
func (p MarketPolicy) MinGFloor(g GlobalPolicy) float64 {
	return max(p.MinG, g.MinG)
}

// DropWindow is the price-drop lookback, falling back to the global window.
func (p MarketPolicy) DropWindow(g GlobalPolicy) time.Duration {
	minutes := p.DropWindowMin
	if minutes <= 0 {
		minutes = g.CircuitBreakers.DropWindowMinutes
	}
	return time.Duration(minutes * float64(time.Minute))
}

// DropThresholdPct is the price drop that trips the breaker.
func (p MarketPolicy) DropThresholdPct(g GlobalPolicy) float64 {
	if p.DropFreezePct > 0 {
		return p.DropFreezePct
	}
	return g.CircuitBreakers.DropPct
}

// RecoveryWait is how long a freeze lasts once tripped.
func (p MarketPolicy) RecoveryWait(g GlobalPolicy) time.Duration {
	hours := p.RecoveryWaitHours
	if hours <= 0 {
		hours = g.CircuitBreakers.RecoveryWaitHours
	}
	return time.Duration(hours * float64(time.Hour))
}

// Policy is the resolved, read-only policy set for one evaluation cycle.
type Policy struct {
	Global  GlobalPolicy
	Markets map[string]MarketPolicy
}

// DefaultPolicy devuelve un Policy con la entrada "default".
func DefaultPolicy() *Policy {
	return &Policy{
		Global:  DefaultGlobalPolicy(),
		Markets: map[string]MarketPolicy{DefaultPolicyKey: DefaultMarketPolicy()},
	}
}

// ForMarket returns the policy of marketID, else the "default" entry, else
// the built-in defaults.
func (p *Policy) ForMarket(marketID string) MarketPolicy {
	if mp, ok := p.Markets[marketID]; ok {
		return mp
	}
	if mp, ok := p.Markets[DefaultPolicyKey]; ok {
		return mp
	}
	return DefaultMarketPolicy()
}
