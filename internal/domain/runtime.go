package domain

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

const (
	// RuntimeSchemaVersion is written into every persisted RuntimeState document.
	RuntimeSchemaVersion = "1"

	// MaxTradeLog bounds the in-memory trade log; older entries are dropped.
	MaxTradeLog = 5000

	ModeDryRun = "dry_run"
	ModeLive   = "live"
)

var (
	ErrMarketExists   = errors.New("market already tracked")
	ErrMarketNotFound = errors.New("market not tracked")
	ErrOpenPosition   = errors.New("market has an open position")
	ErrSchemaVersion  = errors.New("unsupported schema version")
)

// RuntimeState is the aggregate root the engine mutates each cycle.
// It is not safe for concurrent use: the poll loop owns it.
type RuntimeState struct {
	SchemaVersion    string                  `json:"schema_version"`
	Mode             string                  `json:"mode"`
	TotalBudget      float64                 `json:"total_budget"`
	CashBalance      float64                 `json:"cash_balance"`
	MarketStates     map[string]*MarketState `json:"markets"`
	StrategyPriority []string                `json:"strategy_priority"`
	ActiveFreezes    map[string]FreezeStatus `json:"active_freezes"`
	TradeLog         []TradeLogEntry         `json:"trade_log"`
	LastDecision     *DecisionRecord         `json:"last_decision,omitempty"`
}

// NewRuntimeState crea un estado vacío con todo el budget en cash.
func NewRuntimeState(totalBudget float64, mode string) *RuntimeState {
	if mode == "" {
		mode = ModeDryRun
	}
	return &RuntimeState{
		SchemaVersion: RuntimeSchemaVersion,
		Mode:          mode,
		TotalBudget:   totalBudget,
		CashBalance:   totalBudget,
		MarketStates:  make(map[string]*MarketState),
		ActiveFreezes: make(map[string]FreezeStatus),
	}
}

// Normalize repairs a decoded document: nil maps and a priority list that
// drifted from the market set.
func (s *RuntimeState) Normalize() {
	if s.SchemaVersion == "" {
		s.SchemaVersion = RuntimeSchemaVersion
	}
	if s.Mode == "" {
		s.Mode = ModeDryRun
	}
	if s.MarketStates == nil {
		s.MarketStates = make(map[string]*MarketState)
	}
	if s.ActiveFreezes == nil {
		s.ActiveFreezes = make(map[string]FreezeStatus)
	}

	seen := make(map[string]bool, len(s.StrategyPriority))
	order := s.StrategyPriority[:0]
	for _, key := range s.StrategyPriority {
		if _, ok := s.MarketStates[key]; ok && !seen[key] {
			order = append(order, key)
			seen[key] = true
		}
	}
	// Unlisted markets go last, in a stable order.
	var missing []string
	for key := range s.MarketStates {
		if !seen[key] {
			missing = append(missing, key)
		}
	}
	slices.Sort(missing)
	s.StrategyPriority = append(order, missing...)
}

// AddMarket starts tracking m.
func (s *RuntimeState) AddMarket(m *MarketState) error {
	key := m.Key()
	if _, ok := s.MarketStates[key]; ok {
		return fmt.Errorf("domain.AddMarket %q: %w", key, ErrMarketExists)
	}
	s.MarketStates[key] = m
	s.StrategyPriority = append(s.StrategyPriority, key)
	return nil
}

// RemoveMarket stops tracking key. Markets with shares cannot be removed.
func (s *RuntimeState) RemoveMarket(key string) error {
	m, ok := s.MarketStates[key]
	if !ok {
		return fmt.Errorf("domain.RemoveMarket %q: %w", key, ErrMarketNotFound)
	}
	if m.HasPosition() {
		return fmt.Errorf("domain.RemoveMarket %q (%.4f shares): %w", key, m.HeldShares, ErrOpenPosition)
	}
	delete(s.MarketStates, key)
	s.ClearFreeze(key)
	for i, k := range s.StrategyPriority {
		if k == key {
			s.StrategyPriority = append(s.StrategyPriority[:i], s.StrategyPriority[i+1:]...)
			break
		}
	}
	return nil
}

// Market devuelve el estado de key, o nil.
func (s *RuntimeState) Market(key string) *MarketState {
	return s.MarketStates[key]
}

// Markets returns every tracked market in strategy-priority order.
func (s *RuntimeState) Markets() []*MarketState {
	out := make([]*MarketState, 0, len(s.StrategyPriority))
	for _, key := range s.StrategyPriority {
		if m, ok := s.MarketStates[key]; ok {
			out = append(out, m)
		}
	}
	return out
}

// EngagedMarkets returns the markets with an open position.
func (s *RuntimeState) EngagedMarkets() []*MarketState {
	var out []*MarketState
	for _, m := range s.Markets() {
		if m.HasPosition() {
			out = append(out, m)
		}
	}
	return out
}

// AppendTrade adds entry to the trade log, dropping the oldest rows past MaxTradeLog.
func (s *RuntimeState) AppendTrade(entry TradeLogEntry) {
	s.TradeLog = append(s.TradeLog, entry)
	if n := len(s.TradeLog); n > MaxTradeLog {
		s.TradeLog = append([]TradeLogEntry(nil), s.TradeLog[n-MaxTradeLog:]...)
	}
}

// SetFreeze congela key hasta f.Until.
func (s *RuntimeState) SetFreeze(key string, f FreezeStatus) {
	s.ActiveFreezes[key] = f
}

// Freeze returns the active freeze of key. Expired freezes are removed.
func (s *RuntimeState) Freeze(key string, now time.Time) (FreezeStatus, bool) {
	f, ok := s.ActiveFreezes[key]
	if !ok {
		return FreezeStatus{}, false
	}
	if !f.IsActive(now) {
		s.ClearFreeze(key)
		return FreezeStatus{}, false
	}
	return f, true
}

// FreezeLabel is "freeze:<reason>" while key is frozen at now, else "".
func (s *RuntimeState) FreezeLabel(key string, now time.Time) string {
	f, ok := s.Freeze(key, now)
	if !ok {
		return ""
	}
	return string(FreezeReasonCode(f.Reason))
}

// ClearFreeze levanta el freeze de key, if any.
func (s *RuntimeState) ClearFreeze(key string) {
	delete(s.ActiveFreezes, key)
}

// InvestedTotal is the cost basis of every open position.
func (s *RuntimeState) InvestedTotal() float64 {
	var total float64
	for _, m := range s.MarketStates {
		total += m.InvestedAmount()
	}
	return total
}

// MarketValueTotal is the mark-to-market value of every open position.
func (s *RuntimeState) MarketValueTotal() float64 {
	var total float64
	for _, m := range s.MarketStates {
		total += m.MarketValue()
	}
	return total
}

// ExposuresByEvent sums market value per parent event.
func (s *RuntimeState) ExposuresByEvent() map[string]float64 {
	out := make(map[string]float64)
	for _, m := range s.MarketStates {
		out[m.ParentEventID] += m.MarketValue()
	}
	return out
}

// ExposuresByMonth sums market value per resolution month.
func (s *RuntimeState) ExposuresByMonth() map[string]float64 {
	out := make(map[string]float64)
	for _, m := range s.MarketStates {
		out[m.ResolutionMonth()] += m.MarketValue()
	}
	return out
}

// EnsureCash reconciles budget and cash after a load: a missing budget is
// derived from holdings, and empty cash is refilled from the uninvested budget.
func (s *RuntimeState) EnsureCash() {
	invested := s.InvestedTotal()
	if s.TotalBudget <= 0 {
		s.TotalBudget = invested + s.CashBalance
	}
	if s.CashBalance <= 0 && s.TotalBudget > invested {
		s.CashBalance = s.TotalBudget - invested
	}
}

// ResetSimulation closes every position and restarts with budget in cash.
// Tracked markets and their quotes are kept.
func (s *RuntimeState) ResetSimulation(budget float64) {
	s.TotalBudget = budget
	s.CashBalance = budget
	for _, m := range s.MarketStates {
		m.HeldShares = 0
		m.AveragePrice = 0
		m.RealizedProfit = 0
	}
	s.TradeLog = nil
	s.LastDecision = nil
	s.ActiveFreezes = make(map[string]FreezeStatus)
}

// MaxDataAge is the age of the oldest quote among tracked markets.
// Markets never fetched are ignored.
func (s *RuntimeState) MaxDataAge(now time.Time) time.Duration {
	var oldest time.Duration
	for _, m := range s.MarketStates {
		if m.LastFetch.IsZero() {
			continue
		}
		if age := now.Sub(m.LastFetch); age > oldest {
			oldest = age
		}
	}
	return oldest
}
