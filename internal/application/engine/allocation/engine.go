package allocation

// engine.go — evaluación y ranking de candidatos.
//
// Evaluate es de solo lectura: construye un Opportunity por mercado trackeado,
// lo marca blocked con un código de razón si falla algún filtro, y ordena
// eligible primero por g descendente. Execute (execute.go) consume ese ranking.

import (
	"sort"
	"time"

	"github.com/alejandrodnm/polyrotate/internal/application/engine"
	"github.com/alejandrodnm/polyrotate/internal/domain"
	"github.com/google/uuid"
)

// Engine decide compras y rotaciones a partir del RuntimeState y la política.
// It performs no I/O and must not run concurrently on the same state.
type Engine struct {
	policy     *domain.Policy
	now        engine.Clock
	newID      func() string
	staleAfter time.Duration
}

// Option configura un Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now engine.Clock) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides how trade-log ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithStaleAfter blocks markets whose last quote is older than d. Zero disables the check.
func WithStaleAfter(d time.Duration) Option {
	return func(e *Engine) { e.staleAfter = d }
}

// New crea un Engine sobre la política dada.
func New(policy *domain.Policy, opts ...Option) *Engine {
	if policy == nil {
		policy = domain.DefaultPolicy()
	}
	e := &Engine{
		policy: policy,
		now:    engine.SystemClock,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy devuelve la política con la que decide el engine.
func (e *Engine) Policy() *domain.Policy {
	return e.policy
}

// Evaluate ranks every tracked market without mutating state.
func (e *Engine) Evaluate(state *domain.RuntimeState) *domain.DecisionRecord {
	now := e.now().UTC()
	gp := e.policy.Global
	rec := &domain.DecisionRecord{Timestamp: now}

	for _, m := range state.Markets() {
		mp := e.policy.ForMarket(m.MarketID)
		opp := e.candidate(m, mp, now)
		rec.Opportunities = append(rec.Opportunities, opp)
		if opp.Eligible() {
			continue
		}
		rec.Rejections = append(rec.Rejections, domain.Rejection{
			MarketID: opp.MarketID,
			Question: opp.Question,
			Outcome:  opp.Outcome,
			Reasons:  opp.Reasons,
			G:        opp.G,
			Details: map[string]any{
				"min_price":       mp.MinPrice,
				"max_price":       mp.MaxPrice,
				"min_days":        mp.MinDays,
				"max_days":        mp.MaxDays,
				"min_g":           mp.MinGFloor(gp),
				"best_ask":        engine.Optional(m.BestAsk),
				"resolution_days": m.ResolutionDays,
			},
		})
	}

	sort.SliceStable(rec.Opportunities, func(i, j int) bool {
		a, b := rec.Opportunities[i], rec.Opportunities[j]
		if a.Eligible() != b.Eligible() {
			return a.Eligible()
		}
		return a.Score() > b.Score()
	})

	rank := 1
	for i := range rec.Opportunities {
		if rec.Opportunities[i].Eligible() {
			rec.Opportunities[i].Rank = rank
			rank++
		}
	}
	return rec
}

// candidate applies the eligibility filters to one market. The first failing
// filter wins; min_g is only checked once everything else passed.
func (e *Engine) candidate(m *domain.MarketState, mp domain.MarketPolicy, now time.Time) domain.Opportunity {
	gp := e.policy.Global
	opp := domain.Opportunity{
		MarketKey:      m.Key(),
		MarketID:       m.MarketID,
		Outcome:        m.Outcome,
		Question:       m.Question,
		BestAsk:        m.BestAsk,
		ResolutionDays: m.ResolutionDays,
		Status:         domain.StatusEligible,
		Confidence:     1,
	}
	if g, ok := domain.G(m.BestAsk, m.ResolutionDays, gp.SettlementLambdaDays); ok {
		opp.G = &g
	}
	// Only the top level counts here, even though fills walk the whole book.
	if m.BestAsk > 0 {
		opp.CapacityValue = m.OrderBook.TopAskValue()
	}

	block := func(r domain.Reason) {
		opp.Status = domain.StatusBlocked
		opp.Reasons = append(opp.Reasons, r)
	}

	switch {
	case !mp.Enabled:
		block(domain.ReasonDisabled)
	case m.BestAsk <= 0:
		block(domain.ReasonMissingBestAsk)
	case e.stale(m, now):
		block(domain.ReasonStaleQuote)
	case m.BestAsk < mp.MinPrice || m.BestAsk > mp.MaxPrice:
		block(domain.ReasonPriceBounds)
	case m.ResolutionDays < mp.MinDays || m.ResolutionDays > mp.MaxDays:
		block(domain.ReasonDayBounds)
	}

	if opp.Eligible() && (opp.G == nil || *opp.G < mp.MinGFloor(gp)) {
		block(domain.ReasonMinG)
	}
	return opp
}

func (e *Engine) stale(m *domain.MarketState, now time.Time) bool {
	if e.staleAfter <= 0 || m.LastFetch.IsZero() {
		return false
	}
	return now.Sub(m.LastFetch) > e.staleAfter
}
