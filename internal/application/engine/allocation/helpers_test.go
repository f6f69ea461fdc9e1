package allocation_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/alejandrodnm/polyrotate/internal/application/engine/allocation"
	"github.com/alejandrodnm/polyrotate/internal/domain"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newEngine(p *domain.Policy, opts ...allocation.Option) *allocation.Engine {
	n := 0
	base := []allocation.Option{
		allocation.WithClock(func() time.Time { return testNow }),
		allocation.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("trade-%d", n)
		}),
	}
	return allocation.New(p, append(base, opts...)...)
}

// autoBuyPolicy is the default policy with auto-buy switched on.
func autoBuyPolicy() *domain.Policy {
	p := domain.DefaultPolicy()
	p.Markets[domain.DefaultPolicyKey] = autoBuyMarket()
	return p
}

func autoBuyMarket() domain.MarketPolicy {
	mp := domain.DefaultMarketPolicy()
	mp.AutoBuy = true
	return mp
}

func asks(levels ...float64) []domain.BookEntry {
	return pairs(levels)
}

func bids(levels ...float64) []domain.BookEntry {
	return pairs(levels)
}

func pairs(levels []float64) []domain.BookEntry {
	out := make([]domain.BookEntry, 0, len(levels)/2)
	for i := 0; i+1 < len(levels); i += 2 {
		out = append(out, domain.BookEntry{Price: levels[i], Size: levels[i+1]})
	}
	return out
}

// addMarket tracks a market resolving days after testNow with the given book.
func addMarket(t *testing.T, s *domain.RuntimeState, id, event string, days float64, a, b []domain.BookEntry) *domain.MarketState {
	t.Helper()
	m := domain.NewMarketState(id, "Yes")
	m.Question = "Will " + id + " happen?"
	m.ParentEventID = event
	m.ResolutionTime = testNow.Add(time.Duration(days * 24 * float64(time.Hour)))
	m.ApplyQuote(domain.Quote{Book: domain.OrderBook{Asks: a, Bids: b}}, testNow)
	require.NoError(t, s.AddMarket(m))
	return m
}

// hold gives m an open position bought at avg and moves the shares' cost
// out of cash so the budget stays consistent.
func hold(s *domain.RuntimeState, m *domain.MarketState, shares, avg float64) {
	m.Buy(shares, avg)
	s.CashBalance -= shares * avg
}

func findRejection(rec *domain.DecisionRecord, marketID string) (domain.Rejection, bool) {
	for _, r := range rec.Rejections {
		if r.MarketID == marketID {
			return r, true
		}
	}
	return domain.Rejection{}, false
}

func findOpportunity(rec *domain.DecisionRecord, marketID string) (domain.Opportunity, bool) {
	for _, o := range rec.Opportunities {
		if o.MarketID == marketID {
			return o, true
		}
	}
	return domain.Opportunity{}, false
}
