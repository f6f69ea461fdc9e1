package domain

import (
	"math"
	"time"
)

const (
	// MaxPriceHistory bounds the per-market snapshot ring read by the circuit breakers.
	MaxPriceHistory = 240

	monthLayout = "2006-01"
)

// Quote es el snapshot que entrega la fuente de precios en cada refresh.
type Quote struct {
	Question       string
	EventID        string
	EventLabel     string
	ResolutionTime time.Time
	LastPrice      float64
	Volume         float64
	Book           OrderBook
}

// PriceSample is one entry of a market's price history.
type PriceSample struct {
	Timestamp time.Time `json:"timestamp"`
	BestAsk   float64   `json:"best_ask,omitempty"`
	BestBid   float64   `json:"best_bid,omitempty"`
	Volume    float64   `json:"volume,omitempty"`
}

// MarketState es el registro mutable de un par (market, outcome).
// Prices are 0 when unknown: a valid quote is always strictly inside (0, 1).
type MarketState struct {
	MarketID         string    `json:"market_id"`
	Outcome          string    `json:"outcome"`
	Question         string    `json:"question"`
	ParentEventID    string    `json:"parent_event_id"`
	ParentEventLabel string    `json:"parent_event_label"`
	ResolutionTime   time.Time `json:"resolution_time"`
	ResolutionDays   float64   `json:"resolution_days"`

	BestBid      float64       `json:"best_bid,omitempty"`
	BestAsk      float64       `json:"best_ask,omitempty"`
	LastPrice    float64       `json:"last_price,omitempty"`
	LastVolume   float64       `json:"last_volume,omitempty"`
	OrderBook    OrderBook     `json:"order_book"`
	PriceHistory []PriceSample `json:"price_history,omitempty"`
	LastFetch    time.Time     `json:"last_fetch,omitempty"`

	HeldShares     float64 `json:"held_shares"`
	AveragePrice   float64 `json:"average_price,omitempty"`
	RealizedProfit float64 `json:"realized_profit"`
}

// NewMarketState crea el estado vacío de un outcome trackeado.
func NewMarketState(marketID, outcome string) *MarketState {
	return &MarketState{MarketID: marketID, Outcome: outcome}
}

// Key identifica el estado dentro del RuntimeState.
func (m *MarketState) Key() string {
	return MarketKey(m.MarketID, m.Outcome)
}

// MarketKey builds the "marketId|outcome" key.
func MarketKey(marketID, outcome string) string {
	return marketID + "|" + outcome
}

// HasPosition reports whether any shares are held.
func (m *MarketState) HasPosition() bool {
	return m.HeldShares > ShareEpsilon
}

// InvestedAmount es el coste base de la posición abierta.
func (m *MarketState) InvestedAmount() float64 {
	if !m.HasPosition() || m.AveragePrice <= 0 {
		return 0
	}
	return m.HeldShares * m.AveragePrice
}

// MarketValue values the position at the most conservative price we know:
// best bid, then last trade, then average entry.
func (m *MarketState) MarketValue() float64 {
	if !m.HasPosition() {
		return 0
	}
	for _, p := range []float64{m.BestBid, m.LastPrice, m.AveragePrice} {
		if p > 0 {
			return m.HeldShares * p
		}
	}
	return 0
}

// GHeld is the growth rate the current position earns at its entry price.
func (m *MarketState) GHeld(lambda float64) (float64, bool) {
	if !m.HasPosition() || m.AveragePrice <= 0 {
		return 0, false
	}
	return G(m.AveragePrice, m.ResolutionDays, lambda)
}

// GHeldPtr is GHeld in the nullable shape used by records.
func (m *MarketState) GHeldPtr(lambda float64) *float64 {
	if !m.HasPosition() || m.AveragePrice <= 0 {
		return nil
	}
	return gPtr(m.AveragePrice, m.ResolutionDays, lambda)
}

// ResolutionMonth agrupa la exposición por mes de resolución ("2006-01").
func (m *MarketState) ResolutionMonth() string {
	if m.ResolutionTime.IsZero() {
		return ""
	}
	return m.ResolutionTime.UTC().Format(monthLayout)
}

// Buy adds shares at price, blending the average entry price.
func (m *MarketState) Buy(shares, price float64) {
	if shares <= 0 {
		return
	}
	if !m.HasPosition() || m.AveragePrice <= 0 {
		m.AveragePrice = price
	} else {
		cost := m.AveragePrice*m.HeldShares + shares*price
		m.AveragePrice = cost / (m.HeldShares + shares)
	}
	m.HeldShares += shares
}

// Sell removes up to shares at price and returns the proceeds. The average
// price is kept until the position is closed.
func (m *MarketState) Sell(shares, price float64) float64 {
	shares = math.Min(shares, m.HeldShares)
	if shares <= 0 {
		return 0
	}
	proceeds := shares * price
	m.RealizedProfit += proceeds - shares*m.AveragePrice
	m.HeldShares -= shares
	if m.HeldShares <= ShareEpsilon {
		m.HeldShares = 0
		m.AveragePrice = 0
	}
	return proceeds
}

// ApplyQuote writes a freshly fetched quote into the state and appends a
// sample to the bounded price history.
func (m *MarketState) ApplyQuote(q Quote, now time.Time) {
	if q.Question != "" {
		m.Question = q.Question
	}
	if q.EventID != "" {
		m.ParentEventID = q.EventID
		m.ParentEventLabel = q.EventLabel
	}
	if !q.ResolutionTime.IsZero() {
		m.ResolutionTime = q.ResolutionTime.UTC()
	}
	if !m.ResolutionTime.IsZero() {
		m.ResolutionDays = m.ResolutionTime.Sub(now).Hours() / 24
	}

	m.OrderBook = q.Book
	m.BestAsk = q.Book.BestAsk()
	m.BestBid = q.Book.BestBid()
	m.LastPrice = q.LastPrice
	m.LastVolume = q.Volume
	m.LastFetch = now.UTC()

	m.PriceHistory = append(m.PriceHistory, PriceSample{
		Timestamp: m.LastFetch,
		BestAsk:   m.BestAsk,
		BestBid:   m.BestBid,
		Volume:    q.Volume,
	})
	if n := len(m.PriceHistory); n > MaxPriceHistory {
		m.PriceHistory = append([]PriceSample(nil), m.PriceHistory[n-MaxPriceHistory:]...)
	}
}
