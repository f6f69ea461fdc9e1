package domain

import "time"

// Reason es un código de rechazo legible por máquina.
type Reason string

const (
	ReasonDisabled         Reason = "disabled"
	ReasonMissingBestAsk   Reason = "missing_best_ask"
	ReasonPriceBounds      Reason = "price_bounds"
	ReasonDayBounds        Reason = "day_bounds"
	ReasonMinG             Reason = "min_g"
	ReasonStaleQuote       Reason = "stale_quote"
	ReasonDeltaThreshold   Reason = "delta_threshold"
	ReasonAutoBuyDisabled  Reason = "auto_buy_disabled"
	ReasonNoLiquidity      Reason = "no_liquidity"
	ReasonAllocationCap    Reason = "allocation_cap"
	ReasonPortfolioCap     Reason = "portfolio_cap"
	ReasonSlippageCap      Reason = "slippage_cap"
	ReasonInsufficientCash Reason = "insufficient_cash"

	// Trade-log reasons.
	ReasonEntry    Reason = "entry"
	ReasonRotation Reason = "rotation"
)

// FreezeReasonCode is the rejection code for a market frozen by a breaker.
func FreezeReasonCode(r FreezeReason) Reason {
	return Reason("freeze:" + string(r))
}

// OpportunityStatus clasifica un candidato.
type OpportunityStatus string

const (
	StatusEligible OpportunityStatus = "eligible"
	StatusBlocked  OpportunityStatus = "blocked"
)

// Opportunity is one ranked candidate produced by evaluation.
type Opportunity struct {
	MarketKey      string            `json:"market_key"`
	MarketID       string            `json:"market_id"`
	Outcome        string            `json:"outcome"`
	Question       string            `json:"question"`
	BestAsk        float64           `json:"best_ask,omitempty"`
	ResolutionDays float64           `json:"resolution_days"`
	G              *float64          `json:"g"`
	CapacityValue  float64           `json:"capacity_value"`
	SlippageBps    *float64          `json:"slippage_bps,omitempty"`
	Status         OpportunityStatus `json:"status"`
	Reasons        []Reason          `json:"reasons,omitempty"`
	Confidence     float64           `json:"confidence"`
	Rank           int               `json:"rank,omitempty"`
}

// Eligible reports whether the candidate passed evaluation.
func (o Opportunity) Eligible() bool {
	return o.Status == StatusEligible
}

// Score returns g, or -1 when undefined so it sorts last.
func (o Opportunity) Score() float64 {
	if o.G == nil {
		return -1
	}
	return *o.G
}

// Rejection records why a candidate was skipped and with which inputs.
type Rejection struct {
	MarketID string         `json:"market_id"`
	Question string         `json:"question"`
	Outcome  string         `json:"outcome"`
	Rank     int            `json:"rank,omitempty"`
	Reasons  []Reason       `json:"reasons"`
	G        *float64       `json:"g"`
	Details  map[string]any `json:"details"`
}

// BuyType distingue una entrada nueva de un top-up.
type BuyType string

const (
	BuyEntry BuyType = "buy"
	BuyTopUp BuyType = "top_up"
)

// BuyRecord describes a committed simulated buy.
type BuyRecord struct {
	Type             BuyType  `json:"type"`
	MarketID         string   `json:"market_id"`
	Question         string   `json:"question"`
	Outcome          string   `json:"outcome"`
	Shares           float64  `json:"shares"`
	Price            float64  `json:"price"`
	Cost             float64  `json:"cost"`
	SlippageBps      float64  `json:"slippage_bps"`
	SlippageCapBps   float64  `json:"slippage_cap_bps"`
	Rank             int      `json:"rank"`
	G                float64  `json:"g"`
	GBefore          *float64 `json:"g_before"`
	GAfter           *float64 `json:"g_after"`
	PreviousShares   float64  `json:"previous_shares"`
	PreviousAvgPrice float64  `json:"previous_avg_price"`
	NewShares        float64  `json:"new_shares"`
	NewAvgPrice      float64  `json:"new_avg_price"`
	ExpectedProfit   float64  `json:"expected_profit"`
	ROI              float64  `json:"roi"`
	ResolutionDays   float64  `json:"resolution_days"`
	DeltaG           float64  `json:"delta_g"`
	Confidence       float64  `json:"confidence"`
}

// SellRecord describes a rotation sell that funded a buy.
type SellRecord struct {
	MarketID           string   `json:"market_id"`
	Question           string   `json:"question"`
	Outcome            string   `json:"outcome"`
	Shares             float64  `json:"shares"`
	Price              float64  `json:"price"`
	Value              float64  `json:"value"`
	SlippageBps        float64  `json:"slippage_bps"`
	ExitSlippageCapBps float64  `json:"exit_slippage_cap_bps"`
	GBefore            float64  `json:"g_before"`
	TargetMarketID     string   `json:"target_market_id"`
	TargetQuestion     string   `json:"target_question"`
	TargetOutcome      string   `json:"target_outcome"`
	TargetG            float64  `json:"target_g"`
	DeltaThreshold     float64  `json:"delta_threshold"`
	Reason             Reason   `json:"reason"`
	ProfitUSD          float64  `json:"profit_usd"`
	ProfitPct          float64  `json:"profit_pct"`
	CostBasis          float64  `json:"cost_basis"`
	RemainingShares    float64  `json:"remaining_shares"`
	RemainingValue     float64  `json:"remaining_value"`
	RemainingAvgPrice  *float64 `json:"remaining_avg_price"`
	Rank               int      `json:"rank"`
}

// DecisionRecord is the snapshot of one evaluation or execution cycle.
type DecisionRecord struct {
	Timestamp     time.Time     `json:"timestamp"`
	Buys          []BuyRecord   `json:"buys"`
	Sells         []SellRecord  `json:"sells"`
	Rejections    []Rejection   `json:"rejections"`
	Opportunities []Opportunity `json:"opportunities"`
}

// Eligible returns the ranked eligible opportunities.
func (d *DecisionRecord) Eligible() []Opportunity {
	out := make([]Opportunity, 0, len(d.Opportunities))
	for _, o := range d.Opportunities {
		if o.Eligible() {
			out = append(out, o)
		}
	}
	return out
}

// TradeAction es BUY o SELL.
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
)

// TradeLogEntry is one row of the append-only trade log.
type TradeLogEntry struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Mode        string         `json:"mode"`
	Action      TradeAction    `json:"action"`
	MarketID    string         `json:"market_id"`
	Question    string         `json:"question"`
	Outcome     string         `json:"outcome"`
	Shares      float64        `json:"shares"`
	Price       float64        `json:"price"`
	Value       float64        `json:"value"`
	GBefore     *float64       `json:"g_before"`
	GAfter      *float64       `json:"g_after"`
	SlippageBps float64        `json:"slippage_bps"`
	Reasons     []Reason       `json:"reasons"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
