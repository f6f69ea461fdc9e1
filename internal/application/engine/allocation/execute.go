package allocation

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/polyrotate/internal/application/engine"
	"github.com/alejandrodnm/polyrotate/internal/domain"
)

// execution holds the ledgers of one Execute pass.
type execution struct {
	e      *Engine
	state  *domain.RuntimeState
	rec    *domain.DecisionRecord
	now    time.Time
	gp     domain.GlobalPolicy
	cash   float64
	budget float64

	reserve float64
	byEvent map[string]float64
	byMonth map[string]float64
	donors  *donorQueue
}

// Execute evaluates state and then walks the eligible ranking, highest g
// first, buying where caps, slippage and cash allow and rotating out of
// weaker holdings to fund the buys. The returned record is also stored as
// state.LastDecision.
func (e *Engine) Execute(state *domain.RuntimeState) *domain.DecisionRecord {
	rec := e.Evaluate(state)
	gp := e.policy.Global

	if state.TotalBudget <= 0 {
		state.TotalBudget = state.CashBalance + state.InvestedTotal()
	}

	x := &execution{
		e:       e,
		state:   state,
		rec:     rec,
		now:     rec.Timestamp,
		gp:      gp,
		cash:    state.CashBalance,
		budget:  state.TotalBudget,
		reserve: state.TotalBudget * gp.CashReservePct,
		byEvent: state.ExposuresByEvent(),
		byMonth: state.ExposuresByMonth(),
		donors:  newDonorQueue(),
	}
	for _, m := range state.EngagedMarkets() {
		mp := e.policy.ForMarket(m.MarketID)
		if mp.AutoSell {
			x.donors.upsert(m, mp, gp.SettlementLambdaDays)
		}
	}

	for i := range rec.Opportunities {
		opp := &rec.Opportunities[i]
		if !opp.Eligible() || opp.G == nil {
			continue
		}
		m := state.Market(opp.MarketKey)
		if m == nil {
			continue
		}
		x.consider(opp, m)
	}

	state.CashBalance = x.cash
	state.LastDecision = rec

	slog.Debug("allocation: cycle executed",
		"eligible", len(rec.Eligible()),
		"buys", len(rec.Buys),
		"sells", len(rec.Sells),
		"rejections", len(rec.Rejections),
		"cash", fmt.Sprintf("$%.2f", x.cash),
	)
	return rec
}

// consider runs every gate for one candidate and commits the buy if all pass.
func (x *execution) consider(opp *domain.Opportunity, m *domain.MarketState) {
	gp := x.gp
	mp := x.e.policy.ForMarket(m.MarketID)
	lambda := gp.SettlementLambdaDays
	g := *opp.G

	gHeld, held := m.GHeld(lambda)
	base := 0.0
	if held {
		base = gHeld
	}
	required := max(gp.MinG, mp.MinG, base+gp.DeltaThreshold)
	if g < required {
		x.skip(opp, m, domain.ReasonDeltaThreshold, map[string]any{
			"g_required":      required,
			"g_current":       m.GHeldPtr(lambda),
			"delta_threshold": gp.DeltaThreshold,
		})
		return
	}

	if !mp.AutoBuy {
		x.skip(opp, m, domain.ReasonAutoBuyDisabled, map[string]any{})
		return
	}

	if f, frozen := x.state.Freeze(m.Key(), x.now); frozen && !mp.WhitelistAutoBuy {
		x.skip(opp, m, domain.FreezeReasonCode(f.Reason), map[string]any{
			"freeze_until":  f.Until,
			"freeze_reason": string(f.Reason),
		})
		return
	}

	asks := m.OrderBook.Asks
	if len(asks) == 0 {
		x.skip(opp, m, domain.ReasonNoLiquidity, map[string]any{})
		return
	}

	target, ok := x.size(opp, m, mp)
	if !ok {
		return
	}

	fill := domain.FillFromAsks(asks, target)
	if fill.Empty() {
		x.skip(opp, m, domain.ReasonNoLiquidity, map[string]any{"target_value": target})
		return
	}
	slippageCap := mp.EffectiveSlippageCap(gp)
	if fill.SlippageBps > slippageCap {
		x.skip(opp, m, domain.ReasonSlippageCap, map[string]any{
			"slippage_bps":     fill.SlippageBps,
			"slippage_cap_bps": slippageCap,
			"target_value":     target,
		})
		return
	}

	cost := fill.Value()
	var sells int
	if x.shortfall(cost) > domain.MoneyEpsilon {
		var remaining float64
		sells, remaining = x.fund(opp, m, cost)
		if remaining > domain.MoneyEpsilon {
			x.skip(opp, m, domain.ReasonInsufficientCash, map[string]any{
				"needed_cash":    remaining,
				"cash_available": x.cash,
				"cash_reserve":   x.reserve,
			})
			return
		}
	}

	x.commit(opp, m, mp, fill, slippageCap, sells)
}

// size computes the buy notional after the per-market and portfolio caps.
func (x *execution) size(opp *domain.Opportunity, m *domain.MarketState, mp domain.MarketPolicy) (float64, bool) {
	perPass := mp.PerPassBuyCap
	if perPass <= 0 {
		perPass = math.Inf(1)
	}
	invested := m.InvestedAmount()
	remaining := max(0, min(mp.MaxNotional, x.budget*mp.MaxAllocationPct)-invested)
	target := min(perPass, remaining)
	if target <= domain.MoneyEpsilon {
		x.skip(opp, m, domain.ReasonAllocationCap, map[string]any{
			"max_notional":       mp.MaxNotional,
			"max_allocation_pct": mp.MaxAllocationPct,
			"already_invested":   invested,
		})
		return 0, false
	}

	eventPct := mp.EventCapPct(x.gp)
	monthPct := mp.MonthCapPct(x.gp)
	eventUsed := x.byEvent[m.ParentEventID]
	monthUsed := x.byMonth[m.ResolutionMonth()]
	target = min(target,
		max(0, x.budget*eventPct-eventUsed),
		max(0, x.budget*monthPct-monthUsed),
	)
	if target <= domain.MoneyEpsilon {
		x.skip(opp, m, domain.ReasonPortfolioCap, map[string]any{
			"parent_cap_pct": eventPct,
			"month_cap_pct":  monthPct,
			"parent_usage":   eventUsed,
			"month_usage":    monthUsed,
		})
		return 0, false
	}
	return target, true
}

// shortfall is the cash a buy of cost still needs to keep the reserve intact.
func (x *execution) shortfall(cost float64) float64 {
	return max(0, cost-max(0, x.cash-x.reserve))
}

// fund sells donors, worst g first, until the shortfall for cost is covered.
// It returns how many sells happened and the shortfall left.
func (x *execution) fund(opp *domain.Opportunity, target *domain.MarketState, cost float64) (int, float64) {
	lambda := x.gp.SettlementLambdaDays
	delta := x.gp.DeltaThreshold
	g := *opp.G

	needed := x.shortfall(cost)
	var (
		visited []*donor
		sells   int
	)
	for needed > domain.MoneyEpsilon && x.donors.Len() > 0 {
		d := x.donors.pop()
		visited = append(visited, d)
		if d.market == target {
			continue
		}
		// The heap yields the worst holding first: once one is too good to
		// sell, so is every remaining donor.
		if d.g >= g-delta {
			break
		}

		fill := x.simulateSell(d, needed)
		if fill.Empty() {
			continue
		}
		x.sell(opp, d, fill, cost)
		sells++
		needed = x.shortfall(cost)
	}
	x.donors.restore(visited, lambda)
	return sells, needed
}

// simulateSell sizes a donor sale to cover needed at the best bid, bounded by
// the held shares, and drops fills above the donor's exit slippage cap.
func (x *execution) simulateSell(d *donor, needed float64) domain.Fill {
	bids := d.market.OrderBook.Bids
	if len(bids) == 0 || needed <= 0 {
		return domain.Fill{}
	}
	qty := d.market.HeldShares
	if best := bids[0].Price; best > 0 {
		qty = min(qty, needed/best)
	}
	fill := domain.FillFromBids(bids, qty)
	if fill.Empty() {
		return domain.Fill{}
	}
	if capBps := d.policy.EffectiveExitSlippageCap(x.gp); fill.SlippageBps > capBps {
		slog.Debug("allocation: donor exit slippage too high",
			"market", d.market.Key(),
			"slippage_bps", fmt.Sprintf("%.1f", fill.SlippageBps),
			"cap_bps", capBps,
		)
		return domain.Fill{}
	}
	return fill
}

func (x *execution) sell(opp *domain.Opportunity, d *donor, fill domain.Fill, cost float64) {
	m := d.market
	lambda := x.gp.SettlementLambdaDays
	gBefore := d.g
	priorAvg := m.AveragePrice

	proceeds := m.Sell(fill.Shares, fill.AvgPrice)
	x.cash += proceeds
	x.byEvent[m.ParentEventID] = max(0, x.byEvent[m.ParentEventID]-proceeds)
	x.byMonth[m.ResolutionMonth()] = max(0, x.byMonth[m.ResolutionMonth()]-proceeds)

	costBasis := fill.Shares * priorAvg
	profit := proceeds - costBasis
	var profitPct float64
	if costBasis > domain.ShareEpsilon {
		profitPct = profit / costBasis
	}
	var remainingAvg *float64
	if m.HasPosition() {
		avg := m.AveragePrice
		remainingAvg = &avg
	}
	x.rec.Sells = append(x.rec.Sells, domain.SellRecord{
		MarketID:           m.MarketID,
		Question:           m.Question,
		Outcome:            m.Outcome,
		Shares:             fill.Shares,
		Price:              fill.AvgPrice,
		Value:              proceeds,
		SlippageBps:        fill.SlippageBps,
		ExitSlippageCapBps: d.policy.EffectiveExitSlippageCap(x.gp),
		GBefore:            gBefore,
		TargetMarketID:     opp.MarketID,
		TargetQuestion:     opp.Question,
		TargetOutcome:      opp.Outcome,
		TargetG:            *opp.G,
		DeltaThreshold:     x.gp.DeltaThreshold,
		Reason:             domain.ReasonRotation,
		ProfitUSD:          profit,
		ProfitPct:          profitPct,
		CostBasis:          costBasis,
		RemainingShares:    m.HeldShares,
		RemainingValue:     m.MarketValue(),
		RemainingAvgPrice:  remainingAvg,
		Rank:               opp.Rank,
	})

	x.state.AppendTrade(domain.TradeLogEntry{
		ID:          x.e.newID(),
		Timestamp:   x.now,
		Mode:        x.state.Mode,
		Action:      domain.ActionSell,
		MarketID:    m.MarketID,
		Question:    m.Question,
		Outcome:     m.Outcome,
		Shares:      fill.Shares,
		Price:       fill.AvgPrice,
		Value:       proceeds,
		GBefore:     &gBefore,
		GAfter:      m.GHeldPtr(lambda),
		SlippageBps: fill.SlippageBps,
		Reasons:     []domain.Reason{domain.ReasonRotation},
		Metadata: map[string]any{
			"target_market":         opp.MarketID,
			"needed_cash_remaining": x.shortfall(cost),
		},
	})

	slog.Info("allocation: ROTATE SELL",
		"market", engine.TruncateStr(m.Question, 40),
		"outcome", m.Outcome,
		"shares", fmt.Sprintf("%.2f", fill.Shares),
		"price", fmt.Sprintf("%.4f", fill.AvgPrice),
		"proceeds", fmt.Sprintf("$%.2f", proceeds),
		"pnl", fmt.Sprintf("$%.2f", profit),
		"for", engine.TruncateStr(opp.Question, 40),
	)
}

func (x *execution) commit(opp *domain.Opportunity, m *domain.MarketState, mp domain.MarketPolicy, fill domain.Fill, slippageCap float64, sells int) {
	lambda := x.gp.SettlementLambdaDays
	g := *opp.G
	cost := fill.Value()

	gBefore := m.GHeldPtr(lambda)
	priorShares := m.HeldShares
	priorAvg := m.AveragePrice

	x.cash -= cost
	if x.cash < 0 {
		// float dust below MoneyEpsilon
		x.cash = 0
	}
	m.Buy(fill.Shares, fill.AvgPrice)
	x.byEvent[m.ParentEventID] += cost
	x.byMonth[m.ResolutionMonth()] += cost

	slippage := fill.SlippageBps
	opp.SlippageBps = &slippage

	gAfter := m.GHeldPtr(lambda)
	roi := domain.ROI(fill.AvgPrice)
	expectedProfit := cost * roi
	deltaG := g
	if gBefore != nil {
		deltaG -= *gBefore
	}

	buyType := domain.BuyEntry
	if priorShares > domain.ShareEpsilon {
		buyType = domain.BuyTopUp
	}

	x.rec.Buys = append(x.rec.Buys, domain.BuyRecord{
		Type:             buyType,
		MarketID:         m.MarketID,
		Question:         m.Question,
		Outcome:          m.Outcome,
		Shares:           fill.Shares,
		Price:            fill.AvgPrice,
		Cost:             cost,
		SlippageBps:      fill.SlippageBps,
		SlippageCapBps:   slippageCap,
		Rank:             opp.Rank,
		G:                g,
		GBefore:          gBefore,
		GAfter:           gAfter,
		PreviousShares:   priorShares,
		PreviousAvgPrice: priorAvg,
		NewShares:        m.HeldShares,
		NewAvgPrice:      m.AveragePrice,
		ExpectedProfit:   expectedProfit,
		ROI:              roi,
		ResolutionDays:   m.ResolutionDays,
		DeltaG:           deltaG,
		Confidence:       opp.Confidence,
	})

	reason := domain.ReasonEntry
	if sells > 0 {
		reason = domain.ReasonRotation
	}
	x.state.AppendTrade(domain.TradeLogEntry{
		ID:          x.e.newID(),
		Timestamp:   x.now,
		Mode:        x.state.Mode,
		Action:      domain.ActionBuy,
		MarketID:    m.MarketID,
		Question:    m.Question,
		Outcome:     m.Outcome,
		Shares:      fill.Shares,
		Price:       fill.AvgPrice,
		Value:       cost,
		GBefore:     gBefore,
		GAfter:      gAfter,
		SlippageBps: fill.SlippageBps,
		Reasons:     []domain.Reason{reason},
		Metadata: map[string]any{
			"rank":            opp.Rank,
			"expected_profit": expectedProfit,
		},
	})

	if mp.AutoSell {
		x.donors.upsert(m, mp, lambda)
	}

	slog.Info("allocation: BUY",
		"type", buyType,
		"market", engine.TruncateStr(m.Question, 40),
		"outcome", m.Outcome,
		"rank", opp.Rank,
		"shares", fmt.Sprintf("%.2f", fill.Shares),
		"price", fmt.Sprintf("%.4f", fill.AvgPrice),
		"cost", fmt.Sprintf("$%.2f", cost),
		"g", fmt.Sprintf("%.5f", g),
		"slippage_bps", fmt.Sprintf("%.1f", fill.SlippageBps),
	)
}

// skip records a rejection for a candidate that passed evaluation.
func (x *execution) skip(opp *domain.Opportunity, m *domain.MarketState, reason domain.Reason, details map[string]any) {
	x.rec.Rejections = append(x.rec.Rejections, domain.Rejection{
		MarketID: m.MarketID,
		Question: m.Question,
		Outcome:  m.Outcome,
		Rank:     opp.Rank,
		Reasons:  []domain.Reason{reason},
		G:        opp.G,
		Details:  details,
	})
	slog.Debug("allocation: skip",
		"market", m.Key(),
		"reason", reason,
		"rank", opp.Rank,
	)
}
