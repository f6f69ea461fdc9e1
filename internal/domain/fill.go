package domain

// Fill is the outcome of walking an order book for a simulated order.
// A zero Fill means nothing could be executed.
type Fill struct {
	Shares      float64
	AvgPrice    float64
	SlippageBps float64
}

// Value is the notional exchanged by the fill.
func (f Fill) Value() float64 {
	return f.Shares * f.AvgPrice
}

// Empty reports whether the fill executed no shares.
func (f Fill) Empty() bool {
	return f.Shares <= ShareEpsilon
}

// FillFromAsks simulates a buy of up to notional dollars against asks sorted
// ascending. Each level contributes min(level value, remaining notional).
// A book that runs out before the target is met yields a partial fill.
func FillFromAsks(asks []BookEntry, notional float64) Fill {
	if len(asks) == 0 || notional <= 0 {
		return Fill{}
	}
	best := asks[0].Price

	var cost, shares float64
	remaining := notional
	for _, level := range asks {
		if level.Price <= 0 || level.Size <= 0 {
			continue
		}
		take := min(level.Price*level.Size, remaining)
		if take <= 0 {
			break
		}
		qty := take / level.Price
		cost += level.Price * qty
		shares += qty
		remaining -= take
		if remaining <= ShareEpsilon {
			break
		}
	}
	if shares <= 0 {
		return Fill{}
	}

	avg := cost / shares
	var slippage float64
	if best > 0 {
		slippage = (avg/best - 1) * 1e4
	}
	return Fill{Shares: shares, AvgPrice: avg, SlippageBps: slippage}
}

// FillFromBids simulates selling up to qty shares against bids sorted
// descending.
func FillFromBids(bids []BookEntry, qty float64) Fill {
	if len(bids) == 0 || qty <= 0 {
		return Fill{}
	}
	best := bids[0].Price

	var proceeds, shares float64
	remaining := qty
	for _, level := range bids {
		if level.Price <= 0 || level.Size <= 0 {
			continue
		}
		take := min(level.Size, remaining)
		proceeds += level.Price * take
		shares += take
		remaining -= take
		if remaining <= ShareEpsilon {
			break
		}
	}
	if shares <= 0 {
		return Fill{}
	}

	avg := proceeds / shares
	var slippage float64
	if best > 0 {
		slippage = (best - avg) / best * 1e4
	}
	return Fill{Shares: shares, AvgPrice: avg, SlippageBps: slippage}
}
