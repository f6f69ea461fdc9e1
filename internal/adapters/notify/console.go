package notify

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/polyrotate/internal/domain"
	"github.com/alejandrodnm/polyrotate/internal/ports"
	"github.com/olekukonko/tablewriter"
)

var _ ports.Notifier = (*Console)(nil)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
	now   func() time.Time
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return NewConsoleWriter(os.Stdout, table)
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table, now: time.Now}
}

// WithClock fija el reloj usado para mostrar freezes activos.
func (c *Console) WithClock(now func() time.Time) *Console {
	c.now = now
	return c
}

// PrintDecision imprime el ciclo en el modo configurado.
func (c *Console) PrintDecision(rec *domain.DecisionRecord, state *domain.RuntimeState) {
	if rec == nil {
		return
	}
	if c.table {
		c.printFull(rec, state)
	} else {
		c.printCompact(rec, state)
	}
}

// printCompact imprime lo esencial en una línea, más una por trade.
func (c *Console) printCompact(rec *domain.DecisionRecord, state *domain.RuntimeState) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d mkts → elig:%d buy:%d sell:%d rej:%d",
		rec.Timestamp.Format("15:04:05"), len(rec.Opportunities), len(rec.Eligible()),
		len(rec.Buys), len(rec.Sells), len(rec.Rejections))
	if state != nil {
		fmt.Fprintf(&sb, " | cash $%.2f | value $%.2f", state.CashBalance, state.MarketValueTotal())
	}

	for _, s := range rec.Sells {
		fmt.Fprintf(&sb, "\n  SELL %s %.2f @ %.4f ($%.2f) → %s",
			compactName(s.Question, 30), s.Shares, s.Price, s.Value, compactName(s.TargetQuestion, 30))
	}
	for _, b := range rec.Buys {
		fmt.Fprintf(&sb, "\n  %s %s %.2f @ %.4f ($%.2f) g=%.5f",
			buyLabel(b.Type), compactName(b.Question, 30), b.Shares, b.Price, b.Cost, b.G)
	}
	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime oportunidades, trades y rechazos en tablas.
func (c *Console) printFull(rec *domain.DecisionRecord, state *domain.RuntimeState) {
	fmt.Fprintf(c.out, "\n[%s] %d candidates, %d eligible\n",
		rec.Timestamp.Format("15:04:05"), len(rec.Opportunities), len(rec.Eligible()))

	if len(rec.Opportunities) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("#", "Market", "Outcome", "Ask", "Days", "g", "Capacity", "Status")
		for _, o := range rec.Opportunities {
			rank := "-"
			if o.Rank > 0 {
				rank = fmt.Sprintf("%d", o.Rank)
			}
			status := string(o.Status)
			if len(o.Reasons) > 0 {
				status = joinReasons(o.Reasons)
			}
			if state != nil {
				if label := state.FreezeLabel(o.MarketKey, rec.Timestamp); label != "" && !strings.Contains(status, label) {
					status += " " + label
				}
			}
			table.Append(
				rank,
				truncate(o.Question, 38),
				o.Outcome,
				priceLabel(o.BestAsk),
				fmt.Sprintf("%.1f", o.ResolutionDays),
				gLabel(o.G),
				fmt.Sprintf("$%.0f", o.CapacityValue),
				status,
			)
		}
		table.Render()
	}

	if len(rec.Sells) > 0 || len(rec.Buys) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Action", "Market", "Shares", "Price", "Value", "Slip bps", "Note")
		for _, s := range rec.Sells {
			table.Append(
				"SELL",
				truncate(s.Question, 38),
				fmt.Sprintf("%.2f", s.Shares),
				fmt.Sprintf("%.4f", s.Price),
				fmt.Sprintf("$%.2f", s.Value),
				fmt.Sprintf("%.1f", s.SlippageBps),
				"→ "+truncate(s.TargetQuestion, 24),
			)
		}
		for _, b := range rec.Buys {
			table.Append(
				buyLabel(b.Type),
				truncate(b.Question, 38),
				fmt.Sprintf("%.2f", b.Shares),
				fmt.Sprintf("%.4f", b.Price),
				fmt.Sprintf("$%.2f", b.Cost),
				fmt.Sprintf("%.1f", b.SlippageBps),
				fmt.Sprintf("g=%.5f Δ=%.5f", b.G, b.DeltaG),
			)
		}
		table.Render()
	}

	if len(rec.Rejections) > 0 {
		fmt.Fprintln(c.out, "  Rejected:")
		for _, r := range rec.Rejections {
			fmt.Fprintf(c.out, "    %-38s %s\n", truncate(r.Question, 38), joinReasons(r.Reasons))
		}
	}

	if state != nil {
		c.PrintPortfolio(state)
	}
}

// PrintPortfolio imprime las posiciones abiertas y el resumen de cash.
func (c *Console) PrintPortfolio(state *domain.RuntimeState) {
	engaged := state.EngagedMarkets()
	value := state.MarketValueTotal()
	now := c.now()

	fmt.Fprintf(c.out, "\n=== PORTFOLIO (%s) ===\n", state.Mode)
	if len(engaged) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Market", "Outcome", "Shares", "Avg", "Bid", "Value", "Days", "Frozen")
		for _, m := range engaged {
			frozen := state.FreezeLabel(m.Key(), now)
			if frozen != "" {
				frozen += " until " + state.ActiveFreezes[m.Key()].Until.Format("15:04")
			}
			table.Append(
				truncate(m.Question, 38),
				m.Outcome,
				fmt.Sprintf("%.2f", m.HeldShares),
				fmt.Sprintf("%.4f", m.AveragePrice),
				priceLabel(m.BestBid),
				fmt.Sprintf("$%.2f", m.MarketValue()),
				fmt.Sprintf("%.1f", m.ResolutionDays),
				frozen,
			)
		}
		table.Render()
	} else {
		fmt.Fprintln(c.out, "  no open positions")
	}

	fmt.Fprintf(c.out, "  Budget: $%.2f | Cash: $%.2f | Invested: $%.2f | Value: $%.2f | Trades: %d\n\n",
		state.TotalBudget, state.CashBalance, state.InvestedTotal(), value, len(state.TradeLog))
}

// PrintTradeLog imprime un histórico de trades.
func (c *Console) PrintTradeLog(entries []domain.TradeLogEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "\n  No trades recorded yet.")
		return
	}

	var bought, sold float64
	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Action", "Market", "Outcome", "Shares", "Price", "Value", "Reason")
	for _, e := range entries {
		switch e.Action {
		case domain.ActionBuy:
			bought += e.Value
		case domain.ActionSell:
			sold += e.Value
		}
		table.Append(
			e.Timestamp.Format("2006-01-02 15:04"),
			string(e.Action),
			truncate(e.Question, 38),
			e.Outcome,
			fmt.Sprintf("%.2f", e.Shares),
			fmt.Sprintf("%.4f", e.Price),
			fmt.Sprintf("$%.2f", e.Value),
			joinReasons(e.Reasons),
		)
	}
	table.Render()
	fmt.Fprintf(c.out, "  %d trades | bought $%.2f | sold $%.2f\n\n", len(entries), bought, sold)
}

// --- helpers ---

func buyLabel(t domain.BuyType) string {
	if t == domain.BuyTopUp {
		return "TOP-UP"
	}
	return "BUY"
}

func gLabel(g *float64) string {
	if g == nil {
		return "-"
	}
	return fmt.Sprintf("%.5f", *g)
}

func priceLabel(p float64) string {
	if p <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.4f", p)
}

func joinReasons(reasons []domain.Reason) string {
	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if idx := strings.LastIndex(cut, " "); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
