package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyrotate/internal/adapters/export"
	"github.com/alejandrodnm/polyrotate/internal/adapters/notify"
	"github.com/alejandrodnm/polyrotate/internal/adapters/storage"
	"github.com/alejandrodnm/polyrotate/internal/domain"
)

const reportDecisions = 5

// printReport imprime la cartera, el histórico de trades y los últimos ciclos.
func printReport(ctx context.Context, store *storage.SQLiteStorage, state *domain.RuntimeState, c *notify.Console) error {
	c.PrintPortfolio(state)

	trades, err := store.TradeHistory(ctx, time.Time{}, time.Time{})
	if err != nil {
		return err
	}
	c.PrintTradeLog(trades)

	decisions, err := store.RecentDecisions(ctx, reportDecisions)
	if err != nil {
		return err
	}
	for i := len(decisions) - 1; i >= 0; i-- {
		d := decisions[i]
		fmt.Printf("  %s  eligible:%d buys:%d sells:%d rejections:%d\n",
			d.Timestamp.Format("2006-01-02 15:04:05"), len(d.Eligible()), len(d.Buys), len(d.Sells), len(d.Rejections))
	}
	if age := state.MaxDataAge(time.Now()); age > 0 {
		fmt.Printf("  oldest quote: %s ago\n", age.Round(time.Second))
	}
	return nil
}

// exportTrades escribe el histórico completo en dir.
func exportTrades(ctx context.Context, store *storage.SQLiteStorage, dir string) error {
	trades, err := store.TradeHistory(ctx, time.Time{}, time.Time{})
	if err != nil {
		return err
	}
	paths, err := export.ExportTradeLog(dir, trades, time.Now())
	if err != nil {
		return err
	}
	slog.Info("trade log exported", "trades", len(trades), "files", paths)
	return nil
}
