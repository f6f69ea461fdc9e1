package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyrotate/config"
	"github.com/alejandrodnm/polyrotate/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyrotate/internal/adapters/storage"
	"github.com/alejandrodnm/polyrotate/internal/domain"
)

type fakeResolver struct {
	info polymarket.MarketInfo
	err  error
}

func (f fakeResolver) ResolveMarket(context.Context, string) (polymarket.MarketInfo, error) {
	return f.info, f.err
}

func openStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSplitPair(t *testing.T) {
	id, outcome, err := splitPair("https://polymarket.com/event/fed-cut|Yes")
	require.NoError(t, err)
	assert.Equal(t, "https://polymarket.com/event/fed-cut", id)
	assert.Equal(t, "Yes", outcome)

	for _, bad := range []string{"", "fed-cut", "|Yes", "fed-cut|"} {
		_, _, err := splitPair(bad)
		assert.Error(t, err, bad)
	}
}

func TestEnsureRuntimeState_CreatesAndTracks(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	cfg := config.Default()
	cfg.Portfolio.TotalBudget = 5000
	cfg.Portfolio.Tracked = []config.TrackedMarket{{MarketID: "fed", Outcome: "Yes"}}

	state, err := ensureRuntimeState(ctx, store, cfg)
	require.NoError(t, err)
	assert.InDelta(t, 5000, state.CashBalance, 1e-9)
	assert.Equal(t, []string{"fed|Yes"}, state.StrategyPriority)

	// Segundo arranque: carga el estado y no duplica el mercado
	state.CashBalance = 0
	require.NoError(t, store.SaveState(ctx, state))
	state, err = ensureRuntimeState(ctx, store, cfg)
	require.NoError(t, err)
	assert.Len(t, state.MarketStates, 1)
	assert.InDelta(t, 5000, state.CashBalance, 1e-9, "EnsureCash refills uninvested budget")
}

func TestAddAndRemoveMarket(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	state := domain.NewRuntimeState(1000, "")
	resolver := fakeResolver{info: polymarket.MarketInfo{
		ID: "fed-cut-march", Question: "Fed cut?", Outcomes: []string{"Yes", "No"},
	}}

	require.NoError(t, addMarket(ctx, resolver, store, state, "fed-cut-march|yes"))
	m := state.Market("fed-cut-march|Yes")
	require.NotNil(t, m, "outcome is stored with its canonical name")
	assert.Equal(t, "Fed cut?", m.Question)

	err := addMarket(ctx, resolver, store, state, "fed-cut-march|Maybe")
	assert.ErrorContains(t, err, "outcome \"Maybe\" not in market")

	err = addMarket(ctx, resolver, store, state, "fed-cut-march|Yes")
	assert.ErrorIs(t, err, domain.ErrMarketExists)

	err = addMarket(ctx, fakeResolver{err: errors.New("boom")}, store, state, "x|Yes")
	assert.ErrorContains(t, err, "boom")

	m.Buy(10, 0.5)
	state.AppendTrade(domain.TradeLogEntry{ID: "t-1", Action: domain.ActionBuy, MarketID: "fed-cut-march", Outcome: "Yes"})
	require.NoError(t, store.SaveState(ctx, state))
	assert.ErrorIs(t, removeMarket(ctx, store, state, "fed-cut-march|Yes"), domain.ErrOpenPosition)

	require.NoError(t, resetSimulation(ctx, store, state, 2000))
	history, err := store.TradeHistory(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, history, "reset drops the persisted trade history")
	require.NoError(t, removeMarket(ctx, store, state, "fed-cut-march|Yes"))

	loaded, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded.MarketStates)
	assert.InDelta(t, 2000, loaded.CashBalance, 1e-9)
}

func TestRun_ReturnsErrorsInsteadOfExiting(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Storage.DSN = filepath.Join(t.TempDir(), "missing", "rotator.db")

	assert.Error(t, run(ctx, cfg, cliOptions{report: true}))

	cfg.Storage.DSN = filepath.Join(t.TempDir(), "rotator.db")
	assert.ErrorContains(t, run(ctx, cfg, cliOptions{remove: "nope"}), "expected <market>|<outcome>")

	// La base queda cerrada y reabrible tras un comando.
	require.NoError(t, run(ctx, cfg, cliOptions{reset: 750}))
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	require.NoError(t, err)
	defer store.Close()
	state, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 750, state.CashBalance, 1e-9)
}
