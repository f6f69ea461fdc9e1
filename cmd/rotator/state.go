package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alejandrodnm/polyrotate/config"
	"github.com/alejandrodnm/polyrotate/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyrotate/internal/adapters/storage"
	"github.com/alejandrodnm/polyrotate/internal/domain"
	"github.com/alejandrodnm/polyrotate/internal/ports"
)

// marketResolver es la parte del cliente de Polymarket que usa -add.
type marketResolver interface {
	ResolveMarket(ctx context.Context, identifier string) (polymarket.MarketInfo, error)
}

// stateResetter persiste un reset junto con el borrado del histórico de trades.
type stateResetter interface {
	ResetState(ctx context.Context, state *domain.RuntimeState) error
}

// ensureRuntimeState carga el estado persistido o crea uno nuevo con todo el
// budget en cash. Tracked markets from the config are added when absent.
func ensureRuntimeState(ctx context.Context, store ports.StateStore, cfg *config.Config) (*domain.RuntimeState, error) {
	state, err := store.LoadState(ctx)
	switch {
	case errors.Is(err, storage.ErrStateNotFound):
		state = domain.NewRuntimeState(cfg.Portfolio.TotalBudget, cfg.Mode)
		slog.Info("new runtime state", "budget", fmt.Sprintf("$%.2f", state.TotalBudget))
	case err != nil:
		return nil, err
	default:
		state.EnsureCash()
	}
	state.Mode = cfg.Mode

	added := 0
	for _, t := range cfg.Portfolio.Tracked {
		if state.Market(domain.MarketKey(t.MarketID, t.Outcome)) != nil {
			continue
		}
		if err := state.AddMarket(domain.NewMarketState(t.MarketID, t.Outcome)); err != nil {
			return nil, err
		}
		added++
	}
	if added > 0 {
		slog.Info("tracked markets added from config", "count", added)
		if err := store.SaveState(ctx, state); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// splitPair separa "<market>|<outcome>". The market part may be a URL, so the
// last separator wins.
func splitPair(value string) (string, string, error) {
	i := strings.LastIndex(value, "|")
	if i <= 0 || i == len(value)-1 {
		return "", "", fmt.Errorf("expected <market>|<outcome>, got %q", value)
	}
	return strings.TrimSpace(value[:i]), strings.TrimSpace(value[i+1:]), nil
}

// addMarket resuelve el mercado en Gamma y lo añade al estado.
func addMarket(ctx context.Context, resolver marketResolver, store ports.StateStore, state *domain.RuntimeState, value string) error {
	ident, outcome, err := splitPair(value)
	if err != nil {
		return err
	}
	info, err := resolver.ResolveMarket(ctx, ident)
	if err != nil {
		return err
	}

	canonical := ""
	for _, o := range info.Outcomes {
		if strings.EqualFold(o, outcome) {
			canonical = o
			break
		}
	}
	if canonical == "" {
		return fmt.Errorf("outcome %q not in market %s (have %v)", outcome, info.ID, info.Outcomes)
	}
	if info.Closed {
		slog.Warn("market is closed, tracking anyway", "market", info.ID)
	}

	m := domain.NewMarketState(info.ID, canonical)
	m.Question = info.Question
	if err := state.AddMarket(m); err != nil {
		return err
	}
	if err := store.SaveState(ctx, state); err != nil {
		return err
	}
	slog.Info("market added", "key", m.Key(), "question", info.Question, "end", info.EndDate)
	return nil
}

// removeMarket deja de seguir un mercado sin posición abierta.
func removeMarket(ctx context.Context, store ports.StateStore, state *domain.RuntimeState, value string) error {
	id, outcome, err := splitPair(value)
	if err != nil {
		return err
	}
	if err := state.RemoveMarket(domain.MarketKey(id, outcome)); err != nil {
		return err
	}
	if err := store.SaveState(ctx, state); err != nil {
		return err
	}
	slog.Info("market removed", "key", domain.MarketKey(id, outcome))
	return nil
}

// resetSimulation cierra todas las posiciones simuladas, reinicia el budget
// y borra el histórico de trades.
func resetSimulation(ctx context.Context, store stateResetter, state *domain.RuntimeState, budget float64) error {
	state.ResetSimulation(budget)
	if err := store.ResetState(ctx, state); err != nil {
		return err
	}
	slog.Info("simulation reset", "budget", fmt.Sprintf("$%.2f", budget), "markets", len(state.MarketStates))
	return nil
}
