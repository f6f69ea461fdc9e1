// Package runner es el loop de polling: refresca quotes, corre los circuit
// breakers, ejecuta el allocation engine y persiste el resultado.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/alejandrodnm/polyrotate/internal/application/engine"
	"github.com/alejandrodnm/polyrotate/internal/application/engine/allocation"
	"github.com/alejandrodnm/polyrotate/internal/application/engine/breaker"
	"github.com/alejandrodnm/polyrotate/internal/domain"
	"github.com/alejandrodnm/polyrotate/internal/ports"
	"golang.org/x/sync/errgroup"
)

const (
	defaultInterval = 60 * time.Second
	defaultWorkers  = 4
)

// ErrNoQuotes is returned when every tracked market failed to refresh.
var ErrNoQuotes = errors.New("no quotes refreshed")

// Config contiene la configuración del loop.
type Config struct {
	Interval       time.Duration
	Jitter         float64 // fraction of Interval, e.g. 0.1 for ±10%
	MaxBackoff     time.Duration
	Workers        int
	TradingEnabled bool
	StopFile       string
}

// CycleResult contiene todo lo producido por un ciclo.
type CycleResult struct {
	Decision    *domain.DecisionRecord
	Refreshed   int
	FetchErrors int
	Trips       []breaker.Trip
	Traded      bool
	Duration    time.Duration
}

// Runner orquesta un RuntimeState. It is the only writer of that state.
type Runner struct {
	cfg       Config
	quotes    ports.QuoteProvider
	store     ports.StateStore
	alloc     *allocation.Engine
	breakers  *breaker.Evaluator
	notifier  ports.Notifier
	syncer    ports.StateSyncer
	publisher ports.DecisionPublisher
	now       engine.Clock
	jitter    func() float64
}

// Option configura un Runner.
type Option func(*Runner)

// WithNotifier prints every cycle.
func WithNotifier(n ports.Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithSyncer replicates the state after every persisted cycle.
func WithSyncer(s ports.StateSyncer) Option {
	return func(r *Runner) { r.syncer = s }
}

// WithPublisher publishes every decision.
func WithPublisher(p ports.DecisionPublisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithClock overrides the time used to stamp quotes.
func WithClock(now engine.Clock) Option {
	return func(r *Runner) { r.now = now }
}

// New crea un Runner con todas las dependencias inyectadas.
func New(
	cfg Config,
	quotes ports.QuoteProvider,
	store ports.StateStore,
	alloc *allocation.Engine,
	breakers *breaker.Evaluator,
	opts ...Option,
) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	r := &Runner{
		cfg:      cfg,
		quotes:   quotes,
		store:    store,
		alloc:    alloc,
		breakers: breakers,
		now:      engine.SystemClock,
		jitter:   rand.Float64,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run ejecuta ciclos hasta que el contexto se cancele o aparezca el STOP file.
// Failed cycles back off exponentially instead of waiting one interval.
func (r *Runner) Run(ctx context.Context, state *domain.RuntimeState) error {
	slog.Info("runner starting",
		"interval", r.cfg.Interval,
		"trading", r.cfg.TradingEnabled,
		"markets", len(state.MarketStates),
	)

	failures := 0
	for {
		if r.stopRequested() {
			slog.Info("STOP file detected, shutting down", "file", r.cfg.StopFile)
			return nil
		}

		_, err := r.RunOnce(ctx, state)
		if ctx.Err() != nil {
			slog.Info("runner stopped")
			return nil
		}
		if err != nil {
			failures++
			slog.Error("cycle failed", "err", err, "consecutive_failures", failures)
		} else {
			failures = 0
		}

		timer := time.NewTimer(r.nextDelay(failures))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("runner stopped")
			return nil
		case <-timer.C:
		}
	}
}

// nextDelay is the jittered interval after a good cycle, or an exponential
// backoff from 2×interval capped at MaxBackoff after failures.
func (r *Runner) nextDelay(failures int) time.Duration {
	if failures > 0 {
		d := float64(2*r.cfg.Interval) * math.Pow(2, float64(failures-1))
		if r.cfg.MaxBackoff > 0 && d > float64(r.cfg.MaxBackoff) {
			return r.cfg.MaxBackoff
		}
		return time.Duration(min(d, math.MaxInt64))
	}
	if r.cfg.Jitter <= 0 {
		return r.cfg.Interval
	}
	spread := r.cfg.Jitter * (2*r.jitter() - 1)
	return time.Duration(float64(r.cfg.Interval) * (1 + spread))
}

func (r *Runner) stopRequested() bool {
	if r.cfg.StopFile == "" {
		return false
	}
	if _, err := os.Stat(r.cfg.StopFile); err != nil {
		return false
	}
	if err := os.Remove(r.cfg.StopFile); err != nil {
		slog.Warn("could not remove STOP file", "file", r.cfg.StopFile, "err", err)
	}
	return true
}

// RunOnce ejecuta exactamente un ciclo sobre state.
func (r *Runner) RunOnce(ctx context.Context, state *domain.RuntimeState) (*CycleResult, error) {
	start := time.Now()
	result := &CycleResult{}

	refreshed, failed, err := r.refresh(ctx, state)
	result.Refreshed = refreshed
	result.FetchErrors = failed
	if err != nil {
		return result, fmt.Errorf("runner.RunOnce: refresh: %w", err)
	}

	result.Trips = r.breakers.EvaluateAll(state)

	if r.cfg.TradingEnabled {
		result.Decision = r.alloc.Execute(state)
		result.Traded = true
	} else {
		result.Decision = r.alloc.Evaluate(state)
		state.LastDecision = result.Decision
	}

	if err := r.store.SaveState(ctx, state); err != nil {
		return result, fmt.Errorf("runner.RunOnce: save state: %w", err)
	}
	if err := r.store.SaveDecision(ctx, result.Decision); err != nil {
		slog.Warn("storage error", "op", "save_decision", "err", err)
	}

	if r.syncer != nil {
		if err := r.syncer.PushState(ctx, state); err != nil {
			slog.Warn("cloud sync failed", "err", err)
		}
	}
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, result.Decision, state); err != nil {
			slog.Warn("dashboard publish failed", "err", err)
		}
	}
	if r.notifier != nil {
		r.notifier.PrintDecision(result.Decision, state)
	}

	result.Duration = time.Since(start)
	slog.Info("cycle complete",
		"refreshed", result.Refreshed,
		"fetch_errors", result.FetchErrors,
		"freezes", len(result.Trips),
		"buys", len(result.Decision.Buys),
		"sells", len(result.Decision.Sells),
		"cash", fmt.Sprintf("$%.2f", state.CashBalance),
		"duration", result.Duration.Round(time.Millisecond),
	)
	return result, nil
}

type fetched struct {
	quote domain.Quote
	at    time.Time
	err   error
}

// refresh fetches every tracked market in parallel and applies the quotes in
// priority order once all fetches are back. Markets that fail keep their
// previous snapshot.
func (r *Runner) refresh(ctx context.Context, state *domain.RuntimeState) (int, int, error) {
	markets := state.Markets()
	if len(markets) == 0 {
		return 0, 0, nil
	}

	results := make([]fetched, len(markets))
	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for i, m := range markets {
		id, outcome := m.MarketID, m.Outcome
		g.Go(func() error {
			q, err := r.quotes.FetchQuote(ctx, id, outcome)
			results[i] = fetched{quote: q, at: r.now().UTC(), err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	var refreshed, failed int
	var errs []error
	for i, m := range markets {
		res := results[i]
		if res.err != nil {
			failed++
			errs = append(errs, fmt.Errorf("%s: %w", m.Key(), res.err))
			slog.Warn("quote fetch failed", "market", m.Key(), "err", res.err)
			continue
		}
		m.ApplyQuote(res.quote, res.at)
		refreshed++
	}
	if refreshed == 0 {
		return 0, failed, fmt.Errorf("%w: %w", ErrNoQuotes, errors.Join(errs...))
	}
	return refreshed, failed, nil
}
