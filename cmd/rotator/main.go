package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/polyrotate/config"
	"github.com/alejandrodnm/polyrotate/internal/adapters/cloudsync"
	"github.com/alejandrodnm/polyrotate/internal/adapters/dashboard"
	"github.com/alejandrodnm/polyrotate/internal/adapters/notify"
	"github.com/alejandrodnm/polyrotate/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyrotate/internal/adapters/storage"
	"github.com/alejandrodnm/polyrotate/internal/application/engine/allocation"
	"github.com/alejandrodnm/polyrotate/internal/application/engine/breaker"
	"github.com/alejandrodnm/polyrotate/internal/application/engine/runner"
)

func main() {
	configPath := flag.String("config", "config/rotator.yaml", "path to config file (created with defaults if missing)")
	once := flag.Bool("once", false, "run one cycle and exit")
	dryRun := flag.Bool("dry-run", false, "evaluate and rank only, never simulate trades")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full tables + portfolio (default: compact 1-line)")
	add := flag.String("add", "", "track a market: <slug|id|url>|<outcome>")
	remove := flag.String("remove", "", "stop tracking a market: <market_id>|<outcome>")
	report := flag.Bool("report", false, "print portfolio and trade history, then exit")
	exportDir := flag.String("export", "", "write the trade log as CSV + NDJSON into dir, then exit")
	reset := flag.Float64("reset", 0, "close every simulated position and restart with this budget")
	flag.Parse()

	created, err := config.WriteDefault(*configPath)
	if err != nil {
		slog.Error("failed to write default config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)
	if created {
		slog.Info("default config written", "path", *configPath)
	}

	opts := cliOptions{
		once:      *once,
		dryRun:    *dryRun,
		table:     *table,
		add:       *add,
		remove:    *remove,
		report:    *report,
		exportDir: *exportDir,
		reset:     *reset,
	}

	slog.Info("polyrotate starting",
		"config", *configPath,
		"mode", cfg.Mode,
		"interval", cfg.Interval(),
		"dry_run", *dryRun,
		"once", *once,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// run devuelve el error en vez de salir: the deferred Close calls must run
	// before os.Exit.
	if err := run(ctx, cfg, opts); err != nil {
		slog.Error("polyrotate failed", "err", err)
		cancel()
		os.Exit(1)
	}
}

// cliOptions agrupa los flags que run necesita.
type cliOptions struct {
	once      bool
	dryRun    bool
	table     bool
	add       string
	remove    string
	report    bool
	exportDir string
	reset     float64
}

func run(ctx context.Context, cfg *config.Config, opts cliOptions) error {
	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase, polymarket.WithTimeout(cfg.APITimeout()))

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open storage %q: %w", cfg.Storage.DSN, err)
	}
	defer store.Close()

	state, err := ensureRuntimeState(ctx, store, cfg)
	if err != nil {
		return fmt.Errorf("load runtime state: %w", err)
	}

	notifier := notify.NewConsole(opts.table)

	// Comandos one-shot: mutan o leen el estado y salen.
	switch {
	case opts.add != "":
		return addMarket(ctx, client, store, state, opts.add)
	case opts.remove != "":
		return removeMarket(ctx, store, state, opts.remove)
	case opts.reset > 0:
		return resetSimulation(ctx, store, state, opts.reset)
	case opts.report:
		return printReport(ctx, store, state, notifier)
	case opts.exportDir != "":
		return exportTrades(ctx, store, opts.exportDir)
	}

	policy := cfg.Policy()
	alloc := allocation.New(policy, allocation.WithStaleAfter(cfg.StaleAfter()))
	breakers := breaker.New(policy, nil)

	runnerOpts := []runner.Option{runner.WithNotifier(notifier)}
	if cfg.CloudSync.Enabled {
		syncer, err := cloudsync.New(ctx, cfg.CloudSync.DSN, cfg.CloudSync.InstanceID)
		if err != nil {
			slog.Warn("cloud sync disabled", "err", err)
		} else {
			defer syncer.Close()
			if err := syncer.EnsureSchema(ctx); err != nil {
				slog.Warn("cloud sync schema", "err", err)
			}
			runnerOpts = append(runnerOpts, runner.WithSyncer(syncer))
		}
	}
	if cfg.Dashboard.Enabled {
		pub, err := dashboard.New(ctx, cfg.Dashboard.RedisURL, cfg.Dashboard.Key, cfg.Dashboard.Channel, cfg.DashboardTTL())
		if err != nil {
			slog.Warn("dashboard disabled", "err", err)
		} else {
			defer pub.Close()
			runnerOpts = append(runnerOpts, runner.WithPublisher(pub))
		}
	}

	r := runner.New(runner.Config{
		Interval:       cfg.Interval(),
		Jitter:         cfg.Polling.JitterPct,
		MaxBackoff:     cfg.MaxBackoff(),
		Workers:        cfg.Polling.Workers,
		TradingEnabled: !opts.dryRun,
		StopFile:       cfg.Polling.StopFile,
	}, client, store, alloc, breakers, runnerOpts...)

	if opts.once {
		if _, err := r.RunOnce(ctx, state); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("cycle failed: %w", err)
		}
		return nil
	}

	if err := r.Run(ctx, state); err != nil {
		return fmt.Errorf("runner: %w", err)
	}
	slog.Info("polyrotate stopped cleanly")
	return nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
