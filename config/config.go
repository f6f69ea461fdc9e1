package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/polyrotate/internal/domain"
)

// SchemaVersion is the only config schema this build understands.
const SchemaVersion = "1"

var ErrSchemaVersion = errors.New("unsupported config schema_version")

// Config es la configuración completa del rotador.
type Config struct {
	SchemaVersion string              `yaml:"schema_version"`
	Mode          string              `yaml:"mode"` // dry_run | live
	Polling       PollingConfig       `yaml:"polling"`
	Global        domain.GlobalPolicy `yaml:"global"`
	Markets       MarketPolicies      `yaml:"markets"`
	Portfolio     PortfolioConfig     `yaml:"portfolio"`
	API           APIConfig           `yaml:"api"`
	Storage       StorageConfig       `yaml:"storage"`
	Log           LogConfig           `yaml:"log"`
	CloudSync     CloudSyncConfig     `yaml:"cloud_sync"`
	Dashboard     DashboardConfig     `yaml:"dashboard"`
	Export        ExportConfig        `yaml:"export"`
}

// PollingConfig controla el loop.
type PollingConfig struct {
	IntervalSeconds   int     `yaml:"interval_seconds"`
	JitterPct         float64 `yaml:"jitter_pct"`
	MaxBackoffSeconds int     `yaml:"max_backoff_seconds"`
	StaleAfterSeconds int     `yaml:"stale_after_seconds"` // 0 desactiva el chequeo
	Workers           int     `yaml:"workers"`
	StopFile          string  `yaml:"stop_file"`
}

// TrackedMarket es un par (market, outcome) a seguir desde el arranque.
type TrackedMarket struct {
	MarketID string `yaml:"market_id"`
	Outcome  string `yaml:"outcome"`
}

// PortfolioConfig define el budget inicial y los mercados trackeados.
type PortfolioConfig struct {
	TotalBudget float64         `yaml:"total_budget"`
	Tracked     []TrackedMarket `yaml:"tracked"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase       string `yaml:"clob_base"`
	GammaBase      string `yaml:"gamma_base"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// StorageConfig controla dónde se persiste el estado.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// CloudSyncConfig activa la réplica en Postgres.
type CloudSyncConfig struct {
	Enabled    bool   `yaml:"enabled"`
	DSN        string `yaml:"dsn"`
	InstanceID string `yaml:"instance_id"`
}

// DashboardConfig activa la publicación en Redis.
type DashboardConfig struct {
	Enabled    bool   `yaml:"enabled"`
	RedisURL   string `yaml:"redis_url"`
	Key        string `yaml:"key"`
	Channel    string `yaml:"channel"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// ExportConfig es el directorio por defecto de -export.
type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// MarketPolicies son las políticas por mercado. Each entry starts from the
// built-in defaults so omitted keys keep their default value.
type MarketPolicies map[string]domain.MarketPolicy

// UnmarshalYAML decodifica cada política sobre DefaultMarketPolicy.
func (m *MarketPolicies) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("markets: expected a mapping, got %s", node.Tag)
	}
	out := make(MarketPolicies, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		id := node.Content[i].Value
		mp := domain.DefaultMarketPolicy()
		if err := node.Content[i+1].Decode(&mp); err != nil {
			return fmt.Errorf("markets.%s: %w", id, err)
		}
		out[id] = mp
	}
	*m = out
	return nil
}

// Default devuelve la configuración por defecto.
func Default() *Config {
	return &Config{
		SchemaVersion: SchemaVersion,
		Mode:          domain.ModeDryRun,
		Polling: PollingConfig{
			IntervalSeconds:   60,
			JitterPct:         0.1,
			MaxBackoffSeconds: 300,
			StaleAfterSeconds: 300,
			Workers:           4,
			StopFile:          "STOP",
		},
		Global:    domain.DefaultGlobalPolicy(),
		Markets:   MarketPolicies{domain.DefaultPolicyKey: domain.DefaultMarketPolicy()},
		Portfolio: PortfolioConfig{TotalBudget: 10000},
		API: APIConfig{
			CLOBBase:       "https://clob.polymarket.com",
			GammaBase:      "https://gamma-api.polymarket.com",
			TimeoutSeconds: 15,
		},
		Storage:   StorageConfig{DSN: "rotator.db"},
		Log:       LogConfig{Level: "info", Format: "text"},
		CloudSync: CloudSyncConfig{InstanceID: "default"},
		Dashboard: DashboardConfig{
			Key:        "rotator:opportunities",
			Channel:    "rotator:decisions",
			TTLSeconds: 600,
		},
		Export: ExportConfig{Dir: "exports"},
	}
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodifica data sobre Default, aplica overrides de entorno y valida.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SchemaVersion
	}
	if cfg.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("config.Load: schema_version %q (expected %q): %w",
			cfg.SchemaVersion, SchemaVersion, ErrSchemaVersion)
	}
	if _, ok := cfg.Markets[domain.DefaultPolicyKey]; !ok {
		if cfg.Markets == nil {
			cfg.Markets = make(MarketPolicies)
		}
		cfg.Markets[domain.DefaultPolicyKey] = domain.DefaultMarketPolicy()
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// WriteDefault crea path con la configuración por defecto si no existe.
// Devuelve true si escribió el archivo.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("config.WriteDefault: stat %q: %w", path, err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return false, fmt.Errorf("config.WriteDefault: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("config.WriteDefault: write %q: %w", path, err)
	}
	return true, nil
}

// Validate comprueba rangos y coherencia. All failures are reported together.
func (c *Config) Validate() error {
	var errs []error
	ensure := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	ensure(c.Mode == domain.ModeDryRun || c.Mode == domain.ModeLive,
		"mode must be %q or %q (got %q)", domain.ModeDryRun, domain.ModeLive, c.Mode)

	p := c.Polling
	ensure(p.IntervalSeconds >= 5, "polling.interval_seconds must be at least 5 (got %d)", p.IntervalSeconds)
	ensure(p.JitterPct >= 0 && p.JitterPct < 1, "polling.jitter_pct must be in [0, 1) (got %g)", p.JitterPct)
	ensure(p.MaxBackoffSeconds >= p.IntervalSeconds, "polling.max_backoff_seconds must be >= interval_seconds")
	ensure(p.StaleAfterSeconds >= 0, "polling.stale_after_seconds must be non-negative")
	ensure(p.Workers >= 1, "polling.workers must be at least 1 (got %d)", p.Workers)

	g := c.Global
	ensure(g.SettlementLambdaDays >= 0, "global.settlement_lambda_days must be non-negative")
	ensure(g.DeltaThreshold >= 0, "global.delta_threshold must be non-negative")
	ensure(g.MinG >= 0, "global.min_g must be non-negative")
	ensure(unit(g.CashReservePct), "global.cash_reserve_pct must be between 0 and 1 (got %g)", g.CashReservePct)
	ensure(unit(g.MaxParentAllocationPct), "global.max_parent_allocation_pct must be between 0 and 1 (got %g)", g.MaxParentAllocationPct)
	ensure(unit(g.MaxMonthAllocationPct), "global.max_month_allocation_pct must be between 0 and 1 (got %g)", g.MaxMonthAllocationPct)
	ensure(g.SlippageCapBps >= 0, "global.slippage_cap_bps must be non-negative")
	ensure(g.ExitSlippageCapBps >= 0, "global.exit_slippage_cap_bps must be non-negative")
	cb := g.CircuitBreakers
	ensure(cb.DropPct >= 0, "circuit_breakers.drop_pct must be non-negative")
	ensure(cb.DropWindowMinutes >= 1, "circuit_breakers.drop_window_minutes must be at least 1")
	ensure(cb.RecoveryWaitHours >= 0, "circuit_breakers.recovery_wait_hours must be non-negative")
	ensure(cb.VolumeSpikeMultiplier >= 0, "circuit_breakers.volume_spike_multiplier must be non-negative")

	for id, mp := range c.Markets {
		errs = append(errs, validateMarket(id, mp)...)
	}

	ensure(c.Portfolio.TotalBudget >= 0, "portfolio.total_budget must be non-negative")
	for i, t := range c.Portfolio.Tracked {
		ensure(t.MarketID != "" && t.Outcome != "", "portfolio.tracked[%d]: market_id and outcome are required", i)
	}
	ensure(c.Storage.DSN != "", "storage.dsn is required")
	ensure(!c.CloudSync.Enabled || c.CloudSync.DSN != "", "cloud_sync.dsn is required when cloud_sync is enabled")
	ensure(!c.Dashboard.Enabled || c.Dashboard.RedisURL != "", "dashboard.redis_url is required when dashboard is enabled")

	return errors.Join(errs...)
}

func validateMarket(id string, mp domain.MarketPolicy) []error {
	var errs []error
	ensure := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, fmt.Errorf("markets.%s: %s", id, msg))
		}
	}
	ensure(unit(mp.MaxAllocationPct), "max_allocation_pct must be between 0 and 1")
	ensure(mp.MaxNotional >= 0, "max_notional must be non-negative")
	ensure(mp.PerPassBuyCap >= 0, "per_pass_buy_cap must be non-negative")
	ensure(unit(mp.MinPrice), "min_price must be between 0 and 1")
	ensure(unit(mp.MaxPrice), "max_price must be between 0 and 1")
	ensure(mp.MinPrice <= mp.MaxPrice, "min_price must be <= max_price")
	ensure(mp.MinDays >= 0, "min_days must be non-negative")
	ensure(mp.MaxDays >= mp.MinDays, "max_days must be >= min_days")
	ensure(mp.MinG >= 0, "min_g must be non-negative")
	ensure(mp.SlippageCapBps == nil || *mp.SlippageCapBps >= 0, "slippage_cap_bps must be non-negative")
	ensure(mp.ExitSlippageCap == nil || *mp.ExitSlippageCap >= 0, "exit_slippage_cap_bps must be non-negative")
	ensure(mp.MaxPerEventPct == nil || unit(*mp.MaxPerEventPct), "max_per_event_pct must be between 0 and 1")
	ensure(mp.MaxPerMonthPct == nil || unit(*mp.MaxPerMonthPct), "max_per_month_pct must be between 0 and 1")
	ensure(mp.DropFreezePct >= 0, "drop_freeze_pct must be non-negative")
	ensure(mp.DropWindowMin >= 0, "drop_window_min must be non-negative")
	ensure(mp.RecoveryWaitHours >= 0, "recovery_wait_hours must be non-negative")
	return errs
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}

// Policy devuelve el conjunto de políticas que consume el allocation engine.
func (c *Config) Policy() *domain.Policy {
	markets := make(map[string]domain.MarketPolicy, len(c.Markets))
	for id, mp := range c.Markets {
		markets[id] = mp
	}
	return &domain.Policy{Global: c.Global, Markets: markets}
}

// Interval devuelve el intervalo de polling como time.Duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Polling.IntervalSeconds) * time.Second
}

// MaxBackoff es el techo del backoff tras ciclos fallidos.
func (c *Config) MaxBackoff() time.Duration {
	return time.Duration(c.Polling.MaxBackoffSeconds) * time.Second
}

// StaleAfter es la edad máxima de una quote antes de bloquear el mercado.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Polling.StaleAfterSeconds) * time.Second
}

// APITimeout es el timeout de cada request HTTP.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// DashboardTTL es la vida del snapshot publicado en Redis.
func (c *Config) DashboardTTL() time.Duration {
	return time.Duration(c.Dashboard.TTLSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("ROTATOR_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("CLOUD_SYNC_DSN")); v != "" {
		cfg.CloudSync.DSN = v
		cfg.CloudSync.Enabled = true
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.Dashboard.RedisURL = v
		cfg.Dashboard.Enabled = true
	}
}
