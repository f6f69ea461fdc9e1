package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyrotate/config"
	"github.com/alejandrodnm/polyrotate/internal/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"LOG_LEVEL", "LOG_FORMAT", "ROTATOR_DB", "CLOUD_SYNC_DSN", "REDIS_URL"} {
		t.Setenv(k, "")
	}
}

func TestParse_EmptyKeepsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, domain.ModeDryRun, cfg.Mode)
	assert.Equal(t, 60*time.Second, cfg.Interval())
	assert.Equal(t, 300*time.Second, cfg.MaxBackoff())
	assert.InDelta(t, 0.0002, cfg.Global.DeltaThreshold, 1e-12)
	assert.InDelta(t, 3.0, cfg.Global.CircuitBreakers.VolumeSpikeMultiplier, 1e-12)
	assert.Equal(t, domain.DefaultMarketPolicy(), cfg.Markets[domain.DefaultPolicyKey])
	assert.Equal(t, "rotator.db", cfg.Storage.DSN)
}

func TestParse_MarketPolicyKeepsOmittedDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Parse([]byte(`
schema_version: "1"
global:
  delta_threshold: 0.001
markets:
  fed-cut-march:
    auto_buy: true
    priority: 5
    max_per_event_pct: 0.5
portfolio:
  total_budget: 25000
  tracked:
    - market_id: fed-cut-march
      outcome: "Yes"
`))
	require.NoError(t, err)

	assert.InDelta(t, 0.001, cfg.Global.DeltaThreshold, 1e-12)
	// Las claves no mencionadas de global conservan el default
	assert.InDelta(t, 0.07, cfg.Global.CashReservePct, 1e-12)

	mp := cfg.Markets["fed-cut-march"]
	assert.True(t, mp.AutoBuy)
	assert.True(t, mp.AutoSell)
	assert.Equal(t, 5, mp.Priority)
	assert.InDelta(t, 0.90, mp.MaxPrice, 1e-12)
	require.NotNil(t, mp.MaxPerEventPct)
	assert.InDelta(t, 0.5, *mp.MaxPerEventPct, 1e-12)
	assert.Nil(t, mp.SlippageCapBps)

	_, ok := cfg.Markets[domain.DefaultPolicyKey]
	assert.True(t, ok, "default entry is always present")

	assert.InDelta(t, 25000, cfg.Portfolio.TotalBudget, 1e-9)
	assert.Equal(t, []config.TrackedMarket{{MarketID: "fed-cut-march", Outcome: "Yes"}}, cfg.Portfolio.Tracked)

	p := cfg.Policy()
	assert.True(t, p.ForMarket("fed-cut-march").AutoBuy)
	assert.False(t, p.ForMarket("other").AutoBuy)
}

func TestParse_SchemaVersionMismatch(t *testing.T) {
	clearEnv(t)

	_, err := config.Parse([]byte(`schema_version: "2"`))
	assert.ErrorIs(t, err, config.ErrSchemaVersion)
}

func TestParse_ValidationAggregatesErrors(t *testing.T) {
	clearEnv(t)

	_, err := config.Parse([]byte(`
mode: paper
polling:
  interval_seconds: 1
global:
  cash_reserve_pct: 1.5
markets:
  bad:
    min_price: 0.8
    max_price: 0.5
`))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "mode must be")
	assert.Contains(t, msg, "polling.interval_seconds must be at least 5")
	assert.Contains(t, msg, "global.cash_reserve_pct must be between 0 and 1")
	assert.Contains(t, msg, "markets.bad: min_price must be <= max_price")
}

func TestParse_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ROTATOR_DB", "/tmp/x.db")
	t.Setenv("CLOUD_SYNC_DSN", "postgres://u:p@db/rot")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := config.Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/x.db", cfg.Storage.DSN)
	assert.True(t, cfg.CloudSync.Enabled)
	assert.Equal(t, "postgres://u:p@db/rot", cfg.CloudSync.DSN)
	assert.True(t, cfg.Dashboard.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.DashboardTTL())
}

func TestParse_EnabledIntegrationsNeedEndpoints(t *testing.T) {
	clearEnv(t)

	_, err := config.Parse([]byte(`
cloud_sync:
  enabled: true
dashboard:
  enabled: true
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cloud_sync.dsn is required")
	assert.Contains(t, err.Error(), "dashboard.redis_url is required")
}

func TestWriteDefaultAndLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "rotator.yaml")

	wrote, err := config.WriteDefault(path)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = config.WriteDefault(path)
	require.NoError(t, err)
	assert.False(t, wrote, "existing file is left untouched")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Polling, cfg.Polling)
	assert.Equal(t, config.Default().Global, cfg.Global)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
