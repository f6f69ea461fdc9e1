// Package cloudsync replica el RuntimeState y el trade log en Postgres
// (Supabase u otro) para consultarlo fuera de la máquina que corre el loop.
package cloudsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alejandrodnm/polyrotate/internal/domain"
	"github.com/alejandrodnm/polyrotate/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS rotator_state (
    instance_id    TEXT PRIMARY KEY,
    schema_version TEXT        NOT NULL,
    document       JSONB       NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS rotator_trades (
    instance_id  TEXT        NOT NULL,
    trade_id     TEXT        NOT NULL,
    ts           TIMESTAMPTZ NOT NULL,
    action       TEXT        NOT NULL,
    market_id    TEXT        NOT NULL,
    outcome      TEXT        NOT NULL,
    question     TEXT,
    shares       DOUBLE PRECISION NOT NULL,
    price        DOUBLE PRECISION NOT NULL,
    value        DOUBLE PRECISION NOT NULL,
    g_before     DOUBLE PRECISION,
    g_after      DOUBLE PRECISION,
    slippage_bps DOUBLE PRECISION NOT NULL DEFAULT 0,
    reasons      JSONB,
    PRIMARY KEY (instance_id, trade_id)
);

CREATE INDEX IF NOT EXISTS idx_rotator_trades_ts ON rotator_trades(instance_id, ts);
`

const (
	upsertState = `
		INSERT INTO rotator_state (instance_id, schema_version, document, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (instance_id) DO UPDATE SET
			schema_version = EXCLUDED.schema_version,
			document       = EXCLUDED.document,
			updated_at     = EXCLUDED.updated_at`

	insertTrade = `
		INSERT INTO rotator_trades (
			instance_id, trade_id, ts, action, market_id, outcome, question,
			shares, price, value, g_before, g_after, slippage_bps, reasons
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13, $14
		) ON CONFLICT (instance_id, trade_id) DO NOTHING`
)

var _ ports.StateSyncer = (*Postgres)(nil)

// Postgres implementa ports.StateSyncer sobre un pgxpool.
type Postgres struct {
	pool       *pgxpool.Pool
	instanceID string

	mu     sync.Mutex
	pushed map[string]struct{} // trade IDs ya replicados en esta sesión
}

// New conecta con dsn y verifica la conexión. instanceID separa varias
// instancias del rotador que comparten la misma base de datos.
func New(ctx context.Context, dsn, instanceID string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("cloudsync.New: parse config: %w", err)
	}
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("cloudsync.New: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cloudsync.New: ping: %w", err)
	}
	if instanceID == "" {
		instanceID = "default"
	}
	return &Postgres{pool: pool, instanceID: instanceID, pushed: make(map[string]struct{})}, nil
}

// EnsureSchema crea las tablas si no existen.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("cloudsync.EnsureSchema: %w", err)
	}
	return nil
}

// PushState sube el documento y los trades que aún no se replicaron, en un
// único batch.
func (p *Postgres) PushState(ctx context.Context, state *domain.RuntimeState) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("cloudsync.PushState: marshal: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pending := pendingTrades(state.TradeLog, p.pushed)
	batch := &pgx.Batch{}
	batch.Queue(upsertState, p.instanceID, state.SchemaVersion, doc, time.Now().UTC())
	for _, e := range pending {
		batch.Queue(insertTrade, tradeArgs(p.instanceID, e)...)
	}

	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()

	if _, err := br.Exec(); err != nil {
		return fmt.Errorf("cloudsync.PushState: upsert state: %w", err)
	}
	for _, e := range pending {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("cloudsync.PushState: insert trade %s: %w", e.ID, err)
		}
		p.pushed[e.ID] = struct{}{}
	}
	return nil
}

// Close cierra el pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func pendingTrades(log []domain.TradeLogEntry, pushed map[string]struct{}) []domain.TradeLogEntry {
	var out []domain.TradeLogEntry
	for _, e := range log {
		if _, ok := pushed[e.ID]; !ok {
			out = append(out, e)
		}
	}
	return out
}

func tradeArgs(instanceID string, e domain.TradeLogEntry) []any {
	reasons, _ := json.Marshal(e.Reasons)
	return []any{
		instanceID, e.ID, e.Timestamp.UTC(), string(e.Action), e.MarketID, e.Outcome, e.Question,
		e.Shares, e.Price, e.Value, e.GBefore, e.GAfter, e.SlippageBps, reasons,
	}
}
