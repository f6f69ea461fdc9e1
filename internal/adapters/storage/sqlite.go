package storage

// sqlite.go — persistencia del RuntimeState.
//
// Estrategia:
//   - `runtime_state`: una sola fila con el documento JSON completo. Se
//     reemplaza en cada ciclo; es lo que se recarga al arrancar.
//   - `trade_log`: una fila por trade, append-only. El documento solo guarda
//     los últimos MaxTradeLog; aquí queda el histórico completo para exportar.
//   - Cache en memoria de trade IDs ya escritos: cada ciclo inserta solo las
//     filas nuevas en vez de reescribir el log entero.
//   - `decisions`: resumen + documento por ciclo. Prune al arrancar (> 30d).

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/polyrotate/internal/domain"
	"github.com/alejandrodnm/polyrotate/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
-- Documento completo del RuntimeState, siempre 1 fila
CREATE TABLE IF NOT EXISTS runtime_state (
    id             INTEGER PRIMARY KEY CHECK (id = 1),
    schema_version TEXT     NOT NULL,
    document       TEXT     NOT NULL,
    updated_at     TEXT     NOT NULL
);

-- Histórico completo de trades (el documento solo guarda los últimos)
CREATE TABLE IF NOT EXISTS trade_log (
    id           TEXT PRIMARY KEY,
    ts           TEXT NOT NULL,
    mode         TEXT NOT NULL,
    action       TEXT NOT NULL,
    market_id    TEXT NOT NULL,
    outcome      TEXT NOT NULL,
    question     TEXT,
    shares       REAL NOT NULL DEFAULT 0,
    price        REAL NOT NULL DEFAULT 0,
    value        REAL NOT NULL DEFAULT 0,
    g_before     REAL,
    g_after      REAL,
    slippage_bps REAL NOT NULL DEFAULT 0,
    reasons      TEXT,
    metadata     TEXT
);

-- Una fila por ciclo evaluado
CREATE TABLE IF NOT EXISTS decisions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    decided_at TEXT    NOT NULL,
    eligible   INTEGER NOT NULL DEFAULT 0,
    buys       INTEGER NOT NULL DEFAULT 0,
    sells      INTEGER NOT NULL DEFAULT 0,
    rejections INTEGER NOT NULL DEFAULT 0,
    document   TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trade_ts     ON trade_log(ts);
CREATE INDEX IF NOT EXISTS idx_trade_market ON trade_log(market_id, outcome);
CREATE INDEX IF NOT EXISTS idx_decisions_at ON decisions(decided_at DESC);
`

const (
	retentionDecisions = 30 * 24 * time.Hour

	// Fixed width so that lexical order equals time order.
	tsLayout = "2006-01-02T15:04:05.000000Z"
)

// ErrStateNotFound is returned by LoadState on a fresh database.
var ErrStateNotFound = errors.New("runtime state not found")

var _ ports.StateStore = (*SQLiteStorage)(nil)

// SQLiteStorage implementa ports.StateStore usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db      *sql.DB
	written map[string]struct{} // trade IDs ya persistidos
	mu      sync.Mutex
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema, limpia decisiones antiguas y precarga la cache.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{
		db:      db,
		written: make(map[string]struct{}),
	}
	s.pruneOld(context.Background())
	s.warmCache(context.Background())
	return s, nil
}

// SaveState reemplaza el documento y agrega las filas nuevas del trade log,
// todo en una transacción.
func (s *SQLiteStorage) SaveState(ctx context.Context, state *domain.RuntimeState) error {
	return s.save(ctx, state, false)
}

// ResetState guarda state tras un reset de la simulación: the whole trade_log
// table is dropped in the same transaction, so history starts at the reset.
func (s *SQLiteStorage) ResetState(ctx context.Context, state *domain.RuntimeState) error {
	return s.save(ctx, state, true)
}

func (s *SQLiteStorage) save(ctx context.Context, state *domain.RuntimeState, clearTrades bool) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("storage.SaveState: marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveState: begin tx: %w", err)
	}
	defer tx.Rollback()

	if clearTrades {
		if _, err := tx.ExecContext(ctx, `DELETE FROM trade_log`); err != nil {
			return fmt.Errorf("storage.ResetState: clear trade log: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runtime_state (id, schema_version, document, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			document       = excluded.document,
			updated_at     = excluded.updated_at
	`, state.SchemaVersion, string(doc), formatTS(time.Now())); err != nil {
		return fmt.Errorf("storage.SaveState: upsert state: %w", err)
	}

	fresh := state.TradeLog
	if !clearTrades {
		fresh = s.unwritten(state.TradeLog)
	}
	if len(fresh) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO trade_log
				(id, ts, mode, action, market_id, outcome, question, shares, price,
				 value, g_before, g_after, slippage_bps, reasons, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("storage.SaveState: prepare: %w", err)
		}
		defer stmt.Close()

		for _, e := range fresh {
			reasons, _ := json.Marshal(e.Reasons)
			var metadata []byte
			if len(e.Metadata) > 0 {
				metadata, _ = json.Marshal(e.Metadata)
			}
			if _, err := stmt.ExecContext(ctx,
				e.ID, formatTS(e.Timestamp), e.Mode, string(e.Action), e.MarketID, e.Outcome,
				e.Question, e.Shares, e.Price, e.Value, e.GBefore, e.GAfter, e.SlippageBps,
				string(reasons), nullString(metadata),
			); err != nil {
				return fmt.Errorf("storage.SaveState: insert trade %s: %w", e.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveState: commit: %w", err)
	}
	if clearTrades {
		clear(s.written)
	}
	for _, e := range fresh {
		s.written[e.ID] = struct{}{}
	}
	return nil
}

// LoadState devuelve el último documento guardado, normalizado.
func (s *SQLiteStorage) LoadState(ctx context.Context) (*domain.RuntimeState, error) {
	var version, doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT schema_version, document FROM runtime_state WHERE id = 1`,
	).Scan(&version, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage.LoadState: query: %w", err)
	}

	var state domain.RuntimeState
	if err := json.Unmarshal([]byte(doc), &state); err != nil {
		return nil, fmt.Errorf("storage.LoadState: decode: %w", err)
	}
	if err := checkVersion(version, state.SchemaVersion); err != nil {
		return nil, fmt.Errorf("storage.LoadState: %w", err)
	}
	state.Normalize()
	return &state, nil
}

// SaveDecision guarda el resumen y el documento de un ciclo.
func (s *SQLiteStorage) SaveDecision(ctx context.Context, rec *domain.DecisionRecord) error {
	if rec == nil {
		return nil
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage.SaveDecision: marshal: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (decided_at, eligible, buys, sells, rejections, document)
		VALUES (?, ?, ?, ?, ?, ?)
	`, formatTS(rec.Timestamp), len(rec.Eligible()), len(rec.Buys), len(rec.Sells), len(rec.Rejections), string(doc)); err != nil {
		return fmt.Errorf("storage.SaveDecision: insert: %w", err)
	}
	return nil
}

// RecentDecisions devuelve hasta limit decisiones, la más reciente primero.
func (s *SQLiteStorage) RecentDecisions(ctx context.Context, limit int) ([]domain.DecisionRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT document FROM decisions ORDER BY decided_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentDecisions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.DecisionRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("storage.RecentDecisions: scan row: %w", err)
		}
		var rec domain.DecisionRecord
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return nil, fmt.Errorf("storage.RecentDecisions: decode: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// TradeHistory devuelve los trades con timestamp en [from, to], en orden
// cronológico. A zero from or to leaves that side open.
func (s *SQLiteStorage) TradeHistory(ctx context.Context, from, to time.Time) ([]domain.TradeLogEntry, error) {
	lo, hi := "", "9999"
	if !from.IsZero() {
		lo = formatTS(from)
	}
	if !to.IsZero() {
		hi = formatTS(to)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, mode, action, market_id, outcome, question, shares, price,
		       value, g_before, g_after, slippage_bps, reasons, metadata
		FROM trade_log
		WHERE ts >= ? AND ts <= ?
		ORDER BY ts, rowid
	`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("storage.TradeHistory: query: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeLogEntry
	for rows.Next() {
		var (
			e                 domain.TradeLogEntry
			ts, action        string
			question          sql.NullString
			gBefore, gAfter   sql.NullFloat64
			reasons, metadata sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &ts, &e.Mode, &action, &e.MarketID, &e.Outcome, &question,
			&e.Shares, &e.Price, &e.Value, &gBefore, &gAfter, &e.SlippageBps,
			&reasons, &metadata,
		); err != nil {
			return nil, fmt.Errorf("storage.TradeHistory: scan row: %w", err)
		}
		e.Timestamp, _ = time.Parse(tsLayout, ts)
		e.Action = domain.TradeAction(action)
		e.Question = question.String
		if gBefore.Valid {
			e.GBefore = &gBefore.Float64
		}
		if gAfter.Valid {
			e.GAfter = &gAfter.Float64
		}
		if reasons.Valid {
			_ = json.Unmarshal([]byte(reasons.String), &e.Reasons)
		}
		if metadata.Valid {
			_ = json.Unmarshal([]byte(metadata.String), &e.Metadata)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// checkVersion valida la versión de la fila y la del documento. Documents
// written before versioning carry no version and are read as v1.
func checkVersion(column, document string) error {
	for _, v := range []string{column, document} {
		if v != "" && v != domain.RuntimeSchemaVersion {
			return fmt.Errorf("version %q: %w", v, domain.ErrSchemaVersion)
		}
	}
	return nil
}

// unwritten devuelve las entradas del log cuyo ID aún no está en la DB.
func (s *SQLiteStorage) unwritten(log []domain.TradeLogEntry) []domain.TradeLogEntry {
	var fresh []domain.TradeLogEntry
	for _, e := range log {
		if _, ok := s.written[e.ID]; ok {
			continue
		}
		fresh = append(fresh, e)
	}
	return fresh
}

// pruneOld elimina decisiones antiguas para mantener la DB ligera.
// The trade log is never pruned.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := formatTS(time.Now().Add(-retentionDecisions))
	s.db.ExecContext(ctx, `DELETE FROM decisions WHERE decided_at < ?`, cutoff)
}

// warmCache precarga los trade IDs ya persistidos, evitando reinsertar el log
// completo en el primer ciclo tras un reinicio.
func (s *SQLiteStorage) warmCache(ctx context.Context) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM trade_log`)
	if err != nil {
		return
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var id string
		if rows.Scan(&id) == nil {
			s.written[id] = struct{}{}
		}
	}
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func nullString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
