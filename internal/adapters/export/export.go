// Package export escribe el trade log en CSV y NDJSON para análisis externo.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polyrotate/internal/domain"
)

var header = []string{
	"timestamp", "action", "market_id", "question", "outcome", "shares", "price",
	"value", "g_before", "g_after", "slippage_bps", "reasons",
}

// row es la forma plana de un trade, compartida por CSV y NDJSON.
type row struct {
	Timestamp   string   `json:"timestamp"`
	Action      string   `json:"action"`
	MarketID    string   `json:"market_id"`
	Question    string   `json:"question"`
	Outcome     string   `json:"outcome"`
	Shares      float64  `json:"shares"`
	Price       float64  `json:"price"`
	Value       float64  `json:"value"`
	GBefore     *float64 `json:"g_before"`
	GAfter      *float64 `json:"g_after"`
	SlippageBps float64  `json:"slippage_bps"`
	Reasons     []string `json:"reasons"`
}

func toRow(e domain.TradeLogEntry) row {
	reasons := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		reasons[i] = string(r)
	}
	return row{
		Timestamp:   e.Timestamp.UTC().Format(time.RFC3339),
		Action:      string(e.Action),
		MarketID:    e.MarketID,
		Question:    e.Question,
		Outcome:     e.Outcome,
		Shares:      e.Shares,
		Price:       e.Price,
		Value:       e.Value,
		GBefore:     e.GBefore,
		GAfter:      e.GAfter,
		SlippageBps: e.SlippageBps,
		Reasons:     reasons,
	}
}

// WriteCSV escribe los trades con cabecera. Undefined g values are empty cells.
func WriteCSV(w io.Writer, entries []domain.TradeLogEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("export.WriteCSV: header: %w", err)
	}
	for _, e := range entries {
		r := toRow(e)
		if err := cw.Write([]string{
			r.Timestamp,
			r.Action,
			r.MarketID,
			r.Question,
			r.Outcome,
			f(r.Shares),
			f(r.Price),
			f(r.Value),
			optional(r.GBefore),
			optional(r.GAfter),
			f(r.SlippageBps),
			strings.Join(r.Reasons, ";"),
		}); err != nil {
			return fmt.Errorf("export.WriteCSV: trade %s: %w", e.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export.WriteCSV: flush: %w", err)
	}
	return nil
}

// WriteNDJSON escribe un objeto JSON por línea.
func WriteNDJSON(w io.Writer, entries []domain.TradeLogEntry) error {
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(toRow(e)); err != nil {
			return fmt.Errorf("export.WriteNDJSON: trade %s: %w", e.ID, err)
		}
	}
	return nil
}

// ExportTradeLog crea trades_<stamp>.csv y trades_<stamp>.ndjson en dir y
// devuelve sus rutas.
func ExportTradeLog(dir string, entries []domain.TradeLogEntry, now time.Time) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export.ExportTradeLog: mkdir %s: %w", dir, err)
	}
	base := filepath.Join(dir, "trades_"+now.UTC().Format("20060102_150405"))

	writers := []struct {
		ext   string
		write func(io.Writer, []domain.TradeLogEntry) error
	}{
		{".csv", WriteCSV},
		{".ndjson", WriteNDJSON},
	}

	paths := make([]string, 0, len(writers))
	for _, w := range writers {
		path := base + w.ext
		if err := writeFile(path, entries, w.write); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, entries []domain.TradeLogEntry, write func(io.Writer, []domain.TradeLogEntry) error) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export.ExportTradeLog: create %s: %w", path, err)
	}
	if err := write(fh, entries); err != nil {
		fh.Close()
		return err
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("export.ExportTradeLog: close %s: %w", path, err)
	}
	return nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

func optional(x *float64) string {
	if x == nil {
		return ""
	}
	return f(*x)
}
