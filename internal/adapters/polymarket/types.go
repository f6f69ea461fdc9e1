package polymarket

import (
	"encoding/json"
	"fmt"
)

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- CLOB API ---

// bookResponse es la respuesta de GET /book.
type bookResponse struct {
	Market  string         `json:"market"`
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw es un nivel de precio raw de la API (strings para mayor precisión).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// --- Gamma API ---

// gammaMarket contiene la metadata de un mercado.
// Gamma devuelve algunos campos numéricos como strings JSON, usamos json.Number.
type gammaMarket struct {
	ID             string       `json:"id"`
	ConditionID    string       `json:"conditionId"`
	Question       string       `json:"question"`
	Slug           string       `json:"slug"`
	GroupItemTitle string       `json:"groupItemTitle"`
	EndDate        string       `json:"endDate"`
	EndDateISO     string       `json:"endDateIso"`
	Outcomes       stringList   `json:"outcomes"`
	ClobTokenIDs   stringList   `json:"clobTokenIds"`
	OutcomePrices  stringList   `json:"outcomePrices"`
	VolumeNum      json.Number  `json:"volumeNum"`
	Volume         json.Number  `json:"volume"`
	Active         bool         `json:"active"`
	Closed         bool         `json:"closed"`
	Events         []gammaEvent `json:"events"`
}

// gammaEvent es el evento padre que agrupa mercados relacionados.
type gammaEvent struct {
	ID    string `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// stringList acepta tanto un array JSON como un string que contiene un array
// JSON: Gamma codifica outcomes, clobTokenIds y outcomePrices así.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*l = nil
		return nil
	}
	var raw []any
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*l = nil
			return nil
		}
		b = []byte(s)
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("parse list: %w", err)
	}
	out := make([]string, len(raw))
	for i, v := range raw {
		if s, ok := v.(string); ok {
			out[i] = s
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	*l = out
	return nil
}
