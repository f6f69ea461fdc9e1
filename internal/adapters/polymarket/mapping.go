package polymarket

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polyrotate/internal/domain"
)

// Polymarket usa varios formatos; intentamos los más comunes.
var endDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02",
}

// mapQuote convierte metadata de Gamma y el book del outcome a domain.Quote.
func mapQuote(gm gammaMarket, outcomeIdx int, book domain.OrderBook) domain.Quote {
	eventID, eventLabel := parentEvent(gm)
	q := domain.Quote{
		Question:       questionOf(gm),
		EventID:        eventID,
		EventLabel:     eventLabel,
		ResolutionTime: parseEndDate(gm),
		Volume:         volumeOf(gm),
		Book:           book,
	}
	if outcomeIdx < len(gm.OutcomePrices) {
		if p, err := strconv.ParseFloat(gm.OutcomePrices[outcomeIdx], 64); err == nil && p > 0 {
			q.LastPrice = p
		}
	}
	return q
}

// marketID is the identifier stored in the tracked set: the slug when present.
func marketID(gm gammaMarket) string {
	if gm.Slug != "" {
		return gm.Slug
	}
	return gm.ID
}

func questionOf(gm gammaMarket) string {
	if gm.Question != "" {
		return gm.Question
	}
	return gm.Slug
}

// parentEvent agrupa el mercado bajo su primer evento; sin eventos, el
// mercado es su propio grupo (por conditionId).
func parentEvent(gm gammaMarket) (string, string) {
	if len(gm.Events) > 0 {
		ev := gm.Events[0]
		id := firstNonEmpty(ev.ID, ev.Slug, gm.ConditionID, gm.ID)
		label := firstNonEmpty(ev.Title, ev.Slug, gm.GroupItemTitle)
		return id, label
	}
	return firstNonEmpty(gm.ConditionID, gm.ID), questionOf(gm)
}

func volumeOf(gm gammaMarket) float64 {
	for _, n := range []string{gm.VolumeNum.String(), gm.Volume.String()} {
		if v, err := strconv.ParseFloat(n, 64); err == nil && v > 0 {
			return v
		}
	}
	return 0
}

func parseEndDate(gm gammaMarket) time.Time {
	raw := firstNonEmpty(gm.EndDate, gm.EndDateISO)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range endDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// outcomeIndex busca el outcome por nombre, sin distinguir mayúsculas.
func outcomeIndex(gm gammaMarket, outcome string) (int, bool) {
	for i, name := range gm.Outcomes {
		if strings.EqualFold(name, outcome) {
			return i, true
		}
	}
	return 0, false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// mapOrderBook convierte la respuesta de /book a domain.OrderBook.
func mapOrderBook(tokenID string, r bookResponse) domain.OrderBook {
	if r.AssetID != "" {
		tokenID = r.AssetID
	}
	return domain.OrderBook{
		TokenID: tokenID,
		Bids:    mapBookEntries(r.Bids, false),
		Asks:    mapBookEntries(r.Asks, true),
	}
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, _ := strconv.ParseFloat(r.Price, 64)
		size, _ := strconv.ParseFloat(r.Size, 64)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	return entries
}
