// Package dashboard publica el ranking de oportunidades en Redis para
// dashboards externos.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alejandrodnm/polyrotate/internal/domain"
	"github.com/alejandrodnm/polyrotate/internal/ports"
)

const (
	defaultKey     = "rotator:opportunities"
	defaultChannel = "rotator:decisions"
	defaultTTL     = 10 * time.Minute
)

// Snapshot es el documento guardado bajo la key: ranking y resumen de cartera.
type Snapshot struct {
	Timestamp     time.Time            `json:"timestamp"`
	Opportunities []domain.Opportunity `json:"opportunities"`
	CashBalance   float64              `json:"cash_balance"`
	MarketValue   float64              `json:"market_value"`
	TotalBudget   float64              `json:"total_budget"`
}

// Summary es el mensaje publicado en el canal en cada ciclo.
type Summary struct {
	Timestamp  time.Time `json:"timestamp"`
	Eligible   int       `json:"eligible"`
	Buys       int       `json:"buys"`
	Sells      int       `json:"sells"`
	Rejections int       `json:"rejections"`
	Top        string    `json:"top,omitempty"`
	TopG       *float64  `json:"top_g,omitempty"`
}

var _ ports.DecisionPublisher = (*Publisher)(nil)

// Publisher implementa ports.DecisionPublisher con go-redis.
type Publisher struct {
	rdb     *redis.Client
	key     string
	channel string
	ttl     time.Duration
}

// New parsea url (redis://...), verifica la conexión y devuelve el publisher.
// Empty key, channel or ttl take the package defaults.
func New(ctx context.Context, url, key, channel string, ttl time.Duration) (*Publisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("dashboard.New: parse url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("dashboard.New: ping: %w", err)
	}

	if key == "" {
		key = defaultKey
	}
	if channel == "" {
		channel = defaultChannel
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Publisher{rdb: rdb, key: key, channel: channel, ttl: ttl}, nil
}

// Publish guarda el snapshot con TTL y anuncia el resumen en el canal.
func (p *Publisher) Publish(ctx context.Context, rec *domain.DecisionRecord, state *domain.RuntimeState) error {
	if rec == nil {
		return nil
	}
	snap, err := json.Marshal(buildSnapshot(rec, state))
	if err != nil {
		return fmt.Errorf("dashboard.Publish: marshal snapshot: %w", err)
	}
	summary, err := json.Marshal(buildSummary(rec))
	if err != nil {
		return fmt.Errorf("dashboard.Publish: marshal summary: %w", err)
	}

	pipe := p.rdb.TxPipeline()
	pipe.Set(ctx, p.key, snap, p.ttl)
	pipe.Publish(ctx, p.channel, summary)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dashboard.Publish %s: %w", p.key, err)
	}
	return nil
}

// Close cierra la conexión.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}

func buildSnapshot(rec *domain.DecisionRecord, state *domain.RuntimeState) Snapshot {
	s := Snapshot{
		Timestamp:     rec.Timestamp,
		Opportunities: rec.Opportunities,
	}
	if state != nil {
		s.CashBalance = state.CashBalance
		s.MarketValue = state.MarketValueTotal()
		s.TotalBudget = state.TotalBudget
	}
	return s
}

func buildSummary(rec *domain.DecisionRecord) Summary {
	eligible := rec.Eligible()
	s := Summary{
		Timestamp:  rec.Timestamp,
		Eligible:   len(eligible),
		Buys:       len(rec.Buys),
		Sells:      len(rec.Sells),
		Rejections: len(rec.Rejections),
	}
	if len(eligible) > 0 {
		s.Top = eligible[0].MarketKey
		s.TopG = eligible[0].G
	}
	return s
}
