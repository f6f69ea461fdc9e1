package cloudsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyrotate/internal/domain"
)

func TestPendingTrades(t *testing.T) {
	log := []domain.TradeLogEntry{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	pushed := map[string]struct{}{"a": {}, "c": {}}

	got := pendingTrades(log, pushed)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)

	assert.Empty(t, pendingTrades(nil, pushed))
}

func TestTradeArgs(t *testing.T) {
	ts := time.Date(2026, 1, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	g := 0.01
	e := domain.TradeLogEntry{
		ID: "t1", Timestamp: ts, Action: domain.ActionBuy, MarketID: "m", Outcome: "Yes",
		Shares: 10, Price: 0.5, Value: 5, GAfter: &g,
		Reasons: []domain.Reason{domain.ReasonEntry},
	}

	args := tradeArgs("inst", e)
	require.Len(t, args, 14)
	assert.Equal(t, "inst", args[0])
	assert.Equal(t, "t1", args[1])
	assert.Equal(t, time.UTC, args[2].(time.Time).Location())
	assert.Equal(t, "BUY", args[3])
	assert.Nil(t, args[10].(*float64))
	assert.Equal(t, &g, args[11])
	assert.JSONEq(t, `["entry"]`, string(args[13].([]byte)))
}

func TestNew_InvalidDSN(t *testing.T) {
	_, err := New(context.Background(), "postgres://user@localhost:notaport/db", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cloudsync.New: parse config")
}
