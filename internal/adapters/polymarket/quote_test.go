package polymarket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/polyrotate/internal/adapters/polymarket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yesToken = "71321045679252212594626385532706912750332728571942532289631379312455583992563"

func newTestClient(clobSrv, gammaSrv *httptest.Server) *polymarket.Client {
	clobURL := ""
	gammaURL := ""
	if clobSrv != nil {
		clobURL = clobSrv.URL
	}
	if gammaSrv != nil {
		gammaURL = gammaSrv.URL
	}
	return polymarket.NewClient(clobURL, gammaURL)
}

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("../../../testdata/fixtures/" + name)
	require.NoError(t, err)
	return data
}

func gammaServer(t *testing.T) *httptest.Server {
	data := fixture(t, "gamma_markets_by_slug.json")
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "fed-cut-march", r.URL.Query().Get("slug"))
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
}

func clobServer(t *testing.T) *httptest.Server {
	data := fixture(t, "clob_book.json")
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book", r.URL.Path)
		assert.Equal(t, yesToken, r.URL.Query().Get("token_id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
}

func TestFetchQuote_Success(t *testing.T) {
	gamma := gammaServer(t)
	defer gamma.Close()
	clob := clobServer(t)
	defer clob.Close()

	q, err := newTestClient(clob, gamma).FetchQuote(context.Background(), "fed-cut-march", "yes")

	require.NoError(t, err)
	assert.Equal(t, "Will the Fed cut rates in March?", q.Question)
	assert.Equal(t, "9001", q.EventID)
	assert.Equal(t, "Fed decision in March", q.EventLabel)
	assert.Equal(t, time.Date(2026, 3, 18, 18, 0, 0, 0, time.UTC), q.ResolutionTime)
	assert.InDelta(t, 0.415, q.LastPrice, 1e-12)
	assert.InDelta(t, 1250000.5, q.Volume, 1e-9)

	assert.Equal(t, yesToken, q.Book.TokenID)
	require.Len(t, q.Book.Asks, 3, "zero-size levels are dropped")
	assert.InDelta(t, 0.42, q.Book.BestAsk(), 1e-12)
	assert.InDelta(t, 0.43, q.Book.Asks[1].Price, 1e-12)
	assert.InDelta(t, 0.44, q.Book.Asks[2].Price, 1e-12)
	require.Len(t, q.Book.Bids, 3)
	assert.InDelta(t, 0.41, q.Book.BestBid(), 1e-12)
	assert.InDelta(t, 0.39, q.Book.Bids[2].Price, 1e-12)
}

func TestFetchQuote_UnknownOutcome(t *testing.T) {
	gamma := gammaServer(t)
	defer gamma.Close()

	_, err := newTestClient(nil, gamma).FetchQuote(context.Background(), "fed-cut-march", "Maybe")

	require.Error(t, err)
	assert.Contains(t, err.Error(), `outcome "Maybe" not found`)
}

func TestFetchQuote_NumericIDUsesDirectPath(t *testing.T) {
	data := fixture(t, "gamma_markets_by_slug.json")
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/512345", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		// strip the surrounding array
		w.Write(data[1 : len(data)-2])
	}))
	defer gamma.Close()
	clob := clobServer(t)
	defer clob.Close()

	q, err := newTestClient(clob, gamma).FetchQuote(context.Background(), "512345", "Yes")

	require.NoError(t, err)
	assert.Equal(t, "9001", q.EventID)
}

func TestFetchQuote_EmptySearchFallsBackToPath(t *testing.T) {
	data := fixture(t, "gamma_markets_by_slug.json")
	var calls atomic.Int32
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/markets" {
			w.Write([]byte(`[]`))
			return
		}
		assert.Equal(t, "/markets/fed-cut-march", r.URL.Path)
		w.Write(data[1 : len(data)-2])
	}))
	defer gamma.Close()
	clob := clobServer(t)
	defer clob.Close()

	_, err := newTestClient(clob, gamma).FetchQuote(context.Background(), "fed-cut-march", "Yes")

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchQuote_NotFound(t *testing.T) {
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer gamma.Close()

	_, err := newTestClient(nil, gamma).FetchQuote(context.Background(), "123", "Yes")

	require.Error(t, err)
	assert.ErrorIs(t, err, polymarket.ErrNotFound)
}

func TestFetchOrderBook_ServerErrorRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"asset_id":"t1","bids":[],"asks":[{"price":"0.5","size":"10"}]}`))
	}))
	defer srv.Close()

	book, err := newTestClient(srv, nil).FetchOrderBook(context.Background(), "t1")

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.InDelta(t, 0.5, book.BestAsk(), 1e-12)
	assert.Empty(t, book.Bids)
}

func TestResolveMarket(t *testing.T) {
	gamma := gammaServer(t)
	defer gamma.Close()

	info, err := newTestClient(nil, gamma).ResolveMarket(context.Background(), "https://polymarket.com/event/fed-decision-march/fed-cut-march")

	require.NoError(t, err)
	assert.Equal(t, "fed-cut-march", info.ID)
	assert.Equal(t, []string{"Yes", "No"}, info.Outcomes)
	assert.False(t, info.Closed)
}

func TestExtractSlug(t *testing.T) {
	cases := map[string]string{
		"fed-cut-march":                                   "fed-cut-march",
		"  512345 ":                                       "512345",
		"https://polymarket.com/event/some-event/":        "some-event",
		"https://polymarket.com/market/fed-cut-march?x=1": "fed-cut-march",
	}
	for in, want := range cases {
		got, err := polymarket.ExtractSlug(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := polymarket.ExtractSlug("   ")
	assert.Error(t, err)
	_, err = polymarket.ExtractSlug("https://polymarket.com/")
	assert.Error(t, err)
}
