package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTickerServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchPrice_OK(t *testing.T) {
	srv := newTickerServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"symbol": "BTCUSDT", "price": "50123.45"}`))
	})

	src := New(Config{RESTBaseURL: srv.URL})
	price, ok := src.FetchPrice(context.Background(), "btc/usdt")
	require.True(t, ok)
	assert.InDelta(t, 50123.45, price, 1e-9)
}

func TestFetchPrice_UpstreamErrorIsAbsent(t *testing.T) {
	srv := newTickerServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code": -1121, "msg": "Invalid symbol."}`))
	})

	src := New(Config{RESTBaseURL: srv.URL})
	_, ok := src.FetchPrice(context.Background(), "NOSUCHUSDT")
	assert.False(t, ok)
}

func TestFetchPrice_MalformedPriceIsAbsent(t *testing.T) {
	srv := newTickerServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol": "BTCUSDT", "price": "not-a-number"}`))
	})

	src := New(Config{RESTBaseURL: srv.URL})
	_, ok := src.FetchPrice(context.Background(), "BTCUSDT")
	assert.False(t, ok)
}

func TestFetchPrice_EmptySymbolIsAbsent(t *testing.T) {
	src := New(Config{RESTBaseURL: "http://unused.invalid"})
	_, ok := src.FetchPrice(context.Background(), "  ")
	assert.False(t, ok)
}

func TestFetchPrice_CanceledContextSkipsRequest(t *testing.T) {
	var hits atomic.Int32
	srv := newTickerServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := New(Config{RESTBaseURL: srv.URL})
	_, ok := src.FetchPrice(ctx, "BTCUSDT")
	assert.False(t, ok)
	assert.Zero(t, hits.Load())
}

func TestConfig_Defaults(t *testing.T) {
	src := New(Config{})
	assert.Equal(t, "USDT", src.QuoteAsset())
}
