package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"btc/usdt":   "BTCUSDT",
		"BTC-USDT":   "BTCUSDT",
		"eth_usdt":   "ETHUSDT",
		" sol usdt ": "SOLUSDT",
		"BTCUSDT":    "BTCUSDT",
		"":           "",
		"   ":        "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, Normalize(raw), "raw=%q", raw)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	once := Normalize("doge/usdt")
	assert.Equal(t, once, Normalize(once))
}

func TestWithQuote(t *testing.T) {
	assert.Equal(t, "BTCUSDT", WithQuote("btc", "usdt"))
	assert.Equal(t, "BTCUSDT", WithQuote("btc/usdt", "USDT"))
	assert.Equal(t, "ETH", WithQuote("eth", ""))
	assert.Equal(t, "", WithQuote("", "usdt"))
}
