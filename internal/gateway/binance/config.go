package binance

import "time"

// Config 描述 Binance 行情接入所需的参数。
type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
	QuoteAsset  string
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 10 * time.Second
	}
	if out.QuoteAsset == "" {
		out.QuoteAsset = "USDT"
	}
	return out
}
