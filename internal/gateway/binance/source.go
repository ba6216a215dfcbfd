package binance

import (
	"context"
	"net/http"
	"strconv"

	"aurum/internal/logger"
	"aurum/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
)

// Source 通过 Binance 合约行情提供单币种现价查询。
// 查不到价格一律视为 absent 而非错误：调用方跳过该币种即可。
type Source struct {
	cfg    Config
	client *futures.Client
}

func New(cfg Config) *Source {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	if final.RESTBaseURL != "" {
		client.BaseURL = final.RESTBaseURL
	}
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Source{cfg: final, client: client}
}

// FetchPrice 查询标准化后 symbol 的最新成交价。
// 取消信号已触发时不再发起网络请求。
func (s *Source) FetchPrice(ctx context.Context, raw string) (float64, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return 0, false
	}
	sym := symbol.Normalize(raw)
	if sym == "" {
		return 0, false
	}
	prices, err := s.client.NewListPricesService().Symbol(sym).Do(ctx)
	if err != nil {
		logger.Debugf("[binance] price %s unavailable: %v", sym, err)
		return 0, false
	}
	for _, p := range prices {
		if p == nil || symbol.Normalize(p.Symbol) != sym {
			continue
		}
		f, perr := strconv.ParseFloat(p.Price, 64)
		if perr != nil || f <= 0 {
			logger.Debugf("[binance] price %s malformed: %q", sym, p.Price)
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// QuoteAsset 返回配置的计价资产（默认 USDT）。
func (s *Source) QuoteAsset() string {
	return s.cfg.QuoteAsset
}
