package symbol

import "strings"

var separatorReplacer = strings.NewReplacer("/", "", "-", "", "_", "", " ", "")

// Normalize 统一交易对写法：去分隔符并转大写（"btc/usdt" → "BTCUSDT"）。
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	return strings.ToUpper(separatorReplacer.Replace(s))
}

// WithQuote appends the quote asset when the symbol does not already carry one.
func WithQuote(raw, quote string) string {
	s := Normalize(raw)
	q := Normalize(quote)
	if s == "" || q == "" {
		return s
	}
	if strings.HasSuffix(s, q) {
		return s
	}
	return s + q
}
