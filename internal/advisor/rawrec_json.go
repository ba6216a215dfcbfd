package advisor

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	numberPattern  = regexp.MustCompile(`[-+]?\d*\.?\d+`)
	recKeyReplacer = strings.NewReplacer("_", "", "-", "", " ", "")
)

// UnmarshalJSON 容忍模型输出的各种字段写法：大小写混用、snake/camel、
// 数字写成字符串等，统一归一后再取值。
func (r *RawRecommendation) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	norm := normalizeRecMap(raw)

	assignRecString(&r.Action, norm, "action", "side", "signal")
	assignRecString(&r.Asset, norm, "asset", "symbol", "ticker", "coin", "pair")
	assignRecString(&r.ReasoningSummary, norm, "reasoningsummary", "reasoning", "reason", "summary", "rationale")

	assignRecFloat(&r.Leverage, norm, "leverage", "lev")
	assignRecFloat(&r.StopLoss, norm, "stoploss", "sl", "stopprice")
	assignRecFloat(&r.TakeProfit, norm, "takeprofit", "tp", "targetprice", "target")
	assignRecFloat(&r.SuggestedPrice, norm, "suggestedprice", "entryprice", "entry", "price")
	assignRecFloat(&r.SuggestedQuantity, norm, "suggestedquantity", "quantity", "qty", "amount", "size")
	assignRecFloat(&r.Confidence, norm, "confidence", "conf")
	return nil
}

func assignRecString(dst *string, norm map[string]any, keys ...string) {
	for _, key := range keys {
		val, ok := norm[key]
		if !ok {
			continue
		}
		if s, ok := val.(string); ok && strings.TrimSpace(s) != "" {
			*dst = strings.TrimSpace(s)
			return
		}
	}
}

func assignRecFloat(dst *float64, norm map[string]any, keys ...string) {
	for _, key := range keys {
		val, ok := norm[key]
		if !ok {
			continue
		}
		if f, ok := convertRecFloat(val); ok {
			*dst = f
			return
		}
	}
}

func convertRecFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case nil:
		return 0, false
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		token := numberPattern.FindString(strings.ReplaceAll(s, ",", ""))
		if token == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func normalizeRecMap(raw map[string]any) map[string]any {
	norm := make(map[string]any, len(raw))
	for k, v := range raw {
		nk := strings.ToLower(strings.TrimSpace(k))
		if nk == "" {
			continue
		}
		norm[recKeyReplacer.Replace(nk)] = v
	}
	return norm
}
