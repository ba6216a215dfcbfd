package advisor

import (
	"context"
	"math"
	"strings"

	"aurum/internal/logger"
	"aurum/internal/pkg/symbol"
)

// 中文说明：
// 校验器把模型的松散提案映射为规范交易建议，并强制执行交易所最小名义价值、
// 杠杆上限与单仓预算；不满足约束的提案被丢弃，绝不放行低于下限的订单。

// PriceOracle 提供单币种现价查询；absent 表示跳过该币种。
type PriceOracle interface {
	FetchPrice(ctx context.Context, symbol string) (float64, bool)
}

type ValidatorConfig struct {
	MinNotional      float64
	PositionFraction float64
	MinPositionFloor float64
	MaxLeverage      int
	QuoteAsset       string
}

func (c *ValidatorConfig) withDefaults() ValidatorConfig {
	out := *c
	if out.MinNotional <= 0 {
		out.MinNotional = 100
	}
	if out.PositionFraction <= 0 {
		out.PositionFraction = 0.10
	}
	if out.MinPositionFloor <= 0 {
		out.MinPositionFloor = 15
	}
	if out.MaxLeverage <= 0 {
		out.MaxLeverage = 20
	}
	if out.QuoteAsset == "" {
		out.QuoteAsset = "USDT"
	}
	return out
}

type Validator struct {
	cfg    ValidatorConfig
	oracle PriceOracle
}

func NewValidator(cfg ValidatorConfig, oracle PriceOracle) *Validator {
	return &Validator{cfg: cfg.withDefaults(), oracle: oracle}
}

// 多语言动作同义词集合；归一时去掉分隔符并转小写后匹配。
// HOLD 及其各语言等价词（hold/wait/tut 等）刻意不收录，统一走丢弃分支。
var (
	buyTokens = map[string]struct{}{
		"buy": {}, "long": {}, "openlong": {}, "golong": {}, "accumulate": {},
		"做多": {}, "买入": {}, "开多": {},
		"al": {},
	}
	sellTokens = map[string]struct{}{
		"sell": {}, "short": {}, "openshort": {}, "goshort": {},
		"做空": {}, "卖出": {}, "开空": {},
		"sat": {},
	}
	closeTokens = map[string]struct{}{
		"close": {}, "exit": {}, "closelong": {}, "closeshort": {}, "closeposition": {}, "flat": {},
		"平仓": {}, "离场": {}, "清仓": {},
		"kapat": {},
	}
)

// NormalizeAction 将动作归一为 BUY/SELL/CLOSE；无法识别或 HOLD 类动作返回 false。
// 对已归一的 BUY/SELL/CLOSE 再次调用结果不变。
func NormalizeAction(raw string) (string, bool) {
	token := strings.ToLower(strings.TrimSpace(raw))
	token = strings.NewReplacer("_", "", "-", "", " ", "", "/", "").Replace(token)
	if token == "" {
		return "", false
	}
	if _, ok := buyTokens[token]; ok {
		return "BUY", true
	}
	if _, ok := sellTokens[token]; ok {
		return "SELL", true
	}
	if _, ok := closeTokens[token]; ok {
		return "CLOSE", true
	}
	return "", false
}

// ClampLeverage 将杠杆收敛到 [1, max]；缺省（非正）视为 1。
func ClampLeverage(raw float64, max int) int {
	if max < 1 {
		max = 1
	}
	lev := int(math.Round(raw))
	if lev < 1 {
		return 1
	}
	if lev > max {
		return max
	}
	return lev
}

// AvailableQuote 返回计价资产的可用余额。
func (v *Validator) AvailableQuote(balances []Balance) float64 {
	quote := symbol.Normalize(v.cfg.QuoteAsset)
	for _, b := range balances {
		if symbol.Normalize(b.Asset) == quote {
			return b.Free
		}
	}
	return 0
}

// TotalEquity = 持仓浮动盈亏之和 + 计价资产可用余额。
func (v *Validator) TotalEquity(req Request) float64 {
	total := v.AvailableQuote(req.Balances)
	for _, p := range req.Positions {
		total += p.UnrealizedProfit
	}
	return total
}

// Budget 单个新仓位的预算：max(下限, 总权益 × 仓位比例)。
func (v *Validator) Budget(totalEquity float64) float64 {
	budget := totalEquity * v.cfg.PositionFraction
	if budget < v.cfg.MinPositionFloor {
		budget = v.cfg.MinPositionFloor
	}
	return budget
}

// MinNotional 暴露配置的最小名义价值，供提示词约束段引用。
func (v *Validator) MinNotional() float64 { return v.cfg.MinNotional }

// MaxLeverage 暴露配置的杠杆上限。
func (v *Validator) MaxLeverage() int { return v.cfg.MaxLeverage }

// Validate 逐条校验模型提案，输出顺序与模型给出顺序一致。
func (v *Validator) Validate(ctx context.Context, raws []RawRecommendation, req Request, book *PriceBook) []TradeRecommendation {
	budget := v.Budget(v.TotalEquity(req))
	out := make([]TradeRecommendation, 0, len(raws))
	for _, raw := range raws {
		rec, ok := v.validateOne(ctx, raw, budget, book)
		if ok {
			out = append(out, rec)
		}
	}
	return out
}

func (v *Validator) validateOne(ctx context.Context, raw RawRecommendation, budget float64, book *PriceBook) (TradeRecommendation, bool) {
	action, ok := NormalizeAction(raw.Action)
	if !ok {
		logger.Debugf("[validator] 丢弃 HOLD 类提案: action=%q asset=%q", raw.Action, raw.Asset)
		return TradeRecommendation{}, false
	}

	sym := symbol.Normalize(raw.Asset)
	if sym == "" {
		logger.Warnf("[validator] 提案缺少 asset，丢弃: action=%q", raw.Action)
		return TradeRecommendation{}, false
	}

	price, ok := v.resolvePrice(ctx, sym, book)
	if !ok {
		logger.Warnf("[validator] %s 无法取得现价，丢弃提案", sym)
		return TradeRecommendation{}, false
	}

	quantity := v.resolveQuantity(raw.SuggestedQuantity, price, budget)
	// 最终名义价值复核：任何分支都不得放行低于下限的订单。
	if quantity*price < v.cfg.MinNotional-1e-9 {
		logger.Warnf("[validator] %s 名义价值 %.4f 低于下限 %.2f，丢弃", sym, quantity*price, v.cfg.MinNotional)
		return TradeRecommendation{}, false
	}

	return TradeRecommendation{
		Symbol:         sym,
		Action:         action,
		OriginalAction: raw.Action,
		Quantity:       quantity,
		Leverage:       ClampLeverage(raw.Leverage, v.cfg.MaxLeverage),
		StopLoss:       raw.StopLoss,
		TakeProfit:     raw.TakeProfit,
		Reason:         raw.ReasoningSummary,
		Confidence:     raw.Confidence,
		Price:          price,
	}, true
}

// resolvePrice 先查本轮 PriceBook，未命中再向行情源查询并写回。
func (v *Validator) resolvePrice(ctx context.Context, sym string, book *PriceBook) (float64, bool) {
	if book != nil {
		if p, ok := book.Get(sym); ok {
			return p, true
		}
	}
	p, ok := v.oracle.FetchPrice(ctx, sym)
	if !ok {
		return 0, false
	}
	if book != nil {
		book.Set(sym, p)
	}
	return p, true
}

func (v *Validator) resolveQuantity(suggested, price, budget float64) float64 {
	if suggested > 0 {
		if suggested*price >= v.cfg.MinNotional {
			return suggested
		}
		// 正数但不足下限：抬高到最小名义价值对应的数量。
		return v.cfg.MinNotional / price
	}
	notional := budget
	if notional < v.cfg.MinNotional {
		notional = v.cfg.MinNotional
	}
	return notional / price
}
