package advisor

import (
	"aurum/internal/gateway/research"
)

// 中文说明：
// 本文件定义分析流水线的通用数据结构；所有实体按请求创建、随响应丢弃。

// Balance 单一资产的可用余额。
type Balance struct {
	Asset string  `json:"asset"`
	Free  float64 `json:"free"`
}

// Position 调用方持仓快照（只读输入）。
type Position struct {
	Symbol            string  `json:"symbol"`
	UnrealizedProfit  float64 `json:"unrealized_profit"`
	AgeHours          float64 `json:"age_hours,omitempty"`
	OpeningReason     string  `json:"opening_reason,omitempty"`
	OpeningConfidence float64 `json:"opening_confidence,omitempty"`
}

// Request 一次分析请求的完整输入。
type Request struct {
	Goal      string     `json:"goal"`
	UserID    string     `json:"user_id"`
	Balances  []Balance  `json:"balances"`
	Positions []Position `json:"positions"`
}

// AuditResult 审计阶段输出；仅供后续阶段参考，不具备强约束力。
type AuditResult struct {
	Findings               string   `json:"findings"`
	RecommendedAdjustments []string `json:"recommended_adjustments"`
}

type ResearchStep struct {
	Description string `json:"description"`
	SearchQuery string `json:"search_query"`
}

type ResearchPlan struct {
	Steps []ResearchStep `json:"steps"`
}

// StepResult 单个检索步骤的执行结果。
type StepResult struct {
	Step     string             `json:"step"`
	Query    string             `json:"query"`
	Snippets []research.Snippet `json:"snippets"`
}

// RawRecommendation 模型给出的未经校验的交易提案。
type RawRecommendation struct {
	Action            string  `json:"action"`
	Asset             string  `json:"asset"`
	Leverage          float64 `json:"leverage,omitempty"`
	StopLoss          float64 `json:"stop_loss,omitempty"`
	TakeProfit        float64 `json:"take_profit,omitempty"`
	SuggestedPrice    float64 `json:"suggested_price,omitempty"`
	SuggestedQuantity float64 `json:"suggested_quantity,omitempty"`
	ReasoningSummary  string  `json:"reasoning_summary,omitempty"`
	Confidence        float64 `json:"confidence,omitempty"`
}

// TradeRecommendation 校验后的规范输出。
type TradeRecommendation struct {
	Symbol         string  `json:"symbol"`
	Action         string  `json:"action"` // BUY | SELL | CLOSE
	OriginalAction string  `json:"original_action"`
	Quantity       float64 `json:"quantity"`
	Leverage       int     `json:"leverage"`
	StopLoss       float64 `json:"stop_loss"`
	TakeProfit     float64 `json:"take_profit"`
	Reason         string  `json:"reason"`
	Confidence     float64 `json:"confidence"`
	Price          float64 `json:"price"`
}

// Result 一次完整分析的输出。
type Result struct {
	TraceID         string                `json:"trace_id"`
	Narrative       string                `json:"narrative"`
	Recommendations []TradeRecommendation `json:"recommendations"`
	Plan            ResearchPlan          `json:"plan"`
	Audit           AuditResult           `json:"audit"`
	Research        []StepResult          `json:"research"`
}
