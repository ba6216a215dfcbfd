package advisor

import (
	"fmt"
	"strings"
)

// 中文说明：
// 提示词按阶段拼装；措辞本身是薄协作方，结构化约束（JSON 形状与数字约束）
// 才是这里的重点。

const synthesisMarker = "analysis_result"

const snippetContentLimit = 600

type synthesisConstraints struct {
	AvailableBalance float64
	PerTradeCap      float64
	MinNotional      float64
	MaxLeverage      int
}

func renderPortfolio(req Request) string {
	var b strings.Builder
	b.WriteString("# Balances\n")
	if len(req.Balances) == 0 {
		b.WriteString("(none)\n")
	}
	for _, bal := range req.Balances {
		b.WriteString(fmt.Sprintf("- %s: %g\n", bal.Asset, bal.Free))
	}
	b.WriteString("\n# Open Positions\n")
	if len(req.Positions) == 0 {
		b.WriteString("(none)\n")
	}
	for _, pos := range req.Positions {
		b.WriteString(fmt.Sprintf("- %s unrealized_pnl=%g", pos.Symbol, pos.UnrealizedProfit))
		if pos.AgeHours > 0 {
			b.WriteString(fmt.Sprintf(" age_hours=%g", pos.AgeHours))
		}
		if strings.TrimSpace(pos.OpeningReason) != "" {
			b.WriteString(" opened_because=" + trimTo(pos.OpeningReason, 120))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderResearch(results []StepResult) string {
	if len(results) == 0 {
		return "(no research results)"
	}
	var b strings.Builder
	for _, r := range results {
		b.WriteString(fmt.Sprintf("## %s (query: %s)\n", r.Step, r.Query))
		if len(r.Snippets) == 0 {
			b.WriteString("(no results)\n\n")
			continue
		}
		for _, s := range r.Snippets {
			b.WriteString(fmt.Sprintf("- %s (%s", s.Title, s.URL))
			if s.PublishedDate != "" {
				b.WriteString(", " + s.PublishedDate)
			}
			b.WriteString(")\n  ")
			b.WriteString(trimTo(s.Content, snippetContentLimit))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func buildAuditPrompts(req Request, goal, prices string) (string, string) {
	system := "You are a risk auditor for a crypto futures portfolio. Respond with a fenced JSON object only."
	var b strings.Builder
	b.WriteString("Audit the portfolio below against the user's goal.\n\n")
	b.WriteString("# Goal\n" + goal + "\n\n")
	b.WriteString(renderPortfolio(req))
	b.WriteString("\n# Current Prices\n" + prices + "\n\n")
	b.WriteString("Answer with:\n```json\n{\"findings\": \"...\", \"recommended_adjustments\": [\"...\"]}\n```\n")
	return system, b.String()
}

func buildPlanPrompts(goal string, audit AuditResult) (string, string) {
	system := "You plan web research for a trading assistant. Respond with a fenced JSON object only."
	var b strings.Builder
	b.WriteString("Design at most 2 web searches that would most improve a trading decision for this goal.\n\n")
	b.WriteString("# Goal\n" + goal + "\n\n")
	if strings.TrimSpace(audit.Findings) != "" {
		b.WriteString("# Audit Findings\n" + trimTo(audit.Findings, 1200) + "\n\n")
	}
	b.WriteString("Answer with:\n```json\n{\"steps\": [{\"description\": \"...\", \"search_query\": \"...\"}]}\n```\n")
	return system, b.String()
}

func buildDiscoveryPrompts(results []StepResult, maxSymbols int) (string, string) {
	system := "You extract tradable Binance futures symbols from research notes. Respond with a fenced JSON object only."
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From the research below, list up to %d additional candidate symbols worth pricing (format like BTCUSDT). Skip anything already obvious from the portfolio.\n\n", maxSymbols))
	b.WriteString(renderResearch(results))
	b.WriteString("\nAnswer with:\n```json\n{\"symbols\": [\"BTCUSDT\"]}\n```\n")
	return system, b.String()
}

func buildSynthesisPrompts(req Request, goal, prices string, audit AuditResult, plan ResearchPlan, results []StepResult, cons synthesisConstraints, language string) (string, string) {
	system := "You are a disciplined crypto futures strategist. You must obey every numeric constraint given. " +
		"End your answer with a fenced JSON object of type \"analysis_result\"."
	var b strings.Builder
	b.WriteString("# Goal\n" + goal + "\n\n")
	b.WriteString(renderPortfolio(req))
	b.WriteString("\n# Current Prices\n" + prices + "\n\n")
	if strings.TrimSpace(audit.Findings) != "" {
		b.WriteString("# Audit Findings\n" + trimTo(audit.Findings, 2000) + "\n")
		for _, adj := range audit.RecommendedAdjustments {
			b.WriteString("- " + trimTo(adj, 200) + "\n")
		}
		b.WriteString("\n")
	}
	if len(plan.Steps) > 0 {
		b.WriteString("# Research Plan\n")
		for _, s := range plan.Steps {
			b.WriteString(fmt.Sprintf("- %s → %q\n", s.Description, s.SearchQuery))
		}
		b.WriteString("\n")
	}
	b.WriteString("# Research Results\n" + renderResearch(results) + "\n")
	b.WriteString("# Binding Constraints\n")
	b.WriteString(fmt.Sprintf("- Available quote balance: %.2f\n", cons.AvailableBalance))
	b.WriteString(fmt.Sprintf("- Max budget per new position: %.2f\n", cons.PerTradeCap))
	b.WriteString(fmt.Sprintf("- Exchange minimum order notional: %.2f (orders below this are rejected)\n", cons.MinNotional))
	b.WriteString(fmt.Sprintf("- Leverage must be an integer between 1 and %d\n", cons.MaxLeverage))
	b.WriteString("\nWrite the narrative in language: " + language + ".\n")
	b.WriteString("Finish with:\n```json\n{\"type\": \"analysis_result\", \"data\": {\"text\": \"...\", " +
		"\"recommendations\": [{\"action\": \"BUY\", \"asset\": \"BTCUSDT\", \"leverage\": 3, " +
		"\"stop_loss\": 0, \"take_profit\": 0, \"suggested_price\": 0, \"suggested_quantity\": 0, " +
		"\"confidence\": 0.0, \"reasoning_summary\": \"...\"}]}}\n```\n")
	return system, b.String()
}

// fallbackPlan 在规划阶段解析失败时使用：从目标文本机械推导两步检索。
func fallbackPlan(goal string) ResearchPlan {
	goal = strings.TrimSpace(goal)
	return ResearchPlan{Steps: []ResearchStep{
		{
			Description: "General market context for the stated goal",
			SearchQuery: "crypto market news " + trimTo(goal, 120),
		},
		{
			Description: "Risk events and macro factors affecting crypto this week",
			SearchQuery: "crypto risk events this week",
		},
	}}
}

// trimTo 限制字符串长度，超长追加省略号。
func trimTo(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
