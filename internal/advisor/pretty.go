package advisor

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
)

// FormatRecommendationTable 将校验后的建议渲染为对齐表格，供日志输出。
func FormatRecommendationTable(recs []TradeRecommendation) string {
	if len(recs) == 0 {
		return ""
	}
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"SYMBOL", "ACTION", "QTY", "LEV", "PRICE", "NOTIONAL", "CONF"})
	for _, r := range recs {
		t.AppendRow(table.Row{
			r.Symbol,
			r.Action,
			fmt.Sprintf("%.6g", r.Quantity),
			r.Leverage,
			fmt.Sprintf("%.6g", r.Price),
			fmt.Sprintf("%.2f", r.Quantity*r.Price),
			fmt.Sprintf("%.2f", r.Confidence),
		})
	}
	return t.Render()
}
