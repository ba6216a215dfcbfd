package advisor

import (
	"fmt"
	"strings"
	"sync"

	"aurum/internal/pkg/symbol"
)

// PriceBook 是单次流水线内的现价缓存：键为标准化 symbol，只增不删。
// 并发安全，价格注入阶段可多路并发写入。
type PriceBook struct {
	mu     sync.Mutex
	order  []string
	prices map[string]float64
}

func NewPriceBook() *PriceBook {
	return &PriceBook{prices: make(map[string]float64)}
}

// Set 写入一个价格；symbol 已存在或价格非正时忽略。
func (b *PriceBook) Set(raw string, price float64) {
	sym := symbol.Normalize(raw)
	if sym == "" || price <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.prices[sym]; ok {
		return
	}
	b.prices[sym] = price
	b.order = append(b.order, sym)
}

func (b *PriceBook) Get(raw string) (float64, bool) {
	sym := symbol.Normalize(raw)
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.prices[sym]
	return p, ok
}

func (b *PriceBook) Has(raw string) bool {
	_, ok := b.Get(raw)
	return ok
}

func (b *PriceBook) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.prices)
}

// Render 以插入顺序输出 "SYMBOL: price" 行，供提示词嵌入。
func (b *PriceBook) Render() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.order) == 0 {
		return "(no price data)"
	}
	var sb strings.Builder
	for _, sym := range b.order {
		sb.WriteString(fmt.Sprintf("%s: %g\n", sym, b.prices[sym]))
	}
	return strings.TrimRight(sb.String(), "\n")
}
