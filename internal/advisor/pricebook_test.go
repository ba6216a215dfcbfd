package advisor

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceBook_SetNormalizesAndDedupes(t *testing.T) {
	book := NewPriceBook()
	book.Set("btc/usdt", 50000)
	book.Set("BTCUSDT", 99999) // 已存在，忽略
	book.Set("ethusdt", 3000)
	book.Set("BAD", 0)  // 非正价格，忽略
	book.Set("BAD", -1) // 同上
	book.Set("", 10)

	assert.Equal(t, 2, book.Len())
	p, ok := book.Get("BTC-USDT")
	require.True(t, ok)
	assert.InDelta(t, 50000, p, 1e-9)
	assert.True(t, book.Has("ETHUSDT"))
	assert.False(t, book.Has("BAD"))
}

func TestPriceBook_RenderInsertionOrder(t *testing.T) {
	book := NewPriceBook()
	assert.Equal(t, "(no price data)", book.Render())

	book.Set("BTCUSDT", 50000)
	book.Set("ETHUSDT", 3000)
	assert.Equal(t, "BTCUSDT: 50000\nETHUSDT: 3000", book.Render())
}

func TestPriceBook_ConcurrentWrites(t *testing.T) {
	book := NewPriceBook()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			book.Set(fmt.Sprintf("SYM%dUSDT", i), float64(i+1))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, book.Len())
}
