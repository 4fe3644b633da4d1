package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAvgFillPrice(t *testing.T) {
	o := Order{Trades: []Fill{{Volume: 1, Funds: 100}, {Volume: 3, Funds: 330}}}
	assert.Equal(t, 107.5, o.AvgFillPrice(0))

	o = Order{ExecutedVolume: 2, ExecutedFunds: 210}
	assert.Equal(t, 105.0, o.AvgFillPrice(0))
	assert.True(t, o.Filled())

	assert.Equal(t, 99.0, Order{}.AvgFillPrice(99))
}

func TestMarketCodes(t *testing.T) {
	assert.Equal(t, "KRW-BTC", MarketCode("krw", "btc"))
	assert.Equal(t, "BTC", BaseCurrency("KRW-BTC"))
	assert.Equal(t, "KRW", QuoteCurrency("KRW-BTC"))
	assert.Equal(t, "", QuoteCurrency("BTC"))
	assert.True(t, OrderWait.Open())
	assert.False(t, OrderCancel.Open())
	assert.Equal(t, 1.5, Balance{Balance: 1, Locked: 0.5}.Total())
}
