package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandlesAccessors(t *testing.T) {
	cs := Candles{
		{Open: 100, High: 105, Low: 99, Close: 104, Volume: 10},
		{Open: 104, High: 106, Low: 95, Close: 96, Volume: 20},
	}
	assert.Equal(t, []float64{104, 96}, cs.Closes())
	assert.Equal(t, []float64{105, 106}, cs.Highs())
	assert.Equal(t, []float64{99, 95}, cs.Lows())
	assert.Equal(t, []float64{10, 20}, cs.Volumes())
	assert.Len(t, cs.Tail(1), 1)
	assert.Len(t, cs.Tail(5), 2)

	last, ok := cs.Last()
	assert.True(t, ok)
	assert.InDelta(t, 8.0/104.0, last.DropPct(), 1e-12)
	assert.Less(t, cs[0].DropPct(), 0.0)

	_, ok = Candles{}.Last()
	assert.False(t, ok)
}

func TestBookAndTrades(t *testing.T) {
	ob := OrderBook{TotalBidSize: 30, TotalAskSize: 20}
	assert.Equal(t, 1.5, ob.BidAskRatio())
	assert.Equal(t, 0.0, OrderBook{TotalBidSize: 1}.BidAskRatio())

	trades := []Trade{{Volume: 3, Side: SideBuy}, {Volume: 1, Side: SideSell}}
	assert.Equal(t, 75.0, BuyStrength(trades))
	assert.Equal(t, 50.0, BuyStrength(nil))
}
