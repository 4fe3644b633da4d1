package admission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upbot/internal/config"
	"upbot/internal/gateway/paper"
	"upbot/internal/market"
)

const ref = "KRW-BTC"

func series(n int, start, step float64) market.Candles {
	out := make(market.Candles, n)
	p := start
	for i := range out {
		out[i] = market.Candle{Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 10}
		p += step
	}
	return out
}

func enabled() config.MarketFilterConfig {
	cfg := config.DefaultStrategy().MarketFilter
	cfg.Enabled = true
	return cfg
}

func TestDisabledFilterPasses(t *testing.T) {
	f := New(paper.New(paper.Options{}))
	v := f.Check(context.Background(), config.DefaultStrategy().MarketFilter)
	assert.True(t, v.Safe)
	assert.NoError(t, v.Err)
}

func TestHourlyDropBlocks(t *testing.T) {
	ex := paper.New(paper.Options{})
	ex.SetCandles(ref, "1h", market.Candles{{Close: 100000}, {Close: 99000}})
	ex.SetPrice(ref, 98000)
	ex.SetCandles(ref, "15m", series(40, 1000, 5))

	v := New(ex).Check(context.Background(), enabled())
	assert.False(t, v.Safe)
	assert.InDelta(t, -0.02, v.Drop1H, 1e-9)
	assert.Contains(t, v.Reason, "1h")
}

func TestNegativeSlopeBlocks(t *testing.T) {
	ex := paper.New(paper.Options{})
	ex.SetCandles(ref, "1h", market.Candles{{Close: 100}, {Close: 100}})
	ex.SetPrice(ref, 100)
	ex.SetCandles(ref, "15m", series(40, 1000, -10))

	v := New(ex).Check(context.Background(), enabled())
	assert.False(t, v.Safe)
	assert.Less(t, v.Slope3H, -0.5)
	assert.Contains(t, v.Reason, "slope")
}

func TestCalmMarketPasses(t *testing.T) {
	ex := paper.New(paper.Options{})
	ex.SetCandles(ref, "1h", market.Candles{{Close: 100}, {Close: 100}})
	ex.SetPrice(ref, 100.5)
	ex.SetCandles(ref, "15m", series(40, 1000, 1))

	v := New(ex).Check(context.Background(), enabled())
	require.NoError(t, v.Err)
	assert.True(t, v.Safe)
	assert.Greater(t, v.Slope3H, 0.0)
}

func TestDataErrorsFollowFailOpen(t *testing.T) {
	ex := paper.New(paper.Options{})
	cfg := enabled()

	v := New(ex).Check(context.Background(), cfg)
	assert.Error(t, v.Err)
	assert.True(t, v.Safe)

	cfg.FailOpen = false
	v = New(ex).Check(context.Background(), cfg)
	assert.Error(t, v.Err)
	assert.False(t, v.Safe)
}
