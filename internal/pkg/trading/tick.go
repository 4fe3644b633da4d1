// Package trading holds the venue arithmetic shared by the controller and
// gateways: tick sizes, order sizing and profit rates.
package trading

import (
	"math"

	"github.com/shopspring/decimal"
)

type tickBand struct {
	floor decimal.Decimal
	tick  decimal.Decimal
}

// 500k..2M uses the coarser 500 tick; the exchange rejects 100 for some listings there.
var tickBands = []tickBand{
	{decimal.NewFromInt(2_000_000), decimal.NewFromInt(1000)},
	{decimal.NewFromInt(500_000), decimal.NewFromInt(500)},
	{decimal.NewFromInt(100_000), decimal.NewFromInt(50)},
	{decimal.NewFromInt(10_000), decimal.NewFromInt(10)},
	{decimal.NewFromInt(1_000), decimal.NewFromInt(5)},
	{decimal.NewFromInt(100), decimal.NewFromInt(1)},
	{decimal.NewFromInt(10), decimal.RequireFromString("0.1")},
	{decimal.NewFromInt(1), decimal.RequireFromString("0.01")},
	{decimal.RequireFromString("0.1"), decimal.RequireFromString("0.001")},
	{decimal.RequireFromString("0.01"), decimal.RequireFromString("0.0001")},
}

var minTick = decimal.RequireFromString("0.00001")

func Dec(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func tickFor(price decimal.Decimal) decimal.Decimal {
	for _, b := range tickBands {
		if price.GreaterThanOrEqual(b.floor) {
			return b.tick
		}
	}
	return minTick
}

// TickSize returns the price increment accepted for a quote at price.
func TickSize(price float64) float64 {
	f, _ := tickFor(Dec(price)).Float64()
	return f
}

func roundDec(price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	tick := tickFor(price)
	return price.Div(tick).Round(0).Mul(tick)
}

// RoundPrice snaps price to the nearest tick. Every band floor is a multiple
// of its own tick, so RoundPrice(RoundPrice(p)) == RoundPrice(p).
func RoundPrice(price float64) float64 {
	f, _ := roundDec(Dec(price)).Float64()
	return f
}

// FormatPrice renders a rounded price for the order API: integers for ticks
// of 1 and above, otherwise the tick's precision.
func FormatPrice(price float64) string {
	d := roundDec(Dec(price))
	tick := tickFor(d)
	if tick.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return d.StringFixed(0)
	}
	return d.StringFixed(-tick.Exponent())
}
