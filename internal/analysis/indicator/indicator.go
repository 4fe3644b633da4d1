// Package indicator computes the per-instrument signal features used by the
// ranking engine. All inputs are oldest-first series.
package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
)

// slopeEpsilon is the normalized slope (percent per bar) below which a
// window counts as flat. The regression leaves rounding residue of either
// sign on constant input.
const slopeEpsilon = 1e-9

// NormalizedSlope is the least-squares slope of series divided by its mean,
// in percent per bar. Fewer than two points, a zero mean or a flat window
// give exactly 0.
func NormalizedSlope(series []float64) float64 {
	n := len(series)
	if n < 2 || constant(series) {
		return 0
	}
	mean := Mean(series)
	if mean == 0 {
		return 0
	}
	slope := lastValid(talib.LinearRegSlope(series, n)) / mean * 100
	if math.Abs(slope) < slopeEpsilon {
		return 0
	}
	return slope
}

func constant(series []float64) bool {
	for _, v := range series[1:] {
		if v != series[0] {
			return false
		}
	}
	return true
}

// ChannelPosition places last inside [low, high]: 0 at the low, 1 at the
// high, 0.5 when the range is flat.
func ChannelPosition(last, high, low float64) float64 {
	rng := high - low
	if rng <= 0 {
		return 0.5
	}
	return (last - low) / rng
}

// VolumeRatio divides the newest volume by the mean of the n volumes before
// it. The newest bar never counts toward its own baseline.
func VolumeRatio(volumes []float64, n int) float64 {
	if len(volumes) < 2 || n <= 0 {
		return 0
	}
	last := volumes[len(volumes)-1]
	prev := volumes[:len(volumes)-1]
	if len(prev) > n {
		prev = prev[len(prev)-n:]
	}
	base := Mean(prev)
	if base <= 0 {
		return 0
	}
	return last / base
}

// RSI uses Wilder smoothing (ta-lib). Returns 50 when the series is too short.
func RSI(closes []float64, period int) float64 {
	if period <= 0 {
		period = 14
	}
	if len(closes) <= period {
		return 50
	}
	return lastValid(sanitizeSeries(talib.Rsi(closes, period)))
}

func SMA(series []float64, period int) float64 {
	if period <= 0 || len(series) < period {
		return 0
	}
	return lastValid(talib.Sma(series, period))
}

// ADX returns the latest average directional index, 0 if there is not enough data.
func ADX(highs, lows, closes []float64, period int) float64 {
	if period <= 0 {
		period = 14
	}
	if len(closes) < 2*period+1 {
		return 0
	}
	return lastValid(sanitizeSeries(talib.Adx(highs, lows, closes, period)))
}

// ATRRising reports whether the latest ATR is above the ATR lookback bars earlier.
func ATRRising(highs, lows, closes []float64, period, lookback int) bool {
	if period <= 0 {
		period = 14
	}
	if lookback <= 0 {
		lookback = 1
	}
	series := sanitizeSeries(talib.Atr(highs, lows, closes, period))
	valid := trimLeadingZeros(series)
	if len(valid) <= lookback {
		return false
	}
	return valid[len(valid)-1] > valid[len(valid)-1-lookback]
}

// Alignment scores moving-average stacking: 2 when fast>mid>slow, 1 when
// only price>fast>mid, else 0.
func Alignment(closes []float64, fast, mid, slow int) int {
	if len(closes) == 0 {
		return 0
	}
	price := closes[len(closes)-1]
	f, m, s := SMA(closes, fast), SMA(closes, mid), SMA(closes, slow)
	if f == 0 || m == 0 {
		return 0
	}
	if s > 0 && f > m && m > s {
		return 2
	}
	if price > f && f > m {
		return 1
	}
	return 0
}

// RisingSMA reports whether the fast SMA increased over the last bar.
func RisingSMA(closes []float64, period int) bool {
	if period <= 0 || len(closes) < period+1 {
		return false
	}
	now := SMA(closes, period)
	prev := SMA(closes[:len(closes)-1], period)
	return now > prev
}

func Mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

func MaxMin(highs, lows []float64) (hi, lo float64) {
	hi, lo = math.Inf(-1), math.Inf(1)
	for _, v := range highs {
		hi = math.Max(hi, v)
	}
	for _, v := range lows {
		lo = math.Min(lo, v)
	}
	if math.IsInf(hi, 0) || math.IsInf(lo, 0) {
		return 0, 0
	}
	return hi, lo
}

func sanitizeSeries(src []float64) []float64 {
	out := make([]float64, 0, len(src))
	for _, v := range src {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// ta-lib zero-fills the warmup region.
func trimLeadingZeros(series []float64) []float64 {
	start := 0
	for start < len(series) && math.Abs(series[start]) <= 1e-12 {
		start++
	}
	return series[start:]
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}
