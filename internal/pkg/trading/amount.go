package trading

import "github.com/shopspring/decimal"

// MinOrderValue is the smallest quote notional the exchange accepts.
const MinOrderValue = 5000.0

const volumePrecision = 8

// OrderVolume converts a quote budget into a base volume at price,
// truncated to the exchange's eight decimal places.
func OrderVolume(amount, price float64) float64 {
	if amount <= 0 || price <= 0 {
		return 0
	}
	v, _ := Dec(amount).Div(Dec(price)).Truncate(volumePrecision).Float64()
	return v
}

func FormatVolume(volume float64) string {
	return Dec(volume).Truncate(volumePrecision).String()
}

// FormatAmount renders a quote notional for market buys.
func FormatAmount(amount float64) string {
	return Dec(amount).Round(0).String()
}

// AddBuyAmount scales the base trade amount and floors it at the minimum order.
func AddBuyAmount(tradeAmount, ratio float64) float64 {
	amt := Dec(tradeAmount).Mul(Dec(ratio))
	if amt.LessThan(Dec(MinOrderValue)) {
		return MinOrderValue
	}
	f, _ := amt.Float64()
	return f
}

// Notional is (balance+locked)*avg, the value used to tell dust from a position.
func Notional(balance, locked, avg float64) float64 {
	f, _ := Dec(balance).Add(Dec(locked)).Mul(Dec(avg)).Float64()
	return f
}

// ProfitRate returns (price-avg)/avg; zero when avg is not positive.
func ProfitRate(price, avg float64) float64 {
	if avg <= 0 {
		return 0
	}
	f, _ := Dec(price).Sub(Dec(avg)).Div(Dec(avg)).Float64()
	return f
}

// AtOrBelow compares two rates exactly, avoiding float drift at thresholds.
func AtOrBelow(a, b float64) bool { return Dec(a).Cmp(Dec(b)) <= 0 }

func AtOrAbove(a, b float64) bool { return Dec(a).Cmp(Dec(b)) >= 0 }

// Scale returns base*(1+pct).
func Scale(base, pct float64) float64 {
	f, _ := Dec(base).Mul(decimal.NewFromInt(1).Add(Dec(pct))).Float64()
	return f
}

// WeightedAverage is executedFunds/executedVolume, or fallback when nothing filled.
func WeightedAverage(funds, volume, fallback float64) float64 {
	if volume <= 0 || funds <= 0 {
		return fallback
	}
	f, _ := Dec(funds).Div(Dec(volume)).Float64()
	return f
}
