// Package trend scores instruments from recent candles and ranks them for
// entry. Analysis is a pure function of the candle series and Settings;
// Scanner adds the data fetching around it.
package trend

import (
	"errors"
	"math"
	"sort"
)

var (
	ErrInsufficientData = errors.New("insufficient candle data")
	// ErrNegativeTrend is the macro-mode hard veto on a non-positive slope.
	ErrNegativeTrend = errors.New("non-positive trend")
)

type Mode string

const (
	ModeMacro      Mode = "macro"
	ModeAggressive Mode = "aggressive"
)

// Signal names a feature the score table can reward. Every signal is
// oriented so that a larger value is more favorable.
type Signal string

const (
	SignalSlope            Signal = "slope"
	SignalPullback         Signal = "pullback"
	SignalVolumeRatio      Signal = "volume_ratio"
	SignalRSICalm          Signal = "rsi_calm"
	SignalAlignment        Signal = "alignment"
	SignalSMARising        Signal = "sma_rising"
	SignalVolatilityRising Signal = "volatility_rising"
	SignalADX              Signal = "adx"
	SignalBidAsk           Signal = "bid_ask"
	SignalTradeStrength    Signal = "trade_strength"
)

func (s Signal) Valid() bool {
	switch s {
	case SignalSlope, SignalPullback, SignalVolumeRatio, SignalRSICalm, SignalAlignment,
		SignalSMARising, SignalVolatilityRising, SignalADX, SignalBidAsk, SignalTradeStrength:
		return true
	}
	return false
}

// Candidate is the scored technical snapshot of one instrument.
type Candidate struct {
	Market      string  `json:"market"`
	KoreanName  string  `json:"korean_name,omitempty"`
	Price       float64 `json:"price"`
	Slope       float64 `json:"slope"`
	ChannelPos  float64 `json:"channel_pos"`
	VolumeRatio float64 `json:"vol_ratio"`
	RSI         float64 `json:"rsi"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Score       int     `json:"score"`

	Mode             Mode    `json:"mode,omitempty"`
	Alignment        int     `json:"alignment,omitempty"`
	SMARising        bool    `json:"sma_rising,omitempty"`
	VolatilityRising bool    `json:"volatility_rising,omitempty"`
	ADX              float64 `json:"adx,omitempty"`
	BidAskRatio      float64 `json:"bid_ask_ratio,omitempty"`
	TradeStrength    float64 `json:"trade_strength,omitempty"`
	HasBook          bool    `json:"-"`
	HasTrades        bool    `json:"-"`
}

// Value returns the named signal; ok is false when the signal was not
// measured for this candidate (e.g. order book in macro mode).
func (c Candidate) Value(s Signal) (float64, bool) {
	switch s {
	case SignalSlope:
		return c.Slope, true
	case SignalPullback:
		return 1 - c.ChannelPos, true
	case SignalVolumeRatio:
		return c.VolumeRatio, true
	case SignalRSICalm:
		return 50 - math.Abs(c.RSI-50), true
	case SignalAlignment:
		return float64(c.Alignment), c.Mode == ModeAggressive
	case SignalSMARising:
		return boolValue(c.SMARising), c.Mode == ModeAggressive
	case SignalVolatilityRising:
		return boolValue(c.VolatilityRising), c.Mode == ModeAggressive
	case SignalADX:
		return c.ADX, c.Mode == ModeAggressive
	case SignalBidAsk:
		return c.BidAskRatio, c.HasBook
	case SignalTradeStrength:
		return c.TradeStrength, c.HasTrades
	}
	return 0, false
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Rule awards Points when Signal is at least Min. Rules on the same signal
// stack, so tiers are written as cumulative steps.
type Rule struct {
	Signal Signal  `json:"signal"`
	Min    float64 `json:"min"`
	Points int     `json:"points"`
}

// Score sums the rules the candidate clears. Negative points are ignored so
// the result never drops when a signal improves.
func Score(c Candidate, rules []Rule) int {
	total := 0
	for _, r := range rules {
		if r.Points <= 0 {
			continue
		}
		v, ok := c.Value(r.Signal)
		if ok && v >= r.Min {
			total += r.Points
		}
	}
	return total
}

// Rank orders by score, then slope, both descending.
func Rank(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].Slope > cands[j].Slope
	})
}

// Eligible keeps ranked candidates with score >= minScore and slope >= minSlope.
func Eligible(ranked []Candidate, minScore int, minSlope float64) []Candidate {
	out := make([]Candidate, 0, len(ranked))
	for _, c := range ranked {
		if c.Score >= minScore && c.Slope >= minSlope {
			out = append(out, c)
		}
	}
	return out
}
