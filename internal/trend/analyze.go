package trend

import (
	"fmt"

	"upbot/internal/analysis/indicator"
	"upbot/internal/market"
)

// Settings drives one analysis pass.
type Settings struct {
	Mode      Mode
	Interval  string
	Window    int
	Count     int
	RSIPeriod int
	ADXPeriod int
	Rules     []Rule
}

func (s Settings) withDefaults() Settings {
	if s.Mode == "" {
		s.Mode = ModeMacro
	}
	if s.Window <= 1 {
		if s.Mode == ModeAggressive {
			s.Window = 100
		} else {
			s.Window = 12
		}
	}
	if s.RSIPeriod <= 0 {
		s.RSIPeriod = 14
	}
	if s.ADXPeriod <= 0 {
		s.ADXPeriod = 14
	}
	return s
}

// MinCandles is the shortest series Analyze accepts.
func (s Settings) MinCandles() int {
	s = s.withDefaults()
	return max(s.Window, s.RSIPeriod) + 2
}

// Analyze turns a candle series into a scored Candidate.
func Analyze(mkt string, candles market.Candles, set Settings) (*Candidate, error) {
	set = set.withDefaults()
	if len(candles) < set.MinCandles() {
		return nil, fmt.Errorf("%s: %w (%d < %d)", mkt, ErrInsufficientData, len(candles), set.MinCandles())
	}

	window := candles.Tail(set.Window)
	closes := candles.Closes()
	wCloses := window.Closes()

	slope := indicator.NormalizedSlope(wCloses)
	if set.Mode == ModeMacro && slope <= 0 {
		return nil, fmt.Errorf("%s: %w (slope=%.4f)", mkt, ErrNegativeTrend, slope)
	}

	high, low := indicator.MaxMin(window.Highs(), window.Lows())
	last := wCloses[len(wCloses)-1]

	c := &Candidate{
		Market:      mkt,
		Mode:        set.Mode,
		Price:       last,
		Slope:       slope,
		ChannelPos:  indicator.ChannelPosition(last, high, low),
		VolumeRatio: indicator.VolumeRatio(candles.Volumes(), set.Window),
		RSI:         indicator.RSI(closes, set.RSIPeriod),
		High:        high,
		Low:         low,
	}

	if set.Mode == ModeAggressive {
		highs, lows := candles.Highs(), candles.Lows()
		c.Alignment = indicator.Alignment(closes, 5, 20, 60)
		c.SMARising = indicator.RisingSMA(closes, 5)
		c.VolatilityRising = indicator.ATRRising(highs, lows, closes, set.ADXPeriod, 1)
		c.ADX = indicator.ADX(highs, lows, closes, set.ADXPeriod)
	}

	c.Score = Score(*c, set.Rules)
	return c, nil
}

// Slope is the normalized trend over the settings window without the macro
// veto, for callers that need the sign (e.g. the market admission filter).
func Slope(candles market.Candles, set Settings) (float64, error) {
	set = set.withDefaults()
	if len(candles) < set.MinCandles() {
		return 0, fmt.Errorf("%w (%d < %d)", ErrInsufficientData, len(candles), set.MinCandles())
	}
	return indicator.NormalizedSlope(candles.Tail(set.Window).Closes()), nil
}

// Enrich adds order-book and trade-flow signals and re-scores.
func Enrich(c *Candidate, book *market.OrderBook, trades []market.Trade, rules []Rule) {
	if c == nil {
		return
	}
	if book != nil {
		c.BidAskRatio = book.BidAskRatio()
		c.HasBook = true
	}
	if len(trades) > 0 {
		c.TradeStrength = market.BuyStrength(trades)
		c.HasTrades = true
	}
	c.Score = Score(*c, rules)
}

// DefaultRules reproduce the stock scoring for each mode.
func DefaultRules(mode Mode) []Rule {
	if mode == ModeAggressive {
		return []Rule{
			{Signal: SignalAlignment, Min: 1, Points: 5},
			{Signal: SignalAlignment, Min: 2, Points: 5},
			{Signal: SignalSMARising, Min: 1, Points: 10},
			{Signal: SignalVolatilityRising, Min: 1, Points: 5},
			{Signal: SignalADX, Min: 25, Points: 5},
			{Signal: SignalVolumeRatio, Min: 2, Points: 10},
			{Signal: SignalBidAsk, Min: 1.2, Points: 5},
			{Signal: SignalTradeStrength, Min: 55, Points: 10},
		}
	}
	return []Rule{
		{Signal: SignalSlope, Min: 0.5, Points: 10},
		{Signal: SignalSlope, Min: 1.0, Points: 10},
		{Signal: SignalPullback, Min: 0.4, Points: 5},
		{Signal: SignalPullback, Min: 0.7, Points: 10},
		{Signal: SignalVolumeRatio, Min: 1.0, Points: 5},
		{Signal: SignalRSICalm, Min: 40, Points: 5},
	}
}
