package trend

import (
	"context"
	"errors"
	"time"

	"upbot/internal/logger"
	"upbot/internal/market"
	"upbot/internal/scheduler"
)

var log = logger.For("Scanner")

// Universe selects which instruments a scan covers.
type Universe struct {
	Quote         string
	MinTradeValue float64
	Limit         int
}

type Request struct {
	Settings Settings
	Universe Universe
	MinScore int
	MinSlope float64
}

// Result holds both the full ranking and the entry-eligible subset.
type Result struct {
	At       time.Time   `json:"timestamp"`
	All      []Candidate `json:"all"`
	Eligible []Candidate `json:"eligible"`
}

type Scanner struct {
	src   market.Source
	delay time.Duration
	sleep func(ctx context.Context, d time.Duration) bool
	nowFn func() time.Time
}

// NewScanner waits delay between instruments to stay inside the request budget.
func NewScanner(src market.Source, delay time.Duration) *Scanner {
	return &Scanner{src: src, delay: delay, sleep: scheduler.Sleep, nowFn: time.Now}
}

// SetDelay changes the pause between instruments for later scans.
func (s *Scanner) SetDelay(d time.Duration) { s.delay = d }

// Evaluate analyzes one instrument from fresh data. Aggressive mode also
// pulls the order book and recent trades; failures there only drop those
// bonuses.
func (s *Scanner) Evaluate(ctx context.Context, mkt string, set Settings) (*Candidate, error) {
	set = set.withDefaults()
	count := set.Count
	if count < set.MinCandles() {
		count = set.MinCandles()
	}
	candles, err := s.src.Candles(ctx, mkt, set.Interval, count)
	if err != nil {
		return nil, err
	}
	c, err := Analyze(mkt, candles, set)
	if err != nil {
		return nil, err
	}
	if set.Mode != ModeAggressive {
		return c, nil
	}
	var book *market.OrderBook
	if ob, err := s.src.OrderBook(ctx, mkt); err == nil {
		book = &ob
	} else {
		log.Debugf("%s orderbook unavailable: %v", mkt, err)
	}
	trades, err := s.src.RecentTrades(ctx, mkt, 100)
	if err != nil {
		log.Debugf("%s trades unavailable: %v", mkt, err)
	}
	Enrich(c, book, trades, set.Rules)
	return c, nil
}

// Scan ranks the liquid universe. Per-instrument failures drop that
// instrument; only a universe failure fails the scan.
func (s *Scanner) Scan(ctx context.Context, req Request) (Result, error) {
	instruments, err := s.src.ActiveMarkets(ctx, req.Universe.Quote, req.Universe.MinTradeValue, req.Universe.Limit)
	if err != nil {
		return Result{}, err
	}
	log.Infof("scanning %d instruments (%s %s)", len(instruments), req.Settings.Mode, req.Settings.Interval)

	all := make([]Candidate, 0, len(instruments))
	for i, inst := range instruments {
		if i > 0 && !s.sleep(ctx, s.delay) {
			return Result{}, ctx.Err()
		}
		c, err := s.Evaluate(ctx, inst.Market, req.Settings)
		if err != nil {
			if errors.Is(err, ErrInsufficientData) || errors.Is(err, ErrNegativeTrend) {
				log.Debugf("%v", err)
			} else {
				log.Warnf("%s analysis failed: %v", inst.Market, err)
			}
			continue
		}
		c.KoreanName = inst.KoreanName
		all = append(all, *c)
	}
	Rank(all)
	res := Result{
		At:       s.nowFn(),
		All:      all,
		Eligible: Eligible(all, req.MinScore, req.MinSlope),
	}
	if len(all) > 0 {
		best := all[0]
		log.Infof("best %s (%s) score=%d slope=%.3f eligible=%d", best.Market, best.KoreanName, best.Score, best.Slope, len(res.Eligible))
	} else {
		log.Infof("no valid trend data")
	}
	return res, nil
}
