// Package admission decides whether the market as a whole is calm enough to
// open new positions, judged from a reference instrument.
package admission

import (
	"context"
	"fmt"

	"upbot/internal/config"
	"upbot/internal/logger"
	"upbot/internal/market"
	"upbot/internal/pkg/trading"
	"upbot/internal/trend"
)

var log = logger.For("Admission")

// MacroSettings is the 15m x 12 window used for the reference trend.
var MacroSettings = trend.Settings{Mode: trend.ModeMacro, Interval: "15m", Window: 12, Count: 40}

type Verdict struct {
	Safe    bool    `json:"safe"`
	Reason  string  `json:"reason,omitempty"`
	Drop1H  float64 `json:"drop_1h"`
	Slope3H float64 `json:"slope_3h"`
	// Err is set when data could not be fetched; Safe then follows fail_open.
	Err error `json:"-"`
}

type Filter struct {
	src market.Source
}

func New(src market.Source) *Filter {
	return &Filter{src: src}
}

// Check evaluates cfg. A disabled filter always passes.
func (f *Filter) Check(ctx context.Context, cfg config.MarketFilterConfig) Verdict {
	if !cfg.Enabled {
		return Verdict{Safe: true}
	}
	v, err := f.evaluate(ctx, cfg)
	if err != nil {
		v.Err = err
		v.Safe = cfg.FailOpen
		if cfg.FailOpen {
			log.Warnf("%s check failed, allowing entries: %v", cfg.Reference, err)
		} else {
			v.Reason = "reference data unavailable"
			log.Warnf("%s check failed, blocking entries: %v", cfg.Reference, err)
		}
	}
	return v
}

func (f *Filter) evaluate(ctx context.Context, cfg config.MarketFilterConfig) (Verdict, error) {
	ref := cfg.Reference
	v := Verdict{Safe: true}

	hourly, err := f.src.Candles(ctx, ref, "1h", 2)
	if err != nil {
		return v, fmt.Errorf("hourly candles: %w", err)
	}
	if len(hourly) < 2 {
		return v, fmt.Errorf("hourly candles: %w", trend.ErrInsufficientData)
	}
	prevClose := hourly[len(hourly)-2].Close
	prices, err := f.src.Prices(ctx, []string{ref})
	if err != nil {
		return v, fmt.Errorf("price: %w", err)
	}
	price, ok := prices[ref]
	if !ok || price <= 0 || prevClose <= 0 {
		return v, fmt.Errorf("no price for %s", ref)
	}
	v.Drop1H = trading.ProfitRate(price, prevClose)
	if trading.Dec(v.Drop1H).LessThan(trading.Dec(cfg.DropThreshold1H)) {
		v.Safe = false
		v.Reason = fmt.Sprintf("%s 1h change %.2f%% < %.2f%%", ref, v.Drop1H*100, cfg.DropThreshold1H*100)
		log.Infof("market unsafe: %s", v.Reason)
		return v, nil
	}

	bars, err := f.src.Candles(ctx, ref, MacroSettings.Interval, MacroSettings.Count)
	if err != nil {
		return v, fmt.Errorf("trend candles: %w", err)
	}
	slope, err := trend.Slope(bars, MacroSettings)
	if err != nil {
		return v, err
	}
	v.Slope3H = slope
	if trading.Dec(slope).LessThan(trading.Dec(cfg.SlopeThreshold3H)) {
		v.Safe = false
		v.Reason = fmt.Sprintf("%s 3h slope %.2f%% < %.2f%%", ref, slope, cfg.SlopeThreshold3H)
		log.Infof("market unsafe: %s", v.Reason)
	}
	return v, nil
}
