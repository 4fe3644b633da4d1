package trader

import (
	"context"
	"fmt"

	"upbot/internal/config"
	"upbot/internal/pkg/jsonutil"
	"upbot/internal/pkg/trading"
	"upbot/internal/position"
	"upbot/internal/trend"
)

// trySearchAndEnter opens at most one BUY_WAIT slot. The search time is
// marked before admission so a failing filter or scan is not retried every
// tick.
func (c *Controller) trySearchAndEnter(ctx context.Context, strat config.Strategy) error {
	if c.state.Paused {
		return nil
	}
	if c.state.ActiveCount() >= strat.MaxSlots {
		return nil
	}
	now := c.nowFn()
	if !c.state.LastSearchTime.IsZero() && now.Sub(c.state.LastSearchTime) < c.opts.Loop.SearchInterval() {
		return nil
	}
	c.state.LastSearchTime = now
	c.markDirty()

	c.verdict = c.filter.Check(ctx, strat.MarketFilter)
	c.metrics.SetAdmission(c.verdict.Safe)
	if !c.verdict.Safe {
		log.Infof("entry blocked: %s", c.verdict.Reason)
		return nil
	}

	c.scanner.SetDelay(strat.ScanDelay())
	res, err := c.scanner.Scan(ctx, trend.Request{
		Settings: strat.TrendSettings(),
		Universe: trend.Universe{
			Quote:         c.opts.Quote,
			MinTradeValue: strat.Scan.MinTradeValue,
			Limit:         strat.Scan.UniverseLimit,
		},
		MinScore: strat.MinEntryScore,
		MinSlope: strat.MinSlope,
	})
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	c.recordScan(res)

	for i := range res.Eligible {
		cand := res.Eligible[i]
		if c.state.Active(cand.Market) != nil {
			continue
		}
		if c.state.InCooldown(cand.Market, now) {
			log.Debugf("%s skipped, cooling down", cand.Market)
			continue
		}
		return c.enter(ctx, cand, strat)
	}
	return nil
}

func (c *Controller) recordScan(res trend.Result) {
	c.lastScan.Store(&res)
	c.metrics.SetScan(len(res.All), len(res.Eligible))
	if c.opts.ScanResultsPath == "" {
		return
	}
	if err := jsonutil.WriteFile(c.opts.ScanResultsPath, res); err != nil {
		log.Warnf("write scan results: %v", err)
	}
}

// enter places the discounted limit buy for cand. The slot is persisted
// right after the order so a crash cannot orphan the order.
func (c *Controller) enter(ctx context.Context, cand trend.Candidate, strat config.Strategy) error {
	quote, err := c.ex.Balance(ctx, c.opts.Quote)
	if err != nil {
		return fmt.Errorf("quote balance: %w", err)
	}
	if quote.Balance < strat.TradeAmount {
		log.Infof("%s balance %.0f below trade amount %.0f", c.opts.Quote, quote.Balance, strat.TradeAmount)
		return nil
	}
	offset := strat.LimitOffset(cand.Slope)
	price := trading.RoundPrice(trading.Scale(cand.Price, -offset))
	volume := trading.OrderVolume(strat.TradeAmount, price)
	if price <= 0 || volume <= 0 {
		return fmt.Errorf("%s: invalid order price=%v volume=%v", cand.Market, price, volume)
	}
	ord, err := c.ex.LimitBuy(ctx, cand.Market, price, volume)
	if err != nil {
		return fmt.Errorf("%s limit buy: %w", cand.Market, err)
	}
	c.metrics.OrderPlaced("bid", "limit")

	snap := cand
	slot := &position.Slot{
		Market:     cand.Market,
		Status:     position.StatusBuyWait,
		BuyOrderID: ord.ID,
		LimitPrice: price,
		OrderTime:  c.nowFn(),
		Snapshot:   &snap,
	}
	if err := c.state.Add(slot); err != nil {
		return err
	}
	c.markDirty()
	log.Infof("%s buy placed at %s (offset %.2f%%, score %d, slope %.3f)",
		cand.Market, trading.FormatPrice(price), offset*100, cand.Score, cand.Slope)
	return c.persist()
}
