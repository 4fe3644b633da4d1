package trader

import (
	"context"
	"errors"
	"fmt"

	"upbot/internal/config"
	"upbot/internal/gateway/exchange"
	"upbot/internal/pkg/trading"
	"upbot/internal/position"
)

// tryAddBuy averages down when the loss reaches the trigger and a fresh
// analysis still supports the trade. It reports true when a buy executed, in
// which case exits are not evaluated this tick.
func (c *Controller) tryAddBuy(ctx context.Context, slot *position.Slot, rate float64, strat config.Strategy) (bool, error) {
	exit := strat.Exit
	if exit.MaxAddBuys <= 0 || slot.EntryCount > exit.MaxAddBuys {
		return false, nil
	}
	if !trading.AtOrBelow(rate, exit.AddBuyTrigger) {
		return false, nil
	}
	now := c.nowFn()
	if !slot.LastAddBuyCheck.IsZero() && now.Sub(slot.LastAddBuyCheck) < exit.AddBuyRecheck() {
		return false, nil
	}
	slot.LastAddBuyCheck = now
	c.markDirty()

	cand, err := c.scanner.Evaluate(ctx, slot.Market, strat.TrendSettings())
	if err != nil {
		log.Infof("%s add-buy skipped, re-score failed: %v", slot.Market, err)
		return false, nil
	}
	if cand.Score < exit.AddBuyMinScore {
		log.Infof("%s add-buy skipped, score %d below %d", slot.Market, cand.Score, exit.AddBuyMinScore)
		return false, nil
	}
	amount := trading.AddBuyAmount(strat.TradeAmount, exit.AddBuyAmountRatio)
	quote, err := c.ex.Balance(ctx, c.opts.Quote)
	if err != nil {
		return false, fmt.Errorf("quote balance: %w", err)
	}
	if quote.Balance < amount {
		log.Infof("%s add-buy skipped, %s balance %.0f below %.0f", slot.Market, c.opts.Quote, quote.Balance, amount)
		return false, nil
	}

	filled, tp, err := c.cancelTakeProfit(ctx, slot)
	if err != nil {
		return false, err
	}
	if filled {
		c.finishTakeProfit(ctx, slot, tp)
		return true, nil
	}

	ord, err := c.ex.MarketBuy(ctx, slot.Market, amount)
	if err != nil {
		log.Errorf("%s add-buy failed: %v", slot.Market, err)
		if err := c.placeTakeProfit(ctx, slot, strat); err != nil && !errors.Is(err, errNoBalance) {
			return true, err
		}
		return true, nil
	}
	c.metrics.OrderPlaced("bid", "market")
	c.wait(ctx, c.opts.Loop.OrderWait())

	fill := c.marketFillPrice(ctx, ord, c.prices[slot.Market])
	bal, err := c.ex.Balance(ctx, exchange.BaseCurrency(slot.Market))
	avg := slot.AvgBuyPrice
	if err != nil {
		log.Warnf("%s average after add-buy unknown: %v", slot.Market, err)
	} else if bal.AvgBuyPrice > 0 {
		avg = bal.AvgBuyPrice
	}
	slot.Averaged(avg, fill, c.nowFn())
	c.markDirty()
	log.Infof("%s add-buy #%d %.0f %s at %s, new avg %s",
		slot.Market, slot.AddBuys(), amount, c.opts.Quote, trading.FormatPrice(fill), trading.FormatPrice(avg))
	c.notifyAddBuy(slot, fill)
	if err := c.persist(); err != nil {
		return true, err
	}
	if err := c.placeTakeProfit(ctx, slot, strat); err != nil && !errors.Is(err, errNoBalance) {
		return true, err
	}
	return true, nil
}

// marketFillPrice re-reads a market order for its executed average.
func (c *Controller) marketFillPrice(ctx context.Context, ord exchange.Order, fallback float64) float64 {
	if got, err := c.ex.Order(ctx, ord.ID); err == nil {
		ord = got
	}
	return ord.AvgFillPrice(fallback)
}
