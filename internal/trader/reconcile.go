package trader

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"upbot/internal/gateway/exchange"
	"upbot/internal/pkg/trading"
	"upbot/internal/position"
)

// Reconcile adopts account balances that have no active slot, e.g. after a
// crash or a manual buy. Running it again with the same balances changes
// nothing. Resting sells on a recovered market are canceled so the whole
// balance comes back under management. It returns the number of slots created.
func (c *Controller) Reconcile(ctx context.Context) (int, error) {
	balances, err := c.ex.Balances(ctx)
	if err != nil {
		return 0, fmt.Errorf("balances: %w", err)
	}
	type orphan struct {
		market string
		avg    float64
		locked float64
	}
	var orphans []orphan
	for _, b := range balances {
		cur := strings.ToUpper(b.Currency)
		if cur == c.opts.Quote || c.ignored(cur) {
			continue
		}
		if b.AvgBuyPrice <= 0 {
			continue
		}
		if !trading.AtOrAbove(trading.Notional(b.Balance, b.Locked, b.AvgBuyPrice), c.opts.DustThreshold) {
			continue
		}
		mkt := c.quoteMarket(cur)
		if c.state.Active(mkt) != nil {
			continue
		}
		orphans = append(orphans, orphan{market: mkt, avg: b.AvgBuyPrice, locked: b.Locked})
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	markets := make([]string, len(orphans))
	for i, o := range orphans {
		markets[i] = o.market
	}
	prices, err := c.ex.Prices(ctx, markets)
	if err != nil {
		log.Warnf("reconcile prices unavailable, highs start at average: %v", err)
		prices = map[string]float64{}
	}

	now := c.nowFn()
	for _, o := range orphans {
		slot := &position.Slot{Market: o.market}
		slot.Hold(o.avg, now)
		slot.ObserveHigh(prices[o.market])
		slot.Recovered = true
		if err := c.state.Add(slot); err != nil {
			return 0, err
		}
		log.Infof("%s recovered from account, avg %s", o.market, trading.FormatPrice(o.avg))
		if o.locked > 0 {
			c.releaseStrayAsks(ctx, o.market)
		}
	}
	c.markDirty()
	if err := c.persist(); err != nil {
		return len(orphans), err
	}
	c.publish()
	return len(orphans), nil
}

func (c *Controller) releaseStrayAsks(ctx context.Context, mkt string) {
	orders, err := c.ex.OpenOrders(ctx, mkt)
	if err != nil {
		log.Warnf("%s open orders unavailable, locked balance stays: %v", mkt, err)
		return
	}
	for _, o := range orders {
		if o.Side != exchange.SideAsk {
			continue
		}
		if _, err := c.ex.Cancel(ctx, o.ID); err != nil {
			log.Warnf("%s cancel stray sell %s: %v", mkt, o.ID, err)
			continue
		}
		log.Infof("%s stray sell %s canceled (%s at %s)", mkt, o.ID, trading.FormatVolume(o.RemainingVolume), trading.FormatPrice(o.Price))
	}
}

func (c *Controller) ignored(currency string) bool {
	return slices.ContainsFunc(c.opts.IgnoredCurrencies, func(s string) bool {
		return strings.EqualFold(s, currency)
	})
}
