package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"upbot/internal/config"
	"upbot/internal/gateway/exchange"
	"upbot/internal/pkg/trading"
	"upbot/internal/position"
)

// manageBuyWait resolves a pending limit buy. Any executed volume is a valid
// entry, including a cancel after a partial fill.
func (c *Controller) manageBuyWait(ctx context.Context, slot *position.Slot, strat config.Strategy) error {
	now := c.nowFn()
	if now.Sub(slot.OrderTime) > strat.BuyTimeout() {
		log.Infof("%s buy timed out after %s, canceling", slot.Market, now.Sub(slot.OrderTime).Round(time.Second))
		return c.cancelPendingBuy(ctx, slot)
	}

	ord, err := c.ex.Order(ctx, slot.BuyOrderID)
	if err != nil {
		if errors.Is(err, exchange.ErrOrderNotFound) {
			log.Warnf("%s buy order %s vanished, dropping slot", slot.Market, slot.BuyOrderID)
			c.dropSlot(slot)
			return nil
		}
		return fmt.Errorf("buy order status: %w", err)
	}
	switch ord.State {
	case exchange.OrderDone:
		return c.promote(ctx, slot, ord, strat)
	case exchange.OrderCancel:
		if ord.Filled() {
			log.Infof("%s buy canceled externally after partial fill %s", slot.Market, trading.FormatVolume(ord.ExecutedVolume))
			return c.promote(ctx, slot, ord, strat)
		}
		log.Infof("%s buy canceled externally without fill", slot.Market)
		c.dropSlot(slot)
	}
	return nil
}

// cancelPendingBuy cancels and re-reads the order so a fill that raced the
// cancel is kept.
func (c *Controller) cancelPendingBuy(ctx context.Context, slot *position.Slot) error {
	ord, err := c.withdrawBuy(ctx, slot)
	if err != nil {
		return fmt.Errorf("withdraw buy: %w", err)
	}
	if ord.Filled() {
		return c.promote(ctx, slot, ord, c.strategy.Current())
	}
	c.dropSlot(slot)
	return nil
}

// dropSlot ends an entry that never filled. No cooldown.
func (c *Controller) dropSlot(slot *position.Slot) {
	slot.Status = position.StatusDone
	c.markDirty()
}

func (c *Controller) promote(ctx context.Context, slot *position.Slot, ord exchange.Order, strat config.Strategy) error {
	avg := ord.AvgFillPrice(slot.LimitPrice)
	slot.Hold(avg, c.nowFn())
	c.markDirty()
	log.Infof("%s filled %s at avg %s", slot.Market, trading.FormatVolume(ord.ExecutedVolume), trading.FormatPrice(avg))
	c.notifyOpened(slot, ord.ExecutedVolume)
	if err := c.persist(); err != nil {
		return err
	}
	if err := c.placeTakeProfit(ctx, slot, strat); err != nil && !errors.Is(err, errNoBalance) {
		return err
	}
	return nil
}

// takeProfitTarget projects the entry snapshot's channel high onto the
// average cost, floored at the minimum take-profit.
func takeProfitTarget(slot *position.Slot, exit config.ExitConfig) float64 {
	avg := trading.Dec(slot.AvgBuyPrice)
	floor := trading.Dec(trading.Scale(slot.AvgBuyPrice, exit.MinTakeProfit))
	target := floor
	if slot.Snapshot != nil && slot.Snapshot.High > slot.AvgBuyPrice {
		t := avg.Add(trading.Dec(slot.Snapshot.High).Sub(avg).Mul(trading.Dec(exit.TakeProfitRatio)))
		if t.GreaterThan(floor) {
			target = t
		}
	}
	f, _ := target.Float64()
	return trading.RoundPrice(f)
}

var errNoBalance = errors.New("no balance left for the position")

// placeTakeProfit rests a limit sell for the whole available balance.
func (c *Controller) placeTakeProfit(ctx context.Context, slot *position.Slot, strat config.Strategy) error {
	bal, err := c.ex.Balance(ctx, exchange.BaseCurrency(slot.Market))
	if err != nil {
		return fmt.Errorf("balance for take-profit: %w", err)
	}
	if bal.Balance <= 0 {
		if bal.Locked > 0 {
			c.warnLocked(slot.Market, bal.Locked, "take-profit deferred")
			return nil
		}
		return errNoBalance
	}
	delete(c.lockedWarned, slot.Market)
	price := takeProfitTarget(slot, strat.Exit)
	ord, err := c.ex.LimitSell(ctx, slot.Market, price, bal.Balance)
	if err != nil {
		return fmt.Errorf("take-profit order: %w", err)
	}
	c.metrics.OrderPlaced("ask", "limit")
	slot.SellOrderID = ord.ID
	slot.SellLimitPrice = price
	c.markDirty()
	log.Infof("%s take-profit at %s (%.2f%%)", slot.Market, trading.FormatPrice(price), slot.ProfitRate(price)*100)
	return nil
}
