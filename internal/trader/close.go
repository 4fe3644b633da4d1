package trader

import (
	"context"
	"errors"
	"fmt"

	"upbot/internal/gateway/exchange"
	"upbot/internal/history"
	"upbot/internal/pkg/trading"
	"upbot/internal/position"
)

// closeSlot is the single sell path. The account balance, not the slot, decides
// how much is sold. Any error leaves the slot HOLDING for the next tick.
func (c *Controller) closeSlot(ctx context.Context, slot *position.Slot, price float64, reason string, kind history.ReasonKind) error {
	log.Infof("%s closing: %s", slot.Market, reason)
	filled, tp, err := c.cancelTakeProfit(ctx, slot)
	if err != nil {
		return err
	}
	if filled {
		c.finishTakeProfit(ctx, slot, tp)
		return nil
	}

	bal, err := c.ex.Balance(ctx, exchange.BaseCurrency(slot.Market))
	if err != nil {
		return fmt.Errorf("balance before sell: %w", err)
	}
	if bal.Balance <= 0 {
		if bal.Locked > 0 {
			c.warnLocked(slot.Market, bal.Locked, "sell deferred")
			return nil
		}
		log.Warnf("%s nothing left to sell", slot.Market)
		c.finish(ctx, slot, slot.ProfitRate(price), 0, withAddBuys(slot, "[external] position no longer on account"), history.ReasonExternal)
		return nil
	}

	ord, err := c.ex.MarketSell(ctx, slot.Market, bal.Balance)
	if err != nil {
		return fmt.Errorf("market sell: %w", err)
	}
	c.metrics.OrderPlaced("ask", "market")
	c.wait(ctx, c.opts.Loop.OrderWait())
	sold := c.marketFillPrice(ctx, ord, price)
	c.finish(ctx, slot, slot.ProfitRate(sold), bal.Balance, withAddBuys(slot, reason), kind)
	return nil
}

// cancelTakeProfit withdraws the resting sell. filled reports that the order
// completed before the cancel landed; tp then holds the final order.
func (c *Controller) cancelTakeProfit(ctx context.Context, slot *position.Slot) (filled bool, tp exchange.Order, err error) {
	if slot.SellOrderID == "" {
		return false, exchange.Order{}, nil
	}
	if _, cerr := c.ex.Cancel(ctx, slot.SellOrderID); cerr != nil {
		ord, qerr := c.ex.Order(ctx, slot.SellOrderID)
		switch {
		case errors.Is(qerr, exchange.ErrOrderNotFound):
		case qerr != nil:
			return false, exchange.Order{}, fmt.Errorf("cancel take-profit: %w", cerr)
		case ord.State == exchange.OrderDone:
			return true, ord, nil
		case ord.State.Open():
			return false, exchange.Order{}, fmt.Errorf("cancel take-profit: %w", cerr)
		}
	} else {
		c.wait(ctx, c.opts.Loop.CancelWait())
	}
	slot.SellOrderID = ""
	slot.SellLimitPrice = 0
	c.markDirty()
	return false, exchange.Order{}, nil
}

func (c *Controller) finishTakeProfit(ctx context.Context, slot *position.Slot, ord exchange.Order) {
	sold := ord.AvgFillPrice(slot.SellLimitPrice)
	volume := ord.ExecutedVolume
	if volume <= 0 {
		volume = ord.Volume
	}
	c.finish(ctx, slot, slot.ProfitRate(sold), volume, withAddBuys(slot, "[take-profit] target reached"), history.ReasonTakeProfit)
}

// finish records the trade, starts the cooldown and retires the slot.
func (c *Controller) finish(ctx context.Context, slot *position.Slot, rate, volume float64, reason string, kind history.ReasonKind) {
	now := c.nowFn()
	rec := history.NewRecord(history.Close{
		Market:     slot.Market,
		BuyPrice:   slot.AvgBuyPrice,
		ProfitRate: rate,
		Volume:     volume,
		Reason:     reason,
		Kind:       kind,
		EntryCount: slot.EntryCount,
		TradeLog:   slot.TradeLog,
		At:         now,
	})
	if c.history != nil {
		if err := c.history.Append(ctx, rec); err != nil {
			log.Errorf("%s history append: %v", slot.Market, err)
		}
	}
	c.state.SetCooldown(slot.Market, now.Add(c.strategy.Current().Cooldown()))
	slot.Status = position.StatusDone
	slot.SellOrderID = ""
	delete(c.dropChecks, slot.Market)
	delete(c.lockedWarned, slot.Market)
	c.markDirty()
	c.metrics.SlotClosed(string(kind), rec.PnL)
	log.Infof("%s closed %.2f%% pnl %.0f: %s", slot.Market, rate*100, rec.PnL, reason)
	c.notifyClosed(slot, rec)
}

// warnLocked reports a balance held by orders this controller does not own.
// It logs once per market until the balance frees up or the slot closes.
func (c *Controller) warnLocked(mkt string, locked float64, what string) {
	if c.lockedWarned[mkt] {
		return
	}
	c.lockedWarned[mkt] = true
	log.Warnf("%s balance locked by other orders (%s), %s until they clear", mkt, trading.FormatVolume(locked), what)
}

func withAddBuys(slot *position.Slot, reason string) string {
	if n := slot.AddBuys(); n > 0 {
		return fmt.Sprintf("%s (add-buys: %d)", reason, n)
	}
	return reason
}
