package trader

import (
	"context"
	"errors"
	"fmt"

	"upbot/internal/config"
	"upbot/internal/gateway/exchange"
	"upbot/internal/history"
	"upbot/internal/pkg/trading"
	"upbot/internal/position"
)

// manageHolding evaluates one holding slot in fixed order; the first action
// taken ends the evaluation for this tick.
func (c *Controller) manageHolding(ctx context.Context, slot *position.Slot, price float64, strat config.Strategy) error {
	exit := strat.Exit
	if slot.ObserveHigh(price) {
		c.markDirty()
	}
	rate := slot.ProfitRate(price)
	if !slot.BreakEvenActive && trading.AtOrAbove(rate, exit.BreakEvenTrigger) {
		slot.BreakEvenActive = true
		c.markDirty()
		log.Infof("%s break-even armed at %.2f%%", slot.Market, rate*100)
	}

	if added, err := c.tryAddBuy(ctx, slot, rate, strat); err != nil || added {
		return err
	}

	if c.suddenDropDue(slot.Market, exit.SuddenDrop) {
		drop, err := c.lastBarDrop(ctx, slot.Market, exit.SuddenDrop.Interval)
		if err != nil {
			log.Warnf("%s sudden-drop check: %v", slot.Market, err)
		} else if trading.AtOrAbove(drop, exit.SuddenDrop.Threshold) {
			reason := fmt.Sprintf("[defense] sudden drop %.2f%% on %s bar", drop*100, exit.SuddenDrop.Interval)
			return c.closeSlot(ctx, slot, price, reason, history.ReasonSuddenDrop)
		}
	}

	if closed, err := c.checkStopLoss(ctx, slot, price, rate, exit); err != nil || closed {
		return err
	}
	if closed, err := c.checkTrailing(ctx, slot, price, exit); err != nil || closed {
		return err
	}
	return c.checkTakeProfit(ctx, slot, price, strat)
}

func (c *Controller) checkStopLoss(ctx context.Context, slot *position.Slot, price, rate float64, exit config.ExitConfig) (bool, error) {
	floor := -exit.StopLoss
	if slot.BreakEvenActive {
		floor = exit.BreakEvenFloor
	}
	if !trading.AtOrBelow(rate, floor) {
		if slot.StopLossConfirmCount > 0 {
			log.Debugf("%s stop-loss recovered (%.2f%%)", slot.Market, rate*100)
			slot.StopLossConfirmCount = 0
			c.markDirty()
		}
		return false, nil
	}
	if slot.BreakEvenActive {
		reason := fmt.Sprintf("[break-even] profit fell to %.2f%% (floor %.2f%%)", rate*100, floor*100)
		return true, c.closeSlot(ctx, slot, price, reason, history.ReasonBreakEven)
	}
	slot.StopLossConfirmCount++
	c.markDirty()
	if slot.StopLossConfirmCount < exit.StopLossConfirmCycles {
		log.Infof("%s stop-loss pending %d/%d (%.2f%%)", slot.Market, slot.StopLossConfirmCount, exit.StopLossConfirmCycles, rate*100)
		return false, nil
	}
	reason := fmt.Sprintf("[stop-loss] %.2f%% reached limit -%.2f%%", rate*100, exit.StopLoss*100)
	return true, c.closeSlot(ctx, slot, price, reason, history.ReasonStopLoss)
}

// checkTrailing measures the pullback in profit points: (high-price)/avg.
func (c *Controller) checkTrailing(ctx context.Context, slot *position.Slot, price float64, exit config.ExitConfig) (bool, error) {
	if slot.EntryCount > 1 {
		if slot.TrailingConfirmCount > 0 {
			slot.TrailingConfirmCount = 0
			c.markDirty()
		}
		return false, nil
	}
	maxRate := slot.ProfitRate(slot.HighestPrice)
	if !trading.AtOrAbove(maxRate, exit.TrailingTrigger) {
		return false, nil
	}
	avg := trading.Dec(slot.AvgBuyPrice)
	pull, _ := trading.Dec(slot.HighestPrice).Sub(trading.Dec(price)).Div(avg).Float64()
	if !trading.AtOrAbove(pull, exit.TrailingGap) {
		if slot.TrailingConfirmCount > 0 {
			slot.TrailingConfirmCount = 0
			c.markDirty()
		}
		return false, nil
	}
	slot.TrailingConfirmCount++
	c.markDirty()
	if slot.TrailingConfirmCount < exit.TrailingConfirmCycles {
		log.Infof("%s trailing stop pending %d/%d (pullback %.2f%%)", slot.Market, slot.TrailingConfirmCount, exit.TrailingConfirmCycles, pull*100)
		return false, nil
	}
	reason := fmt.Sprintf("[take-profit] trailing stop (peak %.2f%%, pullback %.2f%%)", maxRate*100, pull*100)
	return true, c.closeSlot(ctx, slot, price, reason, history.ReasonTrailingStop)
}

// checkTakeProfit polls the resting sell. A missing order is re-placed, and a
// position with nothing left on the account is closed as external.
func (c *Controller) checkTakeProfit(ctx context.Context, slot *position.Slot, price float64, strat config.Strategy) error {
	if slot.SellOrderID == "" {
		err := c.placeTakeProfit(ctx, slot, strat)
		if errors.Is(err, errNoBalance) {
			return c.closeSlot(ctx, slot, price, "[external] position no longer on account", history.ReasonExternal)
		}
		return err
	}
	ord, err := c.ex.Order(ctx, slot.SellOrderID)
	if err != nil {
		if errors.Is(err, exchange.ErrOrderNotFound) {
			log.Warnf("%s take-profit order %s vanished", slot.Market, slot.SellOrderID)
			slot.SellOrderID = ""
			c.markDirty()
			return nil
		}
		return fmt.Errorf("take-profit status: %w", err)
	}
	switch ord.State {
	case exchange.OrderDone:
		c.finishTakeProfit(ctx, slot, ord)
	case exchange.OrderCancel:
		log.Warnf("%s take-profit canceled externally", slot.Market)
		slot.SellOrderID = ""
		slot.SellLimitPrice = 0
		c.markDirty()
	}
	return nil
}

func (c *Controller) suddenDropDue(market string, cfg config.SuddenDropConfig) bool {
	if !cfg.Enabled || cfg.Threshold <= 0 {
		return false
	}
	now := c.nowFn()
	if last, ok := c.dropChecks[market]; ok && now.Sub(last) < cfg.CheckEvery() {
		return false
	}
	c.dropChecks[market] = now
	return true
}

func (c *Controller) lastBarDrop(ctx context.Context, market, interval string) (float64, error) {
	candles, err := c.ex.Candles(ctx, market, interval, 1)
	if err != nil {
		return 0, err
	}
	bar, ok := candles.Last()
	if !ok {
		return 0, fmt.Errorf("no %s candle", interval)
	}
	return bar.DropPct(), nil
}
