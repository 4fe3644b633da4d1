package trader

import (
	"context"
	"errors"
	"fmt"

	"upbot/internal/command"
	"upbot/internal/gateway/exchange"
	"upbot/internal/history"
	"upbot/internal/position"
)

func (c *Controller) drainCommands(ctx context.Context) {
	if c.mailbox == nil {
		return
	}
	cmd, err := c.mailbox.Drain()
	if err != nil {
		log.Warnf("command mailbox: %v", err)
		return
	}
	if cmd == nil {
		return
	}
	log.Infof("command %s %s", cmd.Kind, cmd.Market)
	if err := c.Apply(ctx, *cmd); err != nil {
		log.Errorf("command %s failed: %v", cmd.Kind, err)
	}
	if err := c.persist(); err != nil {
		log.Errorf("persist after command: %v", err)
	}
}

// Apply executes one operator command. It must run on the controller
// goroutine.
func (c *Controller) Apply(ctx context.Context, cmd command.Command) error {
	if err := command.Validate(cmd); err != nil {
		return err
	}
	switch cmd.Kind {
	case command.MasterStop:
		c.setPaused(true)
	case command.MasterStart:
		c.setPaused(false)
	case command.PanicSell:
		return c.panicSell(ctx, cmd.Market)
	case command.CancelBuyOrder:
		return c.cancelBuyCommand(ctx, cmd.Market)
	}
	return nil
}

func (c *Controller) setPaused(paused bool) {
	if c.state.Paused == paused {
		return
	}
	c.state.Paused = paused
	c.markDirty()
	c.metrics.SetPaused(paused)
	if paused {
		log.Infof("new entries paused")
	} else {
		log.Infof("new entries resumed")
	}
}

func (c *Controller) panicSell(ctx context.Context, market string) error {
	slot := c.state.Active(market)
	if slot == nil {
		return fmt.Errorf("no active slot for %s", market)
	}
	if slot.Status == position.StatusBuyWait {
		ord, err := c.withdrawBuy(ctx, slot)
		if err != nil {
			return err
		}
		if !ord.Filled() {
			slot.Status = position.StatusDone
			c.state.SetCooldown(market, c.nowFn().Add(c.strategy.Current().Cooldown()))
			c.markDirty()
			return nil
		}
		slot.Hold(ord.AvgFillPrice(slot.LimitPrice), c.nowFn())
		c.markDirty()
	}
	price := slot.AvgBuyPrice
	if prices, err := c.ex.Prices(ctx, []string{market}); err == nil && prices[market] > 0 {
		price = prices[market]
	}
	return c.closeSlot(ctx, slot, price, "[manual] panic sell (command)", history.ReasonPanicSell)
}

// cancelBuyCommand withdraws a pending entry. A partial fill becomes a
// position; otherwise the slot ends without cooldown.
func (c *Controller) cancelBuyCommand(ctx context.Context, market string) error {
	slot := c.state.Active(market)
	if slot == nil || slot.Status != position.StatusBuyWait {
		return fmt.Errorf("no pending buy for %s", market)
	}
	ord, err := c.withdrawBuy(ctx, slot)
	if err != nil {
		return err
	}
	if ord.Filled() {
		return c.promote(ctx, slot, ord, c.strategy.Current())
	}
	c.dropSlot(slot)
	return nil
}

// withdrawBuy cancels the entry order and returns its settled state.
func (c *Controller) withdrawBuy(ctx context.Context, slot *position.Slot) (exchange.Order, error) {
	if _, err := c.ex.Cancel(ctx, slot.BuyOrderID); err != nil && !errors.Is(err, exchange.ErrOrderNotFound) {
		log.Warnf("%s cancel buy: %v", slot.Market, err)
	}
	c.wait(ctx, c.opts.Loop.CancelWait())
	ord, err := c.ex.Order(ctx, slot.BuyOrderID)
	if errors.Is(err, exchange.ErrOrderNotFound) {
		return exchange.Order{ID: slot.BuyOrderID, State: exchange.OrderCancel}, nil
	}
	if err != nil {
		return exchange.Order{}, err
	}
	if ord.State.Open() {
		return exchange.Order{}, fmt.Errorf("buy order %s still open after cancel", slot.BuyOrderID)
	}
	return ord, nil
}
