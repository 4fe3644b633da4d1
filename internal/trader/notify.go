package trader

import (
	"fmt"

	"upbot/internal/gateway/notifier"
	"upbot/internal/history"
	"upbot/internal/pkg/trading"
	"upbot/internal/position"
)

// Notifier receives trade events. Implementations must not block.
type Notifier interface {
	Notify(msg notifier.Message)
}

type nopNotifier struct{}

func (nopNotifier) Notify(notifier.Message) {}

func (c *Controller) notifyOpened(slot *position.Slot, volume float64) {
	c.notifier.Notify(notifier.Message{
		Icon:  "🟢",
		Title: slot.Market + " bought",
		Sections: []notifier.Section{{Lines: []string{
			"avg " + trading.FormatPrice(slot.AvgBuyPrice),
			"volume " + trading.FormatVolume(volume),
		}}},
		At: c.nowFn(),
	})
}

func (c *Controller) notifyAddBuy(slot *position.Slot, fill float64) {
	c.notifier.Notify(notifier.Message{
		Icon:  "➕",
		Title: fmt.Sprintf("%s add-buy #%d", slot.Market, slot.AddBuys()),
		Sections: []notifier.Section{{Lines: []string{
			"fill " + trading.FormatPrice(fill),
			"new avg " + trading.FormatPrice(slot.AvgBuyPrice),
		}}},
		At: c.nowFn(),
	})
}

func (c *Controller) notifyClosed(slot *position.Slot, rec history.Record) {
	icon := "🔴"
	if rec.PnL > 0 {
		icon = "🟢"
	}
	c.notifier.Notify(notifier.Message{
		Icon:  icon,
		Title: slot.Market + " closed",
		Sections: []notifier.Section{{Lines: []string{
			fmt.Sprintf("profit %.2f%%", rec.ProfitRate*100),
			fmt.Sprintf("pnl %.0f", rec.PnL),
			"avg " + trading.FormatPrice(rec.BuyPrice),
		}}},
		Footer: rec.Reason,
		At:     c.nowFn(),
	})
}

func (c *Controller) notifySummary(s history.Summary) {
	c.notifier.Notify(notifier.Message{
		Icon:  "📊",
		Title: "daily summary " + s.Date,
		Sections: []notifier.Section{{Lines: []string{
			fmt.Sprintf("trades %d (wins %d, losses %d)", s.Trades, s.Wins, s.Losses),
			fmt.Sprintf("win rate %.1f%%", s.WinRate*100),
			fmt.Sprintf("pnl %.0f", s.PnL),
		}}},
		At: c.nowFn(),
	})
}
