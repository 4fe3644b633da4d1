package trader

import (
	"context"
	"time"

	"upbot/internal/history"
)

// checkDailySummary logs the previous day's results once the local date
// changes.
func (c *Controller) checkDailySummary(ctx context.Context, now time.Time) {
	today := history.DateOf(now)
	if today == c.summaryDate {
		return
	}
	prev := c.summaryDate
	c.summaryDate = today
	if c.history == nil || prev == "" {
		return
	}
	recs, err := c.history.Day(ctx, prev)
	if err != nil {
		log.Warnf("daily summary for %s: %v", prev, err)
		return
	}
	s := history.Summarize(prev, recs)
	log.Infof("daily summary %s: trades=%d wins=%d losses=%d win_rate=%.1f%% pnl=%.0f",
		s.Date, s.Trades, s.Wins, s.Losses, s.WinRate*100, s.PnL)
	if s.Trades > 0 {
		c.notifySummary(s)
	}
}
