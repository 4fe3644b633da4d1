package trader

import (
	"time"

	"upbot/internal/admission"
	"upbot/internal/position"
	"upbot/internal/trend"
)

// Snapshot is an immutable view of the controller for the HTTP API.
type Snapshot struct {
	At             time.Time            `json:"timestamp"`
	Exchange       string               `json:"exchange"`
	Paused         bool                 `json:"paused"`
	Slots          []*position.Slot     `json:"slots"`
	Cooldowns      map[string]time.Time `json:"cooldowns"`
	LastSearchTime time.Time            `json:"last_search_time"`
	Prices         map[string]float64   `json:"prices"`
	Admission      admission.Verdict    `json:"admission"`
	Strategy       string               `json:"strategy"`
}

func (c *Controller) Snapshot() *Snapshot {
	if s := c.snapshot.Load(); s != nil {
		return s
	}
	return &Snapshot{}
}

// LastScan returns the most recent ranking, empty before the first search.
func (c *Controller) LastScan() trend.Result {
	if r := c.lastScan.Load(); r != nil {
		return *r
	}
	return trend.Result{}
}

func (c *Controller) publish() {
	st := c.state.Clone()
	prices := make(map[string]float64, len(c.prices))
	for m, p := range c.prices {
		prices[m] = p
	}
	c.snapshot.Store(&Snapshot{
		At:             c.nowFn(),
		Exchange:       c.ex.Name(),
		Paused:         st.Paused,
		Slots:          st.Slots,
		Cooldowns:      st.Cooldowns,
		LastSearchTime: st.LastSearchTime,
		Prices:         prices,
		Admission:      c.verdict,
		Strategy:       c.strategy.Current().String(),
	})
	counts := map[string]int{
		string(position.StatusBuyWait): 0,
		string(position.StatusHolding): 0,
	}
	for _, s := range st.Slots {
		counts[string(s.Status)]++
	}
	c.metrics.SetSlots(counts)
}
