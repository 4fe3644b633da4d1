// Package position holds the durable trading state: slots, cooldowns and the
// search throttle. The controller is its only writer.
package position

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"upbot/internal/pkg/trading"
	"upbot/internal/trend"
)

type Status string

const (
	StatusBuyWait Status = "BUY_WAIT"
	StatusHolding Status = "HOLDING"
	StatusDone    Status = "DONE"
)

func (s Status) Valid() bool {
	switch s {
	case StatusBuyWait, StatusHolding, StatusDone:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown statuses so a corrupt state file fails at load.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	st := Status(raw)
	if !st.Valid() {
		return fmt.Errorf("unknown slot status %q", raw)
	}
	*s = st
	return nil
}

type EntryKind string

const (
	EntryInit EntryKind = "Init"
	EntryAdd  EntryKind = "Add"
)

type TradeEntry struct {
	Kind  EntryKind `json:"type"`
	Price float64   `json:"price"`
	At    time.Time `json:"time"`
}

// Slot is one position attempt on one market.
type Slot struct {
	Market string `json:"market"`
	Status Status `json:"status"`

	BuyOrderID  string `json:"buy_order_uuid,omitempty"`
	SellOrderID string `json:"sell_order_uuid,omitempty"`

	LimitPrice     float64 `json:"limit_price,omitempty"`
	AvgBuyPrice    float64 `json:"avg_buy_price,omitempty"`
	SellLimitPrice float64 `json:"sell_limit_price,omitempty"`
	HighestPrice   float64 `json:"highest_price,omitempty"`

	EntryCount int          `json:"entry_cnt"`
	TradeLog   []TradeEntry `json:"trade_log,omitempty"`

	StopLossConfirmCount int  `json:"sl_confirm_count,omitempty"`
	TrailingConfirmCount int  `json:"ts_confirm_count,omitempty"`
	BreakEvenActive      bool `json:"is_break_even_active,omitempty"`

	OrderTime       time.Time `json:"order_time"`
	EntryTime       time.Time `json:"entry_time"`
	LastAddBuyCheck time.Time `json:"last_add_buy_check"`

	Snapshot  *trend.Candidate `json:"trend_info,omitempty"`
	Recovered bool             `json:"recovered,omitempty"`
}

func (s *Slot) Active() bool { return s.Status != StatusDone }

// ProfitRate is (price-avg)/avg, 0 before any fill.
func (s *Slot) ProfitRate(price float64) float64 {
	return trading.ProfitRate(price, s.AvgBuyPrice)
}

// ObserveHigh raises HighestPrice to price and reports whether it moved.
func (s *Slot) ObserveHigh(price float64) bool {
	if price > s.HighestPrice {
		s.HighestPrice = price
		return true
	}
	return false
}

// Hold moves the slot into HOLDING with its first fill.
func (s *Slot) Hold(avg float64, at time.Time) {
	s.Status = StatusHolding
	s.AvgBuyPrice = avg
	s.HighestPrice = avg
	s.EntryTime = at
	s.EntryCount = 1
	s.SellOrderID = ""
	s.SellLimitPrice = 0
	s.StopLossConfirmCount = 0
	s.TrailingConfirmCount = 0
	s.TradeLog = append(s.TradeLog, TradeEntry{Kind: EntryInit, Price: avg, At: at})
}

// Averaged records an add-buy fill. The high restarts at the new average so a
// pre-average peak cannot trip the trailing stop. Break-even disarms too: the
// floor is relative to the average, and the fill sits below the new one.
func (s *Slot) Averaged(newAvg, fillPrice float64, at time.Time) {
	s.AvgBuyPrice = newAvg
	s.HighestPrice = newAvg
	s.BreakEvenActive = false
	s.EntryCount++
	s.SellOrderID = ""
	s.SellLimitPrice = 0
	s.StopLossConfirmCount = 0
	s.TrailingConfirmCount = 0
	s.TradeLog = append(s.TradeLog, TradeEntry{Kind: EntryAdd, Price: fillPrice, At: at})
}

// AddBuys is the number of averaging fills so far.
func (s *Slot) AddBuys() int {
	if s.EntryCount <= 1 {
		return 0
	}
	return s.EntryCount - 1
}

// Clone deep-copies the slot for read-only consumers.
func (s *Slot) Clone() *Slot {
	cp := *s
	cp.TradeLog = append([]TradeEntry(nil), s.TradeLog...)
	if s.Snapshot != nil {
		snap := *s.Snapshot
		cp.Snapshot = &snap
	}
	return &cp
}

var errInvalidSlot = errors.New("invalid slot")

// normalize repairs soft fields written by older versions.
func (s *Slot) normalize() {
	if s.Status == StatusHolding {
		if s.EntryCount < 1 {
			s.EntryCount = 1
		}
		if s.HighestPrice < s.AvgBuyPrice {
			s.HighestPrice = s.AvgBuyPrice
		}
	}
}

// Validate checks the fields each status requires.
func (s *Slot) Validate() error {
	if s.Market == "" {
		return fmt.Errorf("%w: empty market", errInvalidSlot)
	}
	switch s.Status {
	case StatusBuyWait:
		if s.BuyOrderID == "" {
			return fmt.Errorf("%w: %s waiting without buy order", errInvalidSlot, s.Market)
		}
		if s.SellOrderID != "" {
			return fmt.Errorf("%w: %s waiting with a sell order", errInvalidSlot, s.Market)
		}
		if s.LimitPrice <= 0 {
			return fmt.Errorf("%w: %s waiting without limit price", errInvalidSlot, s.Market)
		}
	case StatusHolding:
		if s.AvgBuyPrice <= 0 {
			return fmt.Errorf("%w: %s holding without average price", errInvalidSlot, s.Market)
		}
		if s.EntryCount < 1 {
			return fmt.Errorf("%w: %s holding with entry count %d", errInvalidSlot, s.Market, s.EntryCount)
		}
	case StatusDone:
	default:
		return fmt.Errorf("%w: %s has status %q", errInvalidSlot, s.Market, s.Status)
	}
	return nil
}
