// Package history is the append-only ledger of closed trades.
package history

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"upbot/internal/pkg/trading"
)

// ReasonKind classifies why a slot closed; Reason carries the display text.
type ReasonKind string

const (
	ReasonTakeProfit   ReasonKind = "take_profit"
	ReasonStopLoss     ReasonKind = "stop_loss"
	ReasonBreakEven    ReasonKind = "break_even"
	ReasonTrailingStop ReasonKind = "trailing_stop"
	ReasonSuddenDrop   ReasonKind = "sudden_drop"
	ReasonPanicSell    ReasonKind = "panic_sell"
	ReasonExternal     ReasonKind = "external"
)

const dateLayout = "2006-01-02"

type Record struct {
	ID         string         `gorm:"column:id;primaryKey" json:"id"`
	Date       string         `gorm:"column:date;index" json:"date"`
	Market     string         `gorm:"column:market;index" json:"market"`
	BuyPrice   float64        `gorm:"column:buy_price" json:"buy_price"`
	SellPrice  float64        `gorm:"column:sell_price" json:"sell_price"`
	Volume     float64        `gorm:"column:volume" json:"volume"`
	PnL        float64        `gorm:"column:pnl" json:"pnl"`
	ProfitRate float64        `gorm:"column:profit_rate" json:"profit_rate"`
	Reason     string         `gorm:"column:reason" json:"reason"`
	Kind       ReasonKind     `gorm:"column:kind" json:"kind"`
	EntryCount int            `gorm:"column:entry_count" json:"entry_count"`
	TradeLog   datatypes.JSON `gorm:"column:trade_log;type:TEXT" json:"trade_log,omitempty"`
	ClosedAt   time.Time      `gorm:"column:closed_at;index" json:"time"`
}

func (Record) TableName() string { return "trade_history" }

// Close describes a finished slot.
type Close struct {
	Market     string
	BuyPrice   float64
	ProfitRate float64
	Volume     float64
	Reason     string
	Kind       ReasonKind
	EntryCount int
	TradeLog   any
	At         time.Time
}

// NewRecord derives the sell price and PnL from the average cost and the
// profit rate observed when the close was decided.
func NewRecord(c Close) Record {
	sell, _ := trading.Dec(c.BuyPrice).Mul(trading.Dec(1).Add(trading.Dec(c.ProfitRate))).Float64()
	pnl, _ := trading.Dec(sell).Sub(trading.Dec(c.BuyPrice)).Mul(trading.Dec(c.Volume)).Float64()
	rec := Record{
		ID:         uuid.NewString(),
		Date:       c.At.Local().Format(dateLayout),
		Market:     c.Market,
		BuyPrice:   c.BuyPrice,
		SellPrice:  sell,
		Volume:     c.Volume,
		PnL:        pnl,
		ProfitRate: c.ProfitRate,
		Reason:     c.Reason,
		Kind:       c.Kind,
		EntryCount: c.EntryCount,
		ClosedAt:   c.At,
	}
	if c.TradeLog != nil {
		if buf, err := json.Marshal(c.TradeLog); err == nil {
			rec.TradeLog = datatypes.JSON(buf)
		}
	}
	return rec
}

// Summary aggregates one local calendar day.
type Summary struct {
	Date    string  `json:"date"`
	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	PnL     float64 `json:"pnl"`
	WinRate float64 `json:"win_rate"`
}

func Summarize(date string, recs []Record) Summary {
	s := Summary{Date: date, Trades: len(recs)}
	for _, r := range recs {
		s.PnL += r.PnL
		switch {
		case r.PnL > 0:
			s.Wins++
		case r.PnL < 0:
			s.Losses++
		}
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
	}
	return s
}

// DateOf formats t the way records are bucketed.
func DateOf(t time.Time) string { return t.Local().Format(dateLayout) }
