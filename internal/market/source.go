package market

import (
	"context"
	"time"
)

// Instrument is a tradable market plus the 24h liquidity used to build the
// scan universe.
type Instrument struct {
	Market       string  `json:"market"`
	KoreanName   string  `json:"korean_name"`
	EnglishName  string  `json:"english_name"`
	TradeValue24 float64 `json:"acc_trade_price_24h"`
	Warning      bool    `json:"warning"`
}

type OrderBookLevel struct {
	AskPrice float64 `json:"ask_price"`
	BidPrice float64 `json:"bid_price"`
	AskSize  float64 `json:"ask_size"`
	BidSize  float64 `json:"bid_size"`
}

type OrderBook struct {
	Market       string           `json:"market"`
	TotalAskSize float64          `json:"total_ask_size"`
	TotalBidSize float64          `json:"total_bid_size"`
	Levels       []OrderBookLevel `json:"orderbook_units"`
	At           time.Time        `json:"timestamp"`
}

// BidAskRatio is total bid size over total ask size; 0 without asks.
func (ob OrderBook) BidAskRatio() float64 {
	if ob.TotalAskSize <= 0 {
		return 0
	}
	return ob.TotalBidSize / ob.TotalAskSize
}

type Side string

const (
	SideBuy  Side = "BID"
	SideSell Side = "ASK"
)

type Trade struct {
	Price  float64   `json:"trade_price"`
	Volume float64   `json:"trade_volume"`
	Side   Side      `json:"ask_bid"`
	At     time.Time `json:"timestamp"`
}

// BuyStrength is buy volume as a percentage of total volume; 50 when empty.
func BuyStrength(trades []Trade) float64 {
	var buy, total float64
	for _, t := range trades {
		total += t.Volume
		if t.Side == SideBuy {
			buy += t.Volume
		}
	}
	if total <= 0 {
		return 50
	}
	return buy / total * 100
}

// Source is the public market-data surface. Any error means "unknown,
// retry next tick".
type Source interface {
	// Prices returns the last traded price for each requested market in one call.
	Prices(ctx context.Context, markets []string) (map[string]float64, error)
	// Candles returns up to count bars, oldest first. The newest bar may be open.
	Candles(ctx context.Context, market, interval string, count int) (Candles, error)
	OrderBook(ctx context.Context, market string) (OrderBook, error)
	RecentTrades(ctx context.Context, market string, count int) ([]Trade, error)
	// ActiveMarkets lists quote-currency markets, most liquid first.
	ActiveMarkets(ctx context.Context, quote string, minTradeValue float64, limit int) ([]Instrument, error)
}
