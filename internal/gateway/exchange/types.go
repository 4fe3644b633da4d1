// Package exchange defines the account-side abstraction of a spot venue.
// The live Upbit client and the paper exchange both implement it.
package exchange

import (
	"errors"
	"strings"
	"time"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderState mirrors the venue's lifecycle: wait (open), done (fully
// executed) and cancel (canceled, possibly after a partial fill).
type OrderState string

const (
	OrderWait   OrderState = "wait"
	OrderWatch  OrderState = "watch"
	OrderDone   OrderState = "done"
	OrderCancel OrderState = "cancel"
)

func (s OrderState) Open() bool { return s == OrderWait || s == OrderWatch }

type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// OrderType values follow the venue: "price" is a market buy sized in quote
// currency, "market" is a market sell sized in base currency.
type OrderType string

const (
	OrderLimit      OrderType = "limit"
	OrderMarketBuy  OrderType = "price"
	OrderMarketSell OrderType = "market"
)

type Fill struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Funds  float64 `json:"funds"`
}

type Order struct {
	ID              string     `json:"uuid"`
	Market          string     `json:"market"`
	Side            Side       `json:"side"`
	Type            OrderType  `json:"ord_type"`
	State           OrderState `json:"state"`
	Price           float64    `json:"price"`
	Volume          float64    `json:"volume"`
	RemainingVolume float64    `json:"remaining_volume"`
	ExecutedVolume  float64    `json:"executed_volume"`
	ExecutedFunds   float64    `json:"executed_funds"`
	PaidFee         float64    `json:"paid_fee"`
	CreatedAt       time.Time  `json:"created_at"`
	Trades          []Fill     `json:"trades,omitempty"`
}

// AvgFillPrice prefers the fill list, then executed funds/volume, then fallback.
func (o Order) AvgFillPrice(fallback float64) float64 {
	var vol, funds float64
	for _, t := range o.Trades {
		vol += t.Volume
		funds += t.Funds
	}
	if vol > 0 && funds > 0 {
		return funds / vol
	}
	if o.ExecutedVolume > 0 && o.ExecutedFunds > 0 {
		return o.ExecutedFunds / o.ExecutedVolume
	}
	return fallback
}

func (o Order) Filled() bool { return o.ExecutedVolume > 0 }

type Balance struct {
	Currency    string  `json:"currency"`
	Balance     float64 `json:"balance"`
	Locked      float64 `json:"locked"`
	AvgBuyPrice float64 `json:"avg_buy_price"`
	Unit        string  `json:"unit_currency"`
}

func (b Balance) Total() float64 { return b.Balance + b.Locked }

// MarketCode joins quote and base as the venue writes it, e.g. "KRW-BTC".
func MarketCode(quote, currency string) string {
	return strings.ToUpper(quote) + "-" + strings.ToUpper(currency)
}

// BaseCurrency returns "BTC" for "KRW-BTC".
func BaseCurrency(market string) string {
	if i := strings.IndexByte(market, '-'); i >= 0 {
		return market[i+1:]
	}
	return market
}

func QuoteCurrency(market string) string {
	if i := strings.IndexByte(market, '-'); i >= 0 {
		return market[:i]
	}
	return ""
}
