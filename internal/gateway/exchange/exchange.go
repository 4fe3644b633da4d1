package exchange

import (
	"context"

	"upbot/internal/market"
)

// Account is the authenticated half of the venue. Any error means the
// outcome is unknown; callers retry on the next tick.
type Account interface {
	Balances(ctx context.Context) ([]Balance, error)
	// Balance returns a zero Balance when the currency is not held.
	Balance(ctx context.Context, currency string) (Balance, error)
	LimitBuy(ctx context.Context, market string, price, volume float64) (Order, error)
	LimitSell(ctx context.Context, market string, price, volume float64) (Order, error)
	MarketBuy(ctx context.Context, market string, amount float64) (Order, error)
	MarketSell(ctx context.Context, market string, volume float64) (Order, error)
	Cancel(ctx context.Context, id string) (Order, error)
	Order(ctx context.Context, id string) (Order, error)
	// OpenOrders lists the wait and watch orders on market.
	OpenOrders(ctx context.Context, market string) ([]Order, error)
}

// Exchange is everything the controller talks to.
type Exchange interface {
	market.Source
	Account
	Name() string
}
