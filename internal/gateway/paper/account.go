package paper

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"upbot/internal/gateway/exchange"
	"upbot/internal/pkg/trading"
)

// SetBalance overwrites a holding, e.g. to simulate a manual deposit.
func (e *Exchange) SetBalance(currency string, amount, avgBuyPrice float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.balanceLocked(currency)
	b.Balance = amount
	b.AvgBuyPrice = avgBuyPrice
}

func (e *Exchange) Balances(ctx context.Context) ([]exchange.Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]exchange.Balance, 0, len(e.balances))
	for _, b := range e.balances {
		if b.Total() <= 0 && b.Currency != e.quote {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (e *Exchange) Balance(ctx context.Context, currency string) (exchange.Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.balances[strings.ToUpper(currency)]; ok {
		return *b, nil
	}
	return exchange.Balance{Currency: strings.ToUpper(currency)}, nil
}

func (e *Exchange) balanceLocked(currency string) *exchange.Balance {
	currency = strings.ToUpper(currency)
	b, ok := e.balances[currency]
	if !ok {
		b = &exchange.Balance{Currency: currency, Unit: e.quote}
		e.balances[currency] = b
	}
	return b
}

func (e *Exchange) LimitBuy(ctx context.Context, mkt string, price, volume float64) (exchange.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cost := price * volume
	quote := e.balanceLocked(e.quote)
	if price <= 0 || volume <= 0 {
		return exchange.Order{}, fmt.Errorf("paper: invalid limit buy %v x %v", price, volume)
	}
	if quote.Balance < cost {
		return exchange.Order{}, ErrInsufficientFunds
	}
	quote.Balance -= cost
	quote.Locked += cost
	o := e.newOrderLocked(mkt, exchange.SideBid, exchange.OrderLimit, price, volume)
	if last, ok := e.prices[mkt]; ok {
		e.matchLocked(mkt, last)
	}
	return *o, nil
}

func (e *Exchange) LimitSell(ctx context.Context, mkt string, price, volume float64) (exchange.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	base := e.balanceLocked(exchange.BaseCurrency(mkt))
	if price <= 0 || volume <= 0 {
		return exchange.Order{}, fmt.Errorf("paper: invalid limit sell %v x %v", price, volume)
	}
	if base.Balance < volume {
		return exchange.Order{}, ErrInsufficientFunds
	}
	base.Balance -= volume
	base.Locked += volume
	o := e.newOrderLocked(mkt, exchange.SideAsk, exchange.OrderLimit, price, volume)
	if last, ok := e.prices[mkt]; ok {
		e.matchLocked(mkt, last)
	}
	return *o, nil
}

func (e *Exchange) MarketBuy(ctx context.Context, mkt string, amount float64) (exchange.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	price, ok := e.prices[mkt]
	if !ok || price <= 0 {
		return exchange.Order{}, ErrNoPrice
	}
	quote := e.balanceLocked(e.quote)
	if amount <= 0 || quote.Balance < amount {
		return exchange.Order{}, ErrInsufficientFunds
	}
	quote.Balance -= amount
	o := e.newOrderLocked(mkt, exchange.SideBid, exchange.OrderMarketBuy, amount, 0)
	e.executeLocked(o, price, trading.OrderVolume(amount, price))
	return *o, nil
}

func (e *Exchange) MarketSell(ctx context.Context, mkt string, volume float64) (exchange.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	price, ok := e.prices[mkt]
	if !ok || price <= 0 {
		return exchange.Order{}, ErrNoPrice
	}
	base := e.balanceLocked(exchange.BaseCurrency(mkt))
	if volume <= 0 || base.Balance+1e-12 < volume {
		return exchange.Order{}, ErrInsufficientFunds
	}
	base.Balance -= volume
	o := e.newOrderLocked(mkt, exchange.SideAsk, exchange.OrderMarketSell, 0, volume)
	e.executeLocked(o, price, volume)
	return *o, nil
}

func (e *Exchange) Cancel(ctx context.Context, id string) (exchange.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[id]
	if !ok {
		return exchange.Order{}, exchange.ErrOrderNotFound
	}
	if !o.State.Open() {
		return *o, ErrNotCancelable
	}
	e.cancelLocked(o)
	return *o, nil
}

func (e *Exchange) Order(ctx context.Context, id string) (exchange.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[id]
	if !ok {
		return exchange.Order{}, exchange.ErrOrderNotFound
	}
	cp := *o
	cp.Trades = append([]exchange.Fill(nil), o.Trades...)
	return cp, nil
}

func (e *Exchange) OpenOrders(ctx context.Context, mkt string) ([]exchange.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []exchange.Order
	for _, id := range e.seq {
		if o := e.orders[id]; o.Market == mkt && o.State.Open() {
			out = append(out, *o)
		}
	}
	return out, nil
}

// Orders lists every order in placement order.
func (e *Exchange) Orders() []exchange.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]exchange.Order, 0, len(e.seq))
	for _, id := range e.seq {
		out = append(out, *e.orders[id])
	}
	return out
}

// Fill executes volume of an open limit order at its own price. A volume of
// zero or more than remaining fills the rest.
func (e *Exchange) Fill(id string, volume float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[id]
	if !ok {
		return exchange.ErrOrderNotFound
	}
	if !o.State.Open() {
		return ErrNotCancelable
	}
	if volume <= 0 || volume > o.RemainingVolume {
		volume = o.RemainingVolume
	}
	e.fillLimitLocked(o, volume)
	return nil
}

// CancelExternally cancels an order as if the operator did it on the venue.
func (e *Exchange) CancelExternally(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[id]
	if !ok {
		return exchange.ErrOrderNotFound
	}
	if o.State.Open() {
		e.cancelLocked(o)
	}
	return nil
}

func (e *Exchange) newOrderLocked(mkt string, side exchange.Side, typ exchange.OrderType, price, volume float64) *exchange.Order {
	o := &exchange.Order{
		ID:              uuid.NewString(),
		Market:          mkt,
		Side:            side,
		Type:            typ,
		State:           exchange.OrderWait,
		Price:           price,
		Volume:          volume,
		RemainingVolume: volume,
		CreatedAt:       e.nowFn(),
	}
	e.orders[o.ID] = o
	e.seq = append(e.seq, o.ID)
	return o
}

// matchLocked fills open limit orders crossed by price.
func (e *Exchange) matchLocked(mkt string, price float64) {
	for _, id := range e.seq {
		o := e.orders[id]
		if o.Market != mkt || o.Type != exchange.OrderLimit || !o.State.Open() {
			continue
		}
		if (o.Side == exchange.SideBid && price <= o.Price) || (o.Side == exchange.SideAsk && price >= o.Price) {
			e.fillLimitLocked(o, o.RemainingVolume)
		}
	}
}

func (e *Exchange) fillLimitLocked(o *exchange.Order, volume float64) {
	funds := o.Price * volume
	quote := e.balanceLocked(e.quote)
	base := e.balanceLocked(exchange.BaseCurrency(o.Market))
	if o.Side == exchange.SideBid {
		quote.Locked -= funds
		creditBase(base, o.Price, volume)
	} else {
		base.Locked -= volume
		quote.Balance += funds
		if base.Total() <= 0 {
			base.AvgBuyPrice = 0
		}
	}
	o.Trades = append(o.Trades, exchange.Fill{Price: o.Price, Volume: volume, Funds: funds})
	o.ExecutedVolume += volume
	o.ExecutedFunds += funds
	o.RemainingVolume -= volume
	if o.RemainingVolume <= 1e-12 {
		o.RemainingVolume = 0
		o.State = exchange.OrderDone
		log.Infof("%s %s filled %s @ %v", o.Market, o.Side, trading.FormatVolume(o.ExecutedVolume), o.Price)
	}
}

// executeLocked settles a market order in full at price.
func (e *Exchange) executeLocked(o *exchange.Order, price, volume float64) {
	funds := price * volume
	quote := e.balanceLocked(e.quote)
	base := e.balanceLocked(exchange.BaseCurrency(o.Market))
	if o.Side == exchange.SideBid {
		quote.Balance += o.Price - funds
		creditBase(base, price, volume)
	} else {
		quote.Balance += funds
		if base.Total() <= 0 {
			base.AvgBuyPrice = 0
		}
	}
	o.Trades = append(o.Trades, exchange.Fill{Price: price, Volume: volume, Funds: funds})
	o.ExecutedVolume = volume
	o.ExecutedFunds = funds
	o.RemainingVolume = 0
	o.State = exchange.OrderDone
}

func (e *Exchange) cancelLocked(o *exchange.Order) {
	if o.Type == exchange.OrderLimit {
		if o.Side == exchange.SideBid {
			refund := o.Price * o.RemainingVolume
			q := e.balanceLocked(e.quote)
			q.Locked -= refund
			q.Balance += refund
		} else {
			b := e.balanceLocked(exchange.BaseCurrency(o.Market))
			b.Locked -= o.RemainingVolume
			b.Balance += o.RemainingVolume
		}
	}
	o.State = exchange.OrderCancel
}

func creditBase(b *exchange.Balance, price, volume float64) {
	held := b.Total()
	b.AvgBuyPrice = trading.WeightedAverage(held*b.AvgBuyPrice+price*volume, held+volume, price)
	b.Balance += volume
}
