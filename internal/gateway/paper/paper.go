// Package paper is a simulated venue. It serves public market data from an
// optional live Source (or from values pushed by tests) and keeps orders and
// balances in memory. Limit orders fill when a later price crosses them.
package paper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"upbot/internal/gateway/exchange"
	"upbot/internal/logger"
	"upbot/internal/market"
)

var log = logger.For("Paper")

var (
	ErrNoPrice           = errors.New("paper: no price for market")
	ErrInsufficientFunds = errors.New("paper: insufficient funds")
	ErrNotCancelable     = errors.New("paper: order is not open")
)

type Options struct {
	Quote   string
	Balance float64
	// Data serves market data when set; pushed values take precedence.
	Data market.Source
}

type Exchange struct {
	mu    sync.Mutex
	quote string
	data  market.Source

	prices      map[string]float64
	candles     map[string]market.Candles
	books       map[string]market.OrderBook
	trades      map[string][]market.Trade
	instruments []market.Instrument

	balances map[string]*exchange.Balance
	orders   map[string]*exchange.Order
	seq      []string

	nowFn func() time.Time
}

func New(opts Options) *Exchange {
	quote := strings.ToUpper(strings.TrimSpace(opts.Quote))
	if quote == "" {
		quote = "KRW"
	}
	ex := &Exchange{
		quote:    quote,
		data:     opts.Data,
		prices:   make(map[string]float64),
		candles:  make(map[string]market.Candles),
		books:    make(map[string]market.OrderBook),
		trades:   make(map[string][]market.Trade),
		balances: make(map[string]*exchange.Balance),
		orders:   make(map[string]*exchange.Order),
		nowFn:    time.Now,
	}
	ex.balances[quote] = &exchange.Balance{Currency: quote, Balance: opts.Balance, Unit: quote}
	return ex
}

func (e *Exchange) Name() string { return "paper" }

// SetClock replaces the order timestamp source.
func (e *Exchange) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.nowFn = now
	e.mu.Unlock()
}

// ---- market data ----

// SetPrice pushes a last price and matches open limit orders against it.
func (e *Exchange) SetPrice(mkt string, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prices[mkt] = price
	e.matchLocked(mkt, price)
}

func (e *Exchange) SetCandles(mkt, interval string, candles market.Candles) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.candles[candleKey(mkt, interval)] = append(market.Candles(nil), candles...)
}

func (e *Exchange) SetOrderBook(book market.OrderBook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.books[book.Market] = book
}

func (e *Exchange) SetTrades(mkt string, trades []market.Trade) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trades[mkt] = append([]market.Trade(nil), trades...)
}

func (e *Exchange) SetInstruments(list []market.Instrument) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.instruments = append([]market.Instrument(nil), list...)
}

func candleKey(mkt, interval string) string { return mkt + "|" + interval }

func (e *Exchange) Prices(ctx context.Context, markets []string) (map[string]float64, error) {
	out := make(map[string]float64, len(markets))
	var missing []string
	e.mu.Lock()
	for _, m := range markets {
		if p, ok := e.prices[m]; ok {
			out[m] = p
		} else {
			missing = append(missing, m)
		}
	}
	e.mu.Unlock()
	if len(missing) == 0 || e.data == nil {
		return out, nil
	}
	live, err := e.data.Prices(ctx, missing)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for m, p := range live {
		out[m] = p
		e.matchLocked(m, p)
	}
	return out, nil
}

func (e *Exchange) Candles(ctx context.Context, mkt, interval string, count int) (market.Candles, error) {
	e.mu.Lock()
	bars, ok := e.candles[candleKey(mkt, interval)]
	e.mu.Unlock()
	if ok {
		if count > 0 {
			bars = bars.Tail(count)
		}
		return append(market.Candles(nil), bars...), nil
	}
	if e.data == nil {
		return nil, fmt.Errorf("paper: no %s candles for %s", interval, mkt)
	}
	return e.data.Candles(ctx, mkt, interval, count)
}

func (e *Exchange) OrderBook(ctx context.Context, mkt string) (market.OrderBook, error) {
	e.mu.Lock()
	book, ok := e.books[mkt]
	e.mu.Unlock()
	if ok {
		return book, nil
	}
	if e.data == nil {
		return market.OrderBook{}, fmt.Errorf("paper: no orderbook for %s", mkt)
	}
	return e.data.OrderBook(ctx, mkt)
}

func (e *Exchange) RecentTrades(ctx context.Context, mkt string, count int) ([]market.Trade, error) {
	e.mu.Lock()
	trades, ok := e.trades[mkt]
	e.mu.Unlock()
	if ok {
		if count > 0 && len(trades) > count {
			trades = trades[:count]
		}
		return append([]market.Trade(nil), trades...), nil
	}
	if e.data == nil {
		return nil, nil
	}
	return e.data.RecentTrades(ctx, mkt, count)
}

func (e *Exchange) ActiveMarkets(ctx context.Context, quote string, minTradeValue float64, limit int) ([]market.Instrument, error) {
	e.mu.Lock()
	pushed := append([]market.Instrument(nil), e.instruments...)
	e.mu.Unlock()
	if len(pushed) == 0 && e.data != nil {
		return e.data.ActiveMarkets(ctx, quote, minTradeValue, limit)
	}
	prefix := strings.ToUpper(quote) + "-"
	out := pushed[:0]
	for _, inst := range pushed {
		if strings.HasPrefix(inst.Market, prefix) && inst.TradeValue24 >= minTradeValue {
			out = append(out, inst)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TradeValue24 > out[j].TradeValue24 })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
