package upbit

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"upbot/internal/gateway/exchange"
	"upbot/internal/pkg/trading"
)

func (c *Client) Balances(ctx context.Context) ([]exchange.Balance, error) {
	data, err := c.do(ctx, request{method: http.MethodGet, path: "/v1/accounts", signed: true})
	if err != nil {
		return nil, err
	}
	items := gjson.ParseBytes(data).Array()
	out := make([]exchange.Balance, 0, len(items))
	for _, item := range items {
		out = append(out, exchange.Balance{
			Currency:    strings.ToUpper(item.Get("currency").String()),
			Balance:     item.Get("balance").Float(),
			Locked:      item.Get("locked").Float(),
			AvgBuyPrice: item.Get("avg_buy_price").Float(),
			Unit:        item.Get("unit_currency").String(),
		})
	}
	return out, nil
}

func (c *Client) Balance(ctx context.Context, currency string) (exchange.Balance, error) {
	all, err := c.Balances(ctx)
	if err != nil {
		return exchange.Balance{}, err
	}
	currency = strings.ToUpper(currency)
	for _, b := range all {
		if b.Currency == currency {
			return b, nil
		}
	}
	return exchange.Balance{Currency: currency}, nil
}

func (c *Client) LimitBuy(ctx context.Context, mkt string, price, volume float64) (exchange.Order, error) {
	return c.place(ctx, url.Values{
		"market":   {mkt},
		"side":     {string(exchange.SideBid)},
		"ord_type": {string(exchange.OrderLimit)},
		"price":    {trading.FormatPrice(price)},
		"volume":   {trading.FormatVolume(volume)},
	})
}

func (c *Client) LimitSell(ctx context.Context, mkt string, price, volume float64) (exchange.Order, error) {
	return c.place(ctx, url.Values{
		"market":   {mkt},
		"side":     {string(exchange.SideAsk)},
		"ord_type": {string(exchange.OrderLimit)},
		"price":    {trading.FormatPrice(price)},
		"volume":   {trading.FormatVolume(volume)},
	})
}

// MarketBuy spends amount of quote currency.
func (c *Client) MarketBuy(ctx context.Context, mkt string, amount float64) (exchange.Order, error) {
	return c.place(ctx, url.Values{
		"market":   {mkt},
		"side":     {string(exchange.SideBid)},
		"ord_type": {string(exchange.OrderMarketBuy)},
		"price":    {trading.FormatAmount(amount)},
	})
}

func (c *Client) MarketSell(ctx context.Context, mkt string, volume float64) (exchange.Order, error) {
	return c.place(ctx, url.Values{
		"market":   {mkt},
		"side":     {string(exchange.SideAsk)},
		"ord_type": {string(exchange.OrderMarketSell)},
		"volume":   {trading.FormatVolume(volume)},
	})
}

func (c *Client) place(ctx context.Context, params url.Values) (exchange.Order, error) {
	data, err := c.do(ctx, request{method: http.MethodPost, path: "/v1/orders", params: params, signed: true})
	if err != nil {
		return exchange.Order{}, err
	}
	o := parseOrder(gjson.ParseBytes(data))
	log.Infof("order placed %s %s %s price=%s volume=%s -> %s",
		params.Get("market"), params.Get("side"), params.Get("ord_type"), params.Get("price"), params.Get("volume"), o.ID)
	return o, nil
}

func (c *Client) Cancel(ctx context.Context, id string) (exchange.Order, error) {
	data, err := c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/v1/order",
		params: url.Values{"uuid": {id}},
		signed: true,
	})
	if err != nil {
		return exchange.Order{}, mapNotFound(err)
	}
	return parseOrder(gjson.ParseBytes(data)), nil
}

func (c *Client) Order(ctx context.Context, id string) (exchange.Order, error) {
	data, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v1/order",
		params: url.Values{"uuid": {id}},
		signed: true,
	})
	if err != nil {
		return exchange.Order{}, mapNotFound(err)
	}
	return parseOrder(gjson.ParseBytes(data)), nil
}

func (c *Client) OpenOrders(ctx context.Context, mkt string) ([]exchange.Order, error) {
	data, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v1/orders/open",
		params: url.Values{"market": {mkt}, "limit": {"100"}},
		signed: true,
	})
	if err != nil {
		return nil, err
	}
	items := gjson.ParseBytes(data).Array()
	out := make([]exchange.Order, 0, len(items))
	for _, item := range items {
		out = append(out, parseOrder(item))
	}
	return out, nil
}

func mapNotFound(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusNotFound || apiErr.Name == "order_not_found") {
		return errors.Join(exchange.ErrOrderNotFound, err)
	}
	return err
}

// parseOrder reads the venue's string-encoded numbers through gjson.
func parseOrder(res gjson.Result) exchange.Order {
	o := exchange.Order{
		ID:              res.Get("uuid").String(),
		Market:          res.Get("market").String(),
		Side:            exchange.Side(res.Get("side").String()),
		Type:            exchange.OrderType(res.Get("ord_type").String()),
		State:           exchange.OrderState(res.Get("state").String()),
		Price:           res.Get("price").Float(),
		Volume:          res.Get("volume").Float(),
		RemainingVolume: res.Get("remaining_volume").Float(),
		ExecutedVolume:  res.Get("executed_volume").Float(),
		PaidFee:         res.Get("paid_fee").Float(),
	}
	if ts, err := time.Parse(time.RFC3339, res.Get("created_at").String()); err == nil {
		o.CreatedAt = ts
	}
	for _, t := range res.Get("trades").Array() {
		o.Trades = append(o.Trades, exchange.Fill{
			Price:  t.Get("price").Float(),
			Volume: t.Get("volume").Float(),
			Funds:  t.Get("funds").Float(),
		})
	}
	if f := res.Get("executed_funds"); f.Exists() {
		o.ExecutedFunds = f.Float()
	} else {
		for _, t := range o.Trades {
			o.ExecutedFunds += t.Funds
		}
	}
	return o
}
