package upbit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"upbot/internal/market"
	"upbot/internal/scheduler"
)

const candleTimeLayout = "2006-01-02T15:04:05"

// Prices fetches last trade prices for all markets in a single request,
// unless the attached ticker stream has all of them fresh.
func (c *Client) Prices(ctx context.Context, markets []string) (map[string]float64, error) {
	out := make(map[string]float64, len(markets))
	if len(markets) == 0 {
		return out, nil
	}
	if c.stream != nil {
		c.stream.Track(markets)
		if cached, ok := c.stream.Prices(markets); ok {
			return cached, nil
		}
	}
	data, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v1/ticker",
		params: url.Values{"markets": {strings.Join(markets, ",")}},
	})
	if err != nil {
		return nil, err
	}
	gjson.ParseBytes(data).ForEach(func(_, item gjson.Result) bool {
		if price := item.Get("trade_price").Float(); price > 0 {
			out[item.Get("market").String()] = price
		}
		return true
	})
	return out, nil
}

// Candles returns bars oldest first. Upbit serves them newest first.
func (c *Client) Candles(ctx context.Context, mkt, interval string, count int) (market.Candles, error) {
	path, err := scheduler.CandlePath(interval)
	if err != nil {
		return nil, err
	}
	if count <= 0 || count > 200 {
		count = 200
	}
	data, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v1/candles/" + path,
		params: url.Values{"market": {mkt}, "count": {strconv.Itoa(count)}},
	})
	if err != nil {
		return nil, err
	}
	items := gjson.ParseBytes(data).Array()
	out := make(market.Candles, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		ts, err := time.Parse(candleTimeLayout, item.Get("candle_date_time_utc").String())
		if err != nil {
			return nil, fmt.Errorf("candle time for %s: %w", mkt, err)
		}
		out = append(out, market.Candle{
			OpenTime: ts.UTC(),
			Open:     item.Get("opening_price").Float(),
			High:     item.Get("high_price").Float(),
			Low:      item.Get("low_price").Float(),
			Close:    item.Get("trade_price").Float(),
			Volume:   item.Get("candle_acc_trade_volume").Float(),
			Value:    item.Get("candle_acc_trade_price").Float(),
		})
	}
	return out, nil
}

func (c *Client) OrderBook(ctx context.Context, mkt string) (market.OrderBook, error) {
	data, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v1/orderbook",
		params: url.Values{"markets": {mkt}},
	})
	if err != nil {
		return market.OrderBook{}, err
	}
	first := gjson.ParseBytes(data).Get("0")
	if !first.Exists() {
		return market.OrderBook{}, fmt.Errorf("empty orderbook for %s", mkt)
	}
	ob := market.OrderBook{
		Market:       first.Get("market").String(),
		TotalAskSize: first.Get("total_ask_size").Float(),
		TotalBidSize: first.Get("total_bid_size").Float(),
		At:           time.UnixMilli(first.Get("timestamp").Int()).UTC(),
	}
	for _, u := range first.Get("orderbook_units").Array() {
		ob.Levels = append(ob.Levels, market.OrderBookLevel{
			AskPrice: u.Get("ask_price").Float(),
			BidPrice: u.Get("bid_price").Float(),
			AskSize:  u.Get("ask_size").Float(),
			BidSize:  u.Get("bid_size").Float(),
		})
	}
	return ob, nil
}

func (c *Client) RecentTrades(ctx context.Context, mkt string, count int) ([]market.Trade, error) {
	if count <= 0 || count > 500 {
		count = 100
	}
	data, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v1/trades/ticks",
		params: url.Values{"market": {mkt}, "count": {strconv.Itoa(count)}},
	})
	if err != nil {
		return nil, err
	}
	items := gjson.ParseBytes(data).Array()
	out := make([]market.Trade, 0, len(items))
	for _, item := range items {
		out = append(out, market.Trade{
			Price:  item.Get("trade_price").Float(),
			Volume: item.Get("trade_volume").Float(),
			Side:   market.Side(item.Get("ask_bid").String()),
			At:     time.UnixMilli(item.Get("timestamp").Int()).UTC(),
		})
	}
	return out, nil
}

// ActiveMarkets lists quote markets with 24h traded value of at least
// minTradeValue, sorted by that value descending and capped at limit.
func (c *Client) ActiveMarkets(ctx context.Context, quote string, minTradeValue float64, limit int) ([]market.Instrument, error) {
	data, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v1/market/all",
		params: url.Values{"isDetails": {"true"}},
	})
	if err != nil {
		return nil, err
	}
	prefix := strings.ToUpper(quote) + "-"
	byMarket := make(map[string]*market.Instrument)
	var codes []string
	gjson.ParseBytes(data).ForEach(func(_, item gjson.Result) bool {
		code := item.Get("market").String()
		if !strings.HasPrefix(code, prefix) {
			return true
		}
		byMarket[code] = &market.Instrument{
			Market:      code,
			KoreanName:  item.Get("korean_name").String(),
			EnglishName: item.Get("english_name").String(),
			Warning:     item.Get("market_warning").String() == "CAUTION",
		}
		codes = append(codes, code)
		return true
	})
	if len(codes) == 0 {
		return nil, nil
	}

	tickers, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v1/ticker",
		params: url.Values{"markets": {strings.Join(codes, ",")}},
	})
	if err != nil {
		return nil, err
	}
	gjson.ParseBytes(tickers).ForEach(func(_, item gjson.Result) bool {
		if inst, ok := byMarket[item.Get("market").String()]; ok {
			inst.TradeValue24 = item.Get("acc_trade_price_24h").Float()
		}
		return true
	})

	out := make([]market.Instrument, 0, len(codes))
	for _, code := range codes {
		inst := byMarket[code]
		if inst.Warning || inst.TradeValue24 < minTradeValue {
			continue
		}
		out = append(out, *inst)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TradeValue24 > out[j].TradeValue24 })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
