package upbit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestParseTicker(t *testing.T) {
	code, price, ok := parseTicker([]byte(`{"type":"ticker","code":"KRW-BTC","trade_price":91000000}`))
	require.True(t, ok)
	assert.Equal(t, "KRW-BTC", code)
	assert.Equal(t, 91000000.0, price)

	_, _, ok = parseTicker([]byte(`{"type":"trade","code":"KRW-BTC","trade_price":1}`))
	assert.False(t, ok)
	_, _, ok = parseTicker([]byte(`{"type":"ticker","code":"KRW-BTC","trade_price":0}`))
	assert.False(t, ok)
}

func TestTickerStreamFreshness(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewTickerStream("", 5*time.Second)
	s.nowFn = func() time.Time { return now }
	s.store("KRW-BTC", 100)

	got, ok := s.Prices([]string{"KRW-BTC"})
	require.True(t, ok)
	assert.Equal(t, 100.0, got["KRW-BTC"])

	_, ok = s.Prices([]string{"KRW-BTC", "KRW-ETH"})
	assert.False(t, ok)

	now = now.Add(6 * time.Second)
	_, ok = s.Prices([]string{"KRW-BTC"})
	assert.False(t, ok)
}

func TestTrackSignalsOnlyOnChange(t *testing.T) {
	s := NewTickerStream("", 0)
	s.Track([]string{"krw-eth", "KRW-BTC", "KRW-BTC"})
	assert.Equal(t, []string{"KRW-BTC", "KRW-ETH"}, s.wanted())
	<-s.resub

	s.Track([]string{"KRW-ETH", "KRW-BTC"})
	select {
	case <-s.resub:
		t.Fatal("unchanged set must not resubscribe")
	default:
	}
}

func TestTickerStreamServesClientPrices(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ws := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		codes := gjson.GetBytes(data, "1.codes").Array()
		for _, c := range codes {
			msg := `{"type":"ticker","code":"` + c.String() + `","trade_price":777}`
			if err := conn.WriteMessage(websocket.BinaryMessage, []byte(msg)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer ws.Close()

	var rest atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rest.Add(1)
		_, _ = w.Write([]byte(`[{"market":"KRW-BTC","trade_price":1}]`))
	})
	stream := NewTickerStream("ws"+strings.TrimPrefix(ws.URL, "http"), time.Minute)
	c.AttachStream(stream)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx) }()

	prices, err := c.Prices(ctx, []string{"KRW-BTC"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, prices["KRW-BTC"])
	assert.EqualValues(t, 1, rest.Load())

	assert.Eventually(t, func() bool {
		p, ok := stream.Prices([]string{"KRW-BTC"})
		return ok && p["KRW-BTC"] == 777
	}, 3*time.Second, 10*time.Millisecond)

	prices, err = c.Prices(ctx, []string{"KRW-BTC"})
	require.NoError(t, err)
	assert.Equal(t, 777.0, prices["KRW-BTC"])
	assert.EqualValues(t, 1, rest.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not stop")
	}
}
