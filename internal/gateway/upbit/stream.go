package upbit

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"upbot/internal/scheduler"
)

const (
	DefaultStreamURL = "wss://api.upbit.com/websocket/v1"

	streamInitialBackoff = time.Second
	streamMaxBackoff     = time.Minute
	streamReadTimeout    = 2 * time.Minute
	streamWriteTimeout   = 10 * time.Second
)

var errResubscribe = errors.New("subscription changed")

type tick struct {
	price float64
	at    time.Time
}

// TickerStream keeps the last trade price of the tracked markets from the
// public websocket. A price older than maxAge counts as missing, so callers
// fall back to REST for quiet markets.
type TickerStream struct {
	url    string
	maxAge time.Duration
	dialer websocket.Dialer
	nowFn  func() time.Time

	mu     sync.RWMutex
	prices map[string]tick
	codes  []string
	resub  chan struct{}
}

func NewTickerStream(url string, maxAge time.Duration) *TickerStream {
	if strings.TrimSpace(url) == "" {
		url = DefaultStreamURL
	}
	if maxAge <= 0 {
		maxAge = 10 * time.Second
	}
	return &TickerStream{
		url:    url,
		maxAge: maxAge,
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		nowFn:  time.Now,
		prices: make(map[string]tick),
		resub:  make(chan struct{}, 1),
	}
}

// Track sets the subscribed markets. A changed set reconnects the stream.
func (s *TickerStream) Track(markets []string) {
	codes := make([]string, 0, len(markets))
	for _, m := range markets {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			codes = append(codes, m)
		}
	}
	slices.Sort(codes)
	codes = slices.Compact(codes)

	s.mu.Lock()
	changed := !slices.Equal(codes, s.codes)
	if changed {
		s.codes = codes
	}
	s.mu.Unlock()
	if changed {
		select {
		case s.resub <- struct{}{}:
		default:
		}
	}
}

// Prices returns fresh prices for every market, or false if any is missing
// or stale.
func (s *TickerStream) Prices(markets []string) (map[string]float64, bool) {
	now := s.nowFn()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(markets))
	for _, m := range markets {
		t, ok := s.prices[m]
		if !ok || now.Sub(t.at) > s.maxAge {
			return nil, false
		}
		out[m] = t.price
	}
	return out, true
}

func (s *TickerStream) wanted() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.codes)
}

func (s *TickerStream) store(code string, price float64) {
	s.mu.Lock()
	s.prices[code] = tick{price: price, at: s.nowFn()}
	s.mu.Unlock()
}

// Run keeps one connection open for the tracked set until ctx is done.
// Failures reconnect with exponential backoff.
func (s *TickerStream) Run(ctx context.Context) error {
	backoff := streamInitialBackoff
	for ctx.Err() == nil {
		select {
		case <-s.resub:
		default:
		}
		codes := s.wanted()
		if len(codes) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-s.resub:
				continue
			}
		}
		err := s.session(ctx, codes)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errResubscribe) {
			backoff = streamInitialBackoff
			continue
		}
		log.Warnf("ticker stream: %v (retry in %s)", err, backoff)
		if !scheduler.Sleep(ctx, backoff) {
			return nil
		}
		backoff = min(backoff*2, streamMaxBackoff)
	}
	return nil
}

func (s *TickerStream) session(ctx context.Context, codes []string) error {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	var mu sync.Mutex
	var cause error
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-stop:
			return
		case <-ctx.Done():
		case <-s.resub:
			mu.Lock()
			cause = errResubscribe
			mu.Unlock()
		}
		_ = conn.Close()
	}()

	sub := []any{
		map[string]string{"ticket": uuid.NewString()},
		map[string]any{"type": "ticker", "codes": codes},
		map[string]string{"format": "DEFAULT"},
	}
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Infof("ticker stream subscribed to %d markets", len(codes))

	for {
		_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			mu.Lock()
			defer mu.Unlock()
			if cause != nil {
				return cause
			}
			return err
		}
		if code, price, ok := parseTicker(data); ok {
			s.store(code, price)
		}
	}
}

func parseTicker(data []byte) (string, float64, bool) {
	msg := gjson.ParseBytes(data)
	if msg.Get("type").String() != "ticker" {
		return "", 0, false
	}
	code := msg.Get("code").String()
	price := msg.Get("trade_price").Float()
	if code == "" || price <= 0 {
		return "", 0, false
	}
	return code, price, true
}
