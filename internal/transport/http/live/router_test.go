package livehttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"upbot/internal/command"
	"upbot/internal/config"
	"upbot/internal/history"
	"upbot/internal/position"
	"upbot/internal/trader"
	"upbot/internal/trend"
)

type fakeState struct {
	snap *trader.Snapshot
	scan trend.Result
}

func (f fakeState) Snapshot() *trader.Snapshot { return f.snap }
func (f fakeState) LastScan() trend.Result     { return f.scan }

type mockHistory struct{ mock.Mock }

func (m *mockHistory) List(ctx context.Context, limit int) ([]history.Record, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]history.Record), args.Error(1)
}

func (m *mockHistory) Day(ctx context.Context, date string) ([]history.Record, error) {
	args := m.Called(ctx, date)
	return args.Get(0).([]history.Record), args.Error(1)
}

type mockStrategy struct{ mock.Mock }

func (m *mockStrategy) Current() config.Strategy {
	return m.Called().Get(0).(config.Strategy)
}

func (m *mockStrategy) Save(s config.Strategy) (config.Strategy, error) {
	args := m.Called(s)
	if fn, ok := args.Get(0).(func(config.Strategy) config.Strategy); ok {
		return fn(s), args.Error(1)
	}
	return args.Get(0).(config.Strategy), args.Error(1)
}

type mockSink struct{ mock.Mock }

func (m *mockSink) Post(cmd command.Command) error {
	return m.Called(cmd).Error(0)
}

func newTestServer(t *testing.T, hist *mockHistory, strat *mockStrategy, sink *mockSink) *Server {
	t.Helper()
	state := fakeState{
		snap: &trader.Snapshot{
			Exchange: "paper",
			Slots:    []*position.Slot{{Market: "KRW-XRP", Status: position.StatusHolding, AvgBuyPrice: 700, EntryCount: 1}},
		},
		scan: trend.Result{All: []trend.Candidate{{Market: "KRW-SOL", Score: 30}, {Market: "KRW-ADA", Score: 20}}},
	}
	srv, err := NewServer(ServerConfig{
		State:    state,
		History:  hist,
		Strategy: strat,
		Commands: sink,
		Metrics:  promhttp.Handler(),
	})
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServerRequiresState(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, &mockHistory{}, &mockStrategy{}, &mockSink{})
	rec := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStateAndScan(t *testing.T) {
	srv := newTestServer(t, &mockHistory{}, &mockStrategy{}, &mockSink{})
	rec := do(t, srv, http.MethodGet, "/api/live/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap trader.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Len(t, snap.Slots, 1)
	assert.Equal(t, "KRW-XRP", snap.Slots[0].Market)
	assert.Equal(t, "paper", snap.Exchange)

	rec = do(t, srv, http.MethodGet, "/api/live/scan?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res trend.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.All, 1)
	assert.Equal(t, "KRW-SOL", res.All[0].Market)
}

func TestHistoryListAndDay(t *testing.T) {
	hist := &mockHistory{}
	hist.On("List", mock.Anything, 500).Return([]history.Record{{Market: "KRW-XRP", PnL: 100}}, nil).Once()
	hist.On("Day", mock.Anything, "2026-03-01").Return([]history.Record{
		{Market: "KRW-XRP", PnL: 100},
		{Market: "KRW-ADA", PnL: -40},
	}, nil).Once()
	srv := newTestServer(t, hist, &mockStrategy{}, &mockSink{})

	rec := do(t, srv, http.MethodGet, "/api/live/history?limit=9999", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "KRW-XRP")

	rec = do(t, srv, http.MethodGet, "/api/live/history?date=2026-03-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Summary history.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Summary.Trades)
	assert.Equal(t, 1, body.Summary.Wins)
	assert.InDelta(t, 60, body.Summary.PnL, 1e-9)

	rec = do(t, srv, http.MethodGet, "/api/live/history?date=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	hist.AssertExpectations(t)
}

func TestPutConfigMergesOverCurrent(t *testing.T) {
	current := config.DefaultStrategy()
	strat := &mockStrategy{}
	strat.On("Current").Return(current)
	strat.On("Save", mock.MatchedBy(func(s config.Strategy) bool {
		return s.MaxSlots == 5 && s.TradeAmount == current.TradeAmount && s.Exit.StopLoss == 0.03
	})).Return(func(s config.Strategy) config.Strategy { return s }, nil).Once()
	srv := newTestServer(t, &mockHistory{}, strat, &mockSink{})

	rec := do(t, srv, http.MethodPut, "/api/live/config", `{"max_slots":5,"exit_strategies":{"stop_loss":0.03}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var saved config.Strategy
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, 5, saved.MaxSlots)

	rec = do(t, srv, http.MethodPut, "/api/live/config", `{"max_slots":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	strat.AssertExpectations(t)
}

func TestCommandIntake(t *testing.T) {
	sink := &mockSink{}
	sink.On("Post", mock.MatchedBy(func(c command.Command) bool {
		return c.Kind == command.PanicSell && c.Market == "KRW-XRP"
	})).Return(nil).Once()
	srv := newTestServer(t, &mockHistory{}, &mockStrategy{}, sink)

	rec := do(t, srv, http.MethodPost, "/api/live/command", `{"command":"panic_sell","market":"krw-xrp"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/live/command", `{"command":"panic_sell"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/live/command", `{"command":"self_destruct"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	sink.AssertExpectations(t)
}

func TestStartStopsOnCancel(t *testing.T) {
	srv, err := NewServer(ServerConfig{Addr: "127.0.0.1:0", State: fakeState{snap: &trader.Snapshot{}}})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
