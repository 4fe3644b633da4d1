package trader

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upbot/internal/command"
	"upbot/internal/config"
	"upbot/internal/gateway/exchange"
	"upbot/internal/gateway/notifier"
	"upbot/internal/gateway/paper"
	"upbot/internal/history"
	"upbot/internal/market"
	"upbot/internal/position"
	"upbot/internal/trend"
)

type memHistory struct {
	recs []history.Record
}

func (m *memHistory) Append(_ context.Context, rec history.Record) error {
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memHistory) List(_ context.Context, limit int) ([]history.Record, error) {
	if limit > 0 && len(m.recs) > limit {
		return m.recs[:limit], nil
	}
	return m.recs, nil
}

func (m *memHistory) Day(_ context.Context, date string) ([]history.Record, error) {
	var out []history.Record
	for _, r := range m.recs {
		if r.Date == date {
			out = append(out, r)
		}
	}
	return out, nil
}

type memNotifier struct{ msgs []notifier.Message }

func (m *memNotifier) Notify(msg notifier.Message) { m.msgs = append(m.msgs, msg) }

type staticStrategy struct{ s config.Strategy }

func (s *staticStrategy) Current() config.Strategy { return s.s }

type harness struct {
	t     *testing.T
	ex    *paper.Exchange
	ctrl  *Controller
	hist  *memHistory
	store *position.FileStore
	box   *command.Mailbox
	note  *memNotifier
	now   time.Time
}

func testStrategy() config.Strategy {
	s := config.DefaultStrategy()
	s.Exit.SuddenDrop.Enabled = false
	return s
}

func newHarness(t *testing.T, strat config.Strategy) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := position.NewFileStore(filepath.Join(dir, "trade_state.json"))
	require.NoError(t, err)
	h := &harness{
		t:     t,
		ex:    paper.New(paper.Options{Quote: "KRW", Balance: 1_000_000}),
		hist:  &memHistory{},
		store: store,
		box:   command.NewMailbox(filepath.Join(dir, "command.json")),
		note:  &memNotifier{},
		now:   time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local),
	}
	h.ex.SetClock(func() time.Time { return h.now })
	ctrl, err := New(Deps{
		Exchange: h.ex,
		States:   store,
		History:  h.hist,
		Mailbox:  h.box,
		Strategy: &staticStrategy{s: strat},
		Notifier: h.note,
	}, Options{
		Loop:              config.LoopConfig{SearchIntervalSeconds: 30, ConfigRefreshSeconds: 5},
		Quote:             "KRW",
		IgnoredCurrencies: []string{"XYZ"},
		DustThreshold:     5000,
	})
	require.NoError(t, err)
	ctrl.nowFn = func() time.Time { return h.now }
	ctrl.sleep = func(context.Context, time.Duration) bool { return true }
	h.ctrl = ctrl
	return h
}

func (h *harness) tick() {
	h.t.Helper()
	require.NoError(h.t, h.ctrl.Tick(context.Background()))
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

// hold seeds an account position and the matching HOLDING slot.
func (h *harness) hold(mkt string, avg, volume, snapshotHigh float64) *position.Slot {
	h.t.Helper()
	h.ex.SetBalance(exchange.BaseCurrency(mkt), volume, avg)
	slot := &position.Slot{Market: mkt, Snapshot: &trend.Candidate{Market: mkt, High: snapshotHigh}}
	slot.Hold(avg, h.now)
	require.NoError(h.t, h.ctrl.state.Add(slot))
	return slot
}

func (h *harness) ordersOf(typ exchange.OrderType, side exchange.Side) []exchange.Order {
	var out []exchange.Order
	for _, o := range h.ex.Orders() {
		if o.Type == typ && o.Side == side {
			out = append(out, o)
		}
	}
	return out
}

func rising(n int, start, step float64) market.Candles {
	out := make(market.Candles, n)
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	p := start
	for i := range out {
		out[i] = market.Candle{OpenTime: base.Add(time.Duration(i) * 15 * time.Minute), Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 100}
		p += step
	}
	return out
}

func TestTrailingStopFiresAfterPullback(t *testing.T) {
	h := newHarness(t, testStrategy())
	h.hold("KRW-XRP", 100, 100, 110)

	h.ex.SetPrice("KRW-XRP", 101)
	h.tick()
	slot := h.ctrl.state.Active("KRW-XRP")
	require.NotNil(t, slot)
	assert.Equal(t, 101.0, slot.HighestPrice)
	assert.True(t, slot.BreakEvenActive)
	assert.NotEmpty(t, slot.SellOrderID)

	h.advance(time.Second)
	h.ex.SetPrice("KRW-XRP", 100.8)
	h.tick()

	assert.Nil(t, h.ctrl.state.Active("KRW-XRP"))
	assert.Empty(t, h.ctrl.state.Slots)
	assert.True(t, h.ctrl.state.InCooldown("KRW-XRP", h.now))
	require.Len(t, h.hist.recs, 1)
	assert.Equal(t, history.ReasonTrailingStop, h.hist.recs[0].Kind)
	assert.Contains(t, h.hist.recs[0].Reason, "trailing")
	assert.Len(t, h.ordersOf(exchange.OrderMarketSell, exchange.SideAsk), 1)
}

func TestBuyTimeoutCancelsWithoutCooldown(t *testing.T) {
	h := newHarness(t, testStrategy())
	h.ex.SetPrice("KRW-XRP", 1000)
	ord, err := h.ex.LimitBuy(context.Background(), "KRW-XRP", 990, 10)
	require.NoError(t, err)
	require.NoError(t, h.ctrl.state.Add(&position.Slot{
		Market: "KRW-XRP", Status: position.StatusBuyWait, BuyOrderID: ord.ID, LimitPrice: 990, OrderTime: h.now,
	}))

	h.advance(time.Minute)
	h.tick()
	require.NotNil(t, h.ctrl.state.Active("KRW-XRP"))

	h.advance(15 * time.Minute)
	h.tick()
	assert.Nil(t, h.ctrl.state.Active("KRW-XRP"))
	assert.Empty(t, h.ctrl.state.Slots)
	assert.False(t, h.ctrl.state.InCooldown("KRW-XRP", h.now))
	assert.Empty(t, h.ctrl.state.Cooldowns)

	got, err := h.ex.Order(context.Background(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderCancel, got.State)
	krw, _ := h.ex.Balance(context.Background(), "KRW")
	assert.InDelta(t, 1_000_000, krw.Balance, 1e-6)
	assert.Empty(t, h.hist.recs)
}

func TestStopLossSellsOnSameTick(t *testing.T) {
	h := newHarness(t, testStrategy())
	h.hold("KRW-XRP", 100, 100, 0)
	h.ex.SetPrice("KRW-XRP", 95)
	h.tick()

	assert.Nil(t, h.ctrl.state.Active("KRW-XRP"))
	require.Len(t, h.hist.recs, 1)
	rec := h.hist.recs[0]
	assert.Equal(t, history.ReasonStopLoss, rec.Kind)
	assert.InDelta(t, -0.05, rec.ProfitRate, 1e-9)
	assert.InDelta(t, 100, rec.Volume, 1e-9)
	assert.True(t, h.ctrl.state.InCooldown("KRW-XRP", h.now))
	xrp, _ := h.ex.Balance(context.Background(), "XRP")
	assert.Zero(t, xrp.Total())
}

func TestStopLossConfirmCyclesResetOnRecovery(t *testing.T) {
	strat := testStrategy()
	strat.Exit.StopLossConfirmCycles = 3
	h := newHarness(t, strat)
	slot := h.hold("KRW-XRP", 100, 100, 200)

	h.ex.SetPrice("KRW-XRP", 95)
	h.tick()
	assert.Equal(t, 1, slot.StopLossConfirmCount)

	h.ex.SetPrice("KRW-XRP", 99)
	h.tick()
	assert.Zero(t, slot.StopLossConfirmCount)

	h.ex.SetPrice("KRW-XRP", 94)
	h.tick()
	h.tick()
	require.NotNil(t, h.ctrl.state.Active("KRW-XRP"))
	assert.Equal(t, 2, slot.StopLossConfirmCount)

	h.tick()
	assert.Nil(t, h.ctrl.state.Active("KRW-XRP"))
	require.Len(t, h.hist.recs, 1)
	assert.Equal(t, history.ReasonStopLoss, h.hist.recs[0].Kind)
}

func TestBreakEvenFloorFiresImmediately(t *testing.T) {
	strat := testStrategy()
	strat.Exit.StopLossConfirmCycles = 5
	h := newHarness(t, strat)
	h.hold("KRW-XRP", 100, 100, 200)

	h.ex.SetPrice("KRW-XRP", 100.7)
	h.tick()
	require.True(t, h.ctrl.state.Active("KRW-XRP").BreakEvenActive)

	h.ex.SetPrice("KRW-XRP", 100)
	h.tick()
	assert.Nil(t, h.ctrl.state.Active("KRW-XRP"))
	require.Len(t, h.hist.recs, 1)
	assert.Equal(t, history.ReasonBreakEven, h.hist.recs[0].Kind)
}

func TestAddBuySkippedWhenRescoreFails(t *testing.T) {
	strat := testStrategy()
	strat.Exit.MaxAddBuys = 1
	strat.Exit.AddBuyTrigger = -0.03
	h := newHarness(t, strat)
	h.hold("KRW-XRP", 100, 100, 0)
	h.ex.SetCandles("KRW-XRP", "15m", rising(40, 140, -1))

	h.ex.SetPrice("KRW-XRP", 94)
	h.tick()

	assert.Empty(t, h.ordersOf(exchange.OrderMarketBuy, exchange.SideBid))
	require.Len(t, h.hist.recs, 1)
	assert.Equal(t, history.ReasonStopLoss, h.hist.recs[0].Kind)
	assert.Equal(t, 1, h.hist.recs[0].EntryCount)
}

func TestAddBuyAveragesAndSkipsExits(t *testing.T) {
	strat := testStrategy()
	strat.Exit.MaxAddBuys = 1
	strat.Exit.AddBuyTrigger = -0.03
	strat.Exit.AddBuyMinScore = 0
	strat.Exit.StopLoss = 0.03
	h := newHarness(t, strat)
	slot := h.hold("KRW-XRP", 100, 100, 0)
	h.ex.SetCandles("KRW-XRP", "15m", rising(40, 60, 1))

	h.ex.SetPrice("KRW-XRP", 96)
	h.tick()

	require.Len(t, h.ordersOf(exchange.OrderMarketBuy, exchange.SideBid), 1)
	require.NotNil(t, h.ctrl.state.Active("KRW-XRP"))
	assert.Equal(t, 2, slot.EntryCount)
	assert.InDelta(t, 97.96, slot.AvgBuyPrice, 0.01)
	assert.Equal(t, slot.AvgBuyPrice, slot.HighestPrice)
	require.Len(t, slot.TradeLog, 2)
	assert.Equal(t, position.EntryAdd, slot.TradeLog[1].Kind)
	assert.InDelta(t, 96, slot.TradeLog[1].Price, 1e-6)
	assert.NotEmpty(t, slot.SellOrderID)
	assert.Empty(t, h.hist.recs)

	// the cap is reached, so the next loss is left to the stop-loss
	h.advance(2 * time.Minute)
	h.ex.SetPrice("KRW-XRP", 94)
	h.tick()
	assert.Len(t, h.ordersOf(exchange.OrderMarketBuy, exchange.SideBid), 1)
	require.Len(t, h.hist.recs, 1)
	assert.Contains(t, h.hist.recs[0].Reason, "(add-buys: 1)")
}

func TestAddBuyDisarmsBreakEven(t *testing.T) {
	strat := testStrategy()
	strat.Exit.MaxAddBuys = 1
	strat.Exit.AddBuyTrigger = -0.03
	strat.Exit.AddBuyMinScore = 0
	h := newHarness(t, strat)
	slot := h.hold("KRW-XRP", 100, 100, 0)
	slot.BreakEvenActive = true
	h.ex.SetCandles("KRW-XRP", "15m", rising(40, 60, 1))

	// gapped through the floor straight into the add-buy band
	h.ex.SetPrice("KRW-XRP", 96)
	h.tick()
	require.Len(t, h.ordersOf(exchange.OrderMarketBuy, exchange.SideBid), 1)
	assert.Equal(t, 2, slot.EntryCount)
	assert.False(t, slot.BreakEvenActive)

	h.advance(time.Second)
	h.tick()
	require.NotNil(t, h.ctrl.state.Active("KRW-XRP"))
	assert.False(t, slot.BreakEvenActive)
	assert.Empty(t, h.ordersOf(exchange.OrderMarketSell, exchange.SideAsk))
	assert.Empty(t, h.hist.recs)
}

func TestTrailingSuppressedAfterAveraging(t *testing.T) {
	h := newHarness(t, testStrategy())
	slot := h.hold("KRW-XRP", 100, 100, 200)
	slot.Averaged(100, 100, h.now)

	for _, p := range []float64{110, 105, 103, 102.5} {
		h.ex.SetPrice("KRW-XRP", p)
		h.tick()
		require.NotNil(t, h.ctrl.state.Active("KRW-XRP"), "price %v", p)
		assert.Zero(t, slot.TrailingConfirmCount)
	}
	assert.Equal(t, 110.0, slot.HighestPrice)
	assert.Empty(t, h.ordersOf(exchange.OrderMarketSell, exchange.SideAsk))
}

func TestTakeProfitFillClosesSlot(t *testing.T) {
	h := newHarness(t, testStrategy())
	h.hold("KRW-XRP", 100, 100, 0)
	h.ex.SetPrice("KRW-XRP", 100)
	h.tick()
	slot := h.ctrl.state.Active("KRW-XRP")
	require.NotNil(t, slot)
	assert.Equal(t, 101.0, slot.SellLimitPrice)

	require.NoError(t, h.ex.Fill(slot.SellOrderID, 0))
	h.tick()
	assert.Nil(t, h.ctrl.state.Active("KRW-XRP"))
	require.Len(t, h.hist.recs, 1)
	assert.Equal(t, history.ReasonTakeProfit, h.hist.recs[0].Kind)
	assert.InDelta(t, 0.01, h.hist.recs[0].ProfitRate, 1e-9)
	assert.Empty(t, h.ordersOf(exchange.OrderMarketSell, exchange.SideAsk))
	require.NotEmpty(t, h.note.msgs)
	last := h.note.msgs[len(h.note.msgs)-1]
	assert.Equal(t, "KRW-XRP closed", last.Title)
	assert.Equal(t, h.hist.recs[0].Reason, last.Footer)
}

func TestPartialFillThenCancelBecomesPosition(t *testing.T) {
	h := newHarness(t, testStrategy())
	h.ex.SetPrice("KRW-XRP", 1000)
	ord, err := h.ex.LimitBuy(context.Background(), "KRW-XRP", 990, 10)
	require.NoError(t, err)
	require.NoError(t, h.ctrl.state.Add(&position.Slot{
		Market: "KRW-XRP", Status: position.StatusBuyWait, BuyOrderID: ord.ID, LimitPrice: 990, OrderTime: h.now,
		Snapshot: &trend.Candidate{Market: "KRW-XRP", High: 1100},
	}))
	require.NoError(t, h.ex.Fill(ord.ID, 4))
	require.NoError(t, h.ex.CancelExternally(ord.ID))

	h.tick()
	slot := h.ctrl.state.Active("KRW-XRP")
	require.NotNil(t, slot)
	assert.Equal(t, position.StatusHolding, slot.Status)
	assert.Equal(t, 990.0, slot.AvgBuyPrice)
	assert.Equal(t, 1, slot.EntryCount)
	require.NotEmpty(t, slot.SellOrderID)
	tp, err := h.ex.Order(context.Background(), slot.SellOrderID)
	require.NoError(t, err)
	assert.InDelta(t, 4, tp.Volume, 1e-9)
	assert.Equal(t, 1100.0, tp.Price)
}

func TestEntrySkipsHeldAndCooledMarkets(t *testing.T) {
	strat := testStrategy()
	strat.MinEntryScore = 0
	strat.MinSlope = 0
	h := newHarness(t, strat)
	h.ex.SetInstruments([]market.Instrument{
		{Market: "KRW-XRP", TradeValue24: 90e9},
		{Market: "KRW-ADA", TradeValue24: 80e9},
		{Market: "KRW-SOL", TradeValue24: 70e9},
	})
	for _, m := range []string{"KRW-XRP", "KRW-ADA", "KRW-SOL"} {
		h.ex.SetCandles(m, "15m", rising(40, 922, 2))
		h.ex.SetPrice(m, 1000)
	}
	h.hold("KRW-XRP", 900, 10, 2000)
	h.ctrl.state.SetCooldown("KRW-ADA", h.now.Add(time.Hour))

	h.tick()
	slot := h.ctrl.state.Active("KRW-SOL")
	require.NotNil(t, slot)
	assert.Equal(t, position.StatusBuyWait, slot.Status)
	assert.Less(t, slot.LimitPrice, 1000.0)
	assert.NotEmpty(t, slot.BuyOrderID)
	require.NotNil(t, slot.Snapshot)
	assert.Nil(t, h.ctrl.state.Active("KRW-ADA"))
	assert.Len(t, h.ctrl.LastScan().All, 3)

	// throttled: no second search right away
	before := len(h.ex.Orders())
	h.tick()
	assert.Len(t, h.ex.Orders(), before)

	loaded, err := h.store.Load()
	require.NoError(t, err)
	assert.NotNil(t, loaded.Active("KRW-SOL"))
}

func TestEntryRespectsPauseAndCapacity(t *testing.T) {
	strat := testStrategy()
	strat.MinEntryScore = 0
	strat.MinSlope = 0
	strat.MaxSlots = 1
	h := newHarness(t, strat)
	h.ex.SetInstruments([]market.Instrument{{Market: "KRW-SOL", TradeValue24: 70e9}})
	h.ex.SetCandles("KRW-SOL", "15m", rising(40, 922, 2))
	h.ex.SetPrice("KRW-SOL", 1000)

	require.NoError(t, h.ctrl.Apply(context.Background(), command.Command{Kind: command.MasterStop}))
	h.tick()
	assert.Nil(t, h.ctrl.state.Active("KRW-SOL"))
	assert.True(t, h.ctrl.Snapshot().Paused)

	require.NoError(t, h.ctrl.Apply(context.Background(), command.Command{Kind: command.MasterStart}))
	h.hold("KRW-XRP", 900, 10, 2000)
	h.ex.SetPrice("KRW-XRP", 900)
	h.tick()
	assert.Nil(t, h.ctrl.state.Active("KRW-SOL"))
}

func TestReconcileIsIdempotent(t *testing.T) {
	h := newHarness(t, testStrategy())
	h.ex.SetBalance("BTC", 0.01, 50_000_000)
	h.ex.SetBalance("DOGE", 1, 100)
	h.ex.SetBalance("XYZ", 1000, 1000)
	h.ex.SetPrice("KRW-BTC", 51_000_000)

	n, err := h.ctrl.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	slot := h.ctrl.state.Active("KRW-BTC")
	require.NotNil(t, slot)
	assert.Equal(t, position.StatusHolding, slot.Status)
	assert.True(t, slot.Recovered)
	assert.Equal(t, 1, slot.EntryCount)
	assert.Equal(t, 50_000_000.0, slot.AvgBuyPrice)
	assert.Equal(t, 51_000_000.0, slot.HighestPrice)

	n, err = h.ctrl.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, h.ctrl.state.Slots, 1)

	loaded, err := h.store.Load()
	require.NoError(t, err)
	assert.Len(t, loaded.Slots, 1)
}

func TestReconcileReleasesStrayAsks(t *testing.T) {
	h := newHarness(t, testStrategy())
	h.ex.SetBalance("XRP", 100, 100)
	h.ex.SetPrice("KRW-XRP", 100)
	stray, err := h.ex.LimitSell(context.Background(), "KRW-XRP", 150, 100)
	require.NoError(t, err)

	n, err := h.ctrl.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := h.ex.Order(context.Background(), stray.ID)
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderCancel, got.State)

	h.tick()
	slot := h.ctrl.state.Active("KRW-XRP")
	require.NotNil(t, slot)
	require.NotEmpty(t, slot.SellOrderID)
	assert.NotEqual(t, stray.ID, slot.SellOrderID)
	tp, err := h.ex.Order(context.Background(), slot.SellOrderID)
	require.NoError(t, err)
	assert.InDelta(t, 100, tp.Volume, 1e-9)
}

func TestLockedBalanceDefersQuietly(t *testing.T) {
	h := newHarness(t, testStrategy())
	h.hold("KRW-XRP", 100, 100, 200)
	h.ex.SetPrice("KRW-XRP", 100)
	stray, err := h.ex.LimitSell(context.Background(), "KRW-XRP", 150, 100)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		h.advance(time.Second)
		h.tick()
		slot := h.ctrl.state.Active("KRW-XRP")
		require.NotNil(t, slot)
		assert.Equal(t, position.StatusHolding, slot.Status)
		assert.Empty(t, slot.SellOrderID)
		assert.True(t, h.ctrl.lockedWarned["KRW-XRP"])
	}

	// a stop-loss cannot sell either, and the slot waits
	h.ex.SetPrice("KRW-XRP", 90)
	h.tick()
	require.NotNil(t, h.ctrl.state.Active("KRW-XRP"))
	assert.Empty(t, h.hist.recs)

	require.NoError(t, h.ex.CancelExternally(stray.ID))
	h.ex.SetPrice("KRW-XRP", 100)
	h.tick()
	slot := h.ctrl.state.Active("KRW-XRP")
	require.NotNil(t, slot)
	assert.NotEmpty(t, slot.SellOrderID)
	assert.False(t, h.ctrl.lockedWarned["KRW-XRP"])
}

func TestMailboxCommands(t *testing.T) {
	h := newHarness(t, testStrategy())
	h.hold("KRW-XRP", 100, 100, 200)
	h.ex.SetPrice("KRW-XRP", 102)

	require.NoError(t, h.box.Post(command.Command{Kind: command.MasterStop}))
	h.tick()
	assert.True(t, h.ctrl.state.Paused)
	loaded, err := h.store.Load()
	require.NoError(t, err)
	assert.True(t, loaded.Paused)

	h.advance(10 * time.Second)
	require.NoError(t, h.box.Post(command.Command{Kind: command.PanicSell, Market: "KRW-XRP"}))
	h.tick()
	assert.Nil(t, h.ctrl.state.Active("KRW-XRP"))
	require.Len(t, h.hist.recs, 1)
	assert.Equal(t, history.ReasonPanicSell, h.hist.recs[0].Kind)
	assert.InDelta(t, 0.02, h.hist.recs[0].ProfitRate, 1e-9)
	assert.True(t, h.ctrl.state.InCooldown("KRW-XRP", h.now))

	ord, err := h.ex.LimitBuy(context.Background(), "KRW-ADA", 500, 20)
	require.NoError(t, err)
	require.NoError(t, h.ctrl.state.Add(&position.Slot{
		Market: "KRW-ADA", Status: position.StatusBuyWait, BuyOrderID: ord.ID, LimitPrice: 500, OrderTime: h.now,
	}))
	h.advance(10 * time.Second)
	require.NoError(t, h.box.Post(command.Command{Kind: command.CancelBuyOrder, Market: "KRW-ADA"}))
	h.tick()
	assert.Nil(t, h.ctrl.state.Active("KRW-ADA"))
	assert.False(t, h.ctrl.state.InCooldown("KRW-ADA", h.now))
}

func TestSuddenDropForcesSell(t *testing.T) {
	strat := testStrategy()
	strat.Exit.SuddenDrop.Enabled = true
	h := newHarness(t, strat)
	h.hold("KRW-XRP", 100, 100, 200)
	h.ex.SetPrice("KRW-XRP", 101)
	h.ex.SetCandles("KRW-XRP", "1m", market.Candles{{Open: 105, High: 105, Low: 101, Close: 101}})

	h.tick()
	assert.Nil(t, h.ctrl.state.Active("KRW-XRP"))
	require.Len(t, h.hist.recs, 1)
	assert.Equal(t, history.ReasonSuddenDrop, h.hist.recs[0].Kind)
	assert.True(t, strings.HasPrefix(h.hist.recs[0].Reason, "[defense]"))
}

func TestExternalSellClosesSlot(t *testing.T) {
	h := newHarness(t, testStrategy())
	h.hold("KRW-XRP", 100, 100, 200)
	h.ex.SetBalance("XRP", 0, 0)
	h.ex.SetPrice("KRW-XRP", 100.2)
	h.tick()

	assert.Nil(t, h.ctrl.state.Active("KRW-XRP"))
	require.Len(t, h.hist.recs, 1)
	assert.Equal(t, history.ReasonExternal, h.hist.recs[0].Kind)
	assert.Zero(t, h.hist.recs[0].Volume)
}

func TestSnapshotIsDetached(t *testing.T) {
	h := newHarness(t, testStrategy())
	slot := h.hold("KRW-XRP", 100, 100, 200)
	h.ex.SetPrice("KRW-XRP", 100.5)
	h.tick()

	snap := h.ctrl.Snapshot()
	require.Len(t, snap.Slots, 1)
	assert.Equal(t, "paper", snap.Exchange)
	assert.Equal(t, 100.5, snap.Prices["KRW-XRP"])
	snap.Slots[0].HighestPrice = 1
	assert.Equal(t, 100.5, slot.HighestPrice)
}
