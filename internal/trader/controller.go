// Package trader runs the position lifecycle: it reconciles slots with the
// account, advances every slot's state machine once per tick, admits new
// entries from the ranking engine and applies operator commands.
//
// The controller is single-threaded. Only Snapshot and LastScan may be
// called from other goroutines; they read immutable copies.
package trader

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"upbot/internal/admission"
	"upbot/internal/command"
	"upbot/internal/config"
	"upbot/internal/gateway/exchange"
	"upbot/internal/history"
	"upbot/internal/logger"
	"upbot/internal/metrics"
	"upbot/internal/position"
	"upbot/internal/scheduler"
	"upbot/internal/trend"
)

var log = logger.For("Trader")

// StrategySource yields the current tunables. Sources that also implement
// Reload() error are re-read every config refresh.
type StrategySource interface {
	Current() config.Strategy
}

type reloader interface {
	Reload() error
}

// Options are the process-level settings the controller needs.
type Options struct {
	Loop              config.LoopConfig
	Quote             string
	IgnoredCurrencies []string
	DustThreshold     float64
	ScanResultsPath   string
}

// OptionsFromConfig extracts controller options from the process config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Loop:              cfg.Loop,
		Quote:             cfg.Exchange.Quote,
		IgnoredCurrencies: cfg.Exchange.IgnoredCurrencies,
		DustThreshold:     cfg.Exchange.DustThreshold,
		ScanResultsPath:   cfg.Storage.ScanResultsPath,
	}
}

type Deps struct {
	Exchange exchange.Exchange
	Scanner  *trend.Scanner
	Filter   *admission.Filter
	States   position.Store
	History  history.Store
	Mailbox  *command.Mailbox
	Strategy StrategySource
	Metrics  *metrics.Metrics
	Notifier Notifier
}

type Controller struct {
	ex       exchange.Exchange
	scanner  *trend.Scanner
	filter   *admission.Filter
	states   position.Store
	history  history.Store
	mailbox  *command.Mailbox
	strategy StrategySource
	metrics  *metrics.Metrics
	notifier Notifier
	opts     Options

	state   *position.State
	dirty   bool
	prices  map[string]float64
	verdict admission.Verdict

	refresh     *scheduler.Throttle
	dropChecks  map[string]time.Time
	summaryDate string
	// lockedWarned marks markets already reported as fully locked.
	lockedWarned map[string]bool

	snapshot atomic.Pointer[Snapshot]
	lastScan atomic.Pointer[trend.Result]

	nowFn func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// New loads the persisted state. A state file that fails validation is an
// error: the controller must not trade on a state it cannot trust.
func New(deps Deps, opts Options) (*Controller, error) {
	if deps.Exchange == nil {
		return nil, errors.New("trader: exchange is required")
	}
	if deps.States == nil {
		return nil, errors.New("trader: state store is required")
	}
	if deps.Strategy == nil {
		return nil, errors.New("trader: strategy source is required")
	}
	if deps.Scanner == nil {
		deps.Scanner = trend.NewScanner(deps.Exchange, 0)
	}
	if deps.Filter == nil {
		deps.Filter = admission.New(deps.Exchange)
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	opts.Quote = strings.ToUpper(strings.TrimSpace(opts.Quote))
	if opts.Quote == "" {
		opts.Quote = "KRW"
	}
	st, err := deps.States.Load()
	if err != nil {
		return nil, err
	}
	c := &Controller{
		ex:           deps.Exchange,
		scanner:      deps.Scanner,
		filter:       deps.Filter,
		states:       deps.States,
		history:      deps.History,
		mailbox:      deps.Mailbox,
		strategy:     deps.Strategy,
		metrics:      deps.Metrics,
		notifier:     deps.Notifier,
		opts:         opts,
		state:        st,
		prices:       make(map[string]float64),
		verdict:      admission.Verdict{Safe: true},
		refresh:      scheduler.NewThrottle(opts.Loop.ConfigRefresh()),
		dropChecks:   make(map[string]time.Time),
		lockedWarned: make(map[string]bool),
		nowFn:        time.Now,
		sleep:        scheduler.Sleep,
	}
	c.summaryDate = history.DateOf(c.nowFn())
	c.metrics.SetPaused(st.Paused)
	c.publish()
	log.Infof("loaded %d slots, %d cooldowns, paused=%v", len(st.Slots), len(st.Cooldowns), st.Paused)
	return c, nil
}

// Run reconciles once and then ticks until ctx ends.
func (c *Controller) Run(ctx context.Context) error {
	strat := c.strategy.Current()
	log.Infof("started on %s: %s", c.ex.Name(), strat)
	if n, err := c.Reconcile(ctx); err != nil {
		log.Errorf("reconcile failed: %v", err)
	} else if n > 0 {
		log.Infof("recovered %d orphan positions", n)
	}
	loop := scheduler.NewLoop("Trader", c.opts.Loop.Tick(), c.opts.Loop.ErrorBackoff())
	loop.Run(ctx, c.Tick)
	return nil
}

// Tick advances the whole system by one step. Errors of individual slots are
// logged and do not stop the others.
func (c *Controller) Tick(ctx context.Context) (err error) {
	start := c.nowFn()
	defer func() {
		c.metrics.ObserveTick(time.Since(start).Seconds(), err != nil)
	}()

	if c.refresh.Try(start) {
		c.refreshStrategy()
		c.drainCommands(ctx)
	}
	strat := c.strategy.Current()
	now := c.nowFn()

	c.checkDailySummary(ctx, now)
	if expired := c.state.ExpireCooldowns(now); len(expired) > 0 {
		log.Infof("cooldown expired for %s", strings.Join(expired, ", "))
		c.dirty = true
	}

	c.refreshPrices(ctx)
	for _, slot := range c.state.Slots {
		if !slot.Active() {
			continue
		}
		if err := c.processSlot(ctx, slot, strat); err != nil {
			log.Errorf("%s (%s): %v", slot.Market, slot.Status, err)
		}
		if err := c.persist(); err != nil {
			return err
		}
	}
	if n := c.state.Prune(); n > 0 {
		c.dirty = true
	}
	if err := c.persist(); err != nil {
		return err
	}

	if err := c.trySearchAndEnter(ctx, strat); err != nil {
		log.Errorf("entry: %v", err)
	}
	if err := c.persist(); err != nil {
		return err
	}
	c.publish()
	return nil
}

func (c *Controller) refreshStrategy() {
	if r, ok := c.strategy.(reloader); ok {
		if err := r.Reload(); err != nil {
			log.Warnf("strategy reload failed, keeping last good: %v", err)
		}
	}
}

// refreshPrices fetches all holding markets in one call. On failure the
// holding slots are skipped this tick.
func (c *Controller) refreshPrices(ctx context.Context) {
	markets := c.state.Markets(position.StatusHolding)
	if len(markets) == 0 {
		c.prices = make(map[string]float64)
		return
	}
	prices, err := c.ex.Prices(ctx, markets)
	if err != nil {
		log.Warnf("batch price fetch failed: %v", err)
		c.prices = make(map[string]float64)
		return
	}
	c.prices = prices
}

func (c *Controller) processSlot(ctx context.Context, slot *position.Slot, strat config.Strategy) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	switch slot.Status {
	case position.StatusBuyWait:
		return c.manageBuyWait(ctx, slot, strat)
	case position.StatusHolding:
		price, ok := c.prices[slot.Market]
		if !ok || price <= 0 {
			return nil
		}
		return c.manageHolding(ctx, slot, price, strat)
	}
	return nil
}

// persist writes the state when something changed since the last write.
func (c *Controller) persist() error {
	if !c.dirty {
		return nil
	}
	if err := c.states.Save(c.state); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

func (c *Controller) markDirty() { c.dirty = true }

func (c *Controller) wait(ctx context.Context, d time.Duration) {
	c.sleep(ctx, d)
}

func (c *Controller) quoteMarket(currency string) string {
	return exchange.MarketCode(c.opts.Quote, currency)
}
