package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upbot/internal/trend"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
app:
  log_level: debug
  http_enabled: false
exchange:
  name: paper
  dust_threshold: 0
loop:
  tick_millis: 500
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.False(t, cfg.App.HTTPEnabled)
	assert.Equal(t, defaultAppHTTPAddr, cfg.App.HTTPAddr)
	assert.True(t, cfg.Exchange.Paper())
	assert.Equal(t, 0.0, cfg.Exchange.DustThreshold, "explicit zero is kept")
	assert.Equal(t, "KRW", cfg.Exchange.Quote)
	assert.Equal(t, []string{"KRW", "USDT", "XAUT"}, cfg.Exchange.IgnoredCurrencies)
	assert.Equal(t, 500, cfg.Loop.TickMillis)
	assert.Equal(t, defaultRefreshSeconds, cfg.Loop.ConfigRefreshSeconds)
	assert.Equal(t, defaultStatePath, cfg.Storage.StatePath)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeFile(t, "config.yaml", "exchange:\n  name: binance\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "exchange.name")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, validate(Default()))
}

func TestDefaultStrategy(t *testing.T) {
	s := DefaultStrategy()
	assert.Equal(t, 10000.0, s.TradeAmount)
	assert.Equal(t, 3, s.MaxSlots)
	assert.Equal(t, 60, s.CooldownMinutes)
	assert.Equal(t, 15, s.MinEntryScore)
	assert.Equal(t, 0.5, s.MinSlope)
	assert.Equal(t, "macro", s.Scan.Mode)
	assert.Equal(t, "15m", s.Scan.Interval)
	assert.Equal(t, 12, s.Scan.Window)
	assert.Equal(t, 0.05, s.Exit.StopLoss)
	assert.Equal(t, 0.008, s.Exit.TrailingTrigger)
	assert.Equal(t, 0.002, s.Exit.TrailingGap)
	assert.Equal(t, 0, s.Exit.MaxAddBuys)
	assert.Equal(t, -0.03, s.Exit.AddBuyTrigger)
	assert.False(t, s.MarketFilter.Enabled)
	assert.True(t, s.MarketFilter.FailOpen)
	assert.Len(t, s.Scan.Rules, len(trend.DefaultRules(trend.ModeMacro)))
}

func TestLoadStrategyPartialAndInvalid(t *testing.T) {
	path := writeFile(t, "strategy.yaml", `
trade_amount: 20000
max_slots: 5
scan:
  mode: aggressive
exit_strategies:
  stop_loss: 1.5
  stop_loss_confirm_cycles: 3
  max_add_buys: 2
  add_buy_trigger: -2
  break_even_trigger: 0
  trailing_stop_trigger: -0.01
limit_offsets:
  strong: 0.9
`)
	s, err := LoadStrategy(path)
	require.NoError(t, err)
	assert.Equal(t, 20000.0, s.TradeAmount)
	assert.Equal(t, 5, s.MaxSlots)
	assert.Equal(t, "1m", s.Scan.Interval)
	assert.Equal(t, 100, s.Scan.Window)
	assert.Equal(t, 120, s.Scan.CandleCount)
	assert.Equal(t, 0.05, s.Exit.StopLoss, "out of range falls back")
	assert.Equal(t, 3, s.Exit.StopLossConfirmCycles)
	assert.Equal(t, 2, s.Exit.MaxAddBuys)
	assert.Equal(t, -0.03, s.Exit.AddBuyTrigger)
	assert.Equal(t, 0.007, s.Exit.BreakEvenTrigger, "zero trigger falls back")
	assert.Equal(t, 0.008, s.Exit.TrailingTrigger, "negative trigger falls back")
	assert.Equal(t, 0.003, s.LimitOffsets.Strong)
	assert.Equal(t, 0.010, s.LimitOffsets.Moderate)

	set := s.TrendSettings()
	assert.Equal(t, trend.ModeAggressive, set.Mode)
	assert.Equal(t, trend.DefaultRules(trend.ModeAggressive), set.Rules)
}

func TestLimitOffsetLadder(t *testing.T) {
	s := DefaultStrategy()
	assert.Equal(t, 0.003, s.LimitOffset(2.5))
	assert.Equal(t, 0.010, s.LimitOffset(0.8))
	assert.Equal(t, 0.015, s.LimitOffset(0.1))
}

func TestStrategyWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	w, err := NewStrategyWatcher(path)
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err, "defaults are written on first start")
	assert.Equal(t, DefaultStrategy(), w.Current())

	var seen []int64
	w.Subscribe(func(s StrategySnapshot) { seen = append(seen, s.Version) })

	require.NoError(t, os.WriteFile(path, []byte("max_slots: 7\n"), 0o644))
	require.NoError(t, w.Reload())
	assert.Equal(t, 7, w.Current().MaxSlots)

	require.NoError(t, os.WriteFile(path, []byte("max_slots: [\n"), 0o644))
	assert.Error(t, w.Reload())
	assert.Equal(t, 7, w.Current().MaxSlots, "last good snapshot kept")

	next := w.Current()
	next.CooldownMinutes = 5
	saved, err := w.Save(next)
	require.NoError(t, err)
	assert.Equal(t, 5, saved.CooldownMinutes)

	reread, err := LoadStrategy(path)
	require.NoError(t, err)
	assert.Equal(t, saved, reread)
	assert.Len(t, seen, 2)
}

func TestStrategyWatcherConcurrentReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	w, err := NewStrategyWatcher(path)
	require.NoError(t, err)
	w.Watch()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NoError(t, w.Reload())
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 1; j <= 10; j++ {
			next := w.Current()
			next.MaxSlots = j
			_, err := w.Save(next)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	require.NoError(t, w.Reload())
	onDisk, err := LoadStrategy(path)
	require.NoError(t, err)
	assert.Equal(t, 10, onDisk.MaxSlots)
	assert.Equal(t, onDisk, w.Current())
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv(envAccessKey, "")
	t.Setenv(envSecretKey, "")
	envFile := writeFile(t, ".env", "UPBIT_ACCESS_KEY=ak\nUPBIT_SECRET_KEY=sk\n")

	_, err := LoadCredentials(filepath.Join(t.TempDir(), "none.env"))
	assert.ErrorIs(t, err, ErrMissingCredentials)

	t.Setenv(envAccessKey, "from-env")
	os.Unsetenv(envSecretKey)
	creds, err := LoadCredentials(envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-env", creds.AccessKey)
	assert.Equal(t, "sk", creds.SecretKey)
}
