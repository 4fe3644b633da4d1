package config

import (
	"fmt"
	"strings"
	"time"

	"upbot/internal/logger"
	"upbot/internal/trend"
)

// Strategy is the operator-tunable trading configuration. It is reloaded
// while running; every field has a documented default.
type Strategy struct {
	TradeAmount       float64            `toml:"trade_amount" yaml:"trade_amount" json:"trade_amount"`
	MaxSlots          int                `toml:"max_slots" yaml:"max_slots" json:"max_slots"`
	CooldownMinutes   int                `toml:"cooldown_minutes" yaml:"cooldown_minutes" json:"cooldown_minutes"`
	MinEntryScore     int                `toml:"min_entry_score" yaml:"min_entry_score" json:"min_entry_score"`
	MinSlope          float64            `toml:"min_slope_threshold" yaml:"min_slope_threshold" json:"min_slope_threshold"`
	BuyTimeoutMinutes int                `toml:"timeout_minutes" yaml:"timeout_minutes" json:"timeout_minutes"`
	LimitOffsets      LimitOffsets       `toml:"limit_offsets" yaml:"limit_offsets" json:"limit_offsets"`
	SlopeThresholds   SlopeThresholds    `toml:"slope_thresholds" yaml:"slope_thresholds" json:"slope_thresholds"`
	Scan              ScanConfig         `toml:"scan" yaml:"scan" json:"scan"`
	Exit              ExitConfig         `toml:"exit_strategies" yaml:"exit_strategies" json:"exit_strategies"`
	MarketFilter      MarketFilterConfig `toml:"market_filter" yaml:"market_filter" json:"market_filter"`
}

// LimitOffsets is the entry discount below the current price per trend band.
type LimitOffsets struct {
	Strong   float64 `toml:"strong" yaml:"strong" json:"strong"`
	Moderate float64 `toml:"moderate" yaml:"moderate" json:"moderate"`
	Weak     float64 `toml:"weak" yaml:"weak" json:"weak"`
}

type SlopeThresholds struct {
	Strong   float64 `toml:"strong" yaml:"strong" json:"strong"`
	Moderate float64 `toml:"moderate" yaml:"moderate" json:"moderate"`
}

type ScanConfig struct {
	Mode          string      `toml:"mode" yaml:"mode" json:"mode"`
	Interval      string      `toml:"interval" yaml:"interval" json:"interval"`
	Window        int         `toml:"window" yaml:"window" json:"window"`
	CandleCount   int         `toml:"candle_count" yaml:"candle_count" json:"candle_count"`
	RSIPeriod     int         `toml:"rsi_period" yaml:"rsi_period" json:"rsi_period"`
	DelayMillis   int         `toml:"delay_millis" yaml:"delay_millis" json:"delay_millis"`
	MinTradeValue float64     `toml:"min_trade_value" yaml:"min_trade_value" json:"min_trade_value"`
	UniverseLimit int         `toml:"universe_limit" yaml:"universe_limit" json:"universe_limit"`
	Rules         []ScoreRule `toml:"rules" yaml:"rules,omitempty" json:"rules,omitempty"`
}

type ScoreRule struct {
	Signal string  `toml:"signal" yaml:"signal" json:"signal"`
	Min    float64 `toml:"min" yaml:"min" json:"min"`
	Points int     `toml:"points" yaml:"points" json:"points"`
}

// ExitConfig rates are fractions: 0.05 means 5%. StopLoss is a magnitude and
// is applied as -StopLoss.
type ExitConfig struct {
	StopLoss              float64          `toml:"stop_loss" yaml:"stop_loss" json:"stop_loss"`
	StopLossConfirmCycles int              `toml:"stop_loss_confirm_cycles" yaml:"stop_loss_confirm_cycles" json:"stop_loss_confirm_cycles"`
	BreakEvenTrigger      float64          `toml:"break_even_trigger" yaml:"break_even_trigger" json:"break_even_trigger"`
	BreakEvenFloor        float64          `toml:"break_even_sl" yaml:"break_even_sl" json:"break_even_sl"`
	TrailingTrigger       float64          `toml:"trailing_stop_trigger" yaml:"trailing_stop_trigger" json:"trailing_stop_trigger"`
	TrailingGap           float64          `toml:"trailing_stop_gap" yaml:"trailing_stop_gap" json:"trailing_stop_gap"`
	TrailingConfirmCycles int              `toml:"trailing_stop_confirm_cycles" yaml:"trailing_stop_confirm_cycles" json:"trailing_stop_confirm_cycles"`
	TakeProfitRatio       float64          `toml:"take_profit_ratio" yaml:"take_profit_ratio" json:"take_profit_ratio"`
	MinTakeProfit         float64          `toml:"min_take_profit" yaml:"min_take_profit" json:"min_take_profit"`
	AddBuyTrigger         float64          `toml:"add_buy_trigger" yaml:"add_buy_trigger" json:"add_buy_trigger"`
	AddBuyAmountRatio     float64          `toml:"add_buy_amount_ratio" yaml:"add_buy_amount_ratio" json:"add_buy_amount_ratio"`
	MaxAddBuys            int              `toml:"max_add_buys" yaml:"max_add_buys" json:"max_add_buys"`
	AddBuyMinScore        int              `toml:"add_buy_min_score" yaml:"add_buy_min_score" json:"add_buy_min_score"`
	AddBuyRecheckSeconds  int              `toml:"add_buy_recheck_seconds" yaml:"add_buy_recheck_seconds" json:"add_buy_recheck_seconds"`
	SuddenDrop            SuddenDropConfig `toml:"sudden_drop" yaml:"sudden_drop" json:"sudden_drop"`
}

type SuddenDropConfig struct {
	Enabled      bool    `toml:"enabled" yaml:"enabled" json:"enabled"`
	Interval     string  `toml:"interval" yaml:"interval" json:"interval"`
	Threshold    float64 `toml:"threshold" yaml:"threshold" json:"threshold"`
	CheckSeconds int     `toml:"check_seconds" yaml:"check_seconds" json:"check_seconds"`
}

type MarketFilterConfig struct {
	Enabled          bool    `toml:"use_btc_filter" yaml:"use_btc_filter" json:"use_btc_filter"`
	Reference        string  `toml:"reference_market" yaml:"reference_market" json:"reference_market"`
	DropThreshold1H  float64 `toml:"btc_1h_drop_threshold" yaml:"btc_1h_drop_threshold" json:"btc_1h_drop_threshold"`
	SlopeThreshold3H float64 `toml:"btc_3h_slope_threshold" yaml:"btc_3h_slope_threshold" json:"btc_3h_slope_threshold"`
	FailOpen         bool    `toml:"fail_open" yaml:"fail_open" json:"fail_open"`
}

// DefaultStrategy returns the stock tunables.
func DefaultStrategy() Strategy {
	var s Strategy
	s.applyDefaults(keySet{})
	return s
}

func (s *Strategy) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		floatFieldDefault("trade_amount", &s.TradeAmount, 10000),
		intFieldDefault("max_slots", &s.MaxSlots, 3),
		intFieldDefault("cooldown_minutes", &s.CooldownMinutes, 60),
		intFieldDefault("min_entry_score", &s.MinEntryScore, 15),
		floatFieldDefault("min_slope_threshold", &s.MinSlope, 0.5),
		intFieldDefault("timeout_minutes", &s.BuyTimeoutMinutes, 15),
		floatFieldDefault("limit_offsets.strong", &s.LimitOffsets.Strong, 0.003),
		floatFieldDefault("limit_offsets.moderate", &s.LimitOffsets.Moderate, 0.010),
		floatFieldDefault("limit_offsets.weak", &s.LimitOffsets.Weak, 0.015),
		floatFieldDefault("slope_thresholds.strong", &s.SlopeThresholds.Strong, 2.0),
		floatFieldDefault("slope_thresholds.moderate", &s.SlopeThresholds.Moderate, 0.5),
	)
	s.Scan.applyDefaults(keys)
	s.Exit.applyDefaults(keys)
	s.MarketFilter.applyDefaults(keys)
}

func (sc *ScanConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys, stringFieldDefault("scan.mode", &sc.Mode, string(trend.ModeMacro)))
	sc.Mode = strings.ToLower(strings.TrimSpace(sc.Mode))
	aggressive := sc.Mode == string(trend.ModeAggressive)
	interval, window, count := "15m", 12, 40
	if aggressive {
		interval, window, count = "1m", 100, 120
	}
	applyFieldDefaults(keys,
		stringFieldDefault("scan.interval", &sc.Interval, interval),
		intFieldDefault("scan.window", &sc.Window, window),
		intFieldDefault("scan.candle_count", &sc.CandleCount, count),
		intFieldDefault("scan.rsi_period", &sc.RSIPeriod, 14),
		intFieldDefault("scan.delay_millis", &sc.DelayMillis, 50),
		floatFieldDefault("scan.min_trade_value", &sc.MinTradeValue, 50e9),
		intFieldDefault("scan.universe_limit", &sc.UniverseLimit, 30),
		fieldDefault{
			key:  "scan.rules",
			need: func() bool { return len(sc.Rules) == 0 },
			apply: func() {
				sc.Rules = fromTrendRules(trend.DefaultRules(trend.Mode(sc.Mode)))
			},
		},
	)
}

func (e *ExitConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		floatFieldDefault("exit_strategies.stop_loss", &e.StopLoss, 0.05),
		intFieldDefault("exit_strategies.stop_loss_confirm_cycles", &e.StopLossConfirmCycles, 0),
		floatFieldDefault("exit_strategies.break_even_trigger", &e.BreakEvenTrigger, 0.007),
		floatFieldDefault("exit_strategies.break_even_sl", &e.BreakEvenFloor, 0.0005),
		floatFieldDefault("exit_strategies.trailing_stop_trigger", &e.TrailingTrigger, 0.008),
		floatFieldDefault("exit_strategies.trailing_stop_gap", &e.TrailingGap, 0.002),
		intFieldDefault("exit_strategies.trailing_stop_confirm_cycles", &e.TrailingConfirmCycles, 0),
		floatFieldDefault("exit_strategies.take_profit_ratio", &e.TakeProfitRatio, 1.0),
		floatFieldDefault("exit_strategies.min_take_profit", &e.MinTakeProfit, 0.01),
		floatFieldDefault("exit_strategies.add_buy_trigger", &e.AddBuyTrigger, -0.03),
		floatFieldDefault("exit_strategies.add_buy_amount_ratio", &e.AddBuyAmountRatio, 1.0),
		intFieldDefault("exit_strategies.max_add_buys", &e.MaxAddBuys, 0),
		intFieldDefault("exit_strategies.add_buy_min_score", &e.AddBuyMinScore, 10),
		intFieldDefault("exit_strategies.add_buy_recheck_seconds", &e.AddBuyRecheckSeconds, 60),
		boolFieldDefault("exit_strategies.sudden_drop.enabled", &e.SuddenDrop.Enabled, true),
		stringFieldDefault("exit_strategies.sudden_drop.interval", &e.SuddenDrop.Interval, "1m"),
		floatFieldDefault("exit_strategies.sudden_drop.threshold", &e.SuddenDrop.Threshold, 0.03),
		intFieldDefault("exit_strategies.sudden_drop.check_seconds", &e.SuddenDrop.CheckSeconds, 60),
	)
}

func (m *MarketFilterConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		boolFieldDefault("market_filter.use_btc_filter", &m.Enabled, false),
		stringFieldDefault("market_filter.reference_market", &m.Reference, "KRW-BTC"),
		floatFieldDefault("market_filter.btc_1h_drop_threshold", &m.DropThreshold1H, -0.015),
		floatFieldDefault("market_filter.btc_3h_slope_threshold", &m.SlopeThreshold3H, -0.5),
		boolFieldDefault("market_filter.fail_open", &m.FailOpen, true),
	)
}

// sanitize replaces out-of-range values with defaults and reports what it
// changed. Configuration mistakes never stop the loop.
func (s *Strategy) sanitize() []string {
	def := DefaultStrategy()
	var fixed []string
	fix := func(bad bool, name string, apply func()) {
		if bad {
			apply()
			fixed = append(fixed, name)
		}
	}
	fix(s.TradeAmount < 5000, "trade_amount", func() { s.TradeAmount = def.TradeAmount })
	fix(s.MaxSlots < 0, "max_slots", func() { s.MaxSlots = def.MaxSlots })
	fix(s.CooldownMinutes < 0, "cooldown_minutes", func() { s.CooldownMinutes = def.CooldownMinutes })
	fix(s.BuyTimeoutMinutes <= 0, "timeout_minutes", func() { s.BuyTimeoutMinutes = def.BuyTimeoutMinutes })
	fix(!validOffset(s.LimitOffsets.Strong), "limit_offsets.strong", func() { s.LimitOffsets.Strong = def.LimitOffsets.Strong })
	fix(!validOffset(s.LimitOffsets.Moderate), "limit_offsets.moderate", func() { s.LimitOffsets.Moderate = def.LimitOffsets.Moderate })
	fix(!validOffset(s.LimitOffsets.Weak), "limit_offsets.weak", func() { s.LimitOffsets.Weak = def.LimitOffsets.Weak })
	fix(s.Scan.Mode != string(trend.ModeMacro) && s.Scan.Mode != string(trend.ModeAggressive), "scan.mode", func() {
		s.Scan = def.Scan
	})
	fix(s.Scan.Window < 2, "scan.window", func() { s.Scan.Window = def.Scan.Window })
	fix(s.Scan.RSIPeriod < 2, "scan.rsi_period", func() { s.Scan.RSIPeriod = def.Scan.RSIPeriod })
	fix(s.Scan.DelayMillis < 0, "scan.delay_millis", func() { s.Scan.DelayMillis = def.Scan.DelayMillis })
	fix(s.Scan.UniverseLimit <= 0, "scan.universe_limit", func() { s.Scan.UniverseLimit = def.Scan.UniverseLimit })
	fix(!validRules(s.Scan.Rules), "scan.rules", func() {
		s.Scan.Rules = fromTrendRules(trend.DefaultRules(trend.Mode(s.Scan.Mode)))
	})
	fix(s.Exit.StopLoss <= 0 || s.Exit.StopLoss >= 1, "exit_strategies.stop_loss", func() { s.Exit.StopLoss = def.Exit.StopLoss })
	fix(s.Exit.StopLossConfirmCycles < 0, "exit_strategies.stop_loss_confirm_cycles", func() { s.Exit.StopLossConfirmCycles = 0 })
	fix(s.Exit.TrailingConfirmCycles < 0, "exit_strategies.trailing_stop_confirm_cycles", func() { s.Exit.TrailingConfirmCycles = 0 })
	fix(s.Exit.BreakEvenTrigger <= 0, "exit_strategies.break_even_trigger", func() { s.Exit.BreakEvenTrigger = def.Exit.BreakEvenTrigger })
	fix(s.Exit.TrailingTrigger <= 0, "exit_strategies.trailing_stop_trigger", func() { s.Exit.TrailingTrigger = def.Exit.TrailingTrigger })
	fix(s.Exit.TrailingGap <= 0, "exit_strategies.trailing_stop_gap", func() { s.Exit.TrailingGap = def.Exit.TrailingGap })
	fix(s.Exit.TakeProfitRatio <= 0, "exit_strategies.take_profit_ratio", func() { s.Exit.TakeProfitRatio = def.Exit.TakeProfitRatio })
	fix(s.Exit.MinTakeProfit < 0, "exit_strategies.min_take_profit", func() { s.Exit.MinTakeProfit = def.Exit.MinTakeProfit })
	fix(s.Exit.MaxAddBuys < 0, "exit_strategies.max_add_buys", func() { s.Exit.MaxAddBuys = 0 })
	fix(s.Exit.AddBuyTrigger >= 0 || s.Exit.AddBuyTrigger <= -1, "exit_strategies.add_buy_trigger", func() { s.Exit.AddBuyTrigger = def.Exit.AddBuyTrigger })
	fix(s.Exit.AddBuyAmountRatio <= 0, "exit_strategies.add_buy_amount_ratio", func() { s.Exit.AddBuyAmountRatio = def.Exit.AddBuyAmountRatio })
	fix(s.Exit.SuddenDrop.Threshold <= 0, "exit_strategies.sudden_drop.threshold", func() { s.Exit.SuddenDrop.Threshold = def.Exit.SuddenDrop.Threshold })
	fix(s.Exit.SuddenDrop.CheckSeconds <= 0, "exit_strategies.sudden_drop.check_seconds", func() { s.Exit.SuddenDrop.CheckSeconds = def.Exit.SuddenDrop.CheckSeconds })
	fix(strings.TrimSpace(s.MarketFilter.Reference) == "", "market_filter.reference_market", func() { s.MarketFilter.Reference = def.MarketFilter.Reference })
	if len(fixed) > 0 {
		logger.Warnf("Strategy: invalid values replaced by defaults: %s", strings.Join(fixed, ", "))
	}
	return fixed
}

func validOffset(v float64) bool { return v >= 0 && v < 0.5 }

func validRules(rules []ScoreRule) bool {
	if len(rules) == 0 {
		return false
	}
	for _, r := range rules {
		if !trend.Signal(r.Signal).Valid() {
			return false
		}
	}
	return true
}

func fromTrendRules(rules []trend.Rule) []ScoreRule {
	out := make([]ScoreRule, len(rules))
	for i, r := range rules {
		out[i] = ScoreRule{Signal: string(r.Signal), Min: r.Min, Points: r.Points}
	}
	return out
}

// TrendSettings converts the scan section into ranking-engine settings.
func (s Strategy) TrendSettings() trend.Settings {
	rules := make([]trend.Rule, len(s.Scan.Rules))
	for i, r := range s.Scan.Rules {
		rules[i] = trend.Rule{Signal: trend.Signal(r.Signal), Min: r.Min, Points: r.Points}
	}
	return trend.Settings{
		Mode:      trend.Mode(s.Scan.Mode),
		Interval:  s.Scan.Interval,
		Window:    s.Scan.Window,
		Count:     s.Scan.CandleCount,
		RSIPeriod: s.Scan.RSIPeriod,
		Rules:     rules,
	}
}

// LimitOffset picks the entry discount for a trend strength.
func (s Strategy) LimitOffset(slope float64) float64 {
	switch {
	case slope >= s.SlopeThresholds.Strong:
		return s.LimitOffsets.Strong
	case slope >= s.SlopeThresholds.Moderate:
		return s.LimitOffsets.Moderate
	default:
		return s.LimitOffsets.Weak
	}
}

func (s Strategy) Cooldown() time.Duration {
	return time.Duration(s.CooldownMinutes) * time.Minute
}

func (s Strategy) BuyTimeout() time.Duration {
	return time.Duration(s.BuyTimeoutMinutes) * time.Minute
}

func (s Strategy) ScanDelay() time.Duration {
	return time.Duration(s.Scan.DelayMillis) * time.Millisecond
}

func (e ExitConfig) AddBuyRecheck() time.Duration {
	return time.Duration(e.AddBuyRecheckSeconds) * time.Second
}

func (d SuddenDropConfig) CheckEvery() time.Duration {
	return time.Duration(d.CheckSeconds) * time.Second
}

func (s Strategy) String() string {
	return fmt.Sprintf("amount=%.0f slots=%d cooldown=%dm score>=%d slope>=%.2f mode=%s sl=%.2f%% ts=%.2f%%/%.2f%%",
		s.TradeAmount, s.MaxSlots, s.CooldownMinutes, s.MinEntryScore, s.MinSlope, s.Scan.Mode,
		s.Exit.StopLoss*100, s.Exit.TrailingTrigger*100, s.Exit.TrailingGap*100)
}
