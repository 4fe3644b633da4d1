package config

import (
	"strings"
	"time"
)

// Config is the process configuration. Strategy tunables live in a separate
// hot-reloaded file, see Strategy.
type Config struct {
	App      AppConfig      `toml:"app"`
	Storage  StorageConfig  `toml:"storage"`
	Exchange ExchangeConfig `toml:"exchange"`
	Loop     LoopConfig     `toml:"loop"`
}

type AppConfig struct {
	Env         string `toml:"env"`
	LogLevel    string `toml:"log_level"`
	LogPath     string `toml:"log_path"`
	HTTPAddr    string `toml:"http_addr"`
	HTTPEnabled bool   `toml:"http_enabled"`
	EnvFile     string `toml:"env_file"`
	// Notify sends trade events to Telegram when the bot token and chat id
	// are present in the environment.
	Notify bool `toml:"notify"`
}

// StorageConfig locates the externally readable state files.
type StorageConfig struct {
	StatePath       string `toml:"state_path"`
	HistoryDBPath   string `toml:"history_db_path"`
	CommandPath     string `toml:"command_path"`
	ScanResultsPath string `toml:"scan_results_path"`
	StrategyPath    string `toml:"strategy_path"`
}

type ExchangeConfig struct {
	// Name is "upbit" for live trading or "paper" for simulated orders on live data.
	Name                   string   `toml:"name"`
	BaseURL                string   `toml:"base_url"`
	TimeoutSeconds         int      `toml:"timeout_seconds"`
	RequestsPerSecond      float64  `toml:"requests_per_second"`
	Burst                  int      `toml:"burst"`
	BreakerThreshold       int      `toml:"breaker_threshold"`
	BreakerCooldownSeconds int      `toml:"breaker_cooldown_seconds"`
	Quote                  string   `toml:"quote"`
	IgnoredCurrencies      []string `toml:"ignored_currencies"`
	DustThreshold          float64  `toml:"dust_threshold"`
	PaperBalance           float64  `toml:"paper_balance"`
	// Stream serves held-market prices from the public websocket, falling
	// back to REST when a price is older than StreamMaxAgeSeconds.
	Stream              bool   `toml:"stream"`
	StreamURL           string `toml:"stream_url"`
	StreamMaxAgeSeconds int    `toml:"stream_max_age_seconds"`
}

func (e ExchangeConfig) Paper() bool {
	return strings.EqualFold(strings.TrimSpace(e.Name), "paper")
}

func (e ExchangeConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

func (e ExchangeConfig) StreamMaxAge() time.Duration {
	return time.Duration(e.StreamMaxAgeSeconds) * time.Second
}

func (e ExchangeConfig) BreakerCooldown() time.Duration {
	return time.Duration(e.BreakerCooldownSeconds) * time.Second
}

// LoopConfig holds the controller cadence. Waits are the fixed pauses after
// state-changing exchange calls.
type LoopConfig struct {
	TickMillis            int `toml:"tick_millis"`
	ErrorBackoffSeconds   int `toml:"error_backoff_seconds"`
	ConfigRefreshSeconds  int `toml:"config_refresh_seconds"`
	SearchIntervalSeconds int `toml:"search_interval_seconds"`
	CancelWaitMillis      int `toml:"cancel_wait_millis"`
	OrderWaitMillis       int `toml:"order_wait_millis"`
}

func (l LoopConfig) Tick() time.Duration {
	return time.Duration(l.TickMillis) * time.Millisecond
}

func (l LoopConfig) ErrorBackoff() time.Duration {
	return time.Duration(l.ErrorBackoffSeconds) * time.Second
}

func (l LoopConfig) ConfigRefresh() time.Duration {
	return time.Duration(l.ConfigRefreshSeconds) * time.Second
}

func (l LoopConfig) SearchInterval() time.Duration {
	return time.Duration(l.SearchIntervalSeconds) * time.Second
}

func (l LoopConfig) CancelWait() time.Duration {
	return time.Duration(l.CancelWaitMillis) * time.Millisecond
}

func (l LoopConfig) OrderWait() time.Duration {
	return time.Duration(l.OrderWaitMillis) * time.Millisecond
}

// keySet tracks which dotted paths were explicitly present in a file, so an
// explicit zero is not mistaken for "missing".
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
