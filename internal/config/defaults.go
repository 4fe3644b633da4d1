package config

import "strings"

const (
	defaultAppEnv         = "dev"
	defaultAppLogLevel    = "info"
	defaultAppLogPath     = "data/logs/upbot.log"
	defaultAppHTTPAddr    = ":9991"
	defaultAppEnvFile     = ".env"
	defaultStatePath      = "data/trade_state.json"
	defaultHistoryDBPath  = "data/trade_history.db"
	defaultCommandPath    = "data/command.json"
	defaultScanPath       = "data/scan_results.json"
	defaultStrategyPath   = "configs/strategy.yaml"
	defaultExchangeName   = "upbit"
	defaultExchangeURL    = "https://api.upbit.com"
	defaultExchangeTO     = 10
	defaultExchangeRPS    = 8
	defaultExchangeBurst  = 8
	defaultBreakerTrips   = 5
	defaultBreakerCool    = 30
	defaultQuote          = "KRW"
	defaultDustThreshold  = 5000
	defaultPaperBalance   = 1_000_000
	defaultStreamURL      = "wss://api.upbit.com/websocket/v1"
	defaultStreamMaxAge   = 10
	defaultTickMillis     = 200
	defaultBackoffSeconds = 5
	defaultRefreshSeconds = 10
	defaultSearchSeconds  = 30
	defaultCancelMillis   = 1000
	defaultOrderMillis    = 1000
)

var defaultIgnoredCurrencies = []string{"KRW", "USDT", "XAUT"}

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Storage.applyDefaults(keys)
	c.Exchange.applyDefaults(keys)
	c.Loop.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.env_file", &a.EnvFile, defaultAppEnvFile),
		boolFieldDefault("app.http_enabled", &a.HTTPEnabled, true),
	)
}

func (s *StorageConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("storage.state_path", &s.StatePath, defaultStatePath),
		stringFieldDefault("storage.history_db_path", &s.HistoryDBPath, defaultHistoryDBPath),
		stringFieldDefault("storage.command_path", &s.CommandPath, defaultCommandPath),
		stringFieldDefault("storage.scan_results_path", &s.ScanResultsPath, defaultScanPath),
		stringFieldDefault("storage.strategy_path", &s.StrategyPath, defaultStrategyPath),
	)
}

func (e *ExchangeConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("exchange.name", &e.Name, defaultExchangeName),
		stringFieldDefault("exchange.base_url", &e.BaseURL, defaultExchangeURL),
		stringFieldDefault("exchange.quote", &e.Quote, defaultQuote),
		intFieldDefault("exchange.timeout_seconds", &e.TimeoutSeconds, defaultExchangeTO),
		floatFieldDefault("exchange.requests_per_second", &e.RequestsPerSecond, defaultExchangeRPS),
		intFieldDefault("exchange.burst", &e.Burst, defaultExchangeBurst),
		intFieldDefault("exchange.breaker_threshold", &e.BreakerThreshold, defaultBreakerTrips),
		intFieldDefault("exchange.breaker_cooldown_seconds", &e.BreakerCooldownSeconds, defaultBreakerCool),
		floatFieldDefault("exchange.dust_threshold", &e.DustThreshold, defaultDustThreshold),
		floatFieldDefault("exchange.paper_balance", &e.PaperBalance, defaultPaperBalance),
		boolFieldDefault("exchange.stream", &e.Stream, true),
		stringFieldDefault("exchange.stream_url", &e.StreamURL, defaultStreamURL),
		intFieldDefault("exchange.stream_max_age_seconds", &e.StreamMaxAgeSeconds, defaultStreamMaxAge),
		fieldDefault{
			key:   "exchange.ignored_currencies",
			need:  func() bool { return len(e.IgnoredCurrencies) == 0 },
			apply: func() { e.IgnoredCurrencies = append([]string(nil), defaultIgnoredCurrencies...) },
		},
	)
	e.BaseURL = strings.TrimRight(strings.TrimSpace(e.BaseURL), "/")
	e.Quote = strings.ToUpper(strings.TrimSpace(e.Quote))
	for i, cur := range e.IgnoredCurrencies {
		e.IgnoredCurrencies[i] = strings.ToUpper(strings.TrimSpace(cur))
	}
}

func (l *LoopConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("loop.tick_millis", &l.TickMillis, defaultTickMillis),
		intFieldDefault("loop.error_backoff_seconds", &l.ErrorBackoffSeconds, defaultBackoffSeconds),
		intFieldDefault("loop.config_refresh_seconds", &l.ConfigRefreshSeconds, defaultRefreshSeconds),
		intFieldDefault("loop.search_interval_seconds", &l.SearchIntervalSeconds, defaultSearchSeconds),
		intFieldDefault("loop.cancel_wait_millis", &l.CancelWaitMillis, defaultCancelMillis),
		intFieldDefault("loop.order_wait_millis", &l.OrderWaitMillis, defaultOrderMillis),
	)
}

// applyFieldDefaults skips keys present in the file and fields whose need
// reports false.
func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:   key,
		apply: func() { *target = def },
	}
}

// intFieldDefault fills an absent key. Zero is a legal explicit value for
// counters such as confirm cycles, so presence decides, not the value.
func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		apply: func() { *target = def },
	}
}
