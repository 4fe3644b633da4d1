package config

import (
	"fmt"
	"net/url"
	"strings"
)

func validate(c *Config) error {
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	if err := c.Loop.validate(); err != nil {
		return err
	}
	return nil
}

func (e *ExchangeConfig) validate() error {
	switch strings.ToLower(e.Name) {
	case "upbit", "paper":
	default:
		return fmt.Errorf("exchange.name must be upbit or paper, got %q", e.Name)
	}
	if u, err := url.Parse(e.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("exchange.base_url is not a valid URL: %q", e.BaseURL)
	}
	if e.RequestsPerSecond <= 0 {
		return fmt.Errorf("exchange.requests_per_second must be > 0")
	}
	if e.Burst <= 0 {
		return fmt.Errorf("exchange.burst must be > 0")
	}
	if e.TimeoutSeconds <= 0 {
		return fmt.Errorf("exchange.timeout_seconds must be > 0")
	}
	if e.DustThreshold < 0 {
		return fmt.Errorf("exchange.dust_threshold must be >= 0")
	}
	if e.Quote == "" {
		return fmt.Errorf("exchange.quote cannot be empty")
	}
	return nil
}

func (l *LoopConfig) validate() error {
	if l.TickMillis <= 0 {
		return fmt.Errorf("loop.tick_millis must be > 0")
	}
	if l.ErrorBackoffSeconds < 0 || l.ConfigRefreshSeconds <= 0 || l.SearchIntervalSeconds < 0 {
		return fmt.Errorf("loop intervals must be positive (backoff=%d refresh=%d search=%d)",
			l.ErrorBackoffSeconds, l.ConfigRefreshSeconds, l.SearchIntervalSeconds)
	}
	if l.CancelWaitMillis < 0 || l.OrderWaitMillis < 0 {
		return fmt.Errorf("loop wait durations must be >= 0")
	}
	return nil
}
