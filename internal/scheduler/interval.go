package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseIntervalDuration parses "1m", "15m", "1h", "4h", "1d", "1w".
// Returns (0, false) on invalid input.
func ParseIntervalDuration(interval string) (time.Duration, bool) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if len(interval) < 2 {
		return 0, false
	}
	unit := interval[len(interval)-1]
	n, err := strconv.Atoi(strings.TrimSpace(interval[:len(interval)-1]))
	if err != nil || n <= 0 {
		return 0, false
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

var minuteUnits = map[int]bool{1: true, 3: true, 5: true, 10: true, 15: true, 30: true, 60: true, 240: true}

// CandlePath maps an interval onto the exchange's candle resource, e.g.
// "15m" -> "minutes/15", "1h" -> "minutes/60", "1d" -> "days".
func CandlePath(interval string) (string, error) {
	d, ok := ParseIntervalDuration(interval)
	if !ok {
		return "", fmt.Errorf("invalid interval %q", interval)
	}
	switch {
	case d == 24*time.Hour:
		return "days", nil
	case d == 7*24*time.Hour:
		return "weeks", nil
	case d < 24*time.Hour && d%time.Minute == 0 && minuteUnits[int(d/time.Minute)]:
		return fmt.Sprintf("minutes/%d", int(d/time.Minute)), nil
	}
	return "", fmt.Errorf("unsupported candle interval %q", interval)
}
