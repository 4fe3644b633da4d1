package scheduler

import (
	"sync"
	"time"
)

// Throttle admits at most one run per Every. The zero time is always due,
// so the first check after start runs immediately.
type Throttle struct {
	mu    sync.Mutex
	Every time.Duration
	last  time.Time
}

func NewThrottle(every time.Duration) *Throttle {
	return &Throttle{Every: every}
}

// Try marks and returns true when due.
func (t *Throttle) Try(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.last.IsZero() && now.Sub(t.last) < t.Every {
		return false
	}
	t.last = now
	return true
}
