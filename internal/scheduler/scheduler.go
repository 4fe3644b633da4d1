package scheduler

import (
	"context"
	"time"

	"upbot/internal/logger"
)

var log = logger.For("Loop")

// Loop runs a task repeatedly with a fixed pause between runs. A failed run
// waits Backoff instead. Panics inside the task are recovered and treated as
// failures so the loop never exits on its own.
type Loop struct {
	Name     string
	Interval time.Duration
	Backoff  time.Duration

	sleep func(ctx context.Context, d time.Duration) bool
}

func NewLoop(name string, interval, backoff time.Duration) *Loop {
	return &Loop{Name: name, Interval: interval, Backoff: backoff, sleep: Sleep}
}

// Run blocks until ctx is done.
func (l *Loop) Run(ctx context.Context, task func(ctx context.Context) error) {
	if task == nil {
		log.Warnf("%s: task is nil, exit", l.Name)
		return
	}
	if l.sleep == nil {
		l.sleep = Sleep
	}
	log.Infof("%s: started interval=%s backoff=%s", l.Name, l.Interval, l.Backoff)
	for {
		if ctx.Err() != nil {
			log.Infof("%s: ctx done, exit", l.Name)
			return
		}
		wait := l.Interval
		if err := l.runOnce(ctx, task); err != nil {
			log.Errorf("%s: run failed: %v (retry in %s)", l.Name, err, l.Backoff)
			wait = l.Backoff
		}
		if !l.sleep(ctx, wait) {
			log.Infof("%s: ctx done, exit", l.Name)
			return
		}
	}
}

func (l *Loop) runOnce(ctx context.Context, task func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return task(ctx)
}

type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return "panic: " + toString(e.Value)
}

func toString(v any) string {
	switch x := v.(type) {
	case error:
		return x.Error()
	case string:
		return x
	default:
		return "non-error panic value"
	}
}

// Sleep waits d or until ctx is done. It returns false if ctx ended first.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
