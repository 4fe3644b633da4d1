package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerLifecycle(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("upbit", 2, time.Minute)
	b.nowFn = func() time.Time { return now }

	var transitions []string
	b.OnStateChange(func(_ string, from, to State) {
		transitions = append(transitions, from.String()+">"+to.String())
	})

	fail := errors.New("503")
	assert.Equal(t, fail, b.Do(func() error { return fail }, nil))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, fail, b.Do(func() error { return fail }, nil))
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Do(func() error { called = true; return nil }, nil)
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	assert.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	assert.False(t, b.Allow(), "only one trial call while half-open")
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []string{"CLOSED>OPEN", "OPEN>HALF-OPEN", "HALF-OPEN>CLOSED"}, transitions)
}

func TestBreakerIgnoresUncountedErrors(t *testing.T) {
	b := New("orders", 1, time.Minute)
	rejected := errors.New("insufficient funds")
	err := b.Do(func() error { return rejected }, func(err error) bool { return !errors.Is(err, rejected) })
	assert.Equal(t, rejected, err)
	assert.Equal(t, StateClosed, b.State())
}
