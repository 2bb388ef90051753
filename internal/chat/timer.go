package chat

import (
	"sync"
	"time"
)

// DefaultIdleTimeout ends an active session after this much user inactivity.
const DefaultIdleTimeout = 15 * time.Minute

// SessionTimer is the idle countdown of an active session. Every Arm, Reset
// and Cancel bumps the generation; a firing timer reports the generation it
// was armed with so the receiver can drop expiries that raced a reset.
type SessionTimer struct {
	onExpire func(generation uint64)

	mu         sync.Mutex
	timer      *time.Timer
	duration   time.Duration
	generation uint64
	armed      bool
}

// NewSessionTimer creates a disarmed timer.
func NewSessionTimer(onExpire func(generation uint64)) *SessionTimer {
	return &SessionTimer{onExpire: onExpire, duration: DefaultIdleTimeout}
}

// Arm starts a fresh countdown of d, replacing any running one.
func (t *SessionTimer) Arm(d time.Duration) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d > 0 {
		t.duration = d
	}
	return t.startLocked()
}

// Reset restarts the countdown with the last armed duration. It is a no-op on
// a disarmed timer.
func (t *SessionTimer) Reset() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed {
		return t.generation
	}
	return t.startLocked()
}

// Cancel disarms the timer. Canceling a timer that already fired is a no-op.
func (t *SessionTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.generation++
	t.armed = false
}

// Generation returns the current generation.
func (t *SessionTimer) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation
}

// Armed reports whether a countdown is running.
func (t *SessionTimer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

func (t *SessionTimer) startLocked() uint64 {
	t.stopLocked()
	t.generation++
	t.armed = true
	gen := t.generation
	t.timer = time.AfterFunc(t.duration, func() {
		t.mu.Lock()
		current := t.armed && t.generation == gen
		if current {
			t.armed = false
		}
		t.mu.Unlock()
		if current && t.onExpire != nil {
			t.onExpire(gen)
		}
	})
	return gen
}

func (t *SessionTimer) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
