// Package countdown implements the one-second countdown that backs the
// resend controller: a remaining-seconds value, a frozen flag, and an
// expiry callback fired when an unfrozen countdown reaches zero.
//
// The ticker goroutine only feeds ticks into tick(); the transition itself
// lives in tick() so it can be exercised without advancing a clock.
package countdown

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer counts down from a full duration on a one-second cadence.
// While frozen, ticks are ignored and the remaining value holds still.
type Timer struct {
	clock    clockwork.Clock
	full     int // seconds
	onExpire func()

	mu        sync.Mutex
	remaining int
	frozen    bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Timer frozen at the full duration and starts its ticker.
// onExpire is invoked (without the timer lock held) each time an unfrozen
// countdown reaches zero; the timer refreezes at full before the callback
// runs. Pass nil to skip the callback. Callers must Stop the timer when done.
func New(clock clockwork.Clock, full time.Duration, onExpire func()) *Timer {
	secs := int(full.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	t := &Timer{
		clock:     clock,
		full:      secs,
		onExpire:  onExpire,
		remaining: secs,
		frozen:    true,
		stopCh:    make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Timer) run() {
	ticker := t.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.Chan():
			t.tick()
		}
	}
}

// tick processes one second of time passing.
func (t *Timer) tick() {
	t.mu.Lock()
	if t.frozen {
		t.mu.Unlock()
		return
	}
	t.remaining--
	expired := t.remaining <= 0
	if expired {
		t.remaining = t.full
		t.frozen = true
	}
	t.mu.Unlock()

	if expired && t.onExpire != nil {
		t.onExpire()
	}
}

// Freeze stops the countdown without touching the remaining value.
func (t *Timer) Freeze() {
	t.mu.Lock()
	t.frozen = true
	t.mu.Unlock()
}

// Unfreeze resumes the countdown from the current remaining value.
func (t *Timer) Unfreeze() {
	t.mu.Lock()
	t.frozen = false
	t.mu.Unlock()
}

// SetRemaining overrides the remaining seconds, clamped to [1, full].
func (t *Timer) SetRemaining(secs int) {
	t.mu.Lock()
	if secs > t.full {
		secs = t.full
	}
	if secs < 1 {
		secs = 1
	}
	t.remaining = secs
	t.mu.Unlock()
}

// Restart rewinds to the full duration and unfreezes.
func (t *Timer) Restart() {
	t.mu.Lock()
	t.remaining = t.full
	t.frozen = false
	t.mu.Unlock()
}

// ResetFrozen rewinds to the full duration and freezes.
func (t *Timer) ResetFrozen() {
	t.mu.Lock()
	t.remaining = t.full
	t.frozen = true
	t.mu.Unlock()
}

// Remaining returns the remaining seconds.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Frozen reports whether the countdown is frozen.
func (t *Timer) Frozen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frozen
}

// FullSeconds returns the configured full duration in seconds.
func (t *Timer) FullSeconds() int {
	return t.full
}

// Display renders the remaining time as mm:ss.
func (t *Timer) Display() string {
	t.mu.Lock()
	r := t.remaining
	t.mu.Unlock()
	return fmt.Sprintf("%02d:%02d", r/60, r%60)
}

// Stop halts the ticker goroutine. Safe to call more than once. A tick
// already in flight may still complete, so callers that must suppress the
// expiry callback need their own guard.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
}
