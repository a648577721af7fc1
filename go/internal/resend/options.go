package resend

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultCooldownPeriod is how long a sender waits between codes when
	// the caller does not override it.
	DefaultCooldownPeriod = 300 * time.Second

	// DefaultActiveLabel is the button label while a send is allowed.
	DefaultActiveLabel = "Send me a new code"
)

// WorkerFunc performs the actual code delivery for an identifier. Failures
// propagate to the controller, which reverts to ready.
type WorkerFunc func(ctx context.Context, identifier string) error

// PersistFunc durably records that a code was sent for an identifier and
// may return the authoritative server timestamp. A zero time means "no
// server timestamp"; the controller substitutes its own clock.
type PersistFunc func(ctx context.Context, identifier string) (time.Time, error)

// ClearFunc erases the durable session marker.
type ClearFunc func(ctx context.Context) error

// Options configures a Controller. Identifier, Worker, Persist and Clear
// are required.
type Options struct {
	// Identifier names who the code goes to. Session markers are only
	// authoritative when their identifier matches this one.
	Identifier string

	// CooldownPeriod is the wait between sends. Defaults to
	// DefaultCooldownPeriod.
	CooldownPeriod time.Duration

	// CallOnMount sends a code immediately on restore when no session
	// marker exists for the identifier.
	CallOnMount bool

	// ActiveLabel overrides the ready-state button label.
	ActiveLabel string

	// Debug enables per-transition debug logging for this controller.
	Debug bool

	// Clock defaults to the real clock; tests inject a fake.
	Clock clockwork.Clock

	Worker  WorkerFunc
	Persist PersistFunc
	Clear   ClearFunc
}

func (o *Options) applyDefaults() {
	if o.CooldownPeriod <= 0 {
		o.CooldownPeriod = DefaultCooldownPeriod
	}
	if o.ActiveLabel == "" {
		o.ActiveLabel = DefaultActiveLabel
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
}
