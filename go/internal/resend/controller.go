// Package resend implements the send-code cooldown controller: a small
// state machine that tracks whether a one-time code may be sent, drives a
// countdown after each send, and restores that countdown from an externally
// supplied session marker.
package resend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/resendio/resend/go/internal/countdown"
	"github.com/resendio/resend/go/internal/session"
)

var (
	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("controller closed")

	// ErrSendInProgress rejects a SendCode while another send is in flight.
	// Callers are expected to serialize sends (the button is disabled), so
	// hitting this means two callers raced.
	ErrSendInProgress = errors.New("send already in progress")

	// ErrMissingIdentifier rejects construction without an identifier.
	ErrMissingIdentifier = errors.New("identifier is required")
)

// Controller owns the status, the countdown, and nothing else. Side effects
// (delivery, marker persistence) run through the caller-supplied callbacks
// in Options; the controller only sequences them.
type Controller struct {
	opts   Options
	clock  clockwork.Clock
	timer  *countdown.Timer
	logger zerolog.Logger

	mu     sync.Mutex
	status Status
	closed bool
}

// New builds a controller in the restoring state with the countdown frozen
// at the full cooldown. Callers follow up with Restore to reach ready or
// cooldown, and Close when done with the controller.
func New(opts Options) (*Controller, error) {
	if opts.Identifier == "" {
		return nil, ErrMissingIdentifier
	}
	if opts.Worker == nil || opts.Persist == nil || opts.Clear == nil {
		return nil, errors.New("worker, persist and clear callbacks are required")
	}
	opts.applyDefaults()

	logger := log.With().Str("component", "resend").Str("identifier", opts.Identifier).Logger()
	if !opts.Debug {
		logger = logger.Level(zerolog.InfoLevel)
	}

	c := &Controller{
		opts:   opts,
		clock:  opts.Clock,
		logger: logger,
		status: StatusRestoring,
	}
	c.timer = countdown.New(opts.Clock, opts.CooldownPeriod, c.expire)
	return c, nil
}

// Restore resumes controller state from marker (nil when the caller has
// none). It implements the mount sequence:
//
//  1. A marker matching the identifier resumes the cooldown if any of it is
//     left, otherwise clears the session and lands on ready.
//  2. A mismatched marker is cleared and then treated as absent.
//  3. With no marker, CallOnMount decides between an immediate send and
//     ready.
//
// Marker parsing happens before this call (session.DecodeMarker); Restore
// only ever sees a structurally valid marker.
func (c *Controller) Restore(ctx context.Context, marker *session.Marker) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	if marker != nil && marker.Identifier == c.opts.Identifier {
		elapsed := c.clock.Now().Sub(marker.SentAt)
		if elapsed < c.opts.CooldownPeriod {
			remaining := int(math.Round((c.opts.CooldownPeriod - elapsed).Seconds()))
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return ErrClosed
			}
			c.timer.SetRemaining(remaining)
			c.timer.Unfreeze()
			c.status = StatusCooldown
			c.mu.Unlock()
			c.logger.Debug().
				Int("remaining_seconds", remaining).
				Str("status", StatusCooldown.String()).
				Msg("restored cooldown from session marker")
			return nil
		}
		// Cooldown elapsed while the page was away.
		c.clearSession(ctx)
		c.setReady()
		c.logger.Debug().Msg("session marker expired; cleared")
		return nil
	}

	if marker != nil {
		// Stale marker for some other identifier.
		c.clearSession(ctx)
		c.logger.Debug().
			Str("marker_identifier", marker.Identifier).
			Msg("session marker identifier mismatch; cleared")
	}

	if c.opts.CallOnMount {
		_, err := c.SendCode(ctx)
		return err
	}

	c.setReady()
	return nil
}

// SendCode delivers a code: worker first, then persist. On success the
// countdown restarts at the full cooldown and the sent-at timestamp (the
// persist callback's server timestamp when it returns one) comes back to
// the caller. On failure the controller reverts to ready and the error is
// returned. The sending state is never skipped.
func (c *Controller) SendCode(ctx context.Context) (time.Time, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return time.Time{}, ErrClosed
	}
	if c.status == StatusSending {
		c.mu.Unlock()
		return time.Time{}, ErrSendInProgress
	}
	c.status = StatusSending
	c.timer.ResetFrozen()
	c.mu.Unlock()

	c.logger.Debug().Msg("sending code")

	if err := c.opts.Worker(ctx, c.opts.Identifier); err != nil {
		c.setReady()
		return time.Time{}, fmt.Errorf("send code: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return time.Time{}, ErrClosed
	}
	c.mu.Unlock()

	sentAt, err := c.opts.Persist(ctx, c.opts.Identifier)
	if err != nil {
		c.setReady()
		return time.Time{}, fmt.Errorf("persist session: %w", err)
	}
	if sentAt.IsZero() {
		sentAt = c.clock.Now()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return time.Time{}, ErrClosed
	}
	c.timer.Restart()
	c.status = StatusCooldown
	c.mu.Unlock()

	c.logger.Info().
		Time("sent_at", sentAt).
		Int("cooldown_seconds", c.timer.FullSeconds()).
		Msg("code sent; cooldown started")
	return sentAt, nil
}

// Reset returns the controller to ready: the session is cleared and the
// countdown freezes at the full cooldown. A no-op when already ready, so
// no callback fires twice. Clear failures are logged and do not block the
// transition; a stuck cooldown is worse than a stale marker.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.status == StatusReady {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.clearSession(ctx)
	c.setReady()
	c.logger.Debug().Msg("controller reset to ready")
	return nil
}

// expire is the countdown's expiry callback.
func (c *Controller) expire() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.logger.Debug().Msg("cooldown expired")
	_ = c.Reset(context.Background())
}

// Close stops the countdown and abandons any in-flight work. Operations
// racing with Close observe the closed flag after their next await point
// and stop without invoking further callbacks.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.timer.Stop()
}

// Status returns the current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Remaining returns the countdown seconds left, or 0 outside cooldown.
func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusCooldown {
		return 0
	}
	return c.timer.Remaining()
}

func (c *Controller) setReady() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.timer.ResetFrozen()
	c.status = StatusReady
	c.mu.Unlock()
}

func (c *Controller) clearSession(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.opts.Clear(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("failed to clear session marker")
	}
}
