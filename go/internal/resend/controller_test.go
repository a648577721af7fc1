package resend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resendio/resend/go/internal/session"
)

// callbacks records every collaborator invocation so tests can assert on
// exactly which side effects a transition produced.
type callbacks struct {
	mu           sync.Mutex
	workerCalls  int
	persistCalls int
	clearCalls   int

	workerErr  error
	persistErr error
	clearErr   error
	serverTS   time.Time

	workerEntered chan struct{}
	workerRelease chan struct{}
}

func (cb *callbacks) worker(ctx context.Context, identifier string) error {
	cb.mu.Lock()
	cb.workerCalls++
	cb.mu.Unlock()
	if cb.workerEntered != nil {
		close(cb.workerEntered)
	}
	if cb.workerRelease != nil {
		<-cb.workerRelease
	}
	return cb.workerErr
}

func (cb *callbacks) persist(ctx context.Context, identifier string) (time.Time, error) {
	cb.mu.Lock()
	cb.persistCalls++
	cb.mu.Unlock()
	return cb.serverTS, cb.persistErr
}

func (cb *callbacks) clear(ctx context.Context) error {
	cb.mu.Lock()
	cb.clearCalls++
	cb.mu.Unlock()
	return cb.clearErr
}

func (cb *callbacks) counts() (worker, persist, clear int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.workerCalls, cb.persistCalls, cb.clearCalls
}

func newTestController(t *testing.T, opts Options, cb *callbacks) (*Controller, *clockwork.FakeClock) {
	t.Helper()
	fc := clockwork.NewFakeClock()
	opts.Clock = fc
	opts.Worker = cb.worker
	opts.Persist = cb.persist
	opts.Clear = cb.clear
	if opts.Identifier == "" {
		opts.Identifier = "user@example.com"
	}
	ctrl, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)
	return ctrl, fc
}

func TestNewRequiresIdentifier(t *testing.T) {
	cb := &callbacks{}
	_, err := New(Options{Worker: cb.worker, Persist: cb.persist, Clear: cb.clear})
	assert.ErrorIs(t, err, ErrMissingIdentifier)
}

func TestNewStartsRestoring(t *testing.T) {
	ctrl, _ := newTestController(t, Options{}, &callbacks{})
	assert.Equal(t, StatusRestoring, ctrl.Status())
}

func TestRestoreNoMarkerEndsReady(t *testing.T) {
	cb := &callbacks{}
	ctrl, _ := newTestController(t, Options{}, cb)

	require.NoError(t, ctrl.Restore(context.Background(), nil))

	assert.Equal(t, StatusReady, ctrl.Status())
	worker, persist, clear := cb.counts()
	assert.Zero(t, worker)
	assert.Zero(t, persist)
	assert.Zero(t, clear)
}

func TestRestoreMismatchedMarkerClearsSession(t *testing.T) {
	cb := &callbacks{}
	ctrl, fc := newTestController(t, Options{}, cb)

	marker := &session.Marker{Identifier: "someone-else@example.com", SentAt: fc.Now()}
	require.NoError(t, ctrl.Restore(context.Background(), marker))

	assert.Equal(t, StatusReady, ctrl.Status())
	worker, persist, clear := cb.counts()
	assert.Zero(t, worker)
	assert.Zero(t, persist)
	assert.Equal(t, 1, clear)
}

func TestRestoreExpiredMarkerClearsSession(t *testing.T) {
	cb := &callbacks{}
	ctrl, fc := newTestController(t, Options{CooldownPeriod: time.Second}, cb)

	marker := &session.Marker{Identifier: "user@example.com", SentAt: fc.Now().Add(-5 * time.Second)}
	require.NoError(t, ctrl.Restore(context.Background(), marker))

	assert.Equal(t, StatusReady, ctrl.Status())
	worker, persist, clear := cb.counts()
	assert.Zero(t, worker)
	assert.Zero(t, persist)
	assert.Equal(t, 1, clear)
}

func TestRestoreFreshMarkerResumesCooldown(t *testing.T) {
	cb := &callbacks{}
	ctrl, fc := newTestController(t, Options{CooldownPeriod: 300 * time.Second}, cb)

	marker := &session.Marker{Identifier: "user@example.com", SentAt: fc.Now().Add(-120 * time.Second)}
	require.NoError(t, ctrl.Restore(context.Background(), marker))

	assert.Equal(t, StatusCooldown, ctrl.Status())
	assert.InDelta(t, 180, ctrl.Remaining(), 1)
	assert.False(t, ctrl.timer.Frozen())
	_, _, clear := cb.counts()
	assert.Zero(t, clear)
}

func TestRestoreCallOnMountSendsImmediately(t *testing.T) {
	cb := &callbacks{}
	ctrl, _ := newTestController(t, Options{CallOnMount: true}, cb)

	require.NoError(t, ctrl.Restore(context.Background(), nil))

	assert.Equal(t, StatusCooldown, ctrl.Status())
	worker, persist, _ := cb.counts()
	assert.Equal(t, 1, worker)
	assert.Equal(t, 1, persist)
}

func TestRestoreCallOnMountSkippedWhenMarkerMatches(t *testing.T) {
	cb := &callbacks{}
	ctrl, fc := newTestController(t, Options{CallOnMount: true, CooldownPeriod: 300 * time.Second}, cb)

	marker := &session.Marker{Identifier: "user@example.com", SentAt: fc.Now().Add(-10 * time.Second)}
	require.NoError(t, ctrl.Restore(context.Background(), marker))

	assert.Equal(t, StatusCooldown, ctrl.Status())
	worker, _, _ := cb.counts()
	assert.Zero(t, worker)
}

func TestSendCodeSuccess(t *testing.T) {
	serverTS := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	cb := &callbacks{serverTS: serverTS}
	ctrl, _ := newTestController(t, Options{CooldownPeriod: 300 * time.Second}, cb)
	require.NoError(t, ctrl.Restore(context.Background(), nil))

	sentAt, err := ctrl.SendCode(context.Background())

	require.NoError(t, err)
	assert.Equal(t, serverTS, sentAt)
	assert.Equal(t, StatusCooldown, ctrl.Status())
	assert.Equal(t, 300, ctrl.Remaining())
	assert.False(t, ctrl.timer.Frozen())
}

func TestSendCodeUsesClockWhenPersistReturnsNoTimestamp(t *testing.T) {
	cb := &callbacks{}
	ctrl, fc := newTestController(t, Options{}, cb)
	require.NoError(t, ctrl.Restore(context.Background(), nil))

	sentAt, err := ctrl.SendCode(context.Background())

	require.NoError(t, err)
	assert.Equal(t, fc.Now(), sentAt)
}

func TestSendCodeWorkerFailureRevertsToReady(t *testing.T) {
	cb := &callbacks{workerErr: errors.New("Test")}
	ctrl, _ := newTestController(t, Options{}, cb)
	require.NoError(t, ctrl.Restore(context.Background(), nil))

	_, err := ctrl.SendCode(context.Background())

	require.Error(t, err)
	assert.ErrorContains(t, err, "Test")
	assert.Equal(t, StatusReady, ctrl.Status())
	_, persist, _ := cb.counts()
	assert.Zero(t, persist)
}

func TestSendCodePersistFailureRevertsToReady(t *testing.T) {
	cb := &callbacks{persistErr: errors.New("disk full")}
	ctrl, _ := newTestController(t, Options{}, cb)
	require.NoError(t, ctrl.Restore(context.Background(), nil))

	_, err := ctrl.SendCode(context.Background())

	require.Error(t, err)
	assert.Equal(t, StatusReady, ctrl.Status())
}

func TestSendCodeRejectsConcurrentSend(t *testing.T) {
	cb := &callbacks{
		workerEntered: make(chan struct{}),
		workerRelease: make(chan struct{}),
	}
	ctrl, _ := newTestController(t, Options{}, cb)
	require.NoError(t, ctrl.Restore(context.Background(), nil))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = ctrl.SendCode(context.Background())
	}()

	<-cb.workerEntered
	assert.Equal(t, StatusSending, ctrl.Status())

	_, err := ctrl.SendCode(context.Background())
	assert.ErrorIs(t, err, ErrSendInProgress)

	close(cb.workerRelease)
	<-done
	assert.Equal(t, StatusCooldown, ctrl.Status())
}

func TestResetIsIdempotent(t *testing.T) {
	cb := &callbacks{}
	ctrl, _ := newTestController(t, Options{}, cb)
	require.NoError(t, ctrl.Restore(context.Background(), nil))

	require.NoError(t, ctrl.Reset(context.Background()))
	require.NoError(t, ctrl.Reset(context.Background()))

	_, _, clear := cb.counts()
	assert.Zero(t, clear)
}

func TestResetFromCooldownClearsSession(t *testing.T) {
	cb := &callbacks{}
	ctrl, _ := newTestController(t, Options{}, cb)
	require.NoError(t, ctrl.Restore(context.Background(), nil))
	_, err := ctrl.SendCode(context.Background())
	require.NoError(t, err)

	require.NoError(t, ctrl.Reset(context.Background()))

	assert.Equal(t, StatusReady, ctrl.Status())
	assert.True(t, ctrl.timer.Frozen())
	_, _, clear := cb.counts()
	assert.Equal(t, 1, clear)
}

func TestResetClearFailureStillLandsReady(t *testing.T) {
	cb := &callbacks{clearErr: errors.New("cookie jar unavailable")}
	ctrl, _ := newTestController(t, Options{}, cb)
	require.NoError(t, ctrl.Restore(context.Background(), nil))
	_, err := ctrl.SendCode(context.Background())
	require.NoError(t, err)

	require.NoError(t, ctrl.Reset(context.Background()))
	assert.Equal(t, StatusReady, ctrl.Status())
}

func TestCloseAbandonsInFlightSend(t *testing.T) {
	cb := &callbacks{
		workerEntered: make(chan struct{}),
		workerRelease: make(chan struct{}),
	}
	ctrl, _ := newTestController(t, Options{}, cb)
	require.NoError(t, ctrl.Restore(context.Background(), nil))

	errCh := make(chan error, 1)
	go func() {
		_, err := ctrl.SendCode(context.Background())
		errCh <- err
	}()

	<-cb.workerEntered
	ctrl.Close()
	close(cb.workerRelease)

	assert.ErrorIs(t, <-errCh, ErrClosed)
	_, persist, _ := cb.counts()
	assert.Zero(t, persist)
}

func TestExpiryResetsToReady(t *testing.T) {
	cb := &callbacks{}
	ctrl, fc := newTestController(t, Options{CooldownPeriod: 3 * time.Second}, cb)

	marker := &session.Marker{Identifier: "user@example.com", SentAt: fc.Now().Add(-time.Second)}
	require.NoError(t, ctrl.Restore(context.Background(), marker))
	require.Equal(t, StatusCooldown, ctrl.Status())
	require.Equal(t, 2, ctrl.Remaining())

	fc.BlockUntil(1)
	fc.Advance(time.Second)
	require.Eventually(t, func() bool {
		return ctrl.Remaining() == 1
	}, time.Second, time.Millisecond)

	fc.Advance(time.Second)
	require.Eventually(t, func() bool {
		return ctrl.Status() == StatusReady
	}, time.Second, time.Millisecond)

	_, _, clear := cb.counts()
	assert.Equal(t, 1, clear)
}
