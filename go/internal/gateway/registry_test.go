package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resendio/resend/go/internal/resend"
)

func countingFactory(created *int) ControllerFactory {
	var mu sync.Mutex
	return func(identifier string) (*resend.Controller, error) {
		mu.Lock()
		*created++
		mu.Unlock()
		return resend.New(resend.Options{
			Identifier:     identifier,
			CooldownPeriod: 300 * time.Second,
			Clock:          clockwork.NewFakeClock(),
			Worker:         func(ctx context.Context, id string) error { return nil },
			Persist:        func(ctx context.Context, id string) (time.Time, error) { return time.Time{}, nil },
			Clear:          func(ctx context.Context) error { return nil },
		})
	}
}

func TestRegistryReusesControllers(t *testing.T) {
	created := 0
	r := NewRegistry(countingFactory(&created))
	t.Cleanup(r.CloseAll)

	first, err := r.GetOrCreate(context.Background(), "user@example.com", nil)
	require.NoError(t, err)
	second, err := r.GetOrCreate(context.Background(), "user@example.com", nil)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, created)
}

func TestRegistrySeparateControllersPerIdentifier(t *testing.T) {
	created := 0
	r := NewRegistry(countingFactory(&created))
	t.Cleanup(r.CloseAll)

	a, err := r.GetOrCreate(context.Background(), "a@example.com", nil)
	require.NoError(t, err)
	b, err := r.GetOrCreate(context.Background(), "b@example.com", nil)
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, created)
}

func TestRegistryGetOrCreateWaitsForRestore(t *testing.T) {
	workerEntered := make(chan struct{})
	workerRelease := make(chan struct{})
	created := 0
	factory := func(identifier string) (*resend.Controller, error) {
		created++
		return resend.New(resend.Options{
			Identifier:     identifier,
			CooldownPeriod: 300 * time.Second,
			CallOnMount:    true,
			Clock:          clockwork.NewFakeClock(),
			Worker: func(ctx context.Context, id string) error {
				close(workerEntered)
				<-workerRelease
				return nil
			},
			Persist: func(ctx context.Context, id string) (time.Time, error) { return time.Time{}, nil },
			Clear:   func(ctx context.Context) error { return nil },
		})
	}
	r := NewRegistry(factory)
	t.Cleanup(r.CloseAll)

	go func() {
		_, _ = r.GetOrCreate(context.Background(), "user@example.com", nil)
	}()
	<-workerEntered

	// The first caller's restore is mid-send; a second caller must not see
	// the controller until the restore settles.
	status := make(chan resend.Status, 1)
	go func() {
		ctrl, _ := r.GetOrCreate(context.Background(), "user@example.com", nil)
		status <- ctrl.Status()
	}()

	select {
	case <-status:
		t.Fatal("GetOrCreate returned while restore was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(workerRelease)
	assert.Equal(t, resend.StatusCooldown, <-status)
	assert.Equal(t, 1, created)
}

func TestRegistryGetMissing(t *testing.T) {
	r := NewRegistry(countingFactory(new(int)))
	_, ok := r.Get("nobody@example.com")
	assert.False(t, ok)
}

func TestRegistryCloseAllEmpties(t *testing.T) {
	created := 0
	r := NewRegistry(countingFactory(&created))

	ctrl, err := r.GetOrCreate(context.Background(), "user@example.com", nil)
	require.NoError(t, err)

	r.CloseAll()

	_, ok := r.Get("user@example.com")
	assert.False(t, ok)

	// Closed controller rejects further sends.
	_, err = ctrl.SendCode(context.Background())
	assert.ErrorIs(t, err, resend.ErrClosed)
}
