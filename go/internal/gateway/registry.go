package gateway

import (
	"context"
	"sync"

	"github.com/resendio/resend/go/internal/resend"
	"github.com/resendio/resend/go/internal/session"
)

// ControllerFactory builds a controller for an identifier. The gateway owns
// wiring the store and worker into the controller's callbacks.
type ControllerFactory func(identifier string) (*resend.Controller, error)

// entry pairs a controller with its restore barrier: restored closes once
// the creating request's Restore has settled, so nobody observes a
// controller mid-restore.
type entry struct {
	ctrl     *resend.Controller
	restored chan struct{}
}

// Registry holds one live controller per identifier. Controllers are
// created on first touch and restored from the caller-supplied marker.
type Registry struct {
	factory ControllerFactory

	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry(factory ControllerFactory) *Registry {
	return &Registry{
		factory: factory,
		entries: make(map[string]*entry),
	}
}

// Get returns the live controller for identifier, if any, waiting out an
// in-flight restore first.
func (r *Registry) Get(identifier string) (*resend.Controller, bool) {
	r.mu.Lock()
	e, ok := r.entries[identifier]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	<-e.restored
	return e.ctrl, true
}

// GetOrCreate returns the live controller for identifier, creating and
// restoring one from marker when none exists yet. Concurrent callers for
// the same identifier block until the first caller's restore has settled.
// On restore failure the controller is still registered (it has already
// settled in ready) and the error goes to the creating caller.
func (r *Registry) GetOrCreate(ctx context.Context, identifier string, marker *session.Marker) (*resend.Controller, error) {
	r.mu.Lock()
	if e, ok := r.entries[identifier]; ok {
		r.mu.Unlock()
		<-e.restored
		return e.ctrl, nil
	}
	ctrl, err := r.factory(identifier)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	e := &entry{ctrl: ctrl, restored: make(chan struct{})}
	r.entries[identifier] = e
	r.mu.Unlock()

	defer close(e.restored)
	if err := ctrl.Restore(ctx, marker); err != nil {
		return e.ctrl, err
	}
	return e.ctrl, nil
}

// CloseAll closes every controller and empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.ctrl.Close()
	}
}
