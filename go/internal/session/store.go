package session

import (
	"context"
	"time"
)

// Store is the durable home of session markers. Persist records a send and
// returns the authoritative server timestamp; Lookup returns nil (no error)
// when no marker exists for the identifier.
type Store interface {
	Persist(ctx context.Context, identifier string, meta Meta) (time.Time, error)
	Lookup(ctx context.Context, identifier string) (*Marker, error)
	Clear(ctx context.Context, identifier string) error
}
