// Package delivery carries the send-side of the system: the Worker boundary
// the controller calls into, plus the log and NATS-backed implementations.
// Whatever actually turns a send request into an email or SMS lives beyond
// the broker and is not this repository's concern.
package delivery

import "context"

// Worker performs the actual code-delivery operation for an identifier.
// A returned error propagates to the controller, which reverts to ready.
type Worker interface {
	Send(ctx context.Context, identifier string) error
}
