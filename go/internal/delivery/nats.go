package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const (
	natsMaxReconnects = 10
	natsReconnectWait = 2 * time.Second

	// sendRequestMaxAge bounds how long unconsumed send requests sit in the
	// stream before JetStream discards them.
	sendRequestMaxAge = 24 * time.Hour
)

// sendRequest is the envelope published for each code send.
type sendRequest struct {
	EventID     string    `json:"event_id"`
	Identifier  string    `json:"identifier"`
	RequestedAt time.Time `json:"requested_at"`
}

// NATSWorker publishes send requests to a JetStream stream. A downstream
// consumer owns the actual delivery channel (email, SMS); publish failure
// is delivery failure as far as the controller is concerned.
type NATSWorker struct {
	js      jetstream.JetStream
	subject string
	clock   clockwork.Clock
}

// NewNATSWorker creates a worker publishing to "<subjectPrefix>.requests".
func NewNATSWorker(js jetstream.JetStream, subjectPrefix string, clock clockwork.Clock) *NATSWorker {
	return &NATSWorker{
		js:      js,
		subject: fmt.Sprintf("%s.requests", subjectPrefix),
		clock:   clock,
	}
}

// Send publishes the send-request envelope and waits for the stream ack.
func (w *NATSWorker) Send(ctx context.Context, identifier string) error {
	req := sendRequest{
		EventID:     uuid.New().String(),
		Identifier:  identifier,
		RequestedAt: w.clock.Now(),
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal send request: %w", err)
	}

	if _, err := w.js.Publish(ctx, w.subject, data); err != nil {
		return fmt.Errorf("failed to publish send request: %w", err)
	}

	log.Debug().
		Str("event_id", req.EventID).
		Str("identifier", identifier).
		Str("subject", w.subject).
		Msg("published send request")
	return nil
}

// Connect establishes a NATS connection with JetStream.
func Connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return nc, js, nil
}

// EnsureStream creates or updates the stream holding send requests.
func EnsureStream(ctx context.Context, js jetstream.JetStream, name, subjectPrefix string) (jetstream.Stream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: []string{fmt.Sprintf("%s.>", subjectPrefix)},
		Storage:  jetstream.FileStorage,
		MaxAge:   sendRequestMaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", name, err)
	}
	return stream, nil
}
