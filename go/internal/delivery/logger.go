package delivery

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogWorker is a no-transport worker for development: it logs the send and
// reports success.
type LogWorker struct{}

// NewLogWorker creates a LogWorker.
func NewLogWorker() *LogWorker {
	return &LogWorker{}
}

// Send logs the request and succeeds.
func (w *LogWorker) Send(ctx context.Context, identifier string) error {
	log.Info().
		Str("identifier", identifier).
		Msg("would deliver one-time code")
	return nil
}
