package delivery

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogWorkerAlwaysSucceeds(t *testing.T) {
	w := NewLogWorker()
	assert.NoError(t, w.Send(context.Background(), "user@example.com"))
}

func TestNATSWorkerSubject(t *testing.T) {
	w := NewNATSWorker(nil, "sendcode", clockwork.NewFakeClock())
	assert.Equal(t, "sendcode.requests", w.subject)
}

func TestSendRequestEnvelope(t *testing.T) {
	req := sendRequest{
		EventID:     "abc",
		Identifier:  "user@example.com",
		RequestedAt: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "user@example.com", decoded["identifier"])
	assert.Equal(t, "abc", decoded["event_id"])
	assert.Contains(t, decoded, "requested_at")
}
