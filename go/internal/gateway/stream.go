package gateway

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/resendio/resend/go/internal/resend"
)

// snapshotter is what the write pump needs from a controller.
type snapshotter interface {
	Snapshot() resend.Snapshot
}

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

// handleStream upgrades to a websocket and pushes the controller snapshot
// every second so the button UI can render the countdown without polling.
// The connection closes when the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("identifier")
	if identifier == "" {
		respondError(w, http.StatusBadRequest, "identifier is required")
		return
	}

	marker, ok := s.markerFromRequest(w, r)
	if !ok {
		return
	}

	ctrl, err := s.registry.GetOrCreate(r.Context(), identifier, marker)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade stream connection")
		return
	}
	connID := uuid.New().String()[:8]
	log.Debug().
		Str("connection_id", connID).
		Str("identifier", identifier).
		Msg("stream connected")

	// The request context dies when this handler returns, so the pumps
	// coordinate their own lifetime: readPump closes done when the client
	// goes away, which ends the write pump.
	done := make(chan struct{})
	go s.writePump(conn, connID, ctrl, done)
	go readPump(conn, connID, done)
}

// writePump writes the current snapshot immediately, then pushes snapshots
// at 1 Hz and pings on a slower cadence until done closes.
func (s *Server) writePump(conn *websocket.Conn, connID string, ctrl snapshotter, done <-chan struct{}) {
	ticker := s.clock.NewTicker(time.Second)
	ping := s.clock.NewTicker(streamPingInterval)
	defer func() {
		ticker.Stop()
		ping.Stop()
		_ = conn.Close()
		log.Debug().Str("connection_id", connID).Msg("stream closed")
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(ctrl.Snapshot()); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(ctrl.Snapshot()); err != nil {
				return
			}
		case <-ping.Chan():
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames; its job is noticing the close and
// signalling the write pump through done.
func readPump(conn *websocket.Conn, connID string, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			_ = conn.Close()
			return
		}
	}
}
