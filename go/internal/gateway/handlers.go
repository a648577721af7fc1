package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/resendio/resend/go/internal/resend"
	"github.com/resendio/resend/go/internal/session"
)

type metaKey struct{}

// withMeta stashes request metadata for the persist callback.
func withMeta(ctx context.Context, meta session.Meta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

func metaFromContext(ctx context.Context) session.Meta {
	meta, _ := ctx.Value(metaKey{}).(session.Meta)
	return meta
}

type sendRequestBody struct {
	Identifier string `json:"identifier"`
}

type sendResponse struct {
	SentAt   time.Time       `json:"sent_at"`
	Snapshot resend.Snapshot `json:"snapshot"`
}

// handleSend delivers a code for the identifier in the request body. The
// marker cookie is consulted first so a fresh cooldown from a previous page
// load is honored: a send during an active cooldown is rejected with 429.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body sendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Identifier == "" {
		respondError(w, http.StatusBadRequest, "identifier is required")
		return
	}

	marker, ok := s.markerFromRequest(w, r)
	if !ok {
		return
	}

	ctrl, err := s.registry.GetOrCreate(r.Context(), body.Identifier, marker)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	if ctrl.Status() == resend.StatusCooldown {
		respondJSONStatus(w, http.StatusTooManyRequests, ctrl.Snapshot())
		return
	}

	// A presented cookie that restored to ready is stale (expired or for
	// another identifier); the store copy is already gone. Drop the
	// browser's copy too unless a fresh send replaces it below.
	staleCookie := marker != nil && ctrl.Status() == resend.StatusReady

	meta := session.Meta{
		Channel:   "http",
		RemoteIP:  remoteIP(r),
		UserAgent: r.UserAgent(),
	}
	sentAt, err := ctrl.SendCode(withMeta(r.Context(), meta))
	if err != nil {
		if staleCookie {
			s.clearMarkerCookie(w)
		}
		switch {
		case errors.Is(err, resend.ErrSendInProgress):
			respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, resend.ErrClosed):
			respondError(w, http.StatusServiceUnavailable, err.Error())
		default:
			log.Error().Err(err).Str("identifier", body.Identifier).Msg("send failed")
			respondError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	s.setMarkerCookie(w, session.Marker{Identifier: body.Identifier, SentAt: sentAt})
	respondJSON(w, sendResponse{SentAt: sentAt, Snapshot: ctrl.Snapshot()})
}

// handleStatus reports the controller snapshot for an identifier, restoring
// from the marker cookie when the controller is not live yet.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

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
	if marker != nil && ctrl.Status() == resend.StatusReady {
		// Restore decided the presented cookie is stale; drop it.
		s.clearMarkerCookie(w)
	}
	respondJSON(w, ctrl.Snapshot())
}

// handleReset forces the controller for an identifier back to ready and
// clears the marker cookie. Resetting an identifier with no live controller
// still clears the cookie.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body sendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Identifier == "" {
		respondError(w, http.StatusBadRequest, "identifier is required")
		return
	}

	s.clearMarkerCookie(w)

	ctrl, ok := s.registry.Get(body.Identifier)
	if !ok {
		// No live controller, but a durable marker may still exist.
		if err := s.store.Clear(r.Context(), body.Identifier); err != nil {
			log.Warn().Err(err).Str("identifier", body.Identifier).Msg("failed to clear session marker")
		}
		respondJSON(w, resend.Snapshot{
			Status: resend.StatusReady.String(),
			Button: resend.ButtonState{Label: s.cfg.Cooldown.ActiveLabel},
		})
		return
	}
	if err := ctrl.Reset(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, ctrl.Snapshot())
}

// markerFromRequest decodes the marker cookie. A missing cookie yields
// (nil, true). An undecodable or invalid-timestamp cookie is cleared and
// answered with 400; the false return tells the handler to stop.
func (s *Server) markerFromRequest(w http.ResponseWriter, r *http.Request) (*session.Marker, bool) {
	cookie, err := r.Cookie(s.cfg.Server.CookieName)
	if err != nil {
		return nil, true
	}
	marker, err := session.DecodeMarker(cookie.Value)
	if err != nil {
		var tsErr *session.InvalidTimestampError
		if errors.As(err, &tsErr) {
			log.Warn().Str("raw", tsErr.Raw).Msg("session cookie has invalid timestamp")
		}
		s.clearMarkerCookie(w)
		respondError(w, http.StatusBadRequest, "invalid session cookie")
		return nil, false
	}
	return marker, true
}

func (s *Server) setMarkerCookie(w http.ResponseWriter, marker session.Marker) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Server.CookieName,
		Value:    session.EncodeMarker(marker),
		Path:     "/",
		MaxAge:   s.cfg.Cooldown.PeriodSeconds,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearMarkerCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Server.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func respondJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
