// Package gateway is the HTTP edge of the resend service: a JSON API over
// the controller registry, the marker cookie issue/clear logic, and a
// websocket stream that pushes countdown snapshots to the button UI.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/resendio/resend/go/internal/config"
	"github.com/resendio/resend/go/internal/delivery"
	"github.com/resendio/resend/go/internal/resend"
	"github.com/resendio/resend/go/internal/session"
)

// Server wires the controller registry, marker store and delivery worker
// behind the HTTP API.
type Server struct {
	cfg      *config.Config
	store    session.Store
	worker   delivery.Worker
	registry *Registry
	clock    clockwork.Clock
	upgrader websocket.Upgrader
}

// NewServer builds a gateway server. The registry's controller factory
// binds each controller's callbacks to the shared store and worker; request
// metadata reaches the persist callback through the context (see withMeta).
func NewServer(cfg *config.Config, store session.Store, worker delivery.Worker, clock clockwork.Clock) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		worker: worker,
		clock:  clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// CORS policy is enforced at the cors middleware; the
				// stream accepts the same origins.
				return true
			},
		},
	}
	s.registry = NewRegistry(s.newController)
	return s
}

func (s *Server) newController(identifier string) (*resend.Controller, error) {
	return resend.New(resend.Options{
		Identifier:     identifier,
		CooldownPeriod: time.Duration(s.cfg.Cooldown.PeriodSeconds) * time.Second,
		CallOnMount:    s.cfg.Cooldown.CallOnMount,
		ActiveLabel:    s.cfg.Cooldown.ActiveLabel,
		Debug:          s.cfg.Cooldown.Debug,
		Clock:          s.clock,
		Worker: func(ctx context.Context, id string) error {
			return s.worker.Send(ctx, id)
		},
		Persist: func(ctx context.Context, id string) (time.Time, error) {
			return s.store.Persist(ctx, id, metaFromContext(ctx))
		},
		Clear: func(ctx context.Context) error {
			return s.store.Clear(ctx, identifier)
		},
	})
}

// Registry exposes the controller registry for shutdown.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Handler builds the HTTP handler: routes, CORS, h2c.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/codes/send", s.handleSend)
	mux.HandleFunc("/v1/codes/status", s.handleStatus)
	mux.HandleFunc("/v1/codes/reset", s.handleReset)
	mux.HandleFunc("/v1/codes/stream", s.handleStream)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}

// HTTPServer returns a configured http.Server for the gateway.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", s.cfg.Server.Port),
		Handler: s.Handler(),
	}
}
