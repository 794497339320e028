package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	jsonwriter "github.com/dgellow/checkin-front/internal/json"
	"github.com/dgellow/checkin-front/internal/log"
)

// Fixed endpoints served next to the routing table
const (
	LoginPath   = "/oauth/begin"
	LogoutPath  = "/oauth/logout"
	SessionPath = "/oauth/session"
	HealthPath  = "/health"
	MetricsPath = "/metrics"
)

// HTTPServer manages the HTTP server lifecycle
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer creates a new HTTP server with the given handler and address.
// There is no write timeout: proxied WebSocket connections are long lived.
func NewHTTPServer(handler http.Handler, addr string) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	log.LogInfoWithFields("http", "HTTP server starting", map[string]any{
		"addr": h.server.Addr,
	})

	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve serves on an existing listener, for tests binding port 0
func (h *HTTPServer) Serve(l net.Listener) error {
	log.LogInfoWithFields("http", "HTTP server starting", map[string]any{
		"addr": l.Addr().String(),
	})

	if err := h.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	log.LogInfoWithFields("http", "HTTP server stopping", map[string]any{
		"addr": h.server.Addr,
	})

	if err := h.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	log.LogInfoWithFields("http", "HTTP server stopped", map[string]any{
		"addr": h.server.Addr,
	})
	return nil
}

// Pinger is a dependency the health check probes
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	store Pinger
}

// NewHealthHandler creates a new health handler probing store
func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{store: store}
}

// ServeHTTP implements http.Handler for health checks
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			log.LogWarnWithFields("http", "Health check failed", map[string]any{
				"error": err.Error(),
			})
			_ = jsonwriter.WriteResponse(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unavailable",
				"storage": "unreachable",
			})
			return
		}
	}

	_ = jsonwriter.Write(w, map[string]string{
		"status":  "ok",
		"storage": "ok",
	})
}
