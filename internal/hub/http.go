package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Tyrowin/multichat/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthMessage is the body served by the health endpoint.
const HealthMessage = "MultiChat hub is running!"

// ParticipantsResponse is the JSON body of the participants endpoint.
type ParticipantsResponse struct {
	Participants []string `json:"participants"`
	Sessions     int      `json:"sessions"`
}

// HealthHandler reports that the process is serving.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, HealthMessage)
}

// Routes builds the HTTP side-car: health, participant list, Prometheus
// metrics, and a WebSocket gateway that joins browser clients to the hub.
func (h *Hub) Routes(allowedOrigins []string) http.Handler {
	policy := newOriginPolicy(allowedOrigins, h.log)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", HealthHandler)
	r.Get("/participants", h.participantsHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.promRegistry, promhttp.HandlerOpts{}))
	r.Get("/ws", h.webSocketHandler(policy))
	return r
}

func (h *Hub) participantsHandler(w http.ResponseWriter, _ *http.Request) {
	participants := h.Participants()
	if participants == nil {
		participants = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ParticipantsResponse{
		Participants: participants,
		Sessions:     h.Sessions(),
	}); err != nil {
		h.log.Error("Error writing participants response", "error", err)
	}
}

func (h *Hub) webSocketHandler(policy *originPolicy) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.check,
	}
	readLimit := int64(h.opts.Session.MaxFrameSize)
	if readLimit <= 0 {
		readLimit = int64(session.DefaultOptions().MaxFrameSize)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
			return
		}
		if err := h.Serve(session.NewWebSocketConn(conn, readLimit), r.RemoteAddr); err != nil {
			h.log.Warn("WebSocket client rejected", "addr", r.RemoteAddr, "error", err)
		}
	}
}

// CreateServer creates an HTTP server for addr with production timeouts.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartServer serves until the server is shut down. A graceful shutdown
// is not reported as an error.
func StartServer(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShutdownServer stops the HTTP server, waiting up to timeout for active
// requests.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
