// Package monitor streams flight events to ground station clients over
// websockets.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roman-kulish/grid-pilot/internal/flight"
)

const (
	broadcastBuffer = 256
	writeTimeout    = 2 * time.Second
)

// WithLogger sets the logger for the hub
func WithLogger(logger *slog.Logger) func(h *Hub) {
	return func(h *Hub) {
		h.logger = logger
	}
}

// Hub fans flight events out to every connected websocket client. Slow
// clients are dropped and events are discarded rather than stalling the
// flight loop.
type Hub struct {
	upgrader websocket.Upgrader

	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan flight.Event

	mu      sync.Mutex
	last    *flight.Event
	dropped uint64

	logger *slog.Logger
}

var _ flight.Observer = (*Hub)(nil)

func NewHub(options ...func(h *Hub)) *Hub {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	h := Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan flight.Event, broadcastBuffer),
		logger:     logger,
	}

	for _, option := range options {
		option(&h)
	}

	return &h
}

// Observe queues e for broadcast without blocking.
func (h *Hub) Observe(e flight.Event) {
	h.mu.Lock()
	h.last = &e
	h.mu.Unlock()

	select {
	case h.broadcast <- e:
	default:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
	}
}

// Run serves the hub until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				h.drop(conn)
			}
			return

		case conn := <-h.register:
			h.clients[conn] = struct{}{}
			h.logger.Info("monitor client connected", slog.String("remote", conn.RemoteAddr().String()), slog.Int("clients", len(h.clients)))

		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				h.drop(conn)
				h.logger.Info("monitor client disconnected", slog.Int("clients", len(h.clients)))
			}

		case e := <-h.broadcast:
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(e); err != nil {
					h.logger.Warn("failed to send event, dropping client", slog.Any("error", err))
					h.drop(conn)
				}
			}
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	delete(h.clients, conn)
	_ = conn.Close()
}

// Handler returns the HTTP handler: /ws upgrades to the event stream and
// /api/status reports the latest event.
func (h *Hub) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		h.serveWS(ctx, w, r)
	})
	mux.HandleFunc("/api/status", h.serveStatus)
	return mux
}

func (h *Hub) serveWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	select {
	case h.register <- conn:
	case <-ctx.Done():
		_ = conn.Close()
		return
	}

	// clients only send close and control frames
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("websocket read failed", slog.Any("error", err))
				}
				select {
				case h.unregister <- conn:
				case <-ctx.Done():
				}
				return
			}
		}
	}()
}

type status struct {
	Last    *flight.Event `json:"last,omitempty"`
	Dropped uint64        `json:"dropped"`
}

func (h *Hub) serveStatus(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	s := status{Last: h.last, Dropped: h.dropped}
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s)
}

// ListenAndServe serves the hub on addr until ctx is done.
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Handler(ctx),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go h.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	h.logger.Info("monitor listening", slog.String("addr", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
