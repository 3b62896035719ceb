// Package stream broadcasts pipeline frames to websocket clients.
package stream

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soypat/metaballs/pipeline"
)

// Hub is an http.Handler upgrading requests to websockets and a
// pipeline.Presenter sending every frame to all connected clients as a
// binary message. New clients immediately receive the latest frame.
type Hub struct {
	upgrader     websocket.Upgrader
	log          *slog.Logger
	writeTimeout time.Duration

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex // Per connection write lock.
	last    []byte
}

var _ pipeline.Presenter = (*Hub)(nil)

// NewHub returns a hub accepting connections from any origin. A nil logger
// selects slog.Default().
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:          logger,
		writeTimeout: 5 * time.Second,
		clients:      make(map[*websocket.Conn]*sync.Mutex),
	}
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the client goes away. Messages from the client are discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", slog.String("remote", r.RemoteAddr), slog.String("err", err.Error()))
		return
	}
	defer conn.Close()

	// Hold the write lock until the latest frame is out so a concurrent
	// Present cannot overtake it.
	connMu := &sync.Mutex{}
	connMu.Lock()
	h.mu.Lock()
	h.clients[conn] = connMu
	last := h.last
	n := len(h.clients)
	h.mu.Unlock()
	defer h.remove(conn)

	h.log.Info("stream client connected", slog.String("remote", r.RemoteAddr), slog.Int("clients", n))
	if last != nil {
		err = h.write(conn, last)
	}
	connMu.Unlock()
	if err != nil {
		h.log.Warn("stream write", slog.String("remote", r.RemoteAddr), slog.String("err", err.Error()))
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("stream read", slog.String("remote", r.RemoteAddr), slog.String("err", err.Error()))
			}
			return
		}
	}
}

// Present encodes f and sends it to every client. Clients that fail to
// receive it are disconnected; that is not reported as an error.
func (h *Hub) Present(f pipeline.Frame) error {
	data := EncodeFrame(nil, f)
	// Clients registering after the snapshot replay data from last instead.
	h.mu.Lock()
	h.last = data
	targets := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for conn, connMu := range h.clients {
		targets[conn] = connMu
	}
	h.mu.Unlock()

	var failed []*websocket.Conn
	for conn, connMu := range targets {
		connMu.Lock()
		err := h.write(conn, data)
		connMu.Unlock()
		if err != nil {
			h.log.Warn("stream write", slog.String("remote", conn.RemoteAddr().String()), slog.String("err", err.Error()))
			failed = append(failed, conn)
		}
	}

	for _, conn := range failed {
		conn.Close()
		h.remove(conn)
	}
	return nil
}

func (h *Hub) write(conn *websocket.Conn, data []byte) error {
	conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close sends a close message to every client and drops them.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for conn, connMu := range h.clients {
		connMu.Lock()
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		connMu.Unlock()
		conn.Close()
		delete(h.clients, conn)
	}
	return nil
}
