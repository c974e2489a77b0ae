package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"crowdbeat/logger"

	"github.com/gorilla/websocket"
)

// Viewer is one connected dashboard client.
type Viewer struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
	closed     atomic.Bool
}

// NewViewer creates a viewer for a connection. The conn may be nil in tests;
// only the pumps touch it.
func NewViewer(hub *Hub, conn *websocket.Conn, remoteAddr string) *Viewer {
	return &Viewer{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 64),
		remoteAddr: remoteAddr,
	}
}

// enqueue offers a message to the viewer without blocking. Reports false for
// closed viewers and full buffers; the message is simply not delivered.
func (v *Viewer) enqueue(data []byte) bool {
	if v.closed.Load() {
		return false
	}
	select {
	case v.send <- data:
		return true
	default:
		return false
	}
}

// Hub is the registry of connected viewers. Registration, unregistration
// and fan-out all run on the Run loop; delivery is fire-and-forget.
type Hub struct {
	viewers map[*Viewer]bool

	register   chan *Viewer
	unregister chan *Viewer
	broadcast  chan []byte

	mu   sync.RWMutex
	done chan struct{}

	// snapshot produces the current state_update for late joiners.
	snapshot func() ([]byte, error)
}

func newHub(snapshot func() ([]byte, error)) *Hub {
	return &Hub{
		viewers:    make(map[*Viewer]bool),
		register:   make(chan *Viewer),
		unregister: make(chan *Viewer),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		snapshot:   snapshot,
	}
}

// Run drives the hub loop.
func (h *Hub) Run() {
	for {
		select {
		case v := <-h.register:
			h.registerViewer(v)

		case v := <-h.unregister:
			h.unregisterViewer(v)

		case msg := <-h.broadcast:
			h.fanOut(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop shuts down the hub loop and closes all viewer channels.
func (h *Hub) Stop() {
	close(h.done)
}

// Register adds a viewer to the live set. The viewer immediately receives
// one state_update reflecting the current state.
func (h *Hub) Register(v *Viewer) {
	select {
	case h.register <- v:
	case <-h.done:
	}
}

// Unregister removes a viewer. Subsequent broadcasts skip it.
func (h *Hub) Unregister(v *Viewer) {
	select {
	case h.unregister <- v:
	case <-h.done:
	}
}

// Broadcast queues a message for delivery to every registered viewer. Never
// blocks; if the hub cannot keep up the update is dropped, matching the
// protocol's at-most-once delivery.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		logger.Warn("bridge broadcast queue full, dropping state update")
	}
}

// ViewerCount returns the number of registered viewers.
func (h *Hub) ViewerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

func (h *Hub) registerViewer(v *Viewer) {
	h.mu.Lock()
	h.viewers[v] = true
	h.mu.Unlock()

	data, err := h.snapshot()
	if err != nil {
		logger.Error("failed to snapshot state for new viewer", logger.ErrorField(err))
	} else if !v.enqueue(data) {
		logger.Warn("new viewer send buffer full, initial state dropped",
			logger.String("viewer", v.remoteAddr))
	}

	logger.Info("bridge viewer registered", logger.String("viewer", v.remoteAddr))
}

func (h *Hub) unregisterViewer(v *Viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.viewers[v]; !ok {
		return
	}
	delete(h.viewers, v)
	v.closed.Store(true)
	close(v.send)

	logger.Info("bridge viewer unregistered", logger.String("viewer", v.remoteAddr))
}

// fanOut delivers one message to every open viewer. Closed or slow viewers
// are skipped silently; there is no queueing or backpressure.
func (h *Hub) fanOut(data []byte) {
	h.mu.RLock()
	viewers := make([]*Viewer, 0, len(h.viewers))
	for v := range h.viewers {
		viewers = append(viewers, v)
	}
	h.mu.RUnlock()

	for _, v := range viewers {
		v.enqueue(data)
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for v := range h.viewers {
		v.closed.Store(true)
		close(v.send)
	}
	h.viewers = make(map[*Viewer]bool)
}

// ReadPump reads control messages from the connection until it closes, then
// unregisters the viewer. Runs as a goroutine per connection.
func (v *Viewer) ReadPump(ctx context.Context, handler func(ctx context.Context, v *Viewer, msg *Message)) {
	defer func() {
		v.hub.Unregister(v)
		v.conn.Close()
	}()

	v.conn.SetReadLimit(8192)
	v.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	v.conn.SetPongHandler(func(string) error {
		v.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, raw, err := v.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("bridge websocket read error",
						logger.ErrorField(err),
						logger.String("viewer", v.remoteAddr))
				}
				return
			}

			var msg Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				logger.Warn("invalid bridge message",
					logger.ErrorField(err),
					logger.String("viewer", v.remoteAddr))
				continue
			}

			handler(ctx, v, &msg)
		}
	}
}

// WritePump writes queued messages to the connection and keeps it alive with
// pings. Runs as a goroutine per connection.
func (v *Viewer) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case data, ok := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel.
				v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
