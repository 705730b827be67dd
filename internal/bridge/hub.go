package bridge

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/barkit/barlink/internal/logging"
)

// sendBuffer bounds the per-client outbound queue. A client that cannot
// keep up loses intermediate frames, same as a slow shared-memory consumer.
const sendBuffer = 16

// client is one WebSocket connection with its outbound queue.
type client struct {
	id   string
	conn *websocket.Conn

	// mu orders enqueue against close: the server shutdown path closes
	// clients while handler goroutines on hijacked connections may still
	// be queueing frames.
	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// enqueue queues a frame, dropping it when the queue is full or the client
// is already closed.
func (c *client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump drains the outbound queue onto the connection.
func (c *client) writePump() {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// Hub tracks connected clients and fans frames out to all of them.
type Hub struct {
	log *logging.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates an empty hub.
func NewHub(log *logging.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[string]*client),
	}
}

// Register adds a connection and starts its write pump.
func (h *Hub) Register(conn *websocket.Conn) *client {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	go c.writePump()

	h.log.Debug("client connected", zap.String("client_id", c.id))
	return c
}

// Unregister removes a connection.
func (h *Hub) Unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.close()

	h.log.Debug("client disconnected", zap.String("client_id", c.id))
}

// Broadcast queues a frame for every client. Clients with a full queue skip
// this frame rather than stalling the broadcast.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.enqueue(data)
	}
}

// Send queues a frame for one client. Safe against a concurrent Unregister
// or CloseAll; a frame for a closed client is dropped.
func (h *Hub) Send(c *client, data []byte) {
	c.enqueue(data)
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.close()
		c.conn.Close()
		delete(h.clients, id)
	}
}
