// Package hub provides connection management for WebSocket clients.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/supportchat/internal/domain"
)

// Connection represents a single WebSocket connection.
type Connection struct {
	ID      string
	OwnerID string
	Conn    *websocket.Conn
	Send    chan []byte
	hub     *Hub
	mu      sync.Mutex

	// sendMu guards closed; Send is only closed while holding it.
	sendMu sync.RWMutex
	closed bool
}

// Hub manages all WebSocket connections, grouped by owner.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// owners maps owner_id to set of connection IDs
	owners map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection

	// Broadcast channel for sending to every connection of one owner
	broadcast chan *OwnerMessage

	// done is closed when Run returns.
	done chan struct{}

	mu sync.RWMutex
}

// OwnerMessage is used to broadcast a message to an owner.
type OwnerMessage struct {
	OwnerID string
	Data    []byte
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		owners:      make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *OwnerMessage, 256),
		done:        make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done. On return
// every connection's send queue is closed so its pumps wind down.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()
			log.Printf("Connection registered: %s", conn.ID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				h.unbindLocked(conn)
				conn.closeSend()
			}
			h.mu.Unlock()
			log.Printf("Connection unregistered: %s", conn.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for connID := range h.owners[msg.OwnerID] {
				if conn, exists := h.connections[connID]; exists {
					if err := conn.enqueue(msg.Data); err == ErrBufferFull {
						log.Printf("Connection %s buffer full, closing", connID)
						go h.Unregister(conn)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConnection creates a new connection. It must be registered before use.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan []byte, 256),
		hub:  h,
	}
}

// Register registers a connection with the hub. After the hub has stopped
// the connection's send queue is closed instead.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		conn.closeSend()
	}
}

// Unregister unregisters a connection from the hub. It is a no-op once the
// hub has stopped.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	close(h.done)
	for id, conn := range h.connections {
		conn.closeSend()
		delete(h.connections, id)
	}
	h.owners = make(map[string]map[string]bool)
	log.Printf("Hub stopped")
}

// BindOwner binds a connection to the owner it authenticated as.
func (h *Hub) BindOwner(conn *Connection, ownerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unbindLocked(conn)
	conn.OwnerID = ownerID
	if h.owners[ownerID] == nil {
		h.owners[ownerID] = make(map[string]bool)
	}
	h.owners[ownerID][conn.ID] = true
}

func (h *Hub) unbindLocked(conn *Connection) {
	if conn.OwnerID == "" || h.owners[conn.OwnerID] == nil {
		return
	}
	delete(h.owners[conn.OwnerID], conn.ID)
	if len(h.owners[conn.OwnerID]) == 0 {
		delete(h.owners, conn.OwnerID)
	}
}

// Broadcast queues data for every connection of ownerID. It never blocks;
// when the queue is full the message is dropped.
func (h *Hub) Broadcast(ownerID string, data []byte) {
	select {
	case h.broadcast <- &OwnerMessage{OwnerID: ownerID, Data: data}:
	default:
		log.Printf("WARN: broadcast queue full, dropping message for owner %s", ownerID)
	}
}

// BroadcastJSON sends a JSON message to all connections of an owner.
func (h *Hub) BroadcastJSON(ownerID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(ownerID, data)
	return nil
}

// Publish pushes a session event to the owner's live connections.
func (h *Hub) Publish(ownerID string, event domain.SessionEvent) {
	if err := h.BroadcastJSON(ownerID, event); err != nil {
		log.Printf("WARN: failed to encode %s event: %v", event.Type, err)
	}
}

// SendToConnection sends a message to a specific connection.
func (h *Hub) SendToConnection(conn *Connection, data []byte) error {
	return conn.enqueue(data)
}

// SendJSONToConnection sends a JSON message to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.SendToConnection(conn, data)
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// HasActiveConnections checks if an owner has any bound connections.
func (h *Hub) HasActiveConnections(ownerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.owners[ownerID]) > 0
}

func (c *Connection) enqueue(data []byte) error {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

var (
	// ErrBufferFull is returned when the send buffer is full.
	ErrBufferFull = &BufferFullError{}
	// ErrClosed is returned when the connection has been unregistered.
	ErrClosed = errors.New("connection closed")
)

// BufferFullError represents a buffer full error.
type BufferFullError struct{}

func (e *BufferFullError) Error() string {
	return "send buffer full"
}
