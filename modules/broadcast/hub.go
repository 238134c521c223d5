package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gofiber/contrib/websocket"

	"github.com/example/chat-presence-service/modules/presence"
)

// Conn is the subset of the WebSocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client represents one live connection owned by a user.
type Client struct {
	ID     string
	UserID string
	Conn   Conn

	// Serializes writes; the underlying connection does not allow
	// concurrent writers.
	mu sync.Mutex
}

func (c *Client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a ping control frame. It shares the write lock so keepalive
// pings never interleave with event frames.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.PingMessage, nil)
}

// Envelope is the wire format for every outbound event.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub is the room router: it maps connections to the conversation rooms they
// receive broadcasts for, and resolves user-level sends through the presence
// registry.
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]*Client
	rooms       map[string]map[string]bool // roomID -> set of connIDs
	roomsByConn map[string]map[string]bool // connID -> set of roomIDs

	registry *presence.Registry
	logger   *slog.Logger
}

// NewHub creates a new Hub backed by the given presence registry.
func NewHub(registry *presence.Registry) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		rooms:       make(map[string]map[string]bool),
		roomsByConn: make(map[string]map[string]bool),
		registry:    registry,
		logger:      slog.Default(),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

// Unregister removes a client and all of its room subscriptions.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, connID)
	for roomID := range h.roomsByConn[connID] {
		delete(h.rooms[roomID], connID)
		if len(h.rooms[roomID]) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(h.roomsByConn, connID)
}

// Subscribe adds a connection to a room. Subscribing twice, or subscribing an
// unknown connection, is a no-op.
func (h *Hub) Subscribe(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[connID]; !ok {
		return
	}
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]bool)
	}
	h.rooms[roomID][connID] = true
	if h.roomsByConn[connID] == nil {
		h.roomsByConn[connID] = make(map[string]bool)
	}
	h.roomsByConn[connID][roomID] = true
}

// BroadcastRoom sends an event to every connection subscribed to the room,
// optionally excluding one connection.
func (h *Hub) BroadcastRoom(roomID, excludeConnID, eventType string, payload any) {
	data, ok := h.marshal(eventType, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for connID := range h.rooms[roomID] {
		if connID == excludeConnID {
			continue
		}
		if client, ok := h.clients[connID]; ok {
			h.send(client, eventType, data)
		}
	}
}

// SendToConn sends an event to a single connection.
func (h *Hub) SendToConn(connID, eventType string, payload any) {
	data, ok := h.marshal(eventType, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if client, ok := h.clients[connID]; ok {
		h.send(client, eventType, data)
	}
}

// SendToUser sends an event to every open connection of a user.
func (h *Hub) SendToUser(userID, eventType string, payload any) {
	data, ok := h.marshal(eventType, payload)
	if !ok {
		return
	}

	connIDs := h.registry.Connections(userID)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, connID := range connIDs {
		if client, ok := h.clients[connID]; ok {
			h.send(client, eventType, data)
		}
	}
}

// CloseAll closes every client connection and clears the hub's tables.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		_ = client.Conn.Close()
	}
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]bool)
	h.roomsByConn = make(map[string]map[string]bool)
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of rooms with at least one subscriber.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) marshal(eventType string, payload any) ([]byte, bool) {
	data, err := json.Marshal(Envelope{Type: eventType, Payload: payload})
	if err != nil {
		h.logger.Error("failed to marshal outbound event", "type", eventType, "error", err)
		return nil, false
	}
	return data, true
}

func (h *Hub) send(client *Client, eventType string, data []byte) {
	if err := client.write(data); err != nil {
		// The read loop notices the dead connection and tears it down.
		h.logger.Debug("write failed", "connId", client.ID, "type", eventType, "error", err)
	}
}
