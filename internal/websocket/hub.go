// Package websocket streams list events and alerts to connected UIs and
// accepts the few messages a UI sends back.
package websocket

import (
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
)

const (
	TypeSyncError     = "sync_error"
	TypeListsReloaded = "lists_reloaded"
	TypeAlertShow     = "alert_show"
	TypeAlertClose    = "alert_close"
)

// Message is one event pushed to every client.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity,omitempty"`
	Action string         `json:"action,omitempty"`
	ListID string         `json:"list_id,omitempty"`
	ID     string         `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message typed {entity}_{action}.
func NewMessage(entity, action, listID, id string, extra map[string]any) Message {
	return Message{
		Type:   entity + "_" + action,
		Entity: entity,
		Action: action,
		ListID: listID,
		ID:     id,
		Extra:  extra,
	}
}

// Inbound is a message received from a client. Fields are populated
// according to Type.
type Inbound struct {
	Type      string  `json:"type"`
	Tag       string  `json:"tag,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	handlers []func(Inbound)
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// OnMessage registers fn for every inbound client message.
func (h *Hub) OnMessage(fn func(Inbound)) {
	h.mu.Lock()
	h.handlers = append(h.handlers, fn)
	h.mu.Unlock()
}

func (h *Hub) dispatch(data []byte) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil || in.Type == "" {
		h.logger.Debug("ignoring client message", "error", err)
		return
	}
	h.mu.RLock()
	fns := slices.Clone(h.handlers)
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(in)
	}
}

// Broadcast sends msg to all clients. Clients with a full buffer miss it.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("client buffer full, message dropped", "type", msg.Type)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
