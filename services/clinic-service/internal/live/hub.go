// Package live pushes change notifications to connected dashboards so they
// know when to re-fetch. Notifications carry ids only, never writable state.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/physiobook/physiobook/libs/auth"
)

const (
	KindRegistrationCreated = "registration.created"
	KindVisitCompleted      = "visit.completed"
	KindSlotChanged         = "slot.changed"
	KindIncidentRecorded    = "incident.recorded"
)

type Notification struct {
	Kind       string    `json:"kind"`
	ResourceID string    `json:"resource_id,omitempty"`
	At         time.Time `json:"at"`
}

// audience lists the capabilities that make a notification relevant.
var audience = map[string][]auth.Capability{
	KindRegistrationCreated: {auth.CapViewRegistrations, auth.CapViewPatientQueue, auth.CapViewStats},
	KindVisitCompleted:      {auth.CapViewRegistrations, auth.CapViewPatientQueue, auth.CapViewPatientHistory},
	KindSlotChanged:         {auth.CapManageSlots, auth.CapViewStats},
	KindIncidentRecorded:    {auth.CapManageSlots},
}

// Conn abstracts a websocket connection for tests.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Client struct {
	ID   string
	Caps auth.Capabilities
	Send chan []byte
}

func NewClient(id string, caps auth.Capabilities) *Client {
	return &Client{ID: id, Caps: caps, Send: make(chan []byte, 64)}
}

func (c *Client) wants(kind string) bool {
	for _, cap := range audience[kind] {
		if c.Caps.Has(cap) {
			return true
		}
	}
	return false
}

type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
	now     func() time.Time
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
		now:     time.Now,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// Unregister removes c and closes its Send channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.Send)
}

// Notify implements the notifier used by handlers after local writes.
func (h *Hub) Notify(_ context.Context, kind, resourceID string) {
	h.Broadcast(Notification{Kind: kind, ResourceID: resourceID, At: h.now().UTC()})
}

// Broadcast delivers n to every client whose role cares about it. Slow
// clients with a full buffer miss the notification.
func (h *Hub) Broadcast(n Notification) int {
	data, err := json.Marshal(n)
	if err != nil {
		h.logger.Error("live notification marshal failed", "err", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.clients {
		if !c.wants(n.Kind) {
			continue
		}
		select {
		case c.Send <- data:
			sent++
		default:
			h.logger.Debug("live client buffer full", "client_id", c.ID, "kind", n.Kind)
		}
	}
	return sent
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
