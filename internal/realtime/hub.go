// Package realtime carries the WebSocket transport and the protocol state
// machine coordinating teacher and student clients.
package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Audience names a broadcast scope.
type Audience string

const (
	AudienceAll      Audience = "all"
	AudienceTeachers Audience = "teachers"
	AudienceStudents Audience = "students"
)

// Sender is the fan-out surface the orchestrator writes through. The hub
// implements it; tests substitute a recording fake.
type Sender interface {
	// Join subscribes a client to an audience (socket.io-style room).
	Join(clientID string, audience Audience)
	// Broadcast sends an event to every client in the audience.
	Broadcast(audience Audience, event string, payload interface{})
	// SendToClient sends an event to one client only.
	SendToClient(clientID, event string, payload interface{})
	// Kick emits the kicked event to a client and force-disconnects it.
	Kick(clientID string)
}

// Hub maintains the set of connected clients and their audience membership.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	audiences map[Audience]map[string]bool
	logger    *zap.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		audiences: map[Audience]map[string]bool{
			AudienceTeachers: make(map[string]bool),
			AudienceStudents: make(map[string]bool),
		},
		logger: logger,
	}
}

// Register adds a connected client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("client_id", c.ID))
}

// Unregister removes a client and its audience memberships.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	for _, members := range h.audiences {
		delete(members, c.ID)
	}
	h.mu.Unlock()
	h.logger.Debug("client disconnected", zap.String("client_id", c.ID))
}

// Join subscribes a client to an audience.
func (h *Hub) Join(clientID string, audience Audience) {
	if audience == AudienceAll {
		return
	}
	h.mu.Lock()
	if members, ok := h.audiences[audience]; ok {
		members[clientID] = true
	}
	h.mu.Unlock()
}

// Broadcast sends an event to every client in the audience.
func (h *Hub) Broadcast(audience Audience, event string, payload interface{}) {
	msg, err := envelope(event, payload)
	if err != nil {
		h.logger.Warn("marshal broadcast", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	if audience == AudienceAll {
		for _, c := range h.clients {
			targets = append(targets, c)
		}
	} else {
		for id := range h.audiences[audience] {
			if c, ok := h.clients[id]; ok {
				targets = append(targets, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(msg)
	}
}

// SendToClient sends an event to a single client.
func (h *Hub) SendToClient(clientID, event string, payload interface{}) {
	msg, err := envelope(event, payload)
	if err != nil {
		h.logger.Warn("marshal message", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.enqueue(msg)
}

// Kick emits kicked to the client, then closes its connection. Queued
// messages are flushed before the close frame.
func (h *Hub) Kick(clientID string) {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if msg, err := envelope(EventKicked, nil); err == nil {
		c.enqueue(msg)
	}
	c.shutdown()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func envelope(event string, payload interface{}) (WSMessage, error) {
	msg := WSMessage{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return WSMessage{}, err
		}
		msg.Data = data
	}
	return msg, nil
}
