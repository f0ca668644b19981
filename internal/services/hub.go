package services

import (
	"encoding/json"
	"sync"

	"vidgen/internal/studio"
)

type WSEvent struct {
	Type     string           `json:"type"` // only "state" for now
	Snapshot *studio.Snapshot `json:"snapshot,omitempty"`
}

func StateEvent(s studio.Snapshot) WSEvent {
	return WSEvent{Type: "state", Snapshot: &s}
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*WSClient
}

func safeCloseBytes(ch chan []byte) {
	defer func() {
		_ = recover()
	}()
	close(ch)
}

// safeSendBytes reports false only when ch is full. A closed channel means the
// client is already gone.
func safeSendBytes(ch chan []byte, b []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = true
		}
	}()
	select {
	case ch <- b:
		return true
	default:
		return false
	}
}

func NewHub() *Hub {
	return &Hub{
		clients: map[string]*WSClient{},
	}
}

func (h *Hub) Add(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.clients[c.id]; ok {
		safeCloseBytes(old.send)
		old.conn.Close()
	}

	h.clients[c.id] = c
}

// removeClient only drops c if it has not been replaced by a reconnect.
func (h *Hub) removeClient(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.clients[c.id]; ok && cur == c {
		delete(h.clients, c.id)
		safeCloseBytes(c.send)
		c.conn.Close()
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := h.clients
	h.clients = map[string]*WSClient{}
	h.mu.Unlock()

	for _, c := range clients {
		safeCloseBytes(c.send)
		c.conn.Close()
	}
}

func (h *Hub) SendTo(clientId string, event WSEvent) {
	h.mu.RLock()
	c := h.clients[clientId]
	h.mu.RUnlock()

	if c == nil {
		return
	}

	b, _ := json.Marshal(event)
	h.deliver(c, b)
}

// Broadcast never blocks; clients whose buffer is full are dropped.
func (h *Hub) Broadcast(event WSEvent) {
	b, _ := json.Marshal(event)

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.deliver(c, b)
	}
}

func (h *Hub) deliver(c *WSClient, b []byte) {
	if !safeSendBytes(c.send, b) {
		h.removeClient(c)
	}
}
