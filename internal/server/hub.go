package server

import (
	"sync"
	"sync/atomic"

	"github.com/Uttam-Mahata/qchat/internal/api"
)

// Hub fans message events out to connected users. Each subscriber gets its
// own buffered channel; a consumer that falls behind loses events and is
// expected to catch up over the messages endpoint.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscriber]struct{} // username -> connections
	buffer  int
	dropped atomic.Uint64
}

type subscriber struct {
	username string
	events   chan *api.MessageEvent
}

// NewHub creates a hub with the given per-subscriber buffer size.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a connection for the user. The returned cancel
// function must be called when the connection closes.
func (h *Hub) Subscribe(username string) (<-chan *api.MessageEvent, func()) {
	sub := &subscriber{
		username: username,
		events:   make(chan *api.MessageEvent, h.buffer),
	}

	h.mu.Lock()
	if h.subs[username] == nil {
		h.subs[username] = make(map[*subscriber]struct{})
	}
	h.subs[username][sub] = struct{}{}
	h.mu.Unlock()

	return sub.events, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if userSubs, ok := h.subs[username]; ok {
			delete(userSubs, sub)
			if len(userSubs) == 0 {
				delete(h.subs, username)
			}
		}
	}
}

// Publish delivers an event to every connection of the user. Sends never
// block; a full subscriber buffer drops the event.
func (h *Hub) Publish(username string, event *api.MessageEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[username] {
		select {
		case sub.events <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped returns the number of events lost to full subscriber buffers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Subscribers returns the number of open connections for a user.
func (h *Hub) Subscribers(username string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[username])
}
