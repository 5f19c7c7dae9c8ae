// Package linemux fans out the lines read from the device to any number of
// subscribers and exposes them, together with a command input, on the debug
// HTTP server.
package linemux

import (
	"sync"

	"github.com/google/uuid"
)

// subscriberBuffer is the number of lines a slow subscriber may fall behind
// before lines are dropped for it.
const subscriberBuffer = 64

// Hub distributes published lines to subscribers. Publish never blocks.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closed      bool
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]chan string)}
}

// Subscribe creates a new channel for receiving lines. The ID identifies the
// channel when unsubscribing. After Close the returned channel is already
// closed.
func (h *Hub) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Publish sends line to every subscriber that has room for it.
func (h *Hub) Publish(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- line:
		default:
			// subscriber is full, skip so the reader is never blocked
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close closes all subscriber channels. Later subscriptions get a closed
// channel and later publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
