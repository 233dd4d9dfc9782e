// Package monitoring - hub.go fans intervention events out to live
// subscribers (the /v1/events websocket feed).
package monitoring

import "sync"

// subscriberBuffer bounds each subscriber's queue; slow consumers drop
// events rather than stalling the request path.
const subscriberBuffer = 16

// Hub broadcasts intervention records to subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[chan InterventionRecord]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan InterventionRecord]struct{})}
}

// Subscribe registers a new listener. Call the returned cancel func to
// unsubscribe; the channel is closed then.
func (h *Hub) Subscribe() (<-chan InterventionRecord, func()) {
	ch := make(chan InterventionRecord, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers a record to all subscribers without blocking.
func (h *Hub) Publish(rec InterventionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- rec:
		default:
		}
	}
}

// SubscriberCount reports current subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
