// Package streaming provides in-memory pub/sub for request progress events
// and the WebSocket transport that delivers them to clients.
package streaming

import (
	"sync"

	"github.com/bankerai/orchestrator/internal/orchestrator"
)

// Hub fans orchestrator events out to per-request subscribers. Publish never
// blocks: a subscriber whose buffer is full misses that event.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan orchestrator.Event]struct{}
	all  map[chan orchestrator.Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[chan orchestrator.Event]struct{}),
		all:  make(map[chan orchestrator.Event]struct{}),
	}
}

// Publish delivers ev to subscribers of its request and to firehose
// subscribers. Implements orchestrator.EventSink.
func (h *Hub) Publish(ev orchestrator.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.RequestID] {
		select {
		case ch <- ev:
		default:
		}
	}
	for ch := range h.all {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a buffered channel of events for one request, or for all
// requests when requestID is empty. The caller must drain it and call
// Unsubscribe when done.
func (h *Hub) Subscribe(requestID string, buffer int) chan orchestrator.Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan orchestrator.Event, buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if requestID == "" {
		h.all[ch] = struct{}{}
		return ch
	}
	subs := h.subs[requestID]
	if subs == nil {
		subs = make(map[chan orchestrator.Event]struct{})
		h.subs[requestID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes the channel.
func (h *Hub) Unsubscribe(requestID string, ch chan orchestrator.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if requestID == "" {
		if _, ok := h.all[ch]; ok {
			delete(h.all, ch)
			close(ch)
		}
		return
	}
	if subs, ok := h.subs[requestID]; ok {
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subs, requestID)
		}
	}
}
