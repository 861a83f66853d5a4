// Package realtime fans payment-status events out to the chat sessions
// currently watching an order. Delivery is best-effort and in-process;
// the webhook reconciler remains the source of truth.
package realtime

import (
	"sync"

	"github.com/boutikcards/chat-commerce-go/internal/domain"

	"go.uber.org/zap"
)

// subscriberBuffer bounds each subscriber channel; a slow reader drops
// events rather than blocking the reconciler.
const subscriberBuffer = 8

// Hub implements port.RealtimePublisher with per-order subscriber sets.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan domain.PaymentStatusEvent]struct{}
	logger *zap.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[chan domain.PaymentStatusEvent]struct{}),
		logger: logger,
	}
}

// Subscribe registers a listener for one order. The caller must call
// the returned cancel func when done.
func (h *Hub) Subscribe(orderID string) (<-chan domain.PaymentStatusEvent, func()) {
	ch := make(chan domain.PaymentStatusEvent, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subs[orderID]
	if !ok {
		set = make(map[chan domain.PaymentStatusEvent]struct{})
		h.subs[orderID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[orderID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, orderID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every open subscriber of the order.
// Full channels are skipped.
func (h *Hub) Publish(orderID string, event domain.PaymentStatusEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[orderID] {
		select {
		case ch <- event:
		default:
			h.logger.Warn("realtime subscriber buffer full, dropping event",
				zap.String("order_id", orderID),
				zap.String("status", string(event.Status)))
		}
	}
}

// SubscriberCount reports the open subscriptions for an order.
func (h *Hub) SubscriberCount(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[orderID])
}
