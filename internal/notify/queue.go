package notify

import (
	"context"
	"sync"
	"time"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/port"

	"go.uber.org/zap"
)

const (
	queueSize      = 256
	deliverTimeout = 15 * time.Second
)

// Queue decouples notification delivery from the request path: Enqueue
// never blocks, a single worker drains the buffer, and a full buffer
// drops the notification with a warning. Confirmation SMS is a courtesy,
// not part of the order contract.
type Queue struct {
	notifier port.Notifier
	ch       chan *domain.Order
	logger   *zap.Logger

	stopOnce sync.Once
	done     chan struct{}
}

// NewQueue creates the queue and starts its worker.
func NewQueue(notifier port.Notifier, logger *zap.Logger) *Queue {
	q := &Queue{
		notifier: notifier,
		ch:       make(chan *domain.Order, queueSize),
		logger:   logger,
		done:     make(chan struct{}),
	}
	go q.worker()
	return q
}

// Enqueue schedules a confirmation without blocking. Returns false if
// the buffer is full and the notification was dropped.
func (q *Queue) Enqueue(order *domain.Order) bool {
	select {
	case q.ch <- order:
		return true
	default:
		q.logger.Warn("notification queue full, dropping confirmation",
			zap.String("order_id", order.ID))
		return false
	}
}

func (q *Queue) worker() {
	for order := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		if err := q.notifier.SendOrderConfirmation(ctx, order); err != nil {
			q.logger.Warn("order confirmation delivery failed",
				zap.String("order_id", order.ID),
				zap.Error(err))
		}
		cancel()
	}
	close(q.done)
}

// Close stops accepting work and waits for the worker to drain.
func (q *Queue) Close() {
	q.stopOnce.Do(func() {
		close(q.ch)
	})
	<-q.done
}
