package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/notify"

	"go.uber.org/zap"
)

type mockNotifier struct {
	mu     sync.Mutex
	sent   []string
	err    error
	notify chan struct{}
}

func (m *mockNotifier) SendOrderConfirmation(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	m.sent = append(m.sent, order.ID)
	m.mu.Unlock()
	if m.notify != nil {
		m.notify <- struct{}{}
	}
	return m.err
}

func (m *mockNotifier) sentIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

func TestQueue_DeliversEnqueuedOrders(t *testing.T) {
	notifier := &mockNotifier{notify: make(chan struct{}, 2)}
	q := notify.NewQueue(notifier, zap.NewNop())
	defer q.Close()

	if !q.Enqueue(&domain.Order{ID: "ord-1"}) {
		t.Fatal("expected enqueue to succeed")
	}
	if !q.Enqueue(&domain.Order{ID: "ord-2"}) {
		t.Fatal("expected enqueue to succeed")
	}

	for i := 0; i < 2; i++ {
		select {
		case <-notifier.notify:
		case <-time.After(time.Second):
			t.Fatal("worker did not deliver in time")
		}
	}

	sent := notifier.sentIDs()
	if len(sent) != 2 || sent[0] != "ord-1" || sent[1] != "ord-2" {
		t.Errorf("expected ordered delivery of ord-1, ord-2, got %v", sent)
	}
}

func TestQueue_DeliveryErrorDoesNotStopWorker(t *testing.T) {
	notifier := &mockNotifier{err: errors.New("provider down"), notify: make(chan struct{}, 2)}
	q := notify.NewQueue(notifier, zap.NewNop())
	defer q.Close()

	q.Enqueue(&domain.Order{ID: "ord-1"})
	q.Enqueue(&domain.Order{ID: "ord-2"})

	for i := 0; i < 2; i++ {
		select {
		case <-notifier.notify:
		case <-time.After(time.Second):
			t.Fatal("worker stopped after a delivery error")
		}
	}
}

func TestQueue_CloseDrains(t *testing.T) {
	notifier := &mockNotifier{}
	q := notify.NewQueue(notifier, zap.NewNop())

	q.Enqueue(&domain.Order{ID: "ord-1"})
	q.Close()

	if sent := notifier.sentIDs(); len(sent) != 1 {
		t.Errorf("expected the queued order delivered before close, got %v", sent)
	}
}
