package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/infra/observability"
	"github.com/boutikcards/chat-commerce-go/internal/notify"
	"github.com/boutikcards/chat-commerce-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var hookTracer = otel.Tracer("service/reconciler")

// Reconciler applies asynchronous provider callbacks to transaction
// and order state. Per transaction the state machine is
// PENDING → COMPLETED | FAILED | EXPIRED with immutable terminal
// states, so redelivered webhooks are no-ops.
type Reconciler struct {
	payments     *Payments
	transactions port.TransactionStore
	orders       port.OrderStore
	sessions     *Sessions
	realtime     port.RealtimePublisher
	queue        *notify.Queue
	events       port.EventPublisher
	metrics      *observability.Metrics
	logger       *zap.Logger

	// mu guards inflight. Deliveries for one reference run one at a
	// time, so the terminal-state check and the update stay atomic when
	// a provider retries while the first delivery is still applying.
	mu       sync.Mutex
	inflight map[string]*referenceLock
}

type referenceLock struct {
	mu      sync.Mutex
	holders int
}

// NewReconciler wires the reconciler.
func NewReconciler(payments *Payments, transactions port.TransactionStore, orders port.OrderStore, sessions *Sessions, realtime port.RealtimePublisher, queue *notify.Queue, events port.EventPublisher, metrics *observability.Metrics, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		payments:     payments,
		transactions: transactions,
		orders:       orders,
		sessions:     sessions,
		realtime:     realtime,
		queue:        queue,
		events:       events,
		metrics:      metrics,
		logger:       logger,
		inflight:     make(map[string]*referenceLock),
	}
}

// lockReference serializes webhook application per provider reference.
// The returned func releases the lock and drops the entry once the last
// holder is done.
func (r *Reconciler) lockReference(key string) func() {
	r.mu.Lock()
	l, ok := r.inflight[key]
	if !ok {
		l = &referenceLock{}
		r.inflight[key] = l
	}
	l.holders++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.holders--
		if l.holders == 0 {
			delete(r.inflight, key)
		}
		r.mu.Unlock()
	}
}

// HandleWebhook authenticates and applies one provider callback.
// Returns ErrUnauthorized on a bad signature (no state change),
// ErrValidation when the payload is not a payment event we track.
func (r *Reconciler) HandleWebhook(ctx context.Context, provider domain.PaymentProvider, payload []byte, signature string) error {
	ctx, span := hookTracer.Start(ctx, "Reconciler.HandleWebhook")
	defer span.End()
	span.SetAttributes(attribute.String("webhook.provider", string(provider)))

	adapter, ok := r.payments.Adapter(provider)
	if !ok {
		r.metrics.IncrWebhook(string(provider), "unsupported")
		return &domain.ErrValidation{Field: "provider", Message: fmt.Sprintf("unknown provider %q", provider)}
	}

	if !adapter.VerifyWebhookSignature(payload, signature) {
		r.metrics.IncrWebhook(string(provider), "bad_signature")
		r.logger.Warn("webhook signature rejected", zap.String("provider", string(provider)))
		return &domain.ErrUnauthorized{Message: "invalid webhook signature"}
	}

	event, err := adapter.ParseWebhook(payload)
	if err != nil {
		var ignored *domain.ErrEventIgnored
		if errors.As(err, &ignored) {
			// Acknowledge event types we do not track, otherwise the
			// provider keeps retrying them.
			r.metrics.IncrWebhook(string(provider), "ignored")
			r.logger.Debug("ignoring webhook event",
				zap.String("provider", string(provider)),
				zap.String("type", ignored.Type))
			return nil
		}
		r.metrics.IncrWebhook(string(provider), "unparseable")
		return err
	}
	span.SetAttributes(
		attribute.String("webhook.reference", event.Reference),
		attribute.String("webhook.status", string(event.Status)),
	)

	unlock := r.lockReference(string(provider) + ":" + event.Reference)
	defer unlock()

	tx, err := r.transactions.GetTransactionByReference(ctx, provider, event.Reference)
	if err != nil {
		r.metrics.IncrWebhook(string(provider), "unknown_reference")
		r.logger.Warn("webhook for unknown transaction",
			zap.String("provider", string(provider)),
			zap.String("reference", event.Reference))
		return err
	}

	// Redelivery of a settled callback: acknowledge without touching
	// state and without re-queuing the confirmation.
	if tx.Status.Terminal() {
		r.metrics.IncrWebhook(string(provider), "duplicate")
		r.logger.Info("ignoring webhook for terminal transaction",
			zap.String("transaction_id", tx.ID),
			zap.String("status", string(tx.Status)))
		return nil
	}

	if err := r.transactions.UpdateTransaction(ctx, tx.ID, map[string]any{
		"status": string(event.Status),
	}); err != nil {
		r.metrics.IncrWebhook(string(provider), "error")
		return err
	}
	tx.Status = event.Status

	if event.Status == domain.TxCompleted {
		if err := r.completeOrder(ctx, tx); err != nil {
			r.metrics.IncrWebhook(string(provider), "error")
			return err
		}
	} else {
		r.appendTranscript(tx, "Le paiement n'a pas abouti. Vous pouvez réessayer ou choisir un autre moyen de paiement.")
	}

	r.publishStatus(ctx, tx)
	r.metrics.IncrWebhook(string(provider), "applied")
	return nil
}

// completeOrder marks the order paid and fires the success side
// effects. Notification failures never roll payment state back.
func (r *Reconciler) completeOrder(ctx context.Context, tx *domain.PaymentTransaction) error {
	if err := r.orders.UpdateOrderStatus(ctx, tx.OrderID, domain.OrderStatusPaid); err != nil {
		return err
	}

	r.appendTranscript(tx, "Paiement reçu! Votre commande est confirmée. Merci pour votre achat.")

	order, err := r.orders.GetOrder(ctx, tx.OrderID)
	if err != nil {
		r.logger.Warn("order fetch failed after payment, skipping confirmation",
			zap.String("order_id", tx.OrderID), zap.Error(err))
		return nil
	}
	order.Status = domain.OrderStatusPaid

	r.queue.Enqueue(order)

	if err := r.events.Publish(ctx, &domain.OutboundEvent{
		Kind:        domain.EventOrderConfirmed,
		OrderID:     order.ID,
		StoreID:     order.StoreID,
		Order:       order,
		Transaction: tx,
		At:          time.Now(),
	}); err != nil {
		r.logger.Warn("order event publish failed",
			zap.String("order_id", order.ID), zap.Error(err))
	}
	return nil
}

// appendTranscript records the outcome in the chat session, when one
// is attached and still alive.
func (r *Reconciler) appendTranscript(tx *domain.PaymentTransaction, text string) {
	if tx.SessionID == "" {
		return
	}
	err := r.sessions.WithLock(tx.SessionID, func(session *domain.ConversationSession) error {
		session.AppendMessage("assistant", text, time.Now())
		if tx.Status == domain.TxCompleted {
			session.CurrentStep = domain.StepOrderConfirmed
		}
		r.sessions.Persist(session)
		return nil
	})
	if err != nil {
		r.logger.Debug("transcript append skipped",
			zap.String("session_id", tx.SessionID), zap.Error(err))
	}
}

func (r *Reconciler) publishStatus(ctx context.Context, tx *domain.PaymentTransaction) {
	statusEvent := domain.PaymentStatusEvent{
		OrderID:       tx.OrderID,
		TransactionID: tx.ID,
		Provider:      tx.Provider,
		Status:        tx.Status,
		At:            time.Now(),
	}
	r.realtime.Publish(tx.OrderID, statusEvent)

	if err := r.events.Publish(ctx, &domain.OutboundEvent{
		Kind:        domain.EventPaymentStatus,
		OrderID:     tx.OrderID,
		Transaction: tx,
		At:          statusEvent.At,
	}); err != nil {
		r.logger.Warn("payment status event publish failed",
			zap.String("order_id", tx.OrderID), zap.Error(err))
	}
}
