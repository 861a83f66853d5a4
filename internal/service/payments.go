package service

import (
	"context"
	"errors"
	"time"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/infra/observability"
	"github.com/boutikcards/chat-commerce-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var payTracer = otel.Tracer("service/payments")

// Payments routes payment requests to the matching provider adapter
// and owns the PaymentTransaction lifecycle around initiation.
type Payments struct {
	adapters     map[domain.PaymentProvider]port.PaymentAdapter
	transactions port.TransactionStore
	orders       port.OrderStore
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// NewPayments creates the dispatcher over the given adapters.
func NewPayments(adapters []port.PaymentAdapter, transactions port.TransactionStore, orders port.OrderStore, metrics *observability.Metrics, logger *zap.Logger) *Payments {
	byProvider := make(map[domain.PaymentProvider]port.PaymentAdapter, len(adapters))
	for _, a := range adapters {
		byProvider[a.Provider()] = a
	}
	return &Payments{
		adapters:     byProvider,
		transactions: transactions,
		orders:       orders,
		metrics:      metrics,
		logger:       logger,
	}
}

// Adapter returns the adapter for a provider, if registered.
func (p *Payments) Adapter(provider domain.PaymentProvider) (port.PaymentAdapter, bool) {
	a, ok := p.adapters[provider]
	return a, ok
}

// userSafeError maps an initiation failure to display copy. Raw
// provider payloads are logged, never shown.
func userSafeError(provider domain.PaymentProvider, err error) string {
	var vErr *domain.ErrValidation
	if errors.As(err, &vErr) {
		return vErr.Message
	}
	var declined *domain.ErrPaymentDeclined
	if errors.As(err, &declined) {
		return "Le paiement a été refusé. Veuillez réessayer ou choisir un autre moyen de paiement."
	}
	switch provider {
	case domain.ProviderWave:
		return "Wave est momentanément indisponible. Veuillez réessayer dans quelques instants."
	case domain.ProviderOrangeMoney:
		return "Orange Money est momentanément indisponible. Veuillez réessayer dans quelques instants."
	case domain.ProviderStripe:
		return "Le paiement par carte est momentanément indisponible. Veuillez réessayer."
	}
	return "Le paiement n'a pas pu être initié. Veuillez réessayer."
}

// Initiate records a PENDING transaction, calls the provider and
// returns the normalized result. The row is written before the
// provider call so an early webhook always finds it; on failure the
// row is marked FAILED so no stale PENDING remains. A prior pending
// attempt for the same order is superseded (EXPIRED) first.
func (p *Payments) Initiate(ctx context.Context, req *domain.PaymentRequest) *domain.PaymentResult {
	ctx, span := payTracer.Start(ctx, "Payments.Initiate")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.provider", string(req.Provider)),
		attribute.String("order.id", req.OrderID),
		attribute.Float64("payment.amount", req.Amount),
	)

	adapter, ok := p.adapters[req.Provider]
	if !ok {
		p.metrics.IncrPaymentInitiation(string(req.Provider), "unsupported")
		return &domain.PaymentResult{Success: false, Error: "Moyen de paiement non pris en charge."}
	}

	if err := p.supersedePending(ctx, req.OrderID); err != nil {
		p.metrics.IncrPaymentInitiation(string(req.Provider), "error")
		p.logger.Error("failed to supersede pending transaction",
			zap.String("order_id", req.OrderID), zap.Error(err))
		return &domain.PaymentResult{Success: false, Error: userSafeError(req.Provider, err)}
	}

	now := time.Now()
	tx := &domain.PaymentTransaction{
		ID:        uuid.NewString(),
		OrderID:   req.OrderID,
		SessionID: req.SessionID,
		Provider:  req.Provider,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Status:    domain.TxPending,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.transactions.CreateTransaction(ctx, tx); err != nil {
		p.metrics.IncrPaymentInitiation(string(req.Provider), "error")
		p.logger.Error("failed to record pending transaction",
			zap.String("order_id", req.OrderID), zap.Error(err))
		return &domain.PaymentResult{Success: false, Error: userSafeError(req.Provider, err)}
	}

	charge, err := adapter.Initiate(ctx, req)
	if err != nil {
		p.metrics.IncrPaymentInitiation(string(req.Provider), "failure")
		p.logger.Error("payment initiation failed",
			zap.String("order_id", req.OrderID),
			zap.String("provider", string(req.Provider)),
			zap.Error(err))

		// Close the row so the single-PENDING invariant holds for the
		// next attempt.
		if updErr := p.transactions.UpdateTransaction(ctx, tx.ID, map[string]any{
			"status": string(domain.TxFailed),
		}); updErr != nil {
			p.logger.Error("failed to mark transaction failed",
				zap.String("transaction_id", tx.ID), zap.Error(updErr))
		}
		return &domain.PaymentResult{Success: false, Error: userSafeError(req.Provider, err)}
	}

	if err := p.transactions.UpdateTransaction(ctx, tx.ID, map[string]any{
		"reference": charge.Reference,
	}); err != nil {
		p.logger.Warn("failed to attach provider reference",
			zap.String("transaction_id", tx.ID), zap.Error(err))
	}

	// Cash completes synchronously: no webhook will ever arrive.
	if req.Provider == domain.ProviderCash {
		if err := p.transactions.UpdateTransaction(ctx, tx.ID, map[string]any{
			"status": string(domain.TxCompleted),
		}); err != nil {
			p.logger.Error("failed to complete cash transaction",
				zap.String("transaction_id", tx.ID), zap.Error(err))
		}
		if err := p.orders.UpdateOrderStatus(ctx, req.OrderID, domain.OrderStatusPending); err != nil {
			p.logger.Error("failed to mark cash order pending delivery",
				zap.String("order_id", req.OrderID), zap.Error(err))
		}
	}

	p.metrics.IncrPaymentInitiation(string(req.Provider), "success")
	return &domain.PaymentResult{
		Success:       true,
		TransactionID: tx.ID,
		CheckoutURL:   charge.CheckoutURL,
		QRCode:        charge.QRCode,
		Instructions:  charge.Instructions,
	}
}

// supersedePending expires the order's pending transaction, if any.
func (p *Payments) supersedePending(ctx context.Context, orderID string) error {
	pending, err := p.transactions.GetPendingTransaction(ctx, orderID)
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}

	p.logger.Info("superseding pending transaction",
		zap.String("order_id", orderID),
		zap.String("transaction_id", pending.ID))
	return p.transactions.UpdateTransaction(ctx, pending.ID, map[string]any{
		"status": string(domain.TxExpired),
	})
}

// ManualVerify transitions a transaction to a terminal state by
// operator decision (cash collection confirmed, provider console
// checked). Terminal transactions are immutable.
func (p *Payments) ManualVerify(ctx context.Context, transactionID string, status domain.TransactionStatus) (*domain.PaymentTransaction, error) {
	ctx, span := payTracer.Start(ctx, "Payments.ManualVerify")
	defer span.End()
	span.SetAttributes(
		attribute.String("transaction.id", transactionID),
		attribute.String("transaction.status", string(status)),
	)

	if !status.Terminal() {
		return nil, &domain.ErrValidation{Field: "status", Message: "manual verification must set a terminal status"}
	}

	tx, err := p.transactions.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.Status.Terminal() {
		return nil, &domain.ErrConflict{Message: "transaction already in a terminal state"}
	}

	if err := p.transactions.UpdateTransaction(ctx, tx.ID, map[string]any{
		"status": string(status),
	}); err != nil {
		return nil, err
	}
	tx.Status = status

	if status == domain.TxCompleted {
		if err := p.orders.UpdateOrderStatus(ctx, tx.OrderID, domain.OrderStatusPaid); err != nil {
			p.logger.Error("failed to mark order paid after manual verification",
				zap.String("order_id", tx.OrderID), zap.Error(err))
		}
	}
	return tx, nil
}
