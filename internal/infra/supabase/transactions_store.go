package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Payment transactions (implements port.TransactionStore)
// ============================================================

type transactionRow struct {
	ID        string            `json:"id"`
	OrderID   string            `json:"order_id"`
	SessionID string            `json:"session_id"`
	Provider  string            `json:"provider"`
	Amount    float64           `json:"amount"`
	Currency  string            `json:"currency"`
	Status    string            `json:"status"`
	Reference string            `json:"reference"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
}

func (r *transactionRow) toDomain() *domain.PaymentTransaction {
	tx := &domain.PaymentTransaction{
		ID:        r.ID,
		OrderID:   r.OrderID,
		SessionID: r.SessionID,
		Provider:  domain.PaymentProvider(r.Provider),
		Amount:    r.Amount,
		Currency:  r.Currency,
		Status:    domain.TransactionStatus(r.Status),
		Reference: r.Reference,
		Metadata:  r.Metadata,
	}
	if t, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
		tx.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, r.UpdatedAt); err == nil {
		tx.UpdatedAt = t
	}
	return tx
}

// CreateTransaction inserts a new payment transaction row.
func (c *Client) CreateTransaction(ctx context.Context, tx *domain.PaymentTransaction) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("transaction.id", tx.ID),
		attribute.String("transaction.provider", string(tx.Provider)),
	)

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			_, err := c.doPost(ctx, "payment_transactions", map[string]any{
				"id":         tx.ID,
				"order_id":   tx.OrderID,
				"session_id": tx.SessionID,
				"provider":   string(tx.Provider),
				"amount":     tx.Amount,
				"currency":   tx.Currency,
				"status":     string(tx.Status),
				"reference":  tx.Reference,
				"metadata":   tx.Metadata,
				"created_at": tx.CreatedAt.Format(time.RFC3339),
				"updated_at": tx.UpdatedAt.Format(time.RFC3339),
			})
			return err
		})
	})

	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/transactions", Err: err}
	}
	return nil
}

func (c *Client) getTransactionWhere(ctx context.Context, filter string) (*domain.PaymentTransaction, error) {
	var tx *domain.PaymentTransaction

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("payment_transactions?%s&limit=1", filter)
			body, err := c.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}
			if body == nil || string(body) == "[]" {
				return &domain.ErrNotFound{Resource: "transaction", ID: filter}
			}

			var rows []transactionRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode transaction: %w", err)
			}
			if len(rows) == 0 {
				return &domain.ErrNotFound{Resource: "transaction", ID: filter}
			}
			tx = rows[0].toDomain()
			return nil
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/transactions", Err: err}
	}
	return tx, nil
}

// GetTransaction fetches one transaction by internal id.
func (c *Client) GetTransaction(ctx context.Context, id string) (*domain.PaymentTransaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	return c.getTransactionWhere(ctx, fmt.Sprintf("id=eq.%s", url.QueryEscape(id)))
}

// GetTransactionByReference fetches a transaction by its provider-side
// reference.
func (c *Client) GetTransactionByReference(ctx context.Context, provider domain.PaymentProvider, reference string) (*domain.PaymentTransaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetTransactionByReference")
	defer span.End()
	span.SetAttributes(
		attribute.String("transaction.provider", string(provider)),
		attribute.String("transaction.reference", reference),
	)

	filter := fmt.Sprintf("provider=eq.%s&reference=eq.%s",
		url.QueryEscape(string(provider)), url.QueryEscape(reference))
	return c.getTransactionWhere(ctx, filter)
}

// GetPendingTransaction returns the order's PENDING transaction, or
// ErrNotFound when none exists.
func (c *Client) GetPendingTransaction(ctx context.Context, orderID string) (*domain.PaymentTransaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetPendingTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	filter := fmt.Sprintf("order_id=eq.%s&status=eq.%s",
		url.QueryEscape(orderID), string(domain.TxPending))
	return c.getTransactionWhere(ctx, filter)
}

// UpdateTransaction patches a transaction row.
func (c *Client) UpdateTransaction(ctx context.Context, id string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().Format(time.RFC3339)
	}

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("payment_transactions?id=eq.%s", url.QueryEscape(id))
			return c.doPatch(ctx, path, updates)
		})
	})

	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/transactions", Err: err}
	}
	return nil
}
