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
// Back-office operators (implements port.OperatorStore)
// ============================================================

type operatorRow struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	Role         string `json:"role"`
	StoreID      string `json:"store_id"`
	CreatedAt    string `json:"created_at"`
}

// GetOperatorByEmail fetches a back-office operator by email address.
func (c *Client) GetOperatorByEmail(ctx context.Context, email string) (*domain.Operator, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetOperatorByEmail")
	defer span.End()
	span.SetAttributes(attribute.String("operator.email", email))

	var op *domain.Operator

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("operators?email=eq.%s&limit=1", url.QueryEscape(email))
			body, err := c.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}
			if body == nil || string(body) == "[]" {
				return &domain.ErrNotFound{Resource: "operator", ID: email}
			}

			var rows []operatorRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode operator: %w", err)
			}
			if len(rows) == 0 {
				return &domain.ErrNotFound{Resource: "operator", ID: email}
			}

			r := rows[0]
			op = &domain.Operator{
				ID:           r.ID,
				Email:        r.Email,
				PasswordHash: r.PasswordHash,
				Role:         r.Role,
				StoreID:      r.StoreID,
			}
			if t, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
				op.CreatedAt = t
			}
			return nil
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/operators", Err: err}
	}
	return op, nil
}
