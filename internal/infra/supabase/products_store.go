package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Products (implements port.ProductStore)
// ============================================================

// GetProduct fetches one product by id.
func (c *Client) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetProduct")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", id))

	var product *domain.Product

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("products?id=eq.%s&limit=1", url.QueryEscape(id))
			body, err := c.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}
			if body == nil || string(body) == "[]" {
				return &domain.ErrNotFound{Resource: "product", ID: id}
			}

			var rows []domain.Product
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode product: %w", err)
			}
			if len(rows) == 0 {
				return &domain.ErrNotFound{Resource: "product", ID: id}
			}
			product = &rows[0]
			return nil
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/products", Err: err}
	}
	return product, nil
}
