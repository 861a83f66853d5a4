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
// Orders (implements port.OrderStore)
// ============================================================

// orderRow maps the orders table. Older rows carry the legacy flat
// customer columns (customer_name, customer_city, ...) instead of the
// items/customer JSON documents; toDomain normalizes both shapes so the
// rest of the code only ever sees domain.Order.
type orderRow struct {
	ID           string          `json:"id"`
	StoreID      string          `json:"store_id"`
	SessionID    string          `json:"session_id"`
	Status       string          `json:"status"`
	Currency     string          `json:"currency"`
	Items        json.RawMessage `json:"items"`
	Customer     json.RawMessage `json:"customer"`
	Subtotal     float64         `json:"subtotal"`
	DeliveryCost float64         `json:"delivery_cost"`
	Total        float64         `json:"total"`
	ZoneName     string          `json:"zone_name"`
	CreatedAt    string          `json:"created_at"`

	// Legacy columns, populated on rows written before the schema move.
	LegacyCustomerName  string `json:"customer_name,omitempty"`
	LegacyCustomerCity  string `json:"customer_city,omitempty"`
	LegacyCustomerPhone string `json:"customer_phone,omitempty"`
}

func (r *orderRow) toDomain() (*domain.Order, error) {
	o := &domain.Order{
		ID:           r.ID,
		StoreID:      r.StoreID,
		SessionID:    r.SessionID,
		Status:       r.Status,
		Currency:     r.Currency,
		Subtotal:     r.Subtotal,
		DeliveryCost: r.DeliveryCost,
		Total:        r.Total,
		ZoneName:     r.ZoneName,
	}
	if t, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
		o.CreatedAt = t
	}
	if len(r.Items) > 0 {
		if err := json.Unmarshal(r.Items, &o.Items); err != nil {
			return nil, fmt.Errorf("failed to decode order items: %w", err)
		}
	}
	if len(r.Customer) > 0 && string(r.Customer) != "null" {
		if err := json.Unmarshal(r.Customer, &o.Customer); err != nil {
			return nil, fmt.Errorf("failed to decode order customer: %w", err)
		}
	} else if r.LegacyCustomerName != "" {
		o.Customer = domain.CustomerInfo{
			FirstName: r.LegacyCustomerName,
			City:      r.LegacyCustomerCity,
			Phone:     r.LegacyCustomerPhone,
		}
	}
	return o, nil
}

// CreateOrder inserts a new order and returns the stored row.
func (c *Client) CreateOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.session_id", order.SessionID))

	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order items: %w", err)
	}
	customer, err := json.Marshal(order.Customer)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order customer: %w", err)
	}

	var created *domain.Order

	_, err = c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.doPost(ctx, "orders", map[string]any{
				"id":            order.ID,
				"store_id":      order.StoreID,
				"session_id":    order.SessionID,
				"status":        order.Status,
				"currency":      order.Currency,
				"items":         json.RawMessage(items),
				"customer":      json.RawMessage(customer),
				"subtotal":      order.Subtotal,
				"delivery_cost": order.DeliveryCost,
				"total":         order.Total,
				"zone_name":     order.ZoneName,
				"created_at":    order.CreatedAt.Format(time.RFC3339),
			})
			if err != nil {
				return err
			}

			var rows []orderRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode created order: %w", err)
			}
			if len(rows) == 0 {
				return fmt.Errorf("orders insert returned no row")
			}
			created, err = rows[0].toDomain()
			return err
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/orders", Err: err}
	}
	return created, nil
}

// GetOrder fetches one order by id.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	var order *domain.Order

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("orders?id=eq.%s&limit=1", url.QueryEscape(orderID))
			body, err := c.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}
			if body == nil || string(body) == "[]" {
				return &domain.ErrNotFound{Resource: "order", ID: orderID}
			}

			var rows []orderRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode order: %w", err)
			}
			if len(rows) == 0 {
				return &domain.ErrNotFound{Resource: "order", ID: orderID}
			}
			order, err = rows[0].toDomain()
			return err
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/orders", Err: err}
	}
	return order, nil
}

// UpdateOrderStatus patches the status column.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateOrderStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status", status),
	)

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("orders?id=eq.%s", url.QueryEscape(orderID))
			return c.doPatch(ctx, path, map[string]any{
				"status":     status,
				"updated_at": time.Now().Format(time.RFC3339),
			})
		})
	})

	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/orders", Err: err}
	}
	return nil
}

// ListOrders returns orders for a store, newest first, optionally
// filtered by status.
func (c *Client) ListOrders(ctx context.Context, storeID, status string, page, pageSize int) ([]domain.Order, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListOrders")
	defer span.End()
	span.SetAttributes(attribute.String("store.id", storeID))

	var orders []domain.Order

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			offset := (page - 1) * pageSize
			path := fmt.Sprintf("orders?store_id=eq.%s&order=created_at.desc&limit=%d&offset=%d",
				url.QueryEscape(storeID), pageSize, offset)
			if status != "" {
				path += fmt.Sprintf("&status=eq.%s", url.QueryEscape(status))
			}

			body, err := c.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}
			if body == nil || string(body) == "[]" {
				orders = []domain.Order{}
				return nil
			}

			var rows []orderRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode orders: %w", err)
			}

			orders = make([]domain.Order, 0, len(rows))
			for i := range rows {
				o, err := rows[i].toDomain()
				if err != nil {
					return err
				}
				orders = append(orders, *o)
			}
			return nil
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/orders", Err: err}
	}
	return orders, nil
}
