package domain

import (
	"math"
	"time"
)

// totalEpsilon absorbs float rounding when checking order arithmetic.
const totalEpsilon = 0.01

// OrderItem is one line of an order.
type OrderItem struct {
	ProductID  string  `json:"product_id"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	TotalPrice float64 `json:"total_price"`
}

// CustomerInfo is the buyer data collected during the conversation.
type CustomerInfo struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	City      string `json:"city"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
}

// Order statuses.
const (
	OrderStatusDraft     = "draft"
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"
)

// Order is the canonical order shape, built incrementally by the step
// machine and frozen once submitted. Legacy row variants are mapped to
// this shape at the persistence boundary only.
type Order struct {
	ID       string `json:"id,omitempty"`
	StoreID  string `json:"store_id"`
	Status   string `json:"status"`
	Currency string `json:"currency"`

	Items    []OrderItem  `json:"items"`
	Customer CustomerInfo `json:"customer"`

	Subtotal     float64 `json:"subtotal"`
	DeliveryCost float64 `json:"delivery_cost"`
	Total        float64 `json:"total"`
	ZoneName     string  `json:"zone_name,omitempty"`

	SessionID string    `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Recompute refreshes Subtotal and Total from the items and the current
// delivery cost. It must be called after every mutation of Items or
// DeliveryCost so that Total == Subtotal + DeliveryCost always holds.
func (o *Order) Recompute() {
	subtotal := 0.0
	for i := range o.Items {
		o.Items[i].TotalPrice = float64(o.Items[i].Quantity) * o.Items[i].UnitPrice
		subtotal += o.Items[i].TotalPrice
	}
	o.Subtotal = subtotal
	o.Total = o.Subtotal + o.DeliveryCost
}

// Validate checks the order invariants before it is persisted.
func (o *Order) Validate() error {
	if len(o.Items) == 0 {
		return &ErrValidation{Field: "items", Message: "order must contain at least one item"}
	}
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			return &ErrValidation{Field: "quantity", Message: "quantity must be positive"}
		}
		if item.UnitPrice < 0 {
			return &ErrValidation{Field: "unit_price", Message: "unit price must not be negative"}
		}
		if math.Abs(item.TotalPrice-float64(item.Quantity)*item.UnitPrice) > totalEpsilon {
			return &ErrValidation{Field: "total_price", Message: "line total does not match quantity * unit price"}
		}
	}
	if o.DeliveryCost < 0 {
		return &ErrValidation{Field: "delivery_cost", Message: "delivery cost must not be negative"}
	}
	if math.Abs(o.Total-(o.Subtotal+o.DeliveryCost)) > totalEpsilon {
		return &ErrValidation{Field: "total", Message: "total does not match subtotal + delivery cost"}
	}
	return nil
}

// Product is the read-side product record used for item selection.
type Product struct {
	ID       string  `json:"id"`
	StoreID  string  `json:"store_id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Stock    int     `json:"stock"`
	Active   bool    `json:"active"`
}
