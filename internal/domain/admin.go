package domain

import "time"

// ============================================================
// Back-office operators
// ============================================================

// Operator is a store operator allowed into the back-office API.
type Operator struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"` // "admin", "support"
	StoreID      string    `json:"store_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// AdminLoginRequest is the body of POST /v1/admin/login.
type AdminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AdminLoginResponse carries the issued bearer token.
type AdminLoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Operator    *Operator `json:"operator"`
}

// ============================================================
// Outbound events (Kafka, optional)
// ============================================================

// Event kinds published to the events topic.
const (
	EventOrderConfirmed = "order.confirmed"
	EventPaymentStatus  = "payment.status"
)

// OutboundEvent is the event-carried-state payload published when an
// order is confirmed or a payment reaches a terminal state. It contains
// everything a consumer needs, no callback required.
type OutboundEvent struct {
	Kind        string              `json:"kind"`
	OrderID     string              `json:"order_id"`
	StoreID     string              `json:"store_id,omitempty"`
	Order       *Order              `json:"order,omitempty"`
	Transaction *PaymentTransaction `json:"transaction,omitempty"`
	At          time.Time           `json:"at"`
}
