package domain

import "time"

// ============================================================
// Payment providers and transaction states
// ============================================================

// PaymentProvider identifies which adapter handles a payment.
type PaymentProvider string

const (
	ProviderStripe      PaymentProvider = "STRIPE"
	ProviderWave        PaymentProvider = "WAVE"
	ProviderOrangeMoney PaymentProvider = "ORANGE_MONEY"
	ProviderCash        PaymentProvider = "CASH"
)

// ParseProvider maps the wire value (case-insensitive variants included)
// to a PaymentProvider.
func ParseProvider(s string) (PaymentProvider, bool) {
	switch s {
	case "STRIPE", "stripe", "card", "carte":
		return ProviderStripe, true
	case "WAVE", "wave":
		return ProviderWave, true
	case "ORANGE_MONEY", "orange_money", "orange money", "om":
		return ProviderOrangeMoney, true
	case "CASH", "cash", "espèces", "especes":
		return ProviderCash, true
	}
	return "", false
}

// TransactionStatus is the lifecycle state of a payment transaction.
// PENDING is the only non-terminal state.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxCompleted TransactionStatus = "COMPLETED"
	TxFailed    TransactionStatus = "FAILED"
	TxExpired   TransactionStatus = "EXPIRED"
)

// Terminal reports whether the status admits no further transitions.
func (s TransactionStatus) Terminal() bool {
	return s == TxCompleted || s == TxFailed || s == TxExpired
}

// PaymentTransaction is one payment attempt for an order. At most one
// PENDING transaction exists per order at any time; a new attempt
// supersedes (expires) the previous pending one.
type PaymentTransaction struct {
	ID        string            `json:"id"`
	OrderID   string            `json:"order_id"`
	SessionID string            `json:"session_id,omitempty"`
	Provider  PaymentProvider   `json:"provider"`
	Amount    float64           `json:"amount"`
	Currency  string            `json:"currency"`
	Status    TransactionStatus `json:"status"`

	// Reference is the provider-side identifier for the charge,
	// distinct from the internal ID.
	Reference string            `json:"reference,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ============================================================
// Dispatcher request/result shapes
// ============================================================

// PaymentRequest is the normalized input to the gateway dispatcher.
type PaymentRequest struct {
	Provider  PaymentProvider   `json:"provider"`
	Amount    float64           `json:"amount"`
	Currency  string            `json:"currency"`
	OrderID   string            `json:"order_id"`
	SessionID string            `json:"session_id,omitempty"`
	Customer  CustomerInfo      `json:"customer"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// PaymentResult is the normalized outcome of a payment initiation.
// Exactly one of CheckoutURL, QRCode or Instructions is set on success,
// depending on the provider.
type PaymentResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	CheckoutURL   string `json:"checkout_url,omitempty"`
	QRCode        string `json:"qr_code,omitempty"`
	Instructions  string `json:"instructions,omitempty"`
	Error         string `json:"error,omitempty"`
}

// ProviderCharge is what a provider adapter returns from Initiate.
type ProviderCharge struct {
	Reference    string
	CheckoutURL  string
	QRCode       string
	Instructions string
}

// WebhookEvent is the parsed, provider-agnostic form of a callback.
type WebhookEvent struct {
	Provider  PaymentProvider
	Reference string
	OrderID   string
	Status    TransactionStatus
	Amount    float64
	Currency  string
}

// PaymentStatusEvent is pushed to an open chat session when a
// transaction reaches a terminal state.
type PaymentStatusEvent struct {
	OrderID       string            `json:"order_id"`
	TransactionID string            `json:"transaction_id"`
	Provider      PaymentProvider   `json:"provider"`
	Status        TransactionStatus `json:"status"`
	At            time.Time         `json:"at"`
}
