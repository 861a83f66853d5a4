// Package port defines the interfaces between the services and their
// collaborators (store, payment providers, text generation, realtime
// push, notifications). Services depend on these, never on concrete
// infra types, so tests can substitute fakes.
package port

import (
	"context"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
)

// ============================================================
// Data store
// ============================================================

// SessionStore persists conversation sessions (write-behind shadow of
// the in-memory tier). Sessions are never hard-deleted.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*domain.ConversationSession, error)
	UpsertSession(ctx context.Context, session *domain.ConversationSession) error
}

// OrderStore persists orders.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string) error
	ListOrders(ctx context.Context, storeID, status string, page, pageSize int) ([]domain.Order, error)
}

// TransactionStore persists payment transactions.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *domain.PaymentTransaction) error
	GetTransaction(ctx context.Context, id string) (*domain.PaymentTransaction, error)
	GetTransactionByReference(ctx context.Context, provider domain.PaymentProvider, reference string) (*domain.PaymentTransaction, error)
	GetPendingTransaction(ctx context.Context, orderID string) (*domain.PaymentTransaction, error)
	UpdateTransaction(ctx context.Context, id string, updates map[string]any) error
}

// ZoneStore reads the configured delivery zones.
type ZoneStore interface {
	ListActiveZones(ctx context.Context) ([]domain.DeliveryZone, error)
}

// ProductStore reads product records.
type ProductStore interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
}

// OperatorStore reads back-office operator credentials.
type OperatorStore interface {
	GetOperatorByEmail(ctx context.Context, email string) (*domain.Operator, error)
}

// ============================================================
// Payment providers
// ============================================================

// PaymentAdapter is implemented once per provider. Initiate contacts
// the provider (or not, for cash); the webhook pair authenticates and
// decodes asynchronous callbacks.
type PaymentAdapter interface {
	Provider() domain.PaymentProvider
	Initiate(ctx context.Context, req *domain.PaymentRequest) (*domain.ProviderCharge, error)
	VerifyWebhookSignature(payload []byte, signature string) bool
	ParseWebhook(payload []byte) (*domain.WebhookEvent, error)
}

// ============================================================
// Text generation
// ============================================================

// Completer is the black-box text-generation service used to enrich
// assistant replies. Control flow never depends on its output.
type Completer interface {
	Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error)
}

// ============================================================
// Realtime & notifications
// ============================================================

// RealtimePublisher pushes payment-status events to open chat sessions.
type RealtimePublisher interface {
	Publish(orderID string, event domain.PaymentStatusEvent)
}

// Notifier delivers a single notification synchronously; queueing and
// retry policy live above it.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, order *domain.Order) error
}

// EventPublisher publishes outbound domain events (Kafka when
// configured, no-op otherwise).
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.OutboundEvent) error
	Close()
}

// ============================================================
// Cache
// ============================================================

// Cache is a generic TTL cache (see infra/cache for the in-memory
// implementation).
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
