package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
)

// --- Store mocks ---

type mockZoneStore struct {
	zones []domain.DeliveryZone
	err   error
	calls int
}

func (m *mockZoneStore) ListActiveZones(_ context.Context) ([]domain.DeliveryZone, error) {
	m.calls++
	return m.zones, m.err
}

type mockSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.ConversationSession
	upserts  int
	err      error
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: make(map[string]*domain.ConversationSession)}
}

func (m *mockSessionStore) GetSession(_ context.Context, id string) (*domain.ConversationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, &domain.ErrNotFound{Resource: "session", ID: id}
}

func (m *mockSessionStore) UpsertSession(_ context.Context, s *domain.ConversationSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.err != nil {
		return m.err
	}
	m.sessions[s.ID] = s
	return nil
}

type mockOrderStore struct {
	mu        sync.Mutex
	orders    map[string]*domain.Order
	created   int
	createErr error
	statusErr error
	statuses  map[string][]string
}

func newMockOrderStore() *mockOrderStore {
	return &mockOrderStore{
		orders:   make(map[string]*domain.Order),
		statuses: make(map[string][]string),
	}
}

func (m *mockOrderStore) CreateOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created++
	saved := *order
	saved.ID = fmt.Sprintf("ord-%d", m.created)
	m.orders[saved.ID] = &saved
	return &saved, nil
}

func (m *mockOrderStore) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		return o, nil
	}
	return nil, &domain.ErrNotFound{Resource: "order", ID: id}
}

func (m *mockOrderStore) UpdateOrderStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusErr != nil {
		return m.statusErr
	}
	m.statuses[id] = append(m.statuses[id], status)
	if o, ok := m.orders[id]; ok {
		o.Status = status
	}
	return nil
}

func (m *mockOrderStore) ListOrders(_ context.Context, _, _ string, _, _ int) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, nil
}

type mockTransactionStore struct {
	mu           sync.Mutex
	transactions map[string]*domain.PaymentTransaction
	createErr    error
	updateErr    error
	updateDelay  time.Duration // simulates a slow write, widening races
}

func newMockTransactionStore() *mockTransactionStore {
	return &mockTransactionStore{transactions: make(map[string]*domain.PaymentTransaction)}
}

func (m *mockTransactionStore) CreateTransaction(_ context.Context, tx *domain.PaymentTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	saved := *tx
	m.transactions[tx.ID] = &saved
	return nil
}

func (m *mockTransactionStore) GetTransaction(_ context.Context, id string) (*domain.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx, ok := m.transactions[id]; ok {
		copied := *tx
		return &copied, nil
	}
	return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
}

func (m *mockTransactionStore) GetTransactionByReference(_ context.Context, provider domain.PaymentProvider, reference string) (*domain.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.transactions {
		if tx.Provider == provider && tx.Reference == reference {
			copied := *tx
			return &copied, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "transaction", ID: reference}
}

func (m *mockTransactionStore) GetPendingTransaction(_ context.Context, orderID string) (*domain.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.transactions {
		if tx.OrderID == orderID && tx.Status == domain.TxPending {
			copied := *tx
			return &copied, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "transaction", ID: orderID}
}

func (m *mockTransactionStore) UpdateTransaction(_ context.Context, id string, updates map[string]any) error {
	if m.updateDelay > 0 {
		time.Sleep(m.updateDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	tx, ok := m.transactions[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	if status, ok := updates["status"].(string); ok {
		tx.Status = domain.TransactionStatus(status)
	}
	if reference, ok := updates["reference"].(string); ok {
		tx.Reference = reference
	}
	return nil
}

func (m *mockTransactionStore) pendingCount(orderID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, tx := range m.transactions {
		if tx.OrderID == orderID && tx.Status == domain.TxPending {
			n++
		}
	}
	return n
}

type mockProductStore struct {
	product *domain.Product
	err     error
}

func (m *mockProductStore) GetProduct(_ context.Context, _ string) (*domain.Product, error) {
	return m.product, m.err
}

// --- Collaborator mocks ---

type mockAdapter struct {
	provider  domain.PaymentProvider
	charge    *domain.ProviderCharge
	err       error
	sigOK     bool
	event     *domain.WebhookEvent
	parseErr  error
	initiated int
}

func (m *mockAdapter) Provider() domain.PaymentProvider { return m.provider }

func (m *mockAdapter) Initiate(_ context.Context, _ *domain.PaymentRequest) (*domain.ProviderCharge, error) {
	m.initiated++
	return m.charge, m.err
}

func (m *mockAdapter) VerifyWebhookSignature(_ []byte, _ string) bool { return m.sigOK }

func (m *mockAdapter) ParseWebhook(_ []byte) (*domain.WebhookEvent, error) {
	return m.event, m.parseErr
}

type mockCompleter struct {
	resp *domain.CompletionResponse
	err  error
}

func (m *mockCompleter) Complete(_ context.Context, _ *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	return m.resp, m.err
}

type mockRealtime struct {
	mu     sync.Mutex
	events []domain.PaymentStatusEvent
}

func (m *mockRealtime) Publish(_ string, event domain.PaymentStatusEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockRealtime) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *mockNotifier) SendOrderConfirmation(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, order.ID)
	return m.err
}

func (m *mockNotifier) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockEvents struct {
	mu        sync.Mutex
	published []*domain.OutboundEvent
}

func (m *mockEvents) Publish(_ context.Context, event *domain.OutboundEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, event)
	return nil
}

func (m *mockEvents) Close() {}

func (m *mockEvents) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.published))
	for _, e := range m.published {
		out = append(out, e.Kind)
	}
	return out
}
