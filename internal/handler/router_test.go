package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boutikcards/chat-commerce-go/internal/config"
	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/handler"
	"github.com/boutikcards/chat-commerce-go/internal/infra/cache"
	"github.com/boutikcards/chat-commerce-go/internal/infra/observability"
	"github.com/boutikcards/chat-commerce-go/internal/infra/realtime"
	"github.com/boutikcards/chat-commerce-go/internal/intent"
	"github.com/boutikcards/chat-commerce-go/internal/notify"
	"github.com/boutikcards/chat-commerce-go/internal/port"
	"github.com/boutikcards/chat-commerce-go/internal/service"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// --- In-memory store fakes ---

type fakeStore struct {
	mu           sync.Mutex
	sessions     map[string]*domain.ConversationSession
	orders       map[string]*domain.Order
	transactions map[string]*domain.PaymentTransaction
	operators    map[string]*domain.Operator
	nextOrder    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:     make(map[string]*domain.ConversationSession),
		orders:       make(map[string]*domain.Order),
		transactions: make(map[string]*domain.PaymentTransaction),
		operators:    make(map[string]*domain.Operator),
	}
}

func (f *fakeStore) GetSession(_ context.Context, id string) (*domain.ConversationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		return s, nil
	}
	return nil, &domain.ErrNotFound{Resource: "session", ID: id}
}

func (f *fakeStore) UpsertSession(_ context.Context, s *domain.ConversationSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
	return nil
}

func (f *fakeStore) CreateOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextOrder++
	saved := *order
	saved.ID = fmt.Sprintf("ord-%d", f.nextOrder)
	f.orders[saved.ID] = &saved
	return &saved, nil
}

func (f *fakeStore) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[id]; ok {
		return o, nil
	}
	return nil, &domain.ErrNotFound{Resource: "order", ID: id}
}

func (f *fakeStore) UpdateOrderStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[id]; ok {
		o.Status = status
		return nil
	}
	return &domain.ErrNotFound{Resource: "order", ID: id}
}

func (f *fakeStore) ListOrders(_ context.Context, storeID, status string, _, _ int) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Order, 0, len(f.orders))
	for _, o := range f.orders {
		if storeID != "" && o.StoreID != storeID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeStore) CreateTransaction(_ context.Context, tx *domain.PaymentTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactions[tx.ID] = tx
	return nil
}

func (f *fakeStore) GetTransaction(_ context.Context, id string) (*domain.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx, ok := f.transactions[id]; ok {
		return tx, nil
	}
	return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
}

func (f *fakeStore) GetTransactionByReference(_ context.Context, provider domain.PaymentProvider, reference string) (*domain.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.transactions {
		if tx.Provider == provider && tx.Reference == reference {
			return tx, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "transaction", ID: reference}
}

func (f *fakeStore) GetPendingTransaction(_ context.Context, orderID string) (*domain.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.transactions {
		if tx.OrderID == orderID && tx.Status == domain.TxPending {
			return tx, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "transaction", ID: orderID}
}

func (f *fakeStore) UpdateTransaction(_ context.Context, id string, updates map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.transactions[id]
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

func (f *fakeStore) ListActiveZones(_ context.Context) ([]domain.DeliveryZone, error) {
	return []domain.DeliveryZone{
		{Name: "Dakar", Cities: []string{"Dakar"}, Cost: 0, Active: true},
		{Name: "Thiès", Cities: []string{"Thiès"}, Cost: 2500, Active: true},
	}, nil
}

func (f *fakeStore) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	return &domain.Product{ID: id, StoreID: "store-1", Name: "Jeu de 54 cartes", Price: 5000, Active: true}, nil
}

func (f *fakeStore) GetOperatorByEmail(_ context.Context, email string) (*domain.Operator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if op, ok := f.operators[email]; ok {
		return op, nil
	}
	return nil, &domain.ErrNotFound{Resource: "operator", ID: email}
}

type fakeAdapter struct {
	provider domain.PaymentProvider
	sigOK    bool
	event    *domain.WebhookEvent
}

func (a *fakeAdapter) Provider() domain.PaymentProvider { return a.provider }

func (a *fakeAdapter) Initiate(_ context.Context, _ *domain.PaymentRequest) (*domain.ProviderCharge, error) {
	return &domain.ProviderCharge{Reference: "ch_test", QRCode: "wave://pay/ch_test"}, nil
}

func (a *fakeAdapter) VerifyWebhookSignature(_ []byte, signature string) bool {
	return a.sigOK && signature != ""
}

func (a *fakeAdapter) ParseWebhook(_ []byte) (*domain.WebhookEvent, error) {
	return a.event, nil
}

type fakeCompleter struct{}

func (fakeCompleter) Complete(_ context.Context, _ *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	return nil, &domain.ErrTimeout{Operation: "completion"}
}

type fakeNotifier struct{}

func (fakeNotifier) SendOrderConfirmation(_ context.Context, _ *domain.Order) error { return nil }

type fakeEvents struct{}

func (fakeEvents) Publish(_ context.Context, _ *domain.OutboundEvent) error { return nil }
func (fakeEvents) Close()                                                   {}

// --- Fixture ---

type routerFixture struct {
	router   http.Handler
	store    *fakeStore
	sessions *service.Sessions
	queue    *notify.Queue
	adapter  *fakeAdapter
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	store := newFakeStore()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	store.operators["ops@boutik.cards"] = &domain.Operator{
		ID: "op-1", Email: "ops@boutik.cards", PasswordHash: string(hash),
		Role: "admin", StoreID: "store-1",
	}

	taxonomy := config.DefaultTaxonomy()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	adapter := &fakeAdapter{
		provider: domain.ProviderWave,
		sigOK:    true,
		event: &domain.WebhookEvent{
			Provider: domain.ProviderWave, Reference: "ch_test", Status: domain.TxCompleted,
		},
	}

	sessions := service.NewSessions(store, time.Hour, logger)
	t.Cleanup(sessions.Close)

	zones := service.NewZones(store, cache.New[[]domain.DeliveryZone](time.Minute), taxonomy, "XOF", metrics, logger)
	payments := service.NewPayments([]port.PaymentAdapter{adapter}, store, store, metrics, logger)
	conv := service.NewConversation(sessions, zones, intent.NewAnalyzer(taxonomy),
		payments, store, store, fakeCompleter{}, metrics, logger, "XOF")

	hub := realtime.NewHub(logger)
	queue := notify.NewQueue(fakeNotifier{}, logger)
	t.Cleanup(queue.Close)

	reconciler := service.NewReconciler(payments, store, store, sessions,
		hub, queue, fakeEvents{}, metrics, logger)
	adminSvc := service.NewAdmin(store, store, sessions, "test-secret", time.Hour, logger)

	router := handler.NewRouter(conv, reconciler, payments, zones, adminSvc,
		sessions, hub, metrics, logger)

	return &routerFixture{router: router, store: store, sessions: sessions, queue: queue, adapter: adapter}
}

func (f *routerFixture) do(method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// --- Tests ---

func TestOperationalEndpoints(t *testing.T) {
	f := newRouterFixture(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/ping"} {
		rec := f.do(http.MethodGet, path, nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestChatEvents_RevivesPersistedSession(t *testing.T) {
	f := newRouterFixture(t)

	// A persisted row without a live in-memory entry, as after the
	// idle eviction sweep.
	f.store.sessions["sess-idle"] = &domain.ConversationSession{
		ID:          "sess-idle",
		StoreID:     "store-1",
		ProductID:   "prod-1",
		CurrentStep: domain.StepProductEngagement,
	}

	rec := f.do(http.MethodGet, "/v1/chat/sessions/sess-idle/events", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a revived session without a payment, got %d: %s",
			rec.Code, rec.Body.String())
	}

	rec = f.do(http.MethodGet, "/v1/chat/sessions/sess-unknown/events", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown session, got %d", rec.Code)
	}
}

func TestChatMessage(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/v1/chat/message", domain.ChatRequest{
		StoreID: "store-1", ProductID: "prod-1", Message: "bonjour",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var reply domain.Reply
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.SessionID == "" {
		t.Error("expected a session id on the reply")
	}
	if reply.Step != domain.StepProductEngagement {
		t.Errorf("expected product_engagement, got %s", reply.Step)
	}
}

func TestChatMessage_BadRequests(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/v1/chat/message", domain.ChatRequest{
		StoreID: "store-1", ProductID: "prod-1",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty message: expected 400, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/message", strings.NewReader("{not json"))
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rec.Code)
	}
}

func TestValidateZone(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/v1/zones/validate?city=Dakar&amount=5000", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var verdict domain.CityValidation
	if err := json.Unmarshal(rec.Body.Bytes(), &verdict); err != nil {
		t.Fatalf("decode verdict: %v", err)
	}
	if !verdict.IsDeliverable || !verdict.IsFreeDelivery {
		t.Errorf("expected free delivery in Dakar, got %+v", verdict)
	}

	rec = f.do(http.MethodGet, "/v1/zones/validate", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing city: expected 400, got %d", rec.Code)
	}
}

func TestWebhook_Lifecycle(t *testing.T) {
	f := newRouterFixture(t)

	f.store.orders["ord-1"] = &domain.Order{ID: "ord-1", StoreID: "store-1", Status: domain.OrderStatusDraft}
	f.store.transactions["tx-1"] = &domain.PaymentTransaction{
		ID: "tx-1", OrderID: "ord-1", Provider: domain.ProviderWave,
		Reference: "ch_test", Status: domain.TxPending,
	}

	// Missing signature header fails verification.
	rec := f.do(http.MethodPost, "/v1/webhooks/wave", map[string]string{"status": "succeeded"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unsigned webhook: expected 401, got %d", rec.Code)
	}

	rec = f.do(http.MethodPost, "/v1/webhooks/wave", map[string]string{"status": "succeeded"},
		map[string]string{"X-Bictorys-Signature": "deadbeef"})
	if rec.Code != http.StatusOK {
		t.Fatalf("signed webhook: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "received") {
		t.Errorf("expected acknowledgement body, got %s", rec.Body.String())
	}

	if f.store.orders["ord-1"].Status != domain.OrderStatusPaid {
		t.Errorf("expected the order paid, got %s", f.store.orders["ord-1"].Status)
	}

	// Redelivery is acknowledged without side effects.
	rec = f.do(http.MethodPost, "/v1/webhooks/wave", map[string]string{"status": "succeeded"},
		map[string]string{"X-Bictorys-Signature": "deadbeef"})
	if rec.Code != http.StatusOK {
		t.Errorf("redelivery: expected 200, got %d", rec.Code)
	}
}

func TestWebhook_UnknownProvider(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/v1/webhooks/paypal", map[string]string{}, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestAdmin_LoginAndListOrders(t *testing.T) {
	f := newRouterFixture(t)
	f.store.orders["ord-1"] = &domain.Order{ID: "ord-1", StoreID: "store-1", Status: domain.OrderStatusPaid}

	rec := f.do(http.MethodPost, "/v1/admin/login", domain.AdminLoginRequest{
		Email: "ops@boutik.cards", Password: "s3cret",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var login domain.AdminLoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if login.AccessToken == "" {
		t.Fatal("expected an access token")
	}

	rec = f.do(http.MethodGet, "/v1/admin/orders", nil,
		map[string]string{"Authorization": "Bearer " + login.AccessToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("list orders: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "ord-1") {
		t.Errorf("expected the store's order in the listing, got %s", rec.Body.String())
	}
}

func TestAdmin_RejectsWrongCredentialsAndMissingToken(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/v1/admin/login", domain.AdminLoginRequest{
		Email: "ops@boutik.cards", Password: "wrong",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: expected 401, got %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/v1/admin/orders", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: expected 401, got %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/v1/admin/orders", nil,
		map[string]string{"Authorization": "Bearer not-a-token"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: expected 401, got %d", rec.Code)
	}
}

func TestAdmin_ManualVerify(t *testing.T) {
	f := newRouterFixture(t)

	f.store.orders["ord-1"] = &domain.Order{ID: "ord-1", StoreID: "store-1", Status: domain.OrderStatusPending}
	f.store.transactions["tx-1"] = &domain.PaymentTransaction{
		ID: "tx-1", OrderID: "ord-1", Provider: domain.ProviderCash, Status: domain.TxPending,
	}

	rec := f.do(http.MethodPost, "/v1/admin/login", domain.AdminLoginRequest{
		Email: "ops@boutik.cards", Password: "s3cret",
	}, nil)
	var login domain.AdminLoginResponse
	json.Unmarshal(rec.Body.Bytes(), &login)

	rec = f.do(http.MethodPost, "/v1/admin/payments/tx-1/verify",
		map[string]string{"status": "COMPLETED"},
		map[string]string{"Authorization": "Bearer " + login.AccessToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.store.orders["ord-1"].Status != domain.OrderStatusPaid {
		t.Errorf("expected the order paid after manual verification, got %s", f.store.orders["ord-1"].Status)
	}
}

func TestPaymentInitiate(t *testing.T) {
	f := newRouterFixture(t)
	f.store.orders["ord-1"] = &domain.Order{ID: "ord-1", StoreID: "store-1", Status: domain.OrderStatusPending}

	rec := f.do(http.MethodPost, "/v1/payments/initiate", domain.PaymentRequest{
		Provider: domain.ProviderWave, OrderID: "ord-1", Amount: 5000, Currency: "XOF",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result domain.PaymentResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Success || result.QRCode == "" {
		t.Errorf("expected a successful initiation with a QR code, got %+v", result)
	}
}
