package payment_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/infra/payment"
	"github.com/boutikcards/chat-commerce-go/internal/infra/resilience"
)

const testWebhookSecret = "whsec_test"

func newStripeAdapter(baseURL string) *payment.StripeAdapter {
	return payment.NewStripeAdapter(
		&http.Client{Timeout: 5 * time.Second},
		payment.StripeConfig{
			APIBaseURL:    baseURL,
			SecretKey:     "sk_test",
			WebhookSecret: testWebhookSecret,
			SuccessURL:    "https://example.com/ok",
			CancelURL:     "https://example.com/ko",
			EURRate:       655.957,
			MinAmountEUR:  0.50,
		},
		resilience.NewCircuitBreaker("stripe-test"),
		resilience.Config{MaxRetries: 0, InitialBackoff: time.Millisecond},
	)
}

func signPayload(payload []byte, ts int64) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeInitiate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/checkout/sessions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("metadata[orderId]"); got != "ord-1" {
			t.Errorf("expected metadata orderId 'ord-1', got '%s'", got)
		}
		// 10000 XOF / 655.957 = 15.2449... EUR, rounded up to 1525 cents.
		if got := r.PostForm.Get("line_items[0][price_data][unit_amount]"); got != "1525" {
			t.Errorf("expected 1525 cents, got '%s'", got)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"id":  "cs_test_123",
			"url": "https://checkout.stripe.com/pay/cs_test_123",
		})
	}))
	defer srv.Close()

	adapter := newStripeAdapter(srv.URL)
	charge, err := adapter.Initiate(context.Background(), &domain.PaymentRequest{
		OrderID:  "ord-1",
		Amount:   10000,
		Currency: "XOF",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if charge.Reference != "cs_test_123" {
		t.Errorf("expected reference 'cs_test_123', got '%s'", charge.Reference)
	}
	if charge.CheckoutURL == "" {
		t.Error("expected a checkout URL")
	}
}

func TestStripeInitiate_BelowMinimum(t *testing.T) {
	adapter := newStripeAdapter("http://unused")

	// 100 XOF is ~0.15 EUR, below the 0.50 EUR floor.
	_, err := adapter.Initiate(context.Background(), &domain.PaymentRequest{
		OrderID:  "ord-2",
		Amount:   100,
		Currency: "XOF",
	})

	var vErr *domain.ErrValidation
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestStripeInitiate_ProviderDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"down"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	adapter := newStripeAdapter(srv.URL)
	_, err := adapter.Initiate(context.Background(), &domain.PaymentRequest{
		OrderID:  "ord-3",
		Amount:   10000,
		Currency: "XOF",
	})

	var extErr *domain.ErrExternalService
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}

func TestStripeVerifyWebhookSignature(t *testing.T) {
	adapter := newStripeAdapter("http://unused")
	payload := []byte(`{"type":"checkout.session.completed"}`)

	valid := signPayload(payload, time.Now().Unix())
	if !adapter.VerifyWebhookSignature(payload, valid) {
		t.Error("expected a fresh, correctly signed payload to verify")
	}

	if adapter.VerifyWebhookSignature([]byte(`{"tampered":true}`), valid) {
		t.Error("expected a tampered payload to fail verification")
	}

	stale := signPayload(payload, time.Now().Add(-time.Hour).Unix())
	if adapter.VerifyWebhookSignature(payload, stale) {
		t.Error("expected a stale timestamp to fail verification")
	}

	if adapter.VerifyWebhookSignature(payload, "v1=deadbeef") {
		t.Error("expected a header without timestamp to fail verification")
	}
	if adapter.VerifyWebhookSignature(payload, "") {
		t.Error("expected an empty header to fail verification")
	}
}

func TestStripeParseWebhook(t *testing.T) {
	adapter := newStripeAdapter("http://unused")

	payload := []byte(`{
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_123",
			"payment_status": "paid",
			"amount_total": 1525,
			"currency": "eur",
			"metadata": {"orderId": "ord-1", "amountXOF": "10000"}
		}}
	}`)

	event, err := adapter.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if event.Status != domain.TxCompleted {
		t.Errorf("expected COMPLETED, got %s", event.Status)
	}
	if event.OrderID != "ord-1" {
		t.Errorf("expected order 'ord-1', got '%s'", event.OrderID)
	}
	if event.Amount != 10000 || event.Currency != "XOF" {
		t.Errorf("expected original 10000 XOF, got %f %s", event.Amount, event.Currency)
	}
}

func TestStripeParseWebhook_Expired(t *testing.T) {
	adapter := newStripeAdapter("http://unused")

	payload := []byte(`{"type":"checkout.session.expired","data":{"object":{"id":"cs_9","metadata":{"orderId":"ord-9"}}}}`)
	event, err := adapter.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if event.Status != domain.TxExpired {
		t.Errorf("expected EXPIRED, got %s", event.Status)
	}
}

func TestStripeParseWebhook_IgnoredType(t *testing.T) {
	adapter := newStripeAdapter("http://unused")

	_, err := adapter.ParseWebhook([]byte(`{"type":"invoice.paid","data":{"object":{}}}`))
	var ignored *domain.ErrEventIgnored
	if !errors.As(err, &ignored) {
		t.Fatalf("expected ErrEventIgnored for unrelated event type, got %v", err)
	}
	if ignored.Type != "invoice.paid" {
		t.Errorf("expected the ignored type on the error, got %q", ignored.Type)
	}
}

func TestConvertToEUR_RoundsUp(t *testing.T) {
	adapter := newStripeAdapter("http://unused")

	cases := []struct {
		xof   float64
		cents int64
	}{
		{655.957, 100},
		{10000, 1525},
		{500, 77},
	}
	for _, tc := range cases {
		cents, _ := adapter.ConvertToEUR(tc.xof)
		if cents != tc.cents {
			t.Errorf("ConvertToEUR(%s): expected %d cents, got %d",
				strconv.FormatFloat(tc.xof, 'f', -1, 64), tc.cents, cents)
		}
	}
}
