package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
)

// BictorysConfig holds the aggregator's settings.
type BictorysConfig struct {
	BaseURL    string
	APIKey     string
	WebhookKey string
	SuccessURL string
}

// BictorysAdapter drives mobile-money payments (Wave, Orange Money)
// through the Bictorys aggregator. One instance exists per provider so
// the dispatcher stays uniform.
type BictorysAdapter struct {
	httpClient *http.Client
	cfg        BictorysConfig
	provider   domain.PaymentProvider
	cb         *gobreaker.CircuitBreaker
	rcfg       resilience.Config
}

// NewBictorysAdapter creates an adapter for one mobile-money provider.
// provider must be WAVE or ORANGE_MONEY.
func NewBictorysAdapter(httpClient *http.Client, cfg BictorysConfig, provider domain.PaymentProvider, cb *gobreaker.CircuitBreaker, rcfg resilience.Config) *BictorysAdapter {
	return &BictorysAdapter{
		httpClient: httpClient,
		cfg:        cfg,
		provider:   provider,
		cb:         cb,
		rcfg:       rcfg,
	}
}

// Provider returns the provider this adapter handles.
func (a *BictorysAdapter) Provider() domain.PaymentProvider {
	return a.provider
}

func (a *BictorysAdapter) paymentType() string {
	if a.provider == domain.ProviderOrangeMoney {
		return "orange_money"
	}
	return "wave"
}

type bictorysChargeRequest struct {
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	PaymentType   string  `json:"paymentType"`
	Reference     string  `json:"merchantReference"`
	CustomerPhone string  `json:"customerPhone"`
	CustomerName  string  `json:"customerName"`
	SuccessURL    string  `json:"successRedirectUrl,omitempty"`
}

type bictorysChargeResponse struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkoutUrl"`
	QRCode      string `json:"qrCode"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

// Initiate creates a mobile-money charge. Wave answers with a checkout
// URL (and usually a QR code); Orange Money with a redirect URL.
func (a *BictorysAdapter) Initiate(ctx context.Context, req *domain.PaymentRequest) (*domain.ProviderCharge, error) {
	ctx, span := tracer.Start(ctx, "BictorysAdapter.Initiate")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.String("payment.provider", string(a.provider)),
		attribute.Float64("payment.amount", req.Amount),
	)

	if req.Customer.Phone == "" {
		return nil, &domain.ErrValidation{Field: "phone", Message: "numéro de téléphone requis pour le paiement mobile"}
	}

	charge := bictorysChargeRequest{
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentType:   a.paymentType(),
		Reference:     req.OrderID,
		CustomerPhone: req.Customer.Phone,
		CustomerName:  strings.TrimSpace(req.Customer.FirstName + " " + req.Customer.LastName),
		SuccessURL:    a.cfg.SuccessURL,
	}

	var chargeResp bictorysChargeResponse

	_, err := a.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, a.rcfg, func() error {
			body, err := json.Marshal(charge)
			if err != nil {
				return err
			}

			endpoint := fmt.Sprintf("%s/pay/v1/charges", a.cfg.BaseURL)
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
			if err != nil {
				return err
			}
			httpReq.Header.Set("X-Api-Key", a.cfg.APIKey)
			httpReq.Header.Set("Content-Type", "application/json")

			resp, err := a.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
				return fmt.Errorf("bictorys returned status %d: %s", resp.StatusCode, string(raw))
			}

			return json.NewDecoder(resp.Body).Decode(&chargeResp)
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "bictorys", Err: err}
	}

	if chargeResp.Status == "failed" {
		return nil, &domain.ErrPaymentDeclined{Provider: string(a.provider), Reason: chargeResp.Message}
	}

	return &domain.ProviderCharge{
		Reference:   chargeResp.ID,
		CheckoutURL: chargeResp.CheckoutURL,
		QRCode:      chargeResp.QRCode,
	}, nil
}

// VerifyWebhookSignature checks the X-Bictorys-Signature header:
// hex-encoded HMAC-SHA256 over the raw payload keyed with the shared
// webhook secret.
func (a *BictorysAdapter) VerifyWebhookSignature(payload []byte, signature string) bool {
	if a.cfg.WebhookKey == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

type bictorysWebhookPayload struct {
	ID          string  `json:"id"`
	Reference   string  `json:"merchantReference"`
	PaymentType string  `json:"paymentType"`
	Status      string  `json:"status"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
}

// ParseWebhook decodes a Bictorys callback into the provider-agnostic
// form.
func (a *BictorysAdapter) ParseWebhook(payload []byte) (*domain.WebhookEvent, error) {
	var event bictorysWebhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, &domain.ErrValidation{Field: "payload", Message: "corps d'événement Bictorys illisible"}
	}

	var status domain.TransactionStatus
	switch strings.ToLower(event.Status) {
	case "succeeded", "success", "paid":
		status = domain.TxCompleted
	case "failed", "cancelled", "canceled":
		status = domain.TxFailed
	case "expired", "timedout":
		status = domain.TxExpired
	default:
		return nil, &domain.ErrEventIgnored{Type: event.Status}
	}

	return &domain.WebhookEvent{
		Provider:  a.provider,
		Reference: event.ID,
		OrderID:   event.Reference,
		Status:    status,
		Amount:    event.Amount,
		Currency:  strings.ToUpper(event.Currency),
	}, nil
}
