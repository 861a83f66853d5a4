// Package payment implements one adapter per payment provider behind
// the port.PaymentAdapter interface: Stripe hosted checkout for card,
// Bictorys for Wave and Orange Money, and a synchronous cash adapter
// for pay-on-delivery.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("infra/payment")

const stripeAPIURL = "https://api.stripe.com/v1"

// StripeConfig holds the adapter's settings.
type StripeConfig struct {
	// APIBaseURL defaults to the public Stripe API.
	APIBaseURL    string
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string

	// EURRate converts the storefront currency (XOF) to EUR, the
	// settlement currency. MinAmountEUR is the processor floor after
	// conversion.
	EURRate      float64
	MinAmountEUR float64
}

// StripeAdapter creates hosted checkout sessions and authenticates
// checkout.session.completed webhooks.
type StripeAdapter struct {
	httpClient *http.Client
	cfg        StripeConfig
	cb         *gobreaker.CircuitBreaker
	rcfg       resilience.Config
	now        func() time.Time
}

// NewStripeAdapter creates a new StripeAdapter.
func NewStripeAdapter(httpClient *http.Client, cfg StripeConfig, cb *gobreaker.CircuitBreaker, rcfg resilience.Config) *StripeAdapter {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = stripeAPIURL
	}
	return &StripeAdapter{
		httpClient: httpClient,
		cfg:        cfg,
		cb:         cb,
		rcfg:       rcfg,
		now:        time.Now,
	}
}

// Provider returns the provider this adapter handles.
func (a *StripeAdapter) Provider() domain.PaymentProvider {
	return domain.ProviderStripe
}

// ConvertToEUR converts an XOF amount to euro cents, rounded up so the
// merchant never undercharges on conversion.
func (a *StripeAdapter) ConvertToEUR(amountXOF float64) (cents int64, eur float64) {
	eur = amountXOF / a.cfg.EURRate
	cents = int64(math.Ceil(eur * 100))
	return cents, float64(cents) / 100
}

type stripeSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Initiate creates a Stripe Checkout session for the order and returns
// its hosted payment page URL.
func (a *StripeAdapter) Initiate(ctx context.Context, req *domain.PaymentRequest) (*domain.ProviderCharge, error) {
	ctx, span := tracer.Start(ctx, "StripeAdapter.Initiate")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.Float64("payment.amount", req.Amount),
	)

	cents, eur := a.ConvertToEUR(req.Amount)
	if eur < a.cfg.MinAmountEUR {
		return nil, &domain.ErrValidation{
			Field:   "amount",
			Message: fmt.Sprintf("montant trop faible pour un paiement par carte (minimum %.2f EUR)", a.cfg.MinAmountEUR),
		}
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", a.cfg.SuccessURL)
	form.Set("cancel_url", a.cfg.CancelURL)
	form.Set("line_items[0][price_data][currency]", "eur")
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(cents, 10))
	form.Set("line_items[0][price_data][product_data][name]", fmt.Sprintf("Commande %s", req.OrderID))
	form.Set("line_items[0][quantity]", "1")
	form.Set("metadata[orderId]", req.OrderID)
	form.Set("metadata[amountXOF]", strconv.FormatFloat(req.Amount, 'f', 0, 64))
	if req.Customer.Email != "" {
		form.Set("customer_email", req.Customer.Email)
	}

	var session stripeSession

	_, err := a.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, a.rcfg, func() error {
			endpoint := a.cfg.APIBaseURL + "/checkout/sessions"
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
			if err != nil {
				return err
			}
			httpReq.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
			httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			resp, err := a.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
				return fmt.Errorf("stripe returned status %d: %s", resp.StatusCode, string(body))
			}

			return json.NewDecoder(resp.Body).Decode(&session)
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "stripe", Err: err}
	}

	return &domain.ProviderCharge{
		Reference:   session.ID,
		CheckoutURL: session.URL,
	}, nil
}

// stripeSignatureTolerance bounds the age of an accepted webhook.
const stripeSignatureTolerance = 5 * time.Minute

// VerifyWebhookSignature checks the Stripe-Signature header
// ("t=<unix>,v1=<hmac>,...") against the payload. Expected signature is
// HMAC-SHA256 over "<t>.<payload>" keyed with the webhook secret.
func (a *StripeAdapter) VerifyWebhookSignature(payload []byte, signature string) bool {
	if a.cfg.WebhookSecret == "" || signature == "" {
		return false
	}

	var ts string
	var candidates []string
	for _, part := range strings.Split(signature, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			candidates = append(candidates, v)
		}
	}
	if ts == "" || len(candidates) == 0 {
		return false
	}

	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if age := a.now().Sub(time.Unix(sec, 0)); age > stripeSignatureTolerance || age < -stripeSignatureTolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			return true
		}
	}
	return false
}

type stripeWebhookPayload struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string `json:"id"`
			PaymentStatus string `json:"payment_status"`
			AmountTotal   int64  `json:"amount_total"`
			Currency      string `json:"currency"`
			Metadata      struct {
				OrderID   string `json:"orderId"`
				AmountXOF string `json:"amountXOF"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ParseWebhook decodes a Stripe event into the provider-agnostic form.
// Only checkout session events are meaningful; anything else returns
// ErrEventIgnored so the caller can acknowledge and skip it.
func (a *StripeAdapter) ParseWebhook(payload []byte) (*domain.WebhookEvent, error) {
	var event stripeWebhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, &domain.ErrValidation{Field: "payload", Message: "corps d'événement Stripe illisible"}
	}

	var status domain.TransactionStatus
	switch event.Type {
	case "checkout.session.completed":
		status = domain.TxCompleted
		if event.Data.Object.PaymentStatus == "unpaid" {
			status = domain.TxFailed
		}
	case "checkout.session.expired":
		status = domain.TxExpired
	case "checkout.session.async_payment_failed":
		status = domain.TxFailed
	default:
		return nil, &domain.ErrEventIgnored{Type: event.Type}
	}

	obj := event.Data.Object

	// Report the original XOF amount when the metadata carries it; the
	// session total is in euro cents.
	amount := float64(obj.AmountTotal) / 100
	currency := strings.ToUpper(obj.Currency)
	if xof, err := strconv.ParseFloat(obj.Metadata.AmountXOF, 64); err == nil && xof > 0 {
		amount = xof
		currency = "XOF"
	}

	return &domain.WebhookEvent{
		Provider:  domain.ProviderStripe,
		Reference: obj.ID,
		OrderID:   obj.Metadata.OrderID,
		Status:    status,
		Amount:    amount,
		Currency:  currency,
	}, nil
}
