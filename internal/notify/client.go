// Package notify sends order confirmations through the external
// notification service. Deliveries go through a bounded in-process
// queue so a slow provider never blocks the checkout path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("notify")

// Client implements port.Notifier against the notification HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewClient creates a new notification Client.
func NewClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
	}
}

type confirmationPayload struct {
	Channel   string  `json:"channel"`
	Recipient string  `json:"recipient"`
	OrderID   string  `json:"order_id"`
	Total     float64 `json:"total"`
	Currency  string  `json:"currency"`
	Message   string  `json:"message"`
}

// SendOrderConfirmation notifies the customer that the order is
// confirmed. SMS to the phone on file; the message is French display
// copy.
func (c *Client) SendOrderConfirmation(ctx context.Context, order *domain.Order) error {
	ctx, span := tracer.Start(ctx, "Notify.SendOrderConfirmation")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", order.ID))

	payload := confirmationPayload{
		Channel:   "sms",
		Recipient: order.Customer.Phone,
		OrderID:   order.ID,
		Total:     order.Total,
		Currency:  order.Currency,
		Message: fmt.Sprintf("Votre commande %s est confirmée. Total: %.0f %s. Merci!",
			order.ID, order.Total, order.Currency),
	}

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := json.Marshal(payload)
			if err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/notifications", c.baseURL)
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			httpReq.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return fmt.Errorf("notification API returned status %d", resp.StatusCode)
			}
			return nil
		})
	})

	if err != nil {
		return &domain.ErrExternalService{Service: "notify", Err: err}
	}
	return nil
}
