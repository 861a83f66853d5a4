package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/boutikcards/chat-commerce-go/internal/domain"

	"github.com/google/uuid"
)

// CashAdapter handles pay-on-delivery. There is no provider to call:
// Initiate mints a local reference and returns rider instructions, and
// no webhook ever arrives (the transaction completes when an operator
// confirms collection through the back office).
type CashAdapter struct{}

// NewCashAdapter creates a new CashAdapter.
func NewCashAdapter() *CashAdapter {
	return &CashAdapter{}
}

// Provider returns the provider this adapter handles.
func (a *CashAdapter) Provider() domain.PaymentProvider {
	return domain.ProviderCash
}

// Initiate returns synchronously with delivery instructions.
func (a *CashAdapter) Initiate(_ context.Context, req *domain.PaymentRequest) (*domain.ProviderCharge, error) {
	reference := "CASH-" + strings.ToUpper(uuid.NewString()[:8])

	return &domain.ProviderCharge{
		Reference: reference,
		Instructions: fmt.Sprintf(
			"Préparez %.0f %s en espèces. Le livreur encaissera à la livraison (référence %s).",
			req.Amount, req.Currency, reference),
	}, nil
}

// VerifyWebhookSignature always fails: cash has no webhook channel.
func (a *CashAdapter) VerifyWebhookSignature(_ []byte, _ string) bool {
	return false
}

// ParseWebhook always fails: cash has no webhook channel.
func (a *CashAdapter) ParseWebhook(_ []byte) (*domain.WebhookEvent, error) {
	return nil, &domain.ErrValidation{Field: "provider", Message: "le paiement en espèces ne reçoit pas de webhook"}
}
