package handler

import (
	"io"
	"net/http"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// 3. Provider webhooks
// ============================================================

// maxWebhookBody caps callback payloads at 1 MiB.
const maxWebhookBody = 1 << 20

// signatureHeader returns the header each provider signs its callbacks
// with.
func signatureHeader(provider domain.PaymentProvider) string {
	switch provider {
	case domain.ProviderStripe:
		return "Stripe-Signature"
	case domain.ProviderWave, domain.ProviderOrangeMoney:
		return "X-Bictorys-Signature"
	}
	return ""
}

// webhookHandler receives asynchronous payment callbacks. Redelivered
// callbacks for settled transactions are acknowledged with 200 so the
// provider stops retrying.
func webhookHandler(reconciler *service.Reconciler, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/webhooks/{provider}")
		defer span.End()

		provider, ok := domain.ParseProvider(chi.URLParam(r, "provider"))
		if !ok {
			writeError(w, http.StatusNotFound, "unknown provider")
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable body")
			return
		}

		signature := r.Header.Get(signatureHeader(provider))
		if err := reconciler.HandleWebhook(ctx, provider, payload, signature); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}
