package handler

import (
	"encoding/json"
	"net/http"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// 2. Payments
// ============================================================

// initiatePaymentHandler lets a client restart payment for an existing
// order outside the chat flow (e.g. the checkout page's "try another
// method" button). The result carries a user-safe error on failure, so
// the response is 200 either way.
func initiatePaymentHandler(payments *service.Payments, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/payments/initiate")
		defer span.End()

		var req domain.PaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.OrderID == "" {
			writeError(w, http.StatusBadRequest, "order_id is required")
			return
		}
		if _, ok := domain.ParseProvider(string(req.Provider)); !ok {
			writeError(w, http.StatusBadRequest, "unknown payment provider")
			return
		}

		result := payments.Initiate(ctx, &req)
		if !result.Success {
			logger.Info("payment initiation declined",
				zap.String("order_id", req.OrderID),
				zap.String("provider", string(req.Provider)))
		}
		writeJSON(w, http.StatusOK, result)
	}
}
