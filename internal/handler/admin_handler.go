package handler

import (
	"encoding/json"
	"net/http"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// 5. Back-office
// ============================================================

func adminLoginHandler(adminSvc *service.Admin, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/login")
		defer span.End()

		var req domain.AdminLoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}

		resp, err := adminSvc.Login(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// adminListOrdersHandler lists the operator's store orders, optionally
// filtered by status.
func adminListOrdersHandler(adminSvc *service.Admin, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/orders")
		defer span.End()

		claims, ok := OperatorFromContext(ctx)
		if !ok {
			writeError(w, http.StatusUnauthorized, "operator context missing")
			return
		}

		page, pageSize := parsePagination(r)
		status := r.URL.Query().Get("status")

		orders, err := adminSvc.ListOrders(ctx, claims.StoreID, status, page, pageSize)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"orders":    orders,
			"page":      page,
			"page_size": pageSize,
		})
	}
}

func adminSessionHandler(adminSvc *service.Admin, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/sessions/{sessionID}")
		defer span.End()

		session, err := adminSvc.InspectSession(ctx, chi.URLParam(r, "sessionID"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, session)
	}
}

func adminListZonesHandler(zones *service.Zones, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/zones")
		defer span.End()

		writeJSON(w, http.StatusOK, map[string]any{"zones": zones.ListZones(ctx)})
	}
}

func adminRefreshZonesHandler(zones *service.Zones, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /v1/admin/zones/refresh")
		defer span.End()

		zones.RefreshZones()
		logger.Info("zone cache invalidated by operator")
		writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
	}
}

type verifyPaymentRequest struct {
	Status domain.TransactionStatus `json:"status"`
}

// adminVerifyPaymentHandler settles a transaction by hand, typically a
// cash payment confirmed on delivery.
func adminVerifyPaymentHandler(payments *service.Payments, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/payments/{transactionID}/verify")
		defer span.End()

		var req verifyPaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		tx, err := payments.ManualVerify(ctx, chi.URLParam(r, "transactionID"), req.Status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, tx)
	}
}
