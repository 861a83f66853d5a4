package handler

import (
	"net/http"
	"strconv"

	"github.com/boutikcards/chat-commerce-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// 4. Delivery zones
// ============================================================

// validateCityHandler answers GET /v1/zones/validate?city=&amount=.
// The verdict is always 200; an unserved city is a business answer,
// not an error.
func validateCityHandler(zones *service.Zones, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/zones/validate")
		defer span.End()

		city := r.URL.Query().Get("city")
		if city == "" {
			writeError(w, http.StatusBadRequest, "city is required")
			return
		}

		var amount float64
		if v := r.URL.Query().Get("amount"); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusBadRequest, "amount must be a non-negative number")
				return
			}
			amount = parsed
		}

		verdict := zones.ValidateCity(ctx, city, amount)
		writeJSON(w, http.StatusOK, verdict)
	}
}
