package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/boutikcards/chat-commerce-go/internal/service"

	"go.uber.org/zap"
)

type contextKey string

const operatorKey contextKey = "operator"

// AdminAuthMiddleware validates Bearer tokens on the back-office routes
// and injects the operator claims into the request context.
func AdminAuthMiddleware(adminSvc *service.Admin, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Token d'authentification manquant")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Format de token invalide")
				return
			}

			claims, err := adminSvc.ValidateToken(parts[1])
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorFromContext extracts the authenticated operator claims.
func OperatorFromContext(ctx context.Context) (*service.AdminClaims, bool) {
	claims, ok := ctx.Value(operatorKey).(*service.AdminClaims)
	return claims, ok
}
