package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var adminTracer = otel.Tracer("service/admin")

// Admin authenticates back-office operators and serves the read-side
// admin queries.
type Admin struct {
	operators port.OperatorStore
	orders    port.OrderStore
	sessions  *Sessions
	jwtSecret []byte
	accessTTL time.Duration
	logger    *zap.Logger
}

// NewAdmin creates the back-office service.
func NewAdmin(operators port.OperatorStore, orders port.OrderStore, sessions *Sessions, jwtSecret string, accessTTL time.Duration, logger *zap.Logger) *Admin {
	return &Admin{
		operators: operators,
		orders:    orders,
		sessions:  sessions,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
		logger:    logger,
	}
}

// Login checks the operator's credentials and issues a bearer token.
func (a *Admin) Login(ctx context.Context, req *domain.AdminLoginRequest) (*domain.AdminLoginResponse, error) {
	ctx, span := adminTracer.Start(ctx, "Admin.Login")
	defer span.End()
	span.SetAttributes(attribute.String("operator.email", req.Email))

	operator, err := a.operators.GetOperatorByEmail(ctx, req.Email)
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return nil, &domain.ErrUnauthorized{Message: "Identifiants invalides"}
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(operator.PasswordHash), []byte(req.Password)); err != nil {
		a.logger.Warn("admin login rejected", zap.String("email", req.Email))
		return nil, &domain.ErrUnauthorized{Message: "Identifiants invalides"}
	}

	expiresAt := time.Now().Add(a.accessTTL)
	token, err := a.signToken(operator, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	a.logger.Info("operator logged in",
		zap.String("operator_id", operator.ID),
		zap.String("role", operator.Role))

	return &domain.AdminLoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		Operator:    operator,
	}, nil
}

// ListOrders returns the store's orders, optionally filtered by status.
func (a *Admin) ListOrders(ctx context.Context, storeID, status string, page, pageSize int) ([]domain.Order, error) {
	ctx, span := adminTracer.Start(ctx, "Admin.ListOrders")
	defer span.End()

	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	if page < 1 {
		page = 1
	}
	return a.orders.ListOrders(ctx, storeID, status, page, pageSize)
}

// InspectSession returns a conversation session for support purposes.
func (a *Admin) InspectSession(ctx context.Context, sessionID string) (*domain.ConversationSession, error) {
	ctx, span := adminTracer.Start(ctx, "Admin.InspectSession")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	return a.sessions.Get(ctx, sessionID)
}

// AdminClaims are the custom claims of back-office tokens.
type AdminClaims struct {
	Sub     string `json:"sub"`
	Role    string `json:"role"`
	StoreID string `json:"store_id"`
	jwt.RegisteredClaims
}

func (a *Admin) signToken(operator *domain.Operator, expiresAt time.Time) (string, error) {
	claims := AdminClaims{
		Sub:     operator.ID,
		Role:    operator.Role,
		StoreID: operator.StoreID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "boutik-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

// ValidateToken checks an admin bearer token and returns its claims.
func (a *Admin) ValidateToken(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "Token invalide ou expiré"}
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "Token invalide"}
	}
	return claims, nil
}
