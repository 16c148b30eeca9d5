package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meridianpay/gateway/internal/application"
	"github.com/meridianpay/gateway/internal/domain"
	"github.com/meridianpay/gateway/internal/interfaces/rest"
	"github.com/meridianpay/gateway/internal/tracing"
)

// APIKeyHeader carries a merchant API key. The alternative is a JWT bearer
// token whose subject is the merchant ID.
const APIKeyHeader = "X-API-Key"

type contextKey int

const merchantContextKey contextKey = 0

// MerchantFrom returns the authenticated merchant Auth stored on the context.
func MerchantFrom(ctx context.Context) (*domain.Merchant, bool) {
	m, ok := ctx.Value(merchantContextKey).(*domain.Merchant)
	return m, ok
}

// Auth authenticates merchant requests and puts the merchant on the request
// context. Both credential types resolve to a merchant row; a valid
// credential for a deactivated merchant is a 403, not a 401.
func Auth(merchants application.MerchantRepository, jwtSecret string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			merchant, err := authenticate(r, merchants, jwtSecret)
			if err != nil {
				rest.WriteError(w, r, err, logger)
				return
			}

			ctx := tracing.WithMerchantID(r.Context(), merchant.MerchantID)
			ctx = context.WithValue(ctx, merchantContextKey, merchant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, merchants application.MerchantRepository, jwtSecret string) (*domain.Merchant, error) {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return authenticateAPIKey(r, merchants, key)
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return authenticateJWT(r, merchants, jwtSecret, token)
	}
	return nil, application.NewUnauthenticatedError()
}

// authenticateAPIKey resolves the SHA-256 hash of the presented key. The
// lookup covers active merchants only, so a revoked key and an unknown key
// are indistinguishable on the wire.
func authenticateAPIKey(r *http.Request, merchants application.MerchantRepository, key string) (*domain.Merchant, error) {
	sum := sha256.Sum256([]byte(key))
	merchant, err := merchants.FindByAPIKeyHash(r.Context(), hex.EncodeToString(sum[:]))
	if err != nil {
		return nil, application.NewInternalError(fmt.Errorf("api key lookup: %w", err))
	}
	if merchant == nil {
		return nil, application.NewUnauthenticatedError()
	}
	return merchant, nil
}

func authenticateJWT(r *http.Request, merchants application.MerchantRepository, jwtSecret, token string) (*domain.Merchant, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, application.NewUnauthenticatedError()
	}

	merchant, err := merchants.FindByID(r.Context(), claims.Subject)
	if err != nil {
		return nil, application.NewInternalError(fmt.Errorf("merchant lookup: %w", err))
	}
	if merchant == nil {
		return nil, application.NewUnauthenticatedError()
	}
	if !merchant.Active {
		return nil, application.NewForbiddenError()
	}
	return merchant, nil
}
