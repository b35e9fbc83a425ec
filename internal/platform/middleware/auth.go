package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// TokenValidator defines the interface for validating register session tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*RegisterClaims, error)
}

// RegisterClaims represents the claims we expect from the token validator.
// CanFinalize is the explicit capability that gates the finalize action; the
// checkout core never reads ambient session state.
type RegisterClaims struct {
	OperatorID  string
	LocationID  string
	RegisterID  string
	CanFinalize bool
}

type contextKeyClaims struct{}

// ContextKeyClaims is exported for use in handlers.
var ContextKeyClaims = contextKeyClaims{}

// GetClaims retrieves the authenticated register claims from the context.
func GetClaims(ctx context.Context) *RegisterClaims {
	claims, ok := ctx.Value(ContextKeyClaims).(*RegisterClaims)
	if !ok {
		return nil
	}
	return claims
}

// RequireAuth validates the Bearer token and stores register claims in the
// request context for handlers downstream.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx = context.WithValue(ctx, ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"` + description + `"}`))
}
