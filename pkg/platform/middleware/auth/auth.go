// Package auth provides bearer-token authentication middleware.
//
// The transport layer authenticates callers; authorization (owner or admin
// checks) is a ledger rule and lives in the registry service.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "datamarket/pkg/domain"
	"datamarket/pkg/requestcontext"
)

// Verifier validates a bearer token and returns the caller account.
type Verifier interface {
	Verify(tokenString string) (id.AccountID, error)
}

// HMACVerifier validates HS256 tokens whose subject claim carries the
// caller's wallet principal.
type HMACVerifier struct {
	signingKey []byte
}

func NewHMACVerifier(signingKey string) *HMACVerifier {
	return &HMACVerifier{signingKey: []byte(signingKey)}
}

func (v *HMACVerifier) Verify(tokenString string) (id.AccountID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("token subject: %w", err)
	}
	return id.ParseAccountID(subject)
}

// RequireAuth rejects requests without a valid bearer token and injects the
// caller account into the request context.
func RequireAuth(verifier Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			authHeader := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || tokenString == "" {
				writeUnauthorized(w, "bearer token required")
				return
			}

			caller, err := verifier.Verify(tokenString)
			if err != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "token verification failed",
					"request_id", requestcontext.RequestID(ctx),
					"error", err.Error(),
				)
				writeUnauthorized(w, "invalid token")
				return
			}

			ctx := requestcontext.WithCaller(r.Context(), caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = fmt.Fprintf(w, `{"error":"unauthorized","error_description":%q}`, description)
}
