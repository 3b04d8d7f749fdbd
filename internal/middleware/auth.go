package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

type contextKey string

const ctxCallerKey contextKey = "caller"

// TokenValidator resolves a bearer token to the wallet address it was issued
// for. Satisfied by auth.Service.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (common.Address, error)
}

// AdminKeyLookup checks a hashed admin API key. Satisfied by
// *repository.AdminKeyRepo.
type AdminKeyLookup interface {
	IsActiveKeyHash(ctx context.Context, keyHash string) (bool, error)
}

// CallerAuth authenticates requests with the JWT issued at login and sets the
// caller's wallet address into request context. Every engine command is
// attributed to this address.
func CallerAuth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			addr, err := tokens.ValidateToken(r.Context(), raw)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), addr)))
		})
	}
}

// AdminAuth authenticates privileged endpoints (fee withdrawal, dispute
// resolution) by hashing the bearer token with SHA-256 and looking it up in
// admin_keys.
func AdminAuth(keys AdminKeyLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			ok, err := keys.IsActiveKeyHash(r.Context(), hashKey(raw))
			if err != nil || !ok {
				http.Error(w, `{"error":"invalid admin key"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CallerFromCtx returns the authenticated wallet address, or the zero address.
func CallerFromCtx(ctx context.Context) common.Address {
	addr, _ := ctx.Value(ctxCallerKey).(common.Address)
	return addr
}

// WithCaller returns a context carrying the given wallet address.
func WithCaller(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, ctxCallerKey, addr)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
