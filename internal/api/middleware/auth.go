package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sendmedown/bio-quantum-platform/internal/auth"
	"github.com/sendmedown/bio-quantum-platform/internal/crypto"
)

type contextKey string

const CredentialContextKey contextKey = "credential"

// BearerCredential pulls the bearer token out of the Authorization header and
// stores it on the request context. It makes no decision: the ledger gate
// authorizes every operation, so a missing or malformed header simply
// yields an empty credential that the gate will reject.
func BearerCredential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := ""
		if tok, err := auth.ExtractToken(r.Header.Get("Authorization")); err == nil {
			credential = tok
		} else if raw := strings.TrimSpace(r.Header.Get("Authorization")); raw != "" && !strings.Contains(raw, " ") {
			// Bare tokens without the scheme, as some older clients send.
			credential = raw
		}

		ctx := context.WithValue(r.Context(), CredentialContextKey, credential)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCredential returns the credential stored by BearerCredential.
func GetCredential(ctx context.Context) string {
	credential, _ := ctx.Value(CredentialContextKey).(string)
	return credential
}

// Error codes written by the middleware.
const (
	CodeRateLimited          = "RateLimited"
	CodeBlocked              = "Blocked"
	CodePayloadTooLarge      = "PayloadTooLarge"
	CodeUnsupportedMediaType = "UnsupportedMediaType"
	CodeMalformedMessage     = "MalformedMessage"
)

// jsonError writes the same error body the handlers use, with a fresh
// request ID.
func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":     message,
		"code":      code,
		"requestId": crypto.NewRequestID(),
	})
}
