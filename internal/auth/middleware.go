package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/datawise/datawise/internal/observability"
)

type identityContextKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}

// ClientFromContext returns the authenticated client name, or "" for
// unauthenticated requests.
func ClientFromContext(ctx context.Context) string {
	identity, _ := IdentityFromContext(ctx)
	return identity.Client
}

// Middleware rejects requests without a valid X-API-Key or bearer token and
// stores the resolved identity in the request context.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	logger = observability.LoggerOrDiscard(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key, ok := requestAPIKey(r)
			if !ok {
				rejectRequest(w, r, "missing API key")
				return
			}
			identity, valid := validator.Validate(ctx, key)
			if !valid {
				logger.WarnContext(ctx, "api key rejected",
					slog.String("trace_id", observability.TraceIDFromContext(ctx)),
					slog.String("path", r.URL.Path),
					slog.String("key_hint", maskKey(key)),
				)
				rejectRequest(w, r, "invalid API key")
				return
			}
			logger.DebugContext(ctx, "request authenticated", slog.String("client", identity.Client))
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

// requestAPIKey prefers X-API-Key over an Authorization bearer token.
func requestAPIKey(r *http.Request) (string, bool) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, true
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:2] + "****" + key[len(key)-2:]
}

func rejectRequest(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="datawise"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": "UNAUTHORIZED",
		"message":    message,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
