package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	requestIDContextKey     contextKey = "request_id"
	identityTokenContextKey contextKey = "identity_token"
)

// RequestID tags every request with an id for tracing and captures the
// caller-supplied identity token, an opaque string the conversion service
// records on the job but never interprets.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDContextKey, requestID)
		if identity := r.Header.Get("X-Identity-Token"); identity != "" {
			ctx = context.WithValue(ctx, identityTokenContextKey, identity)
		}
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestID(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContextKey).(string)
	if value == "" {
		return "unknown"
	}
	return value
}

// GetIdentityToken returns the opaque caller identity, or "" when the
// request carried none.
func GetIdentityToken(ctx context.Context) string {
	value, _ := ctx.Value(identityTokenContextKey).(string)
	return value
}
