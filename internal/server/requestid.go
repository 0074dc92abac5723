package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// requestIDKey identifies the request ID in a request context.
type requestIDKey struct{}

// RequestIDMiddleware assigns each request a fresh UUID, stores it in the
// context, and echoes it in the X-Request-ID response header so callers
// can correlate logs with responses.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID assigned by RequestIDMiddleware, or
// an empty string if the middleware isn't present.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
