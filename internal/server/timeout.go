package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds each request's context by timeout. It does not
// forcibly terminate the handler; handlers observe the deadline through
// ctx.Done(), which is how the synchronous build path detects that it ran
// too long.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
