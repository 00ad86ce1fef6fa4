package middleware

import (
	"context"
	"net/http"
	"time"
)

type timingContextKey struct{}

// TimingMiddleware records the request start time so responses can report
// how long the request took.
func TimingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), timingContextKey{}, time.Now())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestDuration returns the milliseconds since the request started, or 0
// when TimingMiddleware did not run.
func GetRequestDuration(ctx context.Context) int64 {
	if start, ok := ctx.Value(timingContextKey{}).(time.Time); ok {
		return time.Since(start).Milliseconds()
	}
	return 0
}
