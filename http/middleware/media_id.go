package middleware

import (
	"net/http"

	"github.com/leeforge/mediaedit/logging"
)

// MediaIDMiddleware tags the request context with the media id returned by
// param so every log line for the request carries media_id.
func MediaIDMiddleware(param func(*http.Request) string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := param(r); id != "" {
				r = r.WithContext(logging.SetMediaID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}
