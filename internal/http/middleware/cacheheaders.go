package middleware

import (
	"fmt"
	"net/http"
)

// CacheHeaders marks GET responses as publicly cacheable for maxAge seconds,
// with a stale-while-revalidate grace. Non-GET requests pass through
// untouched. Vary is set so caches key on the negotiated encoding.
func CacheHeaders(maxAge, staleWhileRevalidate int) func(http.Handler) http.Handler {
	value := fmt.Sprintf("public, max-age=%d, stale-while-revalidate=%d", maxAge, staleWhileRevalidate)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				w.Header().Set("Cache-Control", value)
				w.Header().Add("Vary", "Accept-Encoding")
			}
			next.ServeHTTP(w, r)
		})
	}
}
