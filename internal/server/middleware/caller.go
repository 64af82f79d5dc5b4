package middleware

import (
	"context"
	"net/http"

	"github.com/jordancj7/folio/internal/core/engine"
)

type callerKeyContextKey struct{}

// CallerKey resolves the rate limit key for each request and stores it in the
// request context. Forwarding headers are read only from trusted proxies; with
// none configured the TCP peer address decides.
func CallerKey(strategy engine.KeyStrategy, proxies *engine.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strategy.CallerKey(proxies.ClientAddress(r.RemoteAddr, r.Header))
			ctx := context.WithValue(r.Context(), callerKeyContextKey{}, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCallerKey returns the caller key for the request, or engine.GlobalKey
// when the middleware did not run.
func GetCallerKey(ctx context.Context) string {
	if key, ok := ctx.Value(callerKeyContextKey{}).(string); ok && key != "" {
		return key
	}
	return engine.GlobalKey
}
