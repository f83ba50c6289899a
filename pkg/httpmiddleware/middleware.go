// Package httpmiddleware contains the net/http middleware chain of the
// storefront server: panic recovery, request ids, logging, telemetry,
// rate limiting and CORS for the admin API.
package httpmiddleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Wrap applies middlewares to h. The first middleware is the outermost.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Routes installs an empty chi routing context before the router runs, so
// middleware outside the router can read the matched pattern afterwards
// with RoutePattern.
func Routes() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if chi.RouteContext(r.Context()) == nil {
				ctx := context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext())
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RoutePattern returns the chi pattern that served r, or "" before routing
// or when nothing matched.
func RoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}
