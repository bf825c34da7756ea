// Package oidclyhttp provides net/http middleware for goOIDCly.
//
// On success, the oidcly.Result is stored in the request context and can be
// read with ResultFromContext. On failure, a 401 JSON response is returned
// with a generic body.
//
// Concurrency: All exported functions are safe for concurrent use.
package oidclyhttp

import (
	"context"
	"net/http"

	"github.com/keksclan/goOIDCly/adapters/common"
	"github.com/keksclan/goOIDCly/oidcly"
)

type contextKey struct{}

// ResultFromContext retrieves the oidcly.Result stored by the middleware.
// Returns nil if no result is present.
func ResultFromContext(ctx context.Context) *oidcly.Result {
	v, _ := ctx.Value(contextKey{}).(*oidcly.Result)
	return v
}

// Option configures the middleware.
type Option func(*options)

type options struct {
	common.AdapterOptions
}

// WithRequiredMetadata specifies header keys that must be present in
// incoming HTTP requests before authentication proceeds.
func WithRequiredMetadata(keys ...string) Option {
	return func(o *options) {
		o.RequiredMeta.Keys = keys
		o.RequiredMeta.Enabled = true
	}
}

// WithIdentityRequired rejects tokens without an extractable identity.
func WithIdentityRequired() Option {
	return func(o *options) {
		o.RequireIdentity = true
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type headerExtractor http.Header

func (h headerExtractor) Get(key string) (string, bool) {
	val := http.Header(h).Get(key)
	return val, val != ""
}

// Middleware returns middleware that authenticates requests with a.
func Middleware(a common.Authenticator, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := common.Authenticate(r.Context(), a, headerExtractor(r.Header), o.AdapterOptions)
			if err != nil {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, res)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(common.UnauthorizedBody))
}
