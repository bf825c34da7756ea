// Package oidclyfasthttp provides a fasthttp middleware for goOIDCly.
//
// On success, the oidcly.Result is stored in the request context's user value
// under the key "oidcly". On failure, a 401 response is returned.
//
// Concurrency: All exported functions are safe for concurrent use.
package oidclyfasthttp

import (
	"github.com/keksclan/goOIDCly/adapters/common"
	"github.com/keksclan/goOIDCly/oidcly"
	"github.com/valyala/fasthttp"
)

// ResultUserValueKey is the key used to store the oidcly.Result in the
// fasthttp.RequestCtx user values.
const ResultUserValueKey = "oidcly"

// Option configures the fasthttp middleware.
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

// fasthttpMetadataExtractor adapts fasthttp request headers to the MetadataExtractor interface.
type fasthttpMetadataExtractor struct {
	ctx *fasthttp.RequestCtx
}

func (e *fasthttpMetadataExtractor) Get(key string) (string, bool) {
	// fasthttp Peek is case-insensitive for HTTP headers.
	val := string(e.ctx.Request.Header.Peek(key))
	if val == "" {
		return "", false
	}
	return val, true
}

// Middleware wraps next with authentication using a. The RequestCtx itself
// is the context passed to the engine.
func Middleware(a common.Authenticator, next fasthttp.RequestHandler, opts ...Option) fasthttp.RequestHandler {
	o := buildOptions(opts)
	return func(ctx *fasthttp.RequestCtx) {
		result, err := common.Authenticate(ctx, a, &fasthttpMetadataExtractor{ctx: ctx}, o.AdapterOptions)
		if err != nil {
			writeUnauthorized(ctx)
			return
		}
		ctx.SetUserValue(ResultUserValueKey, result)
		next(ctx)
	}
}

// ResultFromCtx retrieves the oidcly.Result stored in the request context by the middleware.
// Returns nil if no result is present or the value is not an *oidcly.Result.
func ResultFromCtx(ctx *fasthttp.RequestCtx) *oidcly.Result {
	v, _ := ctx.UserValue(ResultUserValueKey).(*oidcly.Result)
	return v
}

func writeUnauthorized(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	ctx.SetContentType("application/json")
	ctx.Response.Header.Set(fasthttp.HeaderWWWAuthenticate, "Bearer")
	ctx.SetBodyString(common.UnauthorizedBody)
}
