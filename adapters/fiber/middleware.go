// Package oidclyfiber provides a Fiber middleware for goOIDCly.
//
// The middleware reads the bearer token from the Authorization header and
// delegates verification to the engine. On success, the oidcly.Result is
// stored in c.Locals("oidcly"). On failure, a 401 JSON response is returned.
//
// Concurrency: All exported functions are safe for concurrent use.
package oidclyfiber

import (
	"github.com/gofiber/fiber/v2"
	"github.com/keksclan/goOIDCly/adapters/common"
	"github.com/keksclan/goOIDCly/oidcly"
)

// LocalsKey is the c.Locals key holding the *oidcly.Result.
const LocalsKey = "oidcly"

// Option configures the Fiber middleware.
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

// WithRequiredMetadataEnabled toggles required metadata validation on or off.
func WithRequiredMetadataEnabled(enabled bool) Option {
	return func(o *options) {
		o.RequiredMeta.Enabled = enabled
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

// fiberMetadataExtractor adapts Fiber request headers to the MetadataExtractor interface.
type fiberMetadataExtractor struct {
	c *fiber.Ctx
}

func (e *fiberMetadataExtractor) Get(key string) (string, bool) {
	// Fiber's c.Get is case-insensitive for HTTP headers.
	val := e.c.Get(key)
	if val == "" {
		return "", false
	}
	return val, true
}

// Middleware returns a Fiber middleware that authenticates requests with a.
// The request's user context is passed down so client cancellation stops
// waiting for a key refresh.
func Middleware(a common.Authenticator, opts ...Option) fiber.Handler {
	o := buildOptions(opts)
	return func(c *fiber.Ctx) error {
		result, err := common.Authenticate(c.UserContext(), a, &fiberMetadataExtractor{c: c}, o.AdapterOptions)
		if err != nil {
			c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": oidcly.UnauthorizedMessage,
			})
		}
		c.Locals(LocalsKey, result)
		return c.Next()
	}
}

// ResultFromLocals retrieves the oidcly.Result stored by the middleware.
// Returns nil if no result is present or the value is not an *oidcly.Result.
func ResultFromLocals(c *fiber.Ctx) *oidcly.Result {
	v, _ := c.Locals(LocalsKey).(*oidcly.Result)
	return v
}
