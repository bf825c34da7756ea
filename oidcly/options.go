package oidcly

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Cache stores provider metadata. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration) bool
	Del(key string)
}

type Option func(*Engine)

// WithHTTPClient sets the client used for discovery and key fetches. Its own
// Timeout, if any, applies on top of Config.HTTPTimeout.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		e.httpc = c
	}
}

// WithCache replaces the default ristretto metadata cache.
func WithCache(c Cache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithMetrics sets the collector notified about validations and refreshes.
func WithMetrics(m MetricsCollector) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock overrides the time source used for token and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithKeepRawToken stores the verified token in Result.RawToken.
func WithKeepRawToken() Option {
	return func(e *Engine) {
		e.keepRawToken = true
	}
}

// WithTracerProvider sets the provider for discovery and key fetch spans.
// The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		e.tracerProvider = tp
	}
}
