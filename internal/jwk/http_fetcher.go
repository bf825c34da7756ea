package jwk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/keksclan/goOIDCly/internal/failure"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/keksclan/goOIDCly/internal/jwk"

// FetcherConfig configures an HTTPFetcher. Zero values select defaults.
type FetcherConfig struct {
	// HTTPClient performs the requests. Defaults to a client with Timeout.
	HTTPClient *http.Client
	// Timeout bounds every single request attempt. Default 5s.
	Timeout time.Duration
	// MaxAttempts bounds retries of transient failures. Default 3.
	MaxAttempts int
	// InitialBackoff is the first retry delay. Default 200ms.
	InitialBackoff time.Duration
	// MaxBackoff caps the retry delay. Default 2s.
	MaxBackoff time.Duration
	Logger     zerolog.Logger
	// TracerProvider creates the discovery spans. Defaults to the global
	// provider.
	TracerProvider trace.TracerProvider
}

// HTTPFetcher is the network Source. Network errors, 5xx and 429 responses
// are retried with exponential backoff; everything else fails immediately.
//
// Concurrency: safe for concurrent use.
type HTTPFetcher struct {
	httpc          *http.Client
	timeout        time.Duration
	maxAttempts    uint
	initialBackoff time.Duration
	maxBackoff     time.Duration
	log            zerolog.Logger
	tracer         trace.Tracer
}

// NewHTTPFetcher creates a fetcher from cfg.
func NewHTTPFetcher(cfg FetcherConfig) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	return &HTTPFetcher{
		httpc:          cfg.HTTPClient,
		timeout:        cfg.Timeout,
		maxAttempts:    uint(cfg.MaxAttempts),
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		log:            cfg.Logger,
		tracer:         cfg.TracerProvider.Tracer(tracerName),
	}
}

// ParseAbsoluteURL parses raw and requires a scheme and a host.
func ParseAbsoluteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("url %q is not absolute", raw)
	}
	return u, nil
}

// DiscoveryURL returns the well-known discovery location for issuerURL.
func DiscoveryURL(issuerURL string) (string, error) {
	u, err := ParseAbsoluteURL(issuerURL)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + WellKnownPath
	u.RawPath = ""
	return u.String(), nil
}

// Fetch retrieves and decodes the discovery document.
func (f *HTTPFetcher) Fetch(ctx context.Context, issuerURL string) (*Metadata, error) {
	ctx, span := f.tracer.Start(ctx, "oidc.discovery.metadata")
	defer span.End()

	target, err := DiscoveryURL(issuerURL)
	if err != nil {
		return nil, endSpan(span, failure.Discovery(failure.CauseParse, "build discovery url", err))
	}
	span.SetAttributes(attribute.String("oidc.discovery_url", target))

	body, err := f.get(ctx, target, "discovery document")
	if err != nil {
		return nil, endSpan(span, err)
	}

	var md Metadata
	if err := json.Unmarshal(body, &md); err != nil {
		return nil, endSpan(span, failure.Discovery(failure.CauseParse, "decode discovery document", err))
	}
	if md.JWKSURI == "" {
		return nil, endSpan(span, failure.Discovery(failure.CauseMissingField, "discovery document has no jwks_uri", nil))
	}
	if _, err := ParseAbsoluteURL(md.JWKSURI); err != nil {
		return nil, endSpan(span, failure.Discovery(failure.CauseParse, "jwks_uri is not an absolute url", err))
	}
	return &md, nil
}

// FetchKeys retrieves the JWKS at jwksURI. A document without a single
// usable signing key is a parse failure.
func (f *HTTPFetcher) FetchKeys(ctx context.Context, jwksURI string) (*KeySet, error) {
	ctx, span := f.tracer.Start(ctx, "oidc.discovery.jwks",
		trace.WithAttributes(attribute.String("oidc.jwks_uri", jwksURI)))
	defer span.End()

	body, err := f.get(ctx, jwksURI, "jwks")
	if err != nil {
		return nil, endSpan(span, err)
	}

	ks, skipped, err := ParseKeySet(body)
	if err != nil {
		return nil, endSpan(span, failure.Discovery(failure.CauseParse, "decode jwks", err))
	}
	for _, s := range skipped {
		f.log.Debug().Err(s).Str("jwks_uri", jwksURI).Msg("skipping jwk")
	}
	if ks.Len() == 0 {
		return nil, endSpan(span, failure.Discovery(failure.CauseParse, "decode jwks", ErrNoUsableKeys))
	}
	span.SetAttributes(attribute.Int("oidc.jwks_keys", ks.Len()))
	return ks, nil
}

// get performs a bounded, retried GET and returns the response body.
func (f *HTTPFetcher) get(ctx context.Context, target, what string) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.initialBackoff
	b.MaxInterval = f.maxBackoff

	op := func() ([]byte, error) {
		return f.getOnce(ctx, target, what)
	}
	notify := func(err error, next time.Duration) {
		f.log.Debug().Err(err).Str("url", target).Dur("retry_in", next).Msg("retrying discovery fetch")
	}

	body, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(f.maxAttempts),
		backoff.WithNotify(notify),
	)
	if err != nil {
		var fe *failure.Error
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, failure.Discovery(failure.CauseNetwork, "fetch "+what, err)
	}
	return body, nil
}

func (f *HTTPFetcher) getOnce(ctx context.Context, target, what string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(failure.Discovery(failure.CauseNetwork, "create request", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpc.Do(req)
	if err != nil {
		fe := failure.Discovery(failure.CauseNetwork, "fetch "+what, err)
		if ctx.Err() != nil {
			return nil, backoff.Permanent(fe)
		}
		return nil, fe
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fe := failure.HTTPStatus(resp.StatusCode, fmt.Sprintf("%s returned status %d", what, resp.StatusCode))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fe
		}
		return nil, backoff.Permanent(fe)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, failure.Discovery(failure.CauseNetwork, "read "+what, err)
	}
	if len(body) > maxResponseSize {
		return nil, backoff.Permanent(failure.Discovery(failure.CauseParse, what+" exceeds size limit", nil))
	}
	return body, nil
}

func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
