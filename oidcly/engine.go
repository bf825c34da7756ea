package oidcly

import (
	"context"
	"fmt"
	"net/http"
	"time"

	icache "github.com/keksclan/goOIDCly/internal/cache"
	"github.com/keksclan/goOIDCly/internal/failure"
	"github.com/keksclan/goOIDCly/internal/identity"
	"github.com/keksclan/goOIDCly/internal/jwk"
	"github.com/keksclan/goOIDCly/internal/jwt"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Result is the outcome of a successful verification.
//
// Concurrency: Result is immutable once returned.
type Result struct {
	// Identity is the best-effort identity picked from the claims. It may be
	// empty; whether that is acceptable is the caller's decision.
	Identity string
	// IdentityClaim names the claim Identity came from.
	IdentityClaim string
	Subject       string
	Issuer        string
	Audience      []string
	ExpiresAt     time.Time
	IssuedAt      time.Time
	KeyID         string
	Claims        map[string]any
	RawToken      string
}

// Engine verifies bearer tokens issued by one OpenID provider.
//
// Concurrency: Engine is safe for concurrent use. All goroutines share one
// signing key cache.
type Engine struct {
	cfg          Config
	httpc        *http.Client
	cache        Cache
	log          zerolog.Logger
	metrics      MetricsCollector
	now          func() time.Time
	keepRawToken bool
	ownedCache   *icache.RistrettoCache

	tracerProvider trace.TracerProvider

	keys      *jwk.Manager
	validator *jwt.Validator
	extractor *identity.Extractor
}

// New creates an Engine. A missing required value is reported as a
// ConfigurationMissing error; the caller should treat it as fatal.
func New(cfg Config, opts ...Option) (*Engine, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		log:     zerolog.Nop(),
		metrics: noopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = noopMetrics{}
	}
	if e.now == nil {
		e.now = time.Now
	}

	jv, err := jwt.New(jwt.Config{
		Issuer:      cfg.Issuer,
		Audience:    cfg.Audience,
		AllowedAlgs: cfg.AllowedAlgs,
		ClockSkew:   cfg.ClockSkew,
	})
	if err != nil {
		return nil, fmt.Errorf("init jwt validator: %w", err)
	}
	e.validator = jv

	var script *identity.Script
	if cfg.IdentityScript != "" {
		script, err = identity.CompileScript(cfg.IdentityScript, 0)
		if err != nil {
			return nil, fmt.Errorf("compile identity script: %w", err)
		}
	}
	e.extractor = identity.NewExtractor(cfg.IdentityClaims, script, e.log)

	if e.cache == nil {
		rc, err := icache.NewRistrettoCache(64)
		if err != nil {
			return nil, err
		}
		e.cache = rc
		e.ownedCache = rc
	}

	fetcher := jwk.NewHTTPFetcher(jwk.FetcherConfig{
		HTTPClient:     e.httpc,
		Timeout:        cfg.HTTPTimeout,
		MaxAttempts:    cfg.MaxFetchAttempts,
		Logger:         e.log,
		TracerProvider: e.tracerProvider,
	})
	e.keys = jwk.NewManager(fetcher, e.cache, jwk.ManagerConfig{
		IssuerURL:             cfg.IssuerURL,
		JWKSURL:               cfg.JWKSURL,
		TTL:                   cfg.JWKSCacheTTL,
		GracePeriod:           cfg.JWKSGracePeriod,
		MetadataTTL:           cfg.MetadataCacheTTL,
		RefreshTimeout:        cfg.RefreshTimeout,
		ForcedRefreshInterval: cfg.ForcedRefreshInterval,
		Clock:                 e.now,
		Logger:                e.log,
		OnRefresh:             e.metrics.KeyRefresh,
	})
	return e, nil
}

// Config returns the effective configuration including defaults.
func (e *Engine) Config() Config { return e.cfg }

// Close releases the default metadata cache. A cache passed with WithCache
// is left to its owner.
func (e *Engine) Close() {
	if e.ownedCache != nil {
		e.ownedCache.Close()
	}
}

// Warmup fetches the signing keys eagerly. A failure is not fatal; the next
// verification retries.
func (e *Engine) Warmup(ctx context.Context) error {
	_, err := e.keys.Keys(ctx)
	return err
}

// Authenticate verifies the token carried in an Authorization header value.
// A missing or non-bearer header fails before any key or crypto work.
func (e *Engine) Authenticate(ctx context.Context, header string) (*Result, error) {
	token, err := ParseBearer(header)
	if err != nil {
		e.fail(err)
		return nil, err
	}
	return e.Verify(ctx, token)
}

// Verify validates token and extracts the caller identity. When the token
// names a key the cache does not know, the key set is refreshed once before
// giving up.
func (e *Engine) Verify(ctx context.Context, token string) (*Result, error) {
	res, err := e.verify(ctx, token)
	if err != nil {
		e.fail(err)
		return nil, err
	}
	e.metrics.ValidationOK()
	return res, nil
}

func (e *Engine) verify(ctx context.Context, token string) (*Result, error) {
	if token == "" {
		return nil, failure.New(failure.MalformedToken, "empty token")
	}

	keys, err := e.keys.Keys(ctx)
	if err != nil {
		return nil, err
	}

	claims, err := e.validator.Validate(token, keys, e.now())
	if failure.KindOf(err) == failure.UnknownSigningKey {
		e.log.Debug().Err(err).Msg("unknown signing key, forcing jwks refresh")
		refreshed, rerr := e.keys.ForceRefresh(ctx, keys)
		if rerr != nil {
			return nil, rerr
		}
		claims, err = e.validator.Validate(token, refreshed, e.now())
	}
	if err != nil {
		return nil, err
	}

	m := e.extractor.Extract(claims.Raw)
	res := &Result{
		Identity:      m.Value,
		IdentityClaim: m.Claim,
		Subject:       claims.Subject,
		Issuer:        claims.Issuer,
		Audience:      claims.Audience,
		ExpiresAt:     claims.ExpiresAt,
		IssuedAt:      claims.IssuedAt,
		KeyID:         claims.KeyID,
		Claims:        claims.Raw,
	}
	if e.keepRawToken {
		res.RawToken = token
	}
	return res, nil
}

// fail records a rejection. Requests without credentials are routine and
// logged at debug; every other reason is logged at warn.
func (e *Engine) fail(err error) {
	kind := failure.KindOf(err)
	e.metrics.ValidationFailed(string(kind))
	ev := e.log.Warn()
	if kind == failure.MissingAuthHeader {
		ev = e.log.Debug()
	}
	ev.Str("kind", string(kind)).
		Str("cause", string(failure.CauseOf(err))).
		Err(err).
		Msg("token rejected")
}

// RecordRejection counts and logs a request refused by a transport adapter
// for a reason outside token verification, such as missing required
// metadata.
func (e *Engine) RecordRejection(reason string, err error) {
	e.metrics.ValidationFailed(reason)
	e.log.Warn().Str("kind", reason).Err(err).Msg("request rejected")
}
