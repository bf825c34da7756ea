package oidcly

import (
	"time"

	"github.com/keksclan/goOIDCly/internal/failure"
	"github.com/keksclan/goOIDCly/internal/identity"
	"github.com/keksclan/goOIDCly/internal/jwk"
	"github.com/keksclan/goOIDCly/internal/jwt"
)

// Config describes one trusted OpenID provider. It is built once at startup
// and not modified afterwards.
type Config struct {
	// Issuer must equal the iss claim of accepted tokens exactly.
	Issuer string
	// Audience must be one of the aud values of accepted tokens.
	Audience string
	// IssuerURL is the base URL discovery starts from. The discovery
	// document is read from IssuerURL + "/.well-known/openid-configuration".
	IssuerURL string
	// JWKSURL, when set, is used directly and discovery is skipped.
	JWKSURL string

	JWKSCacheTTL time.Duration
	// JWKSGracePeriod is how long past JWKSCacheTTL the last key set may
	// still be served while the provider is unreachable. Negative disables
	// the fallback.
	JWKSGracePeriod  time.Duration
	MetadataCacheTTL time.Duration
	// HTTPTimeout bounds a single request to the provider.
	HTTPTimeout time.Duration
	// RefreshTimeout bounds one shared key refresh including retries.
	RefreshTimeout   time.Duration
	MaxFetchAttempts int
	// ForcedRefreshInterval is the minimum spacing of refreshes triggered by
	// unknown key IDs. The first one after startup always runs. Default 10s;
	// negative means no limit.
	ForcedRefreshInterval time.Duration

	ClockSkew   time.Duration
	AllowedAlgs []string

	// IdentityClaims is the ordered preference list used to pick the
	// identity. The first present claim wins.
	IdentityClaims []string
	// IdentityScript is an optional Lua script returning the identity. An
	// empty result falls back to IdentityClaims.
	IdentityScript string
}

func (c *Config) setDefaults() {
	if c.JWKSCacheTTL == 0 {
		c.JWKSCacheTTL = jwk.DefaultTTL
	}
	if c.JWKSGracePeriod == 0 {
		c.JWKSGracePeriod = jwk.DefaultGracePeriod
	}
	if c.MetadataCacheTTL == 0 {
		c.MetadataCacheTTL = jwk.DefaultMetadataTTL
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 5 * time.Second
	}
	if c.RefreshTimeout == 0 {
		c.RefreshTimeout = jwk.DefaultRefreshTimeout
	}
	if c.ForcedRefreshInterval == 0 {
		c.ForcedRefreshInterval = jwk.DefaultForcedRefreshInterval
	}
	if c.MaxFetchAttempts == 0 {
		c.MaxFetchAttempts = 3
	}
	if c.ClockSkew == 0 {
		c.ClockSkew = jwt.DefaultClockSkew
	}
	if len(c.AllowedAlgs) == 0 {
		c.AllowedAlgs = append([]string(nil), jwt.DefaultAllowedAlgs...)
	}
	if len(c.IdentityClaims) == 0 {
		c.IdentityClaims = append([]string(nil), identity.DefaultClaims...)
	}
}

// Validate reports a ConfigurationMissing error when a required value is
// absent or a provider URL is not absolute.
func (c Config) Validate() error {
	if c.Issuer == "" {
		return failure.New(failure.ConfigurationMissing, "issuer is required")
	}
	if c.Audience == "" {
		return failure.New(failure.ConfigurationMissing, "audience is required")
	}
	if c.IssuerURL == "" && c.JWKSURL == "" {
		return failure.New(failure.ConfigurationMissing, "issuer_url is required unless jwks_url is set")
	}
	if c.IssuerURL != "" {
		if _, err := jwk.DiscoveryURL(c.IssuerURL); err != nil {
			return failure.Wrap(failure.ConfigurationMissing, "issuer_url is invalid", err)
		}
	}
	if c.JWKSURL != "" {
		if _, err := jwk.ParseAbsoluteURL(c.JWKSURL); err != nil {
			return failure.Wrap(failure.ConfigurationMissing, "jwks_url is invalid", err)
		}
	}
	return nil
}
