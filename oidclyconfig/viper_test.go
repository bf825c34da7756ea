package oidclyconfig

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/keksclan/goOIDCly/oidcly"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("OIDC_ISSUER", "https://idp.example/tenant")
	t.Setenv("OIDC_AUDIENCE", "api://app")
	t.Setenv("OIDC_ISSUER_URL", "https://idp.example/tenant")
	t.Setenv("OIDC_JWKS_CACHE_TTL", "10m")
	t.Setenv("OIDC_CLOCK_SKEW", "3s")
	t.Setenv("OIDC_HTTP_TIMEOUT", "2s")
	t.Setenv("OIDC_MAX_FETCH_ATTEMPTS", "5")
	t.Setenv("OIDC_IDENTITY_CLAIMS", "email, upn ,sub")

	cfg, err := FromEnv().Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Issuer != "https://idp.example/tenant" || cfg.Audience != "api://app" {
		t.Fatalf("issuer/audience: %+v", cfg)
	}
	if cfg.JWKSCacheTTL != 10*time.Minute || cfg.ClockSkew != 3*time.Second || cfg.HTTPTimeout != 2*time.Second {
		t.Fatalf("durations: %+v", cfg)
	}
	if cfg.MaxFetchAttempts != 5 {
		t.Fatalf("attempts = %d", cfg.MaxFetchAttempts)
	}
	want := []string{"email", "upn", "sub"}
	if len(cfg.IdentityClaims) != len(want) {
		t.Fatalf("claims = %v", cfg.IdentityClaims)
	}
	for i := range want {
		if cfg.IdentityClaims[i] != want[i] {
			t.Fatalf("claims = %v", cfg.IdentityClaims)
		}
	}
}

func TestFromEnvLegacyNames(t *testing.T) {
	t.Setenv("OpenIdConnect_Issuer", "https://login.example/tenant/v2.0")
	t.Setenv("OpenIdConnect_Audience", "client-id")
	t.Setenv("OpenIdConnect_IssuerUrl", "https://login.example/tenant/v2.0")

	cfg, err := FromEnv().Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Audience != "client-id" || cfg.IssuerURL != "https://login.example/tenant/v2.0" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestFromEnvMissing(t *testing.T) {
	t.Setenv("OIDC_ISSUER", "https://idp.example/tenant")
	_, err := FromEnv().Load(context.Background())
	if !errors.Is(err, oidcly.ErrConfigurationMissing) {
		t.Fatalf("want ErrConfigurationMissing, got %v", err)
	}
}

func TestFromFileYAML(t *testing.T) {
	p := writeFile(t, "oidc.yaml", `
issuer: https://idp.example/tenant
audience: api://app
jwks_url: https://idp.example/tenant/keys
jwks_grace_period: 30m
allowed_algs:
  - RS256
  - ES256
`)
	t.Setenv("OIDC_AUDIENCE", "api://override")

	cfg, err := FromFile(p).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Audience != "api://override" {
		t.Fatalf("env must override file, audience = %q", cfg.Audience)
	}
	if cfg.JWKSURL != "https://idp.example/tenant/keys" || cfg.JWKSGracePeriod != 30*time.Minute {
		t.Fatalf("jwks: %+v", cfg)
	}
	if len(cfg.AllowedAlgs) != 2 || cfg.AllowedAlgs[1] != "ES256" {
		t.Fatalf("algs = %v", cfg.AllowedAlgs)
	}
}

func TestFromFileMissing(t *testing.T) {
	if _, err := FromFile("/nonexistent/oidc.yaml").Load(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
