package oidcly

import (
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"complete", Config{Issuer: "i", Audience: "a", IssuerURL: "https://idp"}, true},
		{"static jwks", Config{Issuer: "i", Audience: "a", JWKSURL: "https://idp/keys"}, true},
		{"no issuer", Config{Audience: "a", IssuerURL: "https://idp"}, false},
		{"no audience", Config{Issuer: "i", IssuerURL: "https://idp"}, false},
		{"no url", Config{Issuer: "i", Audience: "a"}, false},
		{"relative issuer url", Config{Issuer: "i", Audience: "a", IssuerURL: "idp.example/tenant"}, false},
		{"unparsable issuer url", Config{Issuer: "i", Audience: "a", IssuerURL: "https://idp/%zz"}, false},
		{"relative jwks url", Config{Issuer: "i", Audience: "a", JWKSURL: "/keys"}, false},
		{"bad jwks url next to issuer url", Config{Issuer: "i", Audience: "a", IssuerURL: "https://idp", JWKSURL: "keys"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrConfigurationMissing) {
				t.Fatalf("want ErrConfigurationMissing, got %v", err)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.setDefaults()
	if c.JWKSCacheTTL != 15*time.Minute || c.JWKSGracePeriod != time.Hour {
		t.Fatalf("jwks ttl/grace = %v/%v", c.JWKSCacheTTL, c.JWKSGracePeriod)
	}
	if c.ForcedRefreshInterval != 10*time.Second {
		t.Fatalf("forced refresh interval = %v", c.ForcedRefreshInterval)
	}
	if c.ClockSkew != 5*time.Second || c.HTTPTimeout != 5*time.Second || c.MaxFetchAttempts != 3 {
		t.Fatalf("skew/timeout/attempts = %v/%v/%d", c.ClockSkew, c.HTTPTimeout, c.MaxFetchAttempts)
	}
	if len(c.IdentityClaims) != 5 || c.IdentityClaims[0] != "email" || c.IdentityClaims[4] != "sub" {
		t.Fatalf("identity claims = %v", c.IdentityClaims)
	}
	for _, alg := range c.AllowedAlgs {
		if alg == "HS256" || alg == "none" {
			t.Fatalf("symmetric alg in defaults: %v", c.AllowedAlgs)
		}
	}
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	_, err := New(Config{Audience: "a", IssuerURL: "https://idp"})
	if KindOf(err) != KindConfigurationMissing {
		t.Fatalf("want configuration_missing, got %v", err)
	}
}

func TestNewRejectsSymmetricAlgs(t *testing.T) {
	_, err := New(Config{Issuer: "i", Audience: "a", IssuerURL: "https://idp", AllowedAlgs: []string{"HS256"}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestNewRejectsBadIdentityScript(t *testing.T) {
	_, err := New(Config{Issuer: "i", Audience: "a", IssuerURL: "https://idp", IdentityScript: "return ("})
	if err == nil {
		t.Fatal("expected compile error")
	}
}

func TestNewRejectsRelativeIssuerURL(t *testing.T) {
	_, err := New(Config{Issuer: "i", Audience: "a", IssuerURL: "idp.example/tenant"})
	if KindOf(err) != KindConfigurationMissing {
		t.Fatalf("want configuration_missing at startup, got %v", err)
	}
}
