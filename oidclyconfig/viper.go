package oidclyconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/keksclan/goOIDCly/oidcly"
	"github.com/spf13/viper"
)

// envBindings maps config keys to the environment variables read for them,
// in priority order. The OpenIdConnect_* names are accepted for deployments
// configured for Azure Functions style hosts.
var envBindings = map[string][]string{
	"issuer":                  {"OIDC_ISSUER", "OpenIdConnect_Issuer"},
	"audience":                {"OIDC_AUDIENCE", "OpenIdConnect_Audience"},
	"issuer_url":              {"OIDC_ISSUER_URL", "OpenIdConnect_IssuerUrl"},
	"jwks_url":                {"OIDC_JWKS_URL"},
	"jwks_cache_ttl":          {"OIDC_JWKS_CACHE_TTL"},
	"jwks_grace_period":       {"OIDC_JWKS_GRACE_PERIOD"},
	"metadata_cache_ttl":      {"OIDC_METADATA_CACHE_TTL"},
	"http_timeout":            {"OIDC_HTTP_TIMEOUT"},
	"refresh_timeout":         {"OIDC_REFRESH_TIMEOUT"},
	"max_fetch_attempts":      {"OIDC_MAX_FETCH_ATTEMPTS"},
	"forced_refresh_interval": {"OIDC_FORCED_REFRESH_INTERVAL"},
	"clock_skew":              {"OIDC_CLOCK_SKEW"},
	"allowed_algs":            {"OIDC_ALLOWED_ALGS"},
	"identity_claims":         {"OIDC_IDENTITY_CLAIMS"},
	"identity_script":         {"OIDC_IDENTITY_SCRIPT"},
}

// viperLoader reads an optional config file and lets environment variables
// override it.
type viperLoader struct {
	path string
}

// FromEnv creates a Loader that reads OIDC_* environment variables.
// Durations use Go syntax ("15m", "5s"); lists are comma separated.
func FromEnv() Loader {
	return &viperLoader{}
}

// FromFile creates a Loader that reads a YAML, JSON or TOML file (by
// extension) using the keys of envBindings. Environment variables override
// file values.
func FromFile(path string) Loader {
	return &viperLoader{path: path}
}

func (l *viperLoader) Load(_ context.Context) (*oidcly.Config, error) {
	v := viper.New()
	if l.path != "" {
		v.SetConfigFile(l.path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", l.path, err)
		}
	}
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	cfg := oidcly.Config{
		Issuer:                v.GetString("issuer"),
		Audience:              v.GetString("audience"),
		IssuerURL:             v.GetString("issuer_url"),
		JWKSURL:               v.GetString("jwks_url"),
		JWKSCacheTTL:          v.GetDuration("jwks_cache_ttl"),
		JWKSGracePeriod:       v.GetDuration("jwks_grace_period"),
		MetadataCacheTTL:      v.GetDuration("metadata_cache_ttl"),
		HTTPTimeout:           v.GetDuration("http_timeout"),
		RefreshTimeout:        v.GetDuration("refresh_timeout"),
		MaxFetchAttempts:      v.GetInt("max_fetch_attempts"),
		ForcedRefreshInterval: v.GetDuration("forced_refresh_interval"),
		ClockSkew:             v.GetDuration("clock_skew"),
		AllowedAlgs:           stringList(v, "allowed_algs"),
		IdentityClaims:        stringList(v, "identity_claims"),
		IdentityScript:        v.GetString("identity_script"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// stringList accepts a file list or a comma separated string.
func stringList(v *viper.Viper, key string) []string {
	raw, ok := v.Get(key).(string)
	if !ok {
		return v.GetStringSlice(key)
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
