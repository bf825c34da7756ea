package jwk

import (
	"context"
	"errors"
)

var (
	ErrNoUsableKeys       = errors.New("no usable signing keys")
	ErrUnsupportedKeyType = errors.New("unsupported key type")
)

// WellKnownPath is appended to the issuer base URL to locate the provider's
// discovery document.
const WellKnownPath = "/.well-known/openid-configuration"

// maxResponseSize limits discovery and JWKS response bodies.
const maxResponseSize = 1 << 20 // 1 MB

// Metadata is the subset of the OIDC discovery document the verifier needs.
// Other fields are ignored.
type Metadata struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// Source retrieves provider metadata and key sets. It holds no state between
// calls; caching is the Manager's job.
type Source interface {
	// Fetch retrieves the discovery document for issuerURL.
	Fetch(ctx context.Context, issuerURL string) (*Metadata, error)

	// FetchKeys retrieves and parses the key set published at jwksURI.
	FetchKeys(ctx context.Context, jwksURI string) (*KeySet, error)
}
