// Package testutil provides an in-process OIDC identity provider for tests.
//
// The provider serves a discovery document and a JWKS from an httptest
// server, counts requests per endpoint and lets tests rotate keys or inject
// failures. Every helper calls t.Helper().
package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	jwxjwk "github.com/lestrrat-go/jwx/v2/jwk"
)

const (
	TenantPath = "/tenant"
	JWKSPath   = TenantPath + "/discovery/keys"
	Audience   = "api://app"
)

type signer struct {
	method jwt.SigningMethod
	priv   any
	pub    any
}

// IdP is a fake OpenID provider.
type IdP struct {
	Server *httptest.Server

	MetadataHits atomic.Int64
	JWKSHits     atomic.Int64

	// MetadataStatus and JWKSStatus, when non-zero, are returned instead
	// of a document.
	MetadataStatus atomic.Int32
	JWKSStatus     atomic.Int32
	// OmitJWKSURI serves a discovery document without jwks_uri.
	OmitJWKSURI atomic.Bool
	// JWKSDelay is applied before answering the JWKS endpoint.
	JWKSDelay atomic.Int64

	mu        sync.Mutex
	signers   map[string]signer
	published []string
	rawJWKS   []byte
}

// NewIdP starts a provider with one published RSA key "k1".
func NewIdP(t testing.TB) *IdP {
	t.Helper()
	p := &IdP{signers: map[string]signer{}}
	mux := http.NewServeMux()
	mux.HandleFunc(TenantPath+"/.well-known/openid-configuration", p.serveMetadata)
	mux.HandleFunc(JWKSPath, p.serveJWKS)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)

	p.AddRSAKey(t, "k1")
	p.Publish("k1")
	return p
}

// IssuerURL is the base URL discovery starts from.
func (p *IdP) IssuerURL() string { return p.Server.URL + TenantPath }

// Issuer is the value the provider puts in iss.
func (p *IdP) Issuer() string { return p.IssuerURL() }

// JWKSURL is the key set location.
func (p *IdP) JWKSURL() string { return p.Server.URL + JWKSPath }

// AddRSAKey creates an RS256 signing key. It is not published until Publish.
func (p *IdP) AddRSAKey(t testing.TB, kid string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	p.mu.Lock()
	p.signers[kid] = signer{method: jwt.SigningMethodRS256, priv: priv, pub: &priv.PublicKey}
	p.mu.Unlock()
}

// AddECKey creates an ES256 signing key. It is not published until Publish.
func (p *IdP) AddECKey(t testing.TB, kid string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ec key: %v", err)
	}
	p.mu.Lock()
	p.signers[kid] = signer{method: jwt.SigningMethodES256, priv: priv, pub: &priv.PublicKey}
	p.mu.Unlock()
}

// Publish replaces the published key set with the given key IDs.
func (p *IdP) Publish(kids ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append([]string(nil), kids...)
	p.rawJWKS = nil
}

// PublishRaw serves body verbatim as the JWKS.
func (p *IdP) PublishRaw(body []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rawJWKS = body
}

// PublicKey returns the public key for kid.
func (p *IdP) PublicKey(kid string) any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signers[kid].pub
}

// Sign mints a token with kid in the header.
func (p *IdP) Sign(t testing.TB, kid string, claims jwt.MapClaims) string {
	t.Helper()
	p.mu.Lock()
	s, ok := p.signers[kid]
	p.mu.Unlock()
	if !ok {
		t.Fatalf("unknown signer %q", kid)
	}
	tok := jwt.NewWithClaims(s.method, claims)
	tok.Header["kid"] = kid
	out, err := tok.SignedString(s.priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return out
}

// Claims returns a valid claim set for this provider expiring in ttl.
func (p *IdP) Claims(now time.Time, ttl time.Duration) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   p.Issuer(),
		"aud":   Audience,
		"sub":   "user-123",
		"email": "user@example.com",
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
}

func (p *IdP) serveMetadata(w http.ResponseWriter, _ *http.Request) {
	p.MetadataHits.Add(1)
	if code := p.MetadataStatus.Load(); code != 0 {
		w.WriteHeader(int(code))
		return
	}
	doc := map[string]any{
		"issuer":                 p.Issuer(),
		"authorization_endpoint": p.Server.URL + TenantPath + "/authorize",
	}
	if !p.OmitJWKSURI.Load() {
		doc["jwks_uri"] = p.JWKSURL()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}

func (p *IdP) serveJWKS(w http.ResponseWriter, r *http.Request) {
	p.JWKSHits.Add(1)
	if d := time.Duration(p.JWKSDelay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}
	if code := p.JWKSStatus.Load(); code != 0 {
		w.WriteHeader(int(code))
		return
	}
	body, err := p.jwks()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (p *IdP) jwks() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rawJWKS != nil {
		return p.rawJWKS, nil
	}
	set := jwxjwk.NewSet()
	for _, kid := range p.published {
		s := p.signers[kid]
		k, err := jwxjwk.FromRaw(s.pub)
		if err != nil {
			return nil, err
		}
		if err := k.Set(jwxjwk.KeyIDKey, kid); err != nil {
			return nil, err
		}
		if err := k.Set(jwxjwk.AlgorithmKey, s.method.Alg()); err != nil {
			return nil, err
		}
		if err := k.Set(jwxjwk.KeyUsageKey, "sig"); err != nil {
			return nil, err
		}
		if err := set.AddKey(k); err != nil {
			return nil, err
		}
	}
	return json.Marshal(set)
}
