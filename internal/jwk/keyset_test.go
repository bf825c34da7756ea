package jwk

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"testing"

	jwxjwk "github.com/lestrrat-go/jwx/v2/jwk"
)

func mustJWK(t *testing.T, raw any, kid, alg, use string) jwxjwk.Key {
	t.Helper()
	k, err := jwxjwk.FromRaw(raw)
	if err != nil {
		t.Fatalf("FromRaw: %v", err)
	}
	if kid != "" {
		_ = k.Set(jwxjwk.KeyIDKey, kid)
	}
	if alg != "" {
		_ = k.Set(jwxjwk.AlgorithmKey, alg)
	}
	if use != "" {
		_ = k.Set(jwxjwk.KeyUsageKey, use)
	}
	return k
}

func TestNewKeySetOrderAndDuplicates(t *testing.T) {
	ks := NewKeySet(
		SigningKey{KeyID: "b", Algorithm: "RS256"},
		SigningKey{KeyID: "a", Algorithm: "ES256"},
		SigningKey{KeyID: "b", Algorithm: "PS256"},
		SigningKey{KeyID: ""},
	)
	if ks.Len() != 2 {
		t.Fatalf("Len = %d, want 2", ks.Len())
	}
	ids := ks.KeyIDs()
	if ids[0] != "b" || ids[1] != "a" {
		t.Fatalf("KeyIDs = %v, want [b a]", ids)
	}
	k, ok := ks.Lookup("b")
	if !ok || k.Algorithm != "RS256" {
		t.Fatalf("duplicate kid must keep the first key, got %+v", k)
	}
	ids[0] = "mutated"
	if ks.KeyIDs()[0] != "b" {
		t.Fatal("KeyIDs must return a copy")
	}
}

func TestNilKeySet(t *testing.T) {
	var ks *KeySet
	if _, ok := ks.Lookup("x"); ok || ks.Len() != 0 || ks.KeyIDs() != nil {
		t.Fatal("nil key set must behave as empty")
	}
}

func TestFromJWKSetFiltersKeys(t *testing.T) {
	rsaKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	ecKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)

	set := jwxjwk.NewSet()
	_ = set.AddKey(mustJWK(t, &rsaKey.PublicKey, "rsa", "RS256", "sig"))
	_ = set.AddKey(mustJWK(t, &ecKey.PublicKey, "ec", "", ""))
	_ = set.AddKey(mustJWK(t, &rsaKey.PublicKey, "enc", "RSA-OAEP", "enc"))
	_ = set.AddKey(mustJWK(t, &rsaKey.PublicKey, "", "RS256", "sig"))
	_ = set.AddKey(mustJWK(t, []byte("shared-secret"), "hmac", "HS256", "sig"))

	ks, skipped := FromJWKSet(set)
	if ks.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (rsa, ec); kids=%v", ks.Len(), ks.KeyIDs())
	}
	if len(skipped) != 3 {
		t.Fatalf("skipped = %d, want 3: %v", len(skipped), skipped)
	}

	rk, _ := ks.Lookup("rsa")
	if _, ok := rk.Key.(*rsa.PublicKey); !ok || rk.Algorithm != "RS256" || rk.KeyType != "RSA" {
		t.Fatalf("unexpected rsa key: %+v", rk)
	}
	ek, _ := ks.Lookup("ec")
	if _, ok := ek.Key.(*ecdsa.PublicKey); !ok || ek.Algorithm != "" {
		t.Fatalf("unexpected ec key: %+v", ek)
	}

	var unsupported bool
	for _, err := range skipped {
		if errors.Is(err, ErrUnsupportedKeyType) {
			unsupported = true
		}
	}
	if !unsupported {
		t.Fatal("symmetric key must be skipped as unsupported")
	}
}

func TestParseKeySet(t *testing.T) {
	rsaKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	set := jwxjwk.NewSet()
	_ = set.AddKey(mustJWK(t, &rsaKey.PublicKey, "k1", "RS256", "sig"))
	body, _ := json.Marshal(set)

	ks, _, err := ParseKeySet(body)
	if err != nil {
		t.Fatalf("ParseKeySet: %v", err)
	}
	if _, ok := ks.Lookup("k1"); !ok {
		t.Fatal("expected k1")
	}

	if _, _, err := ParseKeySet([]byte(`{"keys": "not-an-array"}`)); err == nil {
		t.Fatal("expected parse error")
	}
}
