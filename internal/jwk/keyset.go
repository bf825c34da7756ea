package jwk

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// SigningKey is one public key from a provider's key set.
type SigningKey struct {
	KeyID     string
	Algorithm string
	KeyType   string
	// Key is *rsa.PublicKey, *ecdsa.PublicKey or ed25519.PublicKey.
	Key any
}

// KeySet is an immutable set of signing keys indexed by key ID. The
// publication order is kept for diagnostics.
//
// Concurrency: safe for concurrent reads; never mutated after construction.
type KeySet struct {
	keys  map[string]SigningKey
	order []string
}

// NewKeySet builds a KeySet. Keys without a key ID are dropped and the first
// key wins when IDs repeat.
func NewKeySet(keys ...SigningKey) *KeySet {
	s := &KeySet{keys: make(map[string]SigningKey, len(keys))}
	for _, k := range keys {
		if k.KeyID == "" {
			continue
		}
		if _, dup := s.keys[k.KeyID]; dup {
			continue
		}
		s.keys[k.KeyID] = k
		s.order = append(s.order, k.KeyID)
	}
	return s
}

// Lookup returns the key with the given ID. A nil set holds no keys.
func (s *KeySet) Lookup(kid string) (SigningKey, bool) {
	if s == nil {
		return SigningKey{}, false
	}
	k, ok := s.keys[kid]
	return k, ok
}

// Len reports the number of keys.
func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// KeyIDs returns the key IDs in publication order.
func (s *KeySet) KeyIDs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// FromJWKSet converts a parsed JWKS into a KeySet, keeping only public
// signature keys the validator can use. Skipped keys are reported so the
// caller can log them.
func FromJWKSet(set jwk.Set) (*KeySet, []error) {
	var (
		keys    []SigningKey
		skipped []error
	)
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		kid := key.KeyID()
		if key.KeyUsage() == string(jwk.ForEncryption) {
			skipped = append(skipped, fmt.Errorf("key %q: encryption key", kid))
			continue
		}
		if kid == "" {
			skipped = append(skipped, fmt.Errorf("key #%d: missing kid", i))
			continue
		}
		raw, err := publicKey(key)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("key %q: %w", kid, err))
			continue
		}
		alg := ""
		if a := key.Algorithm(); a != nil {
			alg = a.String()
		}
		keys = append(keys, SigningKey{
			KeyID:     kid,
			Algorithm: alg,
			KeyType:   key.KeyType().String(),
			Key:       raw,
		})
	}
	return NewKeySet(keys...), skipped
}

// ParseKeySet parses a JWKS document.
func ParseKeySet(data []byte) (*KeySet, []error, error) {
	set, err := jwk.Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse jwks: %w", err)
	}
	ks, skipped := FromJWKSet(set)
	return ks, skipped, nil
}

func publicKey(key jwk.Key) (any, error) {
	pub, err := jwk.PublicRawKeyOf(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedKeyType, err)
	}
	switch pub.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
		return pub, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKeyType, pub)
	}
}
