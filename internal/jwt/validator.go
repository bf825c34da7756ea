package jwt

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/keksclan/goOIDCly/internal/failure"
	"github.com/keksclan/goOIDCly/internal/jwk"
)

// DefaultClockSkew is used when ClockSkew is zero.
const DefaultClockSkew = 5 * time.Second

// DefaultAllowedAlgs lists the asymmetric algorithms accepted by default.
var DefaultAllowedAlgs = []string{
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256", "ES384", "ES512",
	"EdDSA",
}

var (
	errMissingKid  = errors.New("token header has no kid")
	errUnknownKid  = errors.New("kid not in key set")
	errAlgMismatch = errors.New("token alg does not match key alg")
)

type Config struct {
	Issuer   string
	Audience string
	// AllowedAlgs restricts the token header alg. Symmetric algorithms and
	// "none" are always rejected. Defaults to DefaultAllowedAlgs.
	AllowedAlgs []string
	// ClockSkew is the leeway applied to exp, nbf and iat. Negative means none.
	ClockSkew time.Duration
}

// Claims is the validated payload of a token. It is never modified after
// Validate returns it.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time
	NotBefore time.Time
	KeyID     string
	Algorithm string
	// Raw holds every claim of the payload.
	Raw map[string]any
}

// Validator verifies signed tokens against a key set. It performs no network
// access and is safe for concurrent use.
type Validator struct {
	cfg        Config
	parserOpts []jwt.ParserOption
}

// New creates a Validator. Issuer and Audience must be set.
func New(cfg Config) (*Validator, error) {
	if cfg.Issuer == "" {
		return nil, failure.New(failure.ConfigurationMissing, "validator issuer is required")
	}
	if cfg.Audience == "" {
		return nil, failure.New(failure.ConfigurationMissing, "validator audience is required")
	}
	if len(cfg.AllowedAlgs) == 0 {
		cfg.AllowedAlgs = DefaultAllowedAlgs
	}
	for _, alg := range cfg.AllowedAlgs {
		if !asymmetric(alg) {
			return nil, fmt.Errorf("algorithm %q is not allowed for token verification", alg)
		}
	}
	switch {
	case cfg.ClockSkew == 0:
		cfg.ClockSkew = DefaultClockSkew
	case cfg.ClockSkew < 0:
		cfg.ClockSkew = 0
	}

	return &Validator{
		cfg: cfg,
		parserOpts: []jwt.ParserOption{
			jwt.WithValidMethods(cfg.AllowedAlgs),
			jwt.WithLeeway(cfg.ClockSkew),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		},
	}, nil
}

func asymmetric(alg string) bool {
	switch jwt.GetSigningMethod(alg).(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS, *jwt.SigningMethodECDSA, *jwt.SigningMethodEd25519:
		return true
	}
	return false
}

// Validate verifies tokenStr against keys at time now. The signature is
// checked before any claim. Every failure is a *failure.Error; an
// UnknownSigningKey failure tells the caller a refreshed key set may help.
func (v *Validator) Validate(tokenStr string, keys *jwk.KeySet, now time.Time) (*Claims, error) {
	var (
		kid string
		alg string
	)
	keyFunc := func(t *jwt.Token) (any, error) {
		alg = t.Method.Alg()
		kid, _ = t.Header["kid"].(string)
		if kid == "" {
			return nil, errMissingKid
		}
		key, ok := keys.Lookup(kid)
		if !ok {
			return nil, errUnknownKid
		}
		if key.Algorithm != "" && key.Algorithm != alg {
			return nil, errAlgMismatch
		}
		return key.Key, nil
	}

	opts := append(v.parserOpts[:len(v.parserOpts):len(v.parserOpts)],
		jwt.WithTimeFunc(func() time.Time { return now }))
	token, err := jwt.NewParser(opts...).Parse(tokenStr, keyFunc)
	if err != nil {
		return nil, classify(err, kid)
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, failure.New(failure.MalformedToken, "unexpected claims type")
	}

	c := &Claims{KeyID: kid, Algorithm: alg, Raw: maps.Clone(map[string]any(mc))}
	c.Subject, _ = mc.GetSubject()
	c.Issuer, _ = mc.GetIssuer()
	c.Audience, _ = mc.GetAudience()
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if nbf, err := mc.GetNotBefore(); err == nil && nbf != nil {
		c.NotBefore = nbf.Time
	}

	if c.Issuer != v.cfg.Issuer {
		return nil, failure.New(failure.IssuerMismatch, "token issuer does not match")
	}
	if !slices.Contains(c.Audience, v.cfg.Audience) {
		return nil, failure.New(failure.AudienceMismatch, "token audience does not match")
	}
	return c, nil
}

// classify maps a parser error onto the failure taxonomy. Order matters:
// key resolution problems are reported before the generic parser kinds.
func classify(err error, kid string) *failure.Error {
	switch {
	case errors.Is(err, errUnknownKid):
		return failure.Wrap(failure.UnknownSigningKey, "kid "+kid, err)
	case errors.Is(err, errMissingKid):
		return failure.Wrap(failure.MalformedToken, "missing kid", err)
	case errors.Is(err, errAlgMismatch):
		return failure.Wrap(failure.SignatureInvalid, "algorithm mismatch", err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return failure.Wrap(failure.MalformedToken, "", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return failure.Wrap(failure.SignatureInvalid, "", err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return failure.Wrap(failure.MalformedToken, "required claim missing", err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return failure.Wrap(failure.TokenExpired, "", err)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return failure.Wrap(failure.TokenNotYetValid, "", err)
	default:
		return failure.Wrap(failure.MalformedToken, "", err)
	}
}
