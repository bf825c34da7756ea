package oidcly

import "github.com/keksclan/goOIDCly/internal/failure"

// Kind classifies a verification failure. It is meant for logs and metrics;
// callers of a protected endpoint only ever see ErrUnauthorized.
type Kind = failure.Kind

// Cause refines a discovery failure.
type Cause = failure.Cause

// Error is the error type returned by Engine.
type Error = failure.Error

const (
	KindMissingAuthHeader    = failure.MissingAuthHeader
	KindMalformedToken       = failure.MalformedToken
	KindUnknownSigningKey    = failure.UnknownSigningKey
	KindSignatureInvalid     = failure.SignatureInvalid
	KindTokenExpired         = failure.TokenExpired
	KindTokenNotYetValid     = failure.TokenNotYetValid
	KindIssuerMismatch       = failure.IssuerMismatch
	KindAudienceMismatch     = failure.AudienceMismatch
	KindDiscoveryFailure     = failure.DiscoveryFailure
	KindConfigurationMissing = failure.ConfigurationMissing

	CauseNetwork      = failure.CauseNetwork
	CauseHTTPStatus   = failure.CauseHTTPStatus
	CauseParse        = failure.CauseParse
	CauseMissingField = failure.CauseMissingField
)

// Sentinels for errors.Is. Matching is by kind.
var (
	ErrMissingAuthHeader    = &failure.Error{Kind: failure.MissingAuthHeader}
	ErrMalformedToken       = &failure.Error{Kind: failure.MalformedToken}
	ErrUnknownSigningKey    = &failure.Error{Kind: failure.UnknownSigningKey}
	ErrSignatureInvalid     = &failure.Error{Kind: failure.SignatureInvalid}
	ErrTokenExpired         = &failure.Error{Kind: failure.TokenExpired}
	ErrTokenNotYetValid     = &failure.Error{Kind: failure.TokenNotYetValid}
	ErrIssuerMismatch       = &failure.Error{Kind: failure.IssuerMismatch}
	ErrAudienceMismatch     = &failure.Error{Kind: failure.AudienceMismatch}
	ErrDiscoveryFailure     = &failure.Error{Kind: failure.DiscoveryFailure}
	ErrConfigurationMissing = &failure.Error{Kind: failure.ConfigurationMissing}
)

// UnauthorizedMessage is the only failure text exposed to remote callers.
const UnauthorizedMessage = "unauthorized"

// KindOf returns the Kind of err, or "" if err did not come from this package.
func KindOf(err error) Kind { return failure.KindOf(err) }

// CauseOf returns the discovery Cause of err, if any.
func CauseOf(err error) Cause { return failure.CauseOf(err) }
