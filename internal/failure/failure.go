// Package failure defines the verification error taxonomy shared by the
// discovery, key cache and token validation layers.
//
// Concurrency: all types are immutable once constructed.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies why a verification step failed.
type Kind string

const (
	MissingAuthHeader    Kind = "missing_auth_header"
	MalformedToken       Kind = "malformed_token"
	UnknownSigningKey    Kind = "unknown_signing_key"
	SignatureInvalid     Kind = "signature_invalid"
	TokenExpired         Kind = "token_expired"
	TokenNotYetValid     Kind = "token_not_yet_valid"
	IssuerMismatch       Kind = "issuer_mismatch"
	AudienceMismatch     Kind = "audience_mismatch"
	DiscoveryFailure     Kind = "discovery_failure"
	ConfigurationMissing Kind = "configuration_missing"
)

// Cause refines a DiscoveryFailure.
type Cause string

const (
	CauseNone         Cause = ""
	CauseNetwork      Cause = "network"
	CauseHTTPStatus   Cause = "http_status"
	CauseParse        Cause = "parse"
	CauseMissingField Cause = "missing_field"
)

// Error is the single error type produced by the verification pipeline.
// Err carries the lower-level detail and is never shown to callers of the
// inbound adapters.
type Error struct {
	Kind   Kind
	Cause  Cause
	Detail string
	// Status is the HTTP status code for CauseHTTPStatus failures.
	Status int
	Err    error
}

// New builds an Error of the given kind.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds an Error of the given kind wrapping err.
func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// Discovery builds a DiscoveryFailure with the given cause.
func Discovery(cause Cause, detail string, err error) *Error {
	return &Error{Kind: DiscoveryFailure, Cause: cause, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Cause != CauseNone {
		msg += "(" + string(e.Cause) + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, and by cause when the target sets one.
// This lets callers compare against kind sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Cause == CauseNone || t.Cause == e.Cause
}

// HTTPStatus builds a DiscoveryFailure for a non-2xx response.
func HTTPStatus(status int, detail string) *Error {
	return &Error{Kind: DiscoveryFailure, Cause: CauseHTTPStatus, Status: status, Detail: detail}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// CauseOf returns the discovery Cause of err, or CauseNone.
func CauseOf(err error) Cause {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Cause
	}
	return CauseNone
}
