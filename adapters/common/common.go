// Package common provides shared adapter utilities for goOIDCly.
//
// Concurrency: All exported types and functions are safe for concurrent use.
package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/keksclan/goOIDCly/oidcly"
)

var (
	// ErrMissingRequiredMetadata is returned when a required header or
	// metadata key is absent.
	ErrMissingRequiredMetadata = errors.New("missing required metadata")
	// ErrIdentityRequired is returned when the token is valid but no
	// identity could be extracted and the adapter requires one.
	ErrIdentityRequired = errors.New("verified token carries no identity")
)

// UnauthorizedBody is the JSON body written for every rejected HTTP request.
const UnauthorizedBody = `{"error":"` + oidcly.UnauthorizedMessage + `"}`

// Authenticator verifies an Authorization header value. *oidcly.Engine
// implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (*oidcly.Result, error)
}

// RejectionRecorder is implemented by authenticators that want to observe
// requests the adapter refuses on its own. *oidcly.Engine implements it.
type RejectionRecorder interface {
	RecordRejection(reason string, err error)
}

// Rejection reasons reported to a RejectionRecorder.
const (
	ReasonMissingRequiredMetadata = "missing_required_metadata"
	ReasonIdentityRequired        = "identity_required"
)

// MetadataExtractor abstracts reading metadata from different transports.
type MetadataExtractor interface {
	// Get returns the value for the given key and whether it was found.
	Get(key string) (string, bool)
}

// RequiredMetadata defines mandatory metadata keys that must be present
// in a request before authentication proceeds.
type RequiredMetadata struct {
	// Keys lists required metadata/header names.
	// For HTTP headers, comparison is case-insensitive.
	// For gRPC metadata, keys are treated as lower-case per gRPC conventions.
	Keys []string

	// Enabled controls whether metadata validation is active.
	// If false, Validate always returns nil.
	Enabled bool
}

// Validate checks that all required keys are present and non-empty.
func (r RequiredMetadata) Validate(ex MetadataExtractor) error {
	if !r.Enabled || len(r.Keys) == 0 {
		return nil
	}
	for _, key := range r.Keys {
		val, ok := ex.Get(key)
		if !ok || strings.TrimSpace(val) == "" {
			return fmt.Errorf("%w: %s", ErrMissingRequiredMetadata, key)
		}
	}
	return nil
}

// AdapterOptions holds common adapter configuration.
type AdapterOptions struct {
	RequiredMeta RequiredMetadata
	// RequireIdentity rejects valid tokens from which no identity could be
	// extracted.
	RequireIdentity bool
}

// Authenticate runs the shared adapter flow: required metadata, then the
// bearer token from the Authorization entry, then the identity policy. The
// returned error is for logging only; transports must answer with the
// generic unauthorized response. Token failures are recorded by the
// authenticator itself; adapter-side refusals are passed to a
// RejectionRecorder when a implements one.
func Authenticate(ctx context.Context, a Authenticator, ex MetadataExtractor, o AdapterOptions) (*oidcly.Result, error) {
	if err := o.RequiredMeta.Validate(ex); err != nil {
		reject(a, ReasonMissingRequiredMetadata, err)
		return nil, err
	}
	header, _ := ex.Get("Authorization")
	res, err := a.Authenticate(ctx, header)
	if err != nil {
		return nil, err
	}
	if o.RequireIdentity && res.Identity == "" {
		reject(a, ReasonIdentityRequired, ErrIdentityRequired)
		return nil, ErrIdentityRequired
	}
	return res, nil
}

func reject(a Authenticator, reason string, err error) {
	if r, ok := a.(RejectionRecorder); ok {
		r.RecordRejection(reason, err)
	}
}
