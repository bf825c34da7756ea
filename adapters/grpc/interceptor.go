// Package oidclygrpc provides gRPC interceptors for goOIDCly.
//
// The interceptors read the bearer token from the "authorization" metadata
// key and delegate verification to the engine. On success, the resulting
// oidcly.Result is injected into the context.
//
// Concurrency: All exported functions are safe for concurrent use.
package oidclygrpc

import (
	"context"
	"strings"

	"github.com/keksclan/goOIDCly/adapters/common"
	"github.com/keksclan/goOIDCly/oidcly"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type contextKey struct{}

// ResultFromContext retrieves the oidcly.Result stored in the context by the interceptor.
// Returns nil if no result is present.
func ResultFromContext(ctx context.Context) *oidcly.Result {
	v, _ := ctx.Value(contextKey{}).(*oidcly.Result)
	return v
}

func contextWithResult(ctx context.Context, r *oidcly.Result) context.Context {
	return context.WithValue(ctx, contextKey{}, r)
}

// Option configures the gRPC interceptors.
type Option func(*options)

type options struct {
	common.AdapterOptions
}

// WithRequiredMetadata specifies metadata keys that must be present in
// incoming gRPC metadata before authentication proceeds.
func WithRequiredMetadata(keys ...string) Option {
	return func(o *options) {
		o.RequiredMeta.Keys = keys
		o.RequiredMeta.Enabled = true
	}
}

// WithIdentityRequired rejects tokens without an extractable identity.
func WithIdentityRequired() Option {
	return func(o *options) {
		o.RequireIdentity = true
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// UnaryServerInterceptor returns a gRPC unary server interceptor that
// authenticates requests with a. On failure it returns codes.Unauthenticated.
func UnaryServerInterceptor(a common.Authenticator, opts ...Option) grpc.UnaryServerInterceptor {
	o := buildOptions(opts)
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		newCtx, err := authenticate(ctx, a, &o)
		if err != nil {
			return nil, err
		}
		return handler(newCtx, req)
	}
}

// StreamServerInterceptor returns a gRPC stream server interceptor that
// authenticates requests with a.
//
// Behavior is identical to UnaryServerInterceptor but for streaming RPCs.
func StreamServerInterceptor(a common.Authenticator, opts ...Option) grpc.StreamServerInterceptor {
	o := buildOptions(opts)
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		newCtx, err := authenticate(ss.Context(), a, &o)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: newCtx})
	}
}

// wrappedStream overrides the context of a grpc.ServerStream.
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context containing the oidcly.Result.
func (w *wrappedStream) Context() context.Context { return w.ctx }

// grpcMetadataExtractor adapts gRPC incoming metadata to the MetadataExtractor interface.
type grpcMetadataExtractor struct {
	md metadata.MD
}

func (e *grpcMetadataExtractor) Get(key string) (string, bool) {
	// gRPC metadata keys are always lower-case.
	vals := e.md.Get(strings.ToLower(key))
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

func authenticate(ctx context.Context, a common.Authenticator, o *options) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	result, err := common.Authenticate(ctx, a, &grpcMetadataExtractor{md: md}, o.AdapterOptions)
	if err != nil {
		return ctx, status.Error(codes.Unauthenticated, oidcly.UnauthorizedMessage)
	}
	return contextWithResult(ctx, result), nil
}
