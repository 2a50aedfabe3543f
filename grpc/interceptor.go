package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// VerifyTokenFunc checks a session credential and returns the account email
// it names. The gateway's session issuer satisfies this.
type VerifyTokenFunc func(tokenString string) (email string, err error)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// VerifyToken validates the bearer token. Required. The interceptor
	// never trusts caller-asserted identity metadata; it only accepts
	// identities proven by a verifiable token.
	VerifyToken VerifyTokenFunc

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but EmailFromContext returns empty.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Only used when RequireAuth is true.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// NewInterceptorConfig returns a config that requires auth for all methods.
func NewInterceptorConfig(verify VerifyTokenFunc) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		VerifyToken:   verify,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig(verify VerifyTokenFunc) *InterceptorConfig {
	config := NewInterceptorConfig(verify)
	config.RequireAuth = false
	return config
}

// WithPublicMethods marks the given full method names as not requiring auth.
func (c *InterceptorConfig) WithPublicMethods(methods ...string) *InterceptorConfig {
	for _, method := range methods {
		c.PublicMethods[method] = true
	}
	return c
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that verifies the
// session credential from request metadata.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, config, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns a gRPC stream interceptor that verifies the
// session credential from request metadata.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), config, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
	}
}

func authenticate(ctx context.Context, config *InterceptorConfig, fullMethod string) (context.Context, error) {
	if config == nil || config.VerifyToken == nil {
		return ctx, status.Error(codes.Internal, "auth interceptor not configured")
	}
	if config.Config == nil {
		config.Config = DefaultConfig()
	}
	config.Config.EnsureDefaults()

	email := verifyFirstToken(ctx, config)
	if email == "" && config.RequireAuth && !config.PublicMethods[fullMethod] {
		return ctx, status.Error(codes.Unauthenticated, "authentication required")
	}
	if email != "" {
		ctx = WithEmail(ctx, email)
	}
	return ctx, nil
}

func verifyFirstToken(ctx context.Context, config *InterceptorConfig) string {
	for _, token := range bearerTokens(ctx, config.Config) {
		if email, err := config.VerifyToken(token); err == nil && email != "" {
			return email
		}
	}
	return ""
}

// wrappedStream overrides the stream context with the authenticated one.
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }
