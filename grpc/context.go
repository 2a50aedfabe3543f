// Package grpc lets downstream gRPC services consume the gateway's session
// credential: interceptors verify the bearer token from request metadata
// and place the authenticated account email in the handler context.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

// DefaultMetadataKeyAuthorization is the metadata key carrying the session
// credential.
const DefaultMetadataKeyAuthorization = "authorization"

type emailContextKey struct{}

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeyAuthorization is the gRPC metadata key holding the bearer
	// session token. Defaults to "authorization".
	MetadataKeyAuthorization string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{MetadataKeyAuthorization: DefaultMetadataKeyAuthorization}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
}

// EmailFromContext returns the account email the interceptor verified.
// Returns empty string for unauthenticated requests.
func EmailFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(emailContextKey{}).(string); ok {
		return v
	}
	return ""
}

// WithEmail returns a context carrying the verified account email.
func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailContextKey{}, email)
}

// IsAuthenticated returns true if there is a verified account in the context.
func IsAuthenticated(ctx context.Context) bool {
	return EmailFromContext(ctx) != ""
}

// TokenToOutgoingContext attaches a session credential to outgoing gRPC
// metadata for calls into a protected service.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return TokenToOutgoingContextWithKey(ctx, token, DefaultMetadataKeyAuthorization)
}

// TokenToOutgoingContextWithKey attaches a session credential with a custom key.
func TokenToOutgoingContextWithKey(ctx context.Context, token string, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, key, "Bearer "+token)
}

// bearerTokens extracts candidate tokens from incoming request metadata.
func bearerTokens(ctx context.Context, config *Config) []string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil
	}
	var tokens []string
	for _, value := range md.Get(config.MetadataKeyAuthorization) {
		tokens = append(tokens, strings.TrimPrefix(value, "Bearer "))
	}
	return tokens
}
