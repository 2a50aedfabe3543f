// Package oauth2 implements the Apple and Google proof verifiers: each
// turns an authorization code from a provider callback into a verified
// identity claim via the provider's token endpoint.
package oauth2

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// defaultExchangeTimeout bounds outbound provider calls when the request
// context carries no earlier deadline.
const defaultExchangeTimeout = 10 * time.Second

// base carries the pieces shared by the OAuth-style verifiers.
type base struct {
	name   string
	config oauth2.Config

	// HTTPClient overrides the client used for token-endpoint calls.
	// Mainly for tests.
	httpClient *http.Client
}

// authCodeURL builds the provider authorization URL with the per-flow
// redirect URI (login callbacks and link callbacks differ).
func (b *base) authCodeURL(redirectURI, state string, opts ...oauth2.AuthCodeOption) string {
	opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	return b.config.AuthCodeURL(state, opts...)
}

// exchange swaps the authorization code for tokens. The redirect URI must
// match the one the code was issued for.
func (b *base) exchange(ctx context.Context, cfg oauth2.Config, code, redirectURI string) (*oauth2.Token, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultExchangeTimeout)
		defer cancel()
	}
	if b.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
	}
	return cfg.Exchange(ctx, code, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
}

func (b *base) Provider() string { return b.name }

// claimString pulls a string claim out of a decoded token payload.
func claimString(claims map[string]any, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
