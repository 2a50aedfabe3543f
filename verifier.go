package authgate

import "context"

// ProofVerifier turns an inbound provider-specific proof into a verified
// external identity claim, or rejects it. OAuth-style providers implement
// it over an authorization-code exchange; the gateway dispatches on the
// provider tag, so adding a provider is a new variant rather than new
// conditional branches in the routes.
type ProofVerifier interface {
	// Provider returns the provider tag ("apple", "google").
	Provider() string

	// AuthCodeURL builds the provider authorization URL for the initiation
	// step. The redirect URI distinguishes login callbacks from link
	// callbacks and must be repeated on VerifyCode.
	AuthCodeURL(redirectURI, state string) string

	// VerifyCode exchanges the authorization code and validates the
	// returned identity assertion. The context bounds and cancels the
	// outbound provider calls.
	VerifyCode(ctx context.Context, code, redirectURI string) (VerifiedIdentity, error)
}
