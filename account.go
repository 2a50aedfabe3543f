package authgate

import (
	"encoding/json"
	"time"
)

// Provider tags for the closed set of OAuth-style providers.
const (
	ProviderApple  = "apple"
	ProviderGoogle = "google"
)

// ProviderIdentity is a provider-linked external identity: the stable
// subject identifier plus the profile claims the provider asserted.
type ProviderIdentity struct {
	Subject  string         `json:"sub"`
	Email    string         `json:"email,omitempty"`
	Name     string         `json:"name,omitempty"`
	Claims   map[string]any `json:"claims,omitempty"`
	LinkedAt time.Time      `json:"linked_at,omitempty"`
}

// PasskeyCredential is the WebAuthn credential descriptor stored on an
// account. RawID is the base64url credential id used for lookups; Credential
// holds the serialized verifier-side credential (public key, sign counter).
type PasskeyCredential struct {
	ID         string          `json:"id"`
	RawID      string          `json:"raw_id"`
	UserHandle []byte          `json:"user_handle"`
	Credential json.RawMessage `json:"credential"`
}

// Account is a local user identity record keyed by email. Password is nil
// for provider-created accounts. Each provider slot holds at most one
// identity, and the model supports a single passkey per account.
type Account struct {
	Email    string             `json:"email"`
	Password *string            `json:"password"`
	Apple    *ProviderIdentity  `json:"apple,omitempty"`
	Google   *ProviderIdentity  `json:"google,omitempty"`
	Passkey  *PasskeyCredential `json:"passkey,omitempty"`
}

// Identity returns the identity linked for the given provider tag, or nil.
func (a *Account) Identity(provider string) *ProviderIdentity {
	switch provider {
	case ProviderApple:
		return a.Apple
	case ProviderGoogle:
		return a.Google
	}
	return nil
}

// SetIdentity replaces the identity slot for the given provider tag.
func (a *Account) SetIdentity(provider string, ident *ProviderIdentity) {
	switch provider {
	case ProviderApple:
		a.Apple = ident
	case ProviderGoogle:
		a.Google = ident
	}
}

// VerifiedIdentity is the (subject, email, attributes) tuple produced by
// successfully validating an external proof.
type VerifiedIdentity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
	Claims   map[string]any
}

// AsProviderIdentity converts a verified identity into the form stored on
// an account, stamping the link time.
func (v VerifiedIdentity) AsProviderIdentity() *ProviderIdentity {
	return &ProviderIdentity{
		Subject:  v.Subject,
		Email:    v.Email,
		Name:     v.Name,
		Claims:   v.Claims,
		LinkedAt: time.Now(),
	}
}
