// Package authgate is a multi-provider authentication gateway. It lets a
// user register with a password, or authenticate and link via Apple Sign-In,
// Google Sign-In, or WebAuthn passkeys, and issues a signed session token
// usable by a downstream application.
//
// # Architecture
//
// Account: the central entity, keyed by email. An account may carry a bcrypt
// password hash, one linked identity per OAuth provider, and at most one
// passkey credential.
//
// Verifier: each provider (password, Apple, Google, passkey) turns an
// inbound proof into a VerifiedIdentity (subject, email, profile claims) or
// rejects it. Providers are a closed set of variants behind one capability,
// dispatched by a provider tag.
//
// Resolver: given a verified identity, finds the account by (provider, sub),
// creates one when absent, and merges provider identities onto a single
// account. Link flows attach a new provider identity to the account named by
// an already-verified session instead. All load-mutate-save units run under
// a single-writer critical section.
//
// SessionIssuer: mints and verifies the HS256 JWT session credential that
// names the account's email, valid for one hour.
//
// # Basic Usage
//
//	store := stores.NewFSAccountStore("/path/to/storage")
//	resolver := authgate.NewResolver(store)
//	issuer := authgate.NewSessionIssuer(cfg.JWTSecret)
//
//	gw := authgate.NewGateway(resolver, issuer)
//	gw.Origin = cfg.Origin
//	gw.AddLocal(&authgate.LocalAuth{Resolver: resolver})
//	gw.AddOAuth(oauth2.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret))
//
//	http.ListenAndServeTLS(addr, cert, key, gw.Handler())
//
// Passkey routes are mounted through Handle and HandleAuthed; see
// cmd/authgate for the full wiring.
//
// # Store Implementations
//
// The stores package provides a file-backed store that keeps the whole
// account collection in a single JSON document, suitable for development and
// small applications. stores/gormstore offers the same contract over a
// relational table for larger deployments.
//
// # Security
//
// Passwords are hashed with bcrypt at default cost. Session tokens are HS256
// JWTs with a fixed one-hour validity. Apple identity tokens are verified
// against Apple's published keys; Google identity tokens are decoded from
// the TLS token-endpoint exchange without a second signature check. Passkey
// assertions are verified cryptographically against the stored credential.
package authgate
