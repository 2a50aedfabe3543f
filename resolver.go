package authgate

import (
	"context"
	"log/slog"
	"sync"
)

// Resolver is the identity-resolution core: it decides, for each verified
// external identity, whether it corresponds to an existing account, creates
// one if not, and merges provider identities onto a single account.
//
// The store contract is load-full/save-full with no concurrency control of
// its own, so the resolver serializes every load-mutate-save unit behind a
// single mutex. The critical section is the whole store; the data model has
// no per-account granularity to lock on.
type Resolver struct {
	store AccountStore
	mu    sync.Mutex
}

func NewResolver(store AccountStore) *Resolver {
	return &Resolver{store: store}
}

// ResolveOrCreate finds the account whose provider identity matches the
// verified subject, creating one when no match exists. On a match the
// provider identity is replaced wholesale so profile attributes refresh on
// every login. Resolution is idempotent per (provider, subject).
func (r *Resolver) ResolveOrCreate(ctx context.Context, ident VerifiedIdentity) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.store.Load(ctx)
	if err != nil {
		return nil, NewPersistenceError("load", err)
	}

	account := FindBySubject(accounts, ident.Provider, ident.Subject)
	if account == nil {
		account = &Account{Email: ident.Email, Password: nil}
		account.SetIdentity(ident.Provider, ident.AsProviderIdentity())
		accounts = append(accounts, account)
		slog.Info("created account from provider identity",
			"provider", ident.Provider, "email", ident.Email)
	} else {
		account.SetIdentity(ident.Provider, ident.AsProviderIdentity())
	}

	if err := r.store.Save(ctx, accounts); err != nil {
		return nil, NewPersistenceError("save", err)
	}
	return account, nil
}

// Link attaches a verified provider identity to the account named by an
// already-authenticated session. The account is found by the session email,
// never by provider subject, so linking can never create a second account
// for the session's email.
func (r *Resolver) Link(ctx context.Context, email string, ident VerifiedIdentity) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.store.Load(ctx)
	if err != nil {
		return nil, NewPersistenceError("load", err)
	}

	// Must exist under the session invariant, but handle it defensively.
	account := FindByEmail(accounts, email)
	if account == nil {
		return nil, NewNotFoundError("user not found")
	}
	account.SetIdentity(ident.Provider, ident.AsProviderIdentity())

	if err := r.store.Save(ctx, accounts); err != nil {
		return nil, NewPersistenceError("save", err)
	}
	return account, nil
}

// ResolveByPasskey finds the account holding the given passkey raw id.
// There is no create-on-missing: passkey accounts must already exist via
// the link flow.
func (r *Resolver) ResolveByPasskey(ctx context.Context, rawID string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.store.Load(ctx)
	if err != nil {
		return nil, NewPersistenceError("load", err)
	}
	account := FindByPasskeyRawID(accounts, rawID)
	if account == nil {
		return nil, NewNotFoundError("user not found")
	}
	return account, nil
}

// SetPasskey stores (or replaces) the passkey credential on the account
// with the given email. The model holds a single passkey per account.
func (r *Resolver) SetPasskey(ctx context.Context, email string, cred *PasskeyCredential) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.store.Load(ctx)
	if err != nil {
		return nil, NewPersistenceError("load", err)
	}
	account := FindByEmail(accounts, email)
	if account == nil {
		return nil, NewNotFoundError("user not found")
	}
	account.Passkey = cred

	if err := r.store.Save(ctx, accounts); err != nil {
		return nil, NewPersistenceError("save", err)
	}
	return account, nil
}

// UpdatePasskey replaces the credential payload on the account holding the
// given raw id. Used after a successful assertion to persist the updated
// sign counter.
func (r *Resolver) UpdatePasskey(ctx context.Context, rawID string, cred *PasskeyCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.store.Load(ctx)
	if err != nil {
		return NewPersistenceError("load", err)
	}
	account := FindByPasskeyRawID(accounts, rawID)
	if account == nil {
		return NewNotFoundError("user not found")
	}
	account.Passkey = cred

	if err := r.store.Save(ctx, accounts); err != nil {
		return NewPersistenceError("save", err)
	}
	return nil
}

// CreateLocal registers a password account. Registration with an email that
// is already present is rejected and leaves the store unchanged.
func (r *Resolver) CreateLocal(ctx context.Context, email, passwordHash string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.store.Load(ctx)
	if err != nil {
		return nil, NewPersistenceError("load", err)
	}
	if FindByEmail(accounts, email) != nil {
		return nil, NewValidationError(ErrCodeEmailExists, "User already exists", "email")
	}

	account := &Account{Email: email, Password: &passwordHash}
	accounts = append(accounts, account)

	if err := r.store.Save(ctx, accounts); err != nil {
		return nil, NewPersistenceError("save", err)
	}
	slog.Info("registered local account", "email", email)
	return account, nil
}

// FindByEmail is a read-only lookup by primary email.
func (r *Resolver) FindByEmail(ctx context.Context, email string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.store.Load(ctx)
	if err != nil {
		return nil, NewPersistenceError("load", err)
	}
	account := FindByEmail(accounts, email)
	if account == nil {
		return nil, NewNotFoundError("user not found")
	}
	return account, nil
}
