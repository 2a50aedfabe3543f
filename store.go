package authgate

import "context"

// AccountStore is the durable mapping from account to identity record.
// Load returns the full collection (an empty slice when no backing data
// exists yet); Save replaces the full collection. Callers must treat a
// load-mutate-save sequence as one unit and serialize it themselves; the
// Resolver owns that critical section.
type AccountStore interface {
	Load(ctx context.Context) ([]*Account, error)
	Save(ctx context.Context, accounts []*Account) error
}

// FindByEmail returns the account with the given email, or nil.
func FindByEmail(accounts []*Account, email string) *Account {
	for _, a := range accounts {
		if a.Email == email {
			return a
		}
	}
	return nil
}

// FindBySubject returns the account whose provider identity carries the
// given subject, or nil. Lookup is by (provider, sub), never by email, so
// two local accounts are not merged just because a provider reports the
// same address.
func FindBySubject(accounts []*Account, provider, subject string) *Account {
	for _, a := range accounts {
		if ident := a.Identity(provider); ident != nil && ident.Subject == subject {
			return a
		}
	}
	return nil
}

// FindByPasskeyRawID returns the account holding the passkey credential
// with the given raw id, or nil.
func FindByPasskeyRawID(accounts []*Account, rawID string) *Account {
	for _, a := range accounts {
		if a.Passkey != nil && a.Passkey.RawID == rawID {
			return a
		}
	}
	return nil
}
