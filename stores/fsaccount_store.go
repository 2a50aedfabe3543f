// Package stores provides the file-backed account store: the whole account
// collection lives in a single JSON document, read in full and rewritten in
// full on every mutation.
package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dsavitsk/authgate"
)

// FSAccountStore keeps all accounts in one accounts.json document under the
// storage path. It performs no locking of its own; the resolver serializes
// load-mutate-save units.
type FSAccountStore struct {
	StoragePath string
}

func NewFSAccountStore(storagePath string) *FSAccountStore {
	return &FSAccountStore{StoragePath: storagePath}
}

func (s *FSAccountStore) accountsPath() string {
	return filepath.Join(s.StoragePath, "accounts.json")
}

// Load returns the full collection. A missing file means no users yet; an
// unreadable or corrupt file is an error, not an empty store.
func (s *FSAccountStore) Load(ctx context.Context) ([]*authgate.Account, error) {
	data, err := os.ReadFile(s.accountsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return []*authgate.Account{}, nil
		}
		return nil, fmt.Errorf("reading account store: %w", err)
	}

	var accounts []*authgate.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("decoding account store: %w", err)
	}
	return accounts, nil
}

// Save replaces all prior data with the given collection.
func (s *FSAccountStore) Save(ctx context.Context, accounts []*authgate.Account) error {
	if err := os.MkdirAll(s.StoragePath, 0755); err != nil {
		return fmt.Errorf("creating storage dir: %w", err)
	}
	data, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding account store: %w", err)
	}
	return writeAtomicFile(s.accountsPath(), data)
}
