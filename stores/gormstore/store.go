// Package gormstore implements the account store over a relational table
// via GORM, for deployments that outgrow the flat-file store. The contract
// is unchanged: Load returns the full collection, Save replaces it.
package gormstore

import (
	"context"

	"gorm.io/gorm"

	"github.com/dsavitsk/authgate"
)

// AutoMigrate runs database migrations for the account table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&AccountModel{})
}

// AccountStore implements authgate.AccountStore using GORM.
type AccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Load(ctx context.Context) ([]*authgate.Account, error) {
	var models []AccountModel
	if err := s.db.WithContext(ctx).Order("created_at").Find(&models).Error; err != nil {
		return nil, err
	}
	accounts := make([]*authgate.Account, 0, len(models))
	for i := range models {
		accounts = append(accounts, fromModel(&models[i]))
	}
	return accounts, nil
}

// Save replaces all prior rows with the given collection in one
// transaction.
func (s *AccountStore) Save(ctx context.Context, accounts []*authgate.Account) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&AccountModel{}).Error; err != nil {
			return err
		}
		for _, a := range accounts {
			if err := tx.Create(toModel(a)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
