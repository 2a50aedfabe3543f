package gormstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dsavitsk/authgate"
)

// IdentityJSON stores a provider identity as a JSON column.
type IdentityJSON struct {
	Identity *authgate.ProviderIdentity
}

func (j IdentityJSON) Value() (driver.Value, error) {
	if j.Identity == nil {
		return nil, nil
	}
	return json.Marshal(j.Identity)
}

func (j *IdentityJSON) Scan(value any) error {
	if value == nil {
		j.Identity = nil
		return nil
	}
	bytes, err := columnBytes(value)
	if err != nil || bytes == nil {
		return err
	}
	j.Identity = &authgate.ProviderIdentity{}
	return json.Unmarshal(bytes, j.Identity)
}

// PasskeyJSON stores a passkey credential as a JSON column.
type PasskeyJSON struct {
	Credential *authgate.PasskeyCredential
}

func (j PasskeyJSON) Value() (driver.Value, error) {
	if j.Credential == nil {
		return nil, nil
	}
	return json.Marshal(j.Credential)
}

func (j *PasskeyJSON) Scan(value any) error {
	if value == nil {
		j.Credential = nil
		return nil
	}
	bytes, err := columnBytes(value)
	if err != nil || bytes == nil {
		return err
	}
	j.Credential = &authgate.PasskeyCredential{}
	return json.Unmarshal(bytes, j.Credential)
}

func columnBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", value)
	}
}

// AccountModel is the GORM model for accounts.
type AccountModel struct {
	Email     string       `gorm:"primaryKey;size:255"`
	Password  *string      `gorm:"size:128"`
	Apple     IdentityJSON `gorm:"type:text"`
	Google    IdentityJSON `gorm:"type:text"`
	Passkey   PasskeyJSON  `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (AccountModel) TableName() string { return "authgate_accounts" }

func toModel(a *authgate.Account) *AccountModel {
	return &AccountModel{
		Email:    a.Email,
		Password: a.Password,
		Apple:    IdentityJSON{Identity: a.Apple},
		Google:   IdentityJSON{Identity: a.Google},
		Passkey:  PasskeyJSON{Credential: a.Passkey},
	}
}

func fromModel(m *AccountModel) *authgate.Account {
	return &authgate.Account{
		Email:    m.Email,
		Password: m.Password,
		Apple:    m.Apple.Identity,
		Google:   m.Google.Identity,
		Passkey:  m.Passkey.Credential,
	}
}
