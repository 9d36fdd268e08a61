package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"

	"fluxmail/models"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrDuplicateEmail     = errors.New("account with this email already exists")
	ErrDuplicateLogin     = errors.New("login is already taken")
	ErrInvalidCredentials = errors.New("invalid login or password")
)

// MaxPasswordLength is the longest local password bcrypt accepts, in bytes
const MaxPasswordLength = 72

// AccountStorage persists mailbox accounts in bbolt. Accounts are keyed by a
// sequential id; email and login are unique secondary indexes.
type AccountStorage struct {
	db  *bbolt.DB
	now func() time.Time
}

// NewAccountStorage creates a new account storage instance
func NewAccountStorage(db *bbolt.DB) *AccountStorage {
	return &AccountStorage{db: db, now: time.Now}
}

func idKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func emailKey(email string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(email)))
}

// CreateAccount stores a new account, hashing password as its local login
// password. ID and CreatedAt are assigned here.
func (s *AccountStorage) CreateAccount(acc *models.Account, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		emails := tx.Bucket(accountEmailsBucket)
		logins := tx.Bucket(accountLoginsBucket)

		if emails.Get(emailKey(acc.Email)) != nil {
			return ErrDuplicateEmail
		}
		if logins.Get([]byte(acc.Login)) != nil {
			return ErrDuplicateLogin
		}

		accounts := tx.Bucket(accountsBucket)
		id, err := accounts.NextSequence()
		if err != nil {
			return err
		}

		acc.ID = id
		acc.PasswordHash = string(hashed)
		acc.CreatedAt = s.now().UTC()

		if err := putAccount(accounts, acc); err != nil {
			return err
		}
		if err := emails.Put(emailKey(acc.Email), idKey(id)); err != nil {
			return err
		}
		return logins.Put([]byte(acc.Login), idKey(id))
	})
}

// GetAccount retrieves an account by ID
func (s *AccountStorage) GetAccount(id uint64) (*models.Account, error) {
	var acc *models.Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		acc, err = getAccount(tx.Bucket(accountsBucket), id)
		return err
	})
	return acc, err
}

// FindByEmail retrieves an account by mailbox address, case-insensitively
func (s *AccountStorage) FindByEmail(email string) (*models.Account, error) {
	return s.findByIndex(accountEmailsBucket, emailKey(email))
}

// FindByLogin retrieves an account by local login
func (s *AccountStorage) FindByLogin(login string) (*models.Account, error) {
	return s.findByIndex(accountLoginsBucket, []byte(login))
}

func (s *AccountStorage) findByIndex(index, key []byte) (*models.Account, error) {
	var acc *models.Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(index).Get(key)
		if raw == nil {
			return ErrAccountNotFound
		}
		var err error
		acc, err = getAccount(tx.Bucket(accountsBucket), binary.BigEndian.Uint64(raw))
		return err
	})
	return acc, err
}

// VerifyLogin checks a local login and password. Unknown logins and wrong
// passwords both yield ErrInvalidCredentials.
func (s *AccountStorage) VerifyLogin(login, password string) (*models.Account, error) {
	acc, err := s.FindByLogin(login)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return acc, nil
}

// ListAccounts returns all accounts, newest first
func (s *AccountStorage) ListAccounts() ([]*models.Account, error) {
	accounts := []*models.Account{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(accountsBucket).ForEach(func(k, v []byte) error {
			var acc models.Account
			if err := json.Unmarshal(v, &acc); err != nil {
				return fmt.Errorf("failed to decode account %d: %w", binary.BigEndian.Uint64(k), err)
			}
			accounts = append(accounts, &acc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].ID > accounts[j].ID
		}
		return accounts[i].CreatedAt.After(accounts[j].CreatedAt)
	})
	return accounts, nil
}

// UpdateAccount applies the administrative fields set in upd
func (s *AccountStorage) UpdateAccount(id uint64, upd models.AccountUpdate) (*models.Account, error) {
	var hashed []byte
	if upd.Password != nil {
		var err error
		hashed, err = bcrypt.GenerateFromPassword([]byte(*upd.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
	}

	var acc *models.Account
	err := s.db.Update(func(tx *bbolt.Tx) error {
		accounts := tx.Bucket(accountsBucket)
		var err error
		acc, err = getAccount(accounts, id)
		if err != nil {
			return err
		}

		if upd.Login != nil && *upd.Login != acc.Login {
			logins := tx.Bucket(accountLoginsBucket)
			if logins.Get([]byte(*upd.Login)) != nil {
				return ErrDuplicateLogin
			}
			if err := logins.Delete([]byte(acc.Login)); err != nil {
				return err
			}
			if err := logins.Put([]byte(*upd.Login), idKey(id)); err != nil {
				return err
			}
			acc.Login = *upd.Login
		}
		if hashed != nil {
			acc.PasswordHash = string(hashed)
		}
		if upd.Active != nil {
			acc.Active = *upd.Active
		}
		if upd.DisplayName != nil {
			acc.DisplayName = *upd.DisplayName
		}

		return putAccount(accounts, acc)
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// UpdateRefreshToken replaces the stored refresh token after a rotation
func (s *AccountStorage) UpdateRefreshToken(id uint64, token string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		accounts := tx.Bucket(accountsBucket)
		acc, err := getAccount(accounts, id)
		if err != nil {
			return err
		}
		acc.RefreshToken = token
		return putAccount(accounts, acc)
	})
}

// DeleteAccount removes an account and its index entries
func (s *AccountStorage) DeleteAccount(id uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		accounts := tx.Bucket(accountsBucket)
		acc, err := getAccount(accounts, id)
		if err != nil {
			return err
		}

		if err := tx.Bucket(accountEmailsBucket).Delete(emailKey(acc.Email)); err != nil {
			return err
		}
		if err := tx.Bucket(accountLoginsBucket).Delete([]byte(acc.Login)); err != nil {
			return err
		}
		return accounts.Delete(idKey(id))
	})
}

// Stats counts accounts by active flag
func (s *AccountStorage) Stats() (models.AccountStats, error) {
	var stats models.AccountStats
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(accountsBucket).ForEach(func(_, v []byte) error {
			var acc struct {
				Active bool `json:"active"`
			}
			if err := json.Unmarshal(v, &acc); err != nil {
				return err
			}
			stats.Total++
			if acc.Active {
				stats.Active++
			}
			return nil
		})
	})
	stats.Inactive = stats.Total - stats.Active
	return stats, err
}

func getAccount(b *bbolt.Bucket, id uint64) (*models.Account, error) {
	data := b.Get(idKey(id))
	if data == nil {
		return nil, ErrAccountNotFound
	}

	var acc models.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("failed to decode account %d: %w", id, err)
	}
	return &acc, nil
}

func putAccount(b *bbolt.Bucket, acc *models.Account) error {
	encoded, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("failed to encode account: %w", err)
	}
	return b.Put(idKey(acc.ID), encoded)
}
