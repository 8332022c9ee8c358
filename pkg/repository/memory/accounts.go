package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/tendant/teamspace/pkg/domain"
)

type accountRecord struct {
	ID      string
	Email   string
	Account domain.Account
}

type passwordRecord struct {
	AccountID string
	Password  domain.AccountPassword
}

type providerLinkRecord struct {
	ID              string
	Provider        string
	ProviderSubject string
	Link            domain.ProviderLink
}

// Accounts is the in-memory account store.
type Accounts struct {
	s *Store
}

// CreateWithPassword creates an account and its password atomically.
func (a *Accounts) CreateWithPassword(_ context.Context, account *domain.Account, password *domain.AccountPassword) error {
	txn := a.s.db.Txn(true)
	defer txn.Abort()

	if err := insertAccount(txn, account); err != nil {
		return err
	}
	if err := txn.Insert(tblPasswords, &passwordRecord{
		AccountID: password.AccountID.String(),
		Password:  *password,
	}); err != nil {
		return fmt.Errorf("insert password: %w", err)
	}
	txn.Commit()
	return nil
}

// CreateWithProviderLink creates an account linked to an external provider.
func (a *Accounts) CreateWithProviderLink(_ context.Context, account *domain.Account, link *domain.ProviderLink) error {
	txn := a.s.db.Txn(true)
	defer txn.Abort()

	if err := insertAccount(txn, account); err != nil {
		return err
	}
	if err := insertProviderLink(txn, link); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// GetByID retrieves an account by ID.
func (a *Accounts) GetByID(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	return a.first("id", id.String())
}

// GetByEmail retrieves an account by case-insensitive email.
func (a *Accounts) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	return a.first("email", strings.ToLower(email))
}

// GetPassword retrieves the password credential of an account.
func (a *Accounts) GetPassword(_ context.Context, accountID uuid.UUID) (*domain.AccountPassword, error) {
	txn := a.s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblPasswords, "id", accountID.String())
	if err != nil {
		return nil, fmt.Errorf("find password: %w", err)
	}
	if raw == nil {
		return nil, domain.ErrAccountNotFound
	}
	cred := raw.(*passwordRecord).Password
	return &cred, nil
}

// ConfirmEmail marks the account's email address as confirmed.
func (a *Accounts) ConfirmEmail(_ context.Context, id uuid.UUID) error {
	return a.update(id, func(account *domain.Account) {
		if account.EmailConfirmedAt == nil {
			now := time.Now()
			account.EmailConfirmedAt = &now
		}
	})
}

// IncrementFailedLoginAttempts increments the failure counter and locks the
// account once maxAttempts is reached.
func (a *Accounts) IncrementFailedLoginAttempts(_ context.Context, id uuid.UUID, lockoutDuration time.Duration, maxAttempts int) error {
	return a.update(id, func(account *domain.Account) {
		account.FailedLoginAttempts++
		if account.FailedLoginAttempts >= maxAttempts {
			until := time.Now().Add(lockoutDuration)
			account.LockedUntil = &until
		}
	})
}

// ResetFailedLoginAttempts resets the failure counter and clears lockout.
func (a *Accounts) ResetFailedLoginAttempts(_ context.Context, id uuid.UUID) error {
	return a.update(id, func(account *domain.Account) {
		account.FailedLoginAttempts = 0
		account.LockedUntil = nil
	})
}

// GetProviderLink retrieves a provider link by provider and subject.
func (a *Accounts) GetProviderLink(_ context.Context, provider, subject string) (*domain.ProviderLink, error) {
	txn := a.s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblProviderLinks, "provider_subject", provider, subject)
	if err != nil {
		return nil, fmt.Errorf("find provider link: %w", err)
	}
	if raw == nil {
		return nil, domain.ErrProviderLinkNotFound
	}
	link := raw.(*providerLinkRecord).Link
	return &link, nil
}

// CreateProviderLink links an existing account to an external provider.
func (a *Accounts) CreateProviderLink(_ context.Context, link *domain.ProviderLink) error {
	txn := a.s.db.Txn(true)
	defer txn.Abort()

	if err := insertProviderLink(txn, link); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (a *Accounts) first(index string, args ...interface{}) (*domain.Account, error) {
	txn := a.s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblAccounts, index, args...)
	if err != nil {
		return nil, fmt.Errorf("find account by %s: %w", index, err)
	}
	if raw == nil {
		return nil, domain.ErrAccountNotFound
	}
	account := raw.(*accountRecord).Account
	return &account, nil
}

func (a *Accounts) update(id uuid.UUID, fn func(account *domain.Account)) error {
	txn := a.s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblAccounts, "id", id.String())
	if err != nil {
		return fmt.Errorf("find account by id: %w", err)
	}
	if raw == nil {
		return domain.ErrAccountNotFound
	}

	record := *raw.(*accountRecord)
	fn(&record.Account)
	record.Account.UpdatedAt = time.Now()
	if err := txn.Insert(tblAccounts, &record); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	txn.Commit()
	return nil
}

func insertAccount(txn *memdb.Txn, account *domain.Account) error {
	existing, err := txn.First(tblAccounts, "email", strings.ToLower(account.Email))
	if err != nil {
		return fmt.Errorf("find account by email: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("%s: %w", account.Email, domain.ErrDuplicateKey)
	}
	if err := txn.Insert(tblAccounts, &accountRecord{
		ID:      account.ID.String(),
		Email:   account.Email,
		Account: *account,
	}); err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func insertProviderLink(txn *memdb.Txn, link *domain.ProviderLink) error {
	existing, err := txn.First(tblProviderLinks, "provider_subject", link.Provider, link.ProviderSubject)
	if err != nil {
		return fmt.Errorf("find provider link: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("%s/%s: %w", link.Provider, link.ProviderSubject, domain.ErrDuplicateKey)
	}
	if err := txn.Insert(tblProviderLinks, &providerLinkRecord{
		ID:              link.ID.String(),
		Provider:        link.Provider,
		ProviderSubject: link.ProviderSubject,
		Link:            *link,
	}); err != nil {
		return fmt.Errorf("insert provider link: %w", err)
	}
	return nil
}
