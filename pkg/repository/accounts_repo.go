package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/teamspace/pkg/domain"
)

const accountColumns = `id, email, email_confirmed_at, raw_user_meta_data,
	failed_login_attempts, locked_until, created_at, updated_at`

// AccountsRepository handles auth account persistence.
type AccountsRepository struct {
	db *sql.DB
}

// NewAccountsRepository creates a new accounts repository.
func NewAccountsRepository(db *sql.DB) *AccountsRepository {
	return &AccountsRepository{db: db}
}

// CreateTx creates a new account within a transaction.
func (r *AccountsRepository) CreateTx(ctx context.Context, q Querier, account *domain.Account) error {
	meta, err := json.Marshal(account.Metadata)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO auth_users (id, email, email_confirmed_at, raw_user_meta_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = q.ExecContext(ctx, query,
		account.ID, account.Email, account.EmailConfirmedAt, meta, account.CreatedAt, account.UpdatedAt,
	)
	return mapWriteError(err)
}

// CreateWithPassword creates an account and its password in one transaction.
func (r *AccountsRepository) CreateWithPassword(ctx context.Context, account *domain.Account, password *domain.AccountPassword) error {
	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.CreateTx(ctx, tx, account); err != nil {
			return err
		}
		query := `
			INSERT INTO auth_passwords (user_id, password_hash, password_updated_at)
			VALUES ($1, $2, $3)
		`
		_, err := tx.ExecContext(ctx, query, password.AccountID, password.PasswordHash, password.PasswordUpdatedAt)
		return mapWriteError(err)
	})
}

// CreateWithProviderLink creates an account linked to an external provider.
func (r *AccountsRepository) CreateWithProviderLink(ctx context.Context, account *domain.Account, link *domain.ProviderLink) error {
	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.CreateTx(ctx, tx, account); err != nil {
			return err
		}
		return createProviderLink(ctx, tx, link)
	})
}

// GetByID retrieves an account by ID.
func (r *AccountsRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM auth_users WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves an account by email.
func (r *AccountsRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM auth_users WHERE lower(email) = lower($1)`
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

// GetPassword retrieves the password credential of an account.
func (r *AccountsRepository) GetPassword(ctx context.Context, accountID uuid.UUID) (*domain.AccountPassword, error) {
	query := `
		SELECT user_id, password_hash, password_updated_at
		FROM auth_passwords
		WHERE user_id = $1
	`
	cred := &domain.AccountPassword{}
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(&cred.AccountID, &cred.PasswordHash, &cred.PasswordUpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// ConfirmEmail marks the account's email address as confirmed.
func (r *AccountsRepository) ConfirmEmail(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE auth_users
		SET email_confirmed_at = COALESCE(email_confirmed_at, NOW()), updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// IncrementFailedLoginAttempts increments the failed login attempts counter.
func (r *AccountsRepository) IncrementFailedLoginAttempts(ctx context.Context, id uuid.UUID, lockoutDuration time.Duration, maxAttempts int) error {
	query := `
		UPDATE auth_users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN NOW() + make_interval(secs => $3)
		        ELSE locked_until
		    END,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, maxAttempts, lockoutDuration.Seconds())
	return err
}

// ResetFailedLoginAttempts resets the failed login attempts and clears lockout.
func (r *AccountsRepository) ResetFailedLoginAttempts(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE auth_users
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// GetProviderLink retrieves a provider link by provider and subject.
func (r *AccountsRepository) GetProviderLink(ctx context.Context, provider, subject string) (*domain.ProviderLink, error) {
	query := `
		SELECT id, user_id, provider, provider_subject, email, created_at
		FROM auth_identities
		WHERE provider = $1 AND provider_subject = $2
	`
	link := &domain.ProviderLink{}
	err := r.db.QueryRowContext(ctx, query, provider, subject).Scan(
		&link.ID, &link.AccountID, &link.Provider, &link.ProviderSubject, &link.Email, &link.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProviderLinkNotFound
	}
	if err != nil {
		return nil, err
	}
	return link, nil
}

// CreateProviderLink links an existing account to an external provider.
func (r *AccountsRepository) CreateProviderLink(ctx context.Context, link *domain.ProviderLink) error {
	return createProviderLink(ctx, r.db, link)
}

func createProviderLink(ctx context.Context, q Querier, link *domain.ProviderLink) error {
	query := `
		INSERT INTO auth_identities (id, user_id, provider, provider_subject, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := q.ExecContext(ctx, query,
		link.ID, link.AccountID, link.Provider, link.ProviderSubject, link.Email, link.CreatedAt,
	)
	return mapWriteError(err)
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	account := &domain.Account{}
	var meta []byte
	err := row.Scan(
		&account.ID, &account.Email, &account.EmailConfirmedAt, &meta,
		&account.FailedLoginAttempts, &account.LockedUntil, &account.CreatedAt, &account.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &account.Metadata); err != nil {
			return nil, err
		}
	}
	return account, nil
}
