package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/teamspace/pkg/domain"
)

// AccountStore persists accounts, credentials, and provider links.
type AccountStore interface {
	CreateWithPassword(ctx context.Context, account *domain.Account, password *domain.AccountPassword) error
	CreateWithProviderLink(ctx context.Context, account *domain.Account, link *domain.ProviderLink) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetPassword(ctx context.Context, accountID uuid.UUID) (*domain.AccountPassword, error)
	ConfirmEmail(ctx context.Context, id uuid.UUID) error
	IncrementFailedLoginAttempts(ctx context.Context, id uuid.UUID, lockoutDuration time.Duration, maxAttempts int) error
	ResetFailedLoginAttempts(ctx context.Context, id uuid.UUID) error
	GetProviderLink(ctx context.Context, provider, subject string) (*domain.ProviderLink, error)
	CreateProviderLink(ctx context.Context, link *domain.ProviderLink) error
}

// SessionStore persists refresh sessions.
type SessionStore interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeByTokenHash(ctx context.Context, tokenHash string) error
	RevokeAllByAccountID(ctx context.Context, accountID uuid.UUID) error
	UpdateLastSeen(ctx context.Context, id uuid.UUID) error
}
