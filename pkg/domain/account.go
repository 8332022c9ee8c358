package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserMetadata is the free-form profile data attached to an account at
// sign-up or by an OAuth provider.
type UserMetadata struct {
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Account is the principal known to the auth service.
type Account struct {
	ID                  uuid.UUID    `json:"id"`
	Email               string       `json:"email"`
	EmailConfirmedAt    *time.Time   `json:"email_confirmed_at,omitempty"`
	Metadata            UserMetadata `json:"user_metadata"`
	FailedLoginAttempts int          `json:"-"`
	LockedUntil         *time.Time   `json:"-"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// IsLocked returns true if the account is currently locked.
func (a *Account) IsLocked() bool {
	if a.LockedUntil == nil {
		return false
	}
	return time.Now().Before(*a.LockedUntil)
}

// IsConfirmed returns true once the email address has been confirmed.
func (a *Account) IsConfirmed() bool {
	return a.EmailConfirmedAt != nil
}

// AccountPassword stores password credentials separately from the account.
type AccountPassword struct {
	AccountID         uuid.UUID
	PasswordHash      string
	PasswordUpdatedAt time.Time
}

// ProviderLink ties an account to an external identity (Google, etc.).
type ProviderLink struct {
	ID              uuid.UUID
	AccountID       uuid.UUID
	Provider        string
	ProviderSubject string
	Email           *string
	CreatedAt       time.Time
}

// Provider constants
const (
	ProviderGoogle = "google"
)
