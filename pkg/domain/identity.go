package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// IdentityRole classifies an identity across the application.
type IdentityRole string

const (
	IdentityRoleAdmin   IdentityRole = "admin"
	IdentityRoleManager IdentityRole = "manager"
	IdentityRoleMember  IdentityRole = "member"
	IdentityRoleViewer  IdentityRole = "viewer"
)

// Defaults applied to identities that have no profile row yet.
const (
	DefaultIdentityRole  = IdentityRoleMember
	DefaultIdentityTitle = "Team Member"
)

// Valid reports whether r is one of the known roles.
func (r IdentityRole) Valid() bool {
	switch r {
	case IdentityRoleAdmin, IdentityRoleManager, IdentityRoleMember, IdentityRoleViewer:
		return true
	}
	return false
}

// Identity is the application-level profile of an authenticated principal.
type Identity struct {
	ID         uuid.UUID    `json:"id"`
	Email      string       `json:"email"`
	Name       string       `json:"name"`
	NameSet    bool         `json:"name_set"`
	AvatarURL  *string      `json:"avatar_url,omitempty"`
	Title      *string      `json:"title,omitempty"`
	Position   *string      `json:"position,omitempty"`
	Department *string      `json:"department,omitempty"`
	Phone      *string      `json:"phone,omitempty"`
	Bio        *string      `json:"bio,omitempty"`
	Location   *string      `json:"location,omitempty"`
	Timezone   *string      `json:"timezone,omitempty"`
	Skills     []string     `json:"skills,omitempty"`
	Role       IdentityRole `json:"role"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  *time.Time   `json:"updated_at,omitempty"`
}

// NameFromEmail returns the local part of an email address, or the whole
// string when it has no '@'.
func NameFromEmail(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found || local == "" {
		return email
	}
	return local
}

// NewMinimalIdentity builds the identity published before the profile row
// has been read. Only claims carried by the session are used.
func NewMinimalIdentity(account *Account, now time.Time) *Identity {
	title := DefaultIdentityTitle
	return &Identity{
		ID:        account.ID,
		Email:     account.Email,
		Name:      NameFromEmail(account.Email),
		Title:     &title,
		Role:      DefaultIdentityRole,
		CreatedAt: now,
	}
}

// NewProfileFromAccount builds the profile row inserted on first sight of
// an account. Provider metadata wins over email-derived defaults.
func NewProfileFromAccount(account *Account, now time.Time) *Identity {
	identity := NewMinimalIdentity(account, now)
	if name := strings.TrimSpace(account.Metadata.FullName); name != "" {
		identity.Name = name
		identity.NameSet = true
	}
	if avatar := strings.TrimSpace(account.Metadata.AvatarURL); avatar != "" {
		identity.AvatarURL = &avatar
	}
	return identity
}

// PlaceholderIdentity synthesizes a profile for a member whose profile row
// could not be loaded. The result depends only on id.
func PlaceholderIdentity(id uuid.UUID) *Identity {
	short := strings.ReplaceAll(id.String(), "-", "")[:8]
	title := DefaultIdentityTitle
	return &Identity{
		ID:    id,
		Email: "user-" + short + "@unknown",
		Name:  "User " + short,
		Title: &title,
		Role:  DefaultIdentityRole,
	}
}

// NeedsProfileSetup reports whether no name was ever given for the
// identity, at sign-up or by the OAuth provider. A chosen name that happens
// to equal the email local part counts as given.
func (i *Identity) NeedsProfileSetup() bool {
	return !i.NameSet || i.Name == ""
}
