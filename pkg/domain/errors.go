package domain

import (
	"errors"
	"fmt"
)

// Authentication errors surfaced to callers.
var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrRateLimited        = errors.New("too many requests, please try again later")
	ErrAlreadyRegistered  = errors.New("user already registered")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrAuthFailed         = errors.New("authentication failed")
)

// Workspace errors surfaced to callers.
var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrAlreadyMember     = errors.New("already a member of a workspace")
	ErrStoreUnavailable  = errors.New("store unavailable")
)

// ErrAccountLocked is reported after repeated failed sign-ins.
var ErrAccountLocked = fmt.Errorf("%w: account locked due to too many failed login attempts", ErrRateLimited)

// Store errors
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrProfileNotFound      = errors.New("profile not found")
	ErrMembershipNotFound   = errors.New("membership not found")
	ErrProviderLinkNotFound = errors.New("provider link not found")
	ErrDuplicateKey         = errors.New("duplicate key value violates unique constraint")
)

// Session errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionRevoked  = errors.New("session revoked")
	ErrInvalidToken    = errors.New("invalid token")
	ErrNoSession       = errors.New("no active session")
)

// Kind is the closed set of error conditions callers can distinguish.
type Kind string

const (
	KindAuthInvalidCredentials Kind = "auth_invalid_credentials"
	KindAuthEmailUnconfirmed   Kind = "auth_email_unconfirmed"
	KindAuthRateLimited        Kind = "auth_rate_limited"
	KindAuthAlreadyRegistered  Kind = "auth_already_registered"
	KindAuthWeakPassword       Kind = "auth_weak_password"
	KindAuthInvalidEmail       Kind = "auth_invalid_email"
	KindAuthGeneric            Kind = "auth_generic"
	KindWorkspaceNotFound      Kind = "workspace_not_found"
	KindWorkspaceAlreadyMember Kind = "workspace_already_member"
	KindStoreUnavailable       Kind = "store_unavailable"
)

var kindTable = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidCredentials, KindAuthInvalidCredentials},
	{ErrEmailNotConfirmed, KindAuthEmailUnconfirmed},
	{ErrRateLimited, KindAuthRateLimited},
	{ErrAlreadyRegistered, KindAuthAlreadyRegistered},
	{ErrWeakPassword, KindAuthWeakPassword},
	{ErrInvalidEmail, KindAuthInvalidEmail},
	{ErrAuthFailed, KindAuthGeneric},
	{ErrWorkspaceNotFound, KindWorkspaceNotFound},
	{ErrAlreadyMember, KindWorkspaceAlreadyMember},
	{ErrStoreUnavailable, KindStoreUnavailable},
}

// KindOf reports the kind of err. Errors outside the taxonomy are
// reported as KindStoreUnavailable; a nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindStoreUnavailable
}

// IsKnown reports whether err already belongs to the taxonomy.
func IsKnown(err error) bool {
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			return true
		}
	}
	return false
}
