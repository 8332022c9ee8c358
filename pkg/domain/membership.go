package domain

import (
	"time"

	"github.com/google/uuid"
)

// MembershipRole is an identity's role inside one workspace.
type MembershipRole string

const (
	MembershipRoleAdmin  MembershipRole = "admin"
	MembershipRoleMember MembershipRole = "member"
)

// Membership represents one identity's relationship to one workspace.
type Membership struct {
	ID          uuid.UUID      `json:"id"`
	WorkspaceID uuid.UUID      `json:"workspace_id"`
	IdentityID  uuid.UUID      `json:"identity_id"`
	Role        MembershipRole `json:"role"`
	JoinedAt    time.Time      `json:"joined_at"`
}

// NewMembership creates a membership stamped with now.
func NewMembership(workspaceID, identityID uuid.UUID, role MembershipRole, now time.Time) *Membership {
	return &Membership{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		IdentityID:  identityID,
		Role:        role,
		JoinedAt:    now,
	}
}

// IsAdmin returns true for admin memberships.
func (m *Membership) IsAdmin() bool {
	return m.Role == MembershipRoleAdmin
}

// Member pairs a membership with the profile of its identity.
type Member struct {
	Membership *Membership `json:"membership"`
	Profile    *Identity   `json:"profile"`
}
