package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/teamspace/pkg/domain"
)

const membershipColumns = `id, group_id, user_id, role, joined_at`

// MembershipsRepository handles membership ("group_members" table) persistence.
type MembershipsRepository struct {
	db *sql.DB
}

// NewMembershipsRepository creates a new memberships repository.
func NewMembershipsRepository(db *sql.DB) *MembershipsRepository {
	return &MembershipsRepository{db: db}
}

// oneWorkspaceIndex limits an identity to a single membership.
const oneWorkspaceIndex = "group_members_user_id_key"

// Upsert inserts a membership, doing nothing when a row for the same
// (workspace, identity) pair already exists. A membership of the identity
// in another workspace fails with domain.ErrAlreadyMember.
func (r *MembershipsRepository) Upsert(ctx context.Context, m *domain.Membership) error {
	query := `
		INSERT INTO group_members (id, group_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, m.ID, m.WorkspaceID, m.IdentityID, m.Role, m.JoinedAt)
	if violatesConstraint(err, oneWorkspaceIndex) {
		return fmt.Errorf("%w: %v", domain.ErrAlreadyMember, err)
	}
	return mapWriteError(err)
}

// GetByIdentityAndWorkspace retrieves the membership of an identity in a workspace.
func (r *MembershipsRepository) GetByIdentityAndWorkspace(ctx context.Context, identityID, workspaceID uuid.UUID) (*domain.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM group_members WHERE user_id = $1 AND group_id = $2`
	m := &domain.Membership{}
	err := r.db.QueryRowContext(ctx, query, identityID, workspaceID).Scan(
		&m.ID, &m.WorkspaceID, &m.IdentityID, &m.Role, &m.JoinedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMembershipNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetLatestByIdentity retrieves the most recently joined membership of an identity.
func (r *MembershipsRepository) GetLatestByIdentity(ctx context.Context, identityID uuid.UUID) (*domain.Membership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM group_members
		WHERE user_id = $1
		ORDER BY joined_at DESC
		LIMIT 1
	`
	m := &domain.Membership{}
	err := r.db.QueryRowContext(ctx, query, identityID).Scan(
		&m.ID, &m.WorkspaceID, &m.IdentityID, &m.Role, &m.JoinedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMembershipNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListByWorkspace retrieves all members of a workspace.
func (r *MembershipsRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*domain.Membership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM group_members
		WHERE group_id = $1
		ORDER BY joined_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []*domain.Membership
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.ID, &m.WorkspaceID, &m.IdentityID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		memberships = append(memberships, &m)
	}
	return memberships, rows.Err()
}

// Delete removes the membership of an identity in a workspace.
func (r *MembershipsRepository) Delete(ctx context.Context, identityID, workspaceID uuid.UUID) error {
	query := `DELETE FROM group_members WHERE user_id = $1 AND group_id = $2`
	result, err := r.db.ExecContext(ctx, query, identityID, workspaceID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrMembershipNotFound
	}
	return nil
}
