package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/teamspace/pkg/changefeed"
	"github.com/tendant/teamspace/pkg/domain"
)

type profileRecord struct {
	ID      string
	Profile domain.Identity
}

type workspaceRecord struct {
	ID        string
	JoinCode  string
	Workspace domain.Workspace
}

type membershipRecord struct {
	ID          string
	WorkspaceID string
	IdentityID  string
	Membership  domain.Membership
}

// Profiles is the in-memory profile store.
type Profiles struct {
	s *Store
}

// Create inserts a profile, failing with domain.ErrDuplicateKey when one
// already exists for the same id.
func (p *Profiles) Create(_ context.Context, profile *domain.Identity) error {
	txn := p.s.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(tblProfiles, "id", profile.ID.String())
	if err != nil {
		return fmt.Errorf("find profile: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("profile %s: %w", profile.ID, domain.ErrDuplicateKey)
	}
	if err := txn.Insert(tblProfiles, &profileRecord{ID: profile.ID.String(), Profile: *profile}); err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	txn.Commit()
	return nil
}

// GetByID retrieves a profile by identity ID.
func (p *Profiles) GetByID(_ context.Context, id uuid.UUID) (*domain.Identity, error) {
	txn := p.s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblProfiles, "id", id.String())
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	if raw == nil {
		return nil, domain.ErrProfileNotFound
	}
	profile := raw.(*profileRecord).Profile
	return &profile, nil
}

// GetByIDs retrieves the profiles that exist among ids.
func (p *Profiles) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*domain.Identity, error) {
	txn := p.s.db.Txn(false)
	defer txn.Abort()

	var profiles []*domain.Identity
	for _, id := range ids {
		raw, err := txn.First(tblProfiles, "id", id.String())
		if err != nil {
			return nil, fmt.Errorf("find profile: %w", err)
		}
		if raw == nil {
			continue
		}
		profile := raw.(*profileRecord).Profile
		profiles = append(profiles, &profile)
	}
	return profiles, nil
}

// Workspaces is the in-memory workspace store.
type Workspaces struct {
	s *Store
}

// Create inserts a workspace. A join code collision surfaces as
// domain.ErrDuplicateKey.
func (w *Workspaces) Create(_ context.Context, ws *domain.Workspace) error {
	txn := w.s.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(tblWorkspaces, "join_code", ws.JoinCode)
	if err != nil {
		return fmt.Errorf("find workspace by join code: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("join code %s: %w", ws.JoinCode, domain.ErrDuplicateKey)
	}
	if err := txn.Insert(tblWorkspaces, &workspaceRecord{
		ID:        ws.ID.String(),
		JoinCode:  ws.JoinCode,
		Workspace: *ws,
	}); err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	txn.Commit()
	return nil
}

// GetByID retrieves a workspace by ID.
func (w *Workspaces) GetByID(_ context.Context, id uuid.UUID) (*domain.Workspace, error) {
	return w.first("id", id.String())
}

// GetByJoinCode retrieves a workspace by case-insensitive join code match.
func (w *Workspaces) GetByJoinCode(_ context.Context, code string) (*domain.Workspace, error) {
	return w.first("join_code", code)
}

// Delete removes a workspace.
func (w *Workspaces) Delete(_ context.Context, id uuid.UUID) error {
	txn := w.s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblWorkspaces, "id", id.String())
	if err != nil {
		return fmt.Errorf("find workspace: %w", err)
	}
	if raw == nil {
		return domain.ErrWorkspaceNotFound
	}
	if err := txn.Delete(tblWorkspaces, raw); err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	txn.Commit()
	return nil
}

func (w *Workspaces) first(index, key string) (*domain.Workspace, error) {
	txn := w.s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblWorkspaces, index, key)
	if err != nil {
		return nil, fmt.Errorf("find workspace by %s: %w", index, err)
	}
	if raw == nil {
		return nil, domain.ErrWorkspaceNotFound
	}
	ws := raw.(*workspaceRecord).Workspace
	return &ws, nil
}

// Memberships is the in-memory membership store. Every insert and delete
// is published to the store's change feed.
type Memberships struct {
	s *Store
}

// Upsert inserts a membership, doing nothing when a row for the same
// (workspace, identity) pair already exists. A membership of the identity
// in another workspace fails with domain.ErrAlreadyMember.
func (m *Memberships) Upsert(_ context.Context, membership *domain.Membership) error {
	txn := m.s.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(tblMemberships, "workspace_identity",
		membership.WorkspaceID.String(), membership.IdentityID.String())
	if err != nil {
		return fmt.Errorf("find membership: %w", err)
	}
	if existing != nil {
		return nil
	}
	other, err := txn.First(tblMemberships, "identity_id", membership.IdentityID.String())
	if err != nil {
		return fmt.Errorf("find membership by identity: %w", err)
	}
	if other != nil {
		return fmt.Errorf("identity %s: %w", membership.IdentityID, domain.ErrAlreadyMember)
	}
	if err := txn.Insert(tblMemberships, &membershipRecord{
		ID:          membership.ID.String(),
		WorkspaceID: membership.WorkspaceID.String(),
		IdentityID:  membership.IdentityID.String(),
		Membership:  *membership,
	}); err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	txn.Commit()

	m.publish(changefeed.OpInsert, membership.WorkspaceID, membership.IdentityID)
	return nil
}

// GetByIdentityAndWorkspace retrieves the membership of an identity in a workspace.
func (m *Memberships) GetByIdentityAndWorkspace(_ context.Context, identityID, workspaceID uuid.UUID) (*domain.Membership, error) {
	txn := m.s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblMemberships, "workspace_identity", workspaceID.String(), identityID.String())
	if err != nil {
		return nil, fmt.Errorf("find membership: %w", err)
	}
	if raw == nil {
		return nil, domain.ErrMembershipNotFound
	}
	membership := raw.(*membershipRecord).Membership
	return &membership, nil
}

// GetLatestByIdentity retrieves the most recently joined membership of an identity.
func (m *Memberships) GetLatestByIdentity(_ context.Context, identityID uuid.UUID) (*domain.Membership, error) {
	memberships, err := m.list("identity_id", identityID.String())
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return nil, domain.ErrMembershipNotFound
	}
	return memberships[len(memberships)-1], nil
}

// ListByWorkspace retrieves all members of a workspace, oldest first.
func (m *Memberships) ListByWorkspace(_ context.Context, workspaceID uuid.UUID) ([]*domain.Membership, error) {
	return m.list("workspace_id", workspaceID.String())
}

// Delete removes the membership of an identity in a workspace.
func (m *Memberships) Delete(_ context.Context, identityID, workspaceID uuid.UUID) error {
	txn := m.s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblMemberships, "workspace_identity", workspaceID.String(), identityID.String())
	if err != nil {
		return fmt.Errorf("find membership: %w", err)
	}
	if raw == nil {
		return domain.ErrMembershipNotFound
	}
	if err := txn.Delete(tblMemberships, raw); err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	txn.Commit()

	m.publish(changefeed.OpDelete, workspaceID, identityID)
	return nil
}

func (m *Memberships) list(index, key string) ([]*domain.Membership, error) {
	txn := m.s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblMemberships, index, key)
	if err != nil {
		return nil, fmt.Errorf("list memberships by %s: %w", index, err)
	}
	var memberships []*domain.Membership
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		membership := raw.(*membershipRecord).Membership
		memberships = append(memberships, &membership)
	}
	sort.SliceStable(memberships, func(i, j int) bool {
		return memberships[i].JoinedAt.Before(memberships[j].JoinedAt)
	})
	return memberships, nil
}

func (m *Memberships) publish(op changefeed.Op, workspaceID, identityID uuid.UUID) {
	if m.s.feed == nil {
		return
	}
	m.s.feed.Publish(changefeed.MembershipChange{
		Op:          op,
		WorkspaceID: workspaceID,
		IdentityID:  identityID,
		At:          time.Now(),
	})
}
