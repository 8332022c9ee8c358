package workspace

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/teamspace/pkg/domain"
	"go.uber.org/zap"
)

// FetchMembers loads the memberships of a workspace and joins them with
// profile rows. Members whose profile cannot be loaded get a placeholder
// profile, so every membership yields exactly one member.
func (r *Resolver) FetchMembers(ctx context.Context, workspaceID uuid.UUID) ([]*domain.Member, error) {
	memberships, err := r.memberships.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, storeError("list memberships", err)
	}

	ids := make([]uuid.UUID, len(memberships))
	for i, m := range memberships {
		ids[i] = m.IdentityID
	}

	byID := make(map[uuid.UUID]*domain.Identity, len(ids))
	if len(ids) > 0 {
		profiles, err := r.profiles.GetByIDs(ctx, ids)
		if err != nil {
			r.logger.Warn("load member profiles failed",
				zap.String("workspace_id", workspaceID.String()), zap.Error(err))
		}
		for _, p := range profiles {
			byID[p.ID] = p
		}
	}

	members := make([]*domain.Member, len(memberships))
	for i, m := range memberships {
		profile, ok := byID[m.IdentityID]
		if !ok {
			profile = domain.PlaceholderIdentity(m.IdentityID)
		}
		members[i] = &domain.Member{Membership: m, Profile: profile}
	}
	return members, nil
}

// storeError wraps err for op, classifying errors outside the domain
// taxonomy as a store failure.
func storeError(op string, err error) error {
	if domain.IsKnown(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
