package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/teamspace/internal/metrics"
	"github.com/tendant/teamspace/pkg/domain"
	"go.uber.org/zap"
)

// ProfileStore reads and inserts profile rows.
type ProfileStore interface {
	Create(ctx context.Context, profile *domain.Identity) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error)
}

// Reconciler makes sure every account has a profile row.
type Reconciler struct {
	profiles ProfileStore
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(profiles ProfileStore, m *metrics.Metrics, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{profiles: profiles, metrics: m, logger: logger}
}

// Reconcile returns the profile row for account, inserting one derived
// from the account when none exists. A concurrent insert is resolved by
// reading back the row that won.
func (r *Reconciler) Reconcile(ctx context.Context, account *domain.Account) (*domain.Identity, error) {
	profile, err := r.profiles.GetByID(ctx, account.ID)
	if err == nil {
		r.metrics.ProfileReconciled("existing")
		return r.checkRole(profile), nil
	}
	if !errors.Is(err, domain.ErrProfileNotFound) {
		r.metrics.ProfileReconciled("failed")
		return nil, fmt.Errorf("get profile: %w", err)
	}

	profile = domain.NewProfileFromAccount(account, time.Now())
	err = r.profiles.Create(ctx, profile)
	if err == nil {
		r.metrics.ProfileReconciled("created")
		r.logger.Info("profile created", zap.String("user_id", account.ID.String()))
		return profile, nil
	}
	if !errors.Is(err, domain.ErrDuplicateKey) {
		r.metrics.ProfileReconciled("failed")
		return nil, fmt.Errorf("create profile: %w", err)
	}

	profile, err = r.profiles.GetByID(ctx, account.ID)
	if err != nil {
		r.metrics.ProfileReconciled("failed")
		return nil, fmt.Errorf("re-read profile: %w", err)
	}
	r.metrics.ProfileReconciled("raced")
	return r.checkRole(profile), nil
}

// checkRole replaces a role this version does not know with the default.
func (r *Reconciler) checkRole(profile *domain.Identity) *domain.Identity {
	if profile.Role.Valid() {
		return profile
	}
	r.logger.Warn("unknown profile role",
		zap.String("user_id", profile.ID.String()), zap.String("role", string(profile.Role)))
	profile.Role = domain.DefaultIdentityRole
	return profile
}
