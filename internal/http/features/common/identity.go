package common

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/teamspace/internal/http/middleware"
	"github.com/tendant/teamspace/internal/httputil"
	"github.com/tendant/teamspace/pkg/domain"
	"github.com/tendant/teamspace/pkg/session"
	"go.uber.org/zap"
)

// AccountGetter loads accounts by id.
type AccountGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
}

// Identities resolves the identity of the authenticated caller, creating
// the profile row on first sight.
type Identities struct {
	accounts   AccountGetter
	reconciler *session.Reconciler
	logger     *zap.Logger
}

// NewIdentities creates an identity loader.
func NewIdentities(accounts AccountGetter, reconciler *session.Reconciler, logger *zap.Logger) *Identities {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Identities{accounts: accounts, reconciler: reconciler, logger: logger.Named("identities")}
}

// Load returns the identity of accountID. When the profile row cannot be
// read or created, the identity is derived from the account alone.
func (i *Identities) Load(ctx context.Context, accountID uuid.UUID) (*domain.Identity, error) {
	account, err := i.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	identity, err := i.reconciler.Reconcile(ctx, account)
	if err != nil {
		i.logger.Warn("profile reconciliation failed",
			zap.String("user_id", account.ID.String()), zap.Error(err))
		return domain.NewMinimalIdentity(account, time.Now()), nil
	}
	return identity, nil
}

// FromRequest loads the identity of the caller. It reports false after
// writing the error response.
func (i *Identities) FromRequest(w http.ResponseWriter, r *http.Request) (*domain.Identity, bool) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	identity, err := i.Load(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			httputil.Error(w, http.StatusUnauthorized, "account not found")
			return nil, false
		}
		httputil.DomainError(w, err)
		return nil, false
	}
	return identity, true
}
