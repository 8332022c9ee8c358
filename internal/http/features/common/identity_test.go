package common

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/teamspace/internal/http/middleware"
	"github.com/tendant/teamspace/internal/httputil"
	"github.com/tendant/teamspace/pkg/domain"
	"github.com/tendant/teamspace/pkg/session"
)

type staticAccounts map[uuid.UUID]*domain.Account

func (a staticAccounts) GetByID(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	account, ok := a[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return account, nil
}

type unavailableProfiles struct{}

func (unavailableProfiles) Create(context.Context, *domain.Identity) error {
	return errors.New("db down")
}

func (unavailableProfiles) GetByID(context.Context, uuid.UUID) (*domain.Identity, error) {
	return nil, errors.New("db down")
}

func newAccount() *domain.Account {
	now := time.Now()
	return &domain.Account{ID: uuid.New(), Email: "ada.lovelace@example.com", CreatedAt: now, UpdatedAt: now}
}

func TestIdentities_LoadFallsBackWhenProfileStoreFails(t *testing.T) {
	account := newAccount()
	identities := NewIdentities(staticAccounts{account.ID: account},
		session.NewReconciler(unavailableProfiles{}, nil, nil), nil)

	identity, err := identities.Load(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.ID, identity.ID)
	assert.Equal(t, account.Email, identity.Email)
	assert.Equal(t, "ada.lovelace", identity.Name)
	assert.Equal(t, domain.DefaultIdentityRole, identity.Role)
}

func TestIdentities_FromRequest(t *testing.T) {
	account := newAccount()
	identities := NewIdentities(staticAccounts{account.ID: account},
		session.NewReconciler(unavailableProfiles{}, nil, nil), nil)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := identities.FromRequest(w, r)
		if !ok {
			return
		}
		httputil.JSON(w, http.StatusOK, identity)
	})

	tests := []struct {
		name       string
		accountID  *uuid.UUID
		wantStatus int
	}{
		{"profile store down", &account.ID, http.StatusOK},
		{"unknown account", ptr(uuid.New()), http.StatusUnauthorized},
		{"unauthenticated", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
			if tt.accountID != nil {
				req = req.WithContext(context.WithValue(req.Context(), middleware.AccountIDKey, *tt.accountID))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			var got domain.Identity
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, account.ID, got.ID)
		})
	}
}

func ptr[T any](v T) *T { return &v }
