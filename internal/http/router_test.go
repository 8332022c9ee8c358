package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/teamspace/internal/config"
	"github.com/tendant/teamspace/internal/http/features/common"
	"github.com/tendant/teamspace/internal/http/features/workspace"
	"github.com/tendant/teamspace/internal/httputil"
	"github.com/tendant/teamspace/internal/metrics"
	"github.com/tendant/teamspace/pkg/auth"
	"github.com/tendant/teamspace/pkg/changefeed"
	"github.com/tendant/teamspace/pkg/domain"
	"github.com/tendant/teamspace/pkg/repository/memory"
	"github.com/tendant/teamspace/pkg/session"
)

type testServer struct {
	handler http.Handler
	store   *memory.Store
}

func newTestServer(t *testing.T, autoConfirm bool) *testServer {
	t.Helper()
	feed := changefeed.NewBroker[changefeed.MembershipChange](nil)
	t.Cleanup(feed.Close)
	store, err := memory.New(feed)
	require.NoError(t, err)

	accounts := store.Accounts()
	tokens := auth.NewTokenService(auth.TokenConfig{
		JWTSecret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer:    "teamspace-test",
	}, store.Sessions(), accounts)
	passwords := auth.NewPasswordService(accounts, &auth.PasswordPolicy{MinLength: 6}, auth.PasswordOptions{AutoConfirm: autoConfirm})
	svc := auth.NewService(accounts, passwords, tokens, nil, nil)
	m := metrics.New()

	handler := NewRouter(RouterConfig{
		AuthService:        svc,
		Identities:         common.NewIdentities(accounts, session.NewReconciler(store.Profiles(), m, nil), nil),
		Workspaces:         store.Workspaces(),
		Memberships:        store.Memberships(),
		Profiles:           store.Profiles(),
		Metrics:            m,
		WorkspaceTimeout:   time.Second,
		JoinCodeAttempts:   3,
		RateLimit:          config.RateLimitConfig{Enabled: false},
		SecurityHeaders:    config.SecurityHeadersConfig{Enabled: true, ContentTypeOptions: "nosniff"},
		MaxRequestBodySize: 1 << 20,
	})
	return &testServer{handler: handler, store: store}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-Type", "mobile")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(t *testing.T, email, name string) httputil.TokenResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/auth/password/register", "", map[string]string{
		"email": email, "password": "secret1", "name": name,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp httputil.TokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, true)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, true)
	tokens := s.register(t, "ada@x.com", "Ada Lovelace")
	s.do(t, http.MethodGet, "/v1/session", tokens.AccessToken, nil)

	rec := s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "teamspace_profile_reconciliations_total")
}

func TestSessionCurrent(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, http.MethodGet, "/v1/session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tokens := s.register(t, "ada@x.com", "Ada Lovelace")
	rec = s.do(t, http.MethodGet, "/v1/session", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	identity := decode[domain.Identity](t, rec)
	assert.Equal(t, "ada@x.com", identity.Email)
	assert.Equal(t, "Ada Lovelace", identity.Name)
	assert.Equal(t, tokens.UserID, identity.ID.String())
}

func TestRegister_PendingConfirmation(t *testing.T) {
	s := newTestServer(t, false)
	rec := s.do(t, http.MethodPost, "/v1/auth/password/register", "", map[string]string{
		"email": "ada@x.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/password/login", "", map[string]string{
		"email": "ada@x.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	resp := decode[httputil.ErrorResponse](t, rec)
	assert.Equal(t, domain.KindAuthEmailUnconfirmed, resp.Kind)
}

func TestLogin_Errors(t *testing.T) {
	s := newTestServer(t, true)
	s.register(t, "ada@x.com", "Ada Lovelace")

	tests := []struct {
		name   string
		body   map[string]string
		status int
		kind   domain.Kind
	}{
		{"wrong password", map[string]string{"email": "ada@x.com", "password": "nope123"}, http.StatusUnauthorized, domain.KindAuthInvalidCredentials},
		{"unknown email", map[string]string{"email": "bob@x.com", "password": "secret1"}, http.StatusUnauthorized, domain.KindAuthInvalidCredentials},
		{"missing password", map[string]string{"email": "ada@x.com"}, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/v1/auth/password/login", "", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.kind, decode[httputil.ErrorResponse](t, rec).Kind)
		})
	}
}

func TestWorkspaceLifecycle(t *testing.T) {
	s := newTestServer(t, true)
	owner := s.register(t, "owner@x.com", "Owner")
	member := s.register(t, "ada@x.com", "Ada Lovelace")

	rec := s.do(t, http.MethodGet, "/v1/workspace", owner.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no_workspace", string(decode[workspace.WorkspaceResponse](t, rec).State))

	rec = s.do(t, http.MethodPost, "/v1/workspace", owner.AccessToken, map[string]string{"name": "Acme"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[workspace.WorkspaceResponse](t, rec)
	require.NotNil(t, created.Workspace)
	assert.Equal(t, "has_workspace", string(created.State))
	assert.Len(t, created.Workspace.JoinCode, 6)

	code := strings.ToLower(created.Workspace.JoinCode)
	rec = s.do(t, http.MethodPost, "/v1/workspace/join", member.AccessToken, map[string]string{"code": code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	joined := decode[workspace.WorkspaceResponse](t, rec)
	assert.Equal(t, created.Workspace.ID, joined.Workspace.ID)

	rec = s.do(t, http.MethodGet, "/v1/workspace/members", owner.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	members := decode[[]*domain.Member](t, rec)
	assert.Len(t, members, 2)

	rec = s.do(t, http.MethodPost, "/v1/workspace/join", member.AccessToken, map[string]string{"code": code})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/workspace", member.AccessToken, map[string]string{"name": "Other"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.KindWorkspaceAlreadyMember, decode[httputil.ErrorResponse](t, rec).Kind)

	rec = s.do(t, http.MethodDelete, "/v1/workspace/membership", member.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/workspace", member.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no_workspace", string(decode[workspace.WorkspaceResponse](t, rec).State))

	rec = s.do(t, http.MethodDelete, "/v1/workspace/membership", member.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkspace_JoinUnknownCode(t *testing.T) {
	s := newTestServer(t, true)
	tokens := s.register(t, "ada@x.com", "Ada Lovelace")

	rec := s.do(t, http.MethodPost, "/v1/workspace/join", tokens.AccessToken, map[string]string{"code": "ZZZZZZ"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domain.KindWorkspaceNotFound, decode[httputil.ErrorResponse](t, rec).Kind)
}

func TestWorkspace_CreateRejectsEmptyName(t *testing.T) {
	s := newTestServer(t, true)
	tokens := s.register(t, "ada@x.com", "Ada Lovelace")

	rec := s.do(t, http.MethodPost, "/v1/workspace", tokens.AccessToken, map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkspace_StaleHintIgnored(t *testing.T) {
	s := newTestServer(t, true)
	owner := s.register(t, "owner@x.com", "Owner")
	other := s.register(t, "ada@x.com", "Ada Lovelace")

	rec := s.do(t, http.MethodPost, "/v1/workspace", owner.AccessToken, map[string]string{"name": "Acme"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[workspace.WorkspaceResponse](t, rec)

	rec = s.do(t, http.MethodGet, "/v1/workspace", other.AccessToken, nil,
		workspace.HintHeader, created.Workspace.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[workspace.WorkspaceResponse](t, rec)
	assert.Equal(t, "no_workspace", string(resp.State))
	assert.Nil(t, resp.Workspace)
}

func TestWorkspace_RequiresAuth(t *testing.T) {
	s := newTestServer(t, true)
	tokens := s.register(t, "ada@x.com", "Ada Lovelace")

	rec := s.do(t, http.MethodGet, "/v1/workspace", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/workspace", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/workspace", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshAndLogout(t *testing.T) {
	s := newTestServer(t, true)
	tokens := s.register(t, "ada@x.com", "Ada Lovelace")

	rec := s.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": tokens.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	refreshed := decode[httputil.TokenResponse](t, rec)
	assert.NotEmpty(t, refreshed.AccessToken)

	rec = s.do(t, http.MethodPost, "/v1/auth/logout", "", map[string]string{"refresh_token": refreshed.RefreshToken})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": refreshed.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutAll(t *testing.T) {
	s := newTestServer(t, true)
	tokens := s.register(t, "ada@x.com", "Ada Lovelace")

	rec := s.do(t, http.MethodPost, "/v1/auth/logout/all", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGoogleRoutesAbsentWhenNotConfigured(t *testing.T) {
	s := newTestServer(t, true)
	rec := s.do(t, http.MethodGet, "/v1/auth/google", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
