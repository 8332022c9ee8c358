package session

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/teamspace/internal/httputil"
)

func TestRefresh_Validation_Mobile(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		errMsg string
	}{
		{"empty body", `{}`, http.StatusBadRequest, "refresh_token is required"},
		{"empty refresh_token", `{"refresh_token": ""}`, http.StatusBadRequest, "refresh_token is required"},
		{"invalid json", `{invalid}`, http.StatusBadRequest, "invalid request body"},
	}

	// Validation fails before the auth service is reached.
	h := NewHandler(nil, nil, nil, httputil.NewCookieConfig(false))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Client-Type", "mobile")
			rec := httptest.NewRecorder()

			h.Refresh(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			var resp httputil.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.errMsg, resp.Error)
		})
	}
}

func TestRefresh_WebClientWithoutCookie(t *testing.T) {
	h := NewHandler(nil, nil, nil, httputil.NewCookieConfig(false))

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	rec := httptest.NewRecorder()
	h.Refresh(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_WebClientWithoutCookie(t *testing.T) {
	h := NewHandler(nil, nil, nil, httputil.NewCookieConfig(true))

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		assert.Equal(t, -1, c.MaxAge, c.Name)
		assert.True(t, c.Secure, c.Name)
		assert.True(t, c.HttpOnly, c.Name)
	}
}

func TestLogoutAll_Unauthenticated(t *testing.T) {
	h := NewHandler(nil, nil, nil, httputil.NewCookieConfig(false))

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout/all", nil)
	rec := httptest.NewRecorder()
	h.LogoutAll(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
