package session

import (
	"errors"
	"net/http"

	"github.com/tendant/teamspace/internal/http/features/common"
	"github.com/tendant/teamspace/internal/http/middleware"
	"github.com/tendant/teamspace/internal/httputil"
	"github.com/tendant/teamspace/pkg/auth"
	"github.com/tendant/teamspace/pkg/domain"
	"go.uber.org/zap"
)

// Handler handles session endpoints.
type Handler struct {
	logger       *zap.Logger
	auth         *auth.Service
	identities   *common.Identities
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new session handler.
func NewHandler(logger *zap.Logger, svc *auth.Service, identities *common.Identities, cookieConfig httputil.CookieConfig) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		logger:       logger.Named("session"),
		auth:         svc,
		identities:   identities,
		cookieConfig: cookieConfig,
	}
}

// RefreshRequest represents a token refresh request (for mobile clients).
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest represents a logout request (for mobile clients).
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refreshToken reads the refresh token from the body (mobile) or cookie
// (web). It reports false after writing the error response.
func refreshToken(w http.ResponseWriter, r *http.Request, required bool) (string, bool) {
	if httputil.IsMobileClient(r) {
		var req RefreshRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return "", false
		}
		if req.RefreshToken == "" && required {
			httputil.Error(w, http.StatusBadRequest, "refresh_token is required")
			return "", false
		}
		return req.RefreshToken, true
	}

	token, ok := httputil.RefreshTokenFromCookie(r)
	if !ok && required {
		httputil.Error(w, http.StatusUnauthorized, "refresh token not found")
		return "", false
	}
	return token, true
}

// Refresh issues a new access token.
// POST /v1/auth/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := refreshToken(w, r, true)
	if !ok {
		return
	}

	session, err := h.auth.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) ||
			errors.Is(err, domain.ErrSessionExpired) ||
			errors.Is(err, domain.ErrSessionRevoked) ||
			errors.Is(err, domain.ErrAccountNotFound) {
			if !httputil.IsMobileClient(r) {
				httputil.ClearAuthCookies(w, h.cookieConfig)
			}
			httputil.Error(w, http.StatusUnauthorized, "invalid or expired refresh token")
			return
		}
		h.logger.Error("refresh failed", zap.Error(err))
		httputil.Error(w, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	httputil.WriteSession(w, r, session, h.auth.Tokens(), h.cookieConfig, http.StatusOK)
}

// Logout revokes a session. Unknown tokens are not reported.
// POST /v1/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := refreshToken(w, r, false)
	if !ok {
		return
	}

	if token != "" {
		if err := h.auth.SignOut(r.Context(), token); err != nil {
			h.logger.Warn("revoke session failed", zap.Error(err))
		}
	}
	if !httputil.IsMobileClient(r) {
		httputil.ClearAuthCookies(w, h.cookieConfig)
	}
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll revokes every session of the caller.
// POST /v1/auth/logout/all
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.auth.Tokens().RevokeAll(r.Context(), accountID); err != nil {
		h.logger.Error("revoke all sessions failed", zap.String("user_id", accountID.String()), zap.Error(err))
		httputil.Error(w, http.StatusInternalServerError, "failed to logout all sessions")
		return
	}
	if !httputil.IsMobileClient(r) {
		httputil.ClearAuthCookies(w, h.cookieConfig)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Current returns the identity of the caller, creating its profile row
// on first sight.
// GET /v1/session
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identities.FromRequest(w, r)
	if !ok {
		return
	}
	httputil.JSON(w, http.StatusOK, identity)
}
