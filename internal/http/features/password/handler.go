package password

import (
	"net/http"
	"strings"

	"github.com/tendant/teamspace/internal/httputil"
	"github.com/tendant/teamspace/pkg/auth"
	"github.com/tendant/teamspace/pkg/domain"
	"go.uber.org/zap"
)

// Handler handles password authentication endpoints.
type Handler struct {
	logger       *zap.Logger
	auth         *auth.Service
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new password handler.
func NewHandler(logger *zap.Logger, svc *auth.Service, cookieConfig httputil.CookieConfig) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		logger:       logger.Named("password"),
		auth:         svc,
		cookieConfig: cookieConfig,
	}
}

// RegisterRequest represents a registration request.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PendingResponse is returned when the account must confirm its email
// before a session is issued.
type PendingResponse struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// Register handles user registration.
// POST /v1/auth/password/register
//
// For web clients: Sets HttpOnly cookies, returns minimal response.
// For mobile clients (X-Client-Type: mobile): Returns tokens in response body.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	metadata := domain.UserMetadata{FullName: req.Name, AvatarURL: req.AvatarURL}
	account, session, err := h.auth.SignUp(r.Context(), req.Email, req.Password, metadata, issueOpts(r))
	if err != nil {
		h.fail(w, "registration failed", err)
		return
	}

	if session == nil {
		httputil.JSON(w, http.StatusAccepted, PendingResponse{
			UserID:  account.ID.String(),
			Message: "check your email to confirm your account",
		})
		return
	}
	httputil.WriteSession(w, r, session, h.auth.Tokens(), h.cookieConfig, http.StatusCreated)
}

// Login handles user login.
// POST /v1/auth/password/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	session, err := h.auth.SignInWithPassword(r.Context(), req.Email, req.Password, issueOpts(r))
	if err != nil {
		h.fail(w, "login failed", err)
		return
	}
	httputil.WriteSession(w, r, session, h.auth.Tokens(), h.cookieConfig, http.StatusOK)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	err = auth.NormalizeError(err)
	if domain.KindOf(err) == domain.KindAuthGeneric {
		h.logger.Warn(msg, zap.Error(err))
	}
	httputil.DomainError(w, err)
}

func issueOpts(r *http.Request) auth.IssueOpts {
	return auth.IssueOpts{IP: r.RemoteAddr, UserAgent: r.UserAgent()}
}
