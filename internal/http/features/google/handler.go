package google

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tendant/teamspace/internal/httputil"
	"github.com/tendant/teamspace/pkg/auth"
	"github.com/tendant/teamspace/pkg/domain"
	"go.uber.org/zap"
)

const stateTTL = 10 * time.Minute

// Handler handles Google OAuth endpoints.
type Handler struct {
	logger       *zap.Logger
	auth         *auth.Service
	cookieConfig httputil.CookieConfig
	states       *StateStore
}

// NewHandler creates a new Google handler.
func NewHandler(logger *zap.Logger, svc *auth.Service, cookieConfig httputil.CookieConfig) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		logger:       logger.Named("google"),
		auth:         svc,
		cookieConfig: cookieConfig,
		states:       NewStateStore(stateTTL),
	}
}

type pendingState struct {
	redirectURI string
	expiresAt   time.Time
}

// StateStore holds OAuth state values between Start and Callback.
// Expired entries are pruned on write.
type StateStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	states map[string]pendingState
}

// NewStateStore creates a state store whose entries live for ttl.
func NewStateStore(ttl time.Duration) *StateStore {
	return &StateStore{
		ttl:    ttl,
		now:    time.Now,
		states: make(map[string]pendingState),
	}
}

// Put records state with the app return URI.
func (s *StateStore) Put(state, redirectURI string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, st := range s.states {
		if now.After(st.expiresAt) {
			delete(s.states, key)
		}
	}
	s.states[state] = pendingState{redirectURI: redirectURI, expiresAt: now.Add(s.ttl)}
}

// Take removes state and returns its return URI if it has not expired.
func (s *StateStore) Take(state string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[state]
	if !ok {
		return "", false
	}
	delete(s.states, state)
	if s.now().After(st.expiresAt) {
		return "", false
	}
	return st.redirectURI, true
}

// Len returns the number of pending states.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// CallbackResponse represents a successful callback response.
type CallbackResponse struct {
	httputil.TokenResponse
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// Start initiates the Google OAuth flow.
// GET /v1/auth/google/start?redirect_uri=<app_return_uri>
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	redirectURI := r.URL.Query().Get("redirect_uri")
	if redirectURI == "" || !strings.HasPrefix(redirectURI, "/") || strings.HasPrefix(redirectURI, "//") {
		redirectURI = "/"
	}

	state, err := auth.GenerateToken(32)
	if err != nil {
		h.logger.Error("generate oauth state", zap.Error(err))
		httputil.Error(w, http.StatusInternalServerError, "failed to start sign-in")
		return
	}

	url, err := h.auth.OAuthURL(domain.ProviderGoogle, state, "")
	if err != nil {
		httputil.DomainError(w, auth.NormalizeError(err))
		return
	}
	h.states.Put(state, redirectURI)
	http.Redirect(w, r, url, http.StatusFound)
}

// Callback handles the Google OAuth callback.
// GET /v1/auth/google/callback?code=...&state=...
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		httputil.Error(w, http.StatusBadRequest, errParam)
		return
	}

	redirectURI, ok := h.states.Take(query.Get("state"))
	if !ok {
		httputil.Error(w, http.StatusBadRequest, "invalid or expired state")
		return
	}
	code := query.Get("code")
	if code == "" {
		httputil.Error(w, http.StatusBadRequest, "code is required")
		return
	}

	session, err := h.auth.CompleteOAuth(r.Context(), code, auth.IssueOpts{IP: r.RemoteAddr, UserAgent: r.UserAgent()})
	if err != nil {
		h.logger.Warn("google sign-in failed", zap.Error(err))
		httputil.DomainError(w, auth.NormalizeError(err))
		return
	}

	resp := CallbackResponse{
		TokenResponse: httputil.TokenResponse{
			TokenType: session.Tokens.TokenType,
			ExpiresIn: session.Tokens.ExpiresIn,
			UserID:    session.Account.ID.String(),
		},
		RedirectURI: redirectURI,
	}
	if httputil.IsMobileClient(r) {
		resp.AccessToken = session.Tokens.AccessToken
		resp.RefreshToken = session.Tokens.RefreshToken
	} else {
		tokens := h.auth.Tokens()
		httputil.SetAuthCookies(w, session.Tokens.AccessToken, session.Tokens.RefreshToken,
			tokens.AccessTokenTTL(), tokens.RefreshTokenTTL(), h.cookieConfig)
	}
	httputil.JSON(w, http.StatusOK, resp)
}
