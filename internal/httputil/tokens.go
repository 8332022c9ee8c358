package httputil

import (
	"net/http"
	"time"

	"github.com/tendant/teamspace/pkg/domain"
)

// TokenResponse is the body returned after sign-in, sign-up, and refresh.
// Tokens are only included for mobile clients.
type TokenResponse struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	UserID       string `json:"user_id,omitempty"`
}

// TokenTTLs reports the token lifetimes used for cookie expiry.
type TokenTTLs interface {
	AccessTokenTTL() time.Duration
	RefreshTokenTTL() time.Duration
}

// WriteSession writes the session as cookies (web) or JSON (mobile).
func WriteSession(w http.ResponseWriter, r *http.Request, session *domain.AuthSession, ttls TokenTTLs, cfg CookieConfig, status int) {
	resp := TokenResponse{
		TokenType: session.Tokens.TokenType,
		ExpiresIn: session.Tokens.ExpiresIn,
		UserID:    session.Account.ID.String(),
	}
	if IsMobileClient(r) {
		resp.AccessToken = session.Tokens.AccessToken
		resp.RefreshToken = session.Tokens.RefreshToken
		JSON(w, status, resp)
		return
	}

	SetAuthCookies(w, session.Tokens.AccessToken, session.Tokens.RefreshToken, ttls.AccessTokenTTL(), ttls.RefreshTokenTTL(), cfg)
	JSON(w, status, resp)
}
