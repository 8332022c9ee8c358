package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/teamspace/pkg/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// GoogleConfig holds Google OAuth configuration.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// Endpoint and UserInfoURL default to Google's production endpoints.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

// Enabled reports whether Google sign-in is configured.
func (c GoogleConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// GoogleUserInfo is the subset of the OpenID userinfo response we use.
type GoogleUserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// GoogleService handles Google OAuth authentication.
type GoogleService struct {
	oauth       *oauth2.Config
	userInfoURL string
	accounts    AccountStore
	httpClient  *http.Client
}

// NewGoogleService creates a new Google service.
func NewGoogleService(config GoogleConfig, accounts AccountStore) *GoogleService {
	endpoint := config.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = google.Endpoint
	}
	userInfoURL := config.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = googleUserInfoURL
	}
	return &GoogleService{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURI,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: userInfoURL,
		accounts:    accounts,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthCodeURL returns the Google consent URL. redirectTo overrides the
// configured redirect when set.
func (s *GoogleService) AuthCodeURL(state, redirectTo string) string {
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOnline}
	if redirectTo != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectTo))
	}
	return s.oauth.AuthCodeURL(state, opts...)
}

// Exchange trades an authorization code for the caller's Google profile.
func (s *GoogleService) Exchange(ctx context.Context, code string) (*GoogleUserInfo, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange: %v", domain.ErrAuthFailed, err)
	}

	resp, err := s.oauth.Client(ctx, token).Get(s.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo: %v", domain.ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: userinfo status %d: %s", domain.ErrAuthFailed, resp.StatusCode, body)
	}

	var info GoogleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: userinfo decode: %v", domain.ErrAuthFailed, err)
	}
	if info.Subject == "" || info.Email == "" {
		return nil, fmt.Errorf("%w: userinfo missing subject or email", domain.ErrAuthFailed)
	}
	info.Email = NormalizeEmail(info.Email)
	return &info, nil
}

// Authenticate finds or creates the account linked to a Google identity.
func (s *GoogleService) Authenticate(ctx context.Context, info *GoogleUserInfo) (*domain.Account, error) {
	// 1. Existing link
	link, err := s.accounts.GetProviderLink(ctx, domain.ProviderGoogle, info.Subject)
	if err == nil {
		return s.accounts.GetByID(ctx, link.AccountID)
	}
	if !errors.Is(err, domain.ErrProviderLinkNotFound) {
		return nil, err
	}

	now := time.Now()
	newLink := &domain.ProviderLink{
		ID:              uuid.New(),
		Provider:        domain.ProviderGoogle,
		ProviderSubject: info.Subject,
		Email:           &info.Email,
		CreatedAt:       now,
	}

	// 2. Auto-link by verified email
	account, err := s.accounts.GetByEmail(ctx, info.Email)
	if err == nil {
		if !info.EmailVerified {
			return nil, domain.ErrAlreadyRegistered
		}
		newLink.AccountID = account.ID
		if err := s.accounts.CreateProviderLink(ctx, newLink); err != nil {
			return nil, err
		}
		if !account.IsConfirmed() {
			_ = s.accounts.ConfirmEmail(ctx, account.ID)
			account.EmailConfirmedAt = &now
		}
		return account, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	// 3. New account
	account = &domain.Account{
		ID:    uuid.New(),
		Email: info.Email,
		Metadata: domain.UserMetadata{
			FullName:  SanitizeName(info.Name),
			AvatarURL: info.Picture,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if info.EmailVerified {
		account.EmailConfirmedAt = &now
	}
	newLink.AccountID = account.ID

	if err := s.accounts.CreateWithProviderLink(ctx, account, newLink); err != nil {
		if errors.Is(err, domain.ErrDuplicateKey) {
			return nil, domain.ErrAlreadyRegistered
		}
		return nil, err
	}
	return account, nil
}
