package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/tendant/teamspace/pkg/domain"
	"go.uber.org/zap"
)

// Service is the server side of the auth collaborator. It owns accounts,
// credentials, and refresh sessions.
type Service struct {
	accounts  AccountStore
	passwords *PasswordService
	tokens    *TokenService
	google    *GoogleService
	logger    *zap.Logger
}

// NewService wires the auth service. google may be nil when OAuth is not
// configured.
func NewService(accounts AccountStore, passwords *PasswordService, tokens *TokenService, google *GoogleService, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		accounts:  accounts,
		passwords: passwords,
		tokens:    tokens,
		google:    google,
		logger:    logger.Named("auth"),
	}
}

// Tokens returns the token service used to validate access tokens.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// GoogleEnabled reports whether Google sign-in is available.
func (s *Service) GoogleEnabled() bool {
	return s.google != nil
}

// SignUp registers a password account. The returned session is nil when the
// account still needs email confirmation.
func (s *Service) SignUp(ctx context.Context, email, password string, metadata domain.UserMetadata, opts IssueOpts) (*domain.Account, *domain.AuthSession, error) {
	account, err := s.passwords.Register(ctx, Registration{
		Email:     email,
		Password:  password,
		Name:      metadata.FullName,
		AvatarURL: metadata.AvatarURL,
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("account registered", zap.String("user_id", account.ID.String()))

	if !account.IsConfirmed() {
		return account, nil, nil
	}
	session, err := s.issue(ctx, account, opts)
	if err != nil {
		return nil, nil, err
	}
	return account, session, nil
}

// SignInWithPassword authenticates with email and password.
func (s *Service) SignInWithPassword(ctx context.Context, email, password string, opts IssueOpts) (*domain.AuthSession, error) {
	account, err := s.passwords.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, domain.ErrAccountLocked) {
			s.logger.Warn("sign-in on locked account", zap.String("email", NormalizeEmail(email)))
		}
		return nil, err
	}
	return s.issue(ctx, account, opts)
}

// Refresh exchanges a refresh token for a fresh access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*domain.AuthSession, error) {
	pair, account, err := s.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return &domain.AuthSession{Tokens: *pair, Account: *account}, nil
}

// SignOut revokes the session behind a refresh token. Unknown tokens are
// not an error.
func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	err := s.tokens.Revoke(ctx, refreshToken)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	return err
}

// UserFromAccessToken returns the account behind a valid access token.
func (s *Service) UserFromAccessToken(ctx context.Context, accessToken string) (*domain.Account, error) {
	claims, err := s.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, err
	}
	id, err := claims.AccountID()
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	return s.accounts.GetByID(ctx, id)
}

// OAuthURL returns the provider consent URL.
func (s *Service) OAuthURL(provider, state, redirectURL string) (string, error) {
	if provider != domain.ProviderGoogle {
		return "", fmt.Errorf("%w: unsupported provider %q", domain.ErrAuthFailed, provider)
	}
	if s.google == nil {
		return "", fmt.Errorf("%w: google sign-in is not configured", domain.ErrAuthFailed)
	}
	return s.google.AuthCodeURL(state, redirectURL), nil
}

// CompleteOAuth finishes the Google callback and issues a session.
func (s *Service) CompleteOAuth(ctx context.Context, code string, opts IssueOpts) (*domain.AuthSession, error) {
	if s.google == nil {
		return nil, fmt.Errorf("%w: google sign-in is not configured", domain.ErrAuthFailed)
	}
	info, err := s.google.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	account, err := s.google.Authenticate(ctx, info)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, account, opts)
}

// ConfirmEmail marks the account for email as confirmed.
func (s *Service) ConfirmEmail(ctx context.Context, email string) (*domain.Account, error) {
	account, err := s.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if err := s.accounts.ConfirmEmail(ctx, account.ID); err != nil {
		return nil, err
	}
	return s.accounts.GetByID(ctx, account.ID)
}

func (s *Service) issue(ctx context.Context, account *domain.Account, opts IssueOpts) (*domain.AuthSession, error) {
	pair, err := s.tokens.Issue(ctx, account, opts)
	if err != nil {
		return nil, err
	}
	return &domain.AuthSession{Tokens: *pair, Account: *account}, nil
}
