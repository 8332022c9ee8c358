package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/xid"
	"github.com/tendant/teamspace/pkg/cache"
	"github.com/tendant/teamspace/pkg/domain"
	"go.uber.org/zap"
)

// StateChangeFunc receives auth state changes. session is nil on sign-out.
type StateChangeFunc func(event domain.AuthEvent, session *domain.AuthSession)

// Subscription is a registered auth state listener.
type Subscription struct {
	ID          string
	once        sync.Once
	unsubscribe func()
}

// NewSubscription returns a subscription that runs unsubscribe once.
func NewSubscription(unsubscribe func()) *Subscription {
	return &Subscription{ID: xid.New().String(), unsubscribe: unsubscribe}
}

// Unsubscribe deregisters the listener. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
}

// Client is the device side of the auth collaborator. It keeps the
// current token pair in a durable cache and reports state changes to
// registered listeners.
type Client struct {
	svc    *Service
	store  cache.Cache
	logger *zap.Logger

	mu        sync.Mutex
	listeners map[string]StateChangeFunc
}

// NewClient creates an auth client backed by svc.
func NewClient(svc *Service, store cache.Cache, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		svc:       svc,
		store:     store,
		logger:    logger.Named("auth-client"),
		listeners: make(map[string]StateChangeFunc),
	}
}

// GetSession returns the stored session, refreshing the access token
// when it no longer validates. It returns nil when no usable session exists.
func (c *Client) GetSession(ctx context.Context) (*domain.AuthSession, error) {
	stored, err := c.load()
	if err != nil || stored == nil {
		return nil, err
	}

	if _, err := c.svc.Tokens().ValidateAccessToken(stored.Tokens.AccessToken); err == nil {
		return stored, nil
	}

	refreshed, err := c.svc.Refresh(ctx, stored.Tokens.RefreshToken)
	if err != nil {
		if isDeadSession(err) {
			c.logger.Info("stored session is no longer valid", zap.Error(err))
			_ = c.store.Delete(cache.KeyAuthSession)
			return nil, nil
		}
		return nil, err
	}
	if err := c.save(refreshed); err != nil {
		return nil, err
	}
	c.emit(domain.AuthEventTokenRefreshed, refreshed)
	return refreshed, nil
}

// GetUser returns the account behind the stored access token, or nil.
func (c *Client) GetUser(ctx context.Context) (*domain.Account, error) {
	stored, err := c.load()
	if err != nil || stored == nil {
		return nil, err
	}
	account, err := c.svc.UserFromAccessToken(ctx, stored.Tokens.AccessToken)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidToken) || errors.Is(err, domain.ErrAccountNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

// SignInWithPassword signs in and stores the resulting session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*domain.AuthSession, error) {
	session, err := c.svc.SignInWithPassword(ctx, email, password, IssueOpts{UserAgent: "teamspace-cli"})
	if err != nil {
		return nil, err
	}
	return session, c.signedIn(session)
}

// SignUp registers an account. The session is nil when the account must
// confirm its email before signing in.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata domain.UserMetadata) (*domain.AuthSession, error) {
	_, session, err := c.svc.SignUp(ctx, email, password, metadata, IssueOpts{UserAgent: "teamspace-cli"})
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	return session, c.signedIn(session)
}

// SignInWithOAuth returns the consent URL the user must visit.
func (c *Client) SignInWithOAuth(_ context.Context, provider, redirectURL string) (string, error) {
	state, err := GenerateToken(16)
	if err != nil {
		return "", err
	}
	return c.svc.OAuthURL(provider, state, redirectURL)
}

// ExchangeOAuthCode completes an OAuth callback and stores the session.
func (c *Client) ExchangeOAuthCode(ctx context.Context, code string) (*domain.AuthSession, error) {
	session, err := c.svc.CompleteOAuth(ctx, code, IssueOpts{UserAgent: "teamspace-cli"})
	if err != nil {
		return nil, err
	}
	return session, c.signedIn(session)
}

// SignOut revokes the stored session and forgets it locally. Listeners
// see SIGNED_OUT even when revocation fails.
func (c *Client) SignOut(ctx context.Context) error {
	stored, err := c.load()
	if err != nil {
		return err
	}
	var revokeErr error
	if stored != nil {
		revokeErr = c.svc.SignOut(ctx, stored.Tokens.RefreshToken)
		if revokeErr != nil {
			c.logger.Warn("revoke session failed", zap.Error(revokeErr))
		}
	}
	if err := c.store.Delete(cache.KeyAuthSession); err != nil {
		return err
	}
	c.emit(domain.AuthEventSignedOut, nil)
	return revokeErr
}

// OnAuthStateChange registers fn for auth state changes.
func (c *Client) OnAuthStateChange(fn StateChangeFunc) *Subscription {
	var sub *Subscription
	sub = NewSubscription(func() {
		c.mu.Lock()
		delete(c.listeners, sub.ID)
		c.mu.Unlock()
	})

	c.mu.Lock()
	c.listeners[sub.ID] = fn
	c.mu.Unlock()
	return sub
}

func (c *Client) signedIn(session *domain.AuthSession) error {
	if err := c.save(session); err != nil {
		return err
	}
	c.emit(domain.AuthEventSignedIn, session)
	return nil
}

func (c *Client) emit(event domain.AuthEvent, session *domain.AuthSession) {
	c.mu.Lock()
	fns := make([]StateChangeFunc, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(event, session)
	}
}

func (c *Client) load() (*domain.AuthSession, error) {
	raw, err := c.store.Get(cache.KeyAuthSession)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var session domain.AuthSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		c.logger.Warn("dropping unreadable stored session", zap.Error(err))
		_ = c.store.Delete(cache.KeyAuthSession)
		return nil, nil
	}
	return &session, nil
}

func (c *Client) save(session *domain.AuthSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.store.Set(cache.KeyAuthSession, string(raw))
}

func isDeadSession(err error) bool {
	return errors.Is(err, domain.ErrSessionNotFound) ||
		errors.Is(err, domain.ErrSessionExpired) ||
		errors.Is(err, domain.ErrSessionRevoked) ||
		errors.Is(err, domain.ErrAccountNotFound)
}
