// Package session resolves the current identity from the auth collaborator
// and reconciles it with its profile row.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/teamspace/internal/metrics"
	"github.com/tendant/teamspace/pkg/auth"
	"github.com/tendant/teamspace/pkg/cache"
	"github.com/tendant/teamspace/pkg/changefeed"
	"github.com/tendant/teamspace/pkg/domain"
	"go.uber.org/zap"
)

// DefaultTimeout bounds the initial session check.
const DefaultTimeout = 5 * time.Second

const reconcileTimeout = 30 * time.Second

// ErrTimeout is returned by Initialize when the auth collaborator does not
// answer in time.
var ErrTimeout = errors.New("session check timed out")

// State is the resolver state.
type State string

const (
	StateUninitialized   State = "uninitialized"
	StateResolving       State = "resolving"
	StateResolved        State = "resolved"
	StateUnauthenticated State = "unauthenticated"
)

// Ready reports whether resolution has finished either way.
func (s State) Ready() bool {
	return s == StateResolved || s == StateUnauthenticated
}

// Snapshot is the published resolver output.
type Snapshot struct {
	State    State
	Identity *domain.Identity
}

// Auth is the auth collaborator.
type Auth interface {
	GetSession(ctx context.Context) (*domain.AuthSession, error)
	GetUser(ctx context.Context) (*domain.Account, error)
	SignInWithPassword(ctx context.Context, email, password string) (*domain.AuthSession, error)
	SignUp(ctx context.Context, email, password string, metadata domain.UserMetadata) (*domain.AuthSession, error)
	SignInWithOAuth(ctx context.Context, provider, redirectURL string) (string, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(fn auth.StateChangeFunc) *auth.Subscription
}

// Options configures a Resolver.
type Options struct {
	Timeout time.Duration
	Cache   cache.Cache
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Resolver produces the current identity and keeps it in step with auth
// state changes.
type Resolver struct {
	auth       Auth
	reconciler *Reconciler
	cache      cache.Cache
	metrics    *metrics.Metrics
	logger     *zap.Logger
	timeout    time.Duration
	updates    *changefeed.Broker[Snapshot]

	mu          sync.Mutex
	state       State
	identity    *domain.Identity
	generation  uint64
	initialized uint64
	listener    *auth.Subscription
	lastSeen    uuid.UUID

	reconciling sync.WaitGroup
}

// NewResolver creates a resolver.
func NewResolver(a Auth, profiles ProfileStore, opts Options) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemory()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.Named("session")
	return &Resolver{
		auth:       a,
		reconciler: NewReconciler(profiles, opts.Metrics, logger),
		cache:      opts.Cache,
		metrics:    opts.Metrics,
		logger:     logger,
		timeout:    opts.Timeout,
		updates:    changefeed.NewBroker[Snapshot](logger),
		state:      StateUninitialized,
	}
}

// Mount starts a new generation and registers the auth listener for it.
// Listeners of earlier generations are removed.
func (r *Resolver) Mount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listener != nil {
		r.listener.Unsubscribe()
	}
	r.generation++
	r.lastSeen = uuid.Nil
	gen := r.generation
	r.listener = r.auth.OnAuthStateChange(func(event domain.AuthEvent, s *domain.AuthSession) {
		r.onAuthStateChanged(gen, event, s)
	})
	return gen
}

// Unmount releases gen. It is a no-op when gen is no longer current.
func (r *Resolver) Unmount(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.generation {
		return
	}
	if r.listener != nil {
		r.listener.Unsubscribe()
		r.listener = nil
	}
	r.generation++
	r.lastSeen = uuid.Nil
}

// Initialize resolves the session for gen. Calls for a stale generation
// and repeated calls within one generation return immediately. On timeout
// or collaborator failure the resolver ends unauthenticated.
func (r *Resolver) Initialize(ctx context.Context, gen uint64) error {
	r.mu.Lock()
	if gen != r.generation || r.initialized == gen {
		r.mu.Unlock()
		return nil
	}
	r.initialized = gen
	r.state = StateResolving
	snap := r.snapshotLocked()
	r.mu.Unlock()
	r.updates.Publish(snap)

	start := time.Now()
	outcome, err := r.initialize(ctx, gen)
	r.metrics.SessionResolved(outcome, time.Since(start))
	return err
}

func (r *Resolver) initialize(ctx context.Context, gen uint64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	s, err := withTimeout(ctx, r.auth.GetSession)
	if err != nil {
		r.setUnauthenticated(gen)
		if errors.Is(err, context.DeadlineExceeded) {
			r.logger.Warn("session check timed out", zap.Duration("timeout", r.timeout))
			return "timeout", ErrTimeout
		}
		r.logger.Warn("session check failed", zap.Error(err))
		return "error", fmt.Errorf("get session: %w", err)
	}
	if s != nil {
		r.observe(gen, &s.Account, false)
		return "resolved", nil
	}

	account, err := withTimeout(ctx, r.auth.GetUser)
	if err != nil {
		r.setUnauthenticated(gen)
		if errors.Is(err, context.DeadlineExceeded) {
			return "timeout", ErrTimeout
		}
		r.logger.Warn("user lookup failed", zap.Error(err))
		return "error", fmt.Errorf("get user: %w", err)
	}
	if account != nil {
		r.observe(gen, account, false)
		return "resolved", nil
	}

	r.setUnauthenticated(gen)
	return "unauthenticated", nil
}

// withTimeout runs fn and gives up when ctx ends even if fn never returns.
func withTimeout[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case res := <-done:
		return res.v, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (r *Resolver) onAuthStateChanged(gen uint64, event domain.AuthEvent, s *domain.AuthSession) {
	switch event {
	case domain.AuthEventSignedOut:
		r.setUnauthenticated(gen)
	case domain.AuthEventUserUpdated:
		if s != nil {
			r.observe(gen, &s.Account, true)
		}
	default:
		if s != nil {
			r.observe(gen, &s.Account, false)
		}
	}
}

// observe publishes the minimal identity for account and starts profile
// reconciliation. An account already seen in this generation is skipped
// unless force is set.
func (r *Resolver) observe(gen uint64, account *domain.Account, force bool) {
	r.mu.Lock()
	if gen != r.generation {
		r.mu.Unlock()
		return
	}
	if !force && r.lastSeen == account.ID && r.identity != nil {
		r.mu.Unlock()
		return
	}
	r.lastSeen = account.ID
	if r.identity == nil || r.identity.ID != account.ID {
		r.identity = domain.NewMinimalIdentity(account, time.Now())
	}
	r.state = StateResolved
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.updates.Publish(snap)
	r.logger.Debug("identity published", zap.String("user_id", account.ID.String()))

	acct := *account
	r.reconciling.Add(1)
	go func() {
		defer r.reconciling.Done()
		r.applyProfile(gen, &acct)
	}()
}

func (r *Resolver) applyProfile(gen uint64, account *domain.Account) {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()

	profile, err := r.Reconcile(ctx, account)
	if err != nil {
		r.logger.Warn("profile reconciliation failed",
			zap.String("user_id", account.ID.String()), zap.Error(err))
		return
	}

	r.mu.Lock()
	if gen != r.generation || r.identity == nil || r.identity.ID != account.ID {
		r.mu.Unlock()
		return
	}
	r.identity = profile
	snap := r.snapshotLocked()
	r.mu.Unlock()
	r.updates.Publish(snap)
}

// Reconcile returns the profile row for account, inserting it when
// missing.
func (r *Resolver) Reconcile(ctx context.Context, account *domain.Account) (*domain.Identity, error) {
	return r.reconciler.Reconcile(ctx, account)
}

func (r *Resolver) setUnauthenticated(gen uint64) {
	r.mu.Lock()
	if gen != r.generation {
		r.mu.Unlock()
		return
	}
	r.identity = nil
	r.lastSeen = uuid.Nil
	r.state = StateUnauthenticated
	snap := r.snapshotLocked()
	r.mu.Unlock()
	r.updates.Publish(snap)
}

// SignIn signs in with email and password.
func (r *Resolver) SignIn(ctx context.Context, email, password string) (*domain.Identity, error) {
	s, err := r.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, auth.NormalizeError(err)
	}
	return r.signedIn(s), nil
}

// SignUp registers an account. The returned identity is nil when the
// account must confirm its email first.
func (r *Resolver) SignUp(ctx context.Context, email, password, name string) (*domain.Identity, error) {
	s, err := r.auth.SignUp(ctx, email, password, domain.UserMetadata{FullName: name})
	if err != nil {
		return nil, auth.NormalizeError(err)
	}
	if s == nil {
		return nil, nil
	}
	return r.signedIn(s), nil
}

// SignInWithGoogle returns the consent URL for Google sign-in. The session
// arrives later through the auth state listener.
func (r *Resolver) SignInWithGoogle(ctx context.Context, redirectURL string) (string, error) {
	u, err := r.auth.SignInWithOAuth(ctx, domain.ProviderGoogle, redirectURL)
	if err != nil {
		return "", auth.NormalizeError(err)
	}
	return u, nil
}

// SignOut signs out and clears the skip-workspace flag. The cached
// workspace is kept so a returning user resumes it.
func (r *Resolver) SignOut(ctx context.Context) error {
	err := r.auth.SignOut(ctx)

	if cerr := cache.SetSkipWorkspace(r.cache, false); cerr != nil {
		r.logger.Warn("clear skip-workspace flag failed", zap.Error(cerr))
	}

	r.mu.Lock()
	gen := r.generation
	r.mu.Unlock()
	r.setUnauthenticated(gen)

	if err != nil {
		return auth.NormalizeError(err)
	}
	return nil
}

func (r *Resolver) signedIn(s *domain.AuthSession) *domain.Identity {
	r.mu.Lock()
	gen := r.generation
	r.mu.Unlock()
	r.observe(gen, &s.Account, false)
	return r.Identity()
}

// State returns the current state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Identity returns a copy of the published identity, or nil.
func (r *Resolver) Identity() *domain.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyIdentity(r.identity)
}

// Snapshot returns the current state and identity.
func (r *Resolver) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Subscribe returns a subscription receiving every published snapshot.
func (r *Resolver) Subscribe() *changefeed.Subscription[Snapshot] {
	return r.updates.Subscribe()
}

// Unsubscribe closes a subscription returned by Subscribe.
func (r *Resolver) Unsubscribe(sub *changefeed.Subscription[Snapshot]) {
	r.updates.Unsubscribe(sub)
}

// Wait blocks until background profile reconciliations finish.
func (r *Resolver) Wait() {
	r.reconciling.Wait()
}

// Close removes the auth listener and closes all subscriptions.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.listener != nil {
		r.listener.Unsubscribe()
		r.listener = nil
	}
	r.generation++
	r.mu.Unlock()

	r.reconciling.Wait()
	r.updates.Close()
}

func (r *Resolver) snapshotLocked() Snapshot {
	return Snapshot{State: r.state, Identity: copyIdentity(r.identity)}
}

func copyIdentity(i *domain.Identity) *domain.Identity {
	if i == nil {
		return nil
	}
	c := *i
	if i.Skills != nil {
		c.Skills = append([]string(nil), i.Skills...)
	}
	return &c
}
