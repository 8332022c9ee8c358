package session

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/teamspace/pkg/auth"
	"github.com/tendant/teamspace/pkg/cache"
	"github.com/tendant/teamspace/pkg/domain"
	"github.com/tendant/teamspace/pkg/repository/memory"
)

type fakeAuth struct {
	mu        sync.Mutex
	session   *domain.AuthSession
	user      *domain.Account
	err       error
	block     chan struct{}
	signInErr error
	signOuts  int
	listeners map[string]auth.StateChangeFunc
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{listeners: make(map[string]auth.StateChangeFunc)}
}

func (f *fakeAuth) GetSession(ctx context.Context) (*domain.AuthSession, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.err
}

func (f *fakeAuth) GetUser(context.Context) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user, nil
}

func (f *fakeAuth) SignInWithPassword(_ context.Context, email, _ string) (*domain.AuthSession, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	s := newAuthSession(email)
	f.emit(domain.AuthEventSignedIn, s)
	return s, nil
}

func (f *fakeAuth) SignUp(_ context.Context, email, _ string, metadata domain.UserMetadata) (*domain.AuthSession, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	s := newAuthSession(email)
	s.Account.Metadata = metadata
	return s, nil
}

func (f *fakeAuth) SignInWithOAuth(_ context.Context, provider, redirectURL string) (string, error) {
	return "https://auth.example.com/" + provider + "?redirect=" + redirectURL, nil
}

func (f *fakeAuth) SignOut(context.Context) error {
	f.mu.Lock()
	f.signOuts++
	f.mu.Unlock()
	f.emit(domain.AuthEventSignedOut, nil)
	return nil
}

func (f *fakeAuth) OnAuthStateChange(fn auth.StateChangeFunc) *auth.Subscription {
	var sub *auth.Subscription
	sub = auth.NewSubscription(func() {
		f.mu.Lock()
		delete(f.listeners, sub.ID)
		f.mu.Unlock()
	})
	f.mu.Lock()
	f.listeners[sub.ID] = fn
	f.mu.Unlock()
	return sub
}

func (f *fakeAuth) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *fakeAuth) emit(event domain.AuthEvent, s *domain.AuthSession) {
	f.mu.Lock()
	fns := make([]auth.StateChangeFunc, 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(event, s)
	}
}

func newAuthSession(email string) *domain.AuthSession {
	now := time.Now()
	return &domain.AuthSession{
		Tokens: domain.TokenPair{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer"},
		Account: domain.Account{
			ID:               uuid.New(),
			Email:            email,
			EmailConfirmedAt: &now,
			CreatedAt:        now,
		},
	}
}

func newTestResolver(t *testing.T, a Auth, profiles ProfileStore, c cache.Cache) *Resolver {
	t.Helper()
	if profiles == nil {
		store, err := memory.New(nil)
		require.NoError(t, err)
		profiles = store.Profiles()
	}
	r := NewResolver(a, profiles, Options{Timeout: 100 * time.Millisecond, Cache: c})
	t.Cleanup(r.Close)
	return r
}

func TestResolver_NoSessionEndsUnauthenticated(t *testing.T) {
	r := newTestResolver(t, newFakeAuth(), nil, nil)
	assert.Equal(t, StateUninitialized, r.State())

	gen := r.Mount()
	require.NoError(t, r.Initialize(context.Background(), gen))

	assert.Equal(t, StateUnauthenticated, r.State())
	assert.Nil(t, r.Identity())
}

func TestResolver_SessionWithoutProfile(t *testing.T) {
	store, err := memory.New(nil)
	require.NoError(t, err)
	profiles := store.Profiles()

	fa := newFakeAuth()
	fa.session = newAuthSession("ada@x.com")
	r := newTestResolver(t, fa, profiles, nil)

	gen := r.Mount()
	require.NoError(t, r.Initialize(context.Background(), gen))

	identity := r.Identity()
	require.NotNil(t, identity)
	assert.Equal(t, StateResolved, r.State())
	assert.Equal(t, fa.session.Account.ID, identity.ID)
	assert.Equal(t, "ada", identity.Name)
	assert.Equal(t, domain.DefaultIdentityRole, identity.Role)
	require.NotNil(t, identity.Title)
	assert.Equal(t, domain.DefaultIdentityTitle, *identity.Title)

	r.Wait()
	row, err := profiles.GetByID(context.Background(), identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada", row.Name)
	assert.Equal(t, "ada@x.com", row.Email)
}

func TestResolver_ProfilePrefersMetadata(t *testing.T) {
	store, err := memory.New(nil)
	require.NoError(t, err)

	fa := newFakeAuth()
	fa.session = newAuthSession("grace@x.com")
	fa.session.Account.Metadata = domain.UserMetadata{FullName: "Grace Hopper", AvatarURL: "https://x.com/g.png"}
	r := newTestResolver(t, fa, store.Profiles(), nil)

	require.NoError(t, r.Initialize(context.Background(), r.Mount()))
	r.Wait()

	identity := r.Identity()
	require.NotNil(t, identity)
	assert.Equal(t, "Grace Hopper", identity.Name)
	require.NotNil(t, identity.AvatarURL)
	assert.Equal(t, "https://x.com/g.png", *identity.AvatarURL)
}

func TestResolver_InitializeTimesOut(t *testing.T) {
	fa := newFakeAuth()
	fa.block = make(chan struct{})
	t.Cleanup(func() { close(fa.block) })
	r := newTestResolver(t, fa, nil, nil)

	start := time.Now()
	err := r.Initialize(context.Background(), r.Mount())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StateUnauthenticated, r.State())
	assert.Nil(t, r.Identity())
}

func TestResolver_SessionErrorSignsOut(t *testing.T) {
	fa := newFakeAuth()
	fa.err = errors.New("network unreachable")
	r := newTestResolver(t, fa, nil, nil)

	err := r.Initialize(context.Background(), r.Mount())
	assert.Error(t, err)
	assert.Equal(t, StateUnauthenticated, r.State())
}

func TestResolver_GetUserFallback(t *testing.T) {
	fa := newFakeAuth()
	fa.user = &newAuthSession("lin@x.com").Account
	r := newTestResolver(t, fa, nil, nil)

	require.NoError(t, r.Initialize(context.Background(), r.Mount()))
	identity := r.Identity()
	require.NotNil(t, identity)
	assert.Equal(t, fa.user.ID, identity.ID)
	assert.Equal(t, StateResolved, r.State())
}

func TestResolver_InitializeOncePerGeneration(t *testing.T) {
	fa := newFakeAuth()
	fa.session = newAuthSession("ada@x.com")
	r := newTestResolver(t, fa, nil, nil)

	gen := r.Mount()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Initialize(context.Background(), gen)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fa.listenerCount())

	// a stale generation is ignored
	assert.NoError(t, r.Initialize(context.Background(), gen-1))
}

func TestResolver_RemountReRegistersListener(t *testing.T) {
	fa := newFakeAuth()
	r := newTestResolver(t, fa, nil, nil)

	first := r.Mount()
	assert.Equal(t, 1, fa.listenerCount())
	r.Unmount(first)
	assert.Equal(t, 0, fa.listenerCount())

	// events for a released generation change nothing
	fa.emit(domain.AuthEventSignedIn, newAuthSession("ghost@x.com"))
	assert.Nil(t, r.Identity())

	second := r.Mount()
	assert.NotEqual(t, first, second)
	assert.Equal(t, 1, fa.listenerCount())
	r.Unmount(first)
	assert.Equal(t, 1, fa.listenerCount())

	fa.emit(domain.AuthEventSignedIn, newAuthSession("ada@x.com"))
	require.NotNil(t, r.Identity())
}

type countingProfiles struct {
	ProfileStore
	gets atomic.Int32
}

func (c *countingProfiles) GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error) {
	c.gets.Add(1)
	return c.ProfileStore.GetByID(ctx, id)
}

func TestResolver_DeduplicatesAuthEvents(t *testing.T) {
	store, err := memory.New(nil)
	require.NoError(t, err)
	profiles := &countingProfiles{ProfileStore: store.Profiles()}

	fa := newFakeAuth()
	r := newTestResolver(t, fa, profiles, nil)
	r.Mount()

	s := newAuthSession("ada@x.com")
	fa.emit(domain.AuthEventSignedIn, s)
	r.Wait()
	fa.emit(domain.AuthEventTokenRefreshed, s)
	fa.emit(domain.AuthEventSignedIn, s)
	r.Wait()
	assert.Equal(t, int32(1), profiles.gets.Load())

	fa.emit(domain.AuthEventUserUpdated, s)
	r.Wait()
	assert.Equal(t, int32(2), profiles.gets.Load())

	fa.emit(domain.AuthEventSignedOut, nil)
	assert.Nil(t, r.Identity())
	fa.emit(domain.AuthEventSignedIn, s)
	r.Wait()
	assert.Equal(t, int32(3), profiles.gets.Load())
}

func TestResolver_IdentityNilOnlyAfterSignOut(t *testing.T) {
	fa := newFakeAuth()
	r := newTestResolver(t, fa, nil, nil)
	r.Mount()
	assert.Nil(t, r.Identity())

	sessions := []*domain.AuthSession{newAuthSession("a@x.com"), newAuthSession("b@x.com")}
	events := []domain.AuthEvent{domain.AuthEventSignedIn, domain.AuthEventTokenRefreshed, domain.AuthEventUserUpdated, domain.AuthEventSignedOut}
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		event := events[rng.Intn(len(events))]
		var s *domain.AuthSession
		if event != domain.AuthEventSignedOut {
			s = sessions[rng.Intn(len(sessions))]
		}
		fa.emit(event, s)

		identity := r.Identity()
		if event == domain.AuthEventSignedOut {
			require.Nil(t, identity, "step %d", i)
			require.Equal(t, StateUnauthenticated, r.State())
		} else {
			require.NotNil(t, identity, "step %d", i)
			require.Equal(t, s.Account.ID, identity.ID)
		}
	}
	r.Wait()
}

// racingProfiles holds the first two reads until both have arrived so
// both callers see a missing row.
type racingProfiles struct {
	ProfileStore
	arrived sync.WaitGroup
	reads   atomic.Int32
}

func (p *racingProfiles) GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error) {
	if p.reads.Add(1) <= 2 {
		p.arrived.Done()
		p.arrived.Wait()
	}
	return p.ProfileStore.GetByID(ctx, id)
}

func TestResolver_ConcurrentReconcileInsertsOnce(t *testing.T) {
	store, err := memory.New(nil)
	require.NoError(t, err)
	profiles := &racingProfiles{ProfileStore: store.Profiles()}
	profiles.arrived.Add(2)

	r := newTestResolver(t, newFakeAuth(), profiles, nil)
	account := &newAuthSession("ada@x.com").Account

	var wg sync.WaitGroup
	results := make([]*domain.Identity, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Reconcile(context.Background(), account)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0].ID, results[1].ID)
	assert.Equal(t, results[0].CreatedAt.Unix(), results[1].CreatedAt.Unix())

	rows, err := store.Profiles().GetByIDs(context.Background(), []uuid.UUID{account.ID})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

type failingProfiles struct{}

func (failingProfiles) Create(context.Context, *domain.Identity) error {
	return errors.New("store offline")
}

func (failingProfiles) GetByID(context.Context, uuid.UUID) (*domain.Identity, error) {
	return nil, errors.New("store offline")
}

func TestResolver_ReconcileFailureKeepsMinimalIdentity(t *testing.T) {
	fa := newFakeAuth()
	fa.session = newAuthSession("ada@x.com")
	r := newTestResolver(t, fa, failingProfiles{}, nil)

	require.NoError(t, r.Initialize(context.Background(), r.Mount()))
	r.Wait()

	identity := r.Identity()
	require.NotNil(t, identity)
	assert.Equal(t, "ada", identity.Name)
	assert.Equal(t, StateResolved, r.State())
}

func TestResolver_SignInNormalizesErrors(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{msg: "Invalid login credentials", want: domain.ErrInvalidCredentials},
		{msg: "Email not confirmed", want: domain.ErrEmailNotConfirmed},
		{msg: "User already registered", want: domain.ErrAlreadyRegistered},
		{msg: "gateway timeout", want: domain.ErrAuthFailed},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			fa := newFakeAuth()
			fa.signInErr = errors.New(tt.msg)
			r := newTestResolver(t, fa, nil, nil)
			r.Mount()

			_, err := r.SignIn(context.Background(), "ada@x.com", "pw")
			assert.ErrorIs(t, err, tt.want)
			_, err = r.SignUp(context.Background(), "ada@x.com", "pw", "Ada")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResolver_SignInAndSignUp(t *testing.T) {
	fa := newFakeAuth()
	r := newTestResolver(t, fa, nil, nil)
	r.Mount()

	identity, err := r.SignIn(context.Background(), "ada@x.com", "pw")
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "ada", identity.Name)

	identity, err = r.SignUp(context.Background(), "grace@x.com", "pw", "Grace")
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "grace@x.com", identity.Email)
	r.Wait()
	assert.Equal(t, "Grace", r.Identity().Name)

	u, err := r.SignInWithGoogle(context.Background(), "http://localhost/cb")
	require.NoError(t, err)
	assert.Contains(t, u, "google")
}

func TestResolver_SignOutKeepsCachedWorkspace(t *testing.T) {
	c := cache.NewMemory()
	ws := &domain.Workspace{ID: uuid.New(), Name: "Acme", JoinCode: "ACME01"}
	require.NoError(t, cache.SaveWorkspace(c, ws))
	require.NoError(t, cache.SetSkipWorkspace(c, true))

	fa := newFakeAuth()
	fa.session = newAuthSession("ada@x.com")
	r := newTestResolver(t, fa, nil, c)
	require.NoError(t, r.Initialize(context.Background(), r.Mount()))

	require.NoError(t, r.SignOut(context.Background()))
	assert.Equal(t, 1, fa.signOuts)
	assert.Nil(t, r.Identity())
	assert.Equal(t, StateUnauthenticated, r.State())
	assert.False(t, cache.SkipWorkspace(c))

	cached, err := cache.LoadWorkspace(c)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, ws.ID, cached.ID)
}

func TestResolver_PublishesSnapshots(t *testing.T) {
	fa := newFakeAuth()
	fa.session = newAuthSession("ada@x.com")
	r := newTestResolver(t, fa, nil, nil)
	sub := r.Subscribe()

	require.NoError(t, r.Initialize(context.Background(), r.Mount()))

	first := <-sub.Events()
	assert.Equal(t, StateResolving, first.State)
	second := <-sub.Events()
	assert.Equal(t, StateResolved, second.State)
	require.NotNil(t, second.Identity)
	r.Unsubscribe(sub)
}
