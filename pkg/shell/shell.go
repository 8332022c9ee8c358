// Package shell sequences session and workspace resolution and derives
// the view the user should see.
package shell

import (
	"context"
	"errors"
	"sync"

	"github.com/tendant/teamspace/pkg/cache"
	"github.com/tendant/teamspace/pkg/changefeed"
	"github.com/tendant/teamspace/pkg/session"
	"github.com/tendant/teamspace/pkg/workspace"
	"go.uber.org/zap"
)

// View is the screen the application should show.
type View string

const (
	ViewLoading       View = "loading"
	ViewLanding       View = "landing"
	ViewProfileSetup  View = "profile-setup"
	ViewWorkspaceJoin View = "workspace-join"
	ViewMain          View = "main"
)

// ErrNotStarted is returned by Stop when the shell is not running.
var ErrNotStarted = errors.New("shell not started")

// Options configures a Shell.
type Options struct {
	Cache  cache.Cache
	Feed   *changefeed.Broker[changefeed.MembershipChange]
	Logger *zap.Logger
}

// Shell owns the resolvers for one device.
type Shell struct {
	session   *session.Resolver
	workspace *workspace.Resolver
	cache     cache.Cache
	feed      *changefeed.Broker[changefeed.MembershipChange]
	logger    *zap.Logger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a shell over the two resolvers.
func New(sess *session.Resolver, ws *workspace.Resolver, opts Options) *Shell {
	if opts.Cache == nil {
		opts.Cache = cache.NewMemory()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Shell{
		session:   sess,
		workspace: ws,
		cache:     opts.Cache,
		feed:      opts.Feed,
		logger:    opts.Logger.Named("shell"),
	}
}

// Start mounts a new generation, resolves the session, and then the
// workspace. Workspace resolution never starts before the session is
// ready. Start returns once both resolutions have settled; later session
// changes are followed until Stop. A session timeout is returned but does
// not prevent the shell from running unauthenticated.
func (s *Shell) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		s.Stop()
		s.mu.Lock()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	sub := s.session.Subscribe()
	gen := s.session.Mount()
	s.gen = gen
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.session.Unsubscribe(sub)
		s.follow(runCtx, gen, sub)
	}()

	if s.feed != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.workspace.Watch(runCtx, s.feed)
		}()
	}

	sessErr := s.session.Initialize(ctx, gen)
	if sessErr != nil {
		s.logger.Warn("session check failed", zap.Uint64("generation", gen), zap.Error(sessErr))
	}

	snap := s.session.Snapshot()
	if err := s.workspace.SetIdentity(ctx, snap.State.Ready(), snap.Identity); err != nil {
		s.logger.Warn("workspace resolution failed", zap.Uint64("generation", gen), zap.Error(err))
	}
	return sessErr
}

func (s *Shell) follow(ctx context.Context, gen uint64, sub *changefeed.Subscription[session.Snapshot]) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.Events():
			if !ok {
				return
			}
			if !s.current(gen) {
				s.logger.Debug("ignoring session change from stale generation", zap.Uint64("generation", gen))
				continue
			}
			// Start applies the first settled state itself.
			if !snap.State.Ready() {
				continue
			}
			if err := s.workspace.SetIdentity(ctx, snap.State.Ready(), snap.Identity); err != nil {
				s.logger.Warn("workspace resolution failed", zap.Uint64("generation", gen), zap.Error(err))
			}
		}
	}
}

func (s *Shell) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil && s.gen == gen
}

// Stop releases the current generation and waits for its listeners to
// exit.
func (s *Shell) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	gen := s.gen
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	s.session.Unmount(gen)
	cancel()
	s.wg.Wait()
	return nil
}

// Close stops the shell if it is running and releases both resolvers.
func (s *Shell) Close() {
	if err := s.Stop(); err != nil && !errors.Is(err, ErrNotStarted) {
		s.logger.Warn("stop shell failed", zap.Error(err))
	}
	s.session.Close()
	s.workspace.Close()
}

// Generation returns the generation of the current mount.
func (s *Shell) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// View derives the screen from the resolver states. Profile setup is shown
// until a name was given at sign-up or by the OAuth provider; the profile
// row records that in NameSet.
func (s *Shell) View() View {
	sess := s.session.Snapshot()
	if !sess.State.Ready() {
		return ViewLoading
	}
	if sess.Identity == nil {
		return ViewLanding
	}
	if sess.Identity.NeedsProfileSetup() {
		return ViewProfileSetup
	}

	switch s.workspace.State() {
	case workspace.StateIdle, workspace.StateLoading:
		return ViewLoading
	case workspace.StateHasWorkspace:
		return ViewMain
	}
	if cache.SkipWorkspace(s.cache) {
		return ViewMain
	}
	return ViewWorkspaceJoin
}

// SkipWorkspace lets the user reach the main view without a workspace.
func (s *Shell) SkipWorkspace() error {
	return cache.SetSkipWorkspace(s.cache, true)
}

// Session returns the session resolver.
func (s *Shell) Session() *session.Resolver {
	return s.session
}

// Workspace returns the workspace resolver.
func (s *Shell) Workspace() *workspace.Resolver {
	return s.workspace
}
