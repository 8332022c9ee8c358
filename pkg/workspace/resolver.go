// Package workspace resolves the single workspace an identity belongs to
// and implements join, create, and leave.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/tendant/teamspace/internal/events"
	"github.com/tendant/teamspace/internal/metrics"
	"github.com/tendant/teamspace/pkg/cache"
	"github.com/tendant/teamspace/pkg/changefeed"
	"github.com/tendant/teamspace/pkg/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Defaults for Options.
const (
	DefaultTimeout          = 10 * time.Second
	DefaultJoinCodeAttempts = 3
	DefaultPublishTimeout   = 2 * time.Second
)

// ErrNoIdentity is returned by operations that need a resolved identity.
var ErrNoIdentity = errors.New("no resolved identity")

// ErrNoWorkspace is returned by LeaveWorkspace when there is no current
// workspace.
var ErrNoWorkspace = errors.New("no current workspace")

// State is the resolver state.
type State string

const (
	StateIdle         State = "idle"
	StateLoading      State = "loading"
	StateHasWorkspace State = "has_workspace"
	StateNoWorkspace  State = "no_workspace"
)

// Snapshot is the published resolver output.
type Snapshot struct {
	State     State
	Loading   bool
	Workspace *domain.Workspace
	Members   []*domain.Member
}

// WorkspaceStore reads and writes workspaces.
type WorkspaceStore interface {
	Create(ctx context.Context, ws *domain.Workspace) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workspace, error)
	GetByJoinCode(ctx context.Context, code string) (*domain.Workspace, error)
}

// MembershipStore reads and writes memberships.
type MembershipStore interface {
	Upsert(ctx context.Context, m *domain.Membership) error
	GetByIdentityAndWorkspace(ctx context.Context, identityID, workspaceID uuid.UUID) (*domain.Membership, error)
	GetLatestByIdentity(ctx context.Context, identityID uuid.UUID) (*domain.Membership, error)
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*domain.Membership, error)
	Delete(ctx context.Context, identityID, workspaceID uuid.UUID) error
}

// ProfileStore loads profile rows in bulk.
type ProfileStore interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Identity, error)
}

// Options configures a Resolver. PublishTimeout bounds each membership
// event publish.
type Options struct {
	Timeout          time.Duration
	JoinCodeAttempts int
	PublishTimeout   time.Duration
	Cache            cache.Cache
	Publisher        events.Publisher
	Metrics          *metrics.Metrics
	Logger           *zap.Logger
}

type createInput struct {
	Name        string `validate:"required,max=100"`
	Description string `validate:"max=500"`
}

// Resolver produces the current workspace for a resolved identity.
type Resolver struct {
	workspaces  WorkspaceStore
	memberships MembershipStore
	profiles    ProfileStore
	cache       cache.Cache
	publisher   events.Publisher
	metrics     *metrics.Metrics
	logger      *zap.Logger
	validate    *validator.Validate
	timeout     time.Duration
	publishTTL  time.Duration
	attempts    int
	updates     *changefeed.Broker[Snapshot]

	// resolveMu keeps cache validation and the broad lookup of one
	// resolution from interleaving with another.
	resolveMu sync.Mutex

	mu        sync.Mutex
	authReady bool
	identity  *domain.Identity
	state     State
	loading   int
	current   *domain.Workspace
	members   []*domain.Member
	cached    *domain.Workspace
}

// NewResolver creates a resolver. The cached workspace handle is read
// once here.
func NewResolver(workspaces WorkspaceStore, memberships MembershipStore, profiles ProfileStore, opts Options) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.JoinCodeAttempts <= 0 {
		opts.JoinCodeAttempts = DefaultJoinCodeAttempts
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemory()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.Named("workspace")

	cached, err := cache.LoadWorkspace(opts.Cache)
	if err != nil {
		logger.Warn("read cached workspace failed", zap.Error(err))
	}

	return &Resolver{
		workspaces:  workspaces,
		memberships: memberships,
		profiles:    profiles,
		cache:       opts.Cache,
		publisher:   opts.Publisher,
		metrics:     opts.Metrics,
		logger:      logger,
		validate:    validator.New(),
		timeout:     opts.Timeout,
		publishTTL:  opts.PublishTimeout,
		attempts:    opts.JoinCodeAttempts,
		updates:     changefeed.NewBroker[Snapshot](logger),
		state:       StateIdle,
		cached:      cached,
	}
}

// SetIdentity records the outcome of session resolution. Nothing is
// resolved until ready is true. When the identity changes the workspace is
// resolved again; a nil identity clears local state but keeps the cache.
func (r *Resolver) SetIdentity(ctx context.Context, ready bool, identity *domain.Identity) error {
	r.mu.Lock()
	r.authReady = ready
	if !ready {
		r.state = StateIdle
		r.mu.Unlock()
		r.publish()
		return nil
	}

	changed := (r.identity == nil) != (identity == nil) ||
		(identity != nil && r.identity.ID != identity.ID)
	if identity != nil {
		c := *identity
		r.identity = &c
	} else {
		r.identity = nil
	}
	if identity == nil {
		r.current = nil
		r.members = nil
		r.state = StateNoWorkspace
		r.mu.Unlock()
		r.publish()
		return nil
	}
	stale := r.state == StateIdle
	r.mu.Unlock()

	if !changed && !stale {
		return nil
	}
	_, err := r.Resolve(ctx)
	return err
}

// Resolve determines the current workspace. A cached handle is trusted
// only after a membership point lookup confirms it; otherwise the latest
// membership of the identity decides.
func (r *Resolver) Resolve(ctx context.Context) (*domain.Workspace, error) {
	r.resolveMu.Lock()
	defer r.resolveMu.Unlock()

	r.mu.Lock()
	if !r.authReady {
		r.mu.Unlock()
		return nil, nil
	}
	identity := r.identity
	r.mu.Unlock()
	if identity == nil {
		r.setNoWorkspace(false)
		return nil, nil
	}

	done := r.beginLoading()
	defer done()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	ws, members, outcome, err := r.resolve(ctx, identity.ID)
	r.metrics.WorkspaceResolved(outcome, time.Since(start))

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			r.logger.Warn("workspace resolution timed out",
				zap.String("user_id", identity.ID.String()), zap.Duration("timeout", r.timeout))
		}
		r.setNoWorkspace(false)
		return nil, err
	}
	if ws == nil {
		r.setNoWorkspace(false)
		return nil, nil
	}
	r.adopt(ws, members)
	return ws, nil
}

func (r *Resolver) resolve(ctx context.Context, identityID uuid.UUID) (*domain.Workspace, []*domain.Member, string, error) {
	r.mu.Lock()
	cached := r.cached
	r.mu.Unlock()

	if cached != nil {
		_, err := r.memberships.GetByIdentityAndWorkspace(ctx, identityID, cached.ID)
		switch {
		case err == nil:
			members, err := r.FetchMembers(ctx, cached.ID)
			if err != nil {
				r.logger.Warn("load members failed", zap.String("workspace_id", cached.ID.String()), zap.Error(err))
			}
			return cached, members, "cached", nil
		case errors.Is(err, domain.ErrMembershipNotFound):
			r.logger.Info("discarding stale cached workspace",
				zap.String("user_id", identityID.String()), zap.String("workspace_id", cached.ID.String()))
			r.clearCache()
		default:
			return nil, nil, "error", storeError("validate cached workspace", err)
		}
	}

	m, err := r.memberships.GetLatestByIdentity(ctx, identityID)
	if errors.Is(err, domain.ErrMembershipNotFound) {
		return nil, nil, "no_workspace", nil
	}
	if err != nil {
		return nil, nil, "error", storeError("find membership", err)
	}

	var (
		ws      *domain.Workspace
		members []*domain.Member
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ws, err = r.workspaces.GetByID(gctx, m.WorkspaceID)
		return err
	})
	g.Go(func() error {
		var err error
		members, err = r.FetchMembers(gctx, m.WorkspaceID)
		if err != nil {
			r.logger.Warn("load members failed", zap.String("workspace_id", m.WorkspaceID.String()), zap.Error(err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, domain.ErrWorkspaceNotFound) {
			r.logger.Warn("membership references a missing workspace",
				zap.String("user_id", identityID.String()), zap.String("workspace_id", m.WorkspaceID.String()))
			return nil, nil, "no_workspace", nil
		}
		return nil, nil, "error", storeError("load workspace", err)
	}
	return ws, members, "lookup", nil
}

// JoinWorkspace joins the workspace whose join code matches code, ignoring
// case and surrounding space. Joining the workspace the identity already
// belongs to succeeds without change.
func (r *Resolver) JoinWorkspace(ctx context.Context, code string) (ws *domain.Workspace, err error) {
	identity, err := r.requireIdentity()
	if err != nil {
		return nil, err
	}
	done := r.beginLoading()
	defer done()
	defer func() { r.metrics.WorkspaceMutation("join", outcomeOf(err)) }()

	if !ValidJoinCode(code) {
		return nil, fmt.Errorf("join workspace: malformed code: %w", domain.ErrWorkspaceNotFound)
	}
	ws, err = r.workspaces.GetByJoinCode(ctx, domain.NormalizeJoinCode(code))
	if err != nil {
		return nil, storeError("join workspace", err)
	}

	existing, err := r.memberships.GetLatestByIdentity(ctx, identity.ID)
	switch {
	case err == nil && existing.WorkspaceID == ws.ID:
		r.adoptWithMembers(ctx, ws)
		return ws, nil
	case err == nil:
		return nil, fmt.Errorf("join workspace: %w", domain.ErrAlreadyMember)
	case !errors.Is(err, domain.ErrMembershipNotFound):
		return nil, storeError("join workspace", err)
	}

	m := domain.NewMembership(ws.ID, identity.ID, domain.MembershipRoleMember, time.Now())
	if err := r.upsertMembership(ctx, m); err != nil {
		return nil, storeError("join workspace", err)
	}

	r.logger.Info("joined workspace",
		zap.String("user_id", identity.ID.String()), zap.String("workspace_id", ws.ID.String()))
	r.emit(ctx, events.MembershipCreated, m)
	r.adoptWithMembers(ctx, ws)
	return ws, nil
}

// CreateWorkspace creates a workspace owned by the current identity and
// makes the identity its admin. The join code is regenerated when it
// collides with an existing one.
func (r *Resolver) CreateWorkspace(ctx context.Context, name, description string) (ws *domain.Workspace, err error) {
	identity, err := r.requireIdentity()
	if err != nil {
		return nil, err
	}
	done := r.beginLoading()
	defer done()
	defer func() { r.metrics.WorkspaceMutation("create", outcomeOf(err)) }()

	in := createInput{Name: strings.TrimSpace(name), Description: strings.TrimSpace(description)}
	if err := r.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("create workspace: invalid input: %w", err)
	}

	existing, err := r.memberships.GetLatestByIdentity(ctx, identity.ID)
	switch {
	case err == nil:
		current, err := r.workspaces.GetByID(ctx, existing.WorkspaceID)
		if err == nil && current.OwnerID == identity.ID && current.Name == in.Name {
			r.adoptWithMembers(ctx, current)
			return current, nil
		}
		return nil, fmt.Errorf("create workspace: %w", domain.ErrAlreadyMember)
	case !errors.Is(err, domain.ErrMembershipNotFound):
		return nil, storeError("create workspace", err)
	}

	ws, err = r.insertWorkspace(ctx, identity.ID, in)
	if err != nil {
		return nil, err
	}

	m := domain.NewMembership(ws.ID, identity.ID, domain.MembershipRoleAdmin, time.Now())
	if err := r.upsertMembership(ctx, m); err != nil {
		// The identity joined elsewhere since the check above.
		if errors.Is(err, domain.ErrAlreadyMember) {
			if derr := r.workspaces.Delete(ctx, ws.ID); derr != nil {
				r.logger.Warn("remove unowned workspace failed",
					zap.String("workspace_id", ws.ID.String()), zap.Error(derr))
			}
		}
		return nil, storeError("create workspace membership", err)
	}

	r.logger.Info("created workspace",
		zap.String("user_id", identity.ID.String()), zap.String("workspace_id", ws.ID.String()))
	r.emit(ctx, events.WorkspaceCreated, m)
	r.emit(ctx, events.MembershipCreated, m)
	r.adoptWithMembers(ctx, ws)
	return ws, nil
}

func (r *Resolver) insertWorkspace(ctx context.Context, ownerID uuid.UUID, in createInput) (*domain.Workspace, error) {
	var desc *string
	if in.Description != "" {
		desc = &in.Description
	}

	for i := 0; i < r.attempts; i++ {
		code, err := NewJoinCode()
		if err != nil {
			return nil, err
		}
		ws := &domain.Workspace{
			ID:          uuid.New(),
			Name:        in.Name,
			Description: desc,
			OwnerID:     ownerID,
			JoinCode:    code,
			CreatedAt:   time.Now(),
		}
		err = r.workspaces.Create(ctx, ws)
		if err == nil {
			return ws, nil
		}
		if !errors.Is(err, domain.ErrDuplicateKey) {
			return nil, storeError("create workspace", err)
		}
		r.logger.Debug("join code collision", zap.String("join_code", code), zap.Int("attempt", i+1))
	}
	return nil, fmt.Errorf("create workspace: %w: join code collided %d times", domain.ErrStoreUnavailable, r.attempts)
}

// upsertMembership inserts m. A duplicate-key race on the same workspace
// counts as success; a membership elsewhere fails with
// domain.ErrAlreadyMember.
func (r *Resolver) upsertMembership(ctx context.Context, m *domain.Membership) error {
	err := r.memberships.Upsert(ctx, m)
	if errors.Is(err, domain.ErrDuplicateKey) {
		return nil
	}
	return err
}

// LeaveWorkspace removes the current identity's membership of the current
// workspace. The workspace itself is kept.
func (r *Resolver) LeaveWorkspace(ctx context.Context) (err error) {
	identity, err := r.requireIdentity()
	if err != nil {
		return err
	}
	r.mu.Lock()
	ws := r.current
	r.mu.Unlock()
	if ws == nil {
		return ErrNoWorkspace
	}

	done := r.beginLoading()
	defer done()
	defer func() { r.metrics.WorkspaceMutation("leave", outcomeOf(err)) }()

	err = r.memberships.Delete(ctx, identity.ID, ws.ID)
	if err != nil && !errors.Is(err, domain.ErrMembershipNotFound) {
		return storeError("leave workspace", err)
	}

	r.logger.Info("left workspace",
		zap.String("user_id", identity.ID.String()), zap.String("workspace_id", ws.ID.String()))
	r.emit(ctx, events.MembershipDeleted, &domain.Membership{WorkspaceID: ws.ID, IdentityID: identity.ID})
	r.setNoWorkspace(true)
	return nil
}

// Watch re-resolves on every membership change until ctx ends. Changes are
// not filtered by identity or workspace.
func (r *Resolver) Watch(ctx context.Context, feed *changefeed.Broker[changefeed.MembershipChange]) {
	sub := feed.Subscribe()
	defer feed.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-sub.Events():
			if !ok {
				return
			}
			r.metrics.ChangeFeedNotified()
			r.logger.Debug("membership change",
				zap.String("op", string(change.Op)), zap.String("workspace_id", change.WorkspaceID.String()))
			if _, err := r.Resolve(ctx); err != nil {
				r.logger.Warn("re-resolve after membership change failed", zap.Error(err))
			}
		}
	}
}

func (r *Resolver) requireIdentity() (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.authReady || r.identity == nil {
		return nil, ErrNoIdentity
	}
	c := *r.identity
	return &c, nil
}

func (r *Resolver) beginLoading() func() {
	r.mu.Lock()
	r.loading++
	if r.state != StateHasWorkspace && r.state != StateNoWorkspace {
		r.state = StateLoading
	}
	r.mu.Unlock()
	r.publish()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.loading--
			if r.loading == 0 && r.state == StateLoading {
				r.state = StateNoWorkspace
			}
			r.mu.Unlock()
			r.publish()
		})
	}
}

func (r *Resolver) adoptWithMembers(ctx context.Context, ws *domain.Workspace) {
	members, err := r.FetchMembers(ctx, ws.ID)
	if err != nil {
		r.logger.Warn("load members failed", zap.String("workspace_id", ws.ID.String()), zap.Error(err))
	}
	r.adopt(ws, members)
}

func (r *Resolver) adopt(ws *domain.Workspace, members []*domain.Member) {
	r.mu.Lock()
	r.current = ws
	r.members = members
	r.cached = ws
	r.state = StateHasWorkspace
	r.mu.Unlock()

	if err := cache.SaveWorkspace(r.cache, ws); err != nil {
		r.logger.Warn("cache workspace failed", zap.String("workspace_id", ws.ID.String()), zap.Error(err))
	}
	r.publish()
}

func (r *Resolver) setNoWorkspace(clearCache bool) {
	r.mu.Lock()
	r.current = nil
	r.members = nil
	r.state = StateNoWorkspace
	r.mu.Unlock()

	if clearCache {
		r.clearCache()
	}
	r.publish()
}

func (r *Resolver) clearCache() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
	if err := cache.SaveWorkspace(r.cache, nil); err != nil {
		r.logger.Warn("clear cached workspace failed", zap.Error(err))
	}
}

func (r *Resolver) emit(ctx context.Context, typ events.Type, m *domain.Membership) {
	event := events.MembershipEvent{
		Type:        typ,
		WorkspaceID: m.WorkspaceID,
		UserID:      m.IdentityID,
		Role:        m.Role,
		At:          time.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(ctx, r.publishTTL)
	defer cancel()
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Warn("publish membership event failed",
			zap.String("type", string(typ)), zap.String("workspace_id", m.WorkspaceID.String()), zap.Error(err))
	}
}

// State returns the current state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Loading reports whether an operation is in flight.
func (r *Resolver) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading > 0
}

// Workspace returns the current workspace, or nil.
func (r *Resolver) Workspace() *domain.Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Members returns the members of the current workspace.
func (r *Resolver) Members() []*domain.Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Member(nil), r.members...)
}

// Snapshot returns the current resolver output.
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

// Close closes all subscriptions.
func (r *Resolver) Close() {
	r.updates.Close()
}

func (r *Resolver) publish() {
	r.updates.Publish(r.Snapshot())
}

func (r *Resolver) snapshotLocked() Snapshot {
	return Snapshot{
		State:     r.state,
		Loading:   r.loading > 0,
		Workspace: r.current,
		Members:   append([]*domain.Member(nil), r.members...),
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domain.KindOf(err))
}
