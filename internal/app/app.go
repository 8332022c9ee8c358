// Package app assembles the teamspace backend from configuration: stores,
// auth, the membership change feed, event publishing, and the HTTP API.
//
// Server usage:
//
//	backend, err := app.Open(ctx, cfg, logger, app.Options{})
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//	go backend.Run(ctx)
//	http.ListenAndServe(cfg.ListenAddr(), backend.Router())
//
// Device usage (CLI):
//
//	device := backend.Device(boltCache)
//	defer device.Close()
//	device.Start(ctx)
//	fmt.Println(device.View())
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/tendant/teamspace/internal/config"
	"github.com/tendant/teamspace/internal/events"
	httpserver "github.com/tendant/teamspace/internal/http"
	"github.com/tendant/teamspace/internal/http/features/common"
	"github.com/tendant/teamspace/internal/metrics"
	"github.com/tendant/teamspace/internal/workers"
	"github.com/tendant/teamspace/pkg/auth"
	"github.com/tendant/teamspace/pkg/cache"
	"github.com/tendant/teamspace/pkg/changefeed"
	"github.com/tendant/teamspace/pkg/repository"
	"github.com/tendant/teamspace/pkg/repository/memory"
	"github.com/tendant/teamspace/pkg/session"
	"github.com/tendant/teamspace/pkg/shell"
	"github.com/tendant/teamspace/pkg/workspace"
	"go.uber.org/zap"
)

// SessionStore is the refresh session table as used by auth and cleanup.
type SessionStore interface {
	auth.SessionStore
	workers.ExpiredSessionDeleter
}

// ProfileStore is the profile table as used by both resolvers.
type ProfileStore interface {
	session.ProfileStore
	workspace.ProfileStore
}

// Stores groups the persistence collaborators.
type Stores struct {
	Accounts    auth.AccountStore
	Sessions    SessionStore
	Profiles    ProfileStore
	Workspaces  workspace.WorkspaceStore
	Memberships workspace.MembershipStore
}

// Options selects optional parts of the backend.
type Options struct {
	// Memory keeps all data in process instead of Postgres.
	Memory bool
	// Migrate applies the schema on open.
	Migrate bool
}

// Backend is the assembled application.
type Backend struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *sql.DB
	dsn       string
	stores    Stores
	feed      *changefeed.Broker[changefeed.MembershipChange]
	auth      *auth.Service
	metrics   *metrics.Metrics
	publisher events.Publisher
}

// Open builds the backend. With Options.Memory no database is used and
// membership changes are published in process.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*Backend, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Backend{
		cfg:    cfg,
		logger: logger,
		feed:   changefeed.NewBroker[changefeed.MembershipChange](logger),
	}
	if cfg.MetricsEnabled {
		b.metrics = metrics.New()
	}

	if opts.Memory {
		store, err := memory.New(b.feed)
		if err != nil {
			return nil, fmt.Errorf("app: open memory store: %w", err)
		}
		b.stores = Stores{
			Accounts:    store.Accounts(),
			Sessions:    store.Sessions(),
			Profiles:    store.Profiles(),
			Workspaces:  store.Workspaces(),
			Memberships: store.Memberships(),
		}
		logger.Info("using in-memory store")
	} else {
		dbCfg := repository.Config{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		}
		db, err := repository.NewDB(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		if opts.Migrate {
			if err := repository.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("app: migrate: %w", err)
			}
		}
		b.db = db
		b.dsn = dbCfg.DSN()
		b.stores = Stores{
			Accounts:    repository.NewAccountsRepository(db),
			Sessions:    repository.NewSessionsRepository(db),
			Profiles:    repository.NewProfilesRepository(db),
			Workspaces:  repository.NewWorkspacesRepository(db),
			Memberships: repository.NewMembershipsRepository(db),
		}
		logger.Info("connected to database", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
	}

	if cfg.HasKafka() {
		b.publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("publishing membership events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	} else {
		b.publisher = events.Nop{}
	}

	passwords := auth.NewPasswordService(b.stores.Accounts, auth.NewPasswordPolicy(cfg.PasswordPolicy), auth.PasswordOptions{
		StrictEmailValidation: cfg.StrictEmailValidation,
		BlockDisposableEmail:  cfg.BlockDisposableEmail,
		AutoConfirm:           cfg.AutoConfirm,
	})
	tokens := auth.NewTokenService(auth.TokenConfig{
		JWTSecret:       []byte(cfg.JWTSecret),
		Issuer:          cfg.JWTIssuer,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	}, b.stores.Sessions, b.stores.Accounts)

	var google *auth.GoogleService
	if cfg.HasGoogleOAuth() {
		google = auth.NewGoogleService(auth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURI:  cfg.GoogleRedirectURI,
		}, b.stores.Accounts)
		logger.Info("Google OAuth enabled")
	}
	b.auth = auth.NewService(b.stores.Accounts, passwords, tokens, google, logger)

	return b, nil
}

// Auth returns the auth service.
func (b *Backend) Auth() *auth.Service {
	return b.auth
}

// Stores returns the persistence collaborators.
func (b *Backend) Stores() Stores {
	return b.stores
}

// Feed returns the membership change broker.
func (b *Backend) Feed() *changefeed.Broker[changefeed.MembershipChange] {
	return b.feed
}

// Router returns the HTTP API.
func (b *Backend) Router() http.Handler {
	reconciler := session.NewReconciler(b.stores.Profiles, b.metrics, b.logger)
	return httpserver.NewRouter(httpserver.RouterConfig{
		Logger:             b.logger,
		AuthService:        b.auth,
		Identities:         common.NewIdentities(b.stores.Accounts, reconciler, b.logger),
		Workspaces:         b.stores.Workspaces,
		Memberships:        b.stores.Memberships,
		Profiles:           b.stores.Profiles,
		Publisher:          b.publisher,
		Metrics:            b.metrics,
		WorkspaceTimeout:   b.cfg.WorkspaceTimeout,
		JoinCodeAttempts:   b.cfg.JoinCodeAttempts,
		RateLimit:          b.cfg.RateLimit,
		SecurityHeaders:    b.cfg.SecurityHeaders,
		MaxRequestBodySize: b.cfg.MaxRequestBodySize,
		CookieSecure:       b.cfg.CookieSecure,
	})
}

// Device is the client side of one installation: its auth client and the
// shell sequencing its resolvers.
type Device struct {
	*shell.Shell
	Auth *auth.Client
}

// Device builds the resolvers and shell for one device whose durable
// state lives in c.
func (b *Backend) Device(c cache.Cache) *Device {
	client := auth.NewClient(b.auth, c, b.logger)
	sess := session.NewResolver(client, b.stores.Profiles, session.Options{
		Timeout: b.cfg.SessionTimeout,
		Cache:   c,
		Metrics: b.metrics,
		Logger:  b.logger,
	})
	ws := workspace.NewResolver(b.stores.Workspaces, b.stores.Memberships, b.stores.Profiles, workspace.Options{
		Timeout:          b.cfg.WorkspaceTimeout,
		JoinCodeAttempts: b.cfg.JoinCodeAttempts,
		Cache:            c,
		Publisher:        b.publisher,
		Metrics:          b.metrics,
		Logger:           b.logger,
	})
	return &Device{
		Shell: shell.New(sess, ws, shell.Options{Cache: c, Feed: b.feed, Logger: b.logger}),
		Auth:  client,
	}
}

// Run starts the background work and blocks until ctx is done: the
// Postgres membership listener (when a database is used) and the expired
// session cleanup.
func (b *Backend) Run(ctx context.Context) error {
	if b.cfg.SessionCleanupInterval > 0 {
		cleanup := workers.NewSessionCleanup(b.stores.Sessions, b.logger, b.cfg.SessionCleanupInterval, b.cfg.SessionRetention)
		cleanup.Start()
		defer cleanup.Stop()
	}
	return b.Listen(ctx)
}

// Listen forwards Postgres membership notifications to the feed until ctx
// is done. The in-memory store publishes directly, so there it only waits.
func (b *Backend) Listen(ctx context.Context) error {
	if b.db == nil {
		<-ctx.Done()
		return nil
	}
	err := repository.NewMembershipFeed(b.dsn, b.feed, b.logger).Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases the database, the publisher, and the feed.
func (b *Backend) Close() error {
	var errs []error
	if err := b.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	b.feed.Close()
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
