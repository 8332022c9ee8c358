package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/teamspace/internal/config"
	"github.com/tendant/teamspace/internal/events"
	"github.com/tendant/teamspace/internal/http/features/common"
	"github.com/tendant/teamspace/internal/http/features/google"
	"github.com/tendant/teamspace/internal/http/features/password"
	"github.com/tendant/teamspace/internal/http/features/session"
	"github.com/tendant/teamspace/internal/http/features/workspace"
	"github.com/tendant/teamspace/internal/http/middleware"
	"github.com/tendant/teamspace/internal/httputil"
	"github.com/tendant/teamspace/internal/metrics"
	"github.com/tendant/teamspace/pkg/auth"
	ws "github.com/tendant/teamspace/pkg/workspace"
	"go.uber.org/zap"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger      *zap.Logger
	AuthService *auth.Service
	Identities  *common.Identities

	Workspaces  ws.WorkspaceStore
	Memberships ws.MembershipStore
	Profiles    ws.ProfileStore
	Publisher   events.Publisher
	Metrics     *metrics.Metrics

	WorkspaceTimeout   time.Duration
	JoinCodeAttempts   int
	RateLimit          config.RateLimitConfig
	SecurityHeaders    config.SecurityHeadersConfig
	MaxRequestBodySize int64
	CookieSecure       bool
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.MaxRequestBodySize))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	limiters := middleware.CreateRateLimiters(cfg.RateLimit, logger)
	cookies := httputil.NewCookieConfig(cfg.CookieSecure)
	requireAuth := middleware.Auth(cfg.AuthService.Tokens())

	passwordHandler := password.NewHandler(logger, cfg.AuthService, cookies)
	r.Group(func(r chi.Router) {
		r.Use(limiters[middleware.LimiterAuth])
		r.Post("/v1/auth/password/register", passwordHandler.Register)
		r.Post("/v1/auth/password/login", passwordHandler.Login)
	})

	if cfg.AuthService.GoogleEnabled() {
		googleHandler := google.NewHandler(logger, cfg.AuthService, cookies)
		r.Get("/v1/auth/google", googleHandler.Start)
		r.Get("/v1/auth/google/callback", googleHandler.Callback)
	}

	sessionHandler := session.NewHandler(logger, cfg.AuthService, cfg.Identities, cookies)
	r.With(limiters[middleware.LimiterAuth]).Post("/v1/auth/refresh", sessionHandler.Refresh)
	r.Post("/v1/auth/logout", sessionHandler.Logout)
	r.With(requireAuth).Post("/v1/auth/logout/all", sessionHandler.LogoutAll)
	r.With(requireAuth).Get("/v1/session", sessionHandler.Current)

	workspaceHandler := workspace.NewHandler(logger, workspace.Config{
		Identities:       cfg.Identities,
		Workspaces:       cfg.Workspaces,
		Memberships:      cfg.Memberships,
		Profiles:         cfg.Profiles,
		Publisher:        cfg.Publisher,
		Metrics:          cfg.Metrics,
		Timeout:          cfg.WorkspaceTimeout,
		JoinCodeAttempts: cfg.JoinCodeAttempts,
	})
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(middleware.RequireConfirmedEmail())
		r.Get("/v1/workspace", workspaceHandler.Current)
		r.Get("/v1/workspace/members", workspaceHandler.Members)
		r.Group(func(r chi.Router) {
			r.Use(limiters[middleware.LimiterWorkspace])
			r.Post("/v1/workspace", workspaceHandler.Create)
			r.Post("/v1/workspace/join", workspaceHandler.Join)
			r.Delete("/v1/workspace/membership", workspaceHandler.Leave)
		})
	})

	return r
}
