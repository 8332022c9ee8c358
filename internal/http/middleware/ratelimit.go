package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/tendant/teamspace/internal/config"
	"github.com/tendant/teamspace/internal/httputil"
	"go.uber.org/zap"
)

// Rate limiter names returned by CreateRateLimiters.
const (
	LimiterAuth      = "auth"
	LimiterWorkspace = "workspace"
)

// RateLimitConfig holds the limit for one group of endpoints.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Logger   *zap.Logger
}

// RateLimit creates an IP-based rate limiter.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			logger.Warn("rate limit exceeded",
				zap.String("ip", r.RemoteAddr),
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method),
			)
			httputil.Error(w, http.StatusTooManyRequests, "rate limit exceeded. please try again later")
		}),
	)
}

// NoRateLimit returns a pass-through middleware.
func NoRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// CreateRateLimiters builds the limiters for each endpoint group.
func CreateRateLimiters(cfg config.RateLimitConfig, logger *zap.Logger) map[string]func(http.Handler) http.Handler {
	if !cfg.Enabled {
		noOp := NoRateLimit()
		return map[string]func(http.Handler) http.Handler{
			LimiterAuth:      noOp,
			LimiterWorkspace: noOp,
		}
	}

	return map[string]func(http.Handler) http.Handler{
		LimiterAuth: RateLimit(RateLimitConfig{
			Requests: cfg.AuthPerMinute,
			Window:   time.Minute,
			Logger:   logger,
		}),
		LimiterWorkspace: RateLimit(RateLimitConfig{
			Requests: cfg.WorkspaceWritesPerMin,
			Window:   time.Minute,
			Logger:   logger,
		}),
	}
}
