package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tendant/teamspace/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, remote string) int {
	req := httptest.NewRequest(http.MethodPost, "/v1/workspace/join", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Requests: 2, Window: time.Second})(okHandler())

	assert.Equal(t, http.StatusOK, serve(handler, "192.168.1.1:12345"))
	assert.Equal(t, http.StatusOK, serve(handler, "192.168.1.1:12345"))
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, "192.168.1.1:12345"))
	assert.Equal(t, http.StatusOK, serve(handler, "192.168.1.2:12345"), "limits are per IP")
}

func TestCreateRateLimiters(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		limiters := CreateRateLimiters(config.RateLimitConfig{Enabled: false, AuthPerMinute: 1}, nil)
		handler := limiters[LimiterAuth](okHandler())
		for i := 0; i < 20; i++ {
			assert.Equal(t, http.StatusOK, serve(handler, "10.0.0.1:1"))
		}
	})

	t.Run("enabled", func(t *testing.T) {
		limiters := CreateRateLimiters(config.RateLimitConfig{
			Enabled:               true,
			AuthPerMinute:         1,
			WorkspaceWritesPerMin: 2,
		}, nil)

		auth := limiters[LimiterAuth](okHandler())
		assert.Equal(t, http.StatusOK, serve(auth, "10.0.0.1:1"))
		assert.Equal(t, http.StatusTooManyRequests, serve(auth, "10.0.0.1:1"))

		ws := limiters[LimiterWorkspace](okHandler())
		assert.Equal(t, http.StatusOK, serve(ws, "10.0.0.1:1"))
		assert.Equal(t, http.StatusOK, serve(ws, "10.0.0.1:1"))
		assert.Equal(t, http.StatusTooManyRequests, serve(ws, "10.0.0.1:1"))
	})
}
