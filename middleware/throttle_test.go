package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestThrottle_Middleware(t *testing.T) {
	throttle := NewThrottle(ThrottleConfig{RequestsPerMinute: 5, Burst: 2, CleanupInterval: time.Minute}, zap.NewNop())
	defer throttle.Stop()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	throttle.now = func() time.Time { return now }

	handler := throttle.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/otp/request", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusAccepted, send("10.0.0.1:1111").Code)
	assert.Equal(t, http.StatusAccepted, send("10.0.0.1:2222").Code)

	w := send("10.0.0.1:3333")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "12", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")

	// other clients have their own bucket
	assert.Equal(t, http.StatusAccepted, send("10.0.0.2:1111").Code)

	now = now.Add(12 * time.Second)
	assert.Equal(t, http.StatusAccepted, send("10.0.0.1:4444").Code)
}

func TestThrottle_Cleanup(t *testing.T) {
	throttle := NewThrottle(ThrottleConfig{RequestsPerMinute: 60, CleanupInterval: time.Minute}, zap.NewNop())
	defer throttle.Stop()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	throttle.now = func() time.Time { return now }

	throttle.allow("a")
	throttle.allow("b")
	assert.Equal(t, 2, throttle.Len())

	now = now.Add(90 * time.Second)
	throttle.allow("b")
	now = now.Add(60 * time.Second)
	throttle.cleanup()

	assert.Equal(t, 1, throttle.Len())
}

func TestThrottle_StopIsIdempotent(t *testing.T) {
	throttle := NewThrottle(DefaultThrottleConfig(), zap.NewNop())
	throttle.Stop()
	assert.NotPanics(t, throttle.Stop)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.9:5000"
	assert.Equal(t, "192.168.1.9", clientIP(req))

	req.RemoteAddr = "not-a-host-port"
	assert.Equal(t, "not-a-host-port", clientIP(req))
}
