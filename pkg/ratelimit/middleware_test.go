package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"standings/pkg/logger"
)

type MockLimiter struct{ mock.Mock }

func (m *MockLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(Decision), args.Error(1)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareRejectsFourthRequest(t *testing.T) {
	clock := newFakeClock()
	l := NewFixedWindow(time.Minute, 3).WithClock(clock.Now)
	h := Middleware(l, logger.Nop())(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/standings", nil)
		req.RemoteAddr = "192.0.2.7:5123"
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	clock.Advance(20500 * time.Millisecond)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/standings", nil)
	req.RemoteAddr = "192.0.2.7:6000"
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "40", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "too many requests", body["error"])
	assert.EqualValues(t, 40, body["retryAfter"])
}

func TestMiddlewareFailsOpen(t *testing.T) {
	ml := new(MockLimiter)
	ml.On("Allow", mock.Anything, "198.51.100.1").Return(Decision{}, errors.New("redis down"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.1:80"
	Middleware(ml, logger.Nop())(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	ml.AssertExpectations(t)
}

func TestMiddlewareMinimumRetryAfter(t *testing.T) {
	ml := new(MockLimiter)
	ml.On("Allow", mock.Anything, mock.Anything).Return(Decision{Allowed: false, Limit: 1, RetryAfter: 10 * time.Millisecond}, nil)

	rec := httptest.NewRecorder()
	Middleware(ml, logger.Nop())(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	assert.Equal(t, "203.0.113.9", ClientIP(req))

	req.RemoteAddr = "203.0.113.9"
	assert.Equal(t, "203.0.113.9", ClientIP(req))
}
