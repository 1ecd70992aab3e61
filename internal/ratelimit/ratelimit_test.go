package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/HanTheDev/chem-render-api/internal/auth"
	"github.com/HanTheDev/chem-render-api/internal/middleware"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	limiter, err := NewRateLimiter("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { limiter.Close() })

	limiter.now = func() time.Time { return time.Date(2026, 3, 1, 10, 59, 30, 0, time.UTC) }
	return limiter, mr
}

func TestAllow(t *testing.T) {
	limiter, mr := setupLimiter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "anon:10.0.0.1", 2)
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := limiter.Allow(ctx, "anon:10.0.0.1", 2)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = limiter.Allow(ctx, "anon:10.0.0.2", 2)
	require.NoError(t, err)
	assert.True(t, allowed, "keys are independent")

	key := "ratelimit:anon:10.0.0.1:2026-03-01-10"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))
}

func TestAllowNewWindow(t *testing.T) {
	limiter, _ := setupLimiter(t)
	ctx := context.Background()

	allowed, _ := limiter.Allow(ctx, "k", 1)
	assert.True(t, allowed)
	allowed, _ = limiter.Allow(ctx, "k", 1)
	assert.False(t, allowed)

	limiter.now = func() time.Time { return time.Date(2026, 3, 1, 11, 0, 1, 0, time.UTC) }
	allowed, _ = limiter.Allow(ctx, "k", 1)
	assert.True(t, allowed)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func anonRequest(ip string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/answer/?smiles=C", nil)
	r.RemoteAddr = ip + ":40000"
	return r
}

func TestAnonThrottleRedis(t *testing.T) {
	limiter, _ := setupLimiter(t)
	handler := AnonThrottle(limiter, 1)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, anonRequest("203.0.113.1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, anonRequest("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "31", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"detail": "Request was throttled. Expected available in 31 seconds."}`, rec.Body.String())
}

func TestAnonThrottleSkipsAuthenticatedUsers(t *testing.T) {
	limiter, _ := setupLimiter(t)
	handler := AnonThrottle(limiter, 1)(okHandler())

	for i := 0; i < 3; i++ {
		r := anonRequest("203.0.113.9")
		r = r.WithContext(context.WithValue(r.Context(), auth.UserContextKey, &auth.Claims{UserID: 1}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestAnonThrottleFailsOpenWhenRedisIsDown(t *testing.T) {
	limiter, mr := setupLimiter(t)
	handler := AnonThrottle(limiter, 1)(okHandler())
	mr.Close()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, anonRequest("203.0.113.2"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnonThrottleInProcess(t *testing.T) {
	handler := AnonThrottle(nil, 2)(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, anonRequest("198.51.100.4"))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, anonRequest("198.51.100.5"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPing(t *testing.T) {
	limiter, mr := setupLimiter(t)
	assert.NoError(t, limiter.Ping(context.Background()))

	mr.Close()
	assert.Error(t, limiter.Ping(context.Background()))
}

func TestAnonThrottleIgnoresSpoofedForwardedFor(t *testing.T) {
	middleware.SetTrustProxyHeaders(false)
	t.Cleanup(func() { middleware.SetTrustProxyHeaders(true) })

	limiter, _ := setupLimiter(t)
	handler := AnonThrottle(limiter, 1)(okHandler())

	codes := make([]int, 0, 3)
	for _, forged := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"} {
		r := anonRequest("198.51.100.9")
		r.Header.Set("X-Forwarded-For", forged)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}
