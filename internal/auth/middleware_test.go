package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureClaims(seen **Claims, called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		*seen, _ = GetUserFromContext(r.Context())
	})
}

func TestOptionalAnonymous(t *testing.T) {
	var seen *Claims
	var called bool
	handler := NewMiddleware(testSecret).Optional(captureClaims(&seen, &called))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, called)
	assert.Nil(t, seen)
}

func TestOptionalWithToken(t *testing.T) {
	token, err := GenerateToken(9, "carol", TokenTypeAccess, testSecret, time.Minute)
	require.NoError(t, err)

	var seen *Claims
	var called bool
	handler := NewMiddleware(testSecret).Optional(captureClaims(&seen, &called))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, seen)
	assert.Equal(t, int64(9), seen.UserID)
}

func TestOptionalRejectsBadCredentials(t *testing.T) {
	refresh, err := GenerateToken(9, "carol", TokenTypeRefresh, testSecret, time.Minute)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"bad scheme":    "Basic abc",
		"bad token":     "Bearer nonsense",
		"refresh token": "Bearer " + refresh,
		"extra parts":   "Bearer a b",
	} {
		t.Run(name, func(t *testing.T) {
			var seen *Claims
			var called bool
			handler := NewMiddleware(testSecret).Optional(captureClaims(&seen, &called))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", header)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuthenticateRequiresHeader(t *testing.T) {
	var seen *Claims
	var called bool
	handler := NewMiddleware(testSecret).Authenticate(captureClaims(&seen, &called))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail": "Authentication credentials were not provided."}`, rec.Body.String())
}
