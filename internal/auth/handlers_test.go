package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HanTheDev/chem-render-api/internal/db"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) *mux.Router {
	t.Helper()

	bcryptCost = 4
	t.Cleanup(func() { bcryptCost = 12 })

	store, err := db.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate(context.Background()))

	router := mux.NewRouter()
	NewHandler(store, testSecret, time.Minute, time.Hour).RegisterRoutes(router)
	return router
}

func postJSON(router http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const validRegistration = `{"username": "alice", "email": "alice@example.com", "password": "s3cret-pass", "password_confirm": "s3cret-pass"}`

func TestRegister(t *testing.T) {
	router := setupRouter(t)

	rec := postJSON(router, "/api/v1/auth/register/", validRegistration)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "alice@example.com", body["email"])
	assert.NotZero(t, body["id"])
	assert.NotEmpty(t, body["date_joined"])
	assert.NotContains(t, body, "password")
}

func TestRegisterForm(t *testing.T) {
	router := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register/",
		strings.NewReader("username=dave&email=dave%40example.com&password=longenough&password_confirm=longenough"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing fields",
			body: `{}`,
			want: `{"username": ["This field is required."], "email": ["This field is required."],
				"password": ["This field is required."], "password_confirm": ["This field is required."]}`,
		},
		{
			name: "bad email and short password",
			body: `{"username": "bob", "email": "bob", "password": "short", "password_confirm": "short"}`,
			want: `{"email": ["Enter a valid email address."], "password": ["Ensure this field has at least 8 characters."]}`,
		},
		{
			name: "passwords differ",
			body: `{"username": "bob", "email": "bob@example.com", "password": "long-enough", "password_confirm": "different"}`,
			want: `{"password_confirm": ["Passwords do not match."]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupRouter(t)
			rec := postJSON(router, "/api/v1/auth/register/", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	router := setupRouter(t)

	require.Equal(t, http.StatusCreated, postJSON(router, "/api/v1/auth/register/", validRegistration).Code)

	rec := postJSON(router, "/api/v1/auth/register/", validRegistration)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"username": ["A user with that username already exists."]}`, rec.Body.String())
}

func TestTokenObtainAndRefresh(t *testing.T) {
	router := setupRouter(t)
	require.Equal(t, http.StatusCreated, postJSON(router, "/api/v1/auth/register/", validRegistration).Code)

	rec := postJSON(router, "/api/v1/auth/token/", `{"username": "alice", "password": "s3cret-pass"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pair TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))

	claims, err := ValidateToken(pair.Access, TokenTypeAccess, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)

	rec = postJSON(router, "/api/v1/auth/token/refresh/", `{"refresh": "`+pair.Refresh+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var refreshed map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &refreshed))
	_, err = ValidateToken(refreshed["access"], TokenTypeAccess, testSecret)
	assert.NoError(t, err)

	rec = postJSON(router, "/api/v1/auth/token/refresh/", `{"refresh": "`+pair.Access+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "access tokens cannot be used to refresh")
}

func TestTokenBadCredentials(t *testing.T) {
	router := setupRouter(t)
	require.Equal(t, http.StatusCreated, postJSON(router, "/api/v1/auth/register/", validRegistration).Code)

	for _, body := range []string{
		`{"username": "alice", "password": "wrong-password"}`,
		`{"username": "nobody", "password": "s3cret-pass"}`,
	} {
		rec := postJSON(router, "/api/v1/auth/token/", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"detail": "No active account found with the given credentials"}`, rec.Body.String())
	}

	rec := postJSON(router, "/api/v1/auth/token/", `{"username": "alice"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshUnknownUser(t *testing.T) {
	router := setupRouter(t)

	refresh, err := GenerateToken(404, "ghost", TokenTypeRefresh, testSecret, time.Hour)
	require.NoError(t, err)

	rec := postJSON(router, "/api/v1/auth/token/refresh/", `{"refresh": "`+refresh+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
