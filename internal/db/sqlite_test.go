package db

import (
	"context"
	"testing"

	"github.com/HanTheDev/chem-render-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteDB {
	t.Helper()

	store, err := NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestSQLiteUsers(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	user := &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "hash"}
	require.NoError(t, store.CreateUser(ctx, user))
	assert.NotZero(t, user.ID)
	assert.False(t, user.DateJoined.IsZero())

	byName, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)
	assert.Equal(t, "hash", byName.PasswordHash)

	byID, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Email)

	err = store.CreateUser(ctx, &models.User{Username: "alice", Email: "other@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	_, err = store.GetUserByUsername(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteRequestLogs(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	user := &models.User{Username: "carol", Email: "carol@example.com", PasswordHash: "hash"}
	require.NoError(t, store.CreateUser(ctx, user))

	ok := &models.RequestLog{
		UserID:         &user.ID,
		Method:         "GET",
		Smiles:         strPtr("CCO"),
		Width:          intPtr(300),
		Height:         intPtr(300),
		ImageFormat:    "png",
		Success:        true,
		ResponseTimeMs: intPtr(12),
		UserAgent:      "curl/8.0",
		IPAddress:      strPtr("10.0.0.1"),
	}
	require.NoError(t, store.CreateRequestLog(ctx, ok))
	assert.NotZero(t, ok.ID)

	failed := &models.RequestLog{
		Method:         "POST",
		HasMolfile:     true,
		Width:          intPtr(400),
		Height:         intPtr(200),
		ImageFormat:    "svg",
		Success:        false,
		ErrorMessage:   strPtr("molfile loader: bad header"),
		ResponseTimeMs: intPtr(4),
	}
	require.NoError(t, store.CreateRequestLog(ctx, failed))

	got, err := store.GetRequestLog(ctx, ok.ID)
	require.NoError(t, err)
	require.NotNil(t, got.UserID)
	assert.Equal(t, user.ID, *got.UserID)
	assert.Equal(t, "CCO", *got.Smiles)
	assert.True(t, got.Success)
	assert.Nil(t, got.ErrorMessage)
	assert.Equal(t, "10.0.0.1", *got.IPAddress)

	got, err = store.GetRequestLog(ctx, failed.ID)
	require.NoError(t, err)
	assert.Nil(t, got.UserID)
	assert.Nil(t, got.Smiles)
	assert.True(t, got.HasMolfile)
	assert.Equal(t, "molfile loader: bad header", *got.ErrorMessage)

	_, err = store.GetRequestLog(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := store.ListRequestLogs(ctx, models.RequestLogFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, failed.ID, all[0].ID, "newest first")

	success := false
	onlyFailed, err := store.ListRequestLogs(ctx, models.RequestLogFilter{Success: &success})
	require.NoError(t, err)
	require.Len(t, onlyFailed, 1)
	assert.Equal(t, "POST", onlyFailed[0].Method)

	byUser, err := store.ListRequestLogs(ctx, models.RequestLogFilter{UserID: &user.ID, Format: "PNG"})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, ok.ID, byUser[0].ID)

	page, err := store.ListRequestLogs(ctx, models.RequestLogFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ok.ID, page[0].ID)

	stats, err := store.GetRequestLogStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Succeeded)
	assert.Equal(t, int64(1), stats.Failed)
	assert.InDelta(t, 8.0, stats.AvgResponseTimeMs, 0.001)
	assert.Equal(t, map[string]int64{"png": 1, "svg": 1}, stats.ByFormat)
}

func TestSQLiteStatsEmpty(t *testing.T) {
	store := setupTestDB(t)

	stats, err := store.GetRequestLogStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.AvgResponseTimeMs)
	assert.Empty(t, stats.ByFormat)
}

func TestBuildLogFilter(t *testing.T) {
	success := true
	var userID int64 = 7
	tail, args := buildLogFilter(models.RequestLogFilter{
		Method:  "get",
		Success: &success,
		UserID:  &userID,
		Limit:   10000,
	}, func(n int) string { return "$" + string(rune('0'+n)) })

	assert.Equal(t, " WHERE method = $1 AND success = $2 AND user_id = $3 ORDER BY created_at DESC, id DESC LIMIT $4 OFFSET $5", tail)
	assert.Equal(t, []interface{}{"GET", true, int64(7), maxListLimit, 0}, args)
}

func TestOpenUnsupportedScheme(t *testing.T) {
	_, err := Open(context.Background(), "mysql://localhost/db")
	assert.ErrorContains(t, err, "unsupported database url")
}
