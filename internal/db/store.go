package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HanTheDev/chem-render-api/internal/models"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateUsername = errors.New("username already exists")
)

// Store is implemented by the Postgres and SQLite backends.
type Store interface {
	Migrate(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)

	CreateRequestLog(ctx context.Context, log *models.RequestLog) error
	GetRequestLog(ctx context.Context, id int64) (*models.RequestLog, error)
	ListRequestLogs(ctx context.Context, filter models.RequestLogFilter) ([]models.RequestLog, error)
	GetRequestLogStats(ctx context.Context) (*models.RequestLogStats, error)

	Close()
}

// Open picks the backend from the URL scheme: postgres:// or postgresql://
// go to pgx, sqlite:// (or sqlite3://) to a local file.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return NewDB(ctx, databaseURL)
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return NewSQLiteDB(strings.TrimPrefix(databaseURL, "sqlite://"))
	case strings.HasPrefix(databaseURL, "sqlite3://"):
		return NewSQLiteDB(strings.TrimPrefix(databaseURL, "sqlite3://"))
	default:
		return nil, fmt.Errorf("unsupported database url %q", databaseURL)
	}
}

const defaultListLimit = 50
const maxListLimit = 500

// buildLogFilter renders the WHERE/LIMIT tail shared by both backends.
// placeholder returns the bind marker for the n-th (1-based) argument.
func buildLogFilter(filter models.RequestLogFilter, placeholder func(n int) string) (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, placeholder(len(args))))
	}

	if filter.Method != "" {
		add("method = %s", strings.ToUpper(filter.Method))
	}
	if filter.Format != "" {
		add("image_format = %s", strings.ToLower(filter.Format))
	}
	if filter.Success != nil {
		add("success = %s", *filter.Success)
	}
	if filter.UserID != nil {
		add("user_id = %s", *filter.UserID)
	}

	var sb strings.Builder
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC, id DESC")

	limit := EffectiveLimit(filter.Limit)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	args = append(args, limit)
	sb.WriteString(" LIMIT " + placeholder(len(args)))
	args = append(args, offset)
	sb.WriteString(" OFFSET " + placeholder(len(args)))

	return sb.String(), args
}

// EffectiveLimit clamps a requested page size to (0, 500], defaulting to 50.
func EffectiveLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
