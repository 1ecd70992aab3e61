package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/HanTheDev/chem-render-api/internal/models"
	"github.com/mattn/go-sqlite3"
)

// SQLiteDB is the single-file backend used for local runs and tests.
type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

func (s *SQLiteDB) Close() {
	s.db.Close()
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL UNIQUE,
    email         TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    date_joined   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS request_logs (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id          INTEGER REFERENCES users(id) ON DELETE SET NULL,
    method           TEXT NOT NULL,
    smiles           TEXT,
    has_molfile      BOOLEAN NOT NULL DEFAULT 0,
    width            INTEGER,
    height           INTEGER,
    image_format     TEXT NOT NULL DEFAULT '',
    success          BOOLEAN NOT NULL DEFAULT 1,
    error_message    TEXT,
    response_time_ms INTEGER,
    user_agent       TEXT,
    ip_address       TEXT,
    created_at       TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS request_logs_created_at_idx ON request_logs (created_at);
`

func (s *SQLiteDB) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (s *SQLiteDB) CreateUser(ctx context.Context, user *models.User) error {
	joined := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, date_joined) VALUES (?, ?, ?, ?)`,
		user.Username, user.Email, user.PasswordHash, joined,
	)

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrDuplicateUsername
	}
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	user.ID = id
	user.DateJoined = joined
	return nil
}

func (s *SQLiteDB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, date_joined FROM users WHERE username = ?`, username))
}

func (s *SQLiteDB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, date_joined FROM users WHERE id = ?`, id))
}

func (s *SQLiteDB) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.DateJoined)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLiteDB) CreateRequestLog(ctx context.Context, log *models.RequestLog) error {
	created := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO request_logs (user_id, method, smiles, has_molfile, width, height, image_format,
			success, error_message, response_time_ms, user_agent, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		log.UserID,
		log.Method,
		log.Smiles,
		log.HasMolfile,
		log.Width,
		log.Height,
		log.ImageFormat,
		log.Success,
		log.ErrorMessage,
		log.ResponseTimeMs,
		log.UserAgent,
		log.IPAddress,
		created,
	)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	log.ID = id
	log.CreatedAt = created
	return nil
}

const sqliteRequestLogColumns = `id, user_id, method, smiles, has_molfile, width, height, image_format,
	success, error_message, response_time_ms, COALESCE(user_agent, ''), ip_address, created_at`

func (s *SQLiteDB) GetRequestLog(ctx context.Context, id int64) (*models.RequestLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRequestLogColumns+` FROM request_logs WHERE id = ?`, id)

	log, err := scanRequestLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return log, err
}

func (s *SQLiteDB) ListRequestLogs(ctx context.Context, filter models.RequestLogFilter) ([]models.RequestLog, error) {
	tail, args := buildLogFilter(filter, func(int) string { return "?" })

	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteRequestLogColumns+` FROM request_logs`+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.RequestLog{}
	for rows.Next() {
		log, err := scanRequestLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *log)
	}

	return logs, rows.Err()
}

func (s *SQLiteDB) GetRequestLogStats(ctx context.Context) (*models.RequestLogStats, error) {
	stats := &models.RequestLogStats{ByFormat: map[string]int64{}}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0),
		       COALESCE(AVG(response_time_ms), 0.0)
		FROM request_logs
	`).Scan(&stats.Total, &stats.Succeeded, &stats.Failed, &stats.AvgResponseTimeMs)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT image_format, COUNT(*) FROM request_logs GROUP BY image_format`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var format string
		var count int64
		if err := rows.Scan(&format, &count); err != nil {
			return nil, err
		}
		stats.ByFormat[format] = count
	}

	return stats, rows.Err()
}
