package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/HanTheDev/chem-render-api/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	query := `
        INSERT INTO users (username, email, password_hash)
        VALUES ($1, $2, $3)
        RETURNING id, date_joined
    `

	err := db.Pool.QueryRow(ctx, query, user.Username, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.DateJoined)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicateUsername
	}

	return err
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
        SELECT id, username, email, password_hash, date_joined
        FROM users
        WHERE username = $1
    `

	return db.scanUser(db.Pool.QueryRow(ctx, query, username))
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
        SELECT id, username, email, password_hash, date_joined
        FROM users
        WHERE id = $1
    `

	return db.scanUser(db.Pool.QueryRow(ctx, query, id))
}

func (db *DB) scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.DateJoined,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (db *DB) CreateRequestLog(ctx context.Context, log *models.RequestLog) error {
	query := `
        INSERT INTO request_logs (user_id, method, smiles, has_molfile, width, height, image_format,
            success, error_message, response_time_ms, user_agent, ip_address)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING id, created_at
    `

	return db.Pool.QueryRow(ctx, query,
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
	).Scan(&log.ID, &log.CreatedAt)
}

const pgRequestLogColumns = `id, user_id, method, smiles, has_molfile, width, height, image_format,
    success, error_message, response_time_ms, COALESCE(user_agent, ''), ip_address, created_at`

func (db *DB) GetRequestLog(ctx context.Context, id int64) (*models.RequestLog, error) {
	query := `SELECT ` + pgRequestLogColumns + ` FROM request_logs WHERE id = $1`

	log, err := scanRequestLog(db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return log, err
}

func (db *DB) ListRequestLogs(ctx context.Context, filter models.RequestLogFilter) ([]models.RequestLog, error) {
	tail, args := buildLogFilter(filter, func(n int) string { return fmt.Sprintf("$%d", n) })
	query := `SELECT ` + pgRequestLogColumns + ` FROM request_logs` + tail

	rows, err := db.Pool.Query(ctx, query, args...)
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

func (db *DB) GetRequestLogStats(ctx context.Context) (*models.RequestLogStats, error) {
	query := `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE success),
               COUNT(*) FILTER (WHERE NOT success),
               COALESCE(AVG(response_time_ms), 0)::float8
        FROM request_logs
    `

	stats := &models.RequestLogStats{ByFormat: map[string]int64{}}
	err := db.Pool.QueryRow(ctx, query).Scan(
		&stats.Total,
		&stats.Succeeded,
		&stats.Failed,
		&stats.AvgResponseTimeMs,
	)
	if err != nil {
		return nil, err
	}

	rows, err := db.Pool.Query(ctx, `SELECT image_format, COUNT(*) FROM request_logs GROUP BY image_format`)
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

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequestLog(row rowScanner) (*models.RequestLog, error) {
	var log models.RequestLog
	err := row.Scan(
		&log.ID,
		&log.UserID,
		&log.Method,
		&log.Smiles,
		&log.HasMolfile,
		&log.Width,
		&log.Height,
		&log.ImageFormat,
		&log.Success,
		&log.ErrorMessage,
		&log.ResponseTimeMs,
		&log.UserAgent,
		&log.IPAddress,
		&log.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &log, nil
}
