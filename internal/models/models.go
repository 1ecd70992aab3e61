package models

import "time"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DateJoined   time.Time `json:"date_joined"`
}

// RequestLog is one immutable audit row per render attempt.
type RequestLog struct {
	ID             int64     `json:"id"`
	UserID         *int64    `json:"user_id"`
	Method         string    `json:"method"`
	Smiles         *string   `json:"smiles"`
	HasMolfile     bool      `json:"has_molfile"`
	Width          *int      `json:"width"`
	Height         *int      `json:"height"`
	ImageFormat    string    `json:"image_format"`
	Success        bool      `json:"success"`
	ErrorMessage   *string   `json:"error_message"`
	ResponseTimeMs *int      `json:"response_time_ms"`
	UserAgent      string    `json:"user_agent"`
	IPAddress      *string   `json:"ip_address"`
	CreatedAt      time.Time `json:"created_at"`
}

type RequestLogFilter struct {
	Method  string
	Format  string
	Success *bool
	UserID  *int64
	Limit   int
	Offset  int
}

type RequestLogStats struct {
	Total             int64            `json:"total"`
	Succeeded         int64            `json:"succeeded"`
	Failed            int64            `json:"failed"`
	AvgResponseTimeMs float64          `json:"avg_response_time_ms"`
	ByFormat          map[string]int64 `json:"by_format"`
}
