// Package audit writes the per-request render log.
package audit

import (
	"context"
	"time"

	"github.com/HanTheDev/chem-render-api/internal/logging"
	"github.com/HanTheDev/chem-render-api/internal/metrics"
	"github.com/HanTheDev/chem-render-api/internal/models"
)

const (
	maxUserAgentLength = 500
	writeTimeout       = 5 * time.Second
)

type Store interface {
	CreateRequestLog(ctx context.Context, log *models.RequestLog) error
}

// Entry describes one render attempt. UserID is nil for anonymous callers.
type Entry struct {
	UserID       *int64
	Method       string
	Smiles       string
	HasMolfile   bool
	Width        int
	Height       int
	Format       string
	Success      bool
	ErrorMessage string
	Elapsed      time.Duration
	UserAgent    string
	IPAddress    string
}

type Logger struct {
	store Store
}

func NewLogger(store Store) *Logger {
	return &Logger{store: store}
}

// Record persists e. It never fails: a store error is logged and counted, and
// the caller's response is unaffected.
func (l *Logger) Record(ctx context.Context, e Entry) {
	log := e.toRequestLog()

	// The row must land even if the client has already gone away.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := l.store.CreateRequestLog(writeCtx, log); err != nil {
		metrics.AuditWriteFailures.Inc()
		logging.Ctx(ctx).Error().Err(err).
			Str("method", log.Method).
			Bool("success", log.Success).
			Msg("Failed to write request log")
	}
}

func (e Entry) toRequestLog() *models.RequestLog {
	elapsedMs := int(e.Elapsed.Milliseconds())
	width, height := e.Width, e.Height

	log := &models.RequestLog{
		UserID:         e.UserID,
		Method:         e.Method,
		HasMolfile:     e.HasMolfile,
		Width:          &width,
		Height:         &height,
		ImageFormat:    e.Format,
		Success:        e.Success,
		ResponseTimeMs: &elapsedMs,
		UserAgent:      truncate(e.UserAgent, maxUserAgentLength),
	}

	if e.Smiles != "" {
		smiles := e.Smiles
		log.Smiles = &smiles
	}
	if e.ErrorMessage != "" {
		msg := e.ErrorMessage
		log.ErrorMessage = &msg
	}
	if e.IPAddress != "" {
		ip := e.IPAddress
		log.IPAddress = &ip
	}

	return log
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
