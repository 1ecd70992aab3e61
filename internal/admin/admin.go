// Package admin exposes a read-only view of the render audit log.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/HanTheDev/chem-render-api/internal/db"
	"github.com/HanTheDev/chem-render-api/internal/logging"
	"github.com/HanTheDev/chem-render-api/internal/models"
	"github.com/gorilla/mux"
)

const KeyHeader = "X-Admin-Key"

type Store interface {
	GetRequestLog(ctx context.Context, id int64) (*models.RequestLog, error)
	ListRequestLogs(ctx context.Context, filter models.RequestLogFilter) ([]models.RequestLog, error)
	GetRequestLogStats(ctx context.Context) (*models.RequestLogStats, error)
}

type AdminHandler struct {
	store  Store
	apiKey string
}

func NewAdminHandler(store Store, apiKey string) *AdminHandler {
	return &AdminHandler{store: store, apiKey: apiKey}
}

func (h *AdminHandler) RegisterRoutes(router *mux.Router) {
	sub := router.PathPrefix("/admin").Subrouter()
	sub.Use(h.RequireAPIKey)

	sub.HandleFunc("/request-logs", h.ListRequestLogs).Methods("GET")
	sub.HandleFunc("/request-logs/{id}", h.GetRequestLog).Methods("GET")
	sub.HandleFunc("/stats", h.GetStats).Methods("GET")

	// Request logs are immutable; everything but GET is refused.
	for _, path := range []string{"/request-logs", "/request-logs/{id}", "/stats"} {
		sub.HandleFunc(path, methodNotAllowed)
	}
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "GET")
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"detail": "Method \"" + r.Method + "\" not allowed.",
	})
}

// RequireAPIKey checks X-Admin-Key. With no key configured the admin API is off.
func (h *AdminHandler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey == "" {
			writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Admin API is disabled."})
			return
		}

		given := r.Header.Get(KeyHeader)
		if subtle.ConstantTimeCompare([]byte(given), []byte(h.apiKey)) != 1 {
			writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Invalid admin key."})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *AdminHandler) ListRequestLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	logs, err := h.store.ListRequestLogs(r.Context(), filter)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to list request logs")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to list request logs"})
		return
	}
	if logs == nil {
		logs = []models.RequestLog{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": logs,
		"count":   len(logs),
		"limit":   db.EffectiveLimit(filter.Limit),
		"offset":  filter.Offset,
	})
}

func (h *AdminHandler) GetRequestLog(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request log ID"})
		return
	}

	log, err := h.store.GetRequestLog(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Request log not found"})
		return
	}
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Int64("id", id).Msg("Failed to get request log")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to get request log"})
		return
	}

	writeJSON(w, http.StatusOK, log)
}

func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetRequestLogStats(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to get request log stats")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to get stats"})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func parseFilter(r *http.Request) (models.RequestLogFilter, error) {
	q := r.URL.Query()
	filter := models.RequestLogFilter{
		Method: strings.ToUpper(q.Get("method")),
		Format: strings.ToLower(q.Get("format")),
	}

	if v := q.Get("success"); v != "" {
		success, err := strconv.ParseBool(v)
		if err != nil {
			return filter, errors.New("success must be true or false")
		}
		filter.Success = &success
	}

	if v := q.Get("user_id"); v != "" {
		userID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, errors.New("user_id must be an integer")
		}
		filter.UserID = &userID
	}

	var err error
	if filter.Limit, err = nonNegative(q.Get("limit"), "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = nonNegative(q.Get("offset"), "offset"); err != nil {
		return filter, err
	}

	return filter, nil
}

func nonNegative(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
