package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/HanTheDev/chem-render-api/internal/db"
	"github.com/HanTheDev/chem-render-api/internal/logging"
	"github.com/HanTheDev/chem-render-api/internal/models"
	"github.com/HanTheDev/chem-render-api/internal/validation"
	"github.com/gorilla/mux"
)

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

type Handler struct {
	store      UserStore
	jwtSecret  string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewHandler(store UserStore, jwtSecret string, accessTTL, refreshTTL time.Duration) *Handler {
	return &Handler{
		store:      store,
		jwtSecret:  jwtSecret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/auth/register/", h.Register).Methods("POST")
	router.HandleFunc("/api/v1/auth/token/", h.ObtainToken).Methods("POST")
	router.HandleFunc("/api/v1/auth/token/refresh/", h.RefreshToken).Methods("POST")
}

type registerRequest struct {
	Username        string `json:"username" form:"username" validate:"required,max=150"`
	Email           string `json:"email" form:"email" validate:"required,email"`
	Password        string `json:"password" form:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" form:"password_confirm" validate:"required"`
}

type UserResponse struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	DateJoined time.Time `json:"date_joined"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req, map[string]*string{
		"username":         &req.Username,
		"email":            &req.Email,
		"password":         &req.Password,
		"password_confirm": &req.PasswordConfirm,
	}); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error - " + err.Error()})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if errs := validation.Struct(&req); errs != nil {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}
	if req.Password != req.PasswordConfirm {
		writeJSON(w, http.StatusBadRequest, validation.FieldErrors{"password_confirm": {"Passwords do not match."}})
		return
	}

	hash, err := HashPassword(req.Password)
	if errors.Is(err, ErrPasswordTooLong) {
		writeJSON(w, http.StatusBadRequest, validation.FieldErrors{"password": {"Ensure this field has no more than 72 bytes."}})
		return
	}
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Password hashing failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to register user"})
		return
	}

	user := &models.User{Username: req.Username, Email: req.Email, PasswordHash: hash}
	err = h.store.CreateUser(r.Context(), user)
	if errors.Is(err, db.ErrDuplicateUsername) {
		writeJSON(w, http.StatusBadRequest, validation.FieldErrors{"username": {"A user with that username already exists."}})
		return
	}
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("username", req.Username).Msg("Failed to create user")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to register user"})
		return
	}

	logging.Ctx(r.Context()).Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("User registered")

	writeJSON(w, http.StatusCreated, UserResponse{
		ID:         user.ID,
		Username:   user.Username,
		Email:      user.Email,
		DateJoined: user.DateJoined,
	})
}

func (h *Handler) ObtainToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" form:"username" validate:"required"`
		Password string `json:"password" form:"password" validate:"required"`
	}
	if err := decodeBody(r, &req, map[string]*string{
		"username": &req.Username,
		"password": &req.Password,
	}); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error - " + err.Error()})
		return
	}

	if errs := validation.Struct(&req); errs != nil {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	user, err := h.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		logging.Ctx(r.Context()).Error().Err(err).Msg("User lookup failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to issue token"})
		return
	}
	if user == nil || !CheckPassword(user.PasswordHash, req.Password) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
		return
	}

	pair, err := GenerateTokenPair(user.ID, user.Username, h.jwtSecret, h.accessTTL, h.refreshTTL)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Token generation failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to issue token"})
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh" form:"refresh" validate:"required"`
	}
	if err := decodeBody(r, &req, map[string]*string{"refresh": &req.Refresh}); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error - " + err.Error()})
		return
	}

	if errs := validation.Struct(&req); errs != nil {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	claims, err := ValidateToken(req.Refresh, TokenTypeRefresh, h.jwtSecret)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
		return
	}

	// The account may have been removed since the refresh token was issued.
	if _, err := h.store.GetUserByID(r.Context(), claims.UserID); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
		return
	}

	access, err := GenerateToken(claims.UserID, claims.Username, TokenTypeAccess, h.jwtSecret, h.accessTTL)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Token generation failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to issue token"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

// decodeBody accepts JSON, or form fields copied into the given targets.
func decodeBody(r *http.Request, dst interface{}, formFields map[string]*string) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if mediaType == "multipart/form-data" {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				return err
			}
		} else if err := r.ParseForm(); err != nil {
			return err
		}
		for name, target := range formFields {
			*target = r.PostForm.Get(name)
		}
		return nil
	default:
		return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
