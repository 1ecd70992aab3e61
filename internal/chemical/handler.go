// Package chemical serves the render endpoint: validate, render, audit, reply.
package chemical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/HanTheDev/chem-render-api/internal/audit"
	"github.com/HanTheDev/chem-render-api/internal/auth"
	"github.com/HanTheDev/chem-render-api/internal/logging"
	"github.com/HanTheDev/chem-render-api/internal/metrics"
	"github.com/HanTheDev/chem-render-api/internal/middleware"
	"github.com/HanTheDev/chem-render-api/internal/render"
	"github.com/HanTheDev/chem-render-api/internal/validation"
	"github.com/gorilla/mux"
)

// Route is the render endpoint path.
const Route = "/api/v1/answer/"

// maxBodySize covers one MOL upload plus the other form fields.
const maxBodySize = validation.MaxMolfileSize + 1<<20

type Renderer interface {
	RenderSmiles(ctx context.Context, smiles string, opts render.Options) (*render.Result, error)
	RenderMolfile(ctx context.Context, molfile string, opts render.Options) (*render.Result, error)
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

type Handler struct {
	renderer Renderer
	audit    Auditor
}

func NewHandler(renderer Renderer, auditor Auditor) *Handler {
	return &Handler{renderer: renderer, audit: auditor}
}

// RegisterRoutes mounts the endpoint behind wrap, which carries the auth and
// throttling middleware.
func (h *Handler) RegisterRoutes(router *mux.Router, wrap func(http.Handler) http.Handler) {
	router.Handle(Route, wrap(h)).Methods(http.MethodGet, http.MethodPost)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.Get(w, r)
	case http.MethodPost:
		h.Post(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
			"detail": fmt.Sprintf("Method \"%s\" not allowed.", r.Method),
		})
	}
}

// Get renders the SMILES in the query string.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, errs := validation.ParseGet(r.URL.Query())
	if errs != nil {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	h.respond(w, r, req, start)
}

// Post renders a SMILES form field or an uploaded MOL file.
func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	if err := validation.ParseForm(r); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"detail": fmt.Sprintf("Request body exceeds %d bytes.", tooLarge.Limit),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Form parse error - " + err.Error()})
		return
	}

	req, errs := validation.ParsePost(r)
	if errs != nil {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}
	// Downloads are a GET feature.
	req.Download = false

	h.respond(w, r, req, start)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, req *validation.RenderRequest, start time.Time) {
	ctx := r.Context()
	opts := req.Options.Normalize()

	result, err := h.render(ctx, req, opts)
	elapsed := time.Since(start)

	entry := audit.Entry{
		Method:     r.Method,
		Smiles:     req.Smiles,
		HasMolfile: req.HasMolfile,
		Width:      opts.Width,
		Height:     opts.Height,
		Format:     opts.Format,
		Success:    err == nil,
		Elapsed:    elapsed,
		UserAgent:  r.UserAgent(),
		IPAddress:  middleware.ClientIP(r),
	}
	if claims, ok := auth.GetUserFromContext(ctx); ok {
		userID := claims.UserID
		entry.UserID = &userID
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	h.audit.Record(ctx, entry)

	metrics.RecordRender(source(req), opts.Format, err == nil, elapsed)

	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("source", source(req)).
			Str("format", opts.Format).
			Msg("Render failed")
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Failed to render molecule: " + err.Error(),
		})
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	if req.Download {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="molecule.%s"`, result.Format))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(result.Data)
}

func (h *Handler) render(ctx context.Context, req *validation.RenderRequest, opts render.Options) (*render.Result, error) {
	if !req.HasMolfile {
		return h.renderer.RenderSmiles(ctx, req.Smiles, opts)
	}

	molfile, err := req.MolfileText()
	if err != nil {
		return nil, err
	}
	return h.renderer.RenderMolfile(ctx, molfile, opts)
}

func source(req *validation.RenderRequest) string {
	if req.HasMolfile {
		return "molfile"
	}
	return "smiles"
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
