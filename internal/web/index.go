// Package web serves the HTML form for trying the render endpoint.
package web

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/HanTheDev/chem-render-api/internal/logging"
	"github.com/HanTheDev/chem-render-api/internal/render"
)

//go:embed index.html
var indexHTML embed.FS

var indexTemplate = template.Must(template.ParseFS(indexHTML, "index.html"))

type indexData struct {
	RenderURL     string
	Formats       []string
	DefaultWidth  int
	DefaultHeight int
	MinDimension  int
	MaxDimension  int
}

// IndexHandler renders the form page; renderURL is where the form submits.
func IndexHandler(renderURL string) http.HandlerFunc {
	data := indexData{
		RenderURL:     renderURL,
		Formats:       render.SupportedFormats,
		DefaultWidth:  render.DefaultWidth,
		DefaultHeight: render.DefaultHeight,
		MinDimension:  render.MinDimension,
		MaxDimension:  render.MaxDimension,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := indexTemplate.Execute(w, data); err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to render index page")
		}
	}
}
