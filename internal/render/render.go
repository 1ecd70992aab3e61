// Package render adapts the external chemistry toolkit to the API.
//
// The Renderer owns option defaulting and the format → MIME mapping; the
// Toolkit does the parsing and drawing. A Renderer keeps no per-request state
// and is safe for concurrent use as long as its Toolkit is.
package render

import (
	"context"
	"errors"
	"strings"
)

const (
	DefaultWidth  = 300
	DefaultHeight = 300
	DefaultFormat = "png"

	MinDimension = 50
	MaxDimension = 2000

	// Margin is applied on both axes, in pixels.
	Margin = 10
)

var contentTypes = map[string]string{
	"png": "image/png",
	"svg": "image/svg+xml",
	"pdf": "application/pdf",
}

// SupportedFormats lists the output formats in display order.
var SupportedFormats = []string{"png", "svg", "pdf"}

var ErrEmptyImage = errors.New("renderer returned an empty image")

func IsSupportedFormat(format string) bool {
	_, ok := contentTypes[format]
	return ok
}

func ContentType(format string) string {
	return contentTypes[format]
}

// Options are the caller-facing render settings. Zero values mean "default".
type Options struct {
	Width  int
	Height int
	Format string
}

// Normalize fills in defaults. An unknown format falls back to png instead of
// failing; strict checking belongs to request validation.
func (o Options) Normalize() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}

	o.Format = strings.ToLower(strings.TrimSpace(o.Format))
	if !IsSupportedFormat(o.Format) {
		o.Format = DefaultFormat
	}

	return o
}

// Job is what the toolkit is asked to draw.
type Job struct {
	Structure string
	Format    string
	Width     int
	Height    int
	Coloring  bool
	MarginX   int
	MarginY   int
}

// Toolkit parses a SMILES or MOL structure and draws it.
type Toolkit interface {
	Render(ctx context.Context, job Job) ([]byte, error)
}

// StructureError is returned when the toolkit cannot interpret the input.
type StructureError struct {
	Message string
}

func (e *StructureError) Error() string {
	return e.Message
}

type Result struct {
	Data        []byte
	ContentType string
	Format      string
}

type Renderer struct {
	toolkit Toolkit
}

func NewRenderer(toolkit Toolkit) *Renderer {
	return &Renderer{toolkit: toolkit}
}

func (r *Renderer) RenderSmiles(ctx context.Context, smiles string, opts Options) (*Result, error) {
	return r.render(ctx, smiles, opts)
}

func (r *Renderer) RenderMolfile(ctx context.Context, molfile string, opts Options) (*Result, error) {
	return r.render(ctx, molfile, opts)
}

func (r *Renderer) render(ctx context.Context, structure string, opts Options) (*Result, error) {
	opts = opts.Normalize()

	data, err := r.toolkit.Render(ctx, Job{
		Structure: structure,
		Format:    opts.Format,
		Width:     opts.Width,
		Height:    opts.Height,
		Coloring:  true,
		MarginX:   Margin,
		MarginY:   Margin,
	})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	return &Result{
		Data:        data,
		ContentType: ContentType(opts.Format),
		Format:      opts.Format,
	}, nil
}
