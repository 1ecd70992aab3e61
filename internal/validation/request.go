package validation

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/HanTheDev/chem-render-api/internal/render"
)

const (
	// MaxMolfileSize caps a single MOL upload.
	MaxMolfileSize = 5 << 20
	maxFormMemory  = 8 << 20
)

// RenderRequest is a validated render call. Exactly one of Smiles or
// MolfileData is set.
type RenderRequest struct {
	Smiles      string
	MolfileData []byte
	HasMolfile  bool
	Options     render.Options
	Download    bool
}

// DecodeError reports a MOL upload that is not UTF-8 text.
type DecodeError struct {
	Offset int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("'utf-8' codec can't decode molfile: invalid byte at position %d", e.Offset)
}

// MolfileText decodes the uploaded MOL content.
func (r *RenderRequest) MolfileText() (string, error) {
	data := r.MolfileData
	for i := 0; i < len(data); {
		c, size := utf8.DecodeRune(data[i:])
		if c == utf8.RuneError && size <= 1 {
			return "", &DecodeError{Offset: i}
		}
		i += size
	}
	return string(data), nil
}

type optionsInput struct {
	Width  int    `form:"width" validate:"min=50,max=2000"`
	Height int    `form:"height" validate:"min=50,max=2000"`
	Format string `form:"format" validate:"imageformat"`
}

// ParseGet validates the query string of a GET render request.
func ParseGet(values url.Values) (*RenderRequest, FieldErrors) {
	errs := FieldErrors{}
	req := &RenderRequest{}

	if _, ok := values["smiles"]; !ok {
		errs.Add("smiles", "This field is required.")
	} else if req.Smiles = strings.TrimSpace(values.Get("smiles")); req.Smiles == "" {
		errs.Add("smiles", "This field may not be blank.")
	}

	req.Options = parseOptions(values, errs)
	req.Download = isTruthy(values.Get("download"))

	if len(errs) > 0 {
		return nil, errs
	}
	return req, nil
}

// ParsePost validates a multipart or urlencoded POST render request.
func ParsePost(r *http.Request) (*RenderRequest, FieldErrors) {
	if err := ParseForm(r); err != nil {
		return nil, FieldErrors{"detail": {"Form parse error - " + err.Error()}}
	}

	errs := FieldErrors{}
	req := &RenderRequest{
		Smiles: strings.TrimSpace(r.PostForm.Get("smiles")),
	}

	data, present, err := readMolfile(r)
	if err != nil {
		errs.Add("molfile", err.Error())
	}
	req.MolfileData = data
	req.HasMolfile = present

	req.Options = parseOptions(r.PostForm, errs)

	if len(errs) > 0 {
		return nil, errs
	}

	switch {
	case req.Smiles == "" && !req.HasMolfile:
		errs.Add(NonFieldErrors, "Either 'smiles' or 'molfile' must be provided.")
	case req.Smiles != "" && req.HasMolfile:
		errs.Add(NonFieldErrors, "Provide either 'smiles' or 'molfile', not both.")
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return req, nil
}

// ParseForm parses a multipart or urlencoded body. Repeat calls are no-ops.
func ParseForm(r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(maxFormMemory)
	}
	return r.ParseForm()
}

func readMolfile(r *http.Request) ([]byte, bool, error) {
	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File["molfile"]
	}

	if len(headers) == 0 {
		if r.PostForm.Get("molfile") != "" {
			return nil, false, errors.New("The submitted data was not a file. Check the encoding type on the form.")
		}
		return nil, false, nil
	}

	header := headers[0]
	if header.Size > MaxMolfileSize {
		return nil, false, fmt.Errorf("Ensure this file is at most %d bytes.", MaxMolfileSize)
	}

	file, err := header.Open()
	if err != nil {
		return nil, false, fmt.Errorf("Unable to read the submitted file: %v", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxMolfileSize+1))
	if err != nil {
		return nil, false, fmt.Errorf("Unable to read the submitted file: %v", err)
	}
	if len(data) > MaxMolfileSize {
		return nil, false, fmt.Errorf("Ensure this file is at most %d bytes.", MaxMolfileSize)
	}
	if len(data) == 0 {
		return nil, false, errors.New("The submitted file is empty.")
	}

	return data, true, nil
}

// parseOptions reads width/height/format, applying defaults for absent or
// empty values and recording any errors in errs.
func parseOptions(values url.Values, errs FieldErrors) render.Options {
	in := optionsInput{
		Width:  parseInt(values, "width", render.DefaultWidth, errs),
		Height: parseInt(values, "height", render.DefaultHeight, errs),
		Format: render.DefaultFormat,
	}

	if format := strings.TrimSpace(values.Get("format")); format != "" {
		in.Format = strings.ToLower(format)
	}

	errs.Merge(Struct(&in))

	return render.Options{Width: in.Width, Height: in.Height, Format: in.Format}
}

func parseInt(values url.Values, field string, def int, errs FieldErrors) int {
	raw := strings.TrimSpace(values.Get(field))
	if raw == "" {
		return def
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		errs.Add(field, "A valid integer is required.")
		return def
	}
	return n
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1":
		return true
	}
	return false
}
