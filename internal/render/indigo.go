package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/HanTheDev/chem-render-api/internal/logging"
	"github.com/sony/gobreaker/v2"
)

const (
	indigoRenderPath = "/v2/indigo/render"
	maxImageSize     = 32 << 20
)

// IndigoClient talks to an Indigo service over HTTP. It holds no
// per-request state; the http.Client and breaker are safe to share.
type IndigoClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

type indigoRenderRequest struct {
	Struct       string                 `json:"struct"`
	OutputFormat string                 `json:"output_format"`
	Options      map[string]interface{} `json:"options"`
}

type indigoErrorResponse struct {
	Error string `json:"error"`
}

func NewIndigoClient(baseURL string, timeout time.Duration) *IndigoClient {
	settings := gobreaker.Settings{
		Name:        "indigo",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A rejected molecule or a caller that gave up says nothing about the
		// service's health.
		IsSuccessful: func(err error) bool {
			var structErr *StructureError
			var abortErr *callerAbortError
			return err == nil || errors.As(err, &structErr) || errors.As(err, &abortErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}

	return &IndigoClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

// callerAbortError marks a failure caused by the caller's own context ending.
type callerAbortError struct {
	err error
}

func (e *callerAbortError) Error() string { return e.err.Error() }
func (e *callerAbortError) Unwrap() error { return e.err }

func (c *IndigoClient) Render(ctx context.Context, job Job) ([]byte, error) {
	data, err := c.breaker.Execute(func() ([]byte, error) {
		data, err := c.render(ctx, job)
		if err != nil && ctx.Err() != nil {
			return nil, &callerAbortError{err: err}
		}
		return data, err
	})

	var abortErr *callerAbortError
	if errors.As(err, &abortErr) {
		return nil, abortErr.err
	}
	return data, err
}

func (c *IndigoClient) render(ctx context.Context, job Job) ([]byte, error) {
	body, err := json.Marshal(indigoRenderRequest{
		Struct:       job.Structure,
		OutputFormat: ContentType(job.Format),
		Options: map[string]interface{}{
			"render-output-format": job.Format,
			"render-image-width":   job.Width,
			"render-image-height":  job.Height,
			"render-coloring":      job.Coloring,
			"render-margins":       fmt.Sprintf("%d, %d", job.MarginX, job.MarginY),
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+indigoRenderPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", ContentType(job.Format))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indigo request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read indigo response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return data, nil
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, &StructureError{Message: indigoErrorMessage(data, resp.Status)}
	default:
		return nil, fmt.Errorf("indigo service returned %s: %s", resp.Status, indigoErrorMessage(data, ""))
	}
}

func indigoErrorMessage(body []byte, fallback string) string {
	var errResp indigoErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fallback
}
