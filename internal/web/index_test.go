package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	IndexHandler("/api/v1/answer/").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `action="/api/v1/answer/"`)
	assert.Contains(t, body, `<option value="svg">svg</option>`)
	assert.Contains(t, body, `max="2000"`)
}
