package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDashboard(t *testing.T) {
	rec := httptest.NewRecorder()
	Dashboard("1.2.3", "/live")(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))

	body := rec.Body.String()
	assert.Contains(t, body, "v1.2.3")
	assert.Regexp(t, `var wsPath = "\\?/live";`, body)
}
