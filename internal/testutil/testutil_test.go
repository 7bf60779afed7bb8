package testutil

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTestRequest(t *testing.T) {
	req := NewTestRequest(http.MethodPost, "/api/stats")
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/stats", req.URL.Path)
}

func TestNewTestRecorder(t *testing.T) {
	w := NewTestRecorder()
	AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Zero(t, w.Body.Len())
}

func TestTempFileRoundTrip(t *testing.T) {
	path := WriteTempFile(t, "tracker.json", `{"filter_type":"ivt"}`)
	assert.Equal(t, `{"filter_type":"ivt"}`, ReadFile(t, path))
}
