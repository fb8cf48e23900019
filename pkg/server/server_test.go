package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"standings/pkg/logger"
)

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s := New(":0", logger.Nop())
	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestReadyWithoutChecks(t *testing.T) {
	s := New(":0", logger.Nop())
	assert.Equal(t, http.StatusOK, get(t, s, "/ready").Code)
}

func TestReadyReportsFailingCheck(t *testing.T) {
	s := New(":0", logger.Nop())
	s.AddCheck("mongodb", func(context.Context) error { return nil })
	s.AddCheck("redis", func(context.Context) error { return errors.New("dial tcp: connection refused") })

	rec := get(t, s, "/ready")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "ok", report["mongodb"])
	assert.Contains(t, report["redis"], "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(":0", logger.Nop())
	rec := get(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
