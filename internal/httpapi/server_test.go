package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedRelay/internal/domain"
	"FeedRelay/internal/logging"
	"FeedRelay/internal/metrics"
	"FeedRelay/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRunner struct {
	pingErr   error
	ingestErr error
	sources   []domain.Source
}

func (s *stubRunner) RunIngestion(context.Context) (domain.RunStats, error) {
	return domain.RunStats{RunID: "r1", Saved: 2, Existing: 1}, s.ingestErr
}

func (s *stubRunner) RunPublish(context.Context) (domain.PublishStats, error) {
	return domain.PublishStats{Disabled: true}, nil
}

func (s *stubRunner) RunHealthCheck(context.Context) (domain.HealthReport, error) {
	return domain.HealthReport{Healthy: 3, Tripped: []string{"x"}}, nil
}

func (s *stubRunner) RunRetentionSweep(context.Context) (domain.SweepReport, error) {
	return domain.SweepReport{Deleted: 7}, nil
}

func (s *stubRunner) ListSources(context.Context) ([]domain.Source, error) {
	return s.sources, nil
}

func (s *stubRunner) EnableSource(_ context.Context, id string) (domain.Source, error) {
	for _, src := range s.sources {
		if src.ID == id {
			src.Active = true
			return src, nil
		}
	}
	return domain.Source{}, fmt.Errorf("%w: %s", usecase.ErrUnknownSource, id)
}

func (s *stubRunner) Ping(context.Context) error {
	return s.pingErr
}

func newTestServer(runner Runner) (*Server, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Item("accepted")
	return NewServer(runner, reg, logging.Discard()), reg
}

func do(t *testing.T, s *Server, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.Handler().ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(&stubRunner{})
	rec, body := do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	s, _ = newTestServer(&stubRunner{pingErr: errors.New("db down")})
	rec, body = do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "db down", body["error"])
}

func TestRunEndpoints(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(&stubRunner{})

	rec, body := do(t, s, http.MethodPost, "/runs/ingest")
	require.Equal(t, http.StatusOK, rec.Code)
	result := body["result"].(map[string]any)
	assert.EqualValues(t, 2, result["saved"])
	assert.EqualValues(t, 1, result["existing"])

	rec, body = do(t, s, http.MethodPost, "/runs/publish")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["result"].(map[string]any)["disabled"])

	rec, body = do(t, s, http.MethodPost, "/runs/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, body["result"].(map[string]any)["healthy"])

	rec, body = do(t, s, http.MethodPost, "/runs/sweep")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 7, body["result"].(map[string]any)["deleted_count"])

	rec, _ = do(t, s, http.MethodGet, "/runs/ingest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunFatalErrorStillReturnsResult(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(&stubRunner{ingestErr: errors.New("store unavailable")})
	rec, body := do(t, s, http.MethodPost, "/runs/ingest")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "store unavailable", body["error"])
	assert.Equal(t, "r1", body["result"].(map[string]any)["run_id"])
}

func TestSourcesEndpoints(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{sources: []domain.Source{
		{ID: "a", Name: "A", FeedURL: "https://a/rss", Niche: "saude", Active: false, ConsecutiveFailures: 3, LastError: "503"},
	}}
	s, _ := newTestServer(runner)

	rec, body := do(t, s, http.MethodGet, "/sources")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])
	first := body["sources"].([]any)[0].(map[string]any)
	assert.Equal(t, "a", first["id"])
	assert.EqualValues(t, 3, first["consecutive_failures"])

	rec, body = do(t, s, http.MethodPost, "/sources/a/enable")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["active"])

	rec, _ = do(t, s, http.MethodPost, "/sources/missing/enable")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(&stubRunner{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `feedrelay_items_total{outcome="accepted"} 1`)
}
