package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStatuses struct {
	statuses []SleeveStatus
	err      error
}

func (s *stubStatuses) Statuses(ctx context.Context) ([]SleeveStatus, error) {
	return s.statuses, s.err
}

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping(ctx context.Context) error { return s.err }

func serve(t *testing.T, deps Deps, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	s := NewServer(":0", deps)
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthReportsOK(t *testing.T) {
	rec := serve(t, Deps{
		Journal:      &stubPinger{},
		BreakerState: func() string { return "closed" },
	}, http.MethodGet, "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "ok", resp.Checks["journal"])
	assert.Equal(t, "closed", resp.Checks["feed_breaker"])
}

func TestHealthDegradesOnDeadJournal(t *testing.T) {
	rec := serve(t, Deps{
		Journal: &stubPinger{err: errors.New("connection refused")},
	}, http.MethodGet, "/health")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Contains(t, resp.Checks["journal"], "unreachable")
}

func TestStatusReturnsSleeves(t *testing.T) {
	rec := serve(t, Deps{
		Statuses: &stubStatuses{statuses: []SleeveStatus{{
			Sleeve:         "sleeve-a",
			Level:          2,
			LevelName:      "L2_RECOVERY",
			CadenceSeconds: 10,
			LastTransition: time.Date(2026, 3, 6, 15, 0, 0, 0, time.UTC),
		}}},
		BreakerState: func() string { return "closed" },
	}, http.MethodGet, "/status")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sleeves, 1)
	assert.Equal(t, "L2_RECOVERY", resp.Sleeves[0].LevelName)
	assert.Equal(t, "closed", resp.FeedBreaker)
}

func TestStatusErrorsPropagate(t *testing.T) {
	rec := serve(t, Deps{
		Statuses: &stubStatuses{err: errors.New("actor stopped")},
	}, http.MethodGet, "/status")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "constitution_test_total"})
	reg.MustRegister(c)
	c.Inc()

	rec := serve(t, Deps{Gatherer: reg}, http.MethodGet, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "constitution_test_total 1")
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	rec := serve(t, Deps{}, http.MethodGet, "/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
}
