package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/adapter"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/store"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fakeEngine struct {
	probeKind models.ProbeKind
	probeErr  error
	allKind   models.ProbeKind
	panicAll  bool
}

func (f *fakeEngine) RunProbeAll(_ context.Context, kind models.ProbeKind) (*models.AggregateReport, error) {
	if f.panicAll {
		panic("boom")
	}
	f.allKind = kind
	return &models.AggregateReport{RunID: "run-1", Kind: models.RunKind(kind), SucceededCount: 2}, nil
}

func (f *fakeEngine) RunHealthAll(context.Context) (*models.AggregateReport, error) {
	return &models.AggregateReport{RunID: "run-2", Kind: models.RunHealth}, nil
}

func (f *fakeEngine) ProbeOne(_ context.Context, id string, kind models.ProbeKind) (*models.ProbeResult, error) {
	f.probeKind = kind
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	return &models.ProbeResult{EndpointID: id, Kind: kind, Succeeded: true}, nil
}

func (f *fakeEngine) EvaluateOne(_ context.Context, id string) (*models.HealthReport, error) {
	return nil, models.ErrNotFound
}

type fakeHistory struct {
	window time.Duration
	err    error
}

func (f *fakeHistory) QueryRecent(_ context.Context, id string, window time.Duration) ([]models.Record, error) {
	f.window = window
	return nil, f.err
}

func (f *fakeHistory) QueryTrend(_ context.Context, id string, metric models.TrendMetric, window time.Duration) ([]models.TrendPoint, error) {
	f.window = window
	return []models.TrendPoint{{Timestamp: time.Unix(0, 0).UTC(), Value: 4.2}}, f.err
}

type harness struct {
	server  *Server
	engine  *fakeEngine
	history *fakeHistory
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cipher, err := vault.NewCipher("test-encryption-key")
	require.NoError(t, err)
	hasher, err := vault.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	v := vault.New(store.NewMemoryCredentialStore(), cipher, hasher, adapter.NewSSLPolicy(adapter.DefaultLocalAliases), zap.NewNop())

	h := &harness{engine: &fakeEngine{}, history: &fakeHistory{}}
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("prober_probes_total 0\n"))
	})
	h.server = NewServer("0", v, h.engine, h.history, metricsHandler, zap.NewNop())
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	h.server.Router().ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func validSpec() models.EndpointSpec {
	return models.EndpointSpec{
		Name:         "orders-primary",
		Host:         "db.example.com",
		Port:         5432,
		DatabaseName: "orders",
		Username:     "svc_orders",
		Credential:   "hunter2",
		Region:       "eu-west-1",
	}
}

func TestEndpointLifecycle(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/endpoints", validSpec())
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var created models.Endpoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	assert.True(t, created.IsActive)

	rec = h.do(t, http.MethodGet, "/api/endpoints/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	spec := validSpec()
	spec.Credential = ""
	spec.Port = 6432
	rec = h.do(t, http.MethodPut, "/api/endpoints/"+created.ID, spec)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.Endpoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, 6432, updated.Port)

	rec = h.do(t, http.MethodGet, "/api/endpoints?region=eu-west-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []models.Endpoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)

	rec = h.do(t, http.MethodDelete, "/api/endpoints/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/endpoints/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateEndpoint_ValidationNamesField(t *testing.T) {
	h := newHarness(t)

	spec := validSpec()
	spec.Port = 70000
	rec := h.do(t, http.MethodPost, "/api/endpoints", spec)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "port", resp.Field)
}

func TestCreateEndpoint_RejectsUnknownFields(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/endpoints", map[string]any{"name": "x", "password": "leak"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProbeRoutes(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/endpoints/abc/probe/latency", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ProbeLatency, h.engine.probeKind)

	rec = h.do(t, http.MethodPost, "/api/endpoints/abc/probe/ping", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/probe-all/load", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ProbeLoad, h.engine.allKind)

	var report models.AggregateReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 2, report.SucceededCount)

	rec = h.do(t, http.MethodPost, "/api/health-all", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/endpoints/abc/health", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", models.ErrNotFound, http.StatusNotFound},
		{"storage", models.NewStorageError("select", errors.New("connection reset")), http.StatusServiceUnavailable},
		{"other", errors.New("surprise"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.engine.probeErr = tt.err

			rec := h.do(t, http.MethodPost, "/api/endpoints/abc/probe/connectivity", nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.NotContains(t, rec.Body.String(), "connection reset")
		})
	}
}

func TestHistoryRoutes(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/endpoints/abc/recent", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultWindow, h.history.window)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/endpoints/abc/recent?window=15m", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 15*time.Minute, h.history.window)

	rec = h.do(t, http.MethodGet, "/api/endpoints/abc/recent?window=-1h", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/endpoints/abc/trend/latency_ms?window=24h", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var points []models.TrendPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	require.Len(t, points, 1)
	assert.Equal(t, 4.2, points[0].Value)

	rec = h.do(t, http.MethodGet, "/api/endpoints/abc/trend/bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouterFallbacks(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/nope", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, h.do(t, http.MethodPatch, "/api/endpoints", nil).Code)

	rec := h.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "prober_probes_total")
}

func TestRecoveryMiddleware(t *testing.T) {
	h := newHarness(t)
	h.engine.panicAll = true

	rec := h.do(t, http.MethodPost, "/api/probe-all/connectivity", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
