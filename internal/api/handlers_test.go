package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/kenneth/solar-entropy-pool/internal/audit"
	"github.com/kenneth/solar-entropy-pool/internal/metrics"
	"github.com/kenneth/solar-entropy-pool/internal/pool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, *pool.EntropyPool) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := pool.NewRedisStore(client)
	p := pool.New(store, time.Hour, 100)

	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil))

	h := NewHandler(p, logger, metrics.NewMetricsWithRegistry(prometheus.NewRegistry()), audit.NewLogger(100, nil), 256, 10240)
	return h, p
}

func newTestRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestHandleRandomReturnsExactBytes(t *testing.T) {
	h, p := newTestHandler(t)
	require.NoError(t, p.Add(context.Background(), bytes.Repeat([]byte{0xAB}, 64), 0.9, "test"))

	req := httptest.NewRequest(http.MethodGet, "/random/32", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp randomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 32, resp.Length)
	require.Equal(t, "base64", resp.Format)

	decoded, err := base64.StdEncoding.DecodeString(resp.Bytes)
	require.NoError(t, err)
	require.Len(t, decoded, 32)
}

func TestHandleRandomRejectsOutOfRangeN(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/random/0", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/random/999999", nil)
	rec = httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRandomReturns503WhenPoolEmpty(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/random/32", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleRandomDefaultUsesConfiguredSize(t *testing.T) {
	h, p := newTestHandler(t)
	require.NoError(t, p.Add(context.Background(), bytes.Repeat([]byte{0x01}, 512), 0.9, "test"))

	req := httptest.NewRequest(http.MethodGet, "/random", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp randomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 256, resp.Length)
}

func TestHandleStatsReportsDisconnectedOnStoreFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := pool.NewRedisStore(client)
	p := pool.New(store, time.Hour, 100)

	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil))
	h := NewHandler(p, logger, metrics.NewMetricsWithRegistry(prometheus.NewRegistry()), audit.NewLogger(100, nil), 256, 10240)

	mr.Close()

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "disconnected", body["status"])
}

func TestHandleHealthReportsHealthyWithBlocks(t *testing.T) {
	h, p := newTestHandler(t)
	require.NoError(t, p.Add(context.Background(), bytes.Repeat([]byte{0x02}, 16), 0.9, "test"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "healthy", body["status"])
}

func TestHandleLiveAndReady(t *testing.T) {
	h, _ := newTestHandler(t)

	for _, path := range []string{"/live", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		newTestRouter(h).ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}
