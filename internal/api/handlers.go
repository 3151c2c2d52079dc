// Package api exposes the entropy pool over HTTP: a thin translator that
// maps Take/Stats/Health calls onto JSON responses.
package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/kenneth/solar-entropy-pool/internal/audit"
	"github.com/kenneth/solar-entropy-pool/internal/metrics"
	"github.com/kenneth/solar-entropy-pool/internal/pool"
	"github.com/sirupsen/logrus"
)

// Handler serves the pool's consumer-facing HTTP API.
type Handler struct {
	pool               *pool.EntropyPool
	logger             *logrus.Logger
	metrics            *metrics.Metrics
	audit              audit.Logger
	defaultRandomBytes int
	maxBytesPerRequest int
}

// NewHandler creates an API handler.
func NewHandler(p *pool.EntropyPool, logger *logrus.Logger, m *metrics.Metrics, auditLogger audit.Logger, defaultRandomBytes, maxBytesPerRequest int) *Handler {
	if defaultRandomBytes <= 0 {
		defaultRandomBytes = 256
	}
	if maxBytesPerRequest <= 0 {
		maxBytesPerRequest = 10240
	}
	return &Handler{
		pool:               p,
		logger:             logger,
		metrics:            m,
		audit:              auditLogger,
		defaultRandomBytes: defaultRandomBytes,
		maxBytesPerRequest: maxBytesPerRequest,
	}
}

// RegisterRoutes registers all API routes under r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/ready", h.handleReady).Methods("GET")
	r.HandleFunc("/live", h.handleLive).Methods("GET")

	r.HandleFunc("/random", h.handleRandomDefault).Methods("GET")
	r.HandleFunc("/random/{n}", h.handleRandom).Methods("GET")
	r.HandleFunc("/stats", h.handleStats).Methods("GET")
}

type randomResponse struct {
	Bytes  string `json:"bytes"`
	Length int    `json:"length"`
	Format string `json:"format"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleRandomDefault(w http.ResponseWriter, r *http.Request) {
	h.serveRandom(w, r, h.defaultRandomBytes)
}

func (h *Handler) handleRandom(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	n, err := strconv.Atoi(vars["n"])
	if err != nil || n < 1 || n > h.maxBytesPerRequest {
		start := time.Now()
		writeJSONError(w, http.StatusBadRequest, "n must be between 1 and "+strconv.Itoa(h.maxBytesPerRequest))
		h.metrics.RecordHTTPRequest(r.Context(), "GET", r.URL.Path, http.StatusBadRequest, time.Since(start), 0)
		return
	}
	h.serveRandom(w, r, n)
}

func (h *Handler) serveRandom(w http.ResponseWriter, r *http.Request, n int) {
	start := time.Now()
	ctx := r.Context()

	data, err := h.pool.Take(ctx, n)
	duration := time.Since(start)
	clientIP := r.RemoteAddr
	requestID := r.Header.Get("X-Request-ID")

	if err != nil {
		status := http.StatusServiceUnavailable
		h.logger.WithError(err).WithField("n", n).Warn("take failed")
		h.metrics.RecordPoolError("take", poolErrorKind(err))
		h.audit.LogTake(0, clientIP, requestID, false, err, duration)
		writeJSONError(w, status, "entropy unavailable")
		h.metrics.RecordHTTPRequest(ctx, "GET", r.URL.Path, status, duration, 0)
		return
	}

	h.metrics.RecordPoolTake(ctx, "api", len(data))
	h.audit.LogTake(len(data), clientIP, requestID, true, nil, duration)

	resp := randomResponse{
		Bytes:  base64.StdEncoding.EncodeToString(data),
		Length: len(data),
		Format: "base64",
	}
	writeJSON(w, http.StatusOK, resp)
	h.metrics.RecordHTTPRequest(ctx, "GET", r.URL.Path, http.StatusOK, duration, int64(len(data)))
}

func poolErrorKind(err error) string {
	switch {
	case errors.Is(err, pool.ErrPoolEmpty):
		return "pool_empty"
	case errors.Is(err, pool.ErrPartialPool):
		return "partial_pool"
	case errors.Is(err, pool.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "unknown"
	}
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	stats, err := h.pool.Stats(r.Context())
	if err != nil {
		h.logger.WithError(err).Warn("stats unavailable")
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "disconnected"})
		h.metrics.RecordHTTPRequest(r.Context(), "GET", r.URL.Path, http.StatusOK, time.Since(start), 0)
		return
	}
	writeJSON(w, http.StatusOK, stats)
	h.metrics.RecordHTTPRequest(r.Context(), "GET", r.URL.Path, http.StatusOK, time.Since(start), 0)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.pool.Health(r.Context()); err != nil {
		status = "degraded"
	} else if stats, err := h.pool.Stats(r.Context()); err != nil || stats.AvailableBlocks == 0 {
		status = "degraded"
	}

	writeJSON(w, httpStatus, map[string]interface{}{"status": status})
	h.metrics.RecordHTTPRequest(r.Context(), "GET", r.URL.Path, httpStatus, time.Since(start), 0)
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	handler := metrics.ReadinessHandler(h.pool.Health)
	handler(w, r)
	h.metrics.RecordHTTPRequest(r.Context(), "GET", r.URL.Path, http.StatusOK, time.Since(start), 0)
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	handler := metrics.LivenessHandler()
	handler(w, r)
	h.metrics.RecordHTTPRequest(r.Context(), "GET", r.URL.Path, http.StatusOK, time.Since(start), 0)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
