package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/hotspot-location-service/internal/lifecycle"
	"github.com/kjstillabower/hotspot-location-service/internal/models"
	"github.com/kjstillabower/hotspot-location-service/internal/observability"
	"github.com/kjstillabower/hotspot-location-service/internal/service"
	"github.com/kjstillabower/hotspot-location-service/internal/traffic"
	"github.com/kjstillabower/hotspot-location-service/internal/validation"
)

// maxBodyBytes caps the /enrich request body.
const maxBodyBytes = 32 << 20

// Enricher is the pipeline behind POST /enrich.
type Enricher interface {
	Enrich(ctx context.Context, points []models.Point) ([]models.EnrichedPoint, service.Report, error)
}

// HealthConfig holds thresholds and dependency probes for the health handler.
type HealthConfig struct {
	DegradedWindow      time.Duration
	DegradedErrorPct    int
	DegradedMinRequests int
	// CachePing, when set, is called to check cache reachability.
	CachePing func(ctx context.Context) error
	// SpatialPing, when set, is called to check the spatial backend.
	SpatialPing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	enricher     Enricher
	tracker      *traffic.Tracker
	lifecycle    *lifecycle.Lifecycle
	healthConfig *HealthConfig
	maxPoints    int
	logger       *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. tracker, lc and healthConfig may be nil.
func NewHandler(
	enricher Enricher,
	tracker *traffic.Tracker,
	lc *lifecycle.Lifecycle,
	healthConfig *HealthConfig,
	maxPoints int,
	logger *zap.Logger,
) *Handler {
	if tracker == nil {
		tracker = traffic.NewTracker()
	}
	if lc == nil {
		lc = lifecycle.New()
	}
	return &Handler{
		enricher:     enricher,
		tracker:      tracker,
		lifecycle:    lc,
		healthConfig: healthConfig,
		maxPoints:    maxPoints,
		logger:       observability.LoggerOrNop(logger),
	}
}

type enrichMeta struct {
	Input     int `json:"input"`
	Output    int `json:"output"`
	Dropped   int `json:"dropped"`
	CacheHits int `json:"cacheHits"`
	Spatial   int `json:"spatial"`
	Remote    int `json:"remote"`
}

type enrichResponse struct {
	Data []models.EnrichedPoint `json:"data"`
	Meta enrichMeta             `json:"meta"`
}

// PostEnrich handles POST /enrich. The body is a JSON array of hotspot records.
func (h *Handler) PostEnrich(w http.ResponseWriter, r *http.Request) {
	points, ok := h.decodePoints(w, r)
	if !ok {
		return
	}

	enriched, report, err := h.enricher.Enrich(r.Context(), points)
	if err != nil {
		h.tracker.RecordError()
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.tracker.RecordSuccess()

	if enriched == nil {
		enriched = []models.EnrichedPoint{}
	}
	writeJSON(w, http.StatusOK, enrichResponse{
		Data: enriched,
		Meta: enrichMeta{
			Input:     report.Input,
			Output:    len(enriched),
			Dropped:   report.Dropped,
			CacheHits: report.CacheHits,
			Spatial:   report.Spatial,
			Remote:    report.Remote,
		},
	})
}

func (h *Handler) decodePoints(w http.ResponseWriter, r *http.Request) ([]models.Point, bool) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body too large")
			return nil, false
		}
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "body must be a JSON array of hotspot records")
		return nil, false
	}

	points := make([]models.Point, len(records))
	for i, rec := range records {
		p, err := models.PointFromRecord(rec)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_POINT", "record "+strconv.Itoa(i)+": "+err.Error())
			return nil, false
		}
		points[i] = p
	}

	if err := validation.ValidatePoints(points, h.maxPoints); err != nil {
		if errors.Is(err, validation.ErrTooManyPoints) {
			writeError(w, r, http.StatusBadRequest, "TOO_MANY_POINTS", err.Error())
			return nil, false
		}
		writeError(w, r, http.StatusBadRequest, "INVALID_POINT", err.Error())
		return nil, false
	}
	return points, true
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"enrichment": "healthy"}
	if result.status == "degraded" {
		checks["enrichment"] = "unhealthy"
	}
	if h.healthConfig != nil {
		probe(r.Context(), checks, "cache", h.healthConfig.CachePing)
		probe(r.Context(), checks, "spatial", h.healthConfig.SpatialPing)
	}

	writeJSON(w, result.statusCode, map[string]any{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func probe(ctx context.Context, checks map[string]string, name string, ping func(context.Context) error) {
	if ping == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if ping(ctx) == nil {
		checks[name] = "healthy"
	} else {
		checks[name] = "unhealthy"
	}
}

// computeHealthStatus evaluates shutting-down > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if h.lifecycle.ShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if cfg := h.healthConfig; cfg != nil && cfg.DegradedWindow > 0 && cfg.DegradedErrorPct > 0 {
		threshold := float64(cfg.DegradedErrorPct) / 100
		if h.tracker.Degraded(cfg.DegradedWindow, threshold, cfg.DegradedMinRequests) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope with the request's correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError maps an enrichment failure to 504 on deadline and 503 otherwise.
func writeServiceError(w http.ResponseWriter, r *http.Request, fallback *zap.Logger, err error) {
	logger := observability.LoggerFromContext(r.Context(), fallback)
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("enrichment timed out", zap.Error(err))
		writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "Enrichment did not finish in time")
		return
	}
	logger.Error("enrichment failed", zap.Error(err))
	writeError(w, r, http.StatusServiceUnavailable, "ENRICHMENT_UNAVAILABLE", "Unable to enrich hotspots")
}
