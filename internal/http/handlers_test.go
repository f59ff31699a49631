package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/hotspot-location-service/internal/lifecycle"
	"github.com/kjstillabower/hotspot-location-service/internal/models"
	"github.com/kjstillabower/hotspot-location-service/internal/service"
	"github.com/kjstillabower/hotspot-location-service/internal/traffic"
)

// fakeEnricher resolves every point to the same location unless err is set.
type fakeEnricher struct {
	loc   models.Location
	err   error
	calls atomic.Int32
	got   []models.Point
}

func (f *fakeEnricher) Enrich(ctx context.Context, points []models.Point) ([]models.EnrichedPoint, service.Report, error) {
	f.calls.Add(1)
	f.got = points
	report := service.Report{Input: len(points)}
	if f.err != nil {
		return nil, report, f.err
	}
	if len(points) == 0 {
		return nil, report, nil
	}
	out := make([]models.EnrichedPoint, len(points))
	for i, p := range points {
		loc := f.loc
		out[i] = models.EnrichedPoint{Point: p, Location: &loc}
	}
	report.Remote = len(points)
	return out, report, nil
}

type enrichBody struct {
	Data []map[string]any `json:"data"`
	Meta enrichMeta       `json:"meta"`
}

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func postEnrich(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/enrich", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.PostEnrich(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestPostEnrich_Success(t *testing.T) {
	enricher := &fakeEnricher{loc: models.Location{City: "Cuiabá", State: "Mato Grosso"}}
	tracker := traffic.NewTracker()
	h := NewHandler(enricher, tracker, nil, nil, 0, zap.NewNop())

	w := postEnrich(t, h, `[
		{"latitude": -15.6, "longitude": -56.1, "satelite": "AQUA_M-T", "frp": 12.5},
		{"latitude": "-15.61", "longitude": "-56.09", "satelite": "NOAA-20"}
	]`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	var body enrichBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 2 {
		t.Fatalf("data len = %d, want 2", len(body.Data))
	}
	if body.Data[0]["satelite"] != "AQUA_M-T" {
		t.Errorf("payload field satelite = %v, want AQUA_M-T", body.Data[0]["satelite"])
	}
	if body.Data[0]["frp"] != 12.5 {
		t.Errorf("payload field frp = %v, want 12.5", body.Data[0]["frp"])
	}
	loc, ok := body.Data[0][models.LocationField].(map[string]any)
	if !ok || loc["cidade"] != "Cuiabá" {
		t.Errorf("localizacao = %v, want cidade Cuiabá", body.Data[0][models.LocationField])
	}
	if body.Meta.Input != 2 || body.Meta.Output != 2 || body.Meta.Dropped != 0 {
		t.Errorf("meta = %+v, want input 2 output 2 dropped 0", body.Meta)
	}
	if enricher.got[1].Latitude != -15.61 {
		t.Errorf("string latitude decoded as %v, want -15.61", enricher.got[1].Latitude)
	}
	if s := tracker.Window(time.Minute); s.Successes != 1 || s.Errors != 0 {
		t.Errorf("tracker = %+v, want one success", s)
	}
}

func TestPostEnrich_EmptyArray(t *testing.T) {
	h := NewHandler(&fakeEnricher{}, nil, nil, nil, 0, zap.NewNop())
	w := postEnrich(t, h, `[]`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"data":[]`) {
		t.Errorf("body = %s, want empty data array", w.Body.String())
	}
}

func TestPostEnrich_BadRequests(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		maxPts   int
		wantCode string
	}{
		{"not json", `hotspots`, 0, "INVALID_BODY"},
		{"object instead of array", `{"latitude": 1, "longitude": 2}`, 0, "INVALID_BODY"},
		{"missing longitude", `[{"latitude": -15.6}]`, 0, "INVALID_POINT"},
		{"non numeric latitude", `[{"latitude": "north", "longitude": -56.1}]`, 0, "INVALID_POINT"},
		{"latitude out of range", `[{"latitude": 95, "longitude": -56.1}]`, 0, "INVALID_POINT"},
		{"longitude out of range", `[{"latitude": -15.6, "longitude": -190}]`, 0, "INVALID_POINT"},
		{"too many points", `[{"latitude": 1, "longitude": 1}, {"latitude": 2, "longitude": 2}]`, 1, "TOO_MANY_POINTS"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			enricher := &fakeEnricher{}
			h := NewHandler(enricher, nil, nil, nil, tc.maxPts, zap.NewNop())
			w := postEnrich(t, h, tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if got := decodeError(t, w).Error.Code; got != tc.wantCode {
				t.Errorf("error code = %q, want %q", got, tc.wantCode)
			}
			if enricher.calls.Load() != 0 {
				t.Error("enricher called for an invalid request")
			}
		})
	}
}

func TestPostEnrich_CollaboratorFailure(t *testing.T) {
	tracker := traffic.NewTracker()
	h := NewHandler(&fakeEnricher{err: errors.New("cache unavailable")}, tracker, nil, nil, 0, zap.NewNop())

	w := postEnrich(t, h, `[{"latitude": -15.6, "longitude": -56.1}]`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if got := decodeError(t, w).Error.Code; got != "ENRICHMENT_UNAVAILABLE" {
		t.Errorf("error code = %q, want ENRICHMENT_UNAVAILABLE", got)
	}
	if s := tracker.Window(time.Minute); s.Errors != 1 {
		t.Errorf("tracker errors = %d, want 1", s.Errors)
	}
}

func TestPostEnrich_DeadlineExceeded(t *testing.T) {
	h := NewHandler(&fakeEnricher{err: context.DeadlineExceeded}, nil, nil, nil, 0, zap.NewNop())
	w := postEnrich(t, h, `[{"latitude": -15.6, "longitude": -56.1}]`)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", w.Code)
	}
	if got := decodeError(t, w).Error.Code; got != "TIMEOUT" {
		t.Errorf("error code = %q, want TIMEOUT", got)
	}
}

func getHealth(t *testing.T, h *Handler) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	h.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	return w.Code, body
}

func TestGetHealth_Healthy(t *testing.T) {
	h := NewHandler(&fakeEnricher{}, nil, nil, nil, 0, zap.NewNop())
	code, body := getHealth(t, h)
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("health = %d %v, want 200 healthy", code, body["status"])
	}
	if body["service"] != "hotspot-location-service" {
		t.Errorf("service = %v", body["service"])
	}
}

func TestGetHealth_ShuttingDownWinsOverDegraded(t *testing.T) {
	tracker := traffic.NewTracker()
	for i := 0; i < 5; i++ {
		tracker.RecordError()
	}
	lc := lifecycle.New()
	cfg := &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50, DegradedMinRequests: 1}
	h := NewHandler(&fakeEnricher{}, tracker, lc, cfg, 0, zap.NewNop())

	code, body := getHealth(t, h)
	if code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Errorf("health = %d %v, want 503 degraded", code, body["status"])
	}

	lc.BeginShutdown()
	code, body = getHealth(t, h)
	if code != http.StatusServiceUnavailable || body["status"] != "shutting-down" {
		t.Errorf("health = %d %v, want 503 shutting-down", code, body["status"])
	}
}

func TestGetHealth_DegradedNeedsMinimumVolume(t *testing.T) {
	tracker := traffic.NewTracker()
	tracker.RecordError()
	cfg := &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50, DegradedMinRequests: 3}
	h := NewHandler(&fakeEnricher{}, tracker, nil, cfg, 0, zap.NewNop())

	if _, body := getHealth(t, h); body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy below minimum volume", body["status"])
	}
}

func TestGetHealth_DependencyChecks(t *testing.T) {
	cfg := &HealthConfig{
		CachePing:   func(context.Context) error { return errors.New("connection refused") },
		SpatialPing: func(context.Context) error { return nil },
	}
	h := NewHandler(&fakeEnricher{}, nil, nil, cfg, 0, zap.NewNop())

	_, body := getHealth(t, h)
	checks, ok := body["checks"].(map[string]any)
	if !ok {
		t.Fatalf("checks = %v", body["checks"])
	}
	if checks["cache"] != "unhealthy" {
		t.Errorf("cache check = %v, want unhealthy", checks["cache"])
	}
	if checks["spatial"] != "healthy" {
		t.Errorf("spatial check = %v, want healthy", checks["spatial"])
	}
	if checks["enrichment"] != "healthy" {
		t.Errorf("enrichment check = %v, want healthy", checks["enrichment"])
	}
}

func TestGetHealth_LogsTransition(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	lc := lifecycle.New()
	h := NewHandler(&fakeEnricher{}, nil, lc, nil, 0, zap.New(core))

	getHealth(t, h)
	lc.BeginShutdown()
	getHealth(t, h)

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("transition logs = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["previous_status"] != "healthy" || fields["current_status"] != "shutting-down" {
		t.Errorf("transition fields = %v", fields)
	}
}
