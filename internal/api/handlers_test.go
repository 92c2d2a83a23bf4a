package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"chamber-monitor/internal/config"
	"chamber-monitor/internal/logging"
	"chamber-monitor/internal/models"
	"chamber-monitor/internal/store"
	"chamber-monitor/internal/tb"
)

type stubGateway struct {
	reading models.Reading
	samples []models.Sample
	err     error
}

func (g *stubGateway) Latest(ctx context.Context) (models.Reading, error) {
	return g.reading, g.err
}

func (g *stubGateway) History(ctx context.Context, window time.Duration, maxPoints int) ([]models.Sample, error) {
	return g.samples, g.err
}

func testCfg() config.Config {
	var cfg config.Config
	cfg.API.BasePath = "/api/tb"
	cfg.Poll.LatestInterval = 5 * time.Second
	cfg.Poll.HistoryInterval = 15 * time.Second
	cfg.Poll.HistoryWindow = 24 * time.Hour
	cfg.Poll.HistoryMaxPts = 1000
	return cfg
}

func newTestRouter(gw store.Gateway, gwErr error) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logging.Discard()
	cfg := testCfg()
	var st *store.Store
	if gwErr == nil {
		st = store.New(gw, logger, cfg)
	}
	h := NewHandler(st, gwErr, logger, cfg, NewWSManager(logger))
	return NewRouter(h, logger, cfg)
}

func doGet(t *testing.T, r *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestLatestMissingConfigReturns500(t *testing.T) {
	// No TB_* settings at all: the handler must name every missing var.
	_, gwErr := tb.New(config.ThingsBoard{})
	r := newTestRouter(nil, gwErr)

	w := doGet(t, r, "/api/tb/latest")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if body.Error == "" {
		t.Fatal("error field missing")
	}
	for _, name := range []string{"TB_URL", "TB_USERNAME", "TB_PASSWORD", "TB_DEVICE_ID"} {
		if !strings.Contains(body.Details, name) {
			t.Fatalf("details %q does not name %s", body.Details, name)
		}
	}
}

func TestLatestServesReading(t *testing.T) {
	temp, hum := 25.5, 81.0
	ts := time.Now().UnixMilli()
	gw := &stubGateway{reading: models.Reading{Temperature: &temp, Humidity: &hum, TS: &ts}}
	r := newTestRouter(gw, nil)

	w := doGet(t, r, "/api/tb/latest")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Temperature *float64 `json:"temperature"`
		Humidity    *float64 `json:"humidity"`
		TS          *int64   `json:"ts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.Temperature == nil || *body.Temperature != 25.5 {
		t.Fatalf("temperature: got %v", body.Temperature)
	}
	if body.Humidity == nil || *body.Humidity != 81.0 {
		t.Fatalf("humidity: got %v", body.Humidity)
	}
	if body.TS == nil || *body.TS != ts {
		t.Fatalf("ts: got %v", body.TS)
	}
}

func TestLatestUpstreamFailureReturns500(t *testing.T) {
	gw := &stubGateway{err: errUpstream}
	r := newTestRouter(gw, nil)

	w := doGet(t, r, "/api/tb/latest")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "upstream") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

var errUpstream = &upstreamErr{}

type upstreamErr struct{}

func (e *upstreamErr) Error() string { return "tb request: upstream unavailable" }

func TestHistoryServesSamples(t *testing.T) {
	temp, hum := 25.0, 80.0
	gw := &stubGateway{samples: []models.Sample{
		{TS: 100, Temperature: &temp, Humidity: &hum},
		{TS: 200, Humidity: &hum},
	}}
	r := newTestRouter(gw, nil)

	w := doGet(t, r, "/api/tb/history")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body []struct {
		TS          int64    `json:"ts"`
		Temperature *float64 `json:"temperature"`
		Humidity    *float64 `json:"humidity"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(body) != 2 || body[0].TS != 100 || body[1].Temperature != nil {
		t.Fatalf("unexpected history body: %s", w.Body.String())
	}
}

func TestStatusEndpoint(t *testing.T) {
	temp, hum := 25.0, 80.0
	ts := time.Now().UnixMilli()
	gw := &stubGateway{reading: models.Reading{Temperature: &temp, Humidity: &hum, TS: &ts}}
	r := newTestRouter(gw, nil)

	// Populate the store through the on-demand path first.
	doGet(t, r, "/api/tb/latest")

	w := doGet(t, r, "/api/tb/status")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), string(models.StatusOnline)) {
		t.Fatalf("expected ONLINE status, got %s", w.Body.String())
	}
}

func TestAlertsEndpointEmptyList(t *testing.T) {
	temp, hum := 25.0, 80.0
	ts := time.Now().UnixMilli()
	gw := &stubGateway{reading: models.Reading{Temperature: &temp, Humidity: &hum, TS: &ts}}
	r := newTestRouter(gw, nil)
	doGet(t, r, "/api/tb/latest")

	w := doGet(t, r, "/api/tb/alerts")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %s", w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&stubGateway{}, nil)
	w := doGet(t, r, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	r := newTestRouter(&stubGateway{}, nil)
	w := doGet(t, r, "/health")
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("X-Request-ID header not set")
	}
}
