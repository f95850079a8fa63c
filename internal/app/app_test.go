package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/flexalign/internal/app"
	"github.com/MrWong99/flexalign/internal/config"
	"github.com/MrWong99/flexalign/internal/health"
	"github.com/MrWong99/flexalign/internal/observe"
	"github.com/MrWong99/flexalign/internal/store"
)

// testConfig returns a config with one recording aligned without windows.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"ref.txt":  "ref1 the cat sat\nref2 on the mat\n",
		"segments": "rec_s1 rec 0 2\nrec_s2 rec 2 4\n",
		"text":     "rec_s1 the cat sat\nrec_s2 on teh mat\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.Default()
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.Recordings = []config.RecordingConfig{{
		ID:        "rec",
		Reference: filepath.Join(dir, "ref.txt"),
		Segments:  filepath.Join(dir, "segments"),
		Text:      filepath.Join(dir, "text"),
	}}
	return &cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func testMetricsReader(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func TestNew_DefaultsToMemStore(t *testing.T) {
	t.Parallel()

	application, err := app.New(context.Background(), testConfig(t), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if application == nil {
		t.Fatal("New() returned nil app")
	}
	if application.RunID() == "" {
		t.Error("RunID() is empty")
	}
}

func TestNew_CreatesOutputDir(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	if _, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t))); err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if info, err := os.Stat(cfg.OutputDir); err != nil || !info.IsDir() {
		t.Errorf("output dir: %v", err)
	}
}

func TestApp_ReadinessDoesNotRecreateOutputDir(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	application, err := app.New(context.Background(), cfg,
		app.WithStore(store.NewMemStore()),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	h := application.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/readyz status = %d, want 200", rec.Code)
	}

	if err := os.Remove(cfg.OutputDir); err != nil {
		t.Fatal(err)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz without output dir status = %d, want 503", rec.Code)
	}
	if _, err := os.Stat(cfg.OutputDir); !os.IsNotExist(err) {
		t.Errorf("readiness probe recreated the output dir: %v", err)
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	st := store.NewMemStore()
	application, err := app.New(context.Background(), cfg,
		app.WithStore(st),
		app.WithMetrics(testMetrics(t)),
		app.WithRunID("run-7"),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	sum, err := application.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if sum.Recordings != 1 || sum.Failed != 0 || sum.Accepted != 2 {
		t.Errorf("summary = %+v", sum)
	}

	runs, err := st.ListRuns(context.Background())
	if err != nil || len(runs) != 1 || runs[0].RecordingID != "rec" || runs[0].RunID != "run-7" {
		t.Errorf("runs = %+v, %v", runs, err)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "report.json")); err != nil {
		t.Errorf("report.json: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	// Second call is a no-op.
	if err := application.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}
}

func TestApp_HandlerReportsProgress(t *testing.T) {
	t.Parallel()

	m, reader := testMetricsReader(t)
	application, err := app.New(context.Background(), testConfig(t),
		app.WithStore(store.NewMemStore()),
		app.WithMetrics(m),
		app.WithRunID("run-7"),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := application.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/healthz", http.StatusOK, `"ok"`},
		{"/readyz", http.StatusOK, `"store":"ok"`},
		{"/progress", http.StatusOK, `"total":1`},
		{"/metrics", http.StatusOK, "go_goroutines"},
	}
	h := application.Handler()
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", tc.path, nil))
		if rec.Code != tc.wantStatus {
			t.Errorf("%s status = %d, want %d", tc.path, rec.Code, tc.wantStatus)
		}
		if got := rec.Header().Get(observe.RunHeader); got != "run-7" {
			t.Errorf("%s run header = %q, want run-7", tc.path, got)
		}
		if !strings.Contains(rec.Body.String(), tc.wantBody) {
			t.Errorf("%s body = %q, want it to contain %q", tc.path, rec.Body.String(), tc.wantBody)
		}
		if tc.path != "/progress" {
			continue
		}
		var snap health.ProgressSnapshot
		if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
			t.Fatalf("decode progress: %v", err)
		}
		if snap != (health.ProgressSnapshot{Total: 1, Done: 1}) {
			t.Errorf("progress = %+v", snap)
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	routes := make(map[string]bool)
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "flexalign.http.request.duration" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Histogram[float64]).DataPoints {
				route, _ := dp.Attributes.Value("route")
				run, _ := dp.Attributes.Value("run_id")
				if run.AsString() == "run-7" {
					routes[route.AsString()] = true
				}
			}
		}
	}
	for _, want := range []string{"GET /progress", "GET /metrics"} {
		if !routes[want] {
			t.Errorf("no request sample for %q in %v", want, routes)
		}
	}
}

func TestApp_ServesStatusEndpoint(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Server.ListenAddr = "127.0.0.1:0"
	application, err := app.New(context.Background(), cfg,
		app.WithStore(store.NewMemStore()),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := application.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}
