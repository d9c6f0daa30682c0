package telemetry

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"no service name", func(c *Config) { c.ServiceName = "" }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }, true},
		{"otlp without endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "otlp" }, true},
		{"sampling out of range", func(c *Config) { c.Tracing.SamplingRate = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)
	logger = Component(logger, "processor")

	logger.Info().Msg("dropped")
	logger.Warn().Str("file", "costs.yaml").Msg("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info message written at warn level: %s", out)
	}
	for _, want := range []string{`"component":"processor"`, `"file":"costs.yaml"`, `"message":"kept"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %s does not contain %s", out, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if got := ParseLevel("debug"); got != zerolog.DebugLevel {
		t.Errorf("ParseLevel(debug) = %v", got)
	}
	if got := ParseLevel("unknown"); got != zerolog.InfoLevel {
		t.Errorf("ParseLevel(unknown) = %v", got)
	}
}

func TestMetrics_Observers(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, Namespace: "chartkit"})

	m.RecordDocument("succeeded", 20*time.Millisecond)
	m.RecordDocument("failed", 5*time.Millisecond)
	m.RecordDocument("failed", 5*time.Millisecond)
	m.RecordStage("load", time.Millisecond)
	m.RecordError("data_source", "FETCH_FAILED")
	m.RecordError("configuration", "")
	m.RecordCacheLookup("hit")
	m.RecordPreflight(true)
	m.RecordRun(1)

	tests := []struct {
		metric string
		labels map[string]string
		want   float64
	}{
		{"chartkit_documents_processed_total", map[string]string{"status": "failed"}, 2},
		{"chartkit_errors_total", map[string]string{"kind": "configuration", "code": "unknown"}, 1},
		{"chartkit_preflight_requests_total", map[string]string{"ready": "true"}, 1},
		{"chartkit_runs_completed_total", map[string]string{"status": "failed"}, 1},
	}
	for _, tt := range tests {
		if got := counterValue(t, m, tt.metric, tt.labels); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.metric, tt.labels, got, tt.want)
		}
	}

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"chartkit_documents_processed_total", "chartkit_stage_duration_seconds", "chartkit_loader_cache_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output is missing %s", name)
		}
	}
}

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetrics_Disabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{})
	m.RecordDocument("succeeded", time.Second)
	m.RecordCacheLookup("miss")

	if m.Enabled() || m.Registry() != nil {
		t.Error("disabled metrics should have no registry")
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestTracer_Stdout(t *testing.T) {
	var buf bytes.Buffer
	tracer, err := newTracer(TracingConfig{Enabled: true, Exporter: "stdout", SamplingRate: 1}, "chartkit", "test", &buf)
	if err != nil {
		t.Fatalf("newTracer() error = %v", err)
	}

	ctx, span := tracer.StartGenerateSpan(context.Background(), []string{"charts/"}, true)
	if TraceID(ctx) == "" {
		t.Error("sampled span has no trace id")
	}
	span.End()

	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !strings.Contains(buf.String(), "chartkit.generate") {
		t.Errorf("exported spans do not include the run span: %s", buf.String())
	}
}

func TestTracer_Disabled(t *testing.T) {
	tracer, err := NewTracer(TracingConfig{}, "chartkit", "test")
	if err != nil {
		t.Fatalf("NewTracer() error = %v", err)
	}
	_, span := tracer.Start(context.Background(), "noop")
	span.End()
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
