package telemetry

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestMetricsDisabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	// Must not panic.
	m.RecordRunStarted("apply")
	m.RecordStep("server", "install", true, time.Second)
	m.RecordRunCompleted("succeeded", time.Second)

	if m.Registry() != nil {
		t.Error("disabled metrics should have no registry")
	}
	if err := m.Serve(context.Background()); err != nil {
		t.Errorf("Serve() on disabled metrics error = %v", err)
	}
}

func TestMetricsHandler(t *testing.T) {
	cfg := DefaultConfig().Metrics
	cfg.Enabled = true

	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	m.RecordStep("user", "enable", true, 5*time.Millisecond)
	m.RecordNotification("rebuild_realm", true)
	m.RecordError("external_command", "COMMAND_FAILED")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`deckhand_steps_executed_total{action="enable",changed="true",kind="user"} 1`,
		`deckhand_notifications_fired_total{action="rebuild_realm",changed="true"} 1`,
		`deckhand_errors_by_code_total{code="COMMAND_FAILED"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestLoggerContext(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, LoggingConfig{Level: "debug", Format: "json"})

	ctx := l.WithRunID("run-1").WithContext(context.Background())
	zerolog.Ctx(ctx).Info().Msg("hello")

	if !strings.Contains(buf.String(), `"run_id":"run-1"`) {
		t.Errorf("expected run_id in log line, got %s", buf.String())
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }, true},
		{"bad sampling", func(c *Config) { c.Tracing.SamplingRate = 2 }, true},
		{"metrics without address", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.ListenAddress = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResourceAttributes(t *testing.T) {
	attrs := resourceAttributes("deckhand", "1.0.0", "production", map[string]string{
		"site":         "fra1",
		"rack":         "r12",
		"service.name": "override",
	})

	var got []string
	for _, a := range attrs {
		got = append(got, string(a.Key)+"="+a.Value.AsString())
	}
	want := []string{
		"service.name=deckhand",
		"service.version=1.0.0",
		"environment=production",
		"rack=r12",
		"site=fra1",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("resourceAttributes() = %v, want %v", got, want)
	}
}
