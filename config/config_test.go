package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kilianp07/erbalance/core/alert"
)

//nolint:gocyclo
func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `server:
  addr: ":8080"
  auth_token: "secret"
dispatch:
  predictor_timeout_seconds: 3
  fallback_center:
    lat: 18.52
    lon: 73.85
  allocator:
    trauma_max: 6
simulation:
  interval_seconds: 2
  admission_prob: 0.5
predictor:
  type: heuristic
store:
  backend: sqlite
  path: "/tmp/h.db"
geo:
  provider: none
alerts:
  mqtt:
    enabled: true
    broker: "tcp://localhost:1883"
    client_id: "cli"
    qos:
      alert: 1
  slack:
    webhook_url: "https://hooks.example/x"
    min_severity: critical
metrics:
  sinks:
    - type: "nop"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"server.addr", cfg.Server.Addr, ":8080"},
		{"server.auth_token", cfg.Server.AuthToken, "secret"},
		{"server.service_name", cfg.Server.ServiceName, "erbalance"},
		{"predictor_timeout_seconds", cfg.Dispatch.PredictorTimeoutSeconds, 3},
		{"fallback_center.lat", cfg.Dispatch.FallbackCenter.Lat, 18.52},
		{"allocator.trauma_max", cfg.Dispatch.Allocator.TraumaMax, 6},
		{"allocator.trauma_min", cfg.Dispatch.Allocator.TraumaMin, 1},
		{"simulation.interval_seconds", cfg.Simulation.IntervalSeconds, 2.0},
		{"simulation.admission_prob", cfg.Simulation.AdmissionProb, 0.5},
		{"simulation.ambulance_prob", cfg.Simulation.AmbulanceProb, 0.2},
		{"store.backend", cfg.Store.Backend, "sqlite"},
		{"store.path", cfg.Store.Path, "/tmp/h.db"},
		{"geo.provider", cfg.Geo.Provider, "none"},
		{"mqtt.enabled", cfg.Alerts.MQTT.Enabled, true},
		{"mqtt.broker", cfg.Alerts.MQTT.Broker, "tcp://localhost:1883"},
		{"mqtt.qos.alert", cfg.Alerts.MQTT.QoS["alert"], byte(1)},
		{"slack.min_severity", cfg.Alerts.Slack.MinSeverity, alert.SeverityCritical},
		{"alerts.memory_limit", cfg.Alerts.MemoryLimit, 500},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"logging.backend", cfg.Logging.Backend, "jsonl"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("K_STORE__BACKEND", "postgres")
	t.Setenv("K_STORE__DSN", "postgres://localhost/er")
	t.Setenv("K_SERVER__ADDR", ":9000")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Store.Backend != "postgres" || cfg.Store.DSN != "postgres://localhost/er" {
		t.Fatalf("env override not applied: %+v", cfg.Store)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("unexpected addr %s", cfg.Server.Addr)
	}
	if cfg.Sentry.Environment != "production" || cfg.Logging.Rotating() {
		t.Fatalf("unexpected sentry/logging defaults: %+v %+v", cfg.Sentry, cfg.Logging)
	}
	if cfg.Predictor.Type != "heuristic" || cfg.Simulation.IntervalSeconds != 5 {
		t.Fatalf("defaults not applied: %+v %+v", cfg.Predictor, cfg.Simulation)
	}
}

func TestLoadValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data := `{"predictor":{"type":"linear"},"store":{"backend":"cassandra"},"alerts":{"mqtt":{"enabled":true}},"sentry":{"traces_sample_rate":2},"logging":{"max_size_mb":-1}}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"samples_path", "cassandra", "mqtt.broker", "traces_sample_rate", "rotation"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	if _, err := Load("config.toml"); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestPredictorLoader(t *testing.T) {
	cfg := PredictorConfig{}
	cfg.SetDefaults()
	p, err := cfg.Loader()(context.Background())
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	if p == nil {
		t.Fatal("nil predictor")
	}
}
