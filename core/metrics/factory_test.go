package metrics_test

import (
	"strings"
	"testing"

	"github.com/kilianp07/erbalance/core/factory"
	metrics "github.com/kilianp07/erbalance/core/metrics"
	_ "github.com/kilianp07/erbalance/infra/metrics"
)

func TestSinkTypes(t *testing.T) {
	got := strings.Join(metrics.SinkTypes(), ",")
	if got != "influx,nop,prometheus" {
		t.Fatalf("unexpected sink types %s", got)
	}
}

func TestNewMetricsSink(t *testing.T) {
	cases := []struct {
		name string
		cfgs []factory.ModuleConfig
		want string
	}{
		{"empty", nil, "metrics.NopSink"},
		{"single", []factory.ModuleConfig{{Type: "nop"}}, "metrics.NopSink"},
		{"multi", []factory.ModuleConfig{{Type: "nop"}, {Type: "prometheus"}}, "*metrics.MultiSink"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s, err := metrics.NewMetricsSink(c.cfgs)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if got := typeName(s); got != c.want {
				t.Fatalf("expected %s, got %s", c.want, got)
			}
		})
	}
}

func TestNewMetricsSinkUnknown(t *testing.T) {
	_, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "statsd"}})
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
	if !strings.Contains(err.Error(), "metrics.sinks[1] (statsd)") {
		t.Fatalf("error does not locate the sink: %v", err)
	}
}

func typeName(s metrics.MetricsSink) string {
	switch s.(type) {
	case metrics.NopSink:
		return "metrics.NopSink"
	case *metrics.MultiSink:
		return "*metrics.MultiSink"
	default:
		return "other"
	}
}
