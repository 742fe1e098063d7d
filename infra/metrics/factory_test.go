package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/erbalance/core/factory"
	coremetrics "github.com/kilianp07/erbalance/core/metrics"
)

func TestInfluxSinkRequiresURLAndBucket(t *testing.T) {
	_, err := coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "influx", Conf: map[string]any{"url": "http://localhost:8086"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url and bucket")
}

func TestPrometheusSinkFromFactory(t *testing.T) {
	s, err := coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "prometheus"}})
	require.NoError(t, err)
	assert.IsType(t, &PromSink{}, s)
}
