package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/erbalance/core/events"
	coremetrics "github.com/kilianp07/erbalance/core/metrics"
	"github.com/kilianp07/erbalance/core/model"
	"github.com/kilianp07/erbalance/internal/eventbus"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s.RecordAssignments([]coremetrics.AssignmentRecord{
		{HospitalID: "H001", Scenario: model.ScenarioNormal, Critical: 2, Stable: 1, TotalScore: 3.2, TravelMin: 8},
		{HospitalID: "H001", Scenario: model.ScenarioNormal, Critical: 1, TotalScore: 3.5, TravelMin: 9},
	}))
	assert.Equal(t, 3.0, testutil.ToFloat64(s.assignments.WithLabelValues("H001", "critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.assignments.WithLabelValues("H001", "stable")))

	require.NoError(t, s.RecordDispatchSummary(coremetrics.DispatchSummary{Scenario: model.ScenarioFestival, UnmetStable: 4}))
	assert.Equal(t, 4.0, testutil.ToFloat64(s.unmet.WithLabelValues("festival", "stable")))

	require.NoError(t, s.RecordHospitalState(coremetrics.HospitalStateEvent{
		Hospital: model.HospitalState{ID: "H002", BedAvailability: 17, ERAdmissions: 55},
		Load:     88,
	}))
	assert.Equal(t, 17.0, testutil.ToFloat64(s.beds.WithLabelValues("H002")))
	assert.Equal(t, 55.0, testutil.ToFloat64(s.admissions.WithLabelValues("H002")))
	assert.Equal(t, 88.0, testutil.ToFloat64(s.load.WithLabelValues("H002")))

	require.NoError(t, s.RecordStatusTransition(coremetrics.StatusTransition{From: model.StatusGreen, To: model.StatusRed}))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.transitions.WithLabelValues("Green", "Red")))
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	b, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	require.NoError(t, a.RecordStatusTransition(coremetrics.StatusTransition{To: model.StatusYellow}))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.transitions.WithLabelValues("unknown", "Yellow")))
}

func TestStartEventCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	bus := eventbus.NewTyped[events.StatusChangeEvent]()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartEventCollector(ctx, bus, s)

	bus.Publish(events.StatusChangeEvent{HospitalID: "H1", From: model.StatusYellow, To: model.StatusRed})
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(s.transitions.WithLabelValues("Yellow", "Red")) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPromHandlerServesSinkMetrics(t *testing.T) {
	s, err := NewPromSink()
	require.NoError(t, err)
	require.NoError(t, s.RecordStatusTransition(coremetrics.StatusTransition{From: model.StatusGreen, To: model.StatusYellow}))
	srv := StartPromServer("127.0.0.1:0")
	defer func() { _ = srv.Shutdown(context.Background()) }()

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hospital_status_transitions_total")
}
