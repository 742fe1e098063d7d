package dispatch

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/erbalance/core/dispatch/logging"
	"github.com/kilianp07/erbalance/core/events"
	"github.com/kilianp07/erbalance/core/geo"
	"github.com/kilianp07/erbalance/core/metrics"
	"github.com/kilianp07/erbalance/core/model"
	"github.com/kilianp07/erbalance/core/prediction"
	"github.com/kilianp07/erbalance/core/telemetry"
	"github.com/kilianp07/erbalance/internal/eventbus"
)

var noon = time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

func testFleet(n int) []model.HospitalState {
	locs := []model.Coordinates{{Lat: 19.002, Lon: 72.842}, {Lat: 19.046, Lon: 72.860}, {Lat: 19.051, Lon: 72.829}}
	out := make([]model.HospitalState, 0, n)
	for i := 0; i < n; i++ {
		loc := locs[i%len(locs)]
		out = append(out, model.HospitalState{
			ID:              []string{"H1", "H2", "H3"}[i%3],
			Name:            []string{"One", "Two", "Three"}[i%3],
			Location:        &loc,
			TotalBeds:       100,
			BedAvailability: 40,
			ERAdmissions:    30,
			StaffCapacity:   80,
			TraumaCapacity:  10,
			Status:          model.StatusGreen,
		})
	}
	return out
}

func newTestManager(t *testing.T, fleet []model.HospitalState, pred prediction.Predictor, res geo.Resolver) *DispatchManager {
	t.Helper()
	store := telemetry.NewMemoryStore()
	require.NoError(t, telemetry.Seed(context.Background(), store, fleet))
	m, err := NewDispatchManager(store, pred, res, Config{PredictorTimeoutSeconds: 1}, nil)
	require.NoError(t, err)
	m.SetClock(func() time.Time { return noon })
	return m
}

func dadar() geo.Static {
	return geo.Static{geo.NormalizeQuery("Dadar"): {Lat: 19.018, Lon: 72.843}}
}

type recordingSink struct {
	records   []metrics.AssignmentRecord
	summaries []metrics.DispatchSummary
}

func (r *recordingSink) RecordAssignments(recs []metrics.AssignmentRecord) error {
	r.records = append(r.records, recs...)
	return nil
}

func (r *recordingSink) RecordDispatchSummary(s metrics.DispatchSummary) error {
	r.summaries = append(r.summaries, s)
	return nil
}

func TestNewDispatchManagerNilParams(t *testing.T) {
	_, err := NewDispatchManager(nil, &prediction.Mock{}, nil, Config{}, nil)
	assert.Error(t, err)
	_, err = NewDispatchManager(telemetry.NewMemoryStore(), nil, nil, Config{}, nil)
	assert.Error(t, err)
}

func TestDispatchOutbreakAllPlaced(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	t.Cleanup(func() { ResetMetrics(nil) })

	m := newTestManager(t, testFleet(3), &prediction.Mock{Result: prediction.Prediction{Admissions: 5}}, dadar())
	incoming := telemetry.NewIncomingCounter()
	m.SetIncomingCounter(incoming)
	sink := &recordingSink{}
	m.SetMetricsSink(sink)

	res, err := m.Dispatch(context.Background(), Request{Location: "Dadar", CriticalPatients: 2, StablePatients: 3, Scenario: 3, Timestamp: noon})
	require.NoError(t, err)

	assert.Equal(t, 6, res.Incident.CriticalCount)
	assert.Equal(t, 9, res.Incident.StableCount)
	assert.Zero(t, res.UnmetCritical)
	assert.Zero(t, res.UnmetStable)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, model.Coordinates{Lat: 19.018, Lon: 72.843}, res.Origin)
	require.Len(t, res.Scores, 3)
	assert.NotEmpty(t, res.ID)

	var crit, stable, committed int
	for _, a := range res.Assignments {
		crit += a.AssignedCritical
		stable += a.AssignedStable
		committed += incoming.Get(a.HospitalID)
		assert.NotEqual(t, model.Urgency(""), a.Recommendation.Urgency)
	}
	assert.Equal(t, 6, crit)
	assert.Equal(t, 9, stable)
	assert.Equal(t, 15, committed)

	// commitments lapse after travel time plus the arrival grace
	incoming.Expire(noon.Add(10 * time.Minute))
	for _, a := range res.Assignments {
		assert.Equal(t, a.Total(), incoming.Get(a.HospitalID))
	}
	incoming.Expire(noon.Add(2 * time.Hour))
	for _, a := range res.Assignments {
		assert.Zero(t, incoming.Get(a.HospitalID))
	}
	assert.Equal(t, 15, res.Plan.Summary.TotalPatients)
	assert.Len(t, res.UsedScores(), len(res.Assignments))

	assert.Equal(t, 6.0, testutil.ToFloat64(patientsAssigned.WithLabelValues("critical")))
	assert.Equal(t, 9.0, testutil.ToFloat64(patientsAssigned.WithLabelValues("stable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(dispatchRequests.WithLabelValues("outbreak", "ok")))

	assert.Len(t, sink.records, len(res.Assignments))
	require.Len(t, sink.summaries, 1)
	assert.Equal(t, res.ID, sink.summaries[0].DispatchID)
}

func TestDispatchValidation(t *testing.T) {
	pred := &prediction.Mock{}
	m := newTestManager(t, testFleet(1), pred, nil)
	_, err := m.Dispatch(context.Background(), Request{Location: " ", CriticalPatients: -1, StablePatients: 0, Scenario: 7})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{
		"location is required and cannot be empty",
		"critical_patients must be a non-negative integer",
		"scenario must be an integer between 1 and 4",
	}, ve.Problems)
	assert.Zero(t, pred.Calls())
}

func TestDispatchRejectsOversizedIncident(t *testing.T) {
	pred := &prediction.Mock{}
	m := newTestManager(t, testFleet(1), pred, nil)
	_, err := m.Dispatch(context.Background(), Request{Location: "Dadar", CriticalPatients: math.MaxInt / 2, StablePatients: MaxPatients + 1, Scenario: 3})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{
		"critical_patients must not exceed 1000000",
		"stable_patients must not exceed 1000000",
	}, ve.Problems)
	assert.Zero(t, pred.Calls())

	res, err := m.Dispatch(context.Background(), Request{Location: "Dadar", CriticalPatients: MaxPatients, Scenario: 3, Timestamp: noon})
	require.NoError(t, err)
	assert.Equal(t, 3*MaxPatients, res.Incident.CriticalCount)
	var crit int
	for _, a := range res.Assignments {
		crit += a.AssignedCritical
	}
	assert.Positive(t, res.UnmetCritical)
	assert.Equal(t, res.Incident.CriticalCount, crit+res.UnmetCritical)
}

func TestDispatchGeoFallback(t *testing.T) {
	m := newTestManager(t, testFleet(3), &prediction.Mock{}, geo.Static{})
	res, err := m.Dispatch(context.Background(), Request{Location: "Nowhere", CriticalPatients: 1, Scenario: 1, Timestamp: noon})
	require.NoError(t, err)
	assert.Equal(t, model.Coordinates{Lat: 19.0760, Lon: 72.8777}, res.Origin)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnGeoFallback, res.Warnings[0].Code)

	m = newTestManager(t, testFleet(3), &prediction.Mock{}, nil)
	res, err = m.Dispatch(context.Background(), Request{Location: "Nowhere", CriticalPatients: 1, Scenario: 1, Timestamp: noon})
	require.NoError(t, err)
	assert.Equal(t, WarnGeoFallback, res.Warnings[0].Code)
}

func TestDispatchExplicitCoordinatesSkipResolver(t *testing.T) {
	m := newTestManager(t, testFleet(3), &prediction.Mock{}, geo.Static{})
	at := model.Coordinates{Lat: 19.05, Lon: 72.83}
	res, err := m.Dispatch(context.Background(), Request{Location: "Bandra", Coordinates: &at, StablePatients: 2, Scenario: 1, Timestamp: noon})
	require.NoError(t, err)
	assert.Equal(t, at, res.Origin)
	assert.Empty(t, res.Warnings)
}

func TestDispatchPredictorFallback(t *testing.T) {
	m := newTestManager(t, testFleet(3), &prediction.Mock{Err: errors.New("model offline")}, dadar())
	res, err := m.Dispatch(context.Background(), Request{Location: "Dadar", CriticalPatients: 1, StablePatients: 1, Scenario: 1, Timestamp: noon})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 3)
	ids := map[string]bool{}
	for _, w := range res.Warnings {
		assert.Equal(t, WarnPredictorFallback, w.Code)
		ids[w.HospitalID] = true
	}
	assert.Len(t, ids, 3)
	for _, s := range res.Scores {
		assert.Equal(t, prediction.Default.Admissions, s.PredictedAdmissions)
	}
}

func TestDispatchCapacityExhausted(t *testing.T) {
	m := newTestManager(t, testFleet(1), &prediction.Mock{}, dadar())
	res, err := m.Dispatch(context.Background(), Request{Location: "Dadar", CriticalPatients: 20, StablePatients: 20, Scenario: 1, Timestamp: noon})
	require.NoError(t, err)
	require.Len(t, res.Assignments, 1)
	// trauma bucket 5, general bucket 8 leaves room for 3 stable
	assert.Equal(t, 5, res.Assignments[0].AssignedCritical)
	assert.Equal(t, 3, res.Assignments[0].AssignedStable)
	assert.Equal(t, 15, res.UnmetCritical)
	assert.Equal(t, 17, res.UnmetStable)
	require.NotEmpty(t, res.Warnings)
	assert.Equal(t, WarnCapacityExhausted, res.Warnings[len(res.Warnings)-1].Code)
}

func TestDispatchEmptyFleet(t *testing.T) {
	m := newTestManager(t, nil, &prediction.Mock{}, dadar())
	res, err := m.Dispatch(context.Background(), Request{Location: "Dadar", CriticalPatients: 2, StablePatients: 1, Scenario: 1})
	require.NoError(t, err)
	assert.Empty(t, res.Assignments)
	assert.Equal(t, 2, res.UnmetCritical)
	assert.Equal(t, 1, res.UnmetStable)
}

func TestDispatchPersistsAndPublishes(t *testing.T) {
	m := newTestManager(t, testFleet(3), &prediction.Mock{}, dadar())
	store, err := logging.NewJSONLStore(filepath.Join(t.TempDir(), "plans.jsonl"))
	require.NoError(t, err)
	m.SetLogStore(store)
	bus := eventbus.NewTyped[events.DispatchEvent]()
	sub := bus.Subscribe()
	m.SetEventBus(bus)
	t.Cleanup(func() {
		bus.Close()
		_ = m.Close()
	})

	res, err := m.Dispatch(context.Background(), Request{Location: "Dadar", CriticalPatients: 2, StablePatients: 2, Scenario: 2, Timestamp: noon})
	require.NoError(t, err)

	select {
	case ev := <-sub:
		assert.Equal(t, res.ID, ev.DispatchID)
		assert.Equal(t, res.Assignments, ev.Assignments)
	case <-time.After(time.Second):
		t.Fatal("no dispatch event published")
	}

	recs, err := m.History(context.Background(), logging.LogQuery{Scenario: model.ScenarioAccident})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, res.ID, recs[0].DispatchID)
	assert.Len(t, recs[0].HospitalsUsed, len(res.Assignments))
	assert.NotEmpty(t, recs[0].Plan)
}

func TestDispatchDeterministic(t *testing.T) {
	m := newTestManager(t, testFleet(3), &prediction.Mock{Result: prediction.Prediction{Admissions: 3, ICU: 1}}, dadar())
	req := Request{Location: "Dadar", CriticalPatients: 4, StablePatients: 7, Scenario: 4, Timestamp: noon}
	a, err := m.Dispatch(context.Background(), req)
	require.NoError(t, err)
	b, err := m.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a.Assignments, b.Assignments)
	assert.Equal(t, a.Scores, b.Scores)
	assert.NotEqual(t, a.ID, b.ID)
}
