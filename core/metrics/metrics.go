package metrics

import (
	"time"

	"github.com/kilianp07/erbalance/core/model"
)

// AssignmentRecord is one hospital's share of a dispatch.
type AssignmentRecord struct {
	DispatchID string
	HospitalID string
	Scenario   model.Scenario
	Critical   int
	Stable     int
	TotalScore float64
	TravelMin  float64
	Urgency    model.Urgency
	Time       time.Time
}

// MetricsSink records dispatch assignments for observability purposes.
type MetricsSink interface {
	RecordAssignments(recs []AssignmentRecord) error
}

// DispatchSummary aggregates one dispatch call.
type DispatchSummary struct {
	DispatchID    string
	Scenario      model.Scenario
	Critical      int
	Stable        int
	UnmetCritical int
	UnmetStable   int
	Hospitals     int
	Fallbacks     int
	Latency       time.Duration
	Time          time.Time
}

// DispatchSummaryRecorder records per-dispatch aggregates.
type DispatchSummaryRecorder interface {
	RecordDispatchSummary(ev DispatchSummary) error
}

// HospitalStateEvent is a snapshot of a hospital after a simulator tick.
type HospitalStateEvent struct {
	Hospital  model.HospitalState
	Load      float64
	Component string
	Time      time.Time
}

// HospitalStateRecorder records hospital snapshots.
type HospitalStateRecorder interface {
	RecordHospitalState(ev HospitalStateEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordAssignments([]AssignmentRecord) error    { return nil }
func (NopSink) RecordDispatchSummary(DispatchSummary) error   { return nil }
func (NopSink) RecordHospitalState(HospitalStateEvent) error  { return nil }
func (NopSink) RecordStatusTransition(StatusTransition) error { return nil }

// StatusTransition is a hospital moving between congestion tiers.
type StatusTransition struct {
	HospitalID string
	From       model.Status
	To         model.Status
	Load       float64
	Time       time.Time
}

// StatusTransitionRecorder records tier transitions.
type StatusTransitionRecorder interface {
	RecordStatusTransition(ev StatusTransition) error
}
