package metrics

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAssignments forwards the records to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordAssignments(recs []AssignmentRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordAssignments(recs); err != nil {
			return err
		}
	}
	return nil
}

// RecordDispatchSummary forwards summaries to sinks that support them.
func (m *MultiSink) RecordDispatchSummary(ev DispatchSummary) error {
	for _, s := range m.Sinks {
		if r, ok := s.(DispatchSummaryRecorder); ok {
			if err := r.RecordDispatchSummary(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordHospitalState forwards snapshots to sinks that support them.
func (m *MultiSink) RecordHospitalState(ev HospitalStateEvent) error {
	for _, s := range m.Sinks {
		if r, ok := s.(HospitalStateRecorder); ok {
			if err := r.RecordHospitalState(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordStatusTransition forwards transitions to sinks that support them.
func (m *MultiSink) RecordStatusTransition(ev StatusTransition) error {
	for _, s := range m.Sinks {
		if r, ok := s.(StatusTransitionRecorder); ok {
			if err := r.RecordStatusTransition(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
