package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coremetrics "github.com/kilianp07/erbalance/core/metrics"
	"github.com/kilianp07/erbalance/core/model"
)

// PromSink records assignments and hospital snapshots in Prometheus metrics.
type PromSink struct {
	assignments *prometheus.CounterVec
	score       *prometheus.HistogramVec
	travel      prometheus.Histogram
	unmet       *prometheus.CounterVec
	beds        *prometheus.GaugeVec
	admissions  *prometheus.GaugeVec
	load        *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hospital_patients_assigned_total",
			Help: "Patients assigned to each hospital",
		}, []string{"hospital_id", "category"}),
		score: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatch_hospital_score",
			Help:    "Total score of hospitals receiving patients",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10, 15},
		}, []string{"scenario"}),
		travel: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_travel_minutes",
			Help:    "Estimated travel time to assigned hospitals",
			Buckets: []float64{2, 5, 10, 15, 20, 30, 45, 60},
		}),
		unmet: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_unmet_patients_total",
			Help: "Patients left without a hospital per scenario",
		}, []string{"scenario", "category"}),
		beds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hospital_bed_availability",
			Help: "Free beds reported for each hospital",
		}, []string{"hospital_id"}),
		admissions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hospital_er_admissions",
			Help: "Current emergency admissions per hospital",
		}, []string{"hospital_id"}),
		load: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hospital_predicted_load",
			Help: "Latest predicted admissions per hospital",
		}, []string{"hospital_id"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hospital_status_transitions_total",
			Help: "Congestion tier transitions",
		}, []string{"from", "to"}),
	}
	var err error
	if s.assignments, err = register(reg, s.assignments); err != nil {
		return nil, err
	}
	if s.score, err = register(reg, s.score); err != nil {
		return nil, err
	}
	if s.travel, err = register(reg, s.travel); err != nil {
		return nil, err
	}
	if s.unmet, err = register(reg, s.unmet); err != nil {
		return nil, err
	}
	if s.beds, err = register(reg, s.beds); err != nil {
		return nil, err
	}
	if s.admissions, err = register(reg, s.admissions); err != nil {
		return nil, err
	}
	if s.load, err = register(reg, s.load); err != nil {
		return nil, err
	}
	if s.transitions, err = register(reg, s.transitions); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when c collides with it.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordAssignments increments the per-hospital patient counters.
func (s *PromSink) RecordAssignments(recs []coremetrics.AssignmentRecord) error {
	for _, r := range recs {
		s.assignments.WithLabelValues(r.HospitalID, "critical").Add(float64(r.Critical))
		s.assignments.WithLabelValues(r.HospitalID, "stable").Add(float64(r.Stable))
		s.score.WithLabelValues(string(r.Scenario)).Observe(r.TotalScore)
		s.travel.Observe(r.TravelMin)
	}
	return nil
}

// RecordDispatchSummary counts patients that could not be placed.
func (s *PromSink) RecordDispatchSummary(ev coremetrics.DispatchSummary) error {
	if ev.UnmetCritical > 0 {
		s.unmet.WithLabelValues(string(ev.Scenario), "critical").Add(float64(ev.UnmetCritical))
	}
	if ev.UnmetStable > 0 {
		s.unmet.WithLabelValues(string(ev.Scenario), "stable").Add(float64(ev.UnmetStable))
	}
	return nil
}

// RecordHospitalState updates the per-hospital gauges.
func (s *PromSink) RecordHospitalState(ev coremetrics.HospitalStateEvent) error {
	h := ev.Hospital
	s.beds.WithLabelValues(h.ID).Set(float64(h.BedAvailability))
	s.admissions.WithLabelValues(h.ID).Set(float64(h.ERAdmissions))
	if ev.Load > 0 {
		s.load.WithLabelValues(h.ID).Set(ev.Load)
	}
	return nil
}

// RecordStatusTransition counts tier transitions.
func (s *PromSink) RecordStatusTransition(ev coremetrics.StatusTransition) error {
	s.transitions.WithLabelValues(statusLabel(ev.From), statusLabel(ev.To)).Inc()
	return nil
}

func statusLabel(st model.Status) string {
	if st == "" {
		return "unknown"
	}
	return string(st)
}

// StartPromServer serves the default gatherer on addr in a goroutine. The
// returned server should be shut down by the caller.
func StartPromServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
