package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dispatchRequests  *prometheus.CounterVec
	dispatchLatency   *prometheus.HistogramVec
	patientsAssigned  *prometheus.CounterVec
	patientsUnmet     *prometheus.CounterVec
	predictorFallback prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.HistogramVec, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Counter) {
	req := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_requests_total",
			Help: "Number of dispatch requests by scenario and outcome",
		},
		[]string{"scenario", "outcome"},
	)
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_latency_seconds",
			Help:    "Time to produce a dispatch plan",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scenario"},
	)
	assigned := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patients_assigned_total",
			Help: "Patients routed to a hospital",
		},
		[]string{"kind"},
	)
	unmet := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patients_unmet_total",
			Help: "Patients left unassigned because the fleet was full",
		},
		[]string{"kind"},
	)
	fb := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "predictor_fallback_total",
			Help: "Hospitals scored with the default prediction",
		},
	)
	return req, lat, assigned, unmet, fb
}

func init() {
	dispatchRequests, dispatchLatency, patientsAssigned, patientsUnmet, predictorFallback = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(dispatchRequests, dispatchLatency, patientsAssigned, patientsUnmet, predictorFallback)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	dispatchRequests, dispatchLatency, patientsAssigned, patientsUnmet, predictorFallback = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
