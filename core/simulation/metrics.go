package simulation

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/erbalance/core/model"
)

var (
	simulationTicks  prometheus.Counter
	simulationErrors *prometheus.CounterVec
	hospitalStatus   *prometheus.GaugeVec
)

func newCollectors() (prometheus.Counter, *prometheus.CounterVec, *prometheus.GaugeVec) {
	ticks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulation_ticks_total",
		Help: "Completed simulator ticks",
	})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simulation_errors_total",
		Help: "Simulator failures by kind",
	}, []string{"kind"})
	status := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hospital_status",
		Help: "Status tier per hospital (0 green, 1 yellow, 2 red)",
	}, []string{"hospital_id"})
	return ticks, errs, status
}

func init() {
	simulationTicks, simulationErrors, hospitalStatus = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers simulation metrics on reg, or on the default
// registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(simulationTicks, simulationErrors, hospitalStatus)
}

// ResetMetrics reinitializes the collectors for tests.
func ResetMetrics(reg prometheus.Registerer) {
	simulationTicks, simulationErrors, hospitalStatus = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}

func statusValue(s model.Status) float64 {
	switch s {
	case model.StatusRed:
		return 2
	case model.StatusYellow:
		return 1
	default:
		return 0
	}
}
