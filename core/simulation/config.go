package simulation

import (
	"fmt"
	"time"
)

// Config controls the random walk and the retry policy of the simulator.
// BackoffMaxSeconds bounds the total time spent retrying a failed tick.
type Config struct {
	Disabled          bool    `json:"disabled"`
	IntervalSeconds   float64 `json:"interval_seconds"`
	AdmissionProb     float64 `json:"admission_prob"`
	AdmissionMin      int     `json:"admission_min"`
	AdmissionMax      int     `json:"admission_max"`
	AmbulanceProb     float64 `json:"ambulance_prob"`
	AmbulanceMin      int     `json:"ambulance_min"`
	AmbulanceMax      int     `json:"ambulance_max"`
	PredictorTimeout  int     `json:"predictor_timeout_seconds"`
	MaxRetries        uint64  `json:"max_retries"`
	BackoffMaxSeconds float64 `json:"backoff_max_seconds"`
	Seed              int64   `json:"seed"`
}

// SetDefaults fills zero values with the production random walk.
func (c *Config) SetDefaults() {
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = 5
	}
	if c.AdmissionProb == 0 {
		c.AdmissionProb = 0.3
	}
	if c.AdmissionMin == 0 && c.AdmissionMax == 0 {
		c.AdmissionMin, c.AdmissionMax = -2, 3
	}
	if c.AmbulanceProb == 0 {
		c.AmbulanceProb = 0.2
	}
	if c.AmbulanceMin == 0 && c.AmbulanceMax == 0 {
		c.AmbulanceMin, c.AmbulanceMax = -1, 2
	}
	if c.PredictorTimeout <= 0 {
		c.PredictorTimeout = 10
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.BackoffMaxSeconds <= 0 {
		c.BackoffMaxSeconds = 30
	}
}

// Validate checks probabilities and delta ranges.
func (c Config) Validate() error {
	if c.AdmissionProb < 0 || c.AdmissionProb > 1 {
		return fmt.Errorf("simulation.admission_prob must be in [0,1]")
	}
	if c.AmbulanceProb < 0 || c.AmbulanceProb > 1 {
		return fmt.Errorf("simulation.ambulance_prob must be in [0,1]")
	}
	if c.AdmissionMin > c.AdmissionMax {
		return fmt.Errorf("simulation: admission_min %d > admission_max %d", c.AdmissionMin, c.AdmissionMax)
	}
	if c.AmbulanceMin > c.AmbulanceMax {
		return fmt.Errorf("simulation: ambulance_min %d > ambulance_max %d", c.AmbulanceMin, c.AmbulanceMax)
	}
	return nil
}

// Interval returns the tick period.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds * float64(time.Second))
}
