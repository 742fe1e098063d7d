package dispatch

import (
	"fmt"
	"time"

	"github.com/kilianp07/erbalance/core/geo"
	"github.com/kilianp07/erbalance/core/model"
)

// Config defines dispatch-related settings.
type Config struct {
	PredictorTimeoutSeconds int               `json:"predictor_timeout_seconds"`
	GeoTimeoutSeconds       int               `json:"geo_timeout_seconds"`
	TravelSpeedKMH          float64           `json:"travel_speed_kmh"`
	DefaultTravelMinutes    float64           `json:"default_travel_minutes"`
	ArrivalGraceMinutes     float64           `json:"arrival_grace_minutes"`
	FallbackCenter          model.Coordinates `json:"fallback_center"`
	Allocator               AllocatorConfig   `json:"allocator"`
	Weights                 Weights           `json:"weights"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.PredictorTimeoutSeconds <= 0 {
		c.PredictorTimeoutSeconds = 10
	}
	if c.GeoTimeoutSeconds <= 0 {
		c.GeoTimeoutSeconds = 10
	}
	if c.TravelSpeedKMH <= 0 {
		c.TravelSpeedKMH = 30
	}
	if c.DefaultTravelMinutes <= 0 {
		c.DefaultTravelMinutes = 20
	}
	if c.ArrivalGraceMinutes <= 0 {
		c.ArrivalGraceMinutes = 15
	}
	if c.FallbackCenter == (model.Coordinates{}) {
		c.FallbackCenter = model.Coordinates{Lat: 19.0760, Lon: 72.8777}
	}
	c.Allocator.SetDefaults()
	c.Weights.SetDefaults()
}

// Validate checks the allocator bounds.
func (c Config) Validate() error {
	a := c.Allocator
	if a.TraumaMin > a.TraumaMax {
		return fmt.Errorf("dispatch.allocator: trauma_min %d > trauma_max %d", a.TraumaMin, a.TraumaMax)
	}
	if a.GeneralMin > a.GeneralMax {
		return fmt.Errorf("dispatch.allocator: general_min %d > general_max %d", a.GeneralMin, a.GeneralMax)
	}
	if c.FallbackCenter.Lat < -90 || c.FallbackCenter.Lat > 90 || c.FallbackCenter.Lon < -180 || c.FallbackCenter.Lon > 180 {
		return fmt.Errorf("dispatch.fallback_center out of range")
	}
	return nil
}

// PredictorTimeout returns the per-call predictor budget.
func (c Config) PredictorTimeout() time.Duration {
	return time.Duration(c.PredictorTimeoutSeconds) * time.Second
}

// GeoTimeout returns the per-call geocoding budget.
func (c Config) GeoTimeout() time.Duration {
	return time.Duration(c.GeoTimeoutSeconds) * time.Second
}

// ArrivalGrace returns how long past its travel time a batch of patients
// stays committed.
func (c Config) ArrivalGrace() time.Duration {
	return time.Duration(c.ArrivalGraceMinutes * float64(time.Minute))
}

// TravelModel builds the travel model from the settings.
func (c Config) TravelModel() geo.TravelModel {
	m := geo.DefaultTravelModel()
	m.SpeedKMH = c.TravelSpeedKMH
	m.DefaultMinutes = c.DefaultTravelMinutes
	return m
}
