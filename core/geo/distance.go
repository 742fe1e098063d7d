// Package geo computes travel distances and ETAs between incidents and
// hospitals, and defines the address resolver used to locate incidents.
package geo

import (
	"math"
	"time"

	"github.com/kilianp07/erbalance/core/model"
)

const earthRadiusKM = 6371.0

// HaversineKM returns the great circle distance between a and b in kilometres.
func HaversineKM(a, b model.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// TravelModel converts distances into ambulance travel minutes.
type TravelModel struct {
	SpeedKMH   float64
	MinMinutes float64
	MaxMinutes float64
	// DefaultMinutes is used for hospitals without coordinates.
	DefaultMinutes float64
	// MaxMultiplier caps the traffic multiplier.
	MaxMultiplier float64
}

// DefaultTravelModel returns an urban model at 30 km/h.
func DefaultTravelModel() TravelModel {
	return TravelModel{SpeedKMH: 30, MinMinutes: 3, MaxMinutes: 240, DefaultMinutes: 20, MaxMultiplier: 3}
}

// BaseMinutes returns the free flow travel time for distKM, clipped.
func (m TravelModel) BaseMinutes(distKM float64) float64 {
	speed := m.SpeedKMH
	if speed <= 0 {
		speed = 30
	}
	mins := distKM * 60 / speed
	return math.Min(math.Max(mins, m.MinMinutes), m.MaxMinutes)
}

// TimeOfDayFactor returns the traffic factor for the local hour of t.
func TimeOfDayFactor(t time.Time) float64 {
	h := t.Hour()
	switch {
	case h >= 22 || h < 6:
		return 1.1
	case (h >= 8 && h < 9) || (h >= 17 && h < 20):
		return 2.0
	case (h >= 6 && h < 8) || (h >= 9 && h < 10) || (h >= 15 && h < 17):
		return 1.5
	default:
		return 1.3
	}
}

// DistanceFactor penalises short urban hops more than longer arterial runs.
func DistanceFactor(distKM float64) float64 {
	switch {
	case distKM < 3:
		return 1.3
	case distKM < 10:
		return 1.6
	default:
		return 1.4
	}
}

// ETAMinutes returns the traffic adjusted ETA, rounded up to whole minutes.
func (m TravelModel) ETAMinutes(distKM float64, at time.Time) float64 {
	mult := TimeOfDayFactor(at) * DistanceFactor(distKM)
	limit := m.MaxMultiplier
	if limit <= 0 {
		limit = 3
	}
	mult = math.Min(mult, limit)
	return math.Ceil(m.BaseMinutes(distKM) * mult)
}

// Travel returns the distance (nil when unknown) and ETA from origin to h.
func (m TravelModel) Travel(origin model.Coordinates, h model.HospitalState, at time.Time) (*float64, float64) {
	if h.Location == nil {
		return nil, m.DefaultMinutes
	}
	d := HaversineKM(origin, *h.Location)
	return &d, m.ETAMinutes(d, at)
}
