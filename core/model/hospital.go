package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Status is the congestion tier of a hospital derived from its predicted load.
type Status string

const (
	StatusGreen  Status = "Green"
	StatusYellow Status = "Yellow"
	StatusRed    Status = "Red"
)

// Load thresholds used by ClassifyStatus. A load strictly above the threshold
// moves the hospital into the next tier.
const (
	YellowThreshold = 100.0
	RedThreshold    = 150.0
)

// DefaultStaffAvailable is used when a record carries no on-duty staff count.
const DefaultStaffAvailable = 20

// ClassifyStatus maps a predicted load onto a congestion tier.
func ClassifyStatus(load float64) Status {
	switch {
	case load > RedThreshold:
		return StatusRed
	case load > YellowThreshold:
		return StatusYellow
	default:
		return StatusGreen
	}
}

// Valid reports whether s is one of the known tiers.
func (s Status) Valid() bool {
	return s == StatusGreen || s == StatusYellow || s == StatusRed
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// HospitalState is the live capacity record of a single hospital.
type HospitalState struct {
	ID                string       `json:"hospital_id" yaml:"hospital_id"`
	Name              string       `json:"hospital_name" yaml:"hospital_name"`
	Location          *Coordinates `json:"location,omitempty" yaml:"location,omitempty"`
	BedAvailability   int          `json:"bed_availability" yaml:"bed_availability"`
	TotalBeds         int          `json:"total_beds" yaml:"total_beds"`
	ERAdmissions      int          `json:"er_admissions" yaml:"er_admissions"`
	AmbulanceArrivals int          `json:"ambulance_arrivals" yaml:"ambulance_arrivals"`
	StaffCapacity     int          `json:"staff_capacity" yaml:"staff_capacity"`
	TraumaCapacity    int          `json:"trauma_capacity" yaml:"trauma_capacity"`
	Status            Status       `json:"status" yaml:"status"`
	LastUpdated       time.Time    `json:"last_updated" yaml:"-"`

	// Optional detail used by scoring and recommendations. Zero values fall
	// back to the defaults documented on the accessor methods.
	ICUCapacity      int     `json:"icu_capacity,omitempty" yaml:"icu_capacity,omitempty"`
	ICUOccupied      int     `json:"icu_occupied,omitempty" yaml:"icu_occupied,omitempty"`
	Ventilators      int     `json:"ventilators,omitempty" yaml:"ventilators,omitempty"`
	VentilatorsUsed  int     `json:"ventilators_used,omitempty" yaml:"ventilators_used,omitempty"`
	StaffAvailable   int     `json:"staff_available,omitempty" yaml:"staff_available,omitempty"`
	StaffUtilization float64 `json:"staff_utilization,omitempty" yaml:"staff_utilization,omitempty"`
	TraumaCases      int     `json:"trauma_cases,omitempty" yaml:"trauma_cases,omitempty"`
}

// ErrInvalidHospital marks a record rejected by Validate.
var ErrInvalidHospital = errors.New("invalid hospital")

// Validate checks the invariants enforced at the store boundary.
func (h HospitalState) Validate() error {
	if h.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidHospital)
	}
	if h.TotalBeds < 0 {
		return fmt.Errorf("%w: %s: total_beds must be non-negative", ErrInvalidHospital, h.ID)
	}
	if h.BedAvailability < 0 || h.BedAvailability > h.TotalBeds {
		return fmt.Errorf("%w: %s: bed_availability %d outside [0,%d]", ErrInvalidHospital, h.ID, h.BedAvailability, h.TotalBeds)
	}
	if h.ERAdmissions < 0 || h.AmbulanceArrivals < 0 {
		return fmt.Errorf("%w: %s: counters must be non-negative", ErrInvalidHospital, h.ID)
	}
	if h.Status != "" && !h.Status.Valid() {
		return fmt.Errorf("%w: %s: unknown status %q", ErrInvalidHospital, h.ID, h.Status)
	}
	return nil
}

// Normalize fills derived fields: trauma capacity defaults to roughly ten
// percent of the total beds and an empty status becomes Green.
func (h *HospitalState) Normalize() {
	if h.TraumaCapacity <= 0 {
		h.TraumaCapacity = int(math.Max(1, math.Round(float64(h.TotalBeds)*0.1)))
	}
	if h.Status == "" {
		h.Status = StatusGreen
	}
}

// Occupied returns the number of beds currently in use.
func (h HospitalState) Occupied() int {
	occ := h.TotalBeds - h.BedAvailability
	if occ < 0 {
		return 0
	}
	return occ
}

// BedOccupancyRate returns occupied/total, 1 when the hospital has no beds.
func (h HospitalState) BedOccupancyRate() float64 {
	if h.TotalBeds <= 0 {
		return 1
	}
	return float64(h.Occupied()) / float64(h.TotalBeds)
}

// StaffUtilizationRate returns the explicit utilization when set, otherwise
// ER admissions relative to staff capacity, and 0.7 when neither is known.
func (h HospitalState) StaffUtilizationRate() float64 {
	if h.StaffUtilization > 0 {
		return h.StaffUtilization
	}
	if h.StaffCapacity > 0 {
		return math.Min(1, float64(h.ERAdmissions)/float64(h.StaffCapacity))
	}
	return 0.7
}

// ICUOccupancyRate returns the ICU occupancy, 0.6 when the ICU size is unknown.
func (h HospitalState) ICUOccupancyRate() float64 {
	if h.ICUCapacity <= 0 {
		return 0.6
	}
	return float64(h.ICUOccupied) / float64(h.ICUCapacity)
}

// ICUSpare returns the number of free ICU beds.
func (h HospitalState) ICUSpare() int {
	return max(0, h.ICUCapacity-h.ICUOccupied)
}

// VentilatorSpare returns the number of free ventilators.
func (h HospitalState) VentilatorSpare() int {
	return max(0, h.Ventilators-h.VentilatorsUsed)
}

// StaffOnDuty returns the staff units available to absorb new patients.
func (h HospitalState) StaffOnDuty() int {
	if h.StaffAvailable > 0 {
		return h.StaffAvailable
	}
	return DefaultStaffAvailable
}

// Features returns the predictor feature vector for the record at time now.
func (h HospitalState) Features(now time.Time) map[string]float64 {
	return map[string]float64{
		"er_admissions":      float64(h.ERAdmissions),
		"bed_availability":   float64(h.BedAvailability),
		"ambulance_arrivals": float64(h.AmbulanceArrivals),
		"staff_capacity":     float64(h.StaffCapacity),
		"hour":               float64(now.Hour()),
		"total_beds":         float64(h.TotalBeds),
		"occupied":           float64(h.Occupied()),
		"bed_occupancy_rate": h.BedOccupancyRate(),
		"icu_occupancy_rate": h.ICUOccupancyRate(),
		"staff_utilization":  h.StaffUtilizationRate(),
		"trauma_capacity":    float64(h.TraumaCapacity),
		"trauma_cases":       float64(h.TraumaCases),
		"icu_capacity":       float64(h.ICUCapacity),
		"icu_occupied":       float64(h.ICUOccupied),
		"ventilators":        float64(h.Ventilators),
		"ventilators_used":   float64(h.VentilatorsUsed),
	}
}

// HospitalUpdate carries the fields changed by a partial update. Nil fields
// are left untouched.
type HospitalUpdate struct {
	ERAdmissions      *int    `json:"er_admissions,omitempty"`
	BedAvailability   *int    `json:"bed_availability,omitempty"`
	AmbulanceArrivals *int    `json:"ambulance_arrivals,omitempty"`
	StaffCapacity     *int    `json:"staff_capacity,omitempty"`
	Status            *Status `json:"status,omitempty"`
}

// Empty reports whether the update carries no field.
func (u HospitalUpdate) Empty() bool {
	return u.ERAdmissions == nil && u.BedAvailability == nil && u.AmbulanceArrivals == nil &&
		u.StaffCapacity == nil && u.Status == nil
}

// Apply returns a copy of h with the update merged in. LastUpdated is set to now.
func (u HospitalUpdate) Apply(h HospitalState, now time.Time) HospitalState {
	if u.ERAdmissions != nil {
		h.ERAdmissions = *u.ERAdmissions
	}
	if u.BedAvailability != nil {
		h.BedAvailability = *u.BedAvailability
	}
	if u.AmbulanceArrivals != nil {
		h.AmbulanceArrivals = *u.AmbulanceArrivals
	}
	if u.StaffCapacity != nil {
		h.StaffCapacity = *u.StaffCapacity
	}
	if u.Status != nil {
		h.Status = *u.Status
	}
	h.LastUpdated = now
	return h
}

// Clone returns a deep copy of h.
func (h HospitalState) Clone() HospitalState {
	if h.Location != nil {
		loc := *h.Location
		h.Location = &loc
	}
	return h
}
