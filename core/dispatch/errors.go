package dispatch

import (
	"errors"
	"strings"
)

var (
	// ErrPredictorUnavailable marks a hospital scored with the default prediction.
	ErrPredictorUnavailable = errors.New("dispatch: predictor unavailable")
	// ErrGeoResolution marks an incident located at the fallback center.
	ErrGeoResolution = errors.New("dispatch: incident location could not be resolved")
	// ErrCapacityExhausted marks a dispatch that left patients unassigned.
	ErrCapacityExhausted = errors.New("dispatch: fleet capacity exhausted")
)

// ValidationError lists the problems found in a request. It is the only
// error that rejects a dispatch before scoring.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// Warning codes carried in DispatchResult.Warnings.
const (
	WarnPredictorFallback = "predictor_fallback"
	WarnGeoFallback       = "geo_fallback"
	WarnCapacityExhausted = "capacity_exhausted"
)

// Warning is a non fatal degradation that happened during a dispatch.
type Warning struct {
	Code       string `json:"code"`
	HospitalID string `json:"hospital_id,omitempty"`
	Message    string `json:"message"`
}

// warningFor maps an error kind to its warning code.
func warningFor(err error, hospitalID string) Warning {
	w := Warning{HospitalID: hospitalID, Message: err.Error()}
	switch {
	case errors.Is(err, ErrPredictorUnavailable):
		w.Code = WarnPredictorFallback
	case errors.Is(err, ErrGeoResolution):
		w.Code = WarnGeoFallback
	case errors.Is(err, ErrCapacityExhausted):
		w.Code = WarnCapacityExhausted
	default:
		w.Code = "unknown"
	}
	return w
}
