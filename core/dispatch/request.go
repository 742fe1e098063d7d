package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/erbalance/core/model"
)

// MaxPatients bounds each patient count of a request. Scenario multipliers
// stay far from integer overflow below it.
const MaxPatients = 1_000_000

// Request is an incident as submitted by a dispatcher.
type Request struct {
	Location         string             `json:"location"`
	CriticalPatients int                `json:"critical_patients"`
	StablePatients   int                `json:"stable_patients"`
	Scenario         int                `json:"scenario"`
	Coordinates      *model.Coordinates `json:"coordinates,omitempty"`
	Timestamp        time.Time          `json:"timestamp,omitempty"`
}

// Validate returns a *ValidationError describing every invalid field.
func (r Request) Validate() error {
	var problems []string
	if strings.TrimSpace(r.Location) == "" {
		problems = append(problems, "location is required and cannot be empty")
	}
	problems = append(problems, CheckPatients("critical_patients", r.CriticalPatients)...)
	problems = append(problems, CheckPatients("stable_patients", r.StablePatients)...)
	if r.Scenario < 1 || r.Scenario > 4 {
		problems = append(problems, "scenario must be an integer between 1 and 4")
	}
	if c := r.Coordinates; c != nil && (c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180) {
		problems = append(problems, "coordinates out of range")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// CheckPatients reports why n is not an acceptable count for field.
func CheckPatients(field string, n int) []string {
	switch {
	case n < 0:
		return []string{field + " must be a non-negative integer"}
	case n > MaxPatients:
		return []string{fmt.Sprintf("%s must not exceed %d", field, MaxPatients)}
	}
	return nil
}

// Incident converts a validated request into an unscaled incident.
func (r Request) Incident(now time.Time) model.Incident {
	sc, err := model.ScenarioFromCode(r.Scenario)
	if err != nil {
		sc = model.ScenarioNormal
	}
	ts := r.Timestamp
	if ts.IsZero() {
		ts = now
	}
	return model.Incident{
		Location:      strings.TrimSpace(r.Location),
		Coordinates:   r.Coordinates,
		CriticalCount: r.CriticalPatients,
		StableCount:   r.StablePatients,
		Scenario:      sc,
		Timestamp:     ts,
	}
}
