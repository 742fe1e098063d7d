// Package dispatch exposes the plan generation and plan history endpoints.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/kilianp07/erbalance/api/render"
	"github.com/kilianp07/erbalance/core/dispatch"
	"github.com/kilianp07/erbalance/core/logger"
	"github.com/kilianp07/erbalance/core/model"
)

const maxBody = 1 << 20

// Dispatcher produces a plan for an incident.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (dispatch.DispatchResult, error)
}

type incidentSummary struct {
	Location         string `json:"location"`
	CriticalPatients int    `json:"critical_patients"`
	StablePatients   int    `json:"stable_patients"`
	TotalPatients    int    `json:"total_patients"`
	Scenario         int    `json:"scenario"`
}

// PlanResponse is the body returned by POST /generate-plan.
type PlanResponse struct {
	RequestID       string                 `json:"request_id"`
	DispatchID      string                 `json:"dispatch_id"`
	Timestamp       time.Time              `json:"timestamp"`
	IncidentSummary incidentSummary        `json:"incident_summary"`
	Incident        model.Incident         `json:"incident"`
	Origin          model.Coordinates      `json:"origin"`
	Assignments     []model.Assignment     `json:"assignments"`
	HospitalScores  []model.ScoredHospital `json:"hospital_scores"`
	UnmetCritical   int                    `json:"unmet_critical"`
	UnmetStable     int                    `json:"unmet_stable"`
	Warnings        []dispatch.Warning     `json:"warnings,omitempty"`
	ActionPlan      dispatch.ActionPlan    `json:"action_plan"`
}

// NewPlanHandler returns the POST /generate-plan handler. Every successful
// plan increments generated when it is not nil.
func NewPlanHandler(d Dispatcher, generated *atomic.Int64, log logger.Logger) http.Handler {
	log = logger.OrNop(log)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ids := map[string]any{"request_id": requestID}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			render.Error(w, http.StatusBadRequest, "could not read request body", ids)
			return
		}
		req, problems, err := ParseRequest(body)
		switch {
		case errors.Is(err, ErrNoData):
			log.Warnf("[%s] No JSON data provided", requestID)
			render.Error(w, http.StatusBadRequest, "No JSON data provided", ids)
			return
		case err != nil:
			log.Warnf("[%s] %v", requestID, err)
			render.Error(w, http.StatusBadRequest, err.Error(), ids)
			return
		case len(problems) > 0:
			log.Warnf("[%s] Validation failed: %v", requestID, problems)
			render.Error(w, http.StatusBadRequest, "Validation failed", map[string]any{"details": problems, "request_id": requestID})
			return
		}

		res, err := d.Dispatch(r.Context(), req)
		if err != nil {
			var ve *dispatch.ValidationError
			if errors.As(err, &ve) {
				render.Error(w, http.StatusBadRequest, "Validation failed", map[string]any{"details": ve.Problems, "request_id": requestID})
				return
			}
			log.Errorf("[%s] dispatch failed: %v", requestID, err)
			render.Error(w, http.StatusInternalServerError, "An internal server error occurred", ids)
			return
		}
		if generated != nil {
			generated.Add(1)
		}
		log.Infof("[%s] generated plan %s for %d patients", requestID, res.ID, res.Plan.Summary.TotalPatients)
		render.JSON(w, http.StatusOK, PlanResponse{
			RequestID:  requestID,
			DispatchID: res.ID,
			Timestamp:  res.GeneratedAt,
			IncidentSummary: incidentSummary{
				Location:         req.Location,
				CriticalPatients: req.CriticalPatients,
				StablePatients:   req.StablePatients,
				TotalPatients:    req.CriticalPatients + req.StablePatients,
				Scenario:         req.Scenario,
			},
			Incident:       res.Incident,
			Origin:         res.Origin,
			Assignments:    res.Assignments,
			HospitalScores: res.UsedScores(),
			UnmetCritical:  res.UnmetCritical,
			UnmetStable:    res.UnmetStable,
			Warnings:       res.Warnings,
			ActionPlan:     res.Plan,
		})
	})
}

var (
	// ErrNoData is returned for an empty body or an empty JSON object.
	ErrNoData = errors.New("no JSON data provided")
	// ErrInvalidJSON is returned when the body is not a JSON object.
	ErrInvalidJSON = errors.New("invalid JSON format")
)

// ParseRequest decodes a plan request and checks field presence and types
// on the raw document, so a missing count and a fractional count are
// reported differently. Coordinates may be sent either as
// {"coordinates":{"lat":..,"lon":..}} or as top level latitude/longitude.
func ParseRequest(body []byte) (dispatch.Request, []string, error) {
	var req dispatch.Request
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return req, nil, ErrNoData
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return req, nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if len(raw) == 0 {
		return req, nil, ErrNoData
	}

	var problems []string
	loc, _ := raw["location"].(string)
	req.Location = strings.TrimSpace(loc)
	if req.Location == "" {
		problems = append(problems, "location is required and cannot be empty")
	}
	intField := func(name string, check func(int64) []string) (int, bool) {
		v, ok := raw[name]
		if !ok || v == nil {
			problems = append(problems, name+" is required")
			return 0, false
		}
		n, ok := v.(json.Number)
		if !ok {
			problems = append(problems, check(-1)...)
			return 0, false
		}
		i, err := n.Int64()
		if err != nil {
			problems = append(problems, check(-1)...)
			return 0, false
		}
		if p := check(i); len(p) > 0 {
			problems = append(problems, p...)
			return 0, false
		}
		return int(i), true
	}
	patients := func(name string) func(int64) []string {
		return func(i int64) []string {
			if i > dispatch.MaxPatients {
				return dispatch.CheckPatients(name, dispatch.MaxPatients+1)
			}
			return dispatch.CheckPatients(name, int(i))
		}
	}
	if n, ok := intField("critical_patients", patients("critical_patients")); ok {
		req.CriticalPatients = n
	}
	if n, ok := intField("stable_patients", patients("stable_patients")); ok {
		req.StablePatients = n
	}
	if n, ok := intField("scenario", func(i int64) []string {
		if i < 1 || i > 4 {
			return []string{"scenario must be an integer between 1 and 4"}
		}
		return nil
	}); ok {
		req.Scenario = n
	}

	if c, ok := coordinates(raw); ok {
		req.Coordinates = &c
	}
	return req, problems, nil
}

func coordinates(raw map[string]any) (model.Coordinates, bool) {
	num := func(v any) (float64, bool) {
		n, ok := v.(json.Number)
		if !ok {
			return 0, false
		}
		f, err := n.Float64()
		return f, err == nil
	}
	if m, ok := raw["coordinates"].(map[string]any); ok {
		lat, okLat := num(m["lat"])
		lon, okLon := num(m["lon"])
		if okLat && okLon {
			return model.Coordinates{Lat: lat, Lon: lon}, true
		}
	}
	lat, okLat := num(raw["latitude"])
	lon, okLon := num(raw["longitude"])
	if okLat && okLon {
		return model.Coordinates{Lat: lat, Lon: lon}, true
	}
	return model.Coordinates{}, false
}
