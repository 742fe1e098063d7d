package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Scenario describes the kind of event that produced an incident.
type Scenario string

const (
	ScenarioNormal   Scenario = "normal"
	ScenarioAccident Scenario = "accident"
	ScenarioOutbreak Scenario = "outbreak"
	ScenarioFestival Scenario = "festival"
)

var scenarioByCode = map[int]Scenario{
	1: ScenarioNormal,
	2: ScenarioAccident,
	3: ScenarioOutbreak,
	4: ScenarioFestival,
}

// ScenarioFromCode converts the 1..4 wire code into a Scenario.
func ScenarioFromCode(code int) (Scenario, error) {
	s, ok := scenarioByCode[code]
	if !ok {
		return "", fmt.Errorf("unknown scenario code %d", code)
	}
	return s, nil
}

// ParseScenario accepts a scenario name (case insensitive).
func ParseScenario(name string) (Scenario, error) {
	s := Scenario(strings.ToLower(strings.TrimSpace(name)))
	switch s {
	case ScenarioNormal, ScenarioAccident, ScenarioOutbreak, ScenarioFestival:
		return s, nil
	case "":
		return ScenarioNormal, nil
	}
	return "", fmt.Errorf("unknown scenario %q", name)
}

// Code returns the wire code of the scenario.
func (s Scenario) Code() int {
	for c, v := range scenarioByCode {
		if v == s {
			return c
		}
	}
	return 1
}

// multipliers returns the (critical, stable) scaling factors.
func (s Scenario) multipliers() (float64, float64) {
	switch s {
	case ScenarioAccident:
		return 2, 1.2
	case ScenarioOutbreak:
		return 3, 3
	case ScenarioFestival:
		return 1.2, 1.4
	default:
		return 1, 1
	}
}

// Incident is a single casualty event awaiting dispatch.
type Incident struct {
	Location      string       `json:"location"`
	Coordinates   *Coordinates `json:"coordinates,omitempty"`
	CriticalCount int          `json:"critical_patients"`
	StableCount   int          `json:"stable_patients"`
	Scenario      Scenario     `json:"scenario"`
	Timestamp     time.Time    `json:"timestamp"`
}

// ApplyScenario returns the incident with patient counts scaled by the
// scenario multipliers. Halves round to even.
func (i Incident) ApplyScenario() Incident {
	cm, sm := i.Scenario.multipliers()
	i.CriticalCount = scale(i.CriticalCount, cm)
	i.StableCount = scale(i.StableCount, sm)
	return i
}

// Total returns the number of patients in the incident.
func (i Incident) Total() int { return i.CriticalCount + i.StableCount }

func scale(n int, m float64) int {
	if n <= 0 {
		return 0
	}
	f := math.RoundToEven(float64(n) * m)
	if f >= math.MaxInt {
		return math.MaxInt
	}
	return int(f)
}
