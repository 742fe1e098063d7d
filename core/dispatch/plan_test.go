package dispatch

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/erbalance/core/model"
)

func TestBuildPlan(t *testing.T) {
	d := 2.5
	inc := model.Incident{Location: "Dadar", CriticalCount: 3, StableCount: 2, Scenario: model.ScenarioAccident}
	asn := []model.Assignment{{
		HospitalID:       "H001",
		HospitalName:     "KEM Hospital",
		AssignedCritical: 3,
		AssignedStable:   2,
		Recommendation: model.Recommendation{
			ExtraDoctors:     1,
			ExtraSpecialists: 2,
			ICUShort:         1,
			OxygenCylinders:  4,
			BloodUnits:       9,
			TraumaKits:       5,
			Urgency:          model.UrgencyHigh,
		},
	}}
	scores := []model.ScoredHospital{
		{HospitalID: "H001", TotalScore: 7.4567, DistanceKM: &d, TravelMin: 12},
		{HospitalID: "H002", TotalScore: 9},
	}
	p := BuildPlan(inc, asn, scores, time.Unix(0, 0))

	assert.Equal(t, PlanSummary{TotalPatients: 5, TotalCritical: 3, TotalStable: 2, HospitalsUsed: 1}, p.Summary)
	require.Len(t, p.DecisionRationale, 1)
	assert.Equal(t, 7.46, p.DecisionRationale[0].TotalScore)
	assert.Equal(t, "Notify KEM Hospital (H001) of incoming patients: 3 critical, 2 stable", p.HospitalAlerts[0].Message)
	assert.Equal(t, "KEM Hospital (H001) - 3 critical, 2 stable (2.50 km | 12.0 min)", p.AmbulanceDispatch[0].String())
	assert.Equal(t, PublicAdvisory(model.ScenarioAccident), p.PublicAdvisory)

	var actions []string
	for _, a := range p.StaffActions {
		actions = append(actions, a.Action)
	}
	assert.Equal(t, []string{
		"Prepare ER teams at KEM Hospital (H001)",
		"Mobilize +1 doctors to KEM Hospital",
		"Mobilize +2 specialists to KEM Hospital",
		"Prepare 1 ICU beds / transfer plan at KEM Hospital",
		"Prepare supplies: 4 O2 cylinders, 9 blood units, 5 trauma kits at KEM Hospital",
		"Urgency: HIGH - escalate to hospital command",
	}, actions)
	assert.True(t, strings.Contains(p.Text(), "Public advisory: Major accident nearby."))
}

func TestPublicAdvisory(t *testing.T) {
	assert.Contains(t, PublicAdvisory(model.ScenarioOutbreak), "Wear masks")
	assert.Contains(t, PublicAdvisory(model.ScenarioFestival), "first-aid booths")
	assert.Equal(t, "Moderate surge expected. Minimize hospital visits if possible.", PublicAdvisory(model.ScenarioNormal))
}
