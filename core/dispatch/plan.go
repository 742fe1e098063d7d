package dispatch

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kilianp07/erbalance/core/model"
)

// PlanSummary counts the patients covered by a plan.
type PlanSummary struct {
	TotalPatients int `json:"total_patients"`
	TotalCritical int `json:"total_critical"`
	TotalStable   int `json:"total_stable"`
	HospitalsUsed int `json:"hospitals_used"`
}

// RationaleEntry explains why a hospital was chosen.
type RationaleEntry struct {
	HospitalID   string  `json:"hospital_id"`
	HospitalName string  `json:"hospital_name"`
	TotalScore   float64 `json:"total_score"`
}

// AmbulanceOrder routes ambulances to a hospital.
type AmbulanceOrder struct {
	HospitalID   string   `json:"hospital_id"`
	HospitalName string   `json:"hospital_name"`
	Critical     int      `json:"critical"`
	Stable       int      `json:"stable"`
	DistanceKM   *float64 `json:"distance_km"`
	TravelMin    float64  `json:"travel_min"`
}

// String renders the order as a dispatch line.
func (o AmbulanceOrder) String() string {
	line := fmt.Sprintf("%s (%s) - %d critical, %d stable", o.HospitalName, o.HospitalID, o.Critical, o.Stable)
	var extra []string
	if o.DistanceKM != nil {
		extra = append(extra, fmt.Sprintf("%.2f km", *o.DistanceKM))
	}
	extra = append(extra, fmt.Sprintf("%.1f min", o.TravelMin))
	return line + " (" + strings.Join(extra, " | ") + ")"
}

// HospitalAlert is the message sent to a receiving hospital.
type HospitalAlert struct {
	HospitalID   string `json:"hospital_id"`
	HospitalName string `json:"hospital_name"`
	Message      string `json:"message"`
}

// StaffAction is one preparation step for a hospital.
type StaffAction struct {
	HospitalID   string `json:"hospital_id"`
	HospitalName string `json:"hospital_name"`
	Action       string `json:"action"`
}

// ActionPlan is the human readable operational plan of a dispatch.
type ActionPlan struct {
	IncidentLocation  string           `json:"incident_location"`
	Scenario          model.Scenario   `json:"scenario"`
	Summary           PlanSummary      `json:"summary"`
	DecisionRationale []RationaleEntry `json:"decision_rationale"`
	AmbulanceDispatch []AmbulanceOrder `json:"ambulance_dispatch"`
	HospitalAlerts    []HospitalAlert  `json:"hospital_alerts"`
	StaffActions      []StaffAction    `json:"staff_actions"`
	PublicAdvisory    string           `json:"public_advisory"`
	GeneratedAt       time.Time        `json:"generated_at"`
}

// PublicAdvisory returns the message broadcast to the public for a scenario.
func PublicAdvisory(s model.Scenario) string {
	switch s {
	case model.ScenarioAccident:
		return "Major accident nearby. Please avoid the area and allow ambulances to pass."
	case model.ScenarioOutbreak:
		return "Outbreak detected. Wear masks, practice hand hygiene and avoid unnecessary hospital visits."
	case model.ScenarioFestival:
		return "Festival surge expected. Use on-site first-aid booths for minor injuries and avoid crowded hospital lobbies."
	default:
		return "Moderate surge expected. Minimize hospital visits if possible."
	}
}

// AlertMessage is the notification text for a receiving hospital.
func AlertMessage(a model.Assignment) string {
	return fmt.Sprintf("Notify %s (%s) of incoming patients: %d critical, %d stable",
		a.HospitalName, a.HospitalID, a.AssignedCritical, a.AssignedStable)
}

// staffActions lists the preparation steps implied by a recommendation.
func staffActions(a model.Assignment) []string {
	name := a.HospitalName
	r := a.Recommendation
	acts := []string{fmt.Sprintf("Prepare ER teams at %s (%s)", name, a.HospitalID)}
	if r.ExtraDoctors > 0 {
		acts = append(acts, fmt.Sprintf("Mobilize +%d doctors to %s", r.ExtraDoctors, name))
	}
	if r.ExtraSpecialists > 0 {
		acts = append(acts, fmt.Sprintf("Mobilize +%d specialists to %s", r.ExtraSpecialists, name))
	}
	if r.ICUShort > 0 {
		acts = append(acts, fmt.Sprintf("Prepare %d ICU beds / transfer plan at %s", r.ICUShort, name))
	}
	if r.VentShort > 0 {
		acts = append(acts, fmt.Sprintf("Ensure %d ventilators available at %s", r.VentShort, name))
	}
	var supplies []string
	if r.OxygenCylinders > 0 {
		supplies = append(supplies, fmt.Sprintf("%d O2 cylinders", r.OxygenCylinders))
	}
	if r.BloodUnits > 0 {
		supplies = append(supplies, fmt.Sprintf("%d blood units", r.BloodUnits))
	}
	if r.TraumaKits > 0 {
		supplies = append(supplies, fmt.Sprintf("%d trauma kits", r.TraumaKits))
	}
	if len(supplies) > 0 {
		acts = append(acts, fmt.Sprintf("Prepare supplies: %s at %s", strings.Join(supplies, ", "), name))
	}
	if r.Urgency.Rank() >= model.UrgencyHigh.Rank() {
		acts = append(acts, fmt.Sprintf("Urgency: %s - escalate to hospital command", r.Urgency))
	}
	return acts
}

// BuildPlan assembles the action plan for a scaled incident.
func BuildPlan(inc model.Incident, assignments []model.Assignment, scores []model.ScoredHospital, now time.Time) ActionPlan {
	byID := make(map[string]model.ScoredHospital, len(scores))
	for _, s := range scores {
		byID[s.HospitalID] = s
	}
	p := ActionPlan{
		IncidentLocation: inc.Location,
		Scenario:         inc.Scenario,
		Summary: PlanSummary{
			TotalPatients: inc.Total(),
			TotalCritical: inc.CriticalCount,
			TotalStable:   inc.StableCount,
			HospitalsUsed: len(assignments),
		},
		DecisionRationale: make([]RationaleEntry, 0, len(assignments)),
		AmbulanceDispatch: make([]AmbulanceOrder, 0, len(assignments)),
		HospitalAlerts:    make([]HospitalAlert, 0, len(assignments)),
		PublicAdvisory:    PublicAdvisory(inc.Scenario),
		GeneratedAt:       now,
	}
	for _, a := range assignments {
		s := byID[a.HospitalID]
		p.DecisionRationale = append(p.DecisionRationale, RationaleEntry{
			HospitalID:   a.HospitalID,
			HospitalName: a.HospitalName,
			TotalScore:   math.Round(s.TotalScore*100) / 100,
		})
		p.AmbulanceDispatch = append(p.AmbulanceDispatch, AmbulanceOrder{
			HospitalID:   a.HospitalID,
			HospitalName: a.HospitalName,
			Critical:     a.AssignedCritical,
			Stable:       a.AssignedStable,
			DistanceKM:   s.DistanceKM,
			TravelMin:    s.TravelMin,
		})
		p.HospitalAlerts = append(p.HospitalAlerts, HospitalAlert{
			HospitalID:   a.HospitalID,
			HospitalName: a.HospitalName,
			Message:      AlertMessage(a),
		})
		for _, act := range staffActions(a) {
			p.StaffActions = append(p.StaffActions, StaffAction{HospitalID: a.HospitalID, HospitalName: a.HospitalName, Action: act})
		}
	}
	return p
}

// Text renders the plan for terminals and logs.
func (p ActionPlan) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Incident at %s | Scenario: %s\n", p.IncidentLocation, p.Scenario)
	fmt.Fprintf(&b, "Patients: %d total (%d critical, %d stable)\n", p.Summary.TotalPatients, p.Summary.TotalCritical, p.Summary.TotalStable)
	b.WriteString("\nDecision rationale:\n")
	for _, r := range p.DecisionRationale {
		fmt.Fprintf(&b, "  - %s (%s): score %.2f (lower is better)\n", r.HospitalName, r.HospitalID, r.TotalScore)
	}
	b.WriteString("\nAmbulance dispatch:\n")
	for _, o := range p.AmbulanceDispatch {
		fmt.Fprintf(&b, "  -> %s\n", o)
	}
	b.WriteString("\nHospital alerts:\n")
	for _, a := range p.HospitalAlerts {
		fmt.Fprintf(&b, "  - %s\n", a.Message)
	}
	b.WriteString("\nStaff actions:\n")
	for _, s := range p.StaffActions {
		fmt.Fprintf(&b, "  - %s\n", s.Action)
	}
	fmt.Fprintf(&b, "\nPublic advisory: %s\n", p.PublicAdvisory)
	return b.String()
}
