package model

// Urgency ranks how quickly a receiving hospital has to act.
type Urgency string

const (
	UrgencyLow      Urgency = "LOW"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

// Rank orders urgencies from LOW (0) to CRITICAL (3).
func (u Urgency) Rank() int {
	switch u {
	case UrgencyCritical:
		return 3
	case UrgencyHigh:
		return 2
	case UrgencyMedium:
		return 1
	default:
		return 0
	}
}

// ScoredHospital is the per-dispatch cost evaluation of one hospital.
type ScoredHospital struct {
	HospitalID          string   `json:"hospital_id"`
	HospitalName        string   `json:"hospital_name"`
	DistanceKM          *float64 `json:"distance_km"`
	TravelMin           float64  `json:"travel_min"`
	PredictedAdmissions float64  `json:"pred_admissions"`
	PredictedICU        float64  `json:"pred_icu"`
	PredictedVent       float64  `json:"pred_vent"`
	CapacityScore       float64  `json:"capacity_score"`
	ReadinessIndex      float64  `json:"readiness_index"`
	TotalScore          float64  `json:"total_score"`
	Status              Status   `json:"status"`
}

// Recommendation lists the resources a hospital should mobilise.
type Recommendation struct {
	ExtraDoctors     int     `json:"extra_doctors"`
	ExtraSpecialists int     `json:"extra_specialists"`
	ICUShort         int     `json:"icu_short"`
	VentShort        int     `json:"vent_short"`
	OxygenCylinders  int     `json:"oxygen_cylinders"`
	BloodUnits       int     `json:"blood_units"`
	TraumaKits       int     `json:"trauma_kits"`
	Urgency          Urgency `json:"urgency"`
}

// Assignment is the number of patients routed to a hospital together with
// the preparation it needs.
type Assignment struct {
	HospitalID       string         `json:"hospital_id"`
	HospitalName     string         `json:"hospital_name"`
	AssignedCritical int            `json:"assigned_critical"`
	AssignedStable   int            `json:"assigned_stable"`
	Recommendation   Recommendation `json:"recommendation"`
}

// Total returns the number of patients assigned.
func (a Assignment) Total() int { return a.AssignedCritical + a.AssignedStable }
