package dispatch

import (
	"math"
	"sort"

	"github.com/kilianp07/erbalance/core/model"
	"github.com/kilianp07/erbalance/core/prediction"
)

// Weights balances the cost terms of a hospital. Lower totals are better.
type Weights struct {
	Travel     float64 `json:"travel"`
	Admissions float64 `json:"admissions"`
	Capacity   float64 `json:"capacity"`
	Readiness  float64 `json:"readiness"`
}

// DefaultWeights returns the production weights.
func DefaultWeights() Weights {
	return Weights{Travel: 0.3, Admissions: 0.2, Capacity: 0.3, Readiness: 0.2}
}

// SetDefaults replaces an all-zero weight set by DefaultWeights.
func (w *Weights) SetDefaults() {
	if *w == (Weights{}) {
		*w = DefaultWeights()
	}
}

// Travel is the route estimate between an incident and a hospital.
type Travel struct {
	DistanceKM *float64
	Minutes    float64
}

// Scorer computes the dispatch cost of each hospital.
type Scorer struct {
	Weights Weights
}

// NewScorer returns a scorer with the given weights.
func NewScorer(w Weights) Scorer {
	w.SetDefaults()
	return Scorer{Weights: w}
}

func clip(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// CapacityScore rates the spare capacity of h on a 0-10 scale. ICU and
// trauma headroom never drop below 0.1.
func CapacityScore(h model.HospitalState) float64 {
	total := math.Max(float64(h.TotalBeds), 1)
	bedFree := math.Max(0, 1-float64(h.Occupied())/total)
	staffRoom := math.Max(0, 1-h.StaffUtilizationRate())
	icuRoom := math.Max(0.1, 1-h.ICUOccupancyRate())
	traumaUtil := math.Min(1, float64(h.TraumaCases)/math.Max(1, float64(h.TraumaCapacity)))
	traumaRoom := math.Max(0.1, 1-traumaUtil)
	score := 10*bedFree*0.4 + 10*staffRoom*0.3 + 10*icuRoom*0.2 + 10*traumaRoom*0.1
	return clip(score, 0, 10)
}

// ReadinessIndex rates how prepared h is to receive patients, in [0,1].
// Hospitals without ICU beds or ventilators get no credit for them.
func ReadinessIndex(h model.HospitalState) float64 {
	freeBed := clip(1-h.BedOccupancyRate(), 0, 1)
	var icuFree, ventFree float64
	if h.ICUCapacity > 0 {
		icuFree = clip(float64(h.ICUCapacity-h.ICUOccupied)/float64(h.ICUCapacity), 0, 1)
	}
	if h.Ventilators > 0 {
		ventFree = clip(float64(h.Ventilators-h.VentilatorsUsed)/float64(h.Ventilators), 0, 1)
	}
	staff := clip(1-h.StaffUtilizationRate(), 0, 1)
	trauma := clip(1-float64(h.TraumaCases)/math.Max(1, float64(h.TraumaCapacity)), 0, 1)
	return 0.3*freeBed + 0.25*icuFree + 0.15*ventFree + 0.2*staff + 0.1*trauma
}

// Score evaluates h for an incident. It is pure: identical inputs always
// produce identical scores.
func (s Scorer) Score(h model.HospitalState, tr Travel, pred prediction.Prediction) model.ScoredHospital {
	capScore := CapacityScore(h)
	ready := ReadinessIndex(h)
	w := s.Weights
	total := w.Travel*tr.Minutes +
		w.Admissions*pred.Admissions +
		w.Capacity*(10-capScore) +
		w.Readiness*(1-ready)
	return model.ScoredHospital{
		HospitalID:          h.ID,
		HospitalName:        h.Name,
		DistanceKM:          tr.DistanceKM,
		TravelMin:           tr.Minutes,
		PredictedAdmissions: pred.Admissions,
		PredictedICU:        pred.ICU,
		PredictedVent:       pred.Ventilators,
		CapacityScore:       capScore,
		ReadinessIndex:      ready,
		TotalScore:          total,
		Status:              h.Status,
	}
}

// SortScored orders hospitals by ascending total score, ties broken by ID.
func SortScored(s []model.ScoredHospital) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].TotalScore != s[j].TotalScore {
			return s[i].TotalScore < s[j].TotalScore
		}
		return s[i].HospitalID < s[j].HospitalID
	})
}
