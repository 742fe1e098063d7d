package prediction

import "context"

// Heuristic is the rule based congestion model. The load index weighs ER
// admissions, missing beds, ambulance arrivals and missing staff, with a 10%
// surcharge at night.
type Heuristic struct {
	// ICURatio and VentRatio derive ICU and ventilator demand from the load.
	ICURatio  float64
	VentRatio float64
}

// NewHeuristic returns a heuristic predictor with default ratios.
func NewHeuristic() Heuristic {
	return Heuristic{ICURatio: 0.03, VentRatio: 0.01}
}

// Load computes the congestion index from the raw features.
func Load(features map[string]float64) float64 {
	er := features["er_admissions"]
	beds := features["bed_availability"]
	amb := features["ambulance_arrivals"]
	staff := features["staff_capacity"]
	load := er*0.8 + (100-beds)*0.5 + amb*2 + (200-staff)*0.2
	if h, ok := features["hour"]; ok && (h > 18 || h < 6) {
		load *= 1.1
	}
	if load < 0 {
		return 0
	}
	return load
}

// Predict implements Predictor.
func (h Heuristic) Predict(ctx context.Context, features map[string]float64) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	load := Load(features)
	return Prediction{
		Admissions:  load,
		ICU:         load * h.ICURatio,
		Ventilators: load * h.VentRatio,
	}, nil
}
