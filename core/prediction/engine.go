package prediction

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no prediction could be produced in time.
var ErrUnavailable = errors.New("prediction: predictor unavailable")

// Prediction is the expected demand for one hospital.
type Prediction struct {
	Admissions  float64 `json:"admissions"`
	ICU         float64 `json:"icu"`
	Ventilators float64 `json:"ventilators"`
}

// Default is the small positive prediction used when the model fails.
var Default = Prediction{Admissions: 2, ICU: 1, Ventilators: 0.5}

// Predictor estimates hospital demand from a feature vector.
type Predictor interface {
	Predict(ctx context.Context, features map[string]float64) (Prediction, error)
}

// Func adapts a plain function to the Predictor interface.
type Func func(ctx context.Context, features map[string]float64) (Prediction, error)

// Predict calls f.
func (f Func) Predict(ctx context.Context, features map[string]float64) (Prediction, error) {
	return f(ctx, features)
}
