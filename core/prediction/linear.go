package prediction

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
)

// LinearFeatures is the ordered feature set used by the linear model.
var LinearFeatures = []string{
	"er_admissions",
	"bed_availability",
	"ambulance_arrivals",
	"staff_capacity",
	"hour",
}

// Sample is one labelled training observation.
type Sample struct {
	Features map[string]float64 `json:"features"`
	Target   Prediction         `json:"target"`
}

// Linear is a multi-output linear regression fitted by least squares.
type Linear struct {
	// coef has len(LinearFeatures)+1 rows (intercept first) and 3 columns.
	coef *mat.Dense
}

// FitLinear fits a model on the samples. At least len(LinearFeatures)+1
// samples are required.
func FitLinear(samples []Sample) (*Linear, error) {
	cols := len(LinearFeatures) + 1
	if len(samples) < cols {
		return nil, fmt.Errorf("prediction: need at least %d samples, got %d", cols, len(samples))
	}
	x := mat.NewDense(len(samples), cols, nil)
	y := mat.NewDense(len(samples), 3, nil)
	for i, s := range samples {
		x.Set(i, 0, 1)
		for j, name := range LinearFeatures {
			x.Set(i, j+1, s.Features[name])
		}
		y.Set(i, 0, s.Target.Admissions)
		y.Set(i, 1, s.Target.ICU)
		y.Set(i, 2, s.Target.Ventilators)
	}
	var coef mat.Dense
	if err := coef.Solve(x, y); err != nil {
		return nil, fmt.Errorf("prediction: least squares: %w", err)
	}
	return &Linear{coef: &coef}, nil
}

// Predict implements Predictor. Negative outputs are clipped to zero.
func (l *Linear) Predict(ctx context.Context, features map[string]float64) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	if l == nil || l.coef == nil {
		return Prediction{}, ErrUnavailable
	}
	row := make([]float64, len(LinearFeatures)+1)
	row[0] = 1
	for j, name := range LinearFeatures {
		row[j+1] = features[name]
	}
	var out mat.Dense
	out.Mul(mat.NewDense(1, len(row), row), l.coef)
	return Prediction{
		Admissions:  max(0, out.At(0, 0)),
		ICU:         max(0, out.At(0, 1)),
		Ventilators: max(0, out.At(0, 2)),
	}, nil
}

// LoadSamples reads newline delimited JSON samples from path.
func LoadSamples(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var out []Sample
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var s Sample
		if err := json.Unmarshal(line, &s); err != nil {
			return nil, fmt.Errorf("prediction: decode sample: %w", err)
		}
		out = append(out, s)
	}
	return out, sc.Err()
}

// TrainFromFile loads samples from path and fits a Linear model.
func TrainFromFile(path string) (*Linear, error) {
	samples, err := LoadSamples(path)
	if err != nil {
		return nil, err
	}
	return FitLinear(samples)
}
