package prediction

import (
	"context"
	"sync/atomic"
	"time"
)

// Mock returns a fixed prediction, or Err when set.
type Mock struct {
	Result Prediction
	Err    error
	Delay  time.Duration
	calls  atomic.Int64
}

// Predict implements Predictor.
func (m *Mock) Predict(ctx context.Context, _ map[string]float64) (Prediction, error) {
	m.calls.Add(1)
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return Prediction{}, ctx.Err()
		}
	}
	if m.Err != nil {
		return Prediction{}, m.Err
	}
	return m.Result, nil
}

// Calls returns how many times Predict was invoked.
func (m *Mock) Calls() int64 { return m.calls.Load() }
