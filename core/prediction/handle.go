package prediction

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Loader builds a fresh predictor, e.g. by retraining from disk.
type Loader func(ctx context.Context) (Predictor, error)

type boxed struct{ p Predictor }

// Handle is a shared predictor that can be swapped at runtime. It is safe
// for concurrent use by the dispatcher and the simulator.
type Handle struct {
	cur     atomic.Pointer[boxed]
	loader  Loader
	version atomic.Int64
}

// NewHandle loads the initial predictor using loader.
func NewHandle(ctx context.Context, loader Loader) (*Handle, error) {
	if loader == nil {
		return nil, fmt.Errorf("prediction: nil loader")
	}
	h := &Handle{loader: loader}
	if err := h.Reload(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Static wraps an existing predictor in a Handle whose Reload is a no-op swap.
func Static(p Predictor) *Handle {
	h := &Handle{loader: func(context.Context) (Predictor, error) { return p, nil }}
	h.cur.Store(&boxed{p: p})
	h.version.Store(1)
	return h
}

// Reload rebuilds the predictor and swaps it in. The previous model keeps
// serving when the loader fails.
func (h *Handle) Reload(ctx context.Context) error {
	p, err := h.loader(ctx)
	if err != nil {
		return fmt.Errorf("prediction: reload: %w", err)
	}
	if p == nil {
		return fmt.Errorf("prediction: reload returned nil predictor")
	}
	h.cur.Store(&boxed{p: p})
	h.version.Add(1)
	return nil
}

// Version returns the number of successful loads.
func (h *Handle) Version() int64 { return h.version.Load() }

// Predict implements Predictor using the current model.
func (h *Handle) Predict(ctx context.Context, features map[string]float64) (Prediction, error) {
	b := h.cur.Load()
	if b == nil {
		return Prediction{}, ErrUnavailable
	}
	return b.p.Predict(ctx, features)
}
