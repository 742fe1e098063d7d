package prediction

import (
	"context"
	"fmt"
	"time"
)

// WithFallback runs p under timeout. On error or timeout it returns Default
// together with an error wrapping ErrUnavailable so the caller can record a
// warning while still using the prediction.
func WithFallback(ctx context.Context, p Predictor, timeout time.Duration, features map[string]float64) (Prediction, error) {
	if p == nil {
		return Default, ErrUnavailable
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	type result struct {
		pred Prediction
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		pr, err := p.Predict(ctx, features)
		ch <- result{pr, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return Default, fmt.Errorf("%w: %v", ErrUnavailable, r.err)
		}
		return r.pred, nil
	case <-ctx.Done():
		return Default, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	}
}
