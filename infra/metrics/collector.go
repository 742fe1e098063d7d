package metrics

import (
	"context"

	"github.com/kilianp07/erbalance/core/events"
	coremetrics "github.com/kilianp07/erbalance/core/metrics"
	"github.com/kilianp07/erbalance/internal/eventbus"
)

// StartEventCollector subscribes to the status bus and records every
// transition on rec. It stops when the context is canceled or the bus closes.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[events.StatusChangeEvent], rec coremetrics.StatusTransitionRecorder) {
	if bus == nil || rec == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				_ = rec.RecordStatusTransition(coremetrics.StatusTransition{
					HospitalID: ev.HospitalID,
					From:       ev.From,
					To:         ev.To,
					Load:       ev.Load,
					Time:       ev.Time,
				})
			}
		}
	}()
}
