package alert

import (
	"context"
	"sync"
	"time"

	"github.com/kilianp07/erbalance/core/logger"
)

// Notifier sends alerts in the background with a per-alert timeout.
type Notifier struct {
	sink    Sink
	log     logger.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewNotifier wraps sink. A zero timeout defaults to five seconds.
func NewNotifier(sink Sink, timeout time.Duration, log logger.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{sink: sink, log: logger.OrNop(log), timeout: timeout}
}

// Send delivers the alert asynchronously and returns immediately.
func (n *Notifier) Send(hospitalID, message string, severity Severity) {
	if n == nil || n.sink == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.sink.Notify(ctx, hospitalID, message, severity); err != nil {
			n.log.Errorf("alert %s for %s: %v", severity, hospitalID, err)
		}
	}()
}

// Wait blocks until every pending alert has been attempted.
func (n *Notifier) Wait() {
	if n != nil {
		n.wg.Wait()
	}
}
