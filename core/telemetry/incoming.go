package telemetry

import (
	"sync"
	"time"
)

// IncomingCounter tracks patients committed to each hospital by dispatch
// and still in transit. The simulator uses it as a soft floor for free
// beds; nothing is reserved. Batches leave the counter when the hospital
// admits them or once their arrival deadline has passed.
type IncomingCounter struct {
	mu      sync.Mutex
	batches map[string][]incomingBatch
}

type incomingBatch struct {
	n   int
	due time.Time
}

// NewIncomingCounter returns an empty counter.
func NewIncomingCounter() *IncomingCounter {
	return &IncomingCounter{batches: map[string][]incomingBatch{}}
}

// Add records n patients heading to id, expected by due.
func (c *IncomingCounter) Add(id string, n int, due time.Time) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.batches[id] = append(c.batches[id], incomingBatch{n: n, due: due})
	c.mu.Unlock()
}

// Release removes up to n patients for id once they are admitted, oldest
// batch first.
func (c *IncomingCounter) Release(id string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	bs := c.batches[id]
	for len(bs) > 0 && n > 0 {
		if bs[0].n > n {
			bs[0].n -= n
			break
		}
		n -= bs[0].n
		bs = bs[1:]
	}
	if len(bs) == 0 {
		delete(c.batches, id)
		return
	}
	c.batches[id] = bs
}

// Expire drops every batch whose deadline is before now.
func (c *IncomingCounter) Expire(now time.Time) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, bs := range c.batches {
		kept := bs[:0]
		for _, b := range bs {
			if !b.due.Before(now) {
				kept = append(kept, b)
			}
		}
		if len(kept) == 0 {
			delete(c.batches, id)
			continue
		}
		c.batches[id] = kept
	}
}

// Get returns the committed count for id.
func (c *IncomingCounter) Get(id string) int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, b := range c.batches[id] {
		total += b.n
	}
	return total
}
