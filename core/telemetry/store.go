// Package telemetry holds the live hospital state table written by the
// simulator and operator updates and read as snapshots by the dispatcher.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/erbalance/core/model"
)

// ErrNotFound is returned for unknown hospital IDs.
var ErrNotFound = errors.New("telemetry: hospital not found")

// Mutator derives an update from the current record. It runs while the
// record is locked and must not block.
type Mutator func(cur model.HospitalState) model.HospitalUpdate

// Store is the hospital state table.
type Store interface {
	// ListAll returns a deep copy of every record sorted by ID.
	ListAll(ctx context.Context) ([]model.HospitalState, error)
	Get(ctx context.Context, id string) (model.HospitalState, bool, error)
	// ApplyPartialUpdate merges u into the record atomically and returns the
	// committed state. The merged record must pass Validate.
	ApplyPartialUpdate(ctx context.Context, id string, u model.HospitalUpdate) (model.HospitalState, error)
	// Modify applies the update fn derives from the current record in the
	// same atomic step and returns the record before and after. An empty
	// update leaves the record untouched.
	Modify(ctx context.Context, id string, fn Mutator) (before, after model.HospitalState, err error)
	Upsert(ctx context.Context, h model.HospitalState) error
}

// Filter narrows a listing.
type Filter struct {
	Status model.Status
}

// Match reports whether h passes the filter.
func (f Filter) Match(h model.HospitalState) bool {
	return f.Status == "" || h.Status == f.Status
}

// Apply returns the records matching f.
func (f Filter) Apply(in []model.HospitalState) []model.HospitalState {
	if f.Status == "" {
		return in
	}
	out := make([]model.HospitalState, 0, len(in))
	for _, h := range in {
		if f.Match(h) {
			out = append(out, h)
		}
	}
	return out
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]model.HospitalState
	now  func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]model.HospitalState{}, now: time.Now}
}

// Upsert inserts or replaces h after normalizing and validating it.
func (s *MemoryStore) Upsert(_ context.Context, h model.HospitalState) error {
	h.Normalize()
	if err := h.Validate(); err != nil {
		return err
	}
	if h.LastUpdated.IsZero() {
		h.LastUpdated = s.now()
	}
	s.mu.Lock()
	s.data[h.ID] = h.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.HospitalState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.data[id]
	if !ok {
		return model.HospitalState{}, false, nil
	}
	return h.Clone(), true, nil
}

func (s *MemoryStore) ListAll(_ context.Context) ([]model.HospitalState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.HospitalState, 0, len(s.data))
	for _, h := range s.data {
		res = append(res, h.Clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *MemoryStore) ApplyPartialUpdate(ctx context.Context, id string, u model.HospitalUpdate) (model.HospitalState, error) {
	_, next, err := s.Modify(ctx, id, Set(u))
	return next, err
}

func (s *MemoryStore) Modify(_ context.Context, id string, fn Mutator) (model.HospitalState, model.HospitalState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.data[id]
	if !ok {
		return model.HospitalState{}, model.HospitalState{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next, changed, err := Merge(cur, fn, s.now())
	if err != nil || !changed {
		return cur.Clone(), cur.Clone(), err
	}
	s.data[id] = next
	return cur.Clone(), next.Clone(), nil
}

// Set returns a Mutator applying u regardless of the current record.
func Set(u model.HospitalUpdate) Mutator {
	return func(model.HospitalState) model.HospitalUpdate { return u }
}

// Merge runs fn against cur and validates the result. It reports false when
// fn returned an empty update.
func Merge(cur model.HospitalState, fn Mutator, now time.Time) (model.HospitalState, bool, error) {
	u := fn(cur.Clone())
	if u.Empty() {
		return cur, false, nil
	}
	next := u.Apply(cur, now)
	if err := next.Validate(); err != nil {
		return cur, false, err
	}
	return next, true, nil
}

// Seed upserts every record in hs.
func Seed(ctx context.Context, s Store, hs []model.HospitalState) error {
	for _, h := range hs {
		if err := s.Upsert(ctx, h); err != nil {
			return fmt.Errorf("seed %s: %w", h.ID, err)
		}
	}
	return nil
}
