package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kilianp07/erbalance/core/events"
	"github.com/kilianp07/erbalance/core/logger"
	"github.com/kilianp07/erbalance/core/metrics"
	"github.com/kilianp07/erbalance/core/model"
	"github.com/kilianp07/erbalance/core/monitoring"
	"github.com/kilianp07/erbalance/core/prediction"
	"github.com/kilianp07/erbalance/core/telemetry"
	"github.com/kilianp07/erbalance/internal/eventbus"
)

// ErrSimulatorTransient marks a store failure that is retried with backoff.
var ErrSimulatorTransient = errors.New("simulation: transient store failure")

// TickReport summarises one pass over the fleet.
type TickReport struct {
	Hospitals     int
	Updated       int
	StatusChanges int
	Failed        int
}

// Simulator is the single writer of hospital state.
type Simulator struct {
	store telemetry.Store
	pred  prediction.Predictor
	cfg   Config
	log   logger.Logger

	mu       sync.Mutex
	rng      *rand.Rand
	incoming *telemetry.IncomingCounter
	sink     metrics.HospitalStateRecorder
	bus      eventbus.Publisher[events.StatusChangeEvent]
	now      func() time.Time
}

// New creates a simulator. A zero cfg.Seed seeds from the clock.
func New(store telemetry.Store, pred prediction.Predictor, cfg Config, log logger.Logger) (*Simulator, error) {
	if store == nil || pred == nil {
		return nil, fmt.Errorf("simulation: nil parameter provided to New")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		store: store,
		pred:  pred,
		cfg:   cfg,
		log:   logger.OrNop(log),
		rng:   rand.New(rand.NewSource(seed)),
		now:   time.Now,
	}, nil
}

// SetIncomingCounter configures the committed patient counts used as the
// bed availability floor.
func (s *Simulator) SetIncomingCounter(c *telemetry.IncomingCounter) {
	s.mu.Lock()
	s.incoming = c
	s.mu.Unlock()
}

// SetStateRecorder configures the sink receiving a snapshot per update.
func (s *Simulator) SetStateRecorder(r metrics.HospitalStateRecorder) {
	s.mu.Lock()
	s.sink = r
	s.mu.Unlock()
}

// SetEventBus configures the bus receiving status transitions.
func (s *Simulator) SetEventBus(b eventbus.Publisher[events.StatusChangeEvent]) {
	s.mu.Lock()
	s.bus = b
	s.mu.Unlock()
}

// SetClock overrides the time source, used by tests.
func (s *Simulator) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Run ticks until ctx is cancelled. Failed ticks are logged and reported,
// they never stop the loop.
func (s *Simulator) Run(ctx context.Context) {
	defer monitoring.Recover()
	ticker := time.NewTicker(s.cfg.Interval())
	defer ticker.Stop()
	s.log.Infof("simulator started, interval %s", s.cfg.Interval())
	for {
		select {
		case <-ticker.C:
			rep, err := s.Tick(ctx)
			if err != nil && ctx.Err() == nil {
				s.log.Errorf("simulation tick: %v", err)
				monitoring.Capture(err, "simulation", "")
				continue
			}
			s.log.Debugw("simulation tick", map[string]any{
				"hospitals": rep.Hospitals,
				"updated":   rep.Updated,
				"changes":   rep.StatusChanges,
				"failed":    rep.Failed,
			})
		case <-ctx.Done():
			s.log.Infof("simulator stopped")
			return
		}
	}
}

// Tick applies one random walk step to every hospital.
func (s *Simulator) Tick(ctx context.Context) (TickReport, error) {
	var rep TickReport
	var fleet []model.HospitalState
	err := s.retry(ctx, func() error {
		var err error
		fleet, err = s.store.ListAll(ctx)
		if err != nil {
			return fmt.Errorf("%w: list hospitals: %v", ErrSimulatorTransient, err)
		}
		return nil
	})
	if err != nil {
		simulationErrors.WithLabelValues("store").Inc()
		return rep, err
	}
	rep.Hospitals = len(fleet)

	s.mu.Lock()
	now := s.now()
	incoming := s.incoming
	sink := s.sink
	bus := s.bus
	s.mu.Unlock()

	incoming.Expire(now)
	for _, h := range fleet {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		before, updated, changed, err := s.advance(ctx, h.ID, s.draw(), incoming)
		if err != nil {
			rep.Failed++
			simulationErrors.WithLabelValues("store").Inc()
			s.log.Errorf("simulation: hospital %s: %v", h.ID, err)
			monitoring.Capture(err, "simulation", h.ID)
			continue
		}
		if !changed {
			continue
		}
		if arrived := updated.ERAdmissions - before.ERAdmissions; arrived > 0 {
			incoming.Release(h.ID, arrived)
		}
		load := s.classify(ctx, &updated, now)
		rep.Updated++
		hospitalStatus.WithLabelValues(updated.ID).Set(statusValue(updated.Status))
		if sink != nil {
			ev := metrics.HospitalStateEvent{Hospital: updated, Load: load, Component: "simulation", Time: now}
			if err := sink.RecordHospitalState(ev); err != nil {
				s.log.Errorf("metrics error: %v", err)
			}
		}
		if updated.Status != before.Status {
			rep.StatusChanges++
			s.log.Infof("hospital %s status %s -> %s (load %.1f)", h.ID, before.Status, updated.Status, load)
			if bus != nil {
				bus.Publish(events.StatusChangeEvent{
					HospitalID: h.ID,
					Name:       updated.Name,
					From:       before.Status,
					To:         updated.Status,
					Load:       load,
					Time:       now,
				})
			}
		}
	}
	simulationTicks.Inc()
	return rep, nil
}

type tickDraw struct {
	admit     bool
	admDelta  int
	ambulance bool
	ambDelta  int
}

func (s *Simulator) draw() tickDraw {
	s.mu.Lock()
	defer s.mu.Unlock()
	var d tickDraw
	if s.rng.Float64() < s.cfg.AdmissionProb {
		d.admit = true
		d.admDelta = s.cfg.AdmissionMin + s.rng.Intn(s.cfg.AdmissionMax-s.cfg.AdmissionMin+1)
	}
	if s.rng.Float64() < s.cfg.AmbulanceProb {
		d.ambulance = true
		d.ambDelta = s.cfg.AmbulanceMin + s.rng.Intn(s.cfg.AmbulanceMax-s.cfg.AmbulanceMin+1)
	}
	return d
}

// advance applies the drawn walk to the current record of id. The walk is
// computed inside the store's atomic step so concurrent writes from the
// API or the MQTT feed are kept.
func (s *Simulator) advance(ctx context.Context, id string, d tickDraw, incoming *telemetry.IncomingCounter) (model.HospitalState, model.HospitalState, bool, error) {
	var before, after model.HospitalState
	var changed bool
	err := s.retry(ctx, func() error {
		var err error
		before, after, err = s.store.Modify(ctx, id, func(cur model.HospitalState) model.HospitalUpdate {
			u := walk(cur, d, incoming.Get(id))
			changed = !u.Empty()
			return u
		})
		return classifyStoreErr(err, id)
	})
	return before, after, changed && err == nil, err
}

// walk turns a draw into an update for h. Beds follow admissions, but while
// patients are in transit they cannot drop below that count, and the floor
// never frees beds that are not already free.
func walk(h model.HospitalState, d tickDraw, committed int) model.HospitalUpdate {
	var u model.HospitalUpdate
	if d.admit {
		er := max(0, h.ERAdmissions+d.admDelta)
		if er != h.ERAdmissions {
			floor := min(committed, h.BedAvailability)
			beds := min(max(h.BedAvailability-(er-h.ERAdmissions), floor), h.TotalBeds)
			u.ERAdmissions = &er
			if beds != h.BedAvailability {
				u.BedAvailability = &beds
			}
		}
	}
	if d.ambulance {
		amb := max(0, h.AmbulanceArrivals+d.ambDelta)
		if amb != h.AmbulanceArrivals {
			u.AmbulanceArrivals = &amb
		}
	}
	return u
}

// classify predicts the load of the committed record and stores the new
// status when it changed. The returned load is zero when the predictor was
// unavailable, in which case the status is kept.
func (s *Simulator) classify(ctx context.Context, h *model.HospitalState, now time.Time) float64 {
	timeout := time.Duration(s.cfg.PredictorTimeout) * time.Second
	pred, err := prediction.WithFallback(ctx, s.pred, timeout, h.Features(now))
	if err != nil {
		simulationErrors.WithLabelValues("predictor").Inc()
		s.log.Warnf("simulation: hospital %s keeps status %s: %v", h.ID, h.Status, err)
		return 0
	}
	status := model.ClassifyStatus(pred.Admissions)
	if status == h.Status {
		return pred.Admissions
	}
	var updated model.HospitalState
	err = s.retry(ctx, func() error {
		var err error
		updated, err = s.store.ApplyPartialUpdate(ctx, h.ID, model.HospitalUpdate{Status: &status})
		return classifyStoreErr(err, h.ID)
	})
	if err != nil {
		simulationErrors.WithLabelValues("store").Inc()
		s.log.Errorf("simulation: hospital %s status: %v", h.ID, err)
		monitoring.Capture(err, "simulation", h.ID)
		return pred.Admissions
	}
	*h = updated
	return pred.Admissions
}

// classifyStoreErr marks store failures worth retrying. Missing and invalid
// records never succeed on a second attempt.
func classifyStoreErr(err error, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, telemetry.ErrNotFound), errors.Is(err, model.ErrInvalidHospital):
		return err
	default:
		return fmt.Errorf("%w: update %s: %v", ErrSimulatorTransient, id, err)
	}
}

// retry runs op with bounded exponential backoff. Only errors wrapping
// ErrSimulatorTransient are retried.
func (s *Simulator) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = time.Duration(s.cfg.BackoffMaxSeconds * float64(time.Second))
	policy := backoff.WithContext(backoff.WithMaxRetries(b, s.cfg.MaxRetries), ctx)
	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !errors.Is(err, ErrSimulatorTransient) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, d time.Duration) {
		simulationErrors.WithLabelValues("transient").Inc()
		s.log.Warnf("simulation: retrying in %s: %v", d, err)
	})
}
