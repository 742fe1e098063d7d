package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/erbalance/core/dispatch/logging"
	"github.com/kilianp07/erbalance/core/events"
	"github.com/kilianp07/erbalance/core/geo"
	"github.com/kilianp07/erbalance/core/logger"
	"github.com/kilianp07/erbalance/core/metrics"
	"github.com/kilianp07/erbalance/core/model"
	"github.com/kilianp07/erbalance/core/prediction"
	"github.com/kilianp07/erbalance/core/telemetry"
	"github.com/kilianp07/erbalance/internal/eventbus"
)

// DispatchResult is the outcome of one incident dispatch.
type DispatchResult struct {
	ID            string                 `json:"dispatch_id"`
	Incident      model.Incident         `json:"incident"`
	Origin        model.Coordinates      `json:"origin"`
	Assignments   []model.Assignment     `json:"assignments"`
	Scores        []model.ScoredHospital `json:"scores"`
	UnmetCritical int                    `json:"unmet_critical"`
	UnmetStable   int                    `json:"unmet_stable"`
	Warnings      []Warning              `json:"warnings,omitempty"`
	Plan          ActionPlan             `json:"action_plan"`
	GeneratedAt   time.Time              `json:"generated_at"`
}

// UsedScores returns the scores of the hospitals that received patients,
// in ranking order.
func (r DispatchResult) UsedScores() []model.ScoredHospital {
	used := make(map[string]bool, len(r.Assignments))
	for _, a := range r.Assignments {
		used[a.HospitalID] = true
	}
	out := make([]model.ScoredHospital, 0, len(r.Assignments))
	for _, s := range r.Scores {
		if used[s.HospitalID] {
			out = append(out, s)
		}
	}
	return out
}

// DispatchManager is the single entry point of the allocation engine. It
// scores the current hospital snapshot, allocates patients and derives the
// recommendations and action plan.
type DispatchManager struct {
	store     telemetry.Store
	predictor prediction.Predictor
	resolver  geo.Resolver
	travel    geo.TravelModel
	scorer    Scorer
	alloc     AllocatorConfig
	cfg       Config
	logger    logger.Logger

	mu       sync.Mutex
	metrics  metrics.MetricsSink
	logStore logging.LogStore
	incoming *telemetry.IncomingCounter
	bus      eventbus.Publisher[events.DispatchEvent]
	now      func() time.Time
}

// NewDispatchManager creates a new manager. The resolver may be nil, in
// which case incidents without coordinates use the fallback center.
func NewDispatchManager(store telemetry.Store, pred prediction.Predictor, resolver geo.Resolver, cfg Config, log logger.Logger) (*DispatchManager, error) {
	if store == nil || pred == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewDispatchManager")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &DispatchManager{
		store:     store,
		predictor: pred,
		resolver:  resolver,
		travel:    cfg.TravelModel(),
		scorer:    NewScorer(cfg.Weights),
		alloc:     cfg.Allocator,
		cfg:       cfg,
		logger:    logger.OrNop(log),
		metrics:   metrics.NopSink{},
		now:       time.Now,
	}, nil
}

// SetMetricsSink configures the sink receiving per-assignment records.
func (m *DispatchManager) SetMetricsSink(s metrics.MetricsSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == nil {
		s = metrics.NopSink{}
	}
	m.metrics = s
}

// SetLogStore configures the store used to persist dispatch plans.
func (m *DispatchManager) SetLogStore(store logging.LogStore) {
	m.mu.Lock()
	m.logStore = store
	m.mu.Unlock()
}

// SetIncomingCounter configures where committed patients are recorded.
func (m *DispatchManager) SetIncomingCounter(c *telemetry.IncomingCounter) {
	m.mu.Lock()
	m.incoming = c
	m.mu.Unlock()
}

// SetEventBus configures the bus receiving a DispatchEvent per plan.
func (m *DispatchManager) SetEventBus(b eventbus.Publisher[events.DispatchEvent]) {
	m.mu.Lock()
	m.bus = b
	m.mu.Unlock()
}

// SetClock overrides the time source, used by tests.
func (m *DispatchManager) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Close releases resources held by the manager.
func (m *DispatchManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logStore != nil {
		return m.logStore.Close()
	}
	return nil
}

// History returns past plans from the configured log store.
func (m *DispatchManager) History(ctx context.Context, q logging.LogQuery) ([]logging.LogRecord, error) {
	m.mu.Lock()
	store := m.logStore
	m.mu.Unlock()
	if store == nil {
		return nil, nil
	}
	return store.Query(ctx, q)
}

type scoredEntry struct {
	state model.HospitalState
	pred  prediction.Prediction
	score model.ScoredHospital
	err   error
}

// Dispatch validates req, scores every hospital against one snapshot of the
// fleet and allocates the scaled patients. Only a *ValidationError or a
// store failure aborts the call; every other degradation is reported in
// DispatchResult.Warnings.
func (m *DispatchManager) Dispatch(ctx context.Context, req Request) (DispatchResult, error) {
	m.mu.Lock()
	now := m.now
	sink := m.metrics
	logStore := m.logStore
	incoming := m.incoming
	bus := m.bus
	m.mu.Unlock()

	start := time.Now()
	if err := req.Validate(); err != nil {
		dispatchRequests.WithLabelValues("invalid", "rejected").Inc()
		return DispatchResult{}, err
	}
	inc := req.Incident(now()).ApplyScenario()
	scenario := string(inc.Scenario)
	res := DispatchResult{ID: uuid.NewString(), Incident: inc, GeneratedAt: now()}

	origin, err := m.locate(ctx, inc)
	if err != nil {
		m.logger.Warnf("dispatch %s: %v, using fallback center", res.ID, err)
		res.Warnings = append(res.Warnings, warningFor(err, ""))
	}
	res.Origin = origin
	res.Incident.Coordinates = &origin

	snapshot, err := m.store.ListAll(ctx)
	if err != nil {
		dispatchRequests.WithLabelValues(scenario, "error").Inc()
		return DispatchResult{}, fmt.Errorf("dispatch: load hospitals: %w", err)
	}

	entries := m.scoreAll(ctx, snapshot, origin, inc.Timestamp)
	fallbacks := 0
	for _, e := range entries {
		if e.err != nil {
			fallbacks++
			predictorFallback.Inc()
			m.logger.Warnf("dispatch %s: hospital %s scored with default prediction: %v", res.ID, e.state.ID, e.err)
			res.Warnings = append(res.Warnings, warningFor(e.err, e.state.ID))
		}
	}

	scores := make([]model.ScoredHospital, len(entries))
	byID := make(map[string]scoredEntry, len(entries))
	for i, e := range entries {
		scores[i] = e.score
		byID[e.state.ID] = e
	}
	SortScored(scores)
	res.Scores = scores

	cands := make([]Candidate, len(scores))
	for i, s := range scores {
		cands[i] = Candidate{HospitalID: s.HospitalID, Buckets: m.alloc.BucketsFor(byID[s.HospitalID].state)}
	}
	alloc := m.alloc.Allocate(cands, inc.CriticalCount, inc.StableCount)
	res.UnmetCritical = alloc.UnmetCritical
	res.UnmetStable = alloc.UnmetStable

	for _, a := range alloc.Allocations {
		if a.Total() == 0 {
			continue
		}
		e := byID[a.HospitalID]
		res.Assignments = append(res.Assignments, model.Assignment{
			HospitalID:       a.HospitalID,
			HospitalName:     e.state.Name,
			AssignedCritical: a.Critical,
			AssignedStable:   a.Stable,
			Recommendation:   Recommend(e.state, a.Critical, e.pred),
		})
	}
	if res.UnmetCritical > 0 || res.UnmetStable > 0 {
		err := fmt.Errorf("%w: %d critical and %d stable patients unassigned", ErrCapacityExhausted, res.UnmetCritical, res.UnmetStable)
		m.logger.Warnf("dispatch %s: %v", res.ID, err)
		res.Warnings = append(res.Warnings, warningFor(err, ""))
	}

	res.Plan = BuildPlan(inc, res.Assignments, scores, res.GeneratedAt)

	if incoming != nil {
		for _, a := range res.Assignments {
			eta := time.Duration(byID[a.HospitalID].score.TravelMin * float64(time.Minute))
			incoming.Add(a.HospitalID, a.Total(), res.GeneratedAt.Add(eta+m.cfg.ArrivalGrace()))
		}
	}

	elapsed := time.Since(start)
	m.recordMetrics(res, sink, fallbacks, elapsed)
	m.persist(ctx, res, logStore)
	if bus != nil {
		bus.Publish(events.DispatchEvent{
			DispatchID:    res.ID,
			Incident:      res.Incident,
			Assignments:   res.Assignments,
			UnmetCritical: res.UnmetCritical,
			UnmetStable:   res.UnmetStable,
			Time:          res.GeneratedAt,
		})
	}
	m.logger.Infof("dispatch %s: %d critical, %d stable over %d hospitals (%s)",
		res.ID, inc.CriticalCount, inc.StableCount, len(res.Assignments), elapsed)
	return res, nil
}

// locate returns the incident origin. On failure it returns the fallback
// center with an error wrapping ErrGeoResolution.
func (m *DispatchManager) locate(ctx context.Context, inc model.Incident) (model.Coordinates, error) {
	if inc.Coordinates != nil {
		return *inc.Coordinates, nil
	}
	if m.resolver == nil {
		return m.cfg.FallbackCenter, fmt.Errorf("%w: no geocoder configured", ErrGeoResolution)
	}
	gctx, cancel := context.WithTimeout(ctx, m.cfg.GeoTimeout())
	defer cancel()
	c, err := m.resolver.Resolve(gctx, inc.Location)
	if err != nil {
		return m.cfg.FallbackCenter, fmt.Errorf("%w: %q: %v", ErrGeoResolution, inc.Location, err)
	}
	return c, nil
}

// scoreAll predicts and scores every hospital concurrently. The output keeps
// the snapshot order.
func (m *DispatchManager) scoreAll(ctx context.Context, snapshot []model.HospitalState, origin model.Coordinates, at time.Time) []scoredEntry {
	out := make([]scoredEntry, len(snapshot))
	var wg sync.WaitGroup
	for i, h := range snapshot {
		wg.Add(1)
		go func(i int, h model.HospitalState) {
			defer wg.Done()
			pred, err := prediction.WithFallback(ctx, m.predictor, m.cfg.PredictorTimeout(), h.Features(at))
			if err != nil {
				err = fmt.Errorf("%w: %v", ErrPredictorUnavailable, err)
			}
			dist, mins := m.travel.Travel(origin, h, at)
			out[i] = scoredEntry{
				state: h,
				pred:  pred,
				score: m.scorer.Score(h, Travel{DistanceKM: dist, Minutes: mins}, pred),
				err:   err,
			}
		}(i, h)
	}
	wg.Wait()
	return out
}

// recordMetrics updates the collectors and forwards records to the sink.
func (m *DispatchManager) recordMetrics(res DispatchResult, sink metrics.MetricsSink, fallbacks int, elapsed time.Duration) {
	scenario := string(res.Incident.Scenario)
	outcome := "ok"
	if res.UnmetCritical > 0 || res.UnmetStable > 0 {
		outcome = "partial"
	}
	dispatchRequests.WithLabelValues(scenario, outcome).Inc()
	dispatchLatency.WithLabelValues(scenario).Observe(elapsed.Seconds())
	var crit, stable int
	for _, a := range res.Assignments {
		crit += a.AssignedCritical
		stable += a.AssignedStable
	}
	patientsAssigned.WithLabelValues("critical").Add(float64(crit))
	patientsAssigned.WithLabelValues("stable").Add(float64(stable))
	patientsUnmet.WithLabelValues("critical").Add(float64(res.UnmetCritical))
	patientsUnmet.WithLabelValues("stable").Add(float64(res.UnmetStable))

	scoreByID := make(map[string]model.ScoredHospital, len(res.Scores))
	for _, s := range res.Scores {
		scoreByID[s.HospitalID] = s
	}
	recs := make([]metrics.AssignmentRecord, 0, len(res.Assignments))
	for _, a := range res.Assignments {
		s := scoreByID[a.HospitalID]
		recs = append(recs, metrics.AssignmentRecord{
			DispatchID: res.ID,
			HospitalID: a.HospitalID,
			Scenario:   res.Incident.Scenario,
			Critical:   a.AssignedCritical,
			Stable:     a.AssignedStable,
			TotalScore: s.TotalScore,
			TravelMin:  s.TravelMin,
			Urgency:    a.Recommendation.Urgency,
			Time:       res.GeneratedAt,
		})
	}
	if err := sink.RecordAssignments(recs); err != nil {
		m.logger.Errorf("metrics error: %v", err)
	}
	if sr, ok := sink.(metrics.DispatchSummaryRecorder); ok {
		err := sr.RecordDispatchSummary(metrics.DispatchSummary{
			DispatchID:    res.ID,
			Scenario:      res.Incident.Scenario,
			Critical:      res.Incident.CriticalCount,
			Stable:        res.Incident.StableCount,
			UnmetCritical: res.UnmetCritical,
			UnmetStable:   res.UnmetStable,
			Hospitals:     len(res.Assignments),
			Fallbacks:     fallbacks,
			Latency:       elapsed,
			Time:          res.GeneratedAt,
		})
		if err != nil {
			m.logger.Errorf("summary metrics error: %v", err)
		}
	}
}

// persist appends the plan to the log store. Failures are logged only.
func (m *DispatchManager) persist(ctx context.Context, res DispatchResult, store logging.LogStore) {
	if store == nil {
		return
	}
	plan, err := json.Marshal(res.Plan)
	if err != nil {
		m.logger.Errorf("dispatch %s: encode plan: %v", res.ID, err)
		return
	}
	used := make([]string, 0, len(res.Assignments))
	for _, a := range res.Assignments {
		used = append(used, a.HospitalID)
	}
	warnings := make([]string, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		warnings = append(warnings, w.Code)
	}
	rec := logging.LogRecord{
		DispatchID:    res.ID,
		Timestamp:     res.GeneratedAt,
		Incident:      res.Incident,
		HospitalsUsed: used,
		Assignments:   res.Assignments,
		UnmetCritical: res.UnmetCritical,
		UnmetStable:   res.UnmetStable,
		Warnings:      warnings,
		Plan:          plan,
	}
	if err := store.Append(context.WithoutCancel(ctx), rec); err != nil {
		m.logger.Errorf("dispatch %s: persist plan: %v", res.ID, err)
	}
}

// IsValidation reports whether err rejected the request before scoring.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
