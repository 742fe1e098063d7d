package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/erbalance/api"
	"github.com/kilianp07/erbalance/app/plugins"
	"github.com/kilianp07/erbalance/config"
	"github.com/kilianp07/erbalance/core/alert"
	"github.com/kilianp07/erbalance/core/dispatch"
	"github.com/kilianp07/erbalance/core/events"
	coregeo "github.com/kilianp07/erbalance/core/geo"
	coremetrics "github.com/kilianp07/erbalance/core/metrics"
	"github.com/kilianp07/erbalance/core/model"
	"github.com/kilianp07/erbalance/core/monitoring"
	"github.com/kilianp07/erbalance/core/prediction"
	"github.com/kilianp07/erbalance/core/simulation"
	"github.com/kilianp07/erbalance/core/telemetry"
	"github.com/kilianp07/erbalance/infra/alerts"
	"github.com/kilianp07/erbalance/infra/geo"
	"github.com/kilianp07/erbalance/infra/logger"
	"github.com/kilianp07/erbalance/infra/metrics"
	inframonitoring "github.com/kilianp07/erbalance/infra/monitoring"
	"github.com/kilianp07/erbalance/infra/mqtt"
	"github.com/kilianp07/erbalance/infra/store"
	"github.com/kilianp07/erbalance/internal/eventbus"
)

const shutdownTimeout = 10 * time.Second

// Service wires the store, the predictor, the dispatch manager, the
// simulator and the alert sinks behind the HTTP API.
type Service struct {
	Store     telemetry.Store
	Predictor *prediction.Handle
	Manager   *dispatch.DispatchManager
	Simulator *simulation.Simulator
	Notifier  *alert.Notifier

	cfg         *config.Config
	log         logger.Logger
	alerts      alert.Reader
	mqtt        *mqtt.Publisher
	sink        coremetrics.MetricsSink
	dispatchBus *eventbus.TypedBus[events.DispatchEvent]
	statusBus   *eventbus.TypedBus[events.StatusChangeEvent]
	generated   atomic.Int64
	closers     []func() error
	wg          sync.WaitGroup
}

// New creates a Service from the configuration. Resources opened before a
// failure are released.
func New(ctx context.Context, cfg *config.Config) (svc *Service, err error) {
	s := &Service{
		cfg:         cfg,
		log:         logger.New("service"),
		dispatchBus: eventbus.NewTyped[events.DispatchEvent](),
		statusBus:   eventbus.NewTyped[events.StatusChangeEvent](),
	}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	mon, err := inframonitoring.NewSentryMonitor(cfg.Sentry, cfg.Server.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	monitoring.Init(mon)

	st, closeStore, err := store.Open(ctx, cfg.Store, logger.New("store"))
	if err != nil {
		return nil, fmt.Errorf("hospital store: %w", err)
	}
	s.Store = st
	s.closers = append(s.closers, closeStore)

	s.Predictor, err = prediction.NewHandle(ctx, cfg.Predictor.Loader())
	if err != nil {
		return nil, fmt.Errorf("predictor: %w", err)
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	s.sink = sink

	resolver, err := s.resolver()
	if err != nil {
		return nil, err
	}
	incoming := telemetry.NewIncomingCounter()

	s.Manager, err = dispatch.NewDispatchManager(st, s.Predictor, resolver, cfg.Dispatch, logger.New("dispatch"))
	if err != nil {
		return nil, fmt.Errorf("dispatch manager: %w", err)
	}
	s.closers = append(s.closers, s.Manager.Close)
	logStore, err := plugins.NewLogStore(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("plan log: %w", err)
	}
	s.Manager.SetLogStore(logStore)
	s.Manager.SetMetricsSink(sink)
	s.Manager.SetIncomingCounter(incoming)
	s.Manager.SetEventBus(s.dispatchBus)

	s.Simulator, err = simulation.New(st, s.Predictor, cfg.Simulation, logger.New("simulation"))
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	s.Simulator.SetIncomingCounter(incoming)
	s.Simulator.SetEventBus(s.statusBus)
	if rec, ok := sink.(coremetrics.HospitalStateRecorder); ok {
		s.Simulator.SetStateRecorder(rec)
	}

	if err := s.alertSinks(); err != nil {
		return nil, err
	}
	return s, nil
}

// resolver builds the geocoder chain, nil when geocoding is disabled.
func (s *Service) resolver() (coregeo.Resolver, error) {
	gc := s.cfg.Geo
	if gc.Provider == "none" {
		return nil, nil
	}
	var cache coregeo.Cache
	if gc.CachePath != "" {
		c, err := geo.NewSQLiteCache(gc.CachePath)
		if err != nil {
			return nil, fmt.Errorf("geocode cache: %w", err)
		}
		s.closers = append(s.closers, c.Close)
		cache = c
	}
	timeout := time.Duration(gc.TimeoutSeconds) * time.Second
	return coregeo.NewCachingResolver(geo.NewNominatim(gc), cache, timeout, logger.New("geo")), nil
}

// alertSinks assembles the alert fan-out. The reader backing the alert
// feeds is the SQLite log when configured, the in-memory ring otherwise.
func (s *Service) alertSinks() error {
	ac := s.cfg.Alerts
	mem := alert.NewMemorySink(ac.MemoryLimit)
	sinks := alert.MultiSink{mem}
	s.alerts = mem

	if ac.SQLitePath != "" {
		l, err := alerts.NewSQLiteLog(ac.SQLitePath)
		if err != nil {
			return fmt.Errorf("alert log: %w", err)
		}
		s.closers = append(s.closers, l.Close)
		sinks = append(sinks, l)
		s.alerts = l
	}
	if ac.Slack.WebhookURL != "" {
		sinks = append(sinks, alerts.NewSlack(ac.Slack.WebhookURL, ac.Slack.MinSeverity))
	}
	if ac.MQTT.Enabled {
		pub, err := mqtt.NewPublisher(ac.MQTT, s.applyUpdate, logger.New("mqtt"))
		if err != nil {
			return fmt.Errorf("mqtt publisher: %w", err)
		}
		s.mqtt = pub
		s.closers = append(s.closers, func() error { pub.Disconnect(); return nil })
		sinks = append(sinks, pub)
	}
	s.Notifier = alert.NewNotifier(sinks, ac.NotifyTimeout(), logger.New("alerts"))
	return nil
}

// applyUpdate merges a hospital report received over MQTT.
func (s *Service) applyUpdate(ctx context.Context, hospitalID string, u model.HospitalUpdate) error {
	if _, err := s.Store.ApplyPartialUpdate(ctx, hospitalID, u); err != nil {
		return fmt.Errorf("apply update for %s: %w", hospitalID, err)
	}
	return nil
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	return api.NewRouter(api.Deps{
		Store:      s.Store,
		Dispatcher: s.Manager,
		History:    s.Manager,
		Alerts:     s.alerts,
		Predictor:  s.Predictor,
		Generated:  &s.generated,
		AuthToken:  s.cfg.Server.AuthToken,
		Service:    s.cfg.Server.ServiceName,
		Log:        logger.New("http"),
	})
}

// Run starts the background workers and the HTTP server and blocks until
// the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.watchDispatches(ctx)
	s.watchStatus(ctx)
	if rec, ok := s.sink.(coremetrics.StatusTransitionRecorder); ok {
		metrics.StartEventCollector(ctx, s.statusBus, rec)
	}
	if !s.cfg.Simulation.Disabled {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Simulator.Run(ctx)
		}()
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		promSrv := metrics.StartPromServer(addr)
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			_ = promSrv.Shutdown(sctx)
		}()
		s.log.Infof("prometheus metrics on %s", addr)
	}

	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.Server.ReadTimeout(),
		WriteTimeout:      s.cfg.Server.WriteTimeout(),
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	}
	cancel()
	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		s.log.Errorf("http shutdown: %v", err)
	}
	s.wg.Wait()
	return runErr
}

// watchDispatches alerts every hospital receiving patients.
func (s *Service) watchDispatches(ctx context.Context) {
	sub := s.dispatchBus.Subscribe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.dispatchBus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				for _, a := range ev.Assignments {
					s.Notifier.Send(a.HospitalID, dispatch.AlertMessage(a), alert.ForUrgency(a.Recommendation.Urgency))
				}
			}
		}
	}()
}

// watchStatus raises a critical alert and publishes the retained status
// when a hospital turns Red.
func (s *Service) watchStatus(ctx context.Context) {
	sub := s.statusBus.Subscribe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.statusBus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				s.onStatusChange(ctx, ev)
			}
		}
	}()
}

func (s *Service) onStatusChange(ctx context.Context, ev events.StatusChangeEvent) {
	if s.mqtt != nil {
		if err := s.mqtt.PublishStatus(ctx, ev); err != nil {
			s.log.Errorf("publish status for %s: %v", ev.HospitalID, err)
		}
	}
	if ev.To != model.StatusRed {
		return
	}
	msg := fmt.Sprintf("%s is at capacity (status %s -> %s, predicted load %.1f)", ev.Name, ev.From, ev.To, ev.Load)
	s.Notifier.Send(ev.HospitalID, msg, alert.SeverityCritical)
}

// Close waits for pending alerts and releases every resource.
func (s *Service) Close() error {
	s.Notifier.Wait()
	s.dispatchBus.Close()
	s.statusBus.Close()
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	monitoring.Flush(2 * time.Second)
	return errors.Join(errs...)
}
