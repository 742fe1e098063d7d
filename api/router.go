// Package api assembles the HTTP surface of the dispatch service.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apidispatch "github.com/kilianp07/erbalance/api/dispatch"
	"github.com/kilianp07/erbalance/api/hospitals"
	"github.com/kilianp07/erbalance/api/render"
	"github.com/kilianp07/erbalance/core/alert"
	"github.com/kilianp07/erbalance/core/logger"
	"github.com/kilianp07/erbalance/core/monitoring"
	"github.com/kilianp07/erbalance/core/telemetry"
)

const retrainTimeout = 2 * time.Minute

// Reloader swaps the predictor model in place.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Deps holds everything the handlers need.
type Deps struct {
	Store      telemetry.Store
	Dispatcher apidispatch.Dispatcher
	History    apidispatch.HistoryReader
	Alerts     alert.Reader
	Predictor  Reloader
	// Generated counts successful plans and backs GET /status.
	Generated *atomic.Int64
	// AuthToken protects /api routes with a bearer token when set.
	AuthToken string
	Service   string
	// Metrics serves /metrics, promhttp.Handler() when nil.
	Metrics http.Handler
	Log     logger.Logger
}

// NewRouter builds the chi router wrapped in otel instrumentation.
func NewRouter(d Deps) http.Handler {
	log := logger.OrNop(d.Log)
	if d.Generated == nil {
		d.Generated = new(atomic.Int64)
	}
	if d.Metrics == nil {
		d.Metrics = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(log))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.Error(w, http.StatusNotFound, "Endpoint not found", map[string]any{"path": r.URL.Path, "method": r.Method})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		render.Error(w, http.StatusMethodNotAllowed, "Method not allowed", map[string]any{"path": r.URL.Path, "method": r.Method})
	})

	r.Get("/", index(d.Service))
	r.Get("/health", health(d.Service))
	r.Get("/status", status(d.Generated))
	r.Method(http.MethodGet, "/metrics", d.Metrics)
	r.Method(http.MethodPost, "/generate-plan", apidispatch.NewPlanHandler(d.Dispatcher, d.Generated, log))

	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(d.AuthToken))
		r.Method(http.MethodGet, "/hospitals", hospitals.NewListHandler(d.Store))
		r.Method(http.MethodPost, "/hospital/{id}/update", hospitals.NewUpdateHandler(d.Store))
		r.Method(http.MethodGet, "/hospital/{id}/alerts", hospitals.NewHospitalAlertsHandler(d.Alerts))
		r.Method(http.MethodGet, "/alerts/recent", hospitals.NewRecentAlertsHandler(d.Alerts))
		r.Method(http.MethodGet, "/dispatch/logs", apidispatch.NewLogHandler(d.History))
		r.Method(http.MethodPost, "/admin/hospitals", hospitals.NewCreateHandler(d.Store))
		r.Post("/admin/retrain", retrain(d.Predictor, log))
	})

	return otelhttp.NewHandler(r, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func accessLog(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debugw("http request", map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
		})
	}
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				render.Error(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func index(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		render.JSON(w, http.StatusOK, map[string]any{
			"service": service,
			"endpoints": []string{
				"POST /generate-plan",
				"GET /api/hospitals",
				"POST /api/hospital/{id}/update",
				"GET /api/hospital/{id}/alerts",
				"GET /api/alerts/recent",
				"GET /api/dispatch/logs",
				"POST /api/admin/hospitals",
				"POST /api/admin/retrain",
				"GET /health",
				"GET /status",
				"GET /metrics",
			},
		})
	}
}

func health(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		render.JSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
			"service":   service,
		})
	}
}

func status(generated *atomic.Int64) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		render.JSON(w, http.StatusOK, map[string]any{
			"status":          "operational",
			"plans_generated": generated.Load(),
			"timestamp":       time.Now().UTC(),
		})
	}
}

// retrain reloads the predictor in the background and answers at once.
func retrain(p Reloader, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if p == nil {
			render.Error(w, http.StatusServiceUnavailable, "predictor reload not supported", nil)
			return
		}
		go func() {
			defer monitoring.Recover()
			ctx, cancel := context.WithTimeout(context.Background(), retrainTimeout)
			defer cancel()
			if err := p.Reload(ctx); err != nil {
				log.Errorf("predictor reload: %v", err)
				monitoring.Capture(err, "predictor", "")
				return
			}
			log.Infof("predictor reloaded")
		}()
		render.Message(w, http.StatusOK, "Model retraining started")
	}
}
