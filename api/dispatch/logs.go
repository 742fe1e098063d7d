package dispatch

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/erbalance/api/render"
	"github.com/kilianp07/erbalance/core/dispatch/logging"
	"github.com/kilianp07/erbalance/core/model"
)

// HistoryReader is the read side of the dispatch plan log.
type HistoryReader interface {
	History(ctx context.Context, q logging.LogQuery) ([]logging.LogRecord, error)
}

// NewLogHandler returns an HTTP handler exposing dispatch logs via GET /api/dispatch/logs.
// Supported filters: start, end (RFC3339), hospital_id, scenario (name or 1..4) and limit.
func NewLogHandler(h HistoryReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := logging.LogQuery{}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		q.HospitalID = r.URL.Query().Get("hospital_id")
		if sc := r.URL.Query().Get("scenario"); sc != "" {
			v, ok := scenarioFromString(sc)
			if !ok {
				render.Error(w, http.StatusBadRequest, "unknown scenario "+sc, nil)
				return
			}
			q.Scenario = v
		}
		if l := r.URL.Query().Get("limit"); l != "" {
			if n, err := strconv.Atoi(l); err == nil && n > 0 {
				q.Limit = n
			}
		}
		records, err := h.History(r.Context(), q)
		if err != nil {
			render.Error(w, http.StatusInternalServerError, err.Error(), nil)
			return
		}
		if records == nil {
			records = []logging.LogRecord{}
		}
		render.JSON(w, http.StatusOK, records)
	})
}

func scenarioFromString(s string) (model.Scenario, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		sc, err := model.ScenarioFromCode(n)
		return sc, err == nil
	}
	sc, err := model.ParseScenario(s)
	return sc, err == nil
}
