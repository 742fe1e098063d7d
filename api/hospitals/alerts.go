package hospitals

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/erbalance/api/render"
	"github.com/kilianp07/erbalance/core/alert"
)

const defaultAlertLimit = 50

func limitParam(r *http.Request) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		return n
	}
	return defaultAlertLimit
}

// NewRecentAlertsHandler returns GET /api/alerts/recent.
func NewRecentAlertsHandler(reader alert.Reader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		as, err := reader.Recent(r.Context(), limitParam(r))
		if err != nil {
			render.Error(w, http.StatusInternalServerError, err.Error(), nil)
			return
		}
		if as == nil {
			as = []alert.Alert{}
		}
		render.JSON(w, http.StatusOK, as)
	})
}

// NewHospitalAlertsHandler returns GET /api/hospital/{id}/alerts.
func NewHospitalAlertsHandler(reader alert.Reader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		as, err := reader.ByHospital(r.Context(), chi.URLParam(r, "id"), limitParam(r))
		if err != nil {
			render.Error(w, http.StatusInternalServerError, err.Error(), nil)
			return
		}
		if as == nil {
			as = []alert.Alert{}
		}
		render.JSON(w, http.StatusOK, as)
	})
}
