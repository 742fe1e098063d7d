// Package hospitals exposes the hospital state table and alert feeds.
package hospitals

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/erbalance/api/render"
	"github.com/kilianp07/erbalance/core/model"
	"github.com/kilianp07/erbalance/core/telemetry"
)

// NewListHandler returns GET /api/hospitals. The optional status query
// parameter (case insensitive) filters by congestion tier.
func NewListHandler(store telemetry.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var f telemetry.Filter
		if s := r.URL.Query().Get("status"); s != "" {
			st, ok := parseStatus(s)
			if !ok {
				render.Error(w, http.StatusBadRequest, "unknown status "+s, nil)
				return
			}
			f.Status = st
		}
		hs, err := store.ListAll(r.Context())
		if err != nil {
			render.Error(w, http.StatusInternalServerError, err.Error(), nil)
			return
		}
		render.JSON(w, http.StatusOK, f.Apply(hs))
	})
}

func parseStatus(s string) (model.Status, bool) {
	for _, st := range []model.Status{model.StatusGreen, model.StatusYellow, model.StatusRed} {
		if strings.EqualFold(s, string(st)) {
			return st, true
		}
	}
	return "", false
}

// NewUpdateHandler returns POST /api/hospital/{id}/update which merges the
// posted fields into the record.
func NewUpdateHandler(store telemetry.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var u model.HospitalUpdate
		dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&u); err != nil {
			render.Error(w, http.StatusBadRequest, "invalid update: "+err.Error(), nil)
			return
		}
		if u.Empty() {
			render.Error(w, http.StatusBadRequest, "update carries no field", nil)
			return
		}
		if u.Status != nil && !u.Status.Valid() {
			render.Error(w, http.StatusBadRequest, "unknown status "+string(*u.Status), nil)
			return
		}
		h, err := store.ApplyPartialUpdate(r.Context(), id, u)
		switch {
		case errors.Is(err, telemetry.ErrNotFound):
			render.Error(w, http.StatusNotFound, "hospital not found", map[string]any{"hospital_id": id})
			return
		case err != nil:
			render.Error(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		render.JSON(w, http.StatusOK, map[string]any{
			"message":  "Hospital updated successfully",
			"hospital": h,
		})
	})
}

// NewCreateHandler returns POST /api/admin/hospitals which adds or replaces
// a hospital record.
func NewCreateHandler(store telemetry.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var h model.HospitalState
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&h); err != nil {
			render.Error(w, http.StatusBadRequest, "invalid hospital: "+err.Error(), nil)
			return
		}
		h.Normalize()
		if err := h.Validate(); err != nil {
			render.Error(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		if err := store.Upsert(r.Context(), h); err != nil {
			render.Error(w, http.StatusInternalServerError, err.Error(), nil)
			return
		}
		render.Message(w, http.StatusCreated, "Hospital added successfully")
	})
}
