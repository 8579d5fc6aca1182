package alertapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/safewatch/internal/alert"
	"github.com/linnemanlabs/safewatch/internal/mapview"
)

func (a *API) handleMarkers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.opts.Map.Markers())
}

// handleFocus returns the focus directive for one alert to the caller only.
// Other viewers keep their own pan and zoom.
func (a *API) handleFocus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("safewatch.alert.id", id))

	found, err := a.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, alert.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		a.logger.Error(r.Context(), err, "failed to look up focus target", "alert_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, mapview.FocusFor(found))
}

func (a *API) handleKML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
	w.Header().Set("Content-Disposition", `attachment; filename="alerts.kml"`)
	if err := mapview.WriteKML(w, "safewatch alerts", a.opts.Map.Markers()); err != nil {
		a.logger.Error(r.Context(), err, "failed to write kml")
	}
}
