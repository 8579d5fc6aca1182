package alertapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/safewatch/internal/alert"
	"github.com/linnemanlabs/safewatch/internal/mapview"
)

// AlertService defines the business operations alertapi needs.
type AlertService interface {
	Create(ctx context.Context, in alert.NewAlert) (*alert.Alert, error)
	Resolve(ctx context.Context, id string) (*alert.Alert, error)
	Get(ctx context.Context, id string) (*alert.Alert, error)
	List(ctx context.Context) ([]alert.Alert, error)
}

// MapService exposes the rendered marker set.
type MapService interface {
	Markers() []mapview.Marker
}

// Options configures optional API behaviour.
type Options struct {
	// UploadDir receives image attachments. Empty disables uploads.
	UploadDir string
	// MaxUploadBytes caps the whole request body of alert creation.
	MaxUploadBytes int64
	// RatePerMinute limits alert creation per client address. Zero disables.
	RatePerMinute int
	Burst         int
	// TrustedProxyHops is how many X-Forwarded-For entries, counted from the
	// right, were appended by trusted proxies. Zero uses the peer address.
	TrustedProxyHops int
	// Map enables the /api/v1/map routes.
	Map MapService
	// Live serves the map WebSocket at /api/v1/map/ws.
	Live http.Handler
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger  log.Logger
	svc     AlertService
	opts    Options
	limiter *clientLimiters
}

// DefaultMaxUploadBytes is used when Options.MaxUploadBytes is unset.
const DefaultMaxUploadBytes = 10 << 20

// New creates a new API handler.
func New(logger log.Logger, svc AlertService, opts Options) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("alert service is required"))
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}

	var limiter *clientLimiters
	if opts.RatePerMinute > 0 {
		limiter = newClientLimiters(opts.RatePerMinute, opts.Burst)
	}

	return &API{
		logger:  logger,
		svc:     svc,
		opts:    opts,
		limiter: limiter,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.With(a.rateLimit).Post("/alerts", a.handleCreateAlert)
		r.Get("/alerts", a.handleListAlerts)
		r.Get("/alerts/{id}", a.handleGetAlert)
		r.Post("/alerts/{id}/resolve", a.handleResolveAlert)

		if a.opts.Map != nil {
			r.Get("/map/markers", a.handleMarkers)
			r.Get("/map/focus/{id}", a.handleFocus)
			r.Get("/map/alerts.kml", a.handleKML)
		}
		if a.opts.Live != nil {
			r.Handle("/map/ws", a.opts.Live)
		}
	})

	if a.opts.UploadDir != "" {
		r.Get("/uploads/{name}", a.handleUpload)
	}
}

func (a *API) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		if key := clientKey(r, a.opts.TrustedProxyHops); !a.limiter.allow(key) {
			a.logger.Warn(r.Context(), "alert intake rate limited", "client", key)
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := a.svc.List(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list alerts")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if alerts == nil {
		alerts = []alert.Alert{}
	}
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.Int("safewatch.alerts.count", len(alerts)))
	writeJSON(w, http.StatusOK, alerts)
}

func (a *API) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("safewatch.alert.id", id))

	al, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err, "failed to get alert", id)
		return
	}
	writeJSON(w, http.StatusOK, al)
}

func (a *API) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("safewatch.alert.id", id))

	al, err := a.svc.Resolve(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err, "failed to resolve alert", id)
		return
	}
	span.SetAttributes(attribute.String("safewatch.alert.state", string(al.State())))
	writeJSON(w, http.StatusOK, al)
}

func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg, id string) {
	if errors.Is(err, alert.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	a.logger.Error(r.Context(), err, msg, "alert_id", id)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
