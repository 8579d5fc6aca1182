package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// Classifier produces a verdict for free text. Implementations are total:
// they always return a concrete risk and never fail.
type Classifier interface {
	Classify(ctx context.Context, text string) Verdict
}

// Notifier announces newly stored alerts, e.g. to a chat channel.
type Notifier interface {
	Notify(ctx context.Context, a *Alert) error
}

// NewAlert carries the author-supplied fields of an alert.
type NewAlert struct {
	Title       string
	Description string
	Location    Location
	// Image is the public reference of an uploaded asset, empty if none.
	Image string
	// ImageName is the original upload filename. It is added to the
	// classifier input as a token; image content is never inspected.
	ImageName string
}

// Service is the business boundary for alert lifecycle operations.
type Service struct {
	store      Store
	classifier Classifier
	logger     log.Logger
	metrics    *Metrics
	notifier   Notifier
	now        func() time.Time
}

// NewService creates a new alert service. metrics and notifier may be nil.
func NewService(store Store, classifier Classifier, logger log.Logger, metrics *Metrics, notifier Notifier) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:      store,
		classifier: classifier,
		logger:     logger,
		metrics:    metrics,
		notifier:   notifier,
		now:        time.Now,
	}
}

// Create assigns an id, classifies the description synchronously and
// appends the alert to the store. Classification problems degrade the
// verdict and never fail creation; only a store failure does, in which case
// nothing is stored.
func (s *Service) Create(ctx context.Context, in NewAlert) (*Alert, error) {
	loc := in.Location.Sanitize()
	a := &Alert{
		ID:          ulid.Make().String(),
		Title:       in.Title,
		Description: in.Description,
		Image:       in.Image,
		Lat:         loc.Lat,
		Lng:         loc.Lng,
		CreatedAt:   s.now().UTC(),
	}

	v := s.classifier.Classify(ctx, classifierInput(in))
	if v.Risk == "" {
		v.Risk = RiskUnknown
	}
	if v.Source == "" {
		v.Source = SourceHeuristic
	}
	a.Risk = v.Risk
	a.Reason = v.Reason
	a.AnalysisSource = v.Source

	L := s.logger.With("alert_id", a.ID)
	L.Info(ctx, "alert classified", "risk", a.Risk, "source", a.AnalysisSource, "state", a.State())

	if err := s.store.Append(ctx, a); err != nil {
		if s.metrics != nil {
			s.metrics.IntakeFailures.Inc()
		}
		return nil, fmt.Errorf("append alert: %w", err)
	}
	a.MarkStored()

	if s.metrics != nil {
		s.metrics.AlertsCreated.WithLabelValues(string(a.Risk), string(a.AnalysisSource)).Inc()
	}
	L.Info(ctx, "alert created", "risk", a.Risk, "source", a.AnalysisSource, "state", a.State())

	if s.notifier != nil && a.Risk == RiskHigh {
		cp := *a
		go s.notify(context.WithoutCancel(ctx), &cp)
	}

	return a, nil
}

// Resolve marks an alert resolved. Resolving twice is a no-op success.
// Unknown ids fail with ErrNotFound.
func (s *Service) Resolve(ctx context.Context, id string) (*Alert, error) {
	a, ok, err := s.store.MarkResolved(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mark resolved: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("resolve %q: %w", id, ErrNotFound)
	}
	if s.metrics != nil {
		s.metrics.AlertsResolved.Inc()
	}
	s.logger.Info(ctx, "alert resolved", "alert_id", id, "state", a.State())
	return a, nil
}

// Get retrieves an alert by id, failing with ErrNotFound if absent.
func (s *Service) Get(ctx context.Context, id string) (*Alert, error) {
	a, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("get %q: %w", id, ErrNotFound)
	}
	return a, nil
}

// List returns every alert in insertion order.
func (s *Service) List(ctx context.Context) ([]Alert, error) {
	return s.store.List(ctx)
}

func (s *Service) notify(ctx context.Context, a *Alert) {
	if err := s.notifier.Notify(ctx, a); err != nil {
		s.logger.Error(ctx, err, "failed to send alert notification", "alert_id", a.ID)
	}
}

func classifierInput(in NewAlert) string {
	if in.ImageName == "" {
		return in.Description
	}
	return strings.TrimSpace(in.Description + " image:" + in.ImageName)
}
