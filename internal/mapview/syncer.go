package mapview

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/safewatch/internal/alert"
)

// DefaultInterval is the polling cadence used when none is configured.
const DefaultInterval = 5 * time.Second

// Source supplies the current alert list.
type Source interface {
	List(ctx context.Context) ([]alert.Alert, error)
}

// Publisher receives every non-empty plan after it has been applied. The
// plan carries the registry sequence it produced.
type Publisher interface {
	Broadcast(ctx context.Context, p Plan)
}

// Syncer periodically refreshes the registry from a Source. Cycles never
// overlap; a cycle that cannot fetch the list leaves the registry untouched.
type Syncer struct {
	source    Source
	registry  *Registry
	publisher Publisher
	interval  time.Duration
	logger    log.Logger
	metrics   *Metrics

	run  sync.Mutex // serializes Sync
	kick chan struct{}
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithPublisher forwards applied plans to p.
func WithPublisher(p Publisher) SyncerOption {
	return func(s *Syncer) { s.publisher = p }
}

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) SyncerOption {
	return func(s *Syncer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMetrics records cycle outcomes.
func WithMetrics(m *Metrics) SyncerOption {
	return func(s *Syncer) { s.metrics = m }
}

// NewSyncer creates a Syncer over src and reg.
func NewSyncer(src Source, reg *Registry, logger log.Logger, opts ...SyncerOption) *Syncer {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Syncer{
		source:   src,
		registry: reg,
		interval: DefaultInterval,
		logger:   logger,
		kick:     make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Registry returns the registry this syncer maintains.
func (s *Syncer) Registry() *Registry { return s.registry }

// Locate returns the focus directive for a rendered marker. Focus is
// per-view, so it never travels in a published plan.
func (s *Syncer) Locate(id string) (FocusDirective, bool) {
	return s.registry.Locate(id)
}

// Kick schedules an immediate cycle without waiting for the ticker.
func (s *Syncer) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run syncs once immediately and then on every tick until ctx is done.
func (s *Syncer) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.syncLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		case <-s.kick:
		}
		s.syncLogged(ctx)
	}
}

func (s *Syncer) syncLogged(ctx context.Context) {
	if _, err := s.Sync(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn(ctx, "map sync failed", "error", err)
	}
}

// Sync runs one reconciliation cycle and returns the applied plan.
func (s *Syncer) Sync(ctx context.Context) (Plan, error) {
	s.run.Lock()
	defer s.run.Unlock()

	alerts, err := s.source.List(ctx)
	if err != nil {
		s.metrics.observeSync("error")
		return Plan{}, err
	}

	plan := s.registry.Apply(Reconcile(alerts, s.registry.Snapshot(), ""))
	s.metrics.observePlan(plan)

	if plan.Empty() {
		s.metrics.observeSync("noop")
		return plan, nil
	}
	s.metrics.observeSync("applied")
	if s.publisher != nil {
		s.publisher.Broadcast(ctx, plan)
	}
	return plan, nil
}

// Markers returns the rendered markers in first-added order.
func (s *Syncer) Markers() []Marker { return s.registry.Markers() }
