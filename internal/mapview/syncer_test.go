package mapview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/linnemanlabs/safewatch/internal/alert"
)

type fakeSource struct {
	mu     sync.Mutex
	alerts []alert.Alert
	err    error
	calls  int
}

func (f *fakeSource) List(_ context.Context) ([]alert.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]alert.Alert, len(f.alerts))
	copy(out, f.alerts)
	return out, nil
}

func (f *fakeSource) set(alerts []alert.Alert, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = alerts
	f.err = err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingPublisher struct {
	mu    sync.Mutex
	plans []Plan
}

func (p *recordingPublisher) Broadcast(_ context.Context, plan Plan) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plans = append(p.plans, plan)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.plans)
}

func TestSyncer_Sync(t *testing.T) {
	t.Parallel()

	src := &fakeSource{alerts: []alert.Alert{mkAlert("a", alert.RiskHigh)}}
	pub := &recordingPublisher{}
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s := NewSyncer(src, NewRegistry(), nil, WithPublisher(pub), WithMetrics(m))

	p, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(p.Add) != 1 {
		t.Fatalf("Add = %+v, want 1", p.Add)
	}
	if s.Registry().Len() != 1 {
		t.Errorf("registry Len = %d, want 1", s.Registry().Len())
	}

	// Unchanged source: nothing to publish.
	p, err = s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !p.Empty() {
		t.Errorf("second plan = %+v, want empty", p)
	}
	if pub.count() != 1 {
		t.Errorf("published %d plans, want 1", pub.count())
	}

	if got := testutil.ToFloat64(m.SyncTotal.WithLabelValues("applied")); got != 1 {
		t.Errorf("applied = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SyncTotal.WithLabelValues("noop")); got != 1 {
		t.Errorf("noop = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.OpsTotal.WithLabelValues("add")); got != 1 {
		t.Errorf("add ops = %v, want 1", got)
	}
}

func TestSyncer_SourceErrorKeepsMarkers(t *testing.T) {
	t.Parallel()

	src := &fakeSource{alerts: []alert.Alert{mkAlert("a", alert.RiskLow)}}
	s := NewSyncer(src, NewRegistry(), nil)
	if _, err := s.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	src.set(nil, errors.New("unavailable"))
	if _, err := s.Sync(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if s.Registry().Len() != 1 {
		t.Errorf("registry Len = %d, want 1 after failed cycle", s.Registry().Len())
	}
}

func TestSyncer_PlansCarrySeqAndNoFocus(t *testing.T) {
	t.Parallel()

	src := &fakeSource{alerts: []alert.Alert{mkAlert("a", alert.RiskMedium)}}
	pub := &recordingPublisher{}
	s := NewSyncer(src, NewRegistry(), nil, WithPublisher(pub))

	p, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if p.Focus != nil {
		t.Errorf("Focus = %+v, want nil in a shared plan", p.Focus)
	}
	if p.Seq != 1 || s.Registry().Seq() != 1 {
		t.Errorf("Seq = %d, registry Seq = %d, want 1", p.Seq, s.Registry().Seq())
	}

	// A no-op cycle keeps the sequence.
	p, err = s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !p.Empty() || p.Seq != 1 {
		t.Errorf("second plan = %+v, want empty at seq 1", p)
	}

	src.set([]alert.Alert{mkAlert("a", alert.RiskHigh)}, nil)
	if p, _ = s.Sync(context.Background()); p.Seq != 2 {
		t.Errorf("Seq = %d, want 2 after update", p.Seq)
	}
	if pub.count() != 2 {
		t.Errorf("published %d plans, want 2", pub.count())
	}
}

func TestSyncer_Locate(t *testing.T) {
	t.Parallel()

	src := &fakeSource{alerts: []alert.Alert{mkAlert("a", alert.RiskMedium)}}
	s := NewSyncer(src, NewRegistry(), nil)

	if _, ok := s.Locate("a"); ok {
		t.Error("Locate before the first sync should miss")
	}
	if _, err := s.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	f, ok := s.Locate("a")
	if !ok || f.ID != "a" || f.Zoom != FocusZoom || !f.OpenPopup {
		t.Errorf("Locate(a) = %+v, %v", f, ok)
	}
	if _, ok := s.Locate("missing"); ok {
		t.Error("Locate(missing) = true, want false")
	}
}

func TestSyncer_RunSyncsImmediately(t *testing.T) {
	t.Parallel()

	src := &fakeSource{alerts: []alert.Alert{mkAlert("a", alert.RiskHigh)}}
	s := NewSyncer(src, NewRegistry(), nil, WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.Registry().Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.Registry().Len() != 1 {
		t.Fatalf("registry Len = %d, want 1", s.Registry().Len())
	}

	s.Kick()
	deadline = time.Now().Add(2 * time.Second)
	for src.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if src.callCount() < 2 {
		t.Errorf("Kick did not trigger a cycle")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSyncer_ConcurrentSyncs(t *testing.T) {
	t.Parallel()

	src := &fakeSource{alerts: []alert.Alert{mkAlert("a", alert.RiskHigh), mkAlert("b", alert.RiskLow)}}
	pub := &recordingPublisher{}
	s := NewSyncer(src, NewRegistry(), nil, WithPublisher(pub))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Sync(context.Background())
		}()
	}
	wg.Wait()

	if s.Registry().Len() != 2 {
		t.Errorf("registry Len = %d, want 2", s.Registry().Len())
	}
	// Serialized cycles mean only the first sees a non-empty diff.
	if pub.count() != 1 {
		t.Errorf("published %d plans, want 1", pub.count())
	}
}
