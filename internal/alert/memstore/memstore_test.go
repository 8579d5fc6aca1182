package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/linnemanlabs/safewatch/internal/alert"
)

func TestStore_AppendAndGet(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	a := &alert.Alert{ID: "a-1", Title: "Broken light", Risk: alert.RiskLow, AnalysisSource: alert.SourceHeuristic}
	if err := s.Append(ctx, a); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, ok, err := s.Get(ctx, "a-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected alert to be found")
	}
	if got.Title != "Broken light" {
		t.Errorf("Title = %q, want %q", got.Title, "Broken light")
	}
	if got.State() != alert.StateUnresolved {
		t.Errorf("State = %q, want %q", got.State(), alert.StateUnresolved)
	}
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()

	s := New()
	_, ok, err := s.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing ID")
	}
}

func TestStore_AppendDuplicate(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.Append(ctx, &alert.Alert{ID: "dup", Title: "first"})

	err := s.Append(ctx, &alert.Alert{ID: "dup", Title: "second"})
	if !errors.Is(err, alert.ErrDuplicateID) {
		t.Fatalf("Append duplicate = %v, want ErrDuplicateID", err)
	}

	got, _, _ := s.Get(ctx, "dup")
	if got.Title != "first" {
		t.Errorf("Title = %q, want original %q", got.Title, "first")
	}
	list, _ := s.List(ctx)
	if len(list) != 1 {
		t.Errorf("len(List) = %d, want 1", len(list))
	}
}

func TestStore_ListInsertionOrder(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	ids := []string{"c", "a", "b"}
	for _, id := range ids {
		_ = s.Append(ctx, &alert.Alert{ID: id})
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != len(ids) {
		t.Fatalf("len = %d, want %d", len(list), len(ids))
	}
	for i, id := range ids {
		if list[i].ID != id {
			t.Errorf("list[%d].ID = %q, want %q", i, list[i].ID, id)
		}
	}
}

func TestStore_MarkResolvedIdempotent(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.Append(ctx, &alert.Alert{ID: "r-1", Risk: alert.RiskHigh})

	for i := range 2 {
		got, ok, err := s.MarkResolved(ctx, "r-1")
		if err != nil {
			t.Fatalf("MarkResolved #%d: %v", i, err)
		}
		if !ok {
			t.Fatalf("MarkResolved #%d: expected ok", i)
		}
		if !got.Resolved {
			t.Errorf("MarkResolved #%d: Resolved = false", i)
		}
		if got.Risk != alert.RiskHigh {
			t.Errorf("MarkResolved #%d: Risk = %q, want unchanged High", i, got.Risk)
		}
	}
}

func TestStore_MarkResolvedMissing(t *testing.T) {
	t.Parallel()

	s := New()
	_, ok, err := s.MarkResolved(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing ID")
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.Append(ctx, &alert.Alert{ID: "c-1", Title: "orig"})

	got, _, _ := s.Get(ctx, "c-1")
	got.Title = "mutated"

	list, _ := s.List(ctx)
	list[0].Resolved = true

	again, _, _ := s.Get(ctx, "c-1")
	if again.Title != "orig" {
		t.Errorf("Title = %q, store leaked a pointer", again.Title)
	}
	if again.Resolved {
		t.Error("Resolved = true, store leaked a pointer through List")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	const n = 100

	var wg sync.WaitGroup
	wg.Add(n * 2)

	for i := range n {
		id := fmt.Sprintf("id-%d", i)

		go func() {
			defer wg.Done()
			_ = s.Append(ctx, &alert.Alert{ID: id})
		}()

		go func() {
			defer wg.Done()
			_, _, _ = s.Get(ctx, id)
			_, _, _ = s.MarkResolved(ctx, id)
			_, _ = s.List(ctx)
		}()
	}

	wg.Wait()

	list, _ := s.List(ctx)
	if len(list) != n {
		t.Errorf("len(List) = %d, want %d", len(list), n)
	}
}
