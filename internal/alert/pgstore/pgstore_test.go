package pgstore_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/safewatch/internal/alert"
	"github.com/linnemanlabs/safewatch/internal/alert/pgstore"
	"github.com/linnemanlabs/safewatch/internal/postgres"
)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("SAFEWATCH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SAFEWATCH_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("postgres.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	return s
}

func newAlert(title string) *alert.Alert {
	return &alert.Alert{
		ID:             ulid.Make().String(),
		Title:          title,
		Description:    "desc " + title,
		Image:          "/uploads/x.jpg",
		Lat:            47.1,
		Lng:            8.2,
		Risk:           alert.RiskMedium,
		Reason:         "crowd",
		AnalysisSource: alert.SourceExternal,
		CreatedAt:      time.Now().Truncate(time.Microsecond).UTC(),
	}
}

func TestAppendAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	a := newAlert("get")
	if err := s.Append(ctx, a); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, ok, err := s.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get returned ok=false, want true")
	}

	assertEqual(t, "Title", a.Title, got.Title)
	assertEqual(t, "Description", a.Description, got.Description)
	assertEqual(t, "Image", a.Image, got.Image)
	assertEqual(t, "Lat", a.Lat, got.Lat)
	assertEqual(t, "Lng", a.Lng, got.Lng)
	assertEqual(t, "Risk", a.Risk, got.Risk)
	assertEqual(t, "Reason", a.Reason, got.Reason)
	assertEqual(t, "AnalysisSource", a.AnalysisSource, got.AnalysisSource)
	if !got.CreatedAt.Equal(a.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, a.CreatedAt)
	}
	if got.State() != alert.StateUnresolved {
		t.Errorf("State = %q, want unresolved", got.State())
	}
}

func TestGet_Missing(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.Get(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("Get returned ok=true for missing id")
	}
}

func TestAppend_Duplicate(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	a := newAlert("dup")
	if err := s.Append(ctx, a); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ctx, a); !errors.Is(err, alert.ErrDuplicateID) {
		t.Errorf("second Append = %v, want ErrDuplicateID", err)
	}
}

func TestList_InsertionOrder(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first, second := newAlert("first"), newAlert("second")
	for _, a := range []*alert.Alert{first, second} {
		if err := s.Append(ctx, a); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	i, j := indexOf(list, first.ID), indexOf(list, second.ID)
	if i < 0 || j < 0 || i > j {
		t.Errorf("positions first=%d second=%d, want first before second", i, j)
	}
}

func TestMarkResolved(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	a := newAlert("resolve")
	if err := s.Append(ctx, a); err != nil {
		t.Fatalf("Append: %v", err)
	}

	for i := range 2 {
		got, ok, err := s.MarkResolved(ctx, a.ID)
		if err != nil {
			t.Fatalf("MarkResolved #%d: %v", i+1, err)
		}
		if !ok || !got.Resolved {
			t.Errorf("MarkResolved #%d: ok=%v resolved=%v", i+1, ok, got != nil && got.Resolved)
		}
	}

	_, ok, err := s.MarkResolved(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("MarkResolved missing: %v", err)
	}
	if ok {
		t.Error("MarkResolved returned ok=true for missing id")
	}
}

func indexOf(list []alert.Alert, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func assertEqual[T comparable](t *testing.T, field string, want, got T) {
	t.Helper()
	if want != got {
		t.Errorf("%s: got %v, want %v", field, got, want)
	}
}
