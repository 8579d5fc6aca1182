// Package pgstore provides a PostgreSQL implementation of alert.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/safewatch/internal/alert"
)

var tracer = otel.Tracer("github.com/linnemanlabs/safewatch/internal/alert/pgstore")

//go:embed schema.sql
var schema string

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Store persists alerts in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const alertColumns = `id, title, description, image, lat, lng, risk, reason,
	analysis_source, resolved, created_at`

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Append inserts a new alert. A repeated id fails with alert.ErrDuplicateID.
func (s *Store) Append(ctx context.Context, a *alert.Alert) error {
	ctx, span := startSpan(ctx, "pgstore.Append", "INSERT")
	defer span.End()
	span.SetAttributes(attribute.String("alert.id", a.ID))

	_, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (`+alertColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.Title, a.Description, a.Image, a.Lat, a.Lng, string(a.Risk), a.Reason,
		string(a.AnalysisSource), a.Resolved, a.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			err = fmt.Errorf("append %q: %w", a.ID, alert.ErrDuplicateID)
		} else {
			err = fmt.Errorf("insert alert: %w", err)
		}
		fail(span, err)
		return err
	}
	return nil
}

// List returns every alert in insertion order.
func (s *Store) List(ctx context.Context) ([]alert.Alert, error) {
	ctx, span := startSpan(ctx, "pgstore.List", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT `+alertColumns+` FROM alerts ORDER BY seq`)
	if err != nil {
		err = fmt.Errorf("query alerts: %w", err)
		fail(span, err)
		return nil, err
	}
	defer rows.Close()

	out := []alert.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			fail(span, err)
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		err = fmt.Errorf("iterate alerts: %w", err)
		fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("db.rows", len(out)))
	return out, nil
}

// Get retrieves an alert by id.
func (s *Store) Get(ctx context.Context, id string) (*alert.Alert, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	a, err := scanAlert(s.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		fail(span, err)
		return nil, false, err
	}
	return a, true, nil
}

// MarkResolved sets resolved on the alert and returns it. resolved_at keeps
// the time of the first resolve.
func (s *Store) MarkResolved(ctx context.Context, id string) (*alert.Alert, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.MarkResolved", "UPDATE")
	defer span.End()
	span.SetAttributes(attribute.String("alert.id", id))

	a, err := scanAlert(s.pool.QueryRow(ctx,
		`UPDATE alerts
		 SET resolved = TRUE, resolved_at = COALESCE(resolved_at, now())
		 WHERE id = $1
		 RETURNING `+alertColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		fail(span, err)
		return nil, false, err
	}
	return a, true, nil
}

// scanAlert scans one row. The error wraps pgx.ErrNoRows when nothing matched.
func scanAlert(row pgx.Row) (*alert.Alert, error) {
	var (
		a      alert.Alert
		risk   string
		source string
	)
	err := row.Scan(
		&a.ID, &a.Title, &a.Description, &a.Image, &a.Lat, &a.Lng, &risk, &a.Reason,
		&source, &a.Resolved, &a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	a.Risk = alert.ParseRisk(risk)
	a.AnalysisSource = alert.Source(source)
	a.CreatedAt = a.CreatedAt.UTC()
	a.MarkStored()
	return &a, nil
}
