// Package sqlitestore provides a single-file SQLite implementation of
// alert.Store for deployments without PostgreSQL.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/linnemanlabs/safewatch/internal/alert"
)

// Store persists alerts in a SQLite database file.
type Store struct {
	db   *sql.DB
	path string
}

// New opens (or creates) the database at path and runs migrations.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const alertColumns = `id, title, description, image, lat, lng, risk, reason,
	analysis_source, resolved, created_at`

// Append inserts a new alert. A repeated id fails with alert.ErrDuplicateID.
func (s *Store) Append(ctx context.Context, a *alert.Alert) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (`+alertColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		a.ID, a.Title, a.Description, a.Image, a.Lat, a.Lng, string(a.Risk), a.Reason,
		string(a.AnalysisSource), a.Resolved, a.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("append %q: %w", a.ID, alert.ErrDuplicateID)
	}
	return nil
}

// List returns every alert in insertion order.
func (s *Store) List(ctx context.Context) ([]alert.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+alertColumns+` FROM alerts ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	out := []alert.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Get retrieves an alert by id.
func (s *Store) Get(ctx context.Context, id string) (*alert.Alert, bool, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

// MarkResolved sets resolved on the alert and returns it.
func (s *Store) MarkResolved(ctx context.Context, id string) (*alert.Alert, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET resolved = 1, resolved_at = COALESCE(resolved_at, ?) WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return nil, false, fmt.Errorf("update alert: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return nil, false, nil
	}
	return s.Get(ctx, id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(row scanner) (*alert.Alert, error) {
	var (
		a         alert.Alert
		risk      string
		source    string
		createdAt string
	)
	err := row.Scan(
		&a.ID, &a.Title, &a.Description, &a.Image, &a.Lat, &a.Lng, &risk, &a.Reason,
		&source, &a.Resolved, &createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	a.Risk = alert.ParseRisk(risk)
	a.AnalysisSource = alert.Source(source)
	a.MarkStored()
	return &a, nil
}
