package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

// QueryObserver receives one observation per finished query (wired by main
// for Prometheus).
type QueryObserver interface {
	ObserveQuery(ctx context.Context, op, route, outcome string, dur time.Duration)
}

// QueryObserverFunc adapts a plain function to QueryObserver.
type QueryObserverFunc func(ctx context.Context, op, route, outcome string, dur time.Duration)

// ObserveQuery implements QueryObserver.
func (f QueryObserverFunc) ObserveQuery(ctx context.Context, op, route, outcome string, dur time.Duration) {
	f(ctx, op, route, outcome, dur)
}

type queryStart struct {
	sql   string
	op    string
	start time.Time
}

type queryStartKey struct{}

// loggingTracer wraps another pgx.QueryTracer (otelpgx) and adds a
// structured log line and an observer callback for every query.
type loggingTracer struct {
	inner    pgx.QueryTracer
	observer QueryObserver
}

func wrapQueryTracer(inner pgx.QueryTracer, observer QueryObserver) pgx.QueryTracer {
	return loggingTracer{inner: inner, observer: observer}
}

func (t loggingTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	qs := queryStart{sql: data.SQL, op: operationOf(data.SQL), start: time.Now()}

	if t.inner != nil {
		ctx = t.inner.TraceQueryStart(ctx, conn, data)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		if route := routePatternFromContext(ctx); route != "" {
			span.SetAttributes(attribute.String("http.route", route))
		}
	}

	return context.WithValue(ctx, queryStartKey{}, qs)
}

func (t loggingTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	// inner first so its span ends with the query
	if t.inner != nil {
		t.inner.TraceQueryEnd(ctx, conn, data)
	}

	qs, _ := ctx.Value(queryStartKey{}).(queryStart)
	var dur time.Duration
	if !qs.start.IsZero() {
		dur = time.Since(qs.start)
	}

	route := routePatternFromContext(ctx)
	if route == "" {
		route = "background"
	}
	outcome := "ok"
	if data.Err != nil {
		outcome = "error"
	}
	if t.observer != nil {
		t.observer.ObserveQuery(ctx, qs.op, route, outcome, dur)
	}

	fields := []any{
		"db.statement", qs.sql,
		"db.operation.name", qs.op,
		"db.duration", dur.Seconds(),
		"http.route", route,
	}
	if tag := strings.TrimSpace(data.CommandTag.String()); tag != "" {
		fields = append(fields, "pg.command_tag", tag, "db.rows", data.CommandTag.RowsAffected())
	}

	L := log.FromContext(ctx)
	if data.Err != nil {
		var pgErr *pgconn.PgError
		if errors.As(data.Err, &pgErr) {
			fields = append(fields, "db.error_code", pgErr.Code, "db.error_constraint", pgErr.ConstraintName)
		}
		L.Error(ctx, data.Err, "db query failed", fields...)
		return
	}
	L.Info(ctx, "db query", fields...)
}

// operationOf returns the upper-cased leading SQL keyword, e.g. SELECT.
func operationOf(sql string) string {
	f := strings.Fields(sql)
	if len(f) == 0 {
		return "UNKNOWN"
	}
	return strings.ToUpper(f[0])
}

func routePatternFromContext(ctx context.Context) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
