package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/irfndi/coinsight-go/internal/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracedPool wraps a DatabasePool with a span and a debug log line per
// statement.
type TracedPool struct {
	pool   DatabasePool
	tracer trace.Tracer
	logger *logging.StandardLogger
}

// NewTracedPool wraps pool. logger may be nil.
func NewTracedPool(pool DatabasePool, logger *logging.StandardLogger) *TracedPool {
	return &TracedPool{
		pool:   pool,
		tracer: otel.Tracer("coinsight/database"),
		logger: logger,
	}
}

func (db *TracedPool) start(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	return db.tracer.Start(ctx, "db."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", op),
			attribute.String("db.table", statementTable(sql)),
		),
	)
}

func (db *TracedPool) finish(span trace.Span, op, sql string, start time.Time, rows int64, err error) {
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	if db.logger != nil {
		db.logger.LogDatabaseOperation(op, statementTable(sql), time.Since(start).Milliseconds(), rows)
	}
}

// Query executes a query that returns rows.
func (db *TracedPool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	start := time.Now()
	ctx, span := db.start(ctx, "query", sql)
	rows, err := db.pool.Query(ctx, sql, args...)
	db.finish(span, "query", sql, start, -1, err)
	return rows, err
}

// QueryRow executes a query that returns a single row. The span covers
// dispatch only; scan errors surface to the caller.
func (db *TracedPool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	start := time.Now()
	ctx, span := db.start(ctx, "query_row", sql)
	row := db.pool.QueryRow(ctx, sql, args...)
	db.finish(span, "query_row", sql, start, -1, nil)
	return row
}

// Exec executes a query without returning rows.
func (db *TracedPool) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	start := time.Now()
	ctx, span := db.start(ctx, "exec", sql)
	tag, err := db.pool.Exec(ctx, sql, args...)
	db.finish(span, "exec", sql, start, tag.RowsAffected(), err)
	return tag, err
}

// statementTable picks the first table name after FROM, INTO or UPDATE.
func statementTable(sql string) string {
	fields := strings.Fields(sql)
	for i, f := range fields {
		switch strings.ToUpper(f) {
		case "FROM", "INTO", "UPDATE":
			if i+1 < len(fields) {
				return strings.Trim(fields[i+1], "(;")
			}
		}
	}
	return "unknown"
}
