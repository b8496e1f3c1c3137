package db

import (
	"context"
	"errors"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const orderNumberSequence = "order_number_seq"

type querySpanContextKey struct{}

// queryTracer opens a Sentry span per statement when the caller is already
// inside a transaction span. Spans carry the table or sequence the statement
// touches so order store and mirror traffic can be told apart.
type queryTracer struct {
	database string
}

func newQueryTracer(database string) *queryTracer {
	return &queryTracer{database: database}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if sentry.SpanFromContext(ctx) == nil {
		return ctx
	}

	stmt := describeQuery(data.SQL)
	span := sentry.StartSpan(
		ctx,
		"db.query",
		sentry.WithDescription(stmt.text),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	span.SetData("db.system", "postgresql")
	if t.database != "" {
		span.SetData("db.name", t.database)
	}
	if stmt.operation != "" {
		span.SetData("db.operation", stmt.operation)
	}
	if stmt.table != "" {
		span.SetData("db.sql.table", stmt.table)
	}
	if stmt.sequence != "" {
		span.SetData("db.sequence", stmt.sequence)
	}

	return context.WithValue(span.Context(), querySpanContextKey{}, span)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, _ := ctx.Value(querySpanContextKey{}).(*sentry.Span)
	if span == nil {
		return
	}

	if data.Err != nil {
		span.Status = sentry.SpanStatusInternalError
		span.SetData("db.error", data.Err.Error())
		var pgErr *pgconn.PgError
		if errors.As(data.Err, &pgErr) {
			span.SetData("db.error_code", pgErr.Code)
			if pgErr.ConstraintName != "" {
				span.SetData("db.constraint", pgErr.ConstraintName)
			}
		}
	} else {
		span.Status = sentry.SpanStatusOK
	}
	if rows := data.CommandTag.RowsAffected(); rows >= 0 {
		span.SetData("db.rows_affected", rows)
	}

	span.Finish()
}

type queryDescription struct {
	text      string
	operation string
	table     string
	sequence  string
}

// describeQuery collapses whitespace and picks out the statement verb and the
// first table it reads from or writes to.
func describeQuery(query string) queryDescription {
	fields := strings.Fields(query)
	desc := queryDescription{text: strings.Join(fields, " ")}
	if len(fields) == 0 {
		return desc
	}

	desc.operation = strings.ToUpper(fields[0])
	if strings.Contains(desc.text, "nextval('"+orderNumberSequence+"')") {
		desc.sequence = orderNumberSequence
		return desc
	}

	for i := 0; i < len(fields)-1; i++ {
		switch strings.ToUpper(fields[i]) {
		case "FROM", "INTO", "UPDATE":
			table := strings.Trim(fields[i+1], "(,;")
			if table != "" && !strings.EqualFold(table, "SELECT") {
				desc.table = table
				return desc
			}
		}
	}
	return desc
}
