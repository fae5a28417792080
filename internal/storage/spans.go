package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arisu-ai/arisu/internal/model"
)

// InsertSpan appends one canonical span to the raw span table. The insert is
// duplicate-tolerant on (trace_id, span_id): first-writer-wins, a later
// duplicate payload for the same id is discarded, not merged. Returns whether
// the row was newly stored.
func InsertSpan(ctx context.Context, q Querier, projectID uuid.UUID, span model.Span) (bool, error) {
	tag, err := q.Exec(ctx,
		`INSERT INTO raw_spans (trace_id, span_id, project_id, parent_span_id, span_name, span_kind,
		 attributes, events, start_time, end_time, duration_ns, status_code, status_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (trace_id, span_id) DO NOTHING`,
		span.TraceID, span.SpanID, projectID, span.ParentSpanID, span.Name, string(span.Kind),
		span.Attributes, span.Events, span.StartTime, span.EndTime, span.Duration().Nanoseconds(),
		string(span.StatusCode), span.StatusMessage, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("storage: insert span %s: %w", span.SpanID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetSpansByTrace reloads the complete stored span set for one trace, in
// start-time order. Used by the recompute path, which must rebuild the
// hierarchy over the full set rather than the current batch.
func GetSpansByTrace(ctx context.Context, q Querier, projectID uuid.UUID, traceID string) ([]model.Span, error) {
	rows, err := q.Query(ctx,
		`SELECT trace_id, span_id, parent_span_id, span_name, span_kind, attributes, events,
		 start_time, end_time, status_code, status_message
		 FROM raw_spans WHERE trace_id = $1 AND project_id = $2
		 ORDER BY start_time ASC, span_id ASC`, traceID, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get spans by trace: %w", err)
	}
	defer rows.Close()

	var spans []model.Span
	for rows.Next() {
		var (
			s          model.Span
			kind       string
			statusCode string
		)
		if err := rows.Scan(
			&s.TraceID, &s.SpanID, &s.ParentSpanID, &s.Name, &kind, &s.Attributes, &s.Events,
			&s.StartTime, &s.EndTime, &statusCode, &s.StatusMessage,
		); err != nil {
			return nil, fmt.Errorf("storage: scan span: %w", err)
		}
		s.Kind = model.SpanKind(kind)
		s.StatusCode = model.StatusCode(statusCode)
		spans = append(spans, s)
	}
	return spans, rows.Err()
}

// CountSpansByTrace returns the number of stored spans for a trace.
func CountSpansByTrace(ctx context.Context, q Querier, projectID uuid.UUID, traceID string) (int64, error) {
	var n int64
	err := q.QueryRow(ctx,
		`SELECT count(*) FROM raw_spans WHERE trace_id = $1 AND project_id = $2`,
		traceID, projectID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count spans by trace: %w", err)
	}
	return n, nil
}
