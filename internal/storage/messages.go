package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arisu-ai/arisu/internal/model"
)

// InsertMessages bulk-inserts conversation message rows using the COPY
// protocol. The recompute path deletes a trace's message rows before calling
// this, so plain COPY (no conflict handling) is safe and fast.
func InsertMessages(ctx context.Context, q Querier, messages []model.ExecutionMessage) (int64, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	columns := []string{"trace_id", "span_id", "project_id", "direction", "idx", "role", "parts", "created_at"}
	now := time.Now().UTC()
	rows := make([][]any, len(messages))
	for i, m := range messages {
		rows[i] = []any{
			m.TraceID, m.SpanID, m.ProjectID, string(m.Direction), m.Idx,
			string(m.Role), m.Parts, now,
		}
	}

	count, err := q.CopyFrom(ctx, pgx.Identifier{"execution_messages"}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("storage: copy messages: %w", err)
	}
	return count, nil
}

// DeleteDerivedRows discards the message, tool-invocation and template-usage
// rows for one trace ahead of a recompute. Trace and execution rows are
// overwritten via upsert instead, so readers never observe an empty trace.
func DeleteDerivedRows(ctx context.Context, q Querier, projectID uuid.UUID, traceID string) error {
	for _, table := range []string{"execution_messages", "tool_invocations", "template_usages"} {
		if _, err := q.Exec(ctx,
			`DELETE FROM `+table+` WHERE trace_id = $1 AND project_id = $2`,
			traceID, projectID,
		); err != nil {
			return fmt.Errorf("storage: delete %s for trace %s: %w", table, traceID, err)
		}
	}
	return nil
}

// GetMessagesByTrace retrieves message rows for one trace in span, direction,
// index order.
func (db *DB) GetMessagesByTrace(ctx context.Context, projectID uuid.UUID, traceID string) ([]model.ExecutionMessage, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT trace_id, span_id, project_id, direction, idx, role, parts, created_at
		 FROM execution_messages WHERE trace_id = $1 AND project_id = $2
		 ORDER BY span_id ASC, direction ASC, idx ASC`, traceID, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get messages by trace: %w", err)
	}
	defer rows.Close()

	var messages []model.ExecutionMessage
	for rows.Next() {
		var (
			m         model.ExecutionMessage
			direction string
			role      string
		)
		if err := rows.Scan(&m.TraceID, &m.SpanID, &m.ProjectID, &direction, &m.Idx,
			&role, &m.Parts, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan message: %w", err)
		}
		m.Direction = model.MessageDirection(direction)
		m.Role = model.MessageRole(role)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
