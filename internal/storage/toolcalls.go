package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arisu-ai/arisu/internal/model"
)

// InsertToolInvocations writes tool invocation rows. (trace_id, tool_call_id)
// is unique within a trace; on conflict the row is replaced so a recompute
// that resolves a previously pending call overwrites it cleanly.
func InsertToolInvocations(ctx context.Context, q Querier, invocations []model.ToolInvocation) error {
	now := time.Now().UTC()
	for _, inv := range invocations {
		if _, err := q.Exec(ctx,
			`INSERT INTO tool_invocations (trace_id, span_id, project_id, tool_call_id, name,
			 arguments, result, status, start_time, end_time, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (trace_id, tool_call_id) DO UPDATE SET
			   span_id = EXCLUDED.span_id,
			   name = EXCLUDED.name,
			   arguments = EXCLUDED.arguments,
			   result = EXCLUDED.result,
			   status = EXCLUDED.status,
			   start_time = EXCLUDED.start_time,
			   end_time = EXCLUDED.end_time`,
			inv.TraceID, inv.SpanID, inv.ProjectID, inv.ToolCallID, inv.Name,
			inv.Arguments, inv.Result, string(inv.Status), inv.StartTime, inv.EndTime, now,
		); err != nil {
			return fmt.Errorf("storage: insert tool invocation %s: %w", inv.ToolCallID, err)
		}
	}
	return nil
}

// GetToolInvocationsByTrace retrieves tool invocations for one trace.
func (db *DB) GetToolInvocationsByTrace(ctx context.Context, projectID uuid.UUID, traceID string) ([]model.ToolInvocation, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT trace_id, span_id, project_id, tool_call_id, name, arguments, result,
		 status, start_time, end_time, created_at
		 FROM tool_invocations WHERE trace_id = $1 AND project_id = $2
		 ORDER BY start_time ASC NULLS LAST, tool_call_id ASC`, traceID, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get tool invocations by trace: %w", err)
	}
	defer rows.Close()

	var invocations []model.ToolInvocation
	for rows.Next() {
		var (
			inv    model.ToolInvocation
			status string
		)
		if err := rows.Scan(&inv.TraceID, &inv.SpanID, &inv.ProjectID, &inv.ToolCallID,
			&inv.Name, &inv.Arguments, &inv.Result, &status,
			&inv.StartTime, &inv.EndTime, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan tool invocation: %w", err)
		}
		inv.Status = model.ToolCallStatus(status)
		invocations = append(invocations, inv)
	}
	return invocations, rows.Err()
}
