package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arisu-ai/arisu/internal/model"
)

// UpsertExecution writes one execution row, replacing it wholesale on
// conflict on the (trace_id, span_id) key. The self-referential parent
// foreign key is declared deferred, so within one transaction a child row may
// land before its parent exists; the constraint is checked at commit.
func UpsertExecution(ctx context.Context, q Querier, e model.Execution) error {
	if e.ParentSpanID != nil && *e.ParentSpanID == e.SpanID {
		return fmt.Errorf("storage: execution %s is its own parent", e.SpanID)
	}
	_, err := q.Exec(ctx,
		`INSERT INTO executions (trace_id, span_id, project_id, parent_span_id, span_type, name,
		 agent_id, agent_name, provider, model, input_tokens, output_tokens,
		 input_cost, output_cost, total_cost, status, status_message,
		 start_time, end_time, attributes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		 ON CONFLICT (trace_id, span_id) DO UPDATE SET
		   project_id = EXCLUDED.project_id,
		   parent_span_id = EXCLUDED.parent_span_id,
		   span_type = EXCLUDED.span_type,
		   name = EXCLUDED.name,
		   agent_id = EXCLUDED.agent_id,
		   agent_name = EXCLUDED.agent_name,
		   provider = EXCLUDED.provider,
		   model = EXCLUDED.model,
		   input_tokens = EXCLUDED.input_tokens,
		   output_tokens = EXCLUDED.output_tokens,
		   input_cost = EXCLUDED.input_cost,
		   output_cost = EXCLUDED.output_cost,
		   total_cost = EXCLUDED.total_cost,
		   status = EXCLUDED.status,
		   status_message = EXCLUDED.status_message,
		   start_time = EXCLUDED.start_time,
		   end_time = EXCLUDED.end_time,
		   attributes = EXCLUDED.attributes`,
		e.TraceID, e.SpanID, e.ProjectID, e.ParentSpanID, string(e.SpanType), e.Name,
		e.AgentID, e.AgentName, e.Provider, e.Model, e.InputTokens, e.OutputTokens,
		e.InputCost, e.OutputCost, e.TotalCost, string(e.Status), e.StatusMessage,
		e.StartTime, e.EndTime, e.Attributes, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: upsert execution %s/%s: %w", e.TraceID, e.SpanID, err)
	}
	return nil
}

// GetExecutionsByTrace retrieves all execution rows for one trace, in
// start-time order.
func (db *DB) GetExecutionsByTrace(ctx context.Context, projectID uuid.UUID, traceID string) ([]model.Execution, error) {
	rows, err := db.pool.Query(ctx,
		executionSelect+` WHERE trace_id = $1 AND project_id = $2
		 ORDER BY start_time ASC, span_id ASC`, traceID, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get executions by trace: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

// ListExecutions retrieves execution rows matching the given filters, newest
// first. The limit defaults to 100 and is capped at 1000.
func (db *DB) ListExecutions(ctx context.Context, projectID uuid.UUID, f model.ExecutionFilters) ([]model.Execution, error) {
	where := []string{"project_id = $1"}
	args := []any{projectID}
	next := 2

	addFilter := func(clause string, v any) {
		where = append(where, fmt.Sprintf(clause, next))
		args = append(args, v)
		next++
	}
	if f.TraceID != nil {
		addFilter("trace_id = $%d", *f.TraceID)
	}
	if f.SpanType != nil {
		addFilter("span_type = $%d", string(*f.SpanType))
	}
	if f.Provider != nil {
		addFilter("provider = $%d", *f.Provider)
	}
	if f.Model != nil {
		addFilter("model = $%d", *f.Model)
	}
	if f.AgentID != nil {
		addFilter("agent_id = $%d", *f.AgentID)
	}
	if f.Since != nil {
		addFilter("start_time >= $%d", *f.Since)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	args = append(args, limit)

	rows, err := db.pool.Query(ctx,
		executionSelect+" WHERE "+strings.Join(where, " AND ")+
			fmt.Sprintf(" ORDER BY start_time DESC LIMIT $%d", next),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list executions: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

const executionSelect = `SELECT trace_id, span_id, project_id, parent_span_id, span_type, name,
 agent_id, agent_name, provider, model, input_tokens, output_tokens,
 input_cost, output_cost, total_cost, status, status_message,
 start_time, end_time, attributes, created_at
 FROM executions`

func scanExecutions(rows pgx.Rows) ([]model.Execution, error) {
	var executions []model.Execution
	for rows.Next() {
		var (
			e        model.Execution
			spanType string
			status   string
		)
		if err := rows.Scan(
			&e.TraceID, &e.SpanID, &e.ProjectID, &e.ParentSpanID, &spanType, &e.Name,
			&e.AgentID, &e.AgentName, &e.Provider, &e.Model, &e.InputTokens, &e.OutputTokens,
			&e.InputCost, &e.OutputCost, &e.TotalCost, &status, &e.StatusMessage,
			&e.StartTime, &e.EndTime, &e.Attributes, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan execution: %w", err)
		}
		e.SpanType = model.SpanType(spanType)
		e.Status = model.StatusCode(status)
		executions = append(executions, e)
	}
	return executions, rows.Err()
}
