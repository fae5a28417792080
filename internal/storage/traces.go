package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arisu-ai/arisu/internal/model"
)

// TraceExists reports whether a trace-level row already exists. The batch
// orchestrator uses this to choose fast-path extraction versus recompute.
func TraceExists(ctx context.Context, q Querier, projectID uuid.UUID, traceID string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM traces WHERE trace_id = $1 AND project_id = $2)`,
		traceID, projectID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage: trace exists: %w", err)
	}
	return exists, nil
}

// UpsertTrace writes the trace-level row, replacing it wholesale on conflict.
// Recompute never patches a trace incrementally; the whole row is overwritten
// with freshly derived values so re-extraction is idempotent.
func UpsertTrace(ctx context.Context, q Querier, t model.Trace) error {
	_, err := q.Exec(ctx,
		`INSERT INTO traces (trace_id, project_id, provider, start_time, end_time, attributes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (trace_id) DO UPDATE SET
		   project_id = EXCLUDED.project_id,
		   provider = EXCLUDED.provider,
		   start_time = EXCLUDED.start_time,
		   end_time = EXCLUDED.end_time,
		   attributes = EXCLUDED.attributes,
		   updated_at = EXCLUDED.updated_at`,
		t.TraceID, t.ProjectID, t.Provider, t.StartTime, t.EndTime, t.Attributes,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert trace %s: %w", t.TraceID, err)
	}
	return nil
}

// GetTrace retrieves one trace row scoped by project.
func (db *DB) GetTrace(ctx context.Context, projectID uuid.UUID, traceID string) (model.Trace, error) {
	var t model.Trace
	err := db.pool.QueryRow(ctx,
		`SELECT trace_id, project_id, provider, start_time, end_time, attributes, created_at, updated_at
		 FROM traces WHERE trace_id = $1 AND project_id = $2`, traceID, projectID,
	).Scan(&t.TraceID, &t.ProjectID, &t.Provider, &t.StartTime, &t.EndTime, &t.Attributes,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Trace{}, ErrNotFound
	}
	if err != nil {
		return model.Trace{}, fmt.Errorf("storage: get trace: %w", err)
	}
	return t, nil
}

// DeleteTrace removes a trace, its raw spans, and (via cascade) all derived
// rows in one transaction. Trace-level cleanup is the only deletion path for
// spans.
func (db *DB) DeleteTrace(ctx context.Context, projectID uuid.UUID, traceID string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: delete trace begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`DELETE FROM traces WHERE trace_id = $1 AND project_id = $2`, traceID, projectID)
	if err != nil {
		return fmt.Errorf("storage: delete trace: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM raw_spans WHERE trace_id = $1 AND project_id = $2`, traceID, projectID); err != nil {
		return fmt.Errorf("storage: delete trace spans: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: delete trace commit: %w", err)
	}
	return nil
}
