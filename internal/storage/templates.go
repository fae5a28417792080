package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arisu-ai/arisu/internal/model"
)

// InsertTemplateUsages bulk-inserts template-usage linkage rows via COPY.
// The recompute path deletes a trace's usage rows first.
func InsertTemplateUsages(ctx context.Context, q Querier, usages []model.TemplateUsage) (int64, error) {
	if len(usages) == 0 {
		return 0, nil
	}

	columns := []string{"trace_id", "span_id", "project_id", "template_id", "version",
		"direction", "position", "role", "source", "created_at"}
	now := time.Now().UTC()
	rows := make([][]any, len(usages))
	for i, u := range usages {
		rows[i] = []any{
			u.TraceID, u.SpanID, u.ProjectID, u.TemplateID, u.Version,
			string(u.Direction), u.Position, string(u.Role), u.Source, now,
		}
	}

	count, err := q.CopyFrom(ctx, pgx.Identifier{"template_usages"}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("storage: copy template usages: %w", err)
	}
	return count, nil
}

// GetTemplateUsagesByTrace retrieves template usages for one trace.
func (db *DB) GetTemplateUsagesByTrace(ctx context.Context, projectID uuid.UUID, traceID string) ([]model.TemplateUsage, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT trace_id, span_id, project_id, template_id, version, direction, position, role, source, created_at
		 FROM template_usages WHERE trace_id = $1 AND project_id = $2
		 ORDER BY span_id ASC, direction ASC, position ASC`, traceID, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get template usages by trace: %w", err)
	}
	defer rows.Close()

	var usages []model.TemplateUsage
	for rows.Next() {
		var (
			u         model.TemplateUsage
			direction string
			role      string
		)
		if err := rows.Scan(&u.TraceID, &u.SpanID, &u.ProjectID, &u.TemplateID, &u.Version,
			&direction, &u.Position, &role, &u.Source, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan template usage: %w", err)
		}
		u.Direction = model.MessageDirection(direction)
		u.Role = model.MessageRole(role)
		usages = append(usages, u)
	}
	return usages, rows.Err()
}
