package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/arisu-ai/arisu/internal/model"
	"github.com/arisu-ai/arisu/internal/storage"
)

// ErrNoProject is returned when no tenant scope was supplied. The core
// refuses to operate without one; the caller resolves it before any
// processing begins.
var ErrNoProject = errors.New("ingest: no project scope supplied")

// Result is the aggregate outcome of one batch, reported back to the
// originating request.
type Result struct {
	Stored     int `json:"stored"`
	Created    int `json:"created"`
	Recomputed int `json:"recomputed"`
}

// Processor is the batch orchestrator: it stores incoming spans, partitions
// them by trace, and per trace chooses fast-path extraction (new trace)
// versus full recompute (existing trace receiving late spans).
type Processor struct {
	extractor *Extractor
	logger    *slog.Logger
}

// NewProcessor creates a Processor around the given extractor.
func NewProcessor(extractor *Extractor, logger *slog.Logger) *Processor {
	return &Processor{extractor: extractor, logger: logger}
}

// Process runs one span batch through storage and extraction. The Querier is
// the caller's open transaction: all writes land atomically at commit, which
// is also when the deferred parent foreign key on executions is checked, so
// child rows may be written before their parents within the batch.
//
// Exporters batch spans per flush interval, not per logical trace. A trace
// that was already extracted before its final child spans arrived must be
// recomputed over the full stored span set once those spans land; the common
// case (a complete trace in one flush) avoids that reload.
func (p *Processor) Process(ctx context.Context, q storage.Querier, projectID uuid.UUID, spans []model.Span) (Result, error) {
	var res Result
	if projectID == uuid.Nil {
		return res, ErrNoProject
	}
	if len(spans) == 0 {
		return res, ErrEmptyBatch
	}

	// 1. Store every incoming span. Duplicate span ids are silent no-ops
	// (first-writer-wins), which is what makes exporter retries safe.
	valid := make([]model.Span, 0, len(spans))
	for _, span := range spans {
		if err := span.Validate(); err != nil {
			p.logger.Warn("ingest: dropping invalid span", "error", err)
			continue
		}
		if _, err := storage.InsertSpan(ctx, q, projectID, span); err != nil {
			return res, err
		}
		res.Stored++
		valid = append(valid, span)
	}

	// 2. Partition by trace id, preserving batch order.
	byTrace := make(map[string][]model.Span)
	var order []string
	for _, span := range valid {
		if _, seen := byTrace[span.TraceID]; !seen {
			order = append(order, span.TraceID)
		}
		byTrace[span.TraceID] = append(byTrace[span.TraceID], span)
	}

	// 3. Per-trace dispatch.
	for _, traceID := range order {
		exists, err := storage.TraceExists(ctx, q, projectID, traceID)
		if err != nil {
			return res, err
		}
		if exists {
			if err := p.recompute(ctx, q, projectID, traceID); err != nil {
				return res, fmt.Errorf("ingest: recompute trace %s: %w", traceID, err)
			}
			res.Recomputed++
			continue
		}
		created, err := p.extractWorkingSet(ctx, q, projectID, byTrace[traceID])
		if err != nil {
			return res, fmt.Errorf("ingest: extract trace %s: %w", traceID, err)
		}
		res.Created += created
	}

	return res, nil
}

// recompute discards the trace's derived message/tool/template rows, reloads
// the complete stored span set, and re-runs extraction over it. Trace and
// execution rows are overwritten via upsert rather than deleted, so there is
// no visible empty-state window. Re-running recompute on an unchanged span
// set yields identical rows; no-op recomputes are not short-circuited.
func (p *Processor) recompute(ctx context.Context, q storage.Querier, projectID uuid.UUID, traceID string) error {
	if err := storage.DeleteDerivedRows(ctx, q, projectID, traceID); err != nil {
		return err
	}
	all, err := storage.GetSpansByTrace(ctx, q, projectID, traceID)
	if err != nil {
		return err
	}
	_, err = p.extractWorkingSet(ctx, q, projectID, all)
	return err
}

// extractWorkingSet builds the hierarchy over one trace's working set, runs
// extraction from each root, and writes the derived rows. Returns the number
// of roots whose subtree produced at least one reportable execution.
func (p *Processor) extractWorkingSet(ctx context.Context, q storage.Querier, projectID uuid.UUID, spans []model.Span) (int, error) {
	h := BuildHierarchy(spans)
	roots := h.Roots()
	if len(roots) == 0 {
		return 0, nil
	}

	extractions := make([]Extraction, 0, len(roots))
	created := 0
	for _, root := range roots {
		ex := p.extractor.Extract(ctx, root, h, projectID)
		extractions = append(extractions, ex)
		for _, exec := range ex.Executions {
			if exec.Reportable() {
				created++
				break
			}
		}
	}

	if err := storage.UpsertTrace(ctx, q, mergeTraceFields(extractions)); err != nil {
		return 0, err
	}
	for _, ex := range extractions {
		for _, exec := range ex.Executions {
			if err := storage.UpsertExecution(ctx, q, exec); err != nil {
				return 0, err
			}
		}
		if _, err := storage.InsertMessages(ctx, q, ex.Messages); err != nil {
			return 0, err
		}
		if err := storage.InsertToolInvocations(ctx, q, ex.ToolInvocations); err != nil {
			return 0, err
		}
		if _, err := storage.InsertTemplateUsages(ctx, q, ex.TemplateUsages); err != nil {
			return 0, err
		}
	}
	return created, nil
}

// mergeTraceFields combines the per-root trace summaries of one trace: the
// union of their time bounds and the dominant provider across all roots.
func mergeTraceFields(extractions []Extraction) model.Trace {
	merged := extractions[0].Trace
	counts := make(map[string]int)
	for _, ex := range extractions {
		t := ex.Trace
		if t.StartTime.Before(merged.StartTime) {
			merged.StartTime = t.StartTime
		}
		if t.EndTime.After(merged.EndTime) {
			merged.EndTime = t.EndTime
		}
		if t.Provider != nil {
			counts[*t.Provider]++
		}
	}
	best := ""
	for provider, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && provider < best) {
			best = provider
		}
	}
	if best != "" {
		merged.Provider = &best
	}
	return merged
}
