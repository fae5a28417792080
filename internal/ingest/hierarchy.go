package ingest

import (
	"sort"

	"github.com/arisu-ai/arisu/internal/model"
)

// Hierarchy indexes one trace's working set of spans for O(1) child lookup.
// Built once per extraction pass, either over the incoming batch (fast path)
// or over the full stored span set (recompute).
type Hierarchy struct {
	byID     map[string]model.Span
	children map[string][]model.Span
}

// BuildHierarchy indexes the given spans by id and by parent id. Children are
// kept in start-time order so extraction walks them deterministically.
func BuildHierarchy(spans []model.Span) *Hierarchy {
	h := &Hierarchy{
		byID:     make(map[string]model.Span, len(spans)),
		children: make(map[string][]model.Span, len(spans)),
	}
	for _, s := range spans {
		h.byID[s.SpanID] = s
		if s.ParentSpanID != nil && *s.ParentSpanID != s.SpanID {
			h.children[*s.ParentSpanID] = append(h.children[*s.ParentSpanID], s)
		}
	}
	for parent := range h.children {
		kids := h.children[parent]
		sort.SliceStable(kids, func(i, j int) bool {
			return kids[i].StartTime.Before(kids[j].StartTime)
		})
	}
	return h
}

// Span returns the span with the given id, if present in the working set.
func (h *Hierarchy) Span(spanID string) (model.Span, bool) {
	s, ok := h.byID[spanID]
	return s, ok
}

// Children returns the direct children of the given span.
func (h *Hierarchy) Children(spanID string) []model.Span {
	return h.children[spanID]
}

// Len returns the number of spans in the working set.
func (h *Hierarchy) Len() int {
	return len(h.byID)
}

// Roots returns the spans to start extraction from: meaningful spans whose
// parent is nil or absent from the working set. The absent-parent case covers
// child-first arrival, where a batch carries a subtree whose root is still in
// flight.
func (h *Hierarchy) Roots() []model.Span {
	var roots []model.Span
	for _, s := range h.byID {
		if !ClassifySpan(s).Meaningful() {
			continue
		}
		if s.ParentSpanID == nil {
			roots = append(roots, s)
			continue
		}
		if _, ok := h.byID[*s.ParentSpanID]; !ok {
			roots = append(roots, s)
		}
	}
	sort.SliceStable(roots, func(i, j int) bool {
		if roots[i].StartTime.Equal(roots[j].StartTime) {
			return roots[i].SpanID < roots[j].SpanID
		}
		return roots[i].StartTime.Before(roots[j].StartTime)
	})
	return roots
}
