package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arisu-ai/arisu/internal/model"
)

func span(id string, parent *string, name string, start time.Time) model.Span {
	return model.Span{
		TraceID:      "trace-1",
		SpanID:       id,
		ParentSpanID: parent,
		Name:         name,
		Kind:         model.SpanKindInternal,
		StartTime:    start,
		EndTime:      start.Add(time.Second),
		StatusCode:   model.StatusOK,
	}
}

func ptr[T any](v T) *T { return &v }

func TestBuildHierarchyChildren(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	spans := []model.Span{
		span("root", nil, "agent main", base),
		span("c2", ptr("root"), "llm call two", base.Add(2*time.Second)),
		span("c1", ptr("root"), "llm call one", base.Add(time.Second)),
		span("gc", ptr("c1"), "tool lookup", base.Add(time.Second)),
	}

	h := BuildHierarchy(spans)
	assert.Equal(t, 4, h.Len())

	kids := h.Children("root")
	require.Len(t, kids, 2)
	assert.Equal(t, "c1", kids[0].SpanID, "children sorted by start time")
	assert.Equal(t, "c2", kids[1].SpanID)

	_, ok := h.Span("gc")
	assert.True(t, ok)
	_, ok = h.Span("missing")
	assert.False(t, ok)
}

func TestRootsMeaningfulOnly(t *testing.T) {
	base := time.Now().UTC()
	spans := []model.Span{
		span("a", nil, "agent planner", base),
		span("b", nil, "db.query users", base), // not meaningful, never a root
		span("c", ptr("a"), "llm call", base.Add(time.Second)),
	}

	roots := BuildHierarchy(spans).Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, "a", roots[0].SpanID)
}

// A batch can carry a subtree whose root span is still in flight. The
// topmost present meaningful span acts as root.
func TestRootsAbsentParent(t *testing.T) {
	base := time.Now().UTC()
	spans := []model.Span{
		span("child", ptr("not-yet-arrived"), "chat gpt-4o", base),
		span("leaf", ptr("child"), "tool search", base.Add(time.Second)),
	}

	roots := BuildHierarchy(spans).Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, "child", roots[0].SpanID)
}

func TestRootsDeterministicOrder(t *testing.T) {
	base := time.Now().UTC()
	spans := []model.Span{
		span("b-root", nil, "agent two", base),
		span("a-root", nil, "agent one", base),
	}

	roots := BuildHierarchy(spans).Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, "a-root", roots[0].SpanID, "ties broken by span id")
	assert.Equal(t, "b-root", roots[1].SpanID)
}
