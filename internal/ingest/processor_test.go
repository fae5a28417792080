package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arisu-ai/arisu/internal/model"
	"github.com/arisu-ai/arisu/internal/pricing"
	"github.com/arisu-ai/arisu/internal/storage"
	"github.com/arisu-ai/arisu/internal/testutil"
)

var (
	pgOnce sync.Once
	pgDB   *storage.DB
	pgErr  error
)

// integrationDB starts one shared Postgres container for the processor tests.
// The container is reaped by the testcontainers sidecar after the run.
func integrationDB(t *testing.T) *storage.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("requires docker")
	}
	pgOnce.Do(func() {
		tc := testutil.MustStartPostgres()
		pgDB, pgErr = tc.NewTestDB(context.Background(), testutil.TestLogger())
	})
	if pgErr != nil {
		t.Fatalf("setup: %v", pgErr)
	}
	return pgDB
}

func newTestProcessor() *Processor {
	return NewProcessor(NewExtractor(pricing.NewTable(), testLogger()), testLogger())
}

func createTestProject(t *testing.T, db *storage.DB) uuid.UUID {
	t.Helper()
	p, err := db.CreateProject(context.Background(), "ingest-"+uuid.NewString())
	require.NoError(t, err)
	return p.ID
}

// runBatch executes one Process call inside a committed transaction, the way
// the HTTP and gRPC receivers do.
func runBatch(t *testing.T, db *storage.DB, projectID uuid.UUID, spans []model.Span) Result {
	t.Helper()
	ctx := context.Background()
	tx, err := db.Pool().Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := newTestProcessor().Process(ctx, tx, projectID, spans)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	return res
}

func tspan(traceID, spanID string, parent *string, name string, start time.Time) model.Span {
	s := span(spanID, parent, name, start)
	s.TraceID = traceID
	return s
}

func TestProcessFastPath(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()
	projectID := createTestProject(t, db)
	traceID := uuid.NewString()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	root := tspan(traceID, "root", nil, "agent planner", base)
	root.EndTime = base.Add(10 * time.Second)

	llm := tspan(traceID, "llm1", ptr("root"), "chat gpt-4o", base.Add(time.Second))
	llm.Attributes = map[string]any{
		"gen_ai.system":              "openai",
		"gen_ai.response.model":      "gpt-4o",
		"gen_ai.usage.input_tokens":  int64(100),
		"gen_ai.usage.output_tokens": int64(40),
		"gen_ai.input.messages":      `[{"role":"user","content":"Hi"}]`,
		"gen_ai.output.messages":     `[{"role":"assistant","content":"Hello"}]`,
	}

	res := runBatch(t, db, projectID, []model.Span{root, llm})
	assert.Equal(t, Result{Stored: 2, Created: 1, Recomputed: 0}, res)

	tr, err := db.GetTrace(ctx, projectID, traceID)
	require.NoError(t, err)
	require.NotNil(t, tr.Provider)
	assert.Equal(t, "openai", *tr.Provider)

	executions, err := db.GetExecutionsByTrace(ctx, projectID, traceID)
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, model.SpanTypeAgent, executions[0].SpanType)
	assert.Equal(t, model.SpanTypeChat, executions[1].SpanType)
	require.NotNil(t, executions[1].TotalCost)

	messages, err := db.GetMessagesByTrace(ctx, projectID, traceID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestProcessDuplicateBatchIsIdempotent(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()
	projectID := createTestProject(t, db)
	traceID := uuid.NewString()
	base := time.Now().UTC()

	root := tspan(traceID, "root", nil, "agent main", base)
	llm := tspan(traceID, "llm1", ptr("root"), "chat gpt-4o", base.Add(time.Second))
	llm.Attributes = map[string]any{
		"gen_ai.system":         "openai",
		"gen_ai.request.model":  "gpt-4o",
		"gen_ai.input.messages": `[{"role":"user","content":"Hi"}]`,
	}
	batch := []model.Span{root, llm}

	first := runBatch(t, db, projectID, batch)
	assert.Equal(t, Result{Stored: 2, Created: 1, Recomputed: 0}, first)

	traceBefore, err := db.GetTrace(ctx, projectID, traceID)
	require.NoError(t, err)
	executionsBefore, err := db.GetExecutionsByTrace(ctx, projectID, traceID)
	require.NoError(t, err)
	require.Len(t, executionsBefore, 2)

	// An exporter retry resends the whole batch. Spans are acknowledged as
	// stored again, the existing trace is recomputed, nothing duplicates.
	second := runBatch(t, db, projectID, batch)
	assert.Equal(t, Result{Stored: 2, Created: 0, Recomputed: 1}, second)

	n, err := storage.CountSpansByTrace(ctx, db.Pool(), projectID, traceID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// Recompute over an unchanged span set yields identical rows: the trace
	// differs only in updated_at, the executions not at all.
	traceAfter, err := db.GetTrace(ctx, projectID, traceID)
	require.NoError(t, err)
	traceAfter.UpdatedAt = traceBefore.UpdatedAt
	assert.Equal(t, traceBefore, traceAfter)

	executionsAfter, err := db.GetExecutionsByTrace(ctx, projectID, traceID)
	require.NoError(t, err)
	assert.Equal(t, executionsBefore, executionsAfter)

	messages, err := db.GetMessagesByTrace(ctx, projectID, traceID)
	require.NoError(t, err)
	assert.Len(t, messages, 1, "recompute replaces derived rows, never stacks them")
}

// A batch can carry a subtree whose parent span is still in flight: the child
// lands first as a provisional root, and the parent's later arrival must
// re-link it through recompute.
func TestProcessLateParentRelinksChild(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()
	projectID := createTestProject(t, db)
	traceID := uuid.NewString()
	base := time.Now().UTC()

	child := tspan(traceID, "llm1", ptr("root"), "chat gpt-4o", base.Add(time.Second))
	child.Attributes = map[string]any{
		"gen_ai.system":        "openai",
		"gen_ai.request.model": "gpt-4o",
	}

	first := runBatch(t, db, projectID, []model.Span{child})
	assert.Equal(t, Result{Stored: 1, Created: 1, Recomputed: 0}, first)

	executions, err := db.GetExecutionsByTrace(ctx, projectID, traceID)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Nil(t, executions[0].ParentSpanID, "topmost present span acts as root")

	parent := tspan(traceID, "root", nil, "agent main", base)
	second := runBatch(t, db, projectID, []model.Span{parent})
	assert.Equal(t, Result{Stored: 1, Created: 0, Recomputed: 1}, second)

	executions, err = db.GetExecutionsByTrace(ctx, projectID, traceID)
	require.NoError(t, err)
	require.Len(t, executions, 2)

	agent := executions[0]
	assert.Equal(t, "root", agent.SpanID)
	assert.Nil(t, agent.ParentSpanID)

	llm := executions[1]
	assert.Equal(t, "llm1", llm.SpanID)
	require.NotNil(t, llm.ParentSpanID)
	assert.Equal(t, "root", *llm.ParentSpanID)
}

func TestProcessLateArrivalResolvesPendingTool(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()
	projectID := createTestProject(t, db)
	traceID := uuid.NewString()
	base := time.Now().UTC()

	root := tspan(traceID, "root", nil, "agent main", base)
	root.Attributes = map[string]any{
		"gen_ai.output.messages": `[{"role":"assistant","parts":[
			{"type":"tool_call","id":"call-1","name":"get_weather","arguments":"{\"city\":\"Tokyo\"}"}
		]}]`,
	}

	first := runBatch(t, db, projectID, []model.Span{root})
	assert.Equal(t, Result{Stored: 1, Created: 0, Recomputed: 0}, first)

	tools, err := db.GetToolInvocationsByTrace(ctx, projectID, traceID)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, model.ToolCallPending, tools[0].Status)

	// The tool span arrives in a later flush. Recompute over the full stored
	// span set pairs the response with the earlier call.
	toolSpan := tspan(traceID, "tool1", ptr("root"), "tool get_weather", base.Add(time.Second))
	toolSpan.Attributes = map[string]any{
		"gen_ai.tool.call.id": "call-1",
		"gen_ai.input.messages": `[{"role":"tool","parts":[
			{"type":"tool_call_response","id":"call-1","response":{"temp_c":21}}
		]}]`,
	}

	second := runBatch(t, db, projectID, []model.Span{toolSpan})
	assert.Equal(t, Result{Stored: 1, Created: 0, Recomputed: 1}, second)

	tools, err = db.GetToolInvocationsByTrace(ctx, projectID, traceID)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, model.ToolCallOK, tools[0].Status)
	assert.Equal(t, map[string]any{"temp_c": float64(21)}, tools[0].Result)
	require.NotNil(t, tools[0].StartTime)
}

func TestProcessMultipleTracesInOneBatch(t *testing.T) {
	db := integrationDB(t)
	projectID := createTestProject(t, db)
	traceA := uuid.NewString()
	traceB := uuid.NewString()
	base := time.Now().UTC()

	a := tspan(traceA, "a1", nil, "chat gpt-4o", base)
	a.Attributes = map[string]any{"gen_ai.system": "openai", "gen_ai.request.model": "gpt-4o"}
	b := tspan(traceB, "b1", nil, "chat claude", base)
	b.Attributes = map[string]any{"gen_ai.system": "anthropic", "gen_ai.request.model": "claude-3-5-sonnet"}

	res := runBatch(t, db, projectID, []model.Span{a, b})
	assert.Equal(t, Result{Stored: 2, Created: 2, Recomputed: 0}, res)
}

func TestProcessDropsInvalidSpans(t *testing.T) {
	db := integrationDB(t)
	projectID := createTestProject(t, db)
	traceID := uuid.NewString()
	base := time.Now().UTC()

	good := tspan(traceID, "ok", nil, "chat gpt-4o", base)
	bad := tspan(traceID, "", nil, "missing id", base)

	res := runBatch(t, db, projectID, []model.Span{good, bad})
	assert.Equal(t, 1, res.Stored)
}

func TestProcessRequiresProject(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()

	tx, err := db.Pool().Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = newTestProcessor().Process(ctx, tx, uuid.Nil, []model.Span{
		tspan(uuid.NewString(), "s1", nil, "chat", time.Now().UTC()),
	})
	assert.ErrorIs(t, err, ErrNoProject)
}

func TestProcessEmptyBatch(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()

	tx, err := db.Pool().Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = newTestProcessor().Process(ctx, tx, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}
