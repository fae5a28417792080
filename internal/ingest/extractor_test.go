package ingest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arisu-ai/arisu/internal/model"
	"github.com/arisu-ai/arisu/internal/pricing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func extractOne(t *testing.T, spans []model.Span) Extraction {
	t.Helper()
	h := BuildHierarchy(spans)
	roots := h.Roots()
	require.Len(t, roots, 1)
	x := NewExtractor(pricing.NewTable(), testLogger())
	return x.Extract(context.Background(), roots[0], h, uuid.New())
}

func TestExtractAgentWithLLMCall(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	root := span("root", nil, "agent planner", base)
	root.EndTime = base.Add(10 * time.Second)
	root.Attributes = map[string]any{
		"gen_ai.agent.id":   "planner-1",
		"gen_ai.agent.name": "Planner",
	}

	llm := span("llm1", ptr("root"), "chat gpt-4o", base.Add(time.Second))
	llm.Attributes = map[string]any{
		"gen_ai.system":              "azure.openai",
		"gen_ai.response.model":      "gpt-4o-2024-08-06",
		"gen_ai.usage.input_tokens":  int64(120),
		"gen_ai.usage.output_tokens": int64(80),
		"gen_ai.input.messages":      `[{"role":"user","content":"Hi"}]`,
		"gen_ai.output.messages":     `[{"role":"assistant","parts":[{"type":"text","text":"Hello"}]}]`,
	}

	ex := extractOne(t, []model.Span{root, llm})
	require.Len(t, ex.Executions, 2)

	agent := ex.Executions[0]
	assert.Equal(t, model.SpanTypeAgent, agent.SpanType)
	assert.Nil(t, agent.ParentSpanID)
	require.NotNil(t, agent.AgentID)
	assert.Equal(t, "planner-1", *agent.AgentID)
	assert.False(t, agent.Reportable(), "orchestration-only span carries no model activity")

	call := ex.Executions[1]
	assert.Equal(t, model.SpanTypeChat, call.SpanType)
	require.NotNil(t, call.ParentSpanID)
	assert.Equal(t, "root", *call.ParentSpanID)
	require.NotNil(t, call.Provider)
	assert.Equal(t, "openai", *call.Provider)
	require.NotNil(t, call.Model)
	assert.Equal(t, "gpt-4o", *call.Model)
	require.NotNil(t, call.InputTokens)
	assert.Equal(t, int64(120), *call.InputTokens)
	require.NotNil(t, call.TotalCost)
	assert.InDelta(t, 120.0/1e6*2.50+80.0/1e6*10.00, *call.TotalCost, 1e-12)
	assert.True(t, call.Reportable())

	require.Len(t, ex.Messages, 2)
	assert.Equal(t, model.DirectionInput, ex.Messages[0].Direction)
	assert.Equal(t, model.RoleUser, ex.Messages[0].Role)
	require.Len(t, ex.Messages[0].Parts, 1)
	assert.Equal(t, "Hi", ex.Messages[0].Parts[0].Text)
	assert.Equal(t, model.DirectionOutput, ex.Messages[1].Direction)

	// Trace summary: bounds over the subtree, dominant provider.
	assert.Equal(t, base, ex.Trace.StartTime)
	assert.Equal(t, base.Add(10*time.Second), ex.Trace.EndTime)
	require.NotNil(t, ex.Trace.Provider)
	assert.Equal(t, "openai", *ex.Trace.Provider)
}

func TestExtractLegacyTokenSlots(t *testing.T) {
	base := time.Now().UTC()
	s := span("s1", nil, "llm completion", base)
	s.Attributes = map[string]any{
		"llm.usage.prompt_tokens":     int64(10),
		"llm.usage.completion_tokens": int64(5),
	}

	ex := extractOne(t, []model.Span{s})
	require.Len(t, ex.Executions, 1)
	require.NotNil(t, ex.Executions[0].InputTokens)
	assert.Equal(t, int64(10), *ex.Executions[0].InputTokens)
	require.NotNil(t, ex.Executions[0].OutputTokens)
	assert.Equal(t, int64(5), *ex.Executions[0].OutputTokens)
}

func TestExtractUnknownModelSkipsCost(t *testing.T) {
	base := time.Now().UTC()
	s := span("s1", nil, "chat", base)
	s.Attributes = map[string]any{
		"gen_ai.system":             "openai",
		"gen_ai.request.model":      "my-finetune",
		"gen_ai.usage.input_tokens": int64(50),
	}

	ex := extractOne(t, []model.Span{s})
	require.Len(t, ex.Executions, 1)
	assert.Nil(t, ex.Executions[0].TotalCost, "unknown model drops cost, keeps tokens")
	require.NotNil(t, ex.Executions[0].InputTokens)
}

func TestExtractNilPricerLeavesCostUnset(t *testing.T) {
	base := time.Now().UTC()
	s := span("s1", nil, "chat gpt-4o", base)
	s.Attributes = map[string]any{
		"gen_ai.system":              "openai",
		"gen_ai.request.model":       "gpt-4o",
		"gen_ai.usage.input_tokens":  int64(100),
		"gen_ai.usage.output_tokens": int64(50),
	}

	h := BuildHierarchy([]model.Span{s})
	roots := h.Roots()
	require.Len(t, roots, 1)
	x := NewExtractor(nil, testLogger())
	ex := x.Extract(context.Background(), roots[0], h, uuid.New())

	require.Len(t, ex.Executions, 1)
	exec := ex.Executions[0]
	require.NotNil(t, exec.InputTokens)
	assert.Nil(t, exec.InputCost, "absent pricing stays distinguishable from free")
	assert.Nil(t, exec.OutputCost)
	assert.Nil(t, exec.TotalCost)
}

func TestExtractNoopPricerStoresZeroCost(t *testing.T) {
	base := time.Now().UTC()
	s := span("s1", nil, "chat gpt-4o", base)
	s.Attributes = map[string]any{
		"gen_ai.system":             "openai",
		"gen_ai.request.model":      "gpt-4o",
		"gen_ai.usage.input_tokens": int64(100),
	}

	h := BuildHierarchy([]model.Span{s})
	roots := h.Roots()
	require.Len(t, roots, 1)
	x := NewExtractor(pricing.Noop{}, testLogger())
	ex := x.Extract(context.Background(), roots[0], h, uuid.New())

	require.Len(t, ex.Executions, 1)
	exec := ex.Executions[0]
	require.NotNil(t, exec.TotalCost)
	assert.Zero(t, *exec.TotalCost)
}

func TestExtractTemplateMarkers(t *testing.T) {
	base := time.Now().UTC()
	s := span("s1", nil, "chat gpt-4o", base)
	s.Attributes = map[string]any{
		"gen_ai.input.messages": `[{"role":"system","parts":[{"type":"text","text":"[[tpl:greet@v2]] You are helpful."}]}]`,
	}

	ex := extractOne(t, []model.Span{s})
	require.Len(t, ex.TemplateUsages, 1)
	usage := ex.TemplateUsages[0]
	assert.Equal(t, "greet", usage.TemplateID)
	assert.Equal(t, "v2", usage.Version)
	assert.Equal(t, model.DirectionInput, usage.Direction)
	assert.Equal(t, model.RoleSystem, usage.Role)
	assert.Equal(t, 0, usage.Position)

	require.Len(t, ex.Messages, 1)
	require.Len(t, ex.Messages[0].Parts, 1)
	assert.Equal(t, "You are helpful.", ex.Messages[0].Parts[0].Text, "marker stripped from stored text")
}

func TestExtractTemplateMarkerNoVersion(t *testing.T) {
	base := time.Now().UTC()
	s := span("s1", nil, "chat", base)
	s.Attributes = map[string]any{
		"gen_ai.input.messages": `[{"role":"user","content":"[[tpl:onboarding]] welcome"}]`,
	}

	ex := extractOne(t, []model.Span{s})
	require.Len(t, ex.TemplateUsages, 1)
	assert.Equal(t, "onboarding", ex.TemplateUsages[0].TemplateID)
	assert.Empty(t, ex.TemplateUsages[0].Version)
}

func TestExtractToolCallPairing(t *testing.T) {
	base := time.Now().UTC()
	root := span("root", nil, "agent main", base)
	root.Attributes = map[string]any{
		"gen_ai.output.messages": `[{"role":"assistant","parts":[
			{"type":"tool_call","id":"call-1","name":"get_weather","arguments":"{\"city\":\"Tokyo\"}"}
		]}]`,
	}

	toolSpan := span("tool1", ptr("root"), "tool get_weather", base.Add(time.Second))
	toolSpan.Attributes = map[string]any{
		"gen_ai.tool.call.id": "call-1",
		"gen_ai.input.messages": `[{"role":"tool","parts":[
			{"type":"tool_call_response","id":"call-1","response":{"temp_c":21}}
		]}]`,
	}

	ex := extractOne(t, []model.Span{root, toolSpan})
	require.Len(t, ex.ToolInvocations, 1)

	inv := ex.ToolInvocations[0]
	assert.Equal(t, "call-1", inv.ToolCallID)
	assert.Equal(t, "get_weather", inv.Name)
	assert.Equal(t, map[string]any{"city": "Tokyo"}, inv.Arguments)
	assert.Equal(t, model.ToolCallOK, inv.Status)
	assert.Equal(t, map[string]any{"temp_c": float64(21)}, inv.Result)
	require.NotNil(t, inv.StartTime)
	assert.Equal(t, toolSpan.StartTime, *inv.StartTime)
}

func TestExtractToolCallPending(t *testing.T) {
	base := time.Now().UTC()
	root := span("root", nil, "agent main", base)
	root.Attributes = map[string]any{
		"gen_ai.output.messages": `[{"role":"assistant","parts":[
			{"type":"tool_call","id":"call-9","name":"search"}
		]}]`,
	}

	ex := extractOne(t, []model.Span{root})
	require.Len(t, ex.ToolInvocations, 1)
	assert.Equal(t, model.ToolCallPending, ex.ToolInvocations[0].Status)
	assert.Nil(t, ex.ToolInvocations[0].Result)
}

func TestExtractToolCallErrorStatus(t *testing.T) {
	base := time.Now().UTC()
	root := span("root", nil, "agent main", base)
	root.Attributes = map[string]any{
		"gen_ai.output.messages": `[{"role":"assistant","parts":[
			{"type":"tool_call","id":"call-2","name":"flaky"}
		]}]`,
	}
	toolSpan := span("tool2", ptr("root"), "tool flaky", base.Add(time.Second))
	toolSpan.StatusCode = model.StatusError
	toolSpan.Attributes = map[string]any{"gen_ai.tool.call.id": "call-2"}

	ex := extractOne(t, []model.Span{root, toolSpan})
	require.Len(t, ex.ToolInvocations, 1)
	assert.Equal(t, model.ToolCallError, ex.ToolInvocations[0].Status)
}

func TestExtractMalformedMessagesSkipped(t *testing.T) {
	base := time.Now().UTC()
	s := span("s1", nil, "chat gpt-4o", base)
	s.Attributes = map[string]any{
		"gen_ai.input.messages":  `this is not json`,
		"gen_ai.output.messages": `[{"role":"assistant","content":"still extracted"}]`,
	}

	ex := extractOne(t, []model.Span{s})
	require.Len(t, ex.Executions, 1, "malformed slot never aborts the span")
	require.Len(t, ex.Messages, 1)
	assert.Equal(t, model.DirectionOutput, ex.Messages[0].Direction)
}

func TestExtractMessageListAsSlice(t *testing.T) {
	base := time.Now().UTC()
	s := span("s1", nil, "chat", base)
	s.Attributes = map[string]any{
		"gen_ai.input.messages": []any{
			map[string]any{"role": "user", "content": "already decoded"},
		},
	}

	ex := extractOne(t, []model.Span{s})
	require.Len(t, ex.Messages, 1)
	assert.Equal(t, "already decoded", ex.Messages[0].Parts[0].Text)
}

func TestExtractRoleDefaults(t *testing.T) {
	base := time.Now().UTC()
	s := span("s1", nil, "chat", base)
	s.Attributes = map[string]any{
		"gen_ai.input.messages":  `[{"content":"no role"}]`,
		"gen_ai.output.messages": `[{"role":"weird","content":"bad role"}]`,
	}

	ex := extractOne(t, []model.Span{s})
	require.Len(t, ex.Messages, 2)
	assert.Equal(t, model.RoleUser, ex.Messages[0].Role)
	assert.Equal(t, model.RoleAssistant, ex.Messages[1].Role)
}

func TestExtractSkipsNonMeaningfulChildren(t *testing.T) {
	base := time.Now().UTC()
	root := span("root", nil, "agent main", base)
	dbSpan := span("db", ptr("root"), "db.query users", base.Add(time.Second))
	llm := span("llm", ptr("db"), "llm call", base.Add(2*time.Second))

	ex := extractOne(t, []model.Span{root, dbSpan, llm})
	require.Len(t, ex.Executions, 2, "plumbing span produces no execution")

	// The llm execution's parent is the nearest meaningful ancestor.
	require.NotNil(t, ex.Executions[1].ParentSpanID)
	assert.Equal(t, "root", *ex.Executions[1].ParentSpanID)
}
