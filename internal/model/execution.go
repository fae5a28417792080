package model

import (
	"time"

	"github.com/google/uuid"
)

// SpanType is the semantic classification of a span derived from its name.
type SpanType string

const (
	SpanTypeAgent            SpanType = "agent"
	SpanTypeChat             SpanType = "chat"
	SpanTypeTool             SpanType = "tool"
	SpanTypeLLM              SpanType = "llm"
	SpanTypeWorkflowRun      SpanType = "workflow_run"
	SpanTypeWorkflowBuild    SpanType = "workflow_build"
	SpanTypeExecutorProcess  SpanType = "executor_process"
	SpanTypeEdgeGroupProcess SpanType = "edge_group_process"
	SpanTypeMessageSend      SpanType = "message_send"
	SpanTypeUnknown          SpanType = "unknown"
)

// Meaningful reports whether spans of this type produce execution records.
func (t SpanType) Meaningful() bool {
	return t != SpanTypeUnknown && t != ""
}

// Trace is the per-trace summary row. Upserted wholesale on every
// recompute, never incrementally patched.
type Trace struct {
	TraceID    string         `json:"trace_id"`
	ProjectID  uuid.UUID      `json:"project_id"`
	Provider   *string        `json:"provider,omitempty"`
	StartTime  time.Time      `json:"start_time"`
	EndTime    time.Time      `json:"end_time"`
	Attributes map[string]any `json:"attributes,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Execution is one derived, queryable record per meaningful span:
// an agent run, a chat call, a tool invocation, an LLM call.
type Execution struct {
	TraceID       string         `json:"trace_id"`
	SpanID        string         `json:"span_id"`
	ProjectID     uuid.UUID      `json:"project_id"`
	ParentSpanID  *string        `json:"parent_span_id,omitempty"`
	SpanType      SpanType       `json:"span_type"`
	Name          string         `json:"name"`
	AgentID       *string        `json:"agent_id,omitempty"`
	AgentName     *string        `json:"agent_name,omitempty"`
	Provider      *string        `json:"provider,omitempty"`
	Model         *string        `json:"model,omitempty"`
	InputTokens   *int64         `json:"input_tokens,omitempty"`
	OutputTokens  *int64         `json:"output_tokens,omitempty"`
	InputCost     *float64       `json:"input_cost,omitempty"`
	OutputCost    *float64       `json:"output_cost,omitempty"`
	TotalCost     *float64       `json:"total_cost,omitempty"`
	Status        StatusCode     `json:"status"`
	StatusMessage string         `json:"status_message,omitempty"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       time.Time      `json:"end_time"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Reportable reports whether this execution carries model activity worth
// counting. Orchestration-only spans (no tokens, no provider, no model)
// still exist as structural parents but are excluded from aggregate
// reporting.
func (e Execution) Reportable() bool {
	return e.InputTokens != nil || e.OutputTokens != nil ||
		e.Provider != nil || e.Model != nil
}
