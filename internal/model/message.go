package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageDirection distinguishes prompt messages from completion messages.
type MessageDirection string

const (
	DirectionInput  MessageDirection = "input"
	DirectionOutput MessageDirection = "output"
)

// MessageRole is the conversational role of one message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message part types. A part is one typed content fragment within a message.
const (
	PartTypeText             = "text"
	PartTypeToolCall         = "tool_call"
	PartTypeToolCallResponse = "tool_call_response"
)

// MessagePart is one ordered content fragment of a conversation message.
// Which fields are populated depends on Type: text parts carry Text,
// tool_call parts carry ID/Name/Arguments, tool_call_response parts carry
// ID and Response.
type MessagePart struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Response  any            `json:"response,omitempty"`
}

// ExecutionMessage is one normalized conversation turn belonging to an
// execution. (trace_id, span_id, direction, idx) is the ordering key.
type ExecutionMessage struct {
	TraceID   string           `json:"trace_id"`
	SpanID    string           `json:"span_id"`
	ProjectID uuid.UUID        `json:"project_id"`
	Direction MessageDirection `json:"direction"`
	Idx       int              `json:"idx"`
	Role      MessageRole      `json:"role"`
	Parts     []MessagePart    `json:"parts"`
	CreatedAt time.Time        `json:"created_at"`
}

// ToolCallStatus is the lifecycle state of one tool invocation.
type ToolCallStatus string

const (
	ToolCallPending ToolCallStatus = "pending"
	ToolCallOK      ToolCallStatus = "ok"
	ToolCallError   ToolCallStatus = "error"
)

// ToolInvocation pairs a tool_call fragment with its tool_call_response.
// Status stays pending until a recompute supplies the response.
type ToolInvocation struct {
	TraceID    string         `json:"trace_id"`
	SpanID     string         `json:"span_id"`
	ProjectID  uuid.UUID      `json:"project_id"`
	ToolCallID string         `json:"tool_call_id"`
	Name       string         `json:"name"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Result     any            `json:"result,omitempty"`
	Status     ToolCallStatus `json:"status"`
	StartTime  *time.Time     `json:"start_time,omitempty"`
	EndTime    *time.Time     `json:"end_time,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// TemplateUsage links a message to the prompt template that produced it.
// Owned entirely by the ingestion core on write; the template registry only
// reads these rows for display.
type TemplateUsage struct {
	TraceID    string           `json:"trace_id"`
	SpanID     string           `json:"span_id"`
	ProjectID  uuid.UUID        `json:"project_id"`
	TemplateID string           `json:"template_id"`
	Version    string           `json:"version,omitempty"`
	Direction  MessageDirection `json:"direction"`
	Position   int              `json:"position"`
	Role       MessageRole      `json:"role"`
	Source     string           `json:"source,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}
