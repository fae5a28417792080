package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/google/uuid"

	"github.com/arisu-ai/arisu/internal/model"
)

func (s *Server) registerTools() {
	// arisu_executions: list reconstructed executions with filters.
	s.mcpServer.AddTool(
		mcplib.NewTool("arisu_executions",
			mcplib.WithDescription(`List reconstructed LLM and agent executions for your project.

Each execution is one semantically meaningful span from a trace: an agent
run, an LLM call, a tool invocation, or a workflow step, with normalized
provider/model names, token counts, and computed cost.

FILTER EXAMPLES:
- All LLM calls: span_type="llm"
- One trace: trace_id="<hex trace id>"
- Everything on one model: provider="openai", model="gpt-4o"`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("trace_id",
				mcplib.Description("Filter by trace id (lowercase hex)"),
			),
			mcplib.WithString("span_type",
				mcplib.Description("Filter by execution type: agent, chat, tool, llm, workflow_run, workflow_build, executor_process, edge_group_process, message_send"),
			),
			mcplib.WithString("provider",
				mcplib.Description("Filter by normalized provider name, e.g. openai, anthropic, google"),
			),
			mcplib.WithString("model",
				mcplib.Description("Filter by normalized model name, e.g. gpt-4o, claude-3-5-sonnet"),
			),
			mcplib.WithString("agent_id",
				mcplib.Description("Filter by agent identifier"),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum results to return"),
				mcplib.Min(1),
				mcplib.Max(1000),
				mcplib.DefaultNumber(50),
			),
		),
		s.handleExecutions,
	)

	// arisu_trace_tree: full reconstruction of one trace.
	s.mcpServer.AddTool(
		mcplib.NewTool("arisu_trace_tree",
			mcplib.WithDescription(`Fetch the full reconstruction of one trace: the trace summary, its
execution tree (parent/child links via parent_span_id), the conversation
messages, and every tool invocation with arguments and results.

Use this to inspect exactly what an agent did in a single run.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("trace_id",
				mcplib.Description("The trace id to fetch (lowercase hex)"),
				mcplib.Required(),
			),
		),
		s.handleTraceTree,
	)
}

func (s *Server) handleExecutions(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	projectID := s.projectFn(ctx)
	if projectID == uuid.Nil {
		return errorResult("not authenticated"), nil
	}

	filters := model.ExecutionFilters{
		Limit: request.GetInt("limit", 50),
	}
	if v := request.GetString("trace_id", ""); v != "" {
		filters.TraceID = &v
	}
	if v := request.GetString("span_type", ""); v != "" {
		st := model.SpanType(v)
		filters.SpanType = &st
	}
	if v := request.GetString("provider", ""); v != "" {
		filters.Provider = &v
	}
	if v := request.GetString("model", ""); v != "" {
		filters.Model = &v
	}
	if v := request.GetString("agent_id", ""); v != "" {
		filters.AgentID = &v
	}

	executions, err := s.db.ListExecutions(ctx, projectID, filters)
	if err != nil {
		return errorResult(fmt.Sprintf("query failed: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"executions": executions,
		"count":      len(executions),
	}), nil
}

func (s *Server) handleTraceTree(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	projectID := s.projectFn(ctx)
	if projectID == uuid.Nil {
		return errorResult("not authenticated"), nil
	}

	traceID, err := request.RequireString("trace_id")
	if err != nil {
		return errorResult("trace_id is required"), nil
	}

	trace, err := s.db.GetTrace(ctx, projectID, traceID)
	if err != nil {
		return errorResult(fmt.Sprintf("trace not found: %v", err)), nil
	}
	executions, err := s.db.GetExecutionsByTrace(ctx, projectID, traceID)
	if err != nil {
		return errorResult(fmt.Sprintf("load executions failed: %v", err)), nil
	}
	messages, err := s.db.GetMessagesByTrace(ctx, projectID, traceID)
	if err != nil {
		return errorResult(fmt.Sprintf("load messages failed: %v", err)), nil
	}
	tools, err := s.db.GetToolInvocationsByTrace(ctx, projectID, traceID)
	if err != nil {
		return errorResult(fmt.Sprintf("load tool invocations failed: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"trace":            trace,
		"executions":       executions,
		"messages":         messages,
		"tool_invocations": tools,
	}), nil
}

func jsonResult(data any) *mcplib.CallToolResult {
	encoded, _ := json.MarshalIndent(data, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(encoded)},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		IsError: true,
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
	}
}
