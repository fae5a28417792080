package ingest

import (
	"strings"

	"github.com/arisu-ai/arisu/internal/model"
)

// classifierRule maps name keywords to a span type. Rules are evaluated in
// order: explicit operation markers must come before the generic keywords,
// because orchestrator span names routinely contain both (e.g.
// "workflow.run orchestrator-agent" is a workflow run, not an agent).
type classifierRule struct {
	keywords []string
	spanType model.SpanType
}

var classifierRules = []classifierRule{
	// Explicit operation markers.
	{[]string{"workflow.run", "workflow_run"}, model.SpanTypeWorkflowRun},
	{[]string{"workflow.build", "workflow_build"}, model.SpanTypeWorkflowBuild},
	{[]string{"executor.process", "executor_process"}, model.SpanTypeExecutorProcess},
	{[]string{"edge_group.process", "edge_group_process"}, model.SpanTypeEdgeGroupProcess},
	{[]string{"message.send", "message_send"}, model.SpanTypeMessageSend},
	// Generic keywords.
	{[]string{"invoke_agent", "invoke agent"}, model.SpanTypeAgent},
	{[]string{"chat"}, model.SpanTypeChat},
	{[]string{"tool"}, model.SpanTypeTool},
	{[]string{"llm"}, model.SpanTypeLLM},
	{[]string{"agent"}, model.SpanTypeAgent},
}

// ClassifySpan maps a span name to its semantic type by substring match
// against the lowercased name. Pure and stateless; ambiguity is never an
// error; anything unmatched is unknown.
func ClassifySpan(span model.Span) model.SpanType {
	name := strings.ToLower(span.Name)
	for _, rule := range classifierRules {
		for _, kw := range rule.keywords {
			if strings.Contains(name, kw) {
				return rule.spanType
			}
		}
	}
	return model.SpanTypeUnknown
}
