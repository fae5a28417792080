package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arisu-ai/arisu/internal/model"
)

func TestClassifySpan(t *testing.T) {
	tests := []struct {
		name string
		want model.SpanType
	}{
		{"workflow.run", model.SpanTypeWorkflowRun},
		{"workflow_run step-4", model.SpanTypeWorkflowRun},
		{"workflow.build graph", model.SpanTypeWorkflowBuild},
		{"executor.process node-7", model.SpanTypeExecutorProcess},
		{"edge_group.process fanout", model.SpanTypeEdgeGroupProcess},
		{"message.send user-channel", model.SpanTypeMessageSend},
		{"invoke_agent researcher", model.SpanTypeAgent},
		{"chat gpt-4o", model.SpanTypeChat},
		{"tool get_weather", model.SpanTypeTool},
		{"llm completion", model.SpanTypeLLM},
		{"agent planner", model.SpanTypeAgent},
		{"CHAT GPT-4O", model.SpanTypeChat},
		{"db.query users", model.SpanTypeUnknown},
		{"", model.SpanTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifySpan(model.Span{Name: tt.name})
			assert.Equal(t, tt.want, got)
		})
	}
}

// Orchestrator span names routinely carry both an operation marker and a
// generic keyword. The marker must win.
func TestClassifySpanMarkerPrecedence(t *testing.T) {
	tests := []struct {
		name string
		want model.SpanType
	}{
		{"workflow.run orchestrator-agent", model.SpanTypeWorkflowRun},
		{"executor.process tool-node", model.SpanTypeExecutorProcess},
		{"message.send to chat channel", model.SpanTypeMessageSend},
		{"invoke_agent tool-user", model.SpanTypeAgent},
	}
	for _, tt := range tests {
		got := ClassifySpan(model.Span{Name: tt.name})
		assert.Equal(t, tt.want, got, "name %q", tt.name)
	}
}

func TestSpanTypeMeaningful(t *testing.T) {
	assert.True(t, model.SpanTypeLLM.Meaningful())
	assert.True(t, model.SpanTypeWorkflowRun.Meaningful())
	assert.False(t, model.SpanTypeUnknown.Meaningful())
	assert.False(t, model.SpanType("").Meaningful())
}
