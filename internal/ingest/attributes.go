package ingest

import (
	"encoding/json"
	"strconv"
)

// Well-known span attribute slots, following the GenAI semantic conventions
// the instrumented runtimes emit.
const (
	attrSystem         = "gen_ai.system"
	attrRequestModel   = "gen_ai.request.model"
	attrResponseModel  = "gen_ai.response.model"
	attrInputTokens    = "gen_ai.usage.input_tokens"
	attrOutputTokens   = "gen_ai.usage.output_tokens"
	attrInputMessages  = "gen_ai.input.messages"
	attrOutputMessages = "gen_ai.output.messages"
	attrAgentID        = "gen_ai.agent.id"
	attrAgentName      = "gen_ai.agent.name"
	attrToolCallID     = "gen_ai.tool.call.id"

	// Legacy token slots still emitted by older instrumentations.
	attrPromptTokensLegacy     = "llm.usage.prompt_tokens"
	attrCompletionTokensLegacy = "llm.usage.completion_tokens"
)

// attrString reads a string attribute. Returns nil when absent, empty, or of
// the wrong type.
func attrString(attrs map[string]any, key string) *string {
	v, ok := attrs[key]
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// attrInt64 reads an integer attribute, tolerating the numeric types the two
// decode paths produce (int64 from protobuf, float64 from JSON) plus numeric
// strings some exporters emit.
func attrInt64(attrs map[string]any, key string) *int64 {
	v, ok := attrs[key]
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case int64:
		return &n
	case int:
		i := int64(n)
		return &i
	case float64:
		i := int64(n)
		return &i
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return &i
		}
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return &i
		}
	}
	return nil
}
