package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeProvider(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"openai", "openai"},
		{"azure.openai", "openai"},
		{"OpenAI", "openai"},
		{" anthropic ", "anthropic"},
		{"aws.bedrock", "bedrock"},
		{"gcp.gemini", "google"},
		{"gcp.vertex_ai", "google"},
		{"ibm.watsonx.ai", "watsonx"},
		{"mistral_ai", "mistral"},
		{"somevendor.subsystem", "somevendor"},
		{"customprovider", "customprovider"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeProvider(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeModel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"gpt-4o-2024-08-06", "gpt-4o"},
		{"claude-3-5-sonnet-20241022", "claude-3-5-sonnet"},
		{"gemini-1.5-pro-002", "gemini-1.5-pro"},
		{"gpt-4-turbo-preview", "gpt-4-turbo"},
		{"gpt-35-turbo", "gpt-3.5-turbo"},
		{"claude-2.1", "claude-2"},
		{"GPT-4o", "gpt-4o"},
		{"my-custom-model", "my-custom-model"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeModel(tt.in), "input %q", tt.in)
	}
}
