package ingest

import (
	"regexp"
	"strings"
)

// canonicalProviders maps vendor-specific system identifiers (including the
// dotted SDK namespacing some instrumentations emit) to short provider keys.
var canonicalProviders = map[string]string{
	"openai":               "openai",
	"azure.openai":         "openai",
	"azure_openai":         "openai",
	"az.ai.openai":         "openai",
	"anthropic":            "anthropic",
	"anthropic.claude":     "anthropic",
	"aws.bedrock":          "bedrock",
	"amazon.bedrock":       "bedrock",
	"gcp.gemini":           "google",
	"gcp.vertex_ai":        "google",
	"google.genai":         "google",
	"gemini":               "google",
	"vertex_ai":            "google",
	"cohere":               "cohere",
	"mistral_ai":           "mistral",
	"mistral":              "mistral",
	"groq":                 "groq",
	"ollama":               "ollama",
	"deepseek":             "deepseek",
	"xai":                  "xai",
	"ibm.watsonx.ai":       "watsonx",
	"perplexity":           "perplexity",
	"huggingface.endpoint": "huggingface",
}

// NormalizeProvider collapses a vendor-specific system string to a short
// canonical provider key. Unknown dotted names collapse to their first
// segment; anything else is passed through lowercased.
func NormalizeProvider(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	if p == "" {
		return ""
	}
	if canonical, ok := canonicalProviders[p]; ok {
		return canonical
	}
	if head, _, found := strings.Cut(p, "."); found {
		if canonical, ok := canonicalProviders[head]; ok {
			return canonical
		}
		return head
	}
	return p
}

// Dated or sequence-numbered model suffixes: gpt-4o-2024-08-06,
// claude-3-5-sonnet-20241022, gemini-1.5-pro-002.
var (
	modelDateSuffix = regexp.MustCompile(`-(\d{4}-\d{2}-\d{2}|\d{8})$`)
	modelSeqSuffix  = regexp.MustCompile(`-(\d{3})$`)
)

// modelFamilies maps known release aliases to their base model family.
var modelFamilies = map[string]string{
	"gpt-4-turbo-preview":  "gpt-4-turbo",
	"gpt-4-vision-preview": "gpt-4-turbo",
	"gpt-35-turbo":         "gpt-3.5-turbo",
	"claude-instant-1.2":   "claude-instant",
	"claude-2.0":           "claude-2",
	"claude-2.1":           "claude-2",
}

// NormalizeModel collapses a dated or suffixed model string to its base model
// family where a known mapping exists. Unknown strings are passed through
// with only the date/sequence suffix trimmed.
func NormalizeModel(mdl string) string {
	m := strings.ToLower(strings.TrimSpace(mdl))
	if m == "" {
		return ""
	}
	m = modelDateSuffix.ReplaceAllString(m, "")
	m = modelSeqSuffix.ReplaceAllString(m, "")
	if family, ok := modelFamilies[m]; ok {
		return family
	}
	return m
}
