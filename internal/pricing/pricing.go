// Package pricing resolves token costs for (provider, model, token counts).
//
// The ingestion core treats pricing as an external collaborator: the
// extractor invokes Service and stores whatever it returns, keeping all
// pricing knowledge out of the extraction logic. Table is the bundled
// implementation; deployments can substitute a billing-backed one.
package pricing

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownModel is returned when no rate exists for a provider/model pair.
var ErrUnknownModel = errors.New("pricing: unknown provider/model")

// Cost is the computed cost of one execution, in USD.
type Cost struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
	Total  float64 `json:"total"`
}

// Service computes the cost of a call given normalized provider and model
// strings and the token counts copied from span attributes.
type Service interface {
	Cost(ctx context.Context, provider, model string, inputTokens, outputTokens int64) (Cost, error)
}

// rate holds per-million-token prices in USD.
type rate struct {
	inputPerM  float64
	outputPerM float64
}

// Table is a static in-process rate table keyed by "provider/model".
type Table struct {
	rates map[string]rate
}

// NewTable returns a Table seeded with rates for common models. Rates are
// per million tokens.
func NewTable() *Table {
	return &Table{rates: map[string]rate{
		"openai/gpt-4o":               {2.50, 10.00},
		"openai/gpt-4o-mini":          {0.15, 0.60},
		"openai/gpt-4-turbo":          {10.00, 30.00},
		"openai/gpt-3.5-turbo":        {0.50, 1.50},
		"anthropic/claude-3-5-sonnet": {3.00, 15.00},
		"anthropic/claude-3-5-haiku":  {0.80, 4.00},
		"anthropic/claude-3-opus":     {15.00, 75.00},
		"google/gemini-1.5-pro":       {1.25, 5.00},
		"google/gemini-1.5-flash":     {0.075, 0.30},
		"mistral/mistral-large":       {2.00, 6.00},
		"cohere/command-r-plus":       {2.50, 10.00},
	}}
}

// Cost looks up the rate for the given pair and prices the token counts.
func (t *Table) Cost(_ context.Context, provider, model string, inputTokens, outputTokens int64) (Cost, error) {
	r, ok := t.rates[provider+"/"+model]
	if !ok {
		return Cost{}, fmt.Errorf("%w: %s/%s", ErrUnknownModel, provider, model)
	}
	c := Cost{
		Input:  float64(inputTokens) / 1e6 * r.inputPerM,
		Output: float64(outputTokens) / 1e6 * r.outputPerM,
	}
	c.Total = c.Input + c.Output
	return c, nil
}

// Noop prices everything at zero. Unlike passing the extractor a nil service,
// which leaves cost columns unset, Noop records the usage as explicitly free.
type Noop struct{}

// Cost always returns a zero cost.
func (Noop) Cost(context.Context, string, string, int64, int64) (Cost, error) {
	return Cost{}, nil
}
