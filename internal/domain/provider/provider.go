// Package provider describes the LLM providers a run can target. The set of providers is
// closed: each is a tagged variant implementing Capabilities, and Lookup is total over it.
package provider

import (
	"fmt"
	"slices"
	"strings"

	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Name identifies a provider
type Name string

const (
	NameOpenAI     Name = "openai"
	NameAnthropic  Name = "anthropic"
	NameGoogle     Name = "google"
	NameOpenRouter Name = "openrouter"
)

// FeatureKey is the entitlement feature that gates use of the provider
func (n Name) FeatureKey() string {
	return "provider:" + string(n)
}

// Pricing is the price in USD per one million tokens
type Pricing struct {
	InputPerMillion  decimal.Decimal
	OutputPerMillion decimal.Decimal
}

var million = decimal.NewFromInt(1_000_000)

// Cost returns the price of a call with the given token counts
func (p Pricing) Cost(inputTokens, outputTokens int64) decimal.Decimal {
	in := p.InputPerMillion.Mul(decimal.NewFromInt(inputTokens))
	out := p.OutputPerMillion.Mul(decimal.NewFromInt(outputTokens))
	return in.Add(out).Div(million)
}

// Capabilities is what the system knows about a provider without calling it
type Capabilities interface {
	Name() Name
	DefaultModel() string
	SupportsModel(model string) bool
	SupportsSystemPrompt() bool
	MaxOutputTokens() int
	Price(model string) Pricing
}

type model struct {
	id      string
	pricing Pricing
}

func price(in, out string) Pricing {
	return Pricing{InputPerMillion: decimal.RequireFromString(in), OutputPerMillion: decimal.RequireFromString(out)}
}

// catalog is shared by the concrete variants
type catalog struct {
	models    []model
	maxOutput int
}

func (c catalog) DefaultModel() string {
	return c.models[0].id
}

func (c catalog) SupportsModel(id string) bool {
	return slices.ContainsFunc(c.models, func(m model) bool { return m.id == id })
}

func (c catalog) MaxOutputTokens() int {
	return c.maxOutput
}

func (c catalog) Price(id string) Pricing {
	for _, m := range c.models {
		if m.id == id {
			return m.pricing
		}
	}
	return Pricing{InputPerMillion: decimal.Zero, OutputPerMillion: decimal.Zero}
}

// OpenAI is the OpenAI chat completions provider
type OpenAI struct{ catalog }

func (OpenAI) Name() Name                 { return NameOpenAI }
func (OpenAI) SupportsSystemPrompt() bool { return true }

// Anthropic is the Anthropic messages provider
type Anthropic struct{ catalog }

func (Anthropic) Name() Name                 { return NameAnthropic }
func (Anthropic) SupportsSystemPrompt() bool { return true }

// Google is the Gemini provider
type Google struct{ catalog }

func (Google) Name() Name                 { return NameGoogle }
func (Google) SupportsSystemPrompt() bool { return true }

// OpenRouter routes to many upstream models; any vendor-prefixed model id is accepted
type OpenRouter struct{ catalog }

func (OpenRouter) Name() Name                 { return NameOpenRouter }
func (OpenRouter) SupportsSystemPrompt() bool { return true }

// SupportsModel accepts any "vendor/model" id
func (o OpenRouter) SupportsModel(id string) bool {
	return o.catalog.SupportsModel(id) || strings.Contains(id, "/")
}

var registry = map[Name]Capabilities{
	NameOpenAI: OpenAI{catalog{maxOutput: 16_384, models: []model{
		{"gpt-4o-mini", price("0.15", "0.60")},
		{"gpt-4o", price("2.50", "10.00")},
		{"gpt-4.1", price("2.00", "8.00")},
	}}},
	NameAnthropic: Anthropic{catalog{maxOutput: 8_192, models: []model{
		{"claude-3-5-haiku-latest", price("0.80", "4.00")},
		{"claude-3-5-sonnet-latest", price("3.00", "15.00")},
	}}},
	NameGoogle: Google{catalog{maxOutput: 8_192, models: []model{
		{"gemini-1.5-flash", price("0.075", "0.30")},
		{"gemini-1.5-pro", price("1.25", "5.00")},
	}}},
	NameOpenRouter: OpenRouter{catalog{maxOutput: 8_192, models: []model{
		{"openrouter/auto", price("0", "0")},
	}}},
}

// ErrUnknownProvider is returned by Lookup for names outside the closed set
var ErrUnknownProvider = shared.NewDomainError("INVALID_INPUT", "unknown provider")

// Lookup returns the capabilities of the named provider
func Lookup(name string) (Capabilities, error) {
	c, ok := registry[Name(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		return nil, shared.NewDomainError(ErrUnknownProvider.Code, fmt.Sprintf("unknown provider %q", name))
	}
	return c, nil
}

// Names returns every known provider name
func Names() []Name {
	return []Name{NameOpenAI, NameAnthropic, NameGoogle, NameOpenRouter}
}

// ValidateModel checks that the named provider serves model
func ValidateModel(name, model string) (Capabilities, error) {
	c, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	if !c.SupportsModel(model) {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("provider %s does not serve model %q", c.Name(), model))
	}
	return c, nil
}
