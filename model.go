package aiflow

import (
	"fmt"

	"github.com/aiflow-go/aiflow/events"
	"github.com/aiflow-go/aiflow/pubsub"
	"github.com/shopspring/decimal"
)

// Model names an OpenAI-compatible model. Any string passes through to the
// provider; the known models additionally carry pricing for cost accounting.
type Model string

const (
	GPT41     Model = "gpt-4.1"
	GPT41Mini Model = "gpt-4.1-mini"
	GPT41Nano Model = "gpt-4.1-nano"
	O3        Model = "o3"
	O4Mini    Model = "o4-mini"
)

// pricing is USD per million tokens: uncached input, cached input, output.
type pricing struct {
	input       decimal.Decimal
	cachedInput decimal.Decimal
	output      decimal.Decimal
}

func dollars(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var modelPricing = map[Model]pricing{
	GPT41:     {input: dollars("2.0"), cachedInput: dollars("0.5"), output: dollars("8.0")},
	GPT41Mini: {input: dollars("0.4"), cachedInput: dollars("0.1"), output: dollars("1.6")},
	GPT41Nano: {input: dollars("0.1"), cachedInput: dollars("0.025"), output: dollars("0.4")},
	O3:        {input: dollars("10.0"), cachedInput: dollars("2.5"), output: dollars("40.0")},
	O4Mini:    {input: dollars("1.1"), cachedInput: dollars("0.275"), output: dollars("4.4")},
}

var million = decimal.NewFromInt(1_000_000)

// Cost prices a usage delta in USD. Cached input tokens are a subset of
// input tokens and are billed at the cached rate. Unknown models cost zero.
func (m Model) Cost(u Usage) decimal.Decimal {
	p, known := modelPricing[m]
	if !known {
		return decimal.Zero
	}

	uncached := u.InputTokens - u.CachedInputTokens
	if uncached < 0 {
		uncached = 0
	}

	cost := p.input.Mul(decimal.NewFromInt(uncached))
	cost = cost.Add(p.cachedInput.Mul(decimal.NewFromInt(u.CachedInputTokens)))
	cost = cost.Add(p.output.Mul(decimal.NewFromInt(u.OutputTokens)))
	return cost.Div(million)
}

// ToolChoice steers whether the model may, must, or must not call tools.
// The zero value leaves the choice to the provider.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
	ToolChoiceNone     ToolChoice = "none"
)

// DefaultMaxTurns bounds the tool-call feedback loop of a single stream.
const DefaultMaxTurns = 10

// GenerateConfig carries the per-stream knobs. Model is required;
// everything else has a usable zero value.
type GenerateConfig struct {
	Model      Model
	ToolChoice ToolChoice
	// MaxTurns caps how many model turns one stream may take while feeding
	// tool results back. Zero means DefaultMaxTurns.
	MaxTurns int
	// Hook observes every yielded event in yield order, on the producing
	// goroutine.
	Hook events.Hook
	// Topic, when set, receives every yielded event for out-of-process
	// observers.
	Topic pubsub.Topic
}

func (c *GenerateConfig) validate() error {
	if c == nil {
		return fmt.Errorf("generate config is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.MaxTurns < 0 {
		return fmt.Errorf("max turns cannot be negative")
	}
	return nil
}

func (c *GenerateConfig) maxTurns() int {
	if c.MaxTurns == 0 {
		return DefaultMaxTurns
	}
	return c.MaxTurns
}
