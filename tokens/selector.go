package tokens

import (
	"go.uber.org/zap"

	"github.com/lumikids/tutorflow/types"
)

// ModelType names a selectable completion tier.
type ModelType string

const (
	// ModelGPT4oMini is the cheapest tier, fine for most tutoring turns.
	ModelGPT4oMini ModelType = "gpt-4o-mini"
	// ModelGPT4o is the mid tier for complex conversations.
	ModelGPT4o ModelType = "gpt-4o"
	// ModelGPT41 is the top tier, reserved for advanced conversations.
	ModelGPT41 ModelType = "gpt-4.1"
)

// modelPrice is the fixed (input, output) USD price pair per 1000 tokens.
type modelPrice struct {
	input  float64
	output float64
}

var modelPrices = map[ModelType]modelPrice{
	ModelGPT4oMini: {input: 0.00015, output: 0.0006},
	ModelGPT4o:     {input: 0.0025, output: 0.01},
	ModelGPT41:     {input: 0.005, output: 0.015},
}

// ModelSelector maps a complexity assessment to a model tier and prices the
// resulting usage. A fixed decision table, not a learned policy.
type ModelSelector struct {
	logger *zap.Logger
}

// NewModelSelector creates a selector.
func NewModelSelector(logger *zap.Logger) *ModelSelector {
	return &ModelSelector{logger: logger}
}

// Recommend picks a tier for the conversation. Cost-priority mode holds
// simple and moderate conversations on the cheapest tier; performance mode
// sends everything beyond simple to the top tier.
func (s *ModelSelector) Recommend(complexity types.ConversationComplexity, prioritizeCost bool) ModelType {
	if prioritizeCost {
		switch complexity.Level {
		case types.ComplexitySimple, types.ComplexityModerate:
			return ModelGPT4oMini
		case types.ComplexityComplex:
			return ModelGPT4o
		default:
			return ModelGPT41
		}
	}
	if complexity.Level == types.ComplexitySimple {
		return ModelGPT4oMini
	}
	return ModelGPT41
}

// CalculateCost prices a usage split against the model's fixed per-1000-token
// pair. An unrecognized model costs 0 and logs a warning so billing gaps are
// visible.
func (s *ModelSelector) CalculateCost(promptTokens, completionTokens int, model ModelType) float64 {
	price, ok := modelPrices[model]
	if !ok {
		s.logger.Warn("no price configured for model, reporting zero cost",
			zap.String("model", string(model)),
		)
		return 0
	}
	return float64(promptTokens)/1000*price.input + float64(completionTokens)/1000*price.output
}
