package types

// ComplexityLevel is the banded summary of a conversation's complexity score.
type ComplexityLevel string

const (
	ComplexitySimple   ComplexityLevel = "simple"
	ComplexityModerate ComplexityLevel = "moderate"
	ComplexityComplex  ComplexityLevel = "complex"
	ComplexityAdvanced ComplexityLevel = "advanced"
)

// ComplexityFactors holds the four named sub-factor scores, each 0-100.
type ComplexityFactors struct {
	Vocabulary       float64 `json:"vocabulary"`
	Conceptual       float64 `json:"conceptual"`
	ContextLength    float64 `json:"context_length"`
	InteractionDepth float64 `json:"interaction_depth"`
}

// ConversationComplexity is a derived value, recomputed per request and never
// persisted by the pipeline.
type ConversationComplexity struct {
	Level   ComplexityLevel   `json:"level"`
	Score   float64           `json:"score"` // 0-100
	Factors ComplexityFactors `json:"factors"`
}

// LevelForScore maps a 0-100 score to its band.
func LevelForScore(score float64) ComplexityLevel {
	switch {
	case score < 25:
		return ComplexitySimple
	case score < 50:
		return ComplexityModerate
	case score < 75:
		return ComplexityComplex
	default:
		return ComplexityAdvanced
	}
}
