package tokens

import (
	"math"
	"strings"
	"unicode"

	"github.com/lumikids/tutorflow/types"
)

// Estimator approximates the provider token cost of a text string.
type Estimator interface {
	Count(text string) int
}

// HeuristicEstimator estimates tokens from word lengths without any tokenizer
// data: short words (up to 3 letters) cost one token, medium words cost
// ceil(len/3), long words cost ceil(len/2.5), and punctuation runs cost
// ceil(run/2). The sum carries a 1.1 overhead buffer. This is an
// approximation, not the provider's exact tokenization.
type HeuristicEstimator struct{}

// NewHeuristicEstimator creates the default estimator.
func NewHeuristicEstimator() HeuristicEstimator {
	return HeuristicEstimator{}
}

func (HeuristicEstimator) Count(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	raw := 0.0
	wordLen, symbolLen := 0, 0
	flushWord := func() {
		switch {
		case wordLen == 0:
		case wordLen <= 3:
			raw++
		case wordLen <= 6:
			raw += math.Ceil(float64(wordLen) / 3)
		default:
			raw += math.Ceil(float64(wordLen) / 2.5)
		}
		wordLen = 0
	}
	flushSymbols := func() {
		if symbolLen > 0 {
			raw += math.Ceil(float64(symbolLen) / 2)
			symbolLen = 0
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushSymbols()
			wordLen++
		case unicode.IsSpace(r):
			flushWord()
			flushSymbols()
		default:
			flushWord()
			symbolLen++
		}
	}
	flushWord()
	flushSymbols()

	return int(math.Ceil(raw * 1.1))
}

// MessageTokens returns the token cost of one message, preferring a
// precomputed count when the message carries one.
func MessageTokens(est Estimator, msg types.Message) int {
	if msg.TokenCount > 0 {
		return msg.TokenCount
	}
	return est.Count(msg.Content)
}

// HistoryTokens sums the token cost of a message sequence.
func HistoryTokens(est Estimator, messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += MessageTokens(est, m)
	}
	return total
}
