package tokens

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenEstimator counts tokens with the real BPE vocabulary for a model.
// Exact but heavier than the heuristic; it loads encoder data on first use.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEstimator builds an exact estimator for model. Models without a
// registered encoding fall back to cl100k_base.
func NewTiktokenEstimator(model string) (*TiktokenEstimator, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("load tokenizer encoding: %w", err)
		}
	}
	return &TiktokenEstimator{enc: enc}, nil
}

func (e *TiktokenEstimator) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(e.enc.Encode(text, nil, nil))
}
