package costcontrol

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

// fallbackCharsPerToken approximates token counts when no tokenizer is
// available for the model.
const fallbackCharsPerToken = 4

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// EstimateTokens counts tokens in text. It prefers the model's own
// tokenizer, falls back to cl100k_base, and finally to a character ratio,
// so estimation never fails the request path.
func EstimateTokens(model, text string) int {
	if text == "" {
		return 0
	}
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		return len(enc.Encode(text, nil, nil))
	}

	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Warn().Err(err).Msg("tokenizer unavailable, estimating tokens by length")
			return
		}
		encoder = enc
	})
	if encoder != nil {
		return len(encoder.Encode(text, nil, nil))
	}
	return len(text) / fallbackCharsPerToken
}

// EstimateRequestCost prices a prospective request before it is sent:
// the prompt at input rates plus an assumed completion of equal size.
func EstimateRequestCost(model, prompt string) float64 {
	tokens := EstimateTokens(model, prompt)
	pricing := GetModelPricing(model)
	return CalculateCost(tokens, tokens, pricing)
}
