package costcontrol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sentinel-gw/sentinel/internal/costcontrol"
)

func TestGetModelPricing_ExactMatch(t *testing.T) {
	p := costcontrol.GetModelPricing("gpt-4o-mini")
	assert.Equal(t, 0.15, p.InputPerMTok)
	assert.Equal(t, 0.60, p.OutputPerMTok)
}

func TestGetModelPricing_LongestPrefixWins(t *testing.T) {
	// "gpt-4o-mini-2025-01-01" is unknown exactly; the "gpt-4o-mini" family
	// must win over the broader "gpt-4o" and "gpt-4".
	p := costcontrol.GetModelPricing("gpt-4o-mini-2025-01-01")
	assert.Equal(t, 0.15, p.InputPerMTok)

	p = costcontrol.GetModelPricing("gpt-4o-2025-08-01")
	assert.Equal(t, 2.5, p.InputPerMTok)
}

func TestGetModelPricing_UnknownIsConservative(t *testing.T) {
	p := costcontrol.GetModelPricing("totally-new-model")
	// Unknown models price at the most expensive tier so the throttle errs
	// toward blocking, not overspending.
	assert.Equal(t, 15.0, p.InputPerMTok)
	assert.Equal(t, 75.0, p.OutputPerMTok)
}

func TestCalculateCost(t *testing.T) {
	p := costcontrol.ModelPricing{InputPerMTok: 0.15, OutputPerMTok: 0.60}
	assert.InDelta(t, 0.15, costcontrol.CalculateCost(1_000_000, 0, p), 1e-9)
	assert.InDelta(t, 0.60, costcontrol.CalculateCost(0, 1_000_000, p), 1e-9)
	assert.InDelta(t, 0.000075+0.00012, costcontrol.CalculateCost(500, 200, p), 1e-9)
	assert.Equal(t, 0.0, costcontrol.CalculateCost(0, 0, p))
}

func TestEstimateTokens_NeverZeroForText(t *testing.T) {
	n := costcontrol.EstimateTokens("gpt-4o-mini", "hello world, how are you today?")
	assert.Greater(t, n, 0)

	// Unknown models fall back to an approximate ratio, not zero.
	n = costcontrol.EstimateTokens("no-such-model", "hello world, how are you today?")
	assert.Greater(t, n, 0)
}

func TestEstimateRequestCost_ScalesWithPrompt(t *testing.T) {
	short := costcontrol.EstimateRequestCost("gpt-4o-mini", "hi")
	long := costcontrol.EstimateRequestCost("gpt-4o-mini", repeatText(2000))
	assert.Greater(t, long, short)
}

func repeatText(words int) string {
	out := make([]byte, 0, words*6)
	for i := 0; i < words; i++ {
		out = append(out, "data "...)
	}
	return string(out)
}
