package providers_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-gw/sentinel/internal/config"
	"github.com/sentinel-gw/sentinel/internal/providers"
)

func testProviders() map[string]config.ProviderConfig {
	return map[string]config.ProviderConfig{
		"openai": {
			Type:          config.ProviderOpenAI,
			Endpoint:      "https://api.openai.com/v1",
			ModelPrefixes: []string{"gpt-", "o1"},
		},
		"groq": {
			Type:          config.ProviderOpenAI,
			Endpoint:      "https://api.groq.com/openai/v1",
			ModelPrefixes: []string{"llama", "mixtral"},
		},
		"bedrock": {
			Type:          config.ProviderBedrock,
			Endpoint:      "https://bedrock-runtime.us-east-1.amazonaws.com/openai/v1",
			Region:        "us-east-1",
			ModelPrefixes: []string{"anthropic."},
		},
	}
}

func TestResolve_OverrideHeaderWins(t *testing.T) {
	r, err := providers.NewRouter(testProviders(), "openai")
	require.NoError(t, err)

	// Override beats an otherwise-matching model name.
	p, err := r.Resolve("gpt-4o-mini", "groq")
	require.NoError(t, err)
	assert.Equal(t, "groq", p.Name)
}

func TestResolve_UnknownOverride(t *testing.T) {
	r, err := providers.NewRouter(testProviders(), "openai")
	require.NoError(t, err)

	_, err = r.Resolve("gpt-4o-mini", "nonexistent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, providers.ErrUnknownProvider))
}

func TestResolve_ModelPatternMatch(t *testing.T) {
	r, err := providers.NewRouter(testProviders(), "openai")
	require.NoError(t, err)

	cases := []struct {
		model string
		want  string
	}{
		{"gpt-4o-mini", "openai"},
		{"o1-preview", "openai"},
		{"llama-3.3-70b-versatile", "groq"},
		{"meta-llama/Llama-3.1-8B", "groq"},
		{"mixtral-8x7b-32768", "groq"},
		{"anthropic.claude-3-sonnet", "bedrock"},
	}
	for _, tc := range cases {
		p, err := r.Resolve(tc.model, "")
		require.NoError(t, err)
		assert.Equal(t, tc.want, p.Name, "model %q", tc.model)
	}
}

func TestResolve_FallsBackToDefault(t *testing.T) {
	r, err := providers.NewRouter(testProviders(), "groq")
	require.NoError(t, err)

	p, err := r.Resolve("some-unknown-model", "")
	require.NoError(t, err)
	assert.Equal(t, "groq", p.Name)
}

func TestNewRouter_EmptyDefaultUsesFirstSorted(t *testing.T) {
	r, err := providers.NewRouter(testProviders(), "")
	require.NoError(t, err)
	assert.Equal(t, "bedrock", r.Default())
}

func TestNewRouter_UnknownDefault(t *testing.T) {
	_, err := providers.NewRouter(testProviders(), "missing")
	require.Error(t, err)
}

func TestNewRouter_NoProviders(t *testing.T) {
	_, err := providers.NewRouter(nil, "")
	require.Error(t, err)
}

func TestResolve_MatchingIsDeterministic(t *testing.T) {
	// Two providers claim the same pattern; sorted name order decides.
	provs := map[string]config.ProviderConfig{
		"beta":  {Endpoint: "https://b", ModelPrefixes: []string{"gpt-"}},
		"alpha": {Endpoint: "https://a", ModelPrefixes: []string{"gpt-"}},
	}
	r, err := providers.NewRouter(provs, "")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		p, err := r.Resolve("gpt-4o", "")
		require.NoError(t, err)
		assert.Equal(t, "alpha", p.Name)
	}
}
