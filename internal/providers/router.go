// Package providers maps requests to configured upstream LLM backends.
//
// DESIGN: Selection precedence is explicit override header > model-name
// pattern match > configured default. The router only selects a
// destination; retries and upstream failures are the gateway's concern.
// Provider configuration is immutable after load, so Resolve never takes
// a lock and never mutates shared state.
package providers

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sentinel-gw/sentinel/internal/config"
)

// ErrUnknownProvider means the caller named a provider that is not
// configured. Surfaced to the caller as a 4xx, never silently defaulted.
var ErrUnknownProvider = errors.New("unknown provider")

// Provider is a resolved upstream destination.
type Provider struct {
	Name   string
	Config config.ProviderConfig
}

// Router resolves a request to a provider.
type Router struct {
	providers   map[string]config.ProviderConfig
	order       []string // sorted names, so pattern matching is deterministic
	defaultName string
}

// NewRouter builds a router over the loaded provider configs. When
// defaultName is empty the first provider in sorted order is the default.
func NewRouter(providers map[string]config.ProviderConfig, defaultName string) (*Router, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	order := make([]string, 0, len(providers))
	for name := range providers {
		order = append(order, name)
	}
	sort.Strings(order)

	if defaultName == "" {
		defaultName = order[0]
	}
	if _, ok := providers[defaultName]; !ok {
		return nil, fmt.Errorf("default provider %q is not configured", defaultName)
	}
	return &Router{providers: providers, order: order, defaultName: defaultName}, nil
}

// Resolve picks the upstream for a request. An override names a provider
// directly; otherwise the model name is matched against each provider's
// prefix list (an entry matches anywhere in the model name, so "llama"
// catches "llama-3.3-70b-versatile" and "meta-llama/...").
func (r *Router) Resolve(model, override string) (Provider, error) {
	if override != "" {
		cfg, ok := r.providers[override]
		if !ok {
			return Provider{}, fmt.Errorf("%w: %q", ErrUnknownProvider, override)
		}
		return Provider{Name: override, Config: cfg}, nil
	}

	if model != "" {
		lowerModel := strings.ToLower(model)
		for _, name := range r.order {
			cfg := r.providers[name]
			for _, prefix := range cfg.ModelPrefixes {
				if strings.Contains(lowerModel, strings.ToLower(prefix)) {
					return Provider{Name: name, Config: cfg}, nil
				}
			}
		}
	}

	return Provider{Name: r.defaultName, Config: r.providers[r.defaultName]}, nil
}

// Default returns the configured default provider name.
func (r *Router) Default() string { return r.defaultName }

// Names returns all configured provider names in sorted order.
func (r *Router) Names() []string { return append([]string(nil), r.order...) }
