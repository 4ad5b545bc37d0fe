package providers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/leadfoundry/zapagent/internal/config"
)

// Registry holds configured providers keyed by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider. Last registration for a name wins.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider with the given name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not configured: %s", name)
	}
	return p, nil
}

// List returns the registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FromConfig builds a registry from provider settings. Backends without an
// API key are skipped; a missing credential surfaces later as a Get error,
// which the response path turns into the configured fallback text.
func FromConfig(cfg config.ProvidersConfig) *Registry {
	r := NewRegistry()

	if cfg.Anthropic.APIKey != "" {
		r.Register(NewAnthropicProvider(cfg.Anthropic.APIKey,
			WithAnthropicModel(cfg.Anthropic.Model),
			WithAnthropicBaseURL(cfg.Anthropic.APIBase)))
	}
	if cfg.OpenAI.APIKey != "" {
		r.Register(NewOpenAIProvider("openai", cfg.OpenAI.APIKey, cfg.OpenAI.APIBase, cfg.OpenAI.Model))
	}
	if cfg.Gemini.APIKey != "" {
		r.Register(NewGeminiProvider(cfg.Gemini.APIKey, cfg.Gemini.Model))
	}

	return r
}
