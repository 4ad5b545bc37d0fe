package providers

import (
	"reflect"
	"testing"

	"github.com/leadfoundry/zapagent/internal/config"
)

func TestRegistryGetMissing(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("anthropic"); err == nil {
		t.Fatal("expected error for unregistered provider")
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(NewOpenAIProvider("openai", "k", "", ""))
	r.Register(NewGeminiProvider("k", ""))
	r.Register(NewAnthropicProvider("k"))

	want := []string{"anthropic", "gemini", "openai"}
	if got := r.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func TestFromConfigSkipsKeylessBackends(t *testing.T) {
	r := FromConfig(config.ProvidersConfig{
		OpenAI: config.ProviderConfig{APIKey: "sk-test"},
		// Anthropic and Gemini have no key.
	})

	if got := r.List(); !reflect.DeepEqual(got, []string{"openai"}) {
		t.Errorf("List() = %v, want [openai]", got)
	}
	if _, err := r.Get("openai"); err != nil {
		t.Errorf("Get(openai): %v", err)
	}
	if _, err := r.Get("gemini"); err == nil {
		t.Error("Get(gemini) should fail without a key")
	}
}
