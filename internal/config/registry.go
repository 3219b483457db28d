package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/dramaturg/pkg/provider/llm"
	"github.com/MrWong99/dramaturg/pkg/provider/llm/anyllm"
	"github.com/MrWong99/dramaturg/pkg/provider/llm/openai"
)

// ErrProviderNotRegistered is returned by [Registry.CreateLLM] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]func(ProviderEntry) (llm.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm: make(map[string]func(ProviderEntry) (llm.Provider, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// DefaultRegistry returns a registry with every known backend registered
// under its provider name. An explicit api_key or base_url from the config
// entry takes precedence over the backend's environment variables.
//
// "openai" uses the native SDK implementation; the remaining names go
// through any-llm-go.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, name := range ValidProviderNames {
		r.RegisterLLM(name, anyLLMFactory(name))
	}
	r.RegisterLLM("openai", openAIFactory)
	return r
}

func openAIFactory(entry ProviderEntry) (llm.Provider, error) {
	apiKey := entry.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	var opts []openai.Option
	if entry.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(entry.BaseURL))
	}
	return openai.New(apiKey, entry.Model, opts...)
}

func anyLLMFactory(name string) func(ProviderEntry) (llm.Provider, error) {
	return func(entry ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(name, entry.Model, opts...)
	}
}
