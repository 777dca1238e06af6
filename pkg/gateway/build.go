package gateway

import (
	"fmt"
	"log"
	"sort"

	"github.com/zen-systems/flowroute/pkg/config"
)

// adapterKeys maps adapter identifiers to the provider key they need.
var adapterKeys = map[string]string{
	"openai":    config.KeyOpenAI,
	"anthropic": config.KeyAnthropic,
	"google":    config.KeyGoogle,
	"deepseek":  config.KeyDeepSeek,
	"mistral":   config.KeyMistral,
	"xai":       config.KeyXAI,
}

// NewAdapter creates the adapter with the given identifier.
func NewAdapter(name, apiKey, baseURL string) (Adapter, error) {
	switch name {
	case "openai":
		return NewOpenAIAdapter(apiKey)
	case "anthropic":
		return NewAnthropicAdapter(apiKey)
	case "google":
		return NewGoogleAdapter(apiKey, baseURL)
	case "deepseek", "mistral", "xai":
		return NewCompatAdapter(name, apiKey, baseURL)
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unknown adapter %q", name)
	}
}

// BuildOption configures registry construction.
type BuildOption func(*buildOptions)

type buildOptions struct {
	logger func(format string, args ...any)
	mock   bool
}

// WithBuildLogger sets the logger used to report skipped backends.
func WithBuildLogger(fn func(format string, args ...any)) BuildOption {
	return func(o *buildOptions) {
		o.logger = fn
	}
}

// WithMockAdapters replaces every adapter with a MockAdapter.
func WithMockAdapters() BuildOption {
	return func(o *buildOptions) {
		o.mock = true
	}
}

// NewRegistryFromConfig builds the backend registry. Backends whose adapter has
// no API key are left out.
func NewRegistryFromConfig(cfg *config.Config, opts ...BuildOption) (*Registry, error) {
	if cfg == nil || cfg.RoutingConfig == nil {
		return nil, fmt.Errorf("routing config is required")
	}
	o := buildOptions{logger: log.Printf}
	for _, opt := range opts {
		opt(&o)
	}

	routing := cfg.RoutingConfig
	var backends []Backend
	adapters := make(map[string]Adapter)
	for _, name := range sortedBackendNames(routing.Backends) {
		bc := routing.Backends[name]
		adapter, err := buildAdapter(cfg, bc.Adapter, bc.BaseURL, adapters, o.mock)
		if err != nil {
			o.logger("[gateway] backend %s skipped: %v", name, err)
			continue
		}
		backends = append(backends, Backend{
			Name:        name,
			Description: bc.Description,
			Adapter:     adapter,
			Model:       bc.Model,
		})
	}

	return NewRegistry(routing.DefaultBackend, backends...)
}

// NewRouterBackend builds the backend used by the classifier.
func NewRouterBackend(cfg *config.Config, opts ...BuildOption) (Backend, error) {
	if cfg == nil || cfg.RoutingConfig == nil {
		return Backend{}, fmt.Errorf("routing config is required")
	}
	o := buildOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	target := cfg.RoutingConfig.RouterBackend
	adapter, err := buildAdapter(cfg, target.Adapter, "", map[string]Adapter{}, o.mock)
	if err != nil {
		return Backend{}, fmt.Errorf("router backend: %w", err)
	}
	return Backend{Name: "router", Adapter: adapter, Model: target.Model}, nil
}

// buildAdapter shares one adapter (and its HTTP client) per adapter identifier.
func buildAdapter(cfg *config.Config, name, baseURL string, cache map[string]Adapter, mock bool) (Adapter, error) {
	if mock {
		return NewMockAdapter(), nil
	}
	cacheKey := name + "|" + baseURL
	if adapter, ok := cache[cacheKey]; ok {
		return adapter, nil
	}
	if name != "mock" {
		keyName, ok := adapterKeys[name]
		if !ok {
			return nil, fmt.Errorf("unknown adapter %q", name)
		}
		if !cfg.HasKey(keyName) {
			return nil, fmt.Errorf("%s API key not configured", name)
		}
	}
	adapter, err := NewAdapter(name, cfg.APIKey(adapterKeys[name]), baseURL)
	if err != nil {
		return nil, err
	}
	cache[cacheKey] = adapter
	return adapter, nil
}

func sortedBackendNames(backends map[string]config.BackendConfig) []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
