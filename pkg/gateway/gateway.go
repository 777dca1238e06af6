// Package gateway invokes LLM backends by symbolic name.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Adapter defines the interface for LLM provider adapters.
type Adapter interface {
	// Generate sends a prompt to the model and returns the generated text.
	Generate(ctx context.Context, model string, prompt string, maxTokens int) (string, error)

	// Name returns the adapter's identifier.
	Name() string
}

// Backend binds a symbolic backend name (gpt, claude, gemini) to an adapter and model.
type Backend struct {
	Name        string
	Description string
	Adapter     Adapter
	Model       string
}

// Registry holds the backends available for generation. It is built once at
// startup and is read-only afterwards.
type Registry struct {
	backends       map[string]Backend
	defaultBackend string
}

// NewRegistry creates a registry. The default backend must be one of the given backends.
func NewRegistry(defaultBackend string, backends ...Backend) (*Registry, error) {
	r := &Registry{
		backends:       make(map[string]Backend, len(backends)),
		defaultBackend: defaultBackend,
	}
	for _, b := range backends {
		if b.Name == "" {
			return nil, fmt.Errorf("backend name is required")
		}
		if b.Adapter == nil {
			return nil, fmt.Errorf("backend %s has no adapter", b.Name)
		}
		if _, dup := r.backends[b.Name]; dup {
			return nil, fmt.Errorf("backend %s registered twice", b.Name)
		}
		r.backends[b.Name] = b
	}
	if _, ok := r.backends[defaultBackend]; !ok {
		return nil, fmt.Errorf("default backend %q is not registered", defaultBackend)
	}
	return r, nil
}

// Default returns the statically configured default backend name.
func (r *Registry) Default() string {
	return r.defaultBackend
}

// Has reports whether a backend is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.backends[name]
	return ok
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Backends returns the registered backends sorted by name.
func (r *Registry) Backends() []Backend {
	out := make([]Backend, 0, len(r.backends))
	for _, name := range r.Names() {
		out = append(out, r.backends[name])
	}
	return out
}

// Generate invokes the named backend. Failures are returned as *Error carrying
// one of ErrProviderUnavailable, ErrRateLimited or ErrInvalidCredentials.
func (r *Registry) Generate(ctx context.Context, backend string, prompt string, maxTokens int) (string, error) {
	b, ok := r.backends[backend]
	if !ok {
		return "", &Error{Backend: backend, Kind: ErrProviderUnavailable, Err: fmt.Errorf("%w: %s", ErrUnknownBackend, backend)}
	}

	text, err := b.Adapter.Generate(ctx, b.Model, prompt, maxTokens)
	if err != nil {
		return "", wrap(backend, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", &Error{Backend: backend, Kind: ErrProviderUnavailable, Err: errors.New("empty response")}
	}
	return text, nil
}
