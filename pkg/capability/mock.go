package capability

import "context"

// FuncProvider adapts a function into a Provider.
type FuncProvider struct {
	spec Spec
	fn   func(ctx context.Context, args map[string]any) (map[string]any, error)
}

// NewFuncProvider creates a provider backed by fn.
func NewFuncProvider(spec Spec, fn func(ctx context.Context, args map[string]any) (map[string]any, error)) *FuncProvider {
	return &FuncProvider{spec: spec, fn: fn}
}

// Spec returns the capability description.
func (p *FuncProvider) Spec() Spec {
	return p.spec
}

// Invoke calls the wrapped function.
func (p *FuncProvider) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	return p.fn(ctx, args)
}

// MockProviders returns a deterministic provider for every catalog capability.
// Each echoes its arguments back.
func MockProviders() []Provider {
	var providers []Provider
	for _, def := range Catalog() {
		name := def.Spec.Name
		providers = append(providers, NewFuncProvider(def.Spec, func(ctx context.Context, args map[string]any) (map[string]any, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return map[string]any{"capability": name, "mock": true, "arguments": args}, nil
		}))
	}
	return providers
}
