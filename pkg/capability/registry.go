package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Registry holds the configured providers. It is built once at startup and is
// read-only afterwards.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry from the given providers.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		name := p.Spec().Name
		if name == "" {
			return nil, fmt.Errorf("capability name is required")
		}
		if _, dup := r.providers[name]; dup {
			return nil, fmt.Errorf("capability %s registered twice", name)
		}
		r.providers[name] = p
	}
	return r, nil
}

// Has reports whether a provider is registered for name.
func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.providers[name]
	return ok
}

// Specs returns the registered capability specs sorted by name.
func (r *Registry) Specs() []Spec {
	if r == nil {
		return nil
	}
	specs := make([]Spec, 0, len(r.providers))
	for _, p := range r.providers {
		specs = append(specs, p.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

type invokeResult struct {
	payload map[string]any
	err     error
}

// Invoke runs one tool call with the given timeout. It never returns an error:
// every failure is reported in the Result. Invoke returns no later than the
// timeout even if the provider ignores its context.
func (r *Registry) Invoke(ctx context.Context, call ToolCall, timeout time.Duration) Result {
	start := time.Now()
	res := Result{Name: call.Name}

	var provider Provider
	if r != nil {
		provider = r.providers[call.Name]
	}
	if provider == nil {
		return failed(res, KindNotConfigured, ErrNotConfigured, start)
	}

	if err := validateArgs(provider.Spec(), call.Arguments); err != nil {
		return failed(res, KindInvalidArguments, err, start)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan invokeResult, 1)
	go func() {
		payload, err := provider.Invoke(ctx, call.Arguments)
		done <- invokeResult{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return failed(res, classify(ctx, out.err), out.err, start)
		}
		res.Success = true
		res.Payload = out.payload
		res.Latency = time.Since(start)
		return res
	case <-ctx.Done():
		return failed(res, classify(ctx, ctx.Err()), ctx.Err(), start)
	}
}

func classify(ctx context.Context, err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidArguments):
		return KindInvalidArguments
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindProviderError
	}
}

func failed(res Result, kind ErrorKind, err error, start time.Time) Result {
	res.Success = false
	res.ErrorKind = kind
	res.Error = err.Error()
	res.Latency = time.Since(start)
	return res
}

// validateArgs checks that every required parameter is present and non-empty.
func validateArgs(spec Spec, args map[string]any) error {
	var missing []string
	for _, p := range spec.Params {
		if !p.Required {
			continue
		}
		v, ok := args[p.Name]
		if !ok || v == nil {
			missing = append(missing, p.Name)
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s missing %s", ErrInvalidArguments, spec.Name, strings.Join(missing, ", "))
	}
	return nil
}
