package orchestrator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zen-systems/flowroute/pkg/gateway"
)

// generate calls the selected backend and, for ProviderUnavailable or
// RateLimited failures, makes exactly one attempt on the default backend.
func (o *Orchestrator) generate(ctx context.Context, backend, prompt string) (text, used string, fellBack bool, err error) {
	ctx, span := o.tracer.Start(ctx, string(StateGenerating), trace.WithAttributes(
		attribute.String("backend", backend),
	))
	defer span.End()

	text, err = o.callBackend(ctx, backend, prompt)
	if err == nil {
		return text, backend, false, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", backend, false, ctxErr
	}

	fallback := o.gateways.Default()
	if fallback == backend || !gateway.IsRetryable(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", backend, false, err
	}

	o.logf("[orchestrator] backend %s failed (%v); falling back to %s", backend, err, fallback)
	span.AddEvent("fallback", trace.WithAttributes(
		attribute.String("from", backend),
		attribute.String("to", fallback),
	))
	o.metrics.observeFallback(backend, fallback)

	text, fbErr := o.callBackend(ctx, fallback, prompt)
	if fbErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fallback, true, ctxErr
		}
		fbErr = fmt.Errorf("fallback %s after %s failed (%v): %w", fallback, backend, err, fbErr)
		span.RecordError(fbErr)
		span.SetStatus(codes.Error, fbErr.Error())
		return "", fallback, true, fbErr
	}
	return text, fallback, true, nil
}

func (o *Orchestrator) callBackend(ctx context.Context, backend, prompt string) (string, error) {
	if o.genTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.genTimeout)
		defer cancel()
	}
	return o.gateways.Generate(ctx, backend, prompt, o.maxTokens)
}
