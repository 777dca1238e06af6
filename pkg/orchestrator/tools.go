package orchestrator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/zen-systems/flowroute/pkg/capability"
)

// planBatches splits calls into ordered batches. A call that depends on a
// capability already in the current batch starts the next one.
func planBatches(calls []capability.ToolCall) [][]capability.ToolCall {
	var batches [][]capability.ToolCall
	var current []capability.ToolCall
	inCurrent := make(map[string]bool)

	for _, call := range calls {
		if len(current) > 0 && dependsOnAny(call, inCurrent) {
			batches = append(batches, current)
			current = nil
			inCurrent = make(map[string]bool)
		}
		current = append(current, call)
		inCurrent[call.Name] = true
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func dependsOnAny(call capability.ToolCall, names map[string]bool) bool {
	for _, dep := range call.DependsOn {
		if names[dep] {
			return true
		}
	}
	return false
}

// runTools executes at most maxTools calls. Individual tool failures are
// recorded in the results; only cancellation of ctx is returned as an error.
func (o *Orchestrator) runTools(ctx context.Context, calls []capability.ToolCall) ([]capability.Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	if o.maxTools > 0 && len(calls) > o.maxTools {
		o.logf("[orchestrator] dropping %d tool calls over limit %d", len(calls)-o.maxTools, o.maxTools)
		calls = calls[:o.maxTools]
	}

	ctx, span := o.tracer.Start(ctx, string(StateToolExecuting), trace.WithAttributes(
		attribute.Int("tools.requested", len(calls)),
	))
	defer span.End()

	results := make([]capability.Result, 0, len(calls))
	for i, batch := range planBatches(calls) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batchResults := make([]capability.Result, len(batch))
		var g errgroup.Group
		if o.maxConcurrent > 0 {
			g.SetLimit(o.maxConcurrent)
		}
		for j, call := range batch {
			g.Go(func() error {
				batchResults[j] = o.caps.Invoke(ctx, call, o.toolTimeout)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, res := range batchResults {
			o.metrics.observeTool(res)
			if !res.Success {
				span.AddEvent("tool_failed", trace.WithAttributes(
					attribute.String("tool", res.Name),
					attribute.String("error_kind", string(res.ErrorKind)),
					attribute.Int("batch", i),
				))
				o.logf("[orchestrator] tool %s failed (%s): %s", res.Name, res.ErrorKind, res.Error)
			}
		}
		results = append(results, batchResults...)
	}
	return results, nil
}
