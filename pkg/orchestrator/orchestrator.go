// Package orchestrator runs one routed request end to end: document
// extraction, classification, capability tool calls and final generation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zen-systems/flowroute/pkg/capability"
	"github.com/zen-systems/flowroute/pkg/config"
	"github.com/zen-systems/flowroute/pkg/document"
	"github.com/zen-systems/flowroute/pkg/gateway"
	"github.com/zen-systems/flowroute/pkg/router"
)

// State is a step of the request state machine.
type State string

const (
	StateValidating    State = "validating"
	StateExtracting    State = "extracting"
	StateClassifying   State = "classifying"
	StateToolExecuting State = "tool_executing"
	StateGenerating    State = "generating"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

// ErrInvalidQuery is returned when a request has neither text nor a document.
var ErrInvalidQuery = errors.New("query text or document is required")

// Error is a terminal request failure. State is the step that failed.
type Error struct {
	State State
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classifier picks a backend and tool calls for a request.
type Classifier interface {
	Classify(ctx context.Context, in router.Input) (*router.Decision, error)
}

// Extractor turns an uploaded file into text.
type Extractor interface {
	Extract(data []byte, filename string) (*document.Document, error)
}

// Query is one inbound request. Identity is opaque to the orchestrator.
type Query struct {
	Identity string
	Text     string
	Document []byte
	Filename string
	History  []router.Turn
}

// ToolOutcome is the per-tool metadata returned to the caller.
type ToolOutcome struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Response is the consolidated answer for one request.
type Response struct {
	Response      string            `json:"response"`
	LLMUsed       string            `json:"llm_used"`
	RequestedLLM  string            `json:"requested_llm,omitempty"`
	FallbackUsed  bool              `json:"fallback_used"`
	Mode          router.Mode       `json:"mode"`
	FileProcessed *document.Summary `json:"file_processed"`
	Tools         []ToolOutcome     `json:"tools"`
}

// Orchestrator drives requests through the routing pipeline. It holds no
// per-request state and is safe for concurrent use.
type Orchestrator struct {
	extractor  Extractor
	classifier Classifier
	gateways   *gateway.Registry
	caps       *capability.Registry

	maxTools      int
	maxConcurrent int
	toolTimeout   time.Duration
	genTimeout    time.Duration
	maxTokens     int
	promptChars   int
	previewChars  int
	payloadChars  int

	logf    func(format string, args ...any)
	metrics *Metrics
	tracer  trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(fn func(format string, args ...any)) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.logf = fn
		}
	}
}

// WithMetrics records request, tool and fallback metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracerProvider sets the provider used for request spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithPayloadChars bounds each tool payload in the generation prompt.
func WithPayloadChars(n int) Option {
	return func(o *Orchestrator) {
		o.payloadChars = n
	}
}

const (
	tracerName          = "github.com/zen-systems/flowroute/pkg/orchestrator"
	defaultPayloadChars = 2000
)

// New creates an orchestrator from its collaborators. Limits come from cfg;
// a nil cfg uses the defaults.
func New(extractor Extractor, classifier Classifier, gateways *gateway.Registry, caps *capability.Registry, cfg *config.RoutingConfig, opts ...Option) (*Orchestrator, error) {
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if gateways == nil {
		return nil, fmt.Errorf("gateway registry is required")
	}
	if cfg == nil {
		cfg = config.DefaultRoutingConfig()
	}

	o := &Orchestrator{
		extractor:     extractor,
		classifier:    classifier,
		gateways:      gateways,
		caps:          caps,
		maxTools:      cfg.Tools.MaxTools,
		maxConcurrent: cfg.Tools.MaxConcurrent,
		toolTimeout:   cfg.Tools.ToolTimeout(),
		genTimeout:    cfg.Timeouts.Generation(),
		maxTokens:     cfg.MaxTokens,
		promptChars:   cfg.Document.PromptChars,
		previewChars:  cfg.Document.PreviewChars,
		payloadChars:  defaultPayloadChars,
		logf:          log.Printf,
		tracer:        otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// RouteQuery runs one request to completion. Failures are returned as *Error;
// no partial response is produced.
func (o *Orchestrator) RouteQuery(ctx context.Context, q Query) (*Response, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "flowroute.route_query", trace.WithAttributes(
		attribute.Bool("query.has_text", strings.TrimSpace(q.Text) != ""),
		attribute.Bool("query.has_document", q.Document != nil),
	))
	defer span.End()

	resp, err := o.route(ctx, q)
	if err != nil {
		var oe *Error
		if errors.As(err, &oe) {
			span.SetAttributes(attribute.String("failed_state", string(oe.State)))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.observeRequest(outcomeFor(err), time.Since(start))
		o.logf("[orchestrator] request failed: %v", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("llm_used", resp.LLMUsed),
		attribute.String("mode", string(resp.Mode)),
		attribute.Bool("fallback_used", resp.FallbackUsed),
	)
	o.metrics.observeRequest(string(StateCompleted), time.Since(start))
	o.logf("[orchestrator] completed backend=%s mode=%s tools=%d", resp.LLMUsed, resp.Mode, len(resp.Tools))
	return resp, nil
}

func (o *Orchestrator) route(ctx context.Context, q Query) (*Response, error) {
	if strings.TrimSpace(q.Text) == "" && q.Document == nil {
		return nil, &Error{State: StateValidating, Err: ErrInvalidQuery}
	}
	if err := ctx.Err(); err != nil {
		return nil, &Error{State: StateValidating, Err: err}
	}

	doc, err := o.extract(ctx, q)
	if err != nil {
		return nil, &Error{State: StateExtracting, Err: err}
	}
	insight := strings.TrimSpace(q.Text) == "" && doc != nil

	decision, err := o.classify(ctx, q, doc, insight)
	if err != nil {
		return nil, &Error{State: StateClassifying, Err: err}
	}

	resp := &Response{
		LLMUsed: decision.Backend,
		Mode:    decision.Mode,
		Tools:   []ToolOutcome{},
	}
	if doc != nil {
		resp.FileProcessed = doc.Summary(o.previewChars)
	}

	backend := decision.Backend
	if !o.gateways.Has(backend) {
		o.logf("[orchestrator] backend %q not registered; using %s", backend, o.gateways.Default())
		resp.RequestedLLM = backend
		backend = o.gateways.Default()
	}

	results, err := o.runTools(ctx, decision.Tools)
	if err != nil {
		return nil, &Error{State: StateToolExecuting, Err: err}
	}
	for _, res := range results {
		resp.Tools = append(resp.Tools, ToolOutcome{Name: res.Name, Success: res.Success, Error: res.Error})
	}

	prompt := o.buildPrompt(q, doc, insight, results)
	text, used, fellBack, err := o.generate(ctx, backend, prompt)
	if err != nil {
		return nil, &Error{State: StateGenerating, Err: err}
	}

	resp.Response = text
	resp.LLMUsed = used
	resp.FallbackUsed = fellBack
	if used != decision.Backend {
		resp.RequestedLLM = decision.Backend
	}
	return resp, nil
}

func (o *Orchestrator) extract(ctx context.Context, q Query) (*document.Document, error) {
	if q.Document == nil {
		return nil, nil
	}
	_, span := o.tracer.Start(ctx, string(StateExtracting))
	defer span.End()

	doc, err := o.extractor.Extract(q.Document, q.Filename)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("document.type", doc.FileType),
		attribute.Int("document.pages", doc.PageCount),
	)
	o.logf("[orchestrator] extracted %s (%d pages)", doc.Filename, doc.PageCount)
	return doc, nil
}

func (o *Orchestrator) classify(ctx context.Context, q Query, doc *document.Document, insight bool) (*router.Decision, error) {
	ctx, span := o.tracer.Start(ctx, string(StateClassifying))
	defer span.End()

	in := router.Input{Query: q.Text, History: q.History}
	if doc != nil {
		in.DocumentText = doc.Text
		in.DocumentName = doc.Filename
	}

	decision, err := o.classifier.Classify(ctx, in)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		o.logf("[orchestrator] classification degraded: %v", err)
		span.AddEvent("router_unavailable", trace.WithAttributes(attribute.String("error", err.Error())))
		decision = nil
	}
	if decision == nil {
		mode := router.ModeFallback
		if insight {
			mode = router.ModeDocumentInsight
		}
		decision = &router.Decision{Backend: o.gateways.Default(), Mode: mode}
	}
	if insight && decision.Mode != router.ModeDocumentInsight {
		pinned := *decision
		pinned.Backend = o.gateways.Default()
		pinned.Mode = router.ModeDocumentInsight
		decision = &pinned
	}

	span.SetAttributes(
		attribute.String("backend", decision.Backend),
		attribute.String("mode", string(decision.Mode)),
		attribute.Int("tools", len(decision.Tools)),
	)
	o.metrics.observeClassification(decision.Mode)
	return decision, nil
}

func outcomeFor(err error) string {
	var oe *Error
	if errors.As(err, &oe) {
		return string(oe.State)
	}
	return string(StateFailed)
}
