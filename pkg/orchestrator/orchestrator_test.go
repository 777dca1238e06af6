package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zen-systems/flowroute/pkg/capability"
	"github.com/zen-systems/flowroute/pkg/config"
	"github.com/zen-systems/flowroute/pkg/document"
	"github.com/zen-systems/flowroute/pkg/gateway"
	"github.com/zen-systems/flowroute/pkg/router"
)

type stubClassifier struct {
	mu       sync.Mutex
	decision *router.Decision
	err      error
	inputs   []router.Input
}

func (c *stubClassifier) Classify(_ context.Context, in router.Input) (*router.Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs = append(c.inputs, in)
	if c.err != nil {
		return nil, c.err
	}
	d := *c.decision
	return &d, nil
}

func (c *stubClassifier) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inputs)
}

type stubExtractor struct {
	doc *document.Document
	err error
}

func (e *stubExtractor) Extract(_ []byte, filename string) (*document.Document, error) {
	if e.err != nil {
		return nil, e.err
	}
	d := *e.doc
	d.Filename = filename
	return &d, nil
}

type fixture struct {
	gpt        *gateway.MockAdapter
	claude     *gateway.MockAdapter
	classifier *stubClassifier
	gateways   *gateway.Registry
	caps       *capability.Registry
	cfg        *config.RoutingConfig
}

func newFixture(t *testing.T, decision *router.Decision, providers ...capability.Provider) *fixture {
	t.Helper()
	f := &fixture{
		gpt:        gateway.NewMockAdapterWithResponses(nil, "gpt says"),
		claude:     gateway.NewMockAdapterWithResponses(nil, "claude says"),
		classifier: &stubClassifier{decision: decision},
		cfg:        config.DefaultRoutingConfig(),
	}
	return f.withBackends(t, f.gpt, f.claude, providers...)
}

func (f *fixture) withBackends(t *testing.T, gpt, claude gateway.Adapter, providers ...capability.Provider) *fixture {
	t.Helper()
	var err error
	f.gateways, err = gateway.NewRegistry("gpt",
		gateway.Backend{Name: "gpt", Adapter: gpt, Model: "gpt-test"},
		gateway.Backend{Name: "claude", Adapter: claude, Model: "claude-test"},
	)
	require.NoError(t, err)
	f.caps, err = capability.NewRegistry(providers...)
	require.NoError(t, err)
	return f
}

func (f *fixture) orchestrator(t *testing.T, extractor Extractor, opts ...Option) *Orchestrator {
	t.Helper()
	if extractor == nil {
		extractor = document.NewExtractor()
	}
	opts = append([]Option{WithLogger(func(string, ...any) {})}, opts...)
	o, err := New(extractor, f.classifier, f.gateways, f.caps, f.cfg, opts...)
	require.NoError(t, err)
	return o
}

func echoProvider(name string, params ...string) capability.Provider {
	spec := capability.Spec{Name: name, Description: name}
	for _, p := range params {
		spec.Params = append(spec.Params, capability.Param{Name: p, Required: true})
	}
	return capability.NewFuncProvider(spec, func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return map[string]any{"tool": name, "args": args}, nil
	})
}

func TestRouteQueryTextOnly(t *testing.T) {
	f := newFixture(t, &router.Decision{Backend: "gpt", Mode: router.ModeQuery})
	o := f.orchestrator(t, nil)

	resp, err := o.RouteQuery(context.Background(), Query{Identity: "user-1", Text: "What is 2+2?"})
	require.NoError(t, err)

	assert.Equal(t, "gpt", resp.LLMUsed)
	assert.Empty(t, resp.RequestedLLM)
	assert.False(t, resp.FallbackUsed)
	assert.Nil(t, resp.FileProcessed)
	assert.Empty(t, resp.Tools)
	assert.Equal(t, router.ModeQuery, resp.Mode)
	assert.Contains(t, resp.Response, "gpt says")
	assert.Contains(t, resp.Response, "What is 2+2?")

	require.Equal(t, 1, f.classifier.calls())
	assert.Equal(t, "What is 2+2?", f.classifier.inputs[0].Query)
	assert.Empty(t, f.classifier.inputs[0].DocumentText)

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"file_processed":null`)
	assert.Contains(t, string(body), `"tools":[]`)
}

func TestRouteQueryDocumentInsight(t *testing.T) {
	f := newFixture(t, &router.Decision{Backend: "gpt", Mode: router.ModeDocumentInsight})
	extractor := &stubExtractor{doc: &document.Document{
		FileType:  document.FileTypePDF,
		Text:      "\n--- Page 1 ---\nQuarterly revenue grew twelve percent.\n",
		PageCount: 1,
		SizeBytes: 2048,
	}}
	o := f.orchestrator(t, extractor)

	resp, err := o.RouteQuery(context.Background(), Query{Document: []byte("%PDF-1.4"), Filename: "report.pdf"})
	require.NoError(t, err)

	assert.Equal(t, "gpt", resp.LLMUsed)
	assert.Equal(t, router.ModeDocumentInsight, resp.Mode)
	require.NotNil(t, resp.FileProcessed)
	assert.Equal(t, "report.pdf", resp.FileProcessed.Filename)
	assert.Contains(t, resp.FileProcessed.Summary, "Quarterly revenue")

	require.Equal(t, 1, f.classifier.calls())
	in := f.classifier.inputs[0]
	assert.Empty(t, in.Query)
	assert.Contains(t, in.DocumentText, "Quarterly revenue")
	assert.Equal(t, "report.pdf", in.DocumentName)

	prompts := f.gpt.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], router.InsightInstruction)
	assert.Contains(t, prompts[0], "Quarterly revenue grew twelve percent.")
}

func TestRouteQueryDocumentInsightMode(t *testing.T) {
	tests := []struct {
		name     string
		decision *router.Decision
		err      error
	}{
		{name: "empty document text", decision: &router.Decision{Backend: "gpt", Mode: router.ModePassthrough}},
		{name: "rejected router output", decision: &router.Decision{Backend: "gpt", Mode: router.ModeFallback, UsedRouter: true}},
		{name: "router unavailable", err: router.ErrRouterUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.decision)
			f.classifier.err = tt.err
			extractor := &stubExtractor{doc: &document.Document{FileType: document.FileTypePDF, PageCount: 1, SizeBytes: 512}}
			o := f.orchestrator(t, extractor)

			resp, err := o.RouteQuery(context.Background(), Query{Document: []byte("%PDF-1.4"), Filename: "scan.pdf"})
			require.NoError(t, err)
			assert.Equal(t, router.ModeDocumentInsight, resp.Mode)
			assert.Equal(t, "gpt", resp.LLMUsed)
			assert.Empty(t, resp.RequestedLLM)
		})
	}
}

func TestRouteQueryUnregisteredTool(t *testing.T) {
	f := newFixture(t, &router.Decision{
		Backend: "gpt",
		Mode:    router.ModeQuery,
		Tools:   []capability.ToolCall{{Name: "image_generate", Arguments: map[string]any{"prompt": "a cat"}}},
	})
	o := f.orchestrator(t, nil)

	resp, err := o.RouteQuery(context.Background(), Query{Text: "draw me a cat"})
	require.NoError(t, err)

	require.Len(t, resp.Tools, 1)
	assert.Equal(t, "image_generate", resp.Tools[0].Name)
	assert.False(t, resp.Tools[0].Success)
	assert.Contains(t, resp.Tools[0].Error, "not configured")
	assert.Equal(t, "gpt", resp.LLMUsed)

	prompts := f.gpt.Prompts()
	require.Len(t, prompts, 1)
	assert.NotContains(t, prompts[0], "Tool results")
	assert.Contains(t, prompts[0], "draw me a cat")
}

func TestRouteQueryGenerationFallback(t *testing.T) {
	unavailable := &gateway.Error{Kind: gateway.ErrProviderUnavailable, Status: 503, Err: errors.New("overloaded")}
	limited := &gateway.Error{Kind: gateway.ErrRateLimited, Status: 429, Err: errors.New("slow down")}
	badKey := &gateway.Error{Kind: gateway.ErrInvalidCredentials, Status: 401, Err: errors.New("bad key")}

	tests := []struct {
		name         string
		claudeErr    error
		gptErr       error
		wantErr      error
		wantUsed     string
		wantFallback bool
		wantGPTCalls int
	}{
		{name: "unavailable falls back", claudeErr: unavailable, wantUsed: "gpt", wantFallback: true, wantGPTCalls: 1},
		{name: "rate limited falls back", claudeErr: limited, wantUsed: "gpt", wantFallback: true, wantGPTCalls: 1},
		{name: "fallback also fails", claudeErr: unavailable, gptErr: unavailable, wantErr: gateway.ErrProviderUnavailable, wantGPTCalls: 1},
		{name: "invalid credentials do not fall back", claudeErr: badKey, wantErr: gateway.ErrInvalidCredentials, wantGPTCalls: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &router.Decision{Backend: "claude", Mode: router.ModeQuery})
			gpt := gateway.NewMockAdapterWithResponses(nil, "gpt says")
			if tt.gptErr != nil {
				gpt = gateway.NewFailingMockAdapter(tt.gptErr)
			}
			claude := gateway.NewFailingMockAdapter(tt.claudeErr)
			f.withBackends(t, gpt, claude)
			o := f.orchestrator(t, nil)

			resp, err := o.RouteQuery(context.Background(), Query{Text: "review this contract"})
			assert.Len(t, claude.Prompts(), 1)
			assert.Len(t, gpt.Prompts(), tt.wantGPTCalls)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Nil(t, resp)
				assert.ErrorIs(t, err, tt.wantErr)
				var oe *Error
				require.ErrorAs(t, err, &oe)
				assert.Equal(t, StateGenerating, oe.State)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantUsed, resp.LLMUsed)
			assert.Equal(t, "claude", resp.RequestedLLM)
			assert.Equal(t, tt.wantFallback, resp.FallbackUsed)
		})
	}
}

func TestFallbackSkippedWhenDefaultFails(t *testing.T) {
	f := newFixture(t, &router.Decision{Backend: "gpt", Mode: router.ModeQuery})
	gpt := gateway.NewFailingMockAdapter(&gateway.Error{Kind: gateway.ErrProviderUnavailable})
	f.withBackends(t, gpt, f.claude)
	o := f.orchestrator(t, nil)

	_, err := o.RouteQuery(context.Background(), Query{Text: "hello"})
	require.ErrorIs(t, err, gateway.ErrProviderUnavailable)
	assert.Len(t, gpt.Prompts(), 1)
	assert.Empty(t, f.claude.Prompts())
}

func TestInvalidQuery(t *testing.T) {
	f := newFixture(t, &router.Decision{Backend: "gpt"})
	o := f.orchestrator(t, nil)

	for _, text := range []string{"", "   \n\t"} {
		resp, err := o.RouteQuery(context.Background(), Query{Text: text})
		assert.Nil(t, resp)
		require.ErrorIs(t, err, ErrInvalidQuery)
		var oe *Error
		require.ErrorAs(t, err, &oe)
		assert.Equal(t, StateValidating, oe.State)
	}
	assert.Zero(t, f.classifier.calls())
	assert.Empty(t, f.gpt.Prompts())
}

func TestExtractionFailure(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		filename string
		wantErr  error
	}{
		{name: "unsupported", data: []byte("PK"), filename: "notes.docx", wantErr: document.ErrUnsupportedFormat},
		{name: "corrupt", data: []byte("not a pdf"), filename: "notes.pdf", wantErr: document.ErrCorruptDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &router.Decision{Backend: "gpt"})
			o := f.orchestrator(t, nil)

			_, err := o.RouteQuery(context.Background(), Query{Text: "summarize", Document: tt.data, Filename: tt.filename})
			require.ErrorIs(t, err, tt.wantErr)
			var oe *Error
			require.ErrorAs(t, err, &oe)
			assert.Equal(t, StateExtracting, oe.State)
			assert.Zero(t, f.classifier.calls())
			assert.Empty(t, f.gpt.Prompts())
		})
	}
}

func TestTextDocumentWithQuery(t *testing.T) {
	f := newFixture(t, &router.Decision{Backend: "claude", Mode: router.ModeQuery})
	o := f.orchestrator(t, nil)

	resp, err := o.RouteQuery(context.Background(), Query{
		Text:     "What changed?",
		Document: []byte("Release notes: added retries."),
		Filename: "notes.md",
	})
	require.NoError(t, err)
	assert.Equal(t, "claude", resp.LLMUsed)
	assert.Equal(t, router.ModeQuery, resp.Mode)
	require.NotNil(t, resp.FileProcessed)
	assert.Equal(t, document.FileTypeText, resp.FileProcessed.FileType)

	prompts := f.claude.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "What changed?")
	assert.Contains(t, prompts[0], "Release notes: added retries.")
	assert.NotContains(t, prompts[0], router.InsightInstruction)
}

func TestBackendSubstitution(t *testing.T) {
	f := newFixture(t, &router.Decision{Backend: "llama", Mode: router.ModeQuery})
	o := f.orchestrator(t, nil)

	resp, err := o.RouteQuery(context.Background(), Query{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "gpt", resp.LLMUsed)
	assert.Equal(t, "llama", resp.RequestedLLM)
	assert.False(t, resp.FallbackUsed)
}

func TestRouterUnavailableDegrades(t *testing.T) {
	f := newFixture(t, nil)
	f.classifier.err = fmt.Errorf("%w: timeout", router.ErrRouterUnavailable)
	o := f.orchestrator(t, nil)

	resp, err := o.RouteQuery(context.Background(), Query{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "gpt", resp.LLMUsed)
	assert.Equal(t, router.ModeFallback, resp.Mode)
	assert.Empty(t, resp.Tools)
}

func TestToolResultsFeedPrompt(t *testing.T) {
	failing := capability.NewFuncProvider(capability.Spec{Name: "ml_predict"}, func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("model offline")
	})
	f := newFixture(t, &router.Decision{
		Backend: "gpt",
		Mode:    router.ModeQuery,
		Tools: []capability.ToolCall{
			{Name: "data_analytics", Arguments: map[string]any{"query": "weekly sales"}},
			{Name: "ml_predict", Arguments: map[string]any{}},
			{Name: "text_to_speech", Arguments: map[string]any{}},
		},
	}, echoProvider("data_analytics", "query"), failing, echoProvider("text_to_speech", "text"))
	o := f.orchestrator(t, nil)

	resp, err := o.RouteQuery(context.Background(), Query{Text: "analyze sales"})
	require.NoError(t, err)

	require.Len(t, resp.Tools, 3)
	assert.Equal(t, ToolOutcome{Name: "data_analytics", Success: true}, resp.Tools[0])
	assert.False(t, resp.Tools[1].Success)
	assert.Contains(t, resp.Tools[1].Error, "model offline")
	assert.False(t, resp.Tools[2].Success)
	assert.Contains(t, resp.Tools[2].Error, "text")

	prompt := f.gpt.Prompts()[0]
	assert.Contains(t, prompt, "Tool results (JSON):")
	assert.Contains(t, prompt, `"tool": "data_analytics"`)
	assert.Contains(t, prompt, "weekly sales")
	assert.NotContains(t, prompt, "model offline")
	assert.NotContains(t, prompt, `"tool": "ml_predict"`)
}

func TestToolPayloadBounded(t *testing.T) {
	big := capability.NewFuncProvider(capability.Spec{Name: "speech_to_text"}, func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{"text": strings.Repeat("word ", 1000)}, nil
	})
	f := newFixture(t, &router.Decision{
		Backend: "gpt",
		Tools:   []capability.ToolCall{{Name: "speech_to_text"}},
	}, big)
	o := f.orchestrator(t, nil, WithPayloadChars(100))

	_, err := o.RouteQuery(context.Background(), Query{Text: "transcribe"})
	require.NoError(t, err)
	assert.Contains(t, f.gpt.Prompts()[0], "[... truncated: showing 100 of")
}

func TestToolTimeoutBound(t *testing.T) {
	stubborn := capability.NewFuncProvider(capability.Spec{Name: "video_generate"}, func(context.Context, map[string]any) (map[string]any, error) {
		time.Sleep(2 * time.Second)
		return map[string]any{"ok": true}, nil
	})
	f := newFixture(t, &router.Decision{
		Backend: "gpt",
		Tools:   []capability.ToolCall{{Name: "video_generate"}},
	}, stubborn)
	f.cfg.Tools.TimeoutMs = 50
	o := f.orchestrator(t, nil)

	start := time.Now()
	resp, err := o.RouteQuery(context.Background(), Query{Text: "make a video"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	require.Len(t, resp.Tools, 1)
	assert.False(t, resp.Tools[0].Success)
	assert.Contains(t, resp.Tools[0].Error, "deadline exceeded")
}

func TestToolLimitsAndConcurrency(t *testing.T) {
	var inFlight, peak int32
	var invoked int32
	slow := func(name string) capability.Provider {
		return capability.NewFuncProvider(capability.Spec{Name: name}, func(ctx context.Context, _ map[string]any) (map[string]any, error) {
			atomic.AddInt32(&invoked, 1)
			n := atomic.AddInt32(&inFlight, 1)
			defer atomic.AddInt32(&inFlight, -1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			return map[string]any{"name": name}, nil
		})
	}

	var providers []capability.Provider
	var calls []capability.ToolCall
	for i := 0; i < 7; i++ {
		name := fmt.Sprintf("tool_%d", i)
		providers = append(providers, slow(name))
		calls = append(calls, capability.ToolCall{Name: name})
	}
	f := newFixture(t, &router.Decision{Backend: "gpt", Tools: calls}, providers...)
	o := f.orchestrator(t, nil)

	resp, err := o.RouteQuery(context.Background(), Query{Text: "do everything"})
	require.NoError(t, err)

	assert.Len(t, resp.Tools, 5)
	assert.Equal(t, int32(5), atomic.LoadInt32(&invoked))
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	for i, outcome := range resp.Tools {
		assert.Equal(t, fmt.Sprintf("tool_%d", i), outcome.Name)
	}
}

func TestPlanBatches(t *testing.T) {
	calls := []capability.ToolCall{
		{Name: "speech_to_text"},
		{Name: "image_analyze"},
		{Name: "data_analytics", DependsOn: []string{"speech_to_text"}},
		{Name: "text_to_speech", DependsOn: []string{"image_generate"}},
		{Name: "video_generate", DependsOn: []string{"data_analytics"}},
	}

	batches := planBatches(calls)
	var got [][]string
	for _, b := range batches {
		var names []string
		for _, c := range b {
			names = append(names, c.Name)
		}
		got = append(got, names)
	}
	want := [][]string{
		{"speech_to_text", "image_analyze"},
		{"data_analytics", "text_to_speech"},
		{"video_generate"},
	}
	assert.Equal(t, want, got)
}

func TestDependentToolRunsAfterDependency(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(name string, delay time.Duration) capability.Provider {
		return capability.NewFuncProvider(capability.Spec{Name: name}, func(context.Context, map[string]any) (map[string]any, error) {
			time.Sleep(delay)
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return map[string]any{}, nil
		})
	}

	f := newFixture(t, &router.Decision{
		Backend: "gpt",
		Tools: []capability.ToolCall{
			{Name: "speech_to_text"},
			{Name: "data_analytics", DependsOn: []string{"speech_to_text"}},
		},
	}, record("speech_to_text", 40*time.Millisecond), record("data_analytics", 0))
	o := f.orchestrator(t, nil)

	_, err := o.RouteQuery(context.Background(), Query{Text: "transcribe then analyze"})
	require.NoError(t, err)
	assert.Equal(t, []string{"speech_to_text", "data_analytics"}, order)
}

func TestIdempotent(t *testing.T) {
	decision := &router.Decision{
		Backend: "claude",
		Mode:    router.ModeQuery,
		Tools: []capability.ToolCall{
			{Name: "data_analytics", Arguments: map[string]any{"query": "q"}},
			{Name: "image_generate", Arguments: map[string]any{"prompt": "p"}},
		},
	}
	f := newFixture(t, decision, echoProvider("data_analytics", "query"))
	o := f.orchestrator(t, nil)
	q := Query{Identity: "u", Text: "same input", Document: []byte("notes"), Filename: "n.txt"}

	first, err := o.RouteQuery(context.Background(), q)
	require.NoError(t, err)
	second, err := o.RouteQuery(context.Background(), q)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocking := capability.NewFuncProvider(capability.Spec{Name: "image_generate"}, func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})
	f := newFixture(t, &router.Decision{
		Backend: "gpt",
		Tools:   []capability.ToolCall{{Name: "image_generate"}},
	}, blocking)
	o := f.orchestrator(t, nil)

	resp, err := o.RouteQuery(ctx, Query{Text: "draw"})
	assert.Nil(t, resp)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.gpt.Prompts())
}

func TestNewRequiresCollaborators(t *testing.T) {
	f := newFixture(t, &router.Decision{Backend: "gpt"})

	_, err := New(nil, f.classifier, f.gateways, f.caps, nil)
	assert.Error(t, err)
	_, err = New(document.NewExtractor(), nil, f.gateways, f.caps, nil)
	assert.Error(t, err)
	_, err = New(document.NewExtractor(), f.classifier, nil, f.caps, nil)
	assert.Error(t, err)
}

func TestTracingAndMetrics(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	f := newFixture(t, &router.Decision{
		Backend: "claude",
		Mode:    router.ModeQuery,
		Tools:   []capability.ToolCall{{Name: "image_generate"}},
	})
	f.withBackends(t, f.gpt, gateway.NewFailingMockAdapter(&gateway.Error{Kind: gateway.ErrRateLimited}))
	o := f.orchestrator(t, nil, WithTracerProvider(tp), WithMetrics(metrics))

	_, err := o.RouteQuery(context.Background(), Query{Text: "hi"})
	require.NoError(t, err)

	spans := exporter.GetSpans()
	names := make(map[string]bool)
	var toolEvents int
	for _, s := range spans {
		names[s.Name] = true
		for _, ev := range s.Events {
			if ev.Name == "tool_failed" {
				toolEvents++
			}
		}
	}
	for _, want := range []string{"flowroute.route_query", "classifying", "tool_executing", "generating"} {
		assert.True(t, names[want], "missing span %s", want)
	}
	assert.Equal(t, 1, toolEvents)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, values["flowroute_requests_total"])
	assert.Equal(t, 1.0, values["flowroute_tool_invocations_total"])
	assert.Equal(t, 1.0, values["flowroute_generation_fallbacks_total"])
	assert.Equal(t, 1.0, values["flowroute_classifications_total"])
}
