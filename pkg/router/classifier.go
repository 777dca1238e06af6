package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/zen-systems/flowroute/pkg/capability"
	"github.com/zen-systems/flowroute/pkg/config"
	"github.com/zen-systems/flowroute/pkg/document"
	"github.com/zen-systems/flowroute/pkg/gateway"
)

const (
	historyTurns     = 10
	defaultMaxTokens = 1500
)

var toolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Classifier asks a router model which backend should answer a request and
// which capability tools should run first.
type Classifier struct {
	router    gateway.Backend
	backends  *gateway.Registry
	tools     []capability.Spec
	aliases   config.BackendAliases
	rules     *RuleSet
	summary   int
	timeout   time.Duration
	maxTokens int
	logf      func(format string, args ...any)
}

// NewClassifier creates a classifier. The router backend may have a nil
// adapter, in which case every Classify call with content reports
// ErrRouterUnavailable.
func NewClassifier(routerBackend gateway.Backend, backends *gateway.Registry, tools []capability.Spec, cfg *config.RoutingConfig, opts ...Option) *Classifier {
	if cfg == nil {
		cfg = config.DefaultRoutingConfig()
	}
	c := &Classifier{
		router:    routerBackend,
		backends:  backends,
		tools:     tools,
		aliases:   cfg.Aliases,
		rules:     NewRuleSet(cfg.Backends, backends.Has),
		summary:   cfg.Document.SummaryChars,
		timeout:   cfg.Timeouts.Router(),
		maxTokens: defaultMaxTokens,
		logf:      defaultLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify determines the backend and tool calls for a request.
func (c *Classifier) Classify(ctx context.Context, in Input) (*Decision, error) {
	query := strings.Join(strings.Fields(in.Query), " ")
	hasDoc := strings.TrimSpace(in.DocumentText) != ""
	defaultBackend := c.backends.Default()

	if query == "" && !hasDoc {
		return &Decision{
			Backend: defaultBackend,
			Mode:    ModePassthrough,
			Reasons: []string{"nothing to classify; using default backend"},
		}, nil
	}

	insight := query == "" && hasDoc
	decision := &Decision{Mode: ModeQuery}
	if insight {
		decision.Mode = ModeDocumentInsight
	} else {
		decision.Candidates = c.rules.Hints(query)
	}

	if c.router.Adapter == nil {
		return nil, fmt.Errorf("%w: no router backend configured", ErrRouterUnavailable)
	}

	prompt := c.buildPrompt(query, in, decision.Candidates, insight)

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.router.Adapter.Generate(callCtx, c.router.Model, prompt, c.maxTokens)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logf("[router] router call failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrRouterUnavailable, err)
	}
	decision.UsedRouter = true

	pick, err := parseRouterResponse(resp)
	if err == nil {
		err = c.validate(pick)
	}
	if err != nil {
		c.logf("[router] rejected router output: %v", err)
		decision.Backend = defaultBackend
		decision.Tools = nil
		if !insight {
			decision.Mode = ModeFallback
		}
		decision.Reasons = append(decision.Reasons, fmt.Sprintf("router output rejected: %v", err))
		return decision, nil
	}

	decision.Backend = pick.Backend
	decision.Tools = pick.Tools
	if pick.Reason != "" {
		decision.Reasons = append(decision.Reasons, pick.Reason)
	}
	if insight && decision.Backend != defaultBackend {
		decision.Reasons = append(decision.Reasons, fmt.Sprintf("document insight pinned to %s (router picked %s)", defaultBackend, decision.Backend))
		decision.Backend = defaultBackend
	}

	c.logf("[router] backend=%s tools=%d mode=%s", decision.Backend, len(decision.Tools), decision.Mode)
	return decision, nil
}

type routerPick struct {
	Backend string                `json:"backend"`
	Tools   []capability.ToolCall `json:"tools"`
	Reason  string                `json:"reason"`
}

func parseRouterResponse(content string) (*routerPick, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty router response")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	dec.DisallowUnknownFields()

	var pick routerPick
	if err := dec.Decode(&pick); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after JSON object")
	}
	return &pick, nil
}

func (c *Classifier) validate(pick *routerPick) error {
	backend := strings.TrimSpace(pick.Backend)
	if backend == "" {
		return fmt.Errorf("missing backend")
	}
	backend = c.aliases.Resolve(strings.ToLower(backend))
	if !c.backends.Has(backend) {
		return fmt.Errorf("unknown backend %q", pick.Backend)
	}
	pick.Backend = backend

	for i, call := range pick.Tools {
		name := strings.TrimSpace(call.Name)
		if name == "" {
			return fmt.Errorf("tool %d has no name", i)
		}
		if !toolNamePattern.MatchString(name) {
			return fmt.Errorf("invalid tool name %q", call.Name)
		}
		pick.Tools[i].Name = name
		if pick.Tools[i].Arguments == nil {
			pick.Tools[i].Arguments = map[string]any{}
		}
	}
	return nil
}

func (c *Classifier) buildPrompt(query string, in Input, hints []Candidate, insight bool) string {
	var sb strings.Builder
	sb.WriteString("You are a routing assistant. Pick the single best backend to answer the user and any tools that should run first.\n\n")

	sb.WriteString("Available backends:\n")
	for _, b := range c.backends.Backends() {
		desc := b.Description
		if desc == "" {
			desc = "general assistant"
		}
		sb.WriteString(fmt.Sprintf("- %s: %s\n", b.Name, desc))
	}

	sb.WriteString("\nAvailable tools:\n")
	if len(c.tools) == 0 {
		sb.WriteString("- none\n")
	}
	for _, spec := range c.tools {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", spec.Name, spec.Description))
		for _, p := range spec.Params {
			req := "optional"
			if p.Required {
				req = "required"
			}
			sb.WriteString(fmt.Sprintf("    %s (%s): %s\n", p.Name, req, p.Description))
		}
	}

	if len(hints) > 0 {
		sb.WriteString("\nKeyword hints (advisory):\n")
		for _, h := range hints {
			sb.WriteString(fmt.Sprintf("- %s (score=%d): %s\n", h.Backend, h.Score, strings.Join(h.Triggers, ", ")))
		}
	}

	sb.WriteString("\nConversation history:\n")
	history := in.History
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	if len(history) == 0 {
		sb.WriteString("No history yet. This is the first message.\n")
	}
	for _, turn := range history {
		sb.WriteString(fmt.Sprintf("Human: %s\nAI: %s\n", turn.Query, turn.Response))
	}

	if insight {
		sb.WriteString("\nThe user uploaded a document without a question. Prefer the default backend ")
		sb.WriteString(fmt.Sprintf("(%s) and plan for this instruction:\n%s\n", c.backends.Default(), InsightInstruction))
	} else {
		sb.WriteString(fmt.Sprintf("\nUser query: %q\n", query))
	}

	if strings.TrimSpace(in.DocumentText) != "" {
		sb.WriteString("\nAttached document")
		if in.DocumentName != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", in.DocumentName))
		}
		sb.WriteString(":\n")
		sb.WriteString(document.Truncate(in.DocumentText, c.summary))
		sb.WriteString("\n")
	}

	sb.WriteString("\nReturn ONLY JSON with exactly these fields:\n")
	sb.WriteString(`{"backend":"<backend name>","tools":[{"name":"<tool name>","arguments":{},"depends_on":[]}],"reason":"<short reason>"}`)
	sb.WriteString("\nUse an empty tools list when no tool is needed.\n")
	return sb.String()
}
