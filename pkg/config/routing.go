package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RoutingConfig holds backend, capability and limit settings.
type RoutingConfig struct {
	DefaultBackend string                      `yaml:"default_backend"`
	RouterBackend  RouteTarget                 `yaml:"router_backend"`
	Backends       map[string]BackendConfig    `yaml:"backends"`
	Aliases        BackendAliases              `yaml:"aliases,omitempty"`
	Capabilities   map[string]CapabilityConfig `yaml:"capabilities,omitempty"`
	Tools          ToolsConfig                 `yaml:"tools,omitempty"`
	Timeouts       TimeoutsConfig              `yaml:"timeouts,omitempty"`
	MaxTokens      int                         `yaml:"max_tokens,omitempty"`
	Document       DocumentConfig              `yaml:"document,omitempty"`
}

// BackendConfig binds a symbolic backend name to an adapter and model.
type BackendConfig struct {
	Adapter     string   `yaml:"adapter"`
	Model       string   `yaml:"model"`
	Description string   `yaml:"description,omitempty"`
	Triggers    []string `yaml:"triggers,omitempty"`
	BaseURL     string   `yaml:"base_url,omitempty"`
}

// RouteTarget specifies an adapter and model combination.
type RouteTarget struct {
	Adapter string `yaml:"adapter"`
	Model   string `yaml:"model"`
}

// CapabilityConfig overrides endpoint and rate settings for a capability.
type CapabilityConfig struct {
	BaseURL       string  `yaml:"base_url,omitempty"`
	RatePerSecond float64 `yaml:"rate_per_second,omitempty"`
	Burst         int     `yaml:"burst,omitempty"`
}

// ToolsConfig bounds tool execution per request.
type ToolsConfig struct {
	MaxTools      int `yaml:"max_tools,omitempty"`
	MaxConcurrent int `yaml:"max_concurrent,omitempty"`
	TimeoutMs     int `yaml:"timeout_ms,omitempty"`
}

// TimeoutsConfig holds per-call timeouts for LLM calls.
type TimeoutsConfig struct {
	RouterMs     int `yaml:"router_ms,omitempty"`
	GenerationMs int `yaml:"generation_ms,omitempty"`
}

// DocumentConfig bounds document handling.
type DocumentConfig struct {
	MaxBytes     int64 `yaml:"max_bytes,omitempty"`
	SummaryChars int   `yaml:"summary_chars,omitempty"`
	PromptChars  int   `yaml:"prompt_chars,omitempty"`
	PreviewChars int   `yaml:"preview_chars,omitempty"`
}

// ToolTimeout returns the per-tool timeout.
func (t ToolsConfig) ToolTimeout() time.Duration {
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

// Router returns the classifier call timeout.
func (t TimeoutsConfig) Router() time.Duration {
	return time.Duration(t.RouterMs) * time.Millisecond
}

// Generation returns the final generation call timeout.
func (t TimeoutsConfig) Generation() time.Duration {
	return time.Duration(t.GenerationMs) * time.Millisecond
}

// LoadRoutingConfig reads routing configuration from a YAML file.
func LoadRoutingConfig(path string) (*RoutingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg RoutingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyRoutingDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *RoutingConfig) Validate() error {
	if c.DefaultBackend == "" {
		return fmt.Errorf("default_backend is required")
	}
	if _, ok := c.Backends[c.DefaultBackend]; !ok {
		return fmt.Errorf("default_backend %q is not defined in backends", c.DefaultBackend)
	}
	for name, b := range c.Backends {
		if b.Adapter == "" {
			return fmt.Errorf("backend %s: adapter is required", name)
		}
	}
	if c.Tools.MaxTools < 0 || c.Tools.MaxConcurrent < 0 {
		return fmt.Errorf("tools limits must not be negative")
	}
	if c.Tools.TimeoutMs < 0 || c.Timeouts.RouterMs < 0 || c.Timeouts.GenerationMs < 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if errs := validateAliases(c.Aliases, c.Backends); len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// DefaultRoutingConfig returns the default routing configuration.
func DefaultRoutingConfig() *RoutingConfig {
	cfg := &RoutingConfig{
		DefaultBackend: "gpt",
		Backends: map[string]BackendConfig{
			"gpt": {
				Adapter:     "openai",
				Model:       "gpt-4o",
				Description: "General-purpose assistant; strong at everyday questions, writing and structured answers",
				Triggers:    []string{"summarize", "email", "draft", "explain", "list"},
			},
			"claude": {
				Adapter:     "anthropic",
				Model:       "claude-sonnet-4-20250514",
				Description: "Careful long-form reasoning, coding and document analysis",
				Triggers:    []string{"code", "debug", "refactor", "contract", "review", "analyze"},
			},
			"gemini": {
				Adapter:     "google",
				Model:       "gemini-2.5-pro",
				Description: "Research, factual lookups and multimodal context",
				Triggers:    []string{"research", "compare", "what is", "look up"},
			},
			"deepseek": {
				Adapter:     "deepseek",
				Model:       "deepseek-reasoner",
				Description: "Step-by-step mathematical and logical reasoning",
				Triggers:    []string{"calculate", "prove", "step by step", "equation"},
			},
			"mistral": {
				Adapter:     "mistral",
				Model:       "mistral-large-latest",
				Description: "Fast multilingual answers and translation",
				Triggers:    []string{"translate", "french", "spanish"},
			},
			"grok": {
				Adapter:     "xai",
				Model:       "grok-3",
				Description: "Current events and conversational answers",
				Triggers:    []string{"news", "trending", "latest"},
			},
		},
		Aliases: DefaultAliases(),
		RouterBackend: RouteTarget{
			Adapter: "google",
			Model:   "gemini-2.5-flash",
		},
	}

	applyRoutingDefaults(cfg)
	return cfg
}

func applyRoutingDefaults(cfg *RoutingConfig) {
	if cfg == nil {
		return
	}
	if cfg.RouterBackend.Adapter == "" {
		cfg.RouterBackend.Adapter = "google"
	}
	if cfg.RouterBackend.Model == "" {
		cfg.RouterBackend.Model = "gemini-2.5-flash"
	}
	if cfg.Tools.MaxTools == 0 {
		cfg.Tools.MaxTools = 5
	}
	if cfg.Tools.MaxConcurrent == 0 {
		cfg.Tools.MaxConcurrent = 3
	}
	if cfg.Tools.TimeoutMs == 0 {
		cfg.Tools.TimeoutMs = 30000
	}
	if cfg.Timeouts.RouterMs == 0 {
		cfg.Timeouts.RouterMs = 15000
	}
	if cfg.Timeouts.GenerationMs == 0 {
		cfg.Timeouts.GenerationMs = 60000
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Document.MaxBytes == 0 {
		cfg.Document.MaxBytes = 10 * 1024 * 1024
	}
	if cfg.Document.SummaryChars == 0 {
		cfg.Document.SummaryChars = 4000
	}
	if cfg.Document.PromptChars == 0 {
		cfg.Document.PromptChars = 100000
	}
	if cfg.Document.PreviewChars == 0 {
		cfg.Document.PreviewChars = 200
	}
}
