// Package capability invokes auxiliary tools (speech, image, video, analytics,
// ML prediction) by name with structured arguments.
package capability

import (
	"context"
	"errors"
	"time"
)

// ErrorKind classifies a failed tool invocation.
type ErrorKind string

const (
	KindNotConfigured    ErrorKind = "not_configured"
	KindTimeout          ErrorKind = "timeout"
	KindInvalidArguments ErrorKind = "invalid_arguments"
	KindProviderError    ErrorKind = "provider_error"
	KindCanceled         ErrorKind = "canceled"
)

var (
	// ErrNotConfigured is returned for capability names with no registered provider.
	ErrNotConfigured = errors.New("capability not configured")
	// ErrTimeout is returned when a provider exceeds the per-tool timeout.
	ErrTimeout = errors.New("capability timed out")
	// ErrInvalidArguments is returned when required arguments are missing or malformed.
	ErrInvalidArguments = errors.New("invalid capability arguments")
	// ErrProviderError wraps failures reported by the external service.
	ErrProviderError = errors.New("capability provider error")
)

// Param describes one argument a capability accepts.
type Param struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Spec describes a capability to the router model and to API clients.
type Spec struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
}

// Provider executes one capability.
type Provider interface {
	// Spec returns the capability description. Spec().Name is the registry key.
	Spec() Spec

	// Invoke runs the capability. Implementations must honour ctx.
	Invoke(ctx context.Context, args map[string]any) (map[string]any, error)
}

// ToolCall is a capability invocation selected by the classifier.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	DependsOn []string       `json:"depends_on,omitempty"`
}

// Result is the outcome of one tool invocation. It is never persisted.
type Result struct {
	Name      string
	Success   bool
	Payload   map[string]any
	ErrorKind ErrorKind
	Error     string
	Latency   time.Duration
}

// Err returns the sentinel matching the result's error kind, or nil on success.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	switch r.ErrorKind {
	case KindNotConfigured:
		return ErrNotConfigured
	case KindTimeout:
		return ErrTimeout
	case KindInvalidArguments:
		return ErrInvalidArguments
	case KindCanceled:
		return context.Canceled
	default:
		return ErrProviderError
	}
}
