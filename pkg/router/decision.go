package router

import "github.com/zen-systems/flowroute/pkg/capability"

// Mode records how a routing decision was reached.
type Mode string

const (
	// ModeQuery is a normal router-model decision.
	ModeQuery Mode = "query"
	// ModeDocumentInsight applies when a document arrives without a question.
	ModeDocumentInsight Mode = "document_insight"
	// ModePassthrough applies when there is nothing to classify.
	ModePassthrough Mode = "passthrough"
	// ModeFallback applies when the router output was rejected.
	ModeFallback Mode = "fallback"
)

// Candidate captures a heuristic candidate backend.
type Candidate struct {
	Backend  string   `json:"backend"`
	Score    int      `json:"score"`
	Triggers []string `json:"triggers,omitempty"`
}

// Decision captures routing decision details.
type Decision struct {
	Backend    string                `json:"backend"`
	Tools      []capability.ToolCall `json:"tools"`
	Mode       Mode                  `json:"mode"`
	Reasons    []string              `json:"reasons,omitempty"`
	Candidates []Candidate           `json:"candidates,omitempty"`
	UsedRouter bool                  `json:"used_router"`
}
