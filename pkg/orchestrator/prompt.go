package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zen-systems/flowroute/pkg/capability"
	"github.com/zen-systems/flowroute/pkg/document"
	"github.com/zen-systems/flowroute/pkg/router"
)

const historyTurns = 10

type toolDigest struct {
	Tool   string `json:"tool"`
	Result any    `json:"result"`
}

// buildPrompt assembles the generation prompt. Failed tools are left out.
func (o *Orchestrator) buildPrompt(q Query, doc *document.Document, insight bool, results []capability.Result) string {
	var sb strings.Builder

	history := q.History
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, turn := range history {
			sb.WriteString(fmt.Sprintf("Human: %s\nAI: %s\n", turn.Query, turn.Response))
		}
		sb.WriteString("\n")
	}

	if insight {
		sb.WriteString(router.InsightInstruction)
	} else {
		sb.WriteString(strings.TrimSpace(q.Text))
	}
	sb.WriteString("\n")

	if doc != nil {
		sb.WriteString(fmt.Sprintf("\nThe user attached a %s. Its content:\n", doc.Describe()))
		if doc.Text == "" {
			sb.WriteString(document.NoTextPlaceholder)
		} else {
			sb.WriteString(document.Truncate(doc.Text, o.promptChars))
		}
		sb.WriteString("\n")
	}

	if digest := o.toolDigest(results); digest != "" {
		sb.WriteString("\nTool results (JSON):\n")
		sb.WriteString(digest)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (o *Orchestrator) toolDigest(results []capability.Result) string {
	var entries []toolDigest
	for _, res := range results {
		if !res.Success {
			continue
		}
		entries = append(entries, toolDigest{Tool: res.Name, Result: o.boundPayload(res.Payload)})
	}
	if len(entries) == 0 {
		return ""
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

// boundPayload returns the payload as-is when its JSON form fits within
// payloadChars, and a truncated string otherwise.
func (o *Orchestrator) boundPayload(payload map[string]any) any {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("[unserializable payload: %v]", err)
	}
	if o.payloadChars <= 0 || len([]rune(string(data))) <= o.payloadChars {
		return payload
	}
	return document.Truncate(string(data), o.payloadChars)
}
