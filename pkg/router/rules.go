package router

import (
	"sort"
	"strings"

	"github.com/zen-systems/flowroute/pkg/config"
)

// RuleSet contains the compiled trigger rules used as routing hints.
type RuleSet struct {
	// Compiled rules ordered by priority (longer triggers first for specificity)
	rules []compiledRule
}

type compiledRule struct {
	backend string
	trigger string
	raw     string
}

// NewRuleSet creates a rule set from backend trigger configuration. Only
// backends accepted by include are compiled; a nil include accepts all.
func NewRuleSet(backends map[string]config.BackendConfig, include func(string) bool) *RuleSet {
	rs := &RuleSet{}
	for name, backend := range backends {
		if include != nil && !include(name) {
			continue
		}
		for _, trigger := range backend.Triggers {
			trimmed := strings.TrimSpace(trigger)
			if trimmed == "" {
				continue
			}
			rs.rules = append(rs.rules, compiledRule{
				backend: name,
				trigger: strings.ToLower(trimmed),
				raw:     trimmed,
			})
		}
	}

	sort.SliceStable(rs.rules, func(i, j int) bool {
		a, b := rs.rules[i], rs.rules[j]
		if len(a.trigger) != len(b.trigger) {
			return len(a.trigger) > len(b.trigger)
		}
		if a.trigger != b.trigger {
			return a.trigger < b.trigger
		}
		return a.backend < b.backend
	})
	return rs
}

// Match finds the backend with the most specific matching trigger.
func (rs *RuleSet) Match(prompt string) (string, bool) {
	promptLower := strings.ToLower(prompt)

	for _, rule := range rs.rules {
		if containsTrigger(promptLower, rule.trigger) {
			return rule.backend, true
		}
	}
	return "", false
}

// Hints scores backends by trigger matches and returns at most three
// candidates, best first.
func (rs *RuleSet) Hints(prompt string) []Candidate {
	promptLower := strings.ToLower(prompt)

	byBackend := make(map[string]*Candidate)
	var order []string
	for _, rule := range rs.rules {
		if !containsTrigger(promptLower, rule.trigger) {
			continue
		}
		c, ok := byBackend[rule.backend]
		if !ok {
			c = &Candidate{Backend: rule.backend}
			byBackend[rule.backend] = c
			order = append(order, rule.backend)
		}
		c.Score++
		c.Triggers = append(c.Triggers, rule.raw)
	}

	candidates := make([]Candidate, 0, len(order))
	for _, name := range order {
		candidates = append(candidates, *byBackend[name])
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score == candidates[j].Score {
			return candidates[i].Backend < candidates[j].Backend
		}
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > 3 {
		candidates = candidates[:3]
	}
	return candidates
}

// containsTrigger checks if the prompt contains the trigger phrase.
// It looks for the trigger as a word or phrase boundary match.
func containsTrigger(prompt, trigger string) bool {
	offset := 0
	for {
		idx := strings.Index(prompt[offset:], trigger)
		if idx == -1 {
			return false
		}
		idx += offset

		// Check word boundary before and after trigger
		endIdx := idx + len(trigger)
		before := idx == 0 || !isWordChar(prompt[idx-1])
		after := endIdx >= len(prompt) || !isWordChar(prompt[endIdx])
		if before && after {
			return true
		}
		offset = idx + 1
	}
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}
