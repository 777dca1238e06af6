package config

import (
	"fmt"
	"sort"
	"strings"
)

// BackendAliases maps alternative backend names (as a router model may emit
// them) to registered backend names.
type BackendAliases map[string]string

// Resolve returns the canonical backend name for an alias.
// If the input is not an alias, it returns the input unchanged.
func (a BackendAliases) Resolve(nameOrAlias string) string {
	key := strings.ToLower(strings.TrimSpace(nameOrAlias))
	if canonical, ok := a[key]; ok {
		return canonical
	}
	return nameOrAlias
}

// IsAlias returns true if the given string is a known alias.
func (a BackendAliases) IsAlias(name string) bool {
	_, ok := a[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// ListAliases returns the alias names in sorted order.
func (a BackendAliases) ListAliases() []string {
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// validateAliases checks that every alias points at a defined backend.
func validateAliases(aliases BackendAliases, backends map[string]BackendConfig) []error {
	var errs []error
	for _, alias := range aliases.ListAliases() {
		target := aliases[alias]
		if _, ok := backends[target]; !ok {
			errs = append(errs, fmt.Errorf("alias %q: backend %q is not defined", alias, target))
		}
	}
	return errs
}

// DefaultAliases returns the default backend aliases.
func DefaultAliases() BackendAliases {
	return BackendAliases{
		"chatgpt":   "gpt",
		"openai":    "gpt",
		"gpt-4o":    "gpt",
		"anthropic": "claude",
		"google":    "gemini",
		"xai":       "grok",
	}
}
