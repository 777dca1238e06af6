// Package router classifies a request into a backend and an ordered list of
// capability tool calls using a router model.
package router

import (
	"errors"
	"log"
	"time"
)

// ErrRouterUnavailable is returned when the router model cannot be reached.
// Callers degrade to the default backend with no tools.
var ErrRouterUnavailable = errors.New("router unavailable")

// InsightInstruction is the canonical instruction used when a document is
// uploaded without a question.
const InsightInstruction = `Summarize the document and extract its key insights. Provide a comprehensive analysis including:

1. Document Summary - Brief overview of the main content
2. Key Topics & Themes - Main subjects and recurring themes
3. Important Information - Critical data, findings, or conclusions
4. Structure & Organization - How the document is organized
5. Key Takeaways - Most important points to remember
6. Actionable Items - Any tasks, recommendations, or next steps mentioned
7. Context & Significance - Why this document matters and its broader implications`

// Turn is one prior exchange in the conversation.
type Turn struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

// Input is what the classifier sees for one request.
type Input struct {
	Query        string
	DocumentText string
	DocumentName string
	History      []Turn
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the classifier logger.
func WithLogger(fn func(format string, args ...any)) Option {
	return func(c *Classifier) {
		if fn != nil {
			c.logf = fn
		}
	}
}

// WithTimeout overrides the router call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		c.timeout = d
	}
}

// WithMaxTokens sets the router model's output budget.
func WithMaxTokens(n int) Option {
	return func(c *Classifier) {
		c.maxTokens = n
	}
}

func defaultLogger() func(format string, args ...any) {
	return log.Printf
}
