// Package oracle is the port to an external language model used to
// disambiguate queries and validate typo corrections.
//
// Every adapter speaks the same narrow contract: a prompt goes in, text comes
// out. Callers wrap adapters in Resilient so that retries, timeouts and the
// circuit breaker are applied uniformly, and use AskJSON when they expect a
// JSON object back.
package oracle

import (
	"context"
	"errors"
)

// Request is one completion request.
type Request struct {
	// System is optional instruction text placed before Prompt.
	System string
	// Prompt is the user message.
	Prompt string
	// MaxTokens bounds the completion length. Zero means the adapter default.
	MaxTokens int
	// JSON asks the provider for a JSON object when it supports that mode.
	JSON bool
}

// Oracle answers prompts with free text.
type Oracle interface {
	Ask(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, req Request) (string, error)

// Ask calls f.
func (f Func) Ask(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ErrDisabled is returned by Disabled.
var ErrDisabled = errors.New("oracle disabled")

// Disabled is an Oracle that always fails, so routing degrades to rules.
type Disabled struct{}

// Ask implements Oracle.
func (Disabled) Ask(context.Context, Request) (string, error) {
	return "", ErrDisabled
}

// IsDisabled reports whether err comes from a Disabled oracle.
func IsDisabled(err error) bool {
	return errors.Is(err, ErrDisabled)
}
