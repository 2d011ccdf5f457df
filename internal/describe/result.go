// Package describe produces the next character description in the chain.
package describe

import "context"

// Kind tags which path produced a Result.
type Kind int

const (
	// Generated means the external generator answered.
	Generated Kind = iota
	// Fallback means the deterministic fallback table was used.
	Fallback
)

func (k Kind) String() string {
	switch k {
	case Generated:
		return "generated"
	case Fallback:
		return "fallback"
	}
	return "unknown"
}

// FallbackPrompt is recorded as the prompt of events produced by the
// fallback table.
const FallbackPrompt = "[fallback]"

// Result is the outcome of one step of the chain. Prompt is only set for
// Generated results; Reason is only set for Fallback results.
type Result struct {
	Kind   Kind
	Prompt string
	Text   string
	Reason string
}

// NewGenerated returns a Generated result.
func NewGenerated(prompt, text string) Result {
	return Result{Kind: Generated, Prompt: prompt, Text: text}
}

// NewFallback returns a Fallback result. reason says why the generator was
// not used and is only logged.
func NewFallback(text, reason string) Result {
	return Result{Kind: Fallback, Prompt: FallbackPrompt, Text: text, Reason: reason}
}

// IsFallback reports whether r came from the fallback table.
func (r Result) IsFallback() bool { return r.Kind == Fallback }

// Generator improves a description for the given level. It returns an
// error only when ctx is done; every other failure resolves to a Fallback
// result.
type Generator interface {
	Improve(ctx context.Context, current string, level int) (Result, error)
}

// Provider is a raw text-completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}
