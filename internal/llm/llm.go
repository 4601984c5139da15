package llm

import "context"

// Client is a minimal LLM interface to allow pluggable providers.
type Client interface {
	// Complete runs a single-turn prompt and returns the raw response text.
	Complete(ctx context.Context, system, user string) (string, error)
}
