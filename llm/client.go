// Package llm defines the narrow boundary to the hosted text-generation
// backend: one prompt in, one completion out, no streaming.
package llm

import "context"

// Request is a single generation call. Zero MaxTokens/Temperature let the
// provider apply its defaults.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}
