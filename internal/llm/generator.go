// Package llm provides the content-generation collaborator: prompt in,
// text out. Transient rate limits are retried locally with backoff;
// everything else fails the calling pipeline stage.
package llm

import "context"

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
