// Package llm talks to the generation and embedding provider.
package llm

import "context"

// Request is a single-turn generation call.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
}

type Response struct {
	Model   string
	Content Content
}

// Model generates one response per request.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
