package domain

import "context"

// TextGenerator is the external text-generation service: it takes a system
// instruction and a user payload for a given model and returns generated text.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// GenerationRequest is a bounded natural-language generation request.
type GenerationRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}
