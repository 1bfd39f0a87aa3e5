// Package llm provides the text-generation collaborator: an OpenAI-compatible chat
// completions client and a deterministic mock.
package llm

import (
	"context"
	"errors"

	"github.com/hyperjump/bunko/internal/models"
)

// ErrPayloadTooLarge is returned (wrapped) when the provider rejects a prompt as
// too large for the model. Callers may retry once with a smaller prompt.
var ErrPayloadTooLarge = errors.New("llm: payload too large")

// Request is one generation call: a system prompt, the conversation so far with the
// final user message last, and an output token cap (0 = provider default).
type Request struct {
	System    string
	Messages  []models.Message
	MaxTokens int
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	// Model identifies the model; it is part of cache keys for generated output.
	Model() string
}

// UserPrompt builds a request with a single user message.
func UserPrompt(system, prompt string, maxTokens int) Request {
	return Request{
		System:    system,
		Messages:  []models.Message{{Role: models.RoleUser, Content: prompt}},
		MaxTokens: maxTokens,
	}
}
