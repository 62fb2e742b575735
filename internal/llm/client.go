// Package llm provides clients for the external inference APIs.
//
// Two upstream response shapes exist: Ollama streams newline-delimited JSON
// objects carrying incremental message.content fragments, while the Groq
// OpenAI-compatible endpoint returns a single object with the reply at
// choices[0].message.content. Both clients normalize to one reply string.
package llm

import (
	"context"
	"errors"

	"github.com/elvecinito/vecinito-server/internal/domain"
)

var (
	// ErrUpstream is returned when the inference API is unreachable or
	// answers with a non-2xx status. Never retried.
	ErrUpstream = errors.New("inference API request failed")

	// ErrEmptyResponse is returned when the upstream answered but no reply
	// content could be extracted.
	ErrEmptyResponse = errors.New("empty model response")
)

// Client sends a conversation to an inference API and returns the reply text.
type Client interface {
	Chat(ctx context.Context, messages []domain.Message) (string, error)
}

// chatRequest is the wire format shared by both upstreams.
type chatRequest struct {
	Model    string           `json:"model"`
	Messages []domain.Message `json:"messages"`
	Stream   bool             `json:"stream,omitempty"`
}
