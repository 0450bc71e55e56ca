// Package providers implements the LLM provider clients used for chat,
// embeddings, tool scoring and argument planning, plus a deterministic
// local fallback that keeps the agent usable without any API key.
package providers

import (
	"context"
	"errors"
	"fmt"
)

// ErrTransport marks failures reaching the provider (network, HTTP status).
var ErrTransport = errors.New("provider transport error")

// ErrDecode marks a reachable provider returning an unusable payload.
var ErrDecode = errors.New("provider decode error")

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatOptions tune a chat completion call.
type ChatOptions struct {
	Temperature float64  `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Client is the provider surface the agent loop depends on.
type Client interface {
	// Embed maps texts to vectors of the client's fixed dimension.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Chat returns a completion for the conversation.
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error)

	// ScoreTools rates each tool 0..1 for usefulness on the message.
	// toolDocs maps tool name to its one-line description.
	ScoreTools(ctx context.Context, systemPrompt, userMessage string, toolDocs map[string]string) (map[string]float64, error)

	// PlanToolArgs produces a JSON argument object for the chosen tool.
	PlanToolArgs(ctx context.Context, userMessage, toolName, toolDoc string) (map[string]any, error)

	// SynthesizeResponse writes the final user-facing answer from the tool
	// result (empty toolName means no tool ran) and recalled memories.
	SynthesizeResponse(ctx context.Context, userMessage, toolName, toolResult string, memories []string) (string, error)

	// Name identifies the client for logs.
	Name() string
}

func transportErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransport, fmt.Sprintf(format, args...))
}

func decodeErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}
