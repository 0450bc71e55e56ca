package providers

import (
	"context"
	"log/slog"
)

// FallbackClient tries the primary client and switches to the local
// heuristic on error, per call. It never replaces a successful primary
// answer. Note the memory store rejects embeddings whose dimension
// differs from its matrix, so a fallback embedding from a transient
// outage cannot corrupt it.
type FallbackClient struct {
	primary  Client
	fallback *LocalHeuristicClient
	logger   *slog.Logger
}

// WithFallback wraps a client with the local-heuristic fallback. The
// heuristic client itself is returned unwrapped.
func WithFallback(primary Client) Client {
	if _, ok := primary.(*LocalHeuristicClient); ok {
		return primary
	}
	return &FallbackClient{
		primary:  primary,
		fallback: NewLocalHeuristicClient(),
		logger:   slog.Default(),
	}
}

func (c *FallbackClient) Name() string { return c.primary.Name() }

func (c *FallbackClient) warn(op string, err error) {
	c.logger.Warn("provider failed, using local heuristic", "provider", c.primary.Name(), "op", op, "error", err)
}

func (c *FallbackClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := c.primary.Embed(ctx, texts)
	if err == nil {
		return out, nil
	}
	c.warn("embed", err)
	return c.fallback.Embed(ctx, texts)
}

func (c *FallbackClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	out, err := c.primary.Chat(ctx, messages, opts)
	if err == nil {
		return out, nil
	}
	c.warn("chat", err)
	return c.fallback.Chat(ctx, messages, opts)
}

func (c *FallbackClient) ScoreTools(ctx context.Context, systemPrompt, userMessage string, toolDocs map[string]string) (map[string]float64, error) {
	out, err := c.primary.ScoreTools(ctx, systemPrompt, userMessage, toolDocs)
	if err == nil {
		return out, nil
	}
	c.warn("score_tools", err)
	return c.fallback.ScoreTools(ctx, systemPrompt, userMessage, toolDocs)
}

func (c *FallbackClient) PlanToolArgs(ctx context.Context, userMessage, toolName, toolDoc string) (map[string]any, error) {
	out, err := c.primary.PlanToolArgs(ctx, userMessage, toolName, toolDoc)
	if err == nil {
		return out, nil
	}
	c.warn("plan_tool_args", err)
	return c.fallback.PlanToolArgs(ctx, userMessage, toolName, toolDoc)
}

func (c *FallbackClient) SynthesizeResponse(ctx context.Context, userMessage, toolName, toolResult string, memories []string) (string, error) {
	out, err := c.primary.SynthesizeResponse(ctx, userMessage, toolName, toolResult, memories)
	if err == nil {
		return out, nil
	}
	c.warn("synthesize", err)
	return c.fallback.SynthesizeResponse(ctx, userMessage, toolName, toolResult, memories)
}
