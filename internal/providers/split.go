package providers

import "context"

// SplitClient uses one provider for chat and routing and another for
// embeddings (e.g. Anthropic chat with OpenAI embeddings).
type SplitClient struct {
	chat  Client
	embed Client
}

func NewSplitClient(chat, embed Client) *SplitClient {
	return &SplitClient{chat: chat, embed: embed}
}

func (c *SplitClient) Name() string { return c.chat.Name() + "+" + c.embed.Name() }

func (c *SplitClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed.Embed(ctx, texts)
}

func (c *SplitClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	return c.chat.Chat(ctx, messages, opts)
}

func (c *SplitClient) ScoreTools(ctx context.Context, systemPrompt, userMessage string, toolDocs map[string]string) (map[string]float64, error) {
	return c.chat.ScoreTools(ctx, systemPrompt, userMessage, toolDocs)
}

func (c *SplitClient) PlanToolArgs(ctx context.Context, userMessage, toolName, toolDoc string) (map[string]any, error) {
	return c.chat.PlanToolArgs(ctx, userMessage, toolName, toolDoc)
}

func (c *SplitClient) SynthesizeResponse(ctx context.Context, userMessage, toolName, toolResult string, memories []string) (string, error) {
	return c.chat.SynthesizeResponse(ctx, userMessage, toolName, toolResult, memories)
}
