package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient speaks the Anthropic messages API. Anthropic has no
// embeddings endpoint, so Embed delegates to the local heuristic client
// (same dimension across chat sessions, which the memory store requires).
type AnthropicClient struct {
	baseURL    string
	apiKey     string
	chatModel  string
	httpClient *http.Client
	embedder   *LocalHeuristicClient
}

func NewAnthropicClient(baseURL, apiKey, chatModel string) *AnthropicClient {
	return &AnthropicClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		chatModel:  chatModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		embedder:   NewLocalHeuristicClient(),
	}
}

func (c *AnthropicClient) Name() string { return "anthropic" }

func (c *AnthropicClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embedder.Embed(ctx, texts)
}

func (c *AnthropicClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 800
	}
	payload := map[string]any{
		"model":      c.chatModel,
		"max_tokens": maxTokens,
	}
	var system string
	var turns []Message
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		turns = append(turns, m)
	}
	if system != "" {
		payload["system"] = system
	}
	payload["messages"] = turns
	if opts.Temperature > 0 {
		payload["temperature"] = opts.Temperature
	}
	if len(opts.Stop) > 0 {
		payload["stop_sequences"] = opts.Stop
	}

	var resp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := c.post(ctx, "/messages", payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return "", decodeErr("anthropic response missing content")
	}
	return strings.TrimSpace(resp.Content[0].Text), nil
}

func (c *AnthropicClient) ScoreTools(ctx context.Context, systemPrompt, userMessage string, toolDocs map[string]string) (map[string]float64, error) {
	return scoreToolsViaChat(ctx, c, systemPrompt, userMessage, toolDocs)
}

func (c *AnthropicClient) PlanToolArgs(ctx context.Context, userMessage, toolName, toolDoc string) (map[string]any, error) {
	return planArgsViaChat(ctx, c, userMessage, toolName, toolDoc)
}

func (c *AnthropicClient) SynthesizeResponse(ctx context.Context, userMessage, toolName, toolResult string, memories []string) (string, error) {
	return synthesizeViaChat(ctx, c, userMessage, toolName, toolResult, memories)
}

func (c *AnthropicClient) post(ctx context.Context, path string, payload, dst any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return transportErr("%v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportErr("%v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return transportErr("read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return transportErr("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return decodeErr("invalid JSON: %v", err)
	}
	return nil
}
