package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

const userAgent = "picoagent/0.2.0"

// OpenAIClient speaks the OpenAI-compatible surface shared by OpenAI,
// OpenRouter, DeepSeek, Groq, Gemini and local vLLM servers.
type OpenAIClient struct {
	baseURL        string
	apiKey         string
	chatModel      string
	embeddingModel string
	httpClient     *http.Client
}

// NewOpenAIClient builds a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(baseURL, apiKey, chatModel, embeddingModel string) *OpenAIClient {
	return &OpenAIClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *OpenAIClient) Name() string { return "openai-compatible" }

func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	payload := map[string]any{"model": c.embeddingModel, "input": texts}
	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/embeddings", payload, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, decodeErr("embedding response has %d rows for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		if len(d.Embedding) == 0 {
			return nil, decodeErr("embedding response missing data[%d].embedding", i)
		}
		out[i] = d.Embedding
	}
	return out, nil
}

func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	payload := map[string]any{
		"model":       c.chatModel,
		"messages":    messages,
		"temperature": opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		payload["max_tokens"] = opts.MaxTokens
	}
	if len(opts.Stop) > 0 {
		payload["stop"] = opts.Stop
	}
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.post(ctx, "/chat/completions", payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", decodeErr("chat response missing choices[0].message.content")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) ScoreTools(ctx context.Context, systemPrompt, userMessage string, toolDocs map[string]string) (map[string]float64, error) {
	return scoreToolsViaChat(ctx, c, systemPrompt, userMessage, toolDocs)
}

func (c *OpenAIClient) PlanToolArgs(ctx context.Context, userMessage, toolName, toolDoc string) (map[string]any, error) {
	return planArgsViaChat(ctx, c, userMessage, toolName, toolDoc)
}

func (c *OpenAIClient) SynthesizeResponse(ctx context.Context, userMessage, toolName, toolResult string, memories []string) (string, error) {
	return synthesizeViaChat(ctx, c, userMessage, toolName, toolResult, memories)
}

func (c *OpenAIClient) post(ctx context.Context, path string, payload, dst any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return transportErr("%v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
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

// --- shared prompt plumbing for chat-backed routing operations ---

func scoreToolsViaChat(ctx context.Context, c Client, systemPrompt, userMessage string, toolDocs map[string]string) (map[string]float64, error) {
	if len(toolDocs) == 0 {
		return map[string]float64{}, nil
	}
	names := make([]string, 0, len(toolDocs))
	for name := range toolDocs {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "- %s: %s\n", name, toolDocs[name])
	}

	system := "You are a routing model. Return strict JSON only."
	if systemPrompt != "" {
		system = systemPrompt + "\n\n" + system
	}
	prompt := fmt.Sprintf(
		"Score each tool from 0 to 1 for how useful it is for the user request. "+
			"Return JSON object only, keys must be tool names, values numbers.\n\n"+
			"User request:\n%s\n\nTools:\n%s", userMessage, b.String())

	raw, err := c.Chat(ctx, []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	}, ChatOptions{Temperature: 0.1})
	if err != nil {
		return nil, err
	}

	parsed := parseJSONObject(raw)
	scores := make(map[string]float64, len(toolDocs))
	nonZero := false
	for _, name := range names {
		if f, ok := asFloat(parsed[name]); ok {
			scores[name] = f
			if f != 0 {
				nonZero = true
			}
		} else {
			scores[name] = 0
		}
	}
	if !nonZero {
		return nil, decodeErr("tool scores all zero or unparseable")
	}
	return scores, nil
}

func planArgsViaChat(ctx context.Context, c Client, userMessage, toolName, toolDoc string) (map[string]any, error) {
	prompt := fmt.Sprintf(
		"Produce JSON arguments for this tool call. Return JSON object only.\n\n"+
			"Tool: %s\nDescription: %s\nUser request: %s", toolName, toolDoc, userMessage)
	raw, err := c.Chat(ctx, []Message{
		{Role: "system", Content: "Return strict JSON object only."},
		{Role: "user", Content: prompt},
	}, ChatOptions{Temperature: 0.1})
	if err != nil {
		return nil, err
	}
	parsed := parseJSONObject(raw)
	if parsed == nil {
		return nil, decodeErr("tool args are not a JSON object")
	}
	return parsed, nil
}

func synthesizeViaChat(ctx context.Context, c Client, userMessage, toolName, toolResult string, memories []string) (string, error) {
	memoryBlock := "(none)"
	if len(memories) > 0 {
		memoryBlock = "- " + strings.Join(memories, "\n- ")
	}
	toolBlock := "(no tool was used)"
	if toolName != "" {
		toolBlock = fmt.Sprintf("Selected tool: %s\nTool result:\n%s", toolName, toolResult)
	}
	prompt := fmt.Sprintf(
		"User message:\n%s\n\n%s\n\nRelevant memories:\n%s\n\n"+
			"Write a concise helpful answer for the user.", userMessage, toolBlock, memoryBlock)
	return c.Chat(ctx, []Message{
		{Role: "system", Content: "You are a helpful assistant."},
		{Role: "user", Content: prompt},
	}, ChatOptions{Temperature: 0.3, MaxTokens: 800})
}
