package providers

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// HeuristicDim is the embedding dimension of the local fallback client.
const HeuristicDim = 256

var (
	tokenRe     = regexp.MustCompile(`[a-zA-Z0-9_]+`)
	readPathRe  = regexp.MustCompile(`(?i)\bread\b\s+(\S+)`)
	writePathRe = regexp.MustCompile(`(?is)\bwrite\b\s+(\S+)\s*:\s*(.+)`)
)

// LocalHeuristicClient is the offline fallback: hashed bag-of-words
// embeddings and keyword rules for scoring and argument planning. It is
// fully deterministic, which the router relies on.
type LocalHeuristicClient struct{}

func NewLocalHeuristicClient() *LocalHeuristicClient { return &LocalHeuristicClient{} }

func (c *LocalHeuristicClient) Name() string { return "local-heuristic" }

func (c *LocalHeuristicClient) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, HeuristicDim)
		for _, token := range tokenRe.FindAllString(strings.ToLower(text), -1) {
			h := fnv.New32a()
			h.Write([]byte(token))
			vec[h.Sum32()%HeuristicDim]++
		}
		var norm float64
		for _, x := range vec {
			norm += float64(x) * float64(x)
		}
		if norm > 0 {
			inv := float32(1 / math.Sqrt(norm))
			for j := range vec {
				vec[j] *= inv
			}
		}
		out[i] = vec
	}
	return out, nil
}

func (c *LocalHeuristicClient) Chat(_ context.Context, messages []Message, _ ChatOptions) (string, error) {
	var system, user string
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			user = m.Content
		}
	}
	text := strings.TrimSpace(user)
	if system != "" {
		text = system + "\n\n" + text
	}
	if len(text) > 1200 {
		text = text[:1200]
	}
	return text, nil
}

var toolKeywords = map[string][]string{
	"search": {"search", "find", "web", "lookup", "google", "price", "news", "weather"},
	"file":   {"file", "read", "write", "folder", "path", ".py", ".md", ".txt", ".go"},
	"shell":  {"run", "command", "terminal", "ls", "cat", "grep", "git"},
}

func (c *LocalHeuristicClient) ScoreTools(_ context.Context, _, userMessage string, toolDocs map[string]string) (map[string]float64, error) {
	if len(toolDocs) == 0 {
		return map[string]float64{}, nil
	}
	text := strings.ToLower(userMessage)
	scores := make(map[string]float64, len(toolDocs))
	for name := range toolDocs {
		scores[name] = 0.1
		lname := strings.ToLower(name)
		for kind, keywords := range toolKeywords {
			if !strings.Contains(lname, kind) {
				continue
			}
			for _, kw := range keywords {
				if strings.Contains(text, kw) {
					scores[name] += 1.5
					break
				}
			}
		}
	}
	return scores, nil
}

func (c *LocalHeuristicClient) PlanToolArgs(_ context.Context, userMessage, toolName, _ string) (map[string]any, error) {
	text := strings.TrimSpace(userMessage)
	name := strings.ToLower(toolName)

	switch {
	case strings.Contains(name, "search"):
		return map[string]any{"query": text}, nil
	case strings.Contains(name, "shell"):
		cleaned := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(text, "run "), "command "))
		if cleaned == "" {
			cleaned = text
		}
		return map[string]any{"command": cleaned}, nil
	case strings.Contains(name, "file"):
		if m := readPathRe.FindStringSubmatch(text); m != nil {
			return map[string]any{"action": "read", "path": m[1]}, nil
		}
		if m := writePathRe.FindStringSubmatch(text); m != nil {
			return map[string]any{"action": "write", "path": m[1], "content": m[2]}, nil
		}
		return map[string]any{"action": "read", "path": text}, nil
	}
	return map[string]any{"query": text}, nil
}

func (c *LocalHeuristicClient) SynthesizeResponse(_ context.Context, _, toolName, toolResult string, memories []string) (string, error) {
	if toolName == "" {
		if strings.TrimSpace(toolResult) != "" {
			return strings.TrimSpace(toolResult), nil
		}
		return "No tool was needed for this request.", nil
	}
	lines := []string{fmt.Sprintf("Tool `%s` finished.", toolName)}
	if len(memories) > 0 {
		lines = append(lines, fmt.Sprintf("Using %d relevant memory items.", len(memories)))
	}
	body := strings.TrimSpace(toolResult)
	if body == "" {
		body = "No output."
	}
	lines = append(lines, body)
	return strings.Join(lines, "\n"), nil
}
