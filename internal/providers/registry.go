package providers

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Spec describes one configurable provider endpoint.
type Spec struct {
	Name                  string `json:"name"`
	BaseURL               string `json:"base_url"`
	DefaultChatModel      string `json:"default_chat_model"`
	DefaultEmbeddingModel string `json:"default_embedding_model"`
	APIKeyEnv             string `json:"api_key_env"`
	APIStyle              string `json:"api_style"` // "openai" or "anthropic"
	Notes                 string `json:"notes,omitempty"`
}

func defaultSpecs() []Spec {
	return []Spec{
		{Name: "openrouter", BaseURL: "https://openrouter.ai/api/v1", DefaultChatModel: "openai/gpt-4o-mini", DefaultEmbeddingModel: "text-embedding-3-small", APIKeyEnv: "OPENROUTER_API_KEY", APIStyle: "openai", Notes: "Access multiple model families."},
		{Name: "anthropic", BaseURL: "https://api.anthropic.com/v1", DefaultChatModel: "claude-3-5-sonnet-latest", DefaultEmbeddingModel: "text-embedding-3-small", APIKeyEnv: "ANTHROPIC_API_KEY", APIStyle: "anthropic", Notes: "Direct Anthropic API; embeddings use the local fallback."},
		{Name: "openai", BaseURL: "https://api.openai.com/v1", DefaultChatModel: "gpt-4o-mini", DefaultEmbeddingModel: "text-embedding-3-small", APIKeyEnv: "OPENAI_API_KEY", APIStyle: "openai", Notes: "Direct OpenAI API."},
		{Name: "deepseek", BaseURL: "https://api.deepseek.com/v1", DefaultChatModel: "deepseek-chat", DefaultEmbeddingModel: "text-embedding-3-small", APIKeyEnv: "DEEPSEEK_API_KEY", APIStyle: "openai", Notes: "DeepSeek-compatible endpoint."},
		{Name: "groq", BaseURL: "https://api.groq.com/openai/v1", DefaultChatModel: "llama-3.3-70b-versatile", DefaultEmbeddingModel: "text-embedding-3-small", APIKeyEnv: "GROQ_API_KEY", APIStyle: "openai", Notes: "Groq OpenAI-compatible endpoint."},
		{Name: "gemini", BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai", DefaultChatModel: "gemini-1.5-flash", DefaultEmbeddingModel: "text-embedding-3-small", APIKeyEnv: "GEMINI_API_KEY", APIStyle: "openai", Notes: "Gemini OpenAI-compatible surface."},
		{Name: "vllm", BaseURL: "http://localhost:8000/v1", DefaultChatModel: "local-model", DefaultEmbeddingModel: "local-embedding-model", APIKeyEnv: "VLLM_API_KEY", APIStyle: "openai", Notes: "Any local OpenAI-compatible server."},
		{Name: "custom", BaseURL: "http://localhost:8000/v1", DefaultChatModel: "custom-chat-model", DefaultEmbeddingModel: "custom-embedding-model", APIKeyEnv: "CUSTOM_API_KEY", APIStyle: "openai", Notes: "Custom OpenAI-compatible endpoint."},
	}
}

// Registry holds provider specs and builds clients from configuration.
type Registry struct {
	specs map[string]Spec
}

func NewRegistry() *Registry {
	r := &Registry{specs: make(map[string]Spec)}
	for _, spec := range defaultSpecs() {
		r.specs[spec.Name] = spec
	}
	return r
}

// Register adds or replaces a spec.
func (r *Registry) Register(spec Spec) { r.specs[spec.Name] = spec }

// Get looks up a spec by name.
func (r *Registry) Get(name string) (Spec, error) {
	spec, ok := r.specs[name]
	if !ok {
		known := make([]string, 0, len(r.specs))
		for n := range r.specs {
			known = append(known, n)
		}
		sort.Strings(known)
		return Spec{}, fmt.Errorf("unknown provider: %s (known: %s)", name, strings.Join(known, ", "))
	}
	return spec, nil
}

// List returns all specs sorted by name.
func (r *Registry) List() []Spec {
	out := make([]Spec, 0, len(r.specs))
	for _, spec := range r.specs {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Options carries the provider-relevant slice of config.
type Options struct {
	Provider          string
	BaseURL           string
	ChatModel         string
	EmbeddingModel    string
	APIKey            string // literal key; wins over APIKeyEnv
	APIKeyEnv         string // env var to read when APIKey is empty
	EmbeddingProvider string // empty = same as Provider
	EmbeddingBaseURL  string
	EmbeddingAPIKey   string
	EmbeddingKeyEnv   string
}

// BuildClient assembles the provider client for the given options:
// possibly a split client when chat and embeddings use different
// endpoints, always wrapped with the local-heuristic fallback. With no
// usable API key the heuristic client is used directly.
func (r *Registry) BuildClient(opts Options) (Client, error) {
	chatSpec, err := r.Get(opts.Provider)
	if err != nil {
		return nil, err
	}
	chatBase := firstNonEmpty(opts.BaseURL, chatSpec.BaseURL)
	chatModel := firstNonEmpty(opts.ChatModel, chatSpec.DefaultChatModel)
	chatKey := resolveKey(opts.APIKey, opts.APIKeyEnv, chatSpec.APIKeyEnv)

	embedName := firstNonEmpty(strings.TrimSpace(opts.EmbeddingProvider), opts.Provider)
	embedSpec, err := r.Get(embedName)
	if err != nil {
		return nil, err
	}
	embedBase := opts.EmbeddingBaseURL
	if embedBase == "" {
		if embedName == opts.Provider {
			embedBase = chatBase
		} else {
			embedBase = embedSpec.BaseURL
		}
	}
	embedModel := firstNonEmpty(opts.EmbeddingModel, embedSpec.DefaultEmbeddingModel)
	embedKey := resolveKey(opts.EmbeddingAPIKey, opts.EmbeddingKeyEnv, embedSpec.APIKeyEnv)
	if embedKey == "" && embedName == opts.Provider {
		embedKey = chatKey
	}

	chatClient := buildSingle(chatSpec, chatBase, chatModel, embedModel, chatKey)
	if embedName == opts.Provider && embedBase == chatBase && embedKey == chatKey {
		return WithFallback(chatClient), nil
	}
	embedClient := buildSingle(embedSpec, embedBase, embedSpec.DefaultChatModel, embedModel, embedKey)
	return WithFallback(NewSplitClient(chatClient, embedClient)), nil
}

func buildSingle(spec Spec, baseURL, chatModel, embeddingModel, apiKey string) Client {
	if apiKey == "" {
		return NewLocalHeuristicClient()
	}
	if spec.APIStyle == "anthropic" {
		return NewAnthropicClient(baseURL, apiKey, chatModel)
	}
	return NewOpenAIClient(baseURL, apiKey, chatModel, embeddingModel)
}

func resolveKey(literal string, envNames ...string) string {
	if literal != "" {
		return literal
	}
	for _, env := range envNames {
		if env == "" {
			continue
		}
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
