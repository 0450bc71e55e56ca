// Package config loads and persists the picoagent runtime configuration
// from ~/.picoagent/config.json.
package config

import (
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/picoagent/internal/mcp"
)

// ConfigDir returns the per-user state directory.
func ConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".picoagent")
}

// DefaultPath returns the default config file location.
func DefaultPath() string { return filepath.Join(ConfigDir(), "config.json") }

// ProviderConfig holds per-provider credentials.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"apiBase,omitempty"`
}

// ProvidersConfig holds credentials for every supported provider.
type ProvidersConfig struct {
	OpenRouter ProviderConfig `json:"openrouter,omitempty"`
	Anthropic  ProviderConfig `json:"anthropic,omitempty"`
	OpenAI     ProviderConfig `json:"openai,omitempty"`
	DeepSeek   ProviderConfig `json:"deepseek,omitempty"`
	Groq       ProviderConfig `json:"groq,omitempty"`
	Gemini     ProviderConfig `json:"gemini,omitempty"`
	VLLM       ProviderConfig `json:"vllm,omitempty"`
	Custom     ProviderConfig `json:"custom,omitempty"`
}

// Get returns the block for a provider name.
func (p *ProvidersConfig) Get(name string) ProviderConfig {
	switch name {
	case "openrouter":
		return p.OpenRouter
	case "anthropic":
		return p.Anthropic
	case "openai":
		return p.OpenAI
	case "deepseek":
		return p.DeepSeek
	case "groq":
		return p.Groq
	case "gemini":
		return p.Gemini
	case "vllm":
		return p.VLLM
	case "custom":
		return p.Custom
	}
	return ProviderConfig{}
}

// AgentsConfig selects the chat and embedding models.
type AgentsConfig struct {
	Provider          string `json:"provider"`
	Model             string `json:"model"`
	EmbeddingModel    string `json:"embeddingModel,omitempty"`
	EmbeddingProvider string `json:"embeddingProvider,omitempty"`
}

// TelegramConfig is the telegram channel block.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token,omitempty"`
	AllowFrom []string `json:"allowFrom,omitempty"`
	Proxy     string   `json:"proxy,omitempty"`
}

// DiscordConfig is the discord channel block.
type DiscordConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token,omitempty"`
	AllowFrom []string `json:"allowFrom,omitempty"`
}

// ChannelsConfig groups the channel adapters. CLI is implicit.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram,omitempty"`
	Discord  DiscordConfig  `json:"discord,omitempty"`
}

// EnabledNames lists the enabled channels.
func (c *ChannelsConfig) EnabledNames() []string {
	var names []string
	if c.Telegram.Enabled {
		names = append(names, "telegram")
	}
	if c.Discord.Enabled {
		names = append(names, "discord")
	}
	return names
}

// MemoryConfig tunes the vector memory.
type MemoryConfig struct {
	Path         string  `json:"path,omitempty"`
	TopK         int     `json:"topK"`
	HalfLifeDays float64 `json:"halfLifeDays"`
	MaxRecords   int     `json:"maxRecords"`
}

// AdaptiveConfig tunes the adaptive entropy threshold.
type AdaptiveConfig struct {
	Enabled     bool    `json:"enabled"`
	Path        string  `json:"path,omitempty"`
	InitialBits float64 `json:"initialBits"`
	MinBits     float64 `json:"minBits"`
	MaxBits     float64 `json:"maxBits"`
	Step        float64 `json:"step"`
}

// SessionsConfig tunes session storage and consolidation.
type SessionsConfig struct {
	Path                 string `json:"path,omitempty"`
	MemoryWindow         int    `json:"memoryWindow"`
	KeepRecent           int    `json:"keepRecent"`
	ConsolidationEnabled bool   `json:"consolidationEnabled"`
}

// SkillsConfig tunes the skill library.
type SkillsConfig struct {
	Enabled   bool   `json:"enabled"`
	Path      string `json:"path,omitempty"`
	MaxActive int    `json:"maxActive"`
}

// SubagentsConfig tunes subagent dispatch.
type SubagentsConfig struct {
	Enabled       bool    `json:"enabled"`
	MinConfidence float64 `json:"minConfidence"`
}

// ToolsConfig gates and tunes tool execution.
type ToolsConfig struct {
	AllowShell          bool     `json:"allowShell"`
	AllowWebSearch      bool     `json:"allowWebSearch"`
	AllowFileTool       bool     `json:"allowFileTool"`
	ShellTimeoutSeconds int      `json:"shellTimeoutSeconds"`
	TimeoutSeconds      int      `json:"timeoutSeconds"`
	CacheTTLSeconds     int      `json:"cacheTtlSeconds"`
	MaxToolChain        int      `json:"maxToolChain"`
	WorkspaceRoot       string   `json:"workspaceRoot,omitempty"`
	RestrictToWorkspace bool     `json:"restrictToWorkspace"`
	ShellDenyPatterns   []string `json:"shellDenyPatterns,omitempty"`
}

// DualMemoryConfig tunes the markdown consolidation store.
type DualMemoryConfig struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir,omitempty"`
}

// GatewayConfig tunes the HTTP/WebSocket gateway.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// HeartbeatConfig tunes the periodic self-prompt.
type HeartbeatConfig struct {
	Enabled         bool   `json:"enabled"`
	File            string `json:"file,omitempty"`
	IntervalSeconds int    `json:"intervalSeconds"`
}

// TelemetryConfig enables OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
	ServiceName string `json:"serviceName,omitempty"`
}

// Config is the root runtime configuration.
type Config struct {
	Providers ProvidersConfig `json:"providers,omitempty"`
	Agents    AgentsConfig    `json:"agents"`
	Channels  ChannelsConfig  `json:"channels,omitempty"`

	APIKeyEnv          string `json:"apiKeyEnv,omitempty"`
	EmbeddingAPIKeyEnv string `json:"embeddingApiKeyEnv,omitempty"`

	Memory     MemoryConfig     `json:"memory"`
	Adaptive   AdaptiveConfig   `json:"adaptive"`
	Sessions   SessionsConfig   `json:"sessions"`
	Skills     SkillsConfig     `json:"skills"`
	Subagents  SubagentsConfig  `json:"subagents"`
	Tools      ToolsConfig      `json:"tools"`
	DualMemory DualMemoryConfig `json:"dualMemory"`
	Gateway    GatewayConfig    `json:"gateway"`
	Heartbeat  HeartbeatConfig  `json:"heartbeat"`
	Telemetry  TelemetryConfig  `json:"telemetry"`

	CronFile   string             `json:"cronFile,omitempty"`
	MCPServers []mcp.ServerConfig `json:"mcpServers,omitempty"`
}

// MemoryPath returns the expanded vector memory file path.
func (c *Config) MemoryPath() string { return ExpandHome(c.Memory.Path) }

// SessionsPath returns the expanded session store path.
func (c *Config) SessionsPath() string { return ExpandHome(c.Sessions.Path) }

// ThresholdPath returns the expanded adaptive threshold path.
func (c *Config) ThresholdPath() string { return ExpandHome(c.Adaptive.Path) }

// CronPath returns the expanded cron job file path.
func (c *Config) CronPath() string { return ExpandHome(c.CronFile) }

// HeartbeatPath returns the expanded heartbeat file path.
func (c *Config) HeartbeatPath() string { return ExpandHome(c.Heartbeat.File) }

// WorkspacePath returns the expanded workspace root.
func (c *Config) WorkspacePath() string { return ExpandHome(c.Tools.WorkspaceRoot) }

// SkillsPath returns the expanded skills directory.
func (c *Config) SkillsPath() string { return ExpandHome(c.Skills.Path) }

// DualMemoryDir returns the expanded consolidation directory.
func (c *Config) DualMemoryDir() string { return ExpandHome(c.DualMemory.Dir) }

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
