package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	dir := ConfigDir()
	cwd, _ := os.Getwd()
	return &Config{
		Agents: AgentsConfig{
			Provider:       "auto",
			Model:          "openai/gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
		},
		APIKeyEnv: "PICOAGENT_API_KEY",
		Memory: MemoryConfig{
			Path:         filepath.Join(dir, "memory.bin"),
			TopK:         5,
			HalfLifeDays: 7,
			MaxRecords:   10000,
		},
		Adaptive: AdaptiveConfig{
			Enabled:     true,
			Path:        filepath.Join(dir, "threshold.json"),
			InitialBits: 1.5,
			MinBits:     0.3,
			MaxBits:     3.0,
			Step:        0.1,
		},
		Sessions: SessionsConfig{
			Path:                 filepath.Join(dir, "sessions.json"),
			MemoryWindow:         100,
			KeepRecent:           25,
			ConsolidationEnabled: true,
		},
		Skills: SkillsConfig{
			Enabled:   true,
			Path:      "skills",
			MaxActive: 3,
		},
		Subagents: SubagentsConfig{
			Enabled:       true,
			MinConfidence: 0.7,
		},
		Tools: ToolsConfig{
			AllowShell:          true,
			AllowWebSearch:      true,
			AllowFileTool:       true,
			ShellTimeoutSeconds: 20,
			TimeoutSeconds:      30,
			CacheTTLSeconds:     60,
			MaxToolChain:        3,
			WorkspaceRoot:       cwd,
			RestrictToWorkspace: true,
		},
		DualMemory: DualMemoryConfig{
			Enabled: true,
			Dir:     ".picoagent/memory",
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 8790,
		},
		Heartbeat: HeartbeatConfig{
			File:            filepath.Join(dir, "HEARTBEAT.md"),
			IntervalSeconds: 300,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "picoagent",
		},
		CronFile: filepath.Join(dir, "cron.json"),
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(ExpandHome(path))
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

// Save writes the config with owner-only permissions since it may hold
// API keys.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	path = ExpandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("PICOAGENT_OPENROUTER_API_KEY", &c.Providers.OpenRouter.APIKey)
	envStr("PICOAGENT_ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("PICOAGENT_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("PICOAGENT_DEEPSEEK_API_KEY", &c.Providers.DeepSeek.APIKey)
	envStr("PICOAGENT_GROQ_API_KEY", &c.Providers.Groq.APIKey)
	envStr("PICOAGENT_GEMINI_API_KEY", &c.Providers.Gemini.APIKey)

	envStr("PICOAGENT_PROVIDER", &c.Agents.Provider)
	envStr("PICOAGENT_MODEL", &c.Agents.Model)
	envStr("PICOAGENT_EMBEDDING_MODEL", &c.Agents.EmbeddingModel)

	envStr("PICOAGENT_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("PICOAGENT_DISCORD_TOKEN", &c.Channels.Discord.Token)

	// Credentials via env enable the channel without touching the file.
	if os.Getenv("PICOAGENT_TELEGRAM_TOKEN") != "" {
		c.Channels.Telegram.Enabled = true
	}
	if os.Getenv("PICOAGENT_DISCORD_TOKEN") != "" {
		c.Channels.Discord.Enabled = true
	}

	envStr("PICOAGENT_WORKSPACE", &c.Tools.WorkspaceRoot)
	envStr("PICOAGENT_SKILLS_PATH", &c.Skills.Path)

	envStr("PICOAGENT_HOST", &c.Gateway.Host)
	if v := os.Getenv("PICOAGENT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}

	envStr("PICOAGENT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	if v := os.Getenv("PICOAGENT_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
}

// Validate rejects configurations the runtime cannot honor.
func (c *Config) Validate() error {
	if c.Agents.Model == "" {
		return fmt.Errorf("agents.model is required")
	}
	if c.Memory.TopK <= 0 {
		return fmt.Errorf("memory.topK must be > 0")
	}
	if c.Memory.HalfLifeDays <= 0 {
		return fmt.Errorf("memory.halfLifeDays must be > 0")
	}
	if c.Sessions.MemoryWindow <= 0 {
		return fmt.Errorf("sessions.memoryWindow must be > 0")
	}
	if c.Sessions.KeepRecent <= 0 || c.Sessions.KeepRecent >= c.Sessions.MemoryWindow {
		return fmt.Errorf("sessions.keepRecent must be in (0, memoryWindow)")
	}
	if c.Adaptive.MinBits < 0 || c.Adaptive.MaxBits <= c.Adaptive.MinBits {
		return fmt.Errorf("adaptive threshold bounds are inverted")
	}
	if c.Adaptive.Step <= 0 {
		return fmt.Errorf("adaptive.step must be > 0")
	}
	if c.Subagents.MinConfidence < 0 || c.Subagents.MinConfidence > 1 {
		return fmt.Errorf("subagents.minConfidence must be in [0, 1]")
	}
	if c.Tools.MaxToolChain <= 0 {
		return fmt.Errorf("tools.maxToolChain must be > 0")
	}
	if c.Tools.TimeoutSeconds <= 0 || c.Tools.ShellTimeoutSeconds <= 0 {
		return fmt.Errorf("tool timeouts must be > 0")
	}
	if c.Skills.MaxActive <= 0 {
		return fmt.Errorf("skills.maxActive must be > 0")
	}
	for _, server := range c.MCPServers {
		if server.Name == "" {
			return fmt.Errorf("mcp server name is required")
		}
		transport := server.Transport
		if transport == "" || transport == "stdio" {
			if server.Command == "" {
				return fmt.Errorf("mcp server %q missing command", server.Name)
			}
		} else if server.URL == "" {
			return fmt.Errorf("mcp server %q missing url", server.Name)
		}
	}
	return nil
}

// EnsureRuntimeDirs creates the directories the runtime writes into.
func (c *Config) EnsureRuntimeDirs() error {
	for _, p := range []string{
		c.MemoryPath(), c.SessionsPath(), c.ThresholdPath(), c.CronPath(), c.HeartbeatPath(),
	} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return err
		}
	}
	return nil
}
