package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/picoagent/internal/mcp"
)

func mcpServer(name, command, url string) mcp.ServerConfig {
	return mcp.ServerConfig{Name: name, Command: command, URL: url}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PICOAGENT_OPENAI_API_KEY", "PICOAGENT_ANTHROPIC_API_KEY",
		"PICOAGENT_PROVIDER", "PICOAGENT_MODEL",
		"PICOAGENT_TELEGRAM_TOKEN", "PICOAGENT_DISCORD_TOKEN",
		"PICOAGENT_WORKSPACE", "PICOAGENT_PORT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Agents.Provider != "auto" || cfg.Agents.Model == "" {
		t.Errorf("agents = %+v", cfg.Agents)
	}
	if cfg.Adaptive.InitialBits != 1.5 || cfg.Adaptive.MinBits != 0.3 || cfg.Adaptive.MaxBits != 3.0 {
		t.Errorf("adaptive = %+v", cfg.Adaptive)
	}
	if cfg.Memory.HalfLifeDays != 7 || cfg.Memory.MaxRecords != 10000 {
		t.Errorf("memory = %+v", cfg.Memory)
	}
	if !cfg.Tools.RestrictToWorkspace || cfg.Tools.MaxToolChain != 3 {
		t.Errorf("tools = %+v", cfg.Tools)
	}
}

func TestLoad_JSON5WithComments(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
  // model selection
  agents: { provider: "groq", model: "llama-3.3-70b" },
  tools: { allowShell: false, maxToolChain: 2, timeoutSeconds: 10, shellTimeoutSeconds: 5,
           allowFileTool: true, restrictToWorkspace: true, cacheTtlSeconds: 60 },
}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Agents.Provider != "groq" || cfg.Agents.Model != "llama-3.3-70b" {
		t.Errorf("agents = %+v", cfg.Agents)
	}
	if cfg.Tools.AllowShell || cfg.Tools.MaxToolChain != 2 {
		t.Errorf("tools = %+v", cfg.Tools)
	}
	// Untouched sections keep defaults.
	if cfg.Sessions.MemoryWindow != 100 {
		t.Errorf("sessions = %+v", cfg.Sessions)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PICOAGENT_PROVIDER", "deepseek")
	t.Setenv("PICOAGENT_TELEGRAM_TOKEN", "123:abc")
	t.Setenv("PICOAGENT_PORT", "9999")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Agents.Provider != "deepseek" {
		t.Errorf("provider = %q", cfg.Agents.Provider)
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token != "123:abc" {
		t.Errorf("telegram = %+v", cfg.Channels.Telegram)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("port = %d", cfg.Gateway.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty model", func(c *Config) { c.Agents.Model = "" }, "agents.model"},
		{"bad top k", func(c *Config) { c.Memory.TopK = 0 }, "memory.topK"},
		{"keep >= window", func(c *Config) { c.Sessions.KeepRecent = 100 }, "keepRecent"},
		{"inverted bounds", func(c *Config) { c.Adaptive.MaxBits = 0.1 }, "bounds"},
		{"bad confidence", func(c *Config) { c.Subagents.MinConfidence = 1.5 }, "minConfidence"},
		{"mcp stdio without command", func(c *Config) {
			c.MCPServers = append(c.MCPServers, mcpServer("notes", "", ""))
		}, "missing command"},
		{"mcp sse without url", func(c *Config) {
			s := mcpServer("remote", "", "")
			s.Transport = "sse"
			c.MCPServers = append(c.MCPServers, s)
		}, "missing url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestSave_OwnerOnlyPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandHome("~/x"); got != filepath.Join(home, "x") {
		t.Errorf("ExpandHome(~/x) = %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path changed: %q", got)
	}
	if got := ExpandHome("~"); got != home {
		t.Errorf("ExpandHome(~) = %q", got)
	}
}
