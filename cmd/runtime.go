package cmd

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/picoagent/internal/agent"
	"github.com/nextlevelbuilder/picoagent/internal/bus"
	"github.com/nextlevelbuilder/picoagent/internal/config"
	"github.com/nextlevelbuilder/picoagent/internal/cron"
	"github.com/nextlevelbuilder/picoagent/internal/decision"
	"github.com/nextlevelbuilder/picoagent/internal/mcp"
	"github.com/nextlevelbuilder/picoagent/internal/memory"
	"github.com/nextlevelbuilder/picoagent/internal/providers"
	"github.com/nextlevelbuilder/picoagent/internal/sessions"
	"github.com/nextlevelbuilder/picoagent/internal/skills"
	"github.com/nextlevelbuilder/picoagent/internal/tools"
)

// runtime bundles the wired components shared by the agent and gateway
// commands.
type runtime struct {
	cfg       *config.Config
	client    providers.Client
	registry  *tools.Registry
	memStore  *memory.Store
	sessions  *sessions.Manager
	library   *skills.Library
	adaptive  *decision.AdaptiveThreshold
	dual      *agent.DualMemoryStore
	cronStore *cron.Store
	mcpMgr    *mcp.Manager
	msgBus    *bus.MessageBus
	loop      *agent.Loop
}

// providerPriority orders auto-detection by typical breadth of access.
var providerPriority = []string{"openrouter", "anthropic", "openai", "deepseek", "groq", "gemini"}

// resolveProviderName turns "auto" into the first provider with a usable
// key. Without any key it falls back to openai, which BuildClient then
// degrades to the local heuristic client.
func resolveProviderName(cfg *config.Config) string {
	name := cfg.Agents.Provider
	if name != "" && name != "auto" {
		return name
	}
	reg := providers.NewRegistry()
	for _, candidate := range providerPriority {
		if cfg.Providers.Get(candidate).APIKey != "" {
			return candidate
		}
		if spec, err := reg.Get(candidate); err == nil && os.Getenv(spec.APIKeyEnv) != "" {
			return candidate
		}
	}
	return "openai"
}

func providerOptions(cfg *config.Config) providers.Options {
	name := resolveProviderName(cfg)
	pc := cfg.Providers.Get(name)
	opts := providers.Options{
		Provider:       name,
		BaseURL:        pc.BaseURL,
		ChatModel:      cfg.Agents.Model,
		EmbeddingModel: cfg.Agents.EmbeddingModel,
		APIKey:         pc.APIKey,
		APIKeyEnv:      cfg.APIKeyEnv,
	}
	if embed := cfg.Agents.EmbeddingProvider; embed != "" && embed != name {
		ec := cfg.Providers.Get(embed)
		opts.EmbeddingProvider = embed
		opts.EmbeddingBaseURL = ec.BaseURL
		opts.EmbeddingAPIKey = ec.APIKey
		opts.EmbeddingKeyEnv = cfg.EmbeddingAPIKeyEnv
	}
	return opts
}

// buildToolRegistry registers the built-in tools gated by config and
// returns the registry together with the cron store backing the cron
// tool.
func buildToolRegistry(cfg *config.Config) (*tools.Registry, *cron.Store) {
	registry := tools.NewRegistry(
		tools.WithGlobalTimeout(time.Duration(cfg.Tools.TimeoutSeconds)*time.Second),
		tools.WithCache(time.Duration(cfg.Tools.CacheTTLSeconds)*time.Second, 256),
	)

	if cfg.Tools.AllowShell {
		shell := tools.NewShellTool(cfg.Tools.ShellDenyPatterns)
		desc := shell.Descriptor()
		desc.TimeoutSeconds = cfg.Tools.ShellTimeoutSeconds
		registry.Register(desc, shell)
	}
	if cfg.Tools.AllowFileTool {
		file := tools.NewFileTool(cfg.Tools.RestrictToWorkspace)
		registry.Register(file.Descriptor(), file)
	}
	if cfg.Tools.AllowWebSearch {
		search := tools.NewSearchTool()
		registry.Register(search.Descriptor(), search)
	}

	cronStore := cron.NewStore(cfg.CronPath())
	if err := cronStore.Load(); err != nil {
		slog.Warn("cron store unreadable, starting empty", "error", err)
	}
	cronTool := cron.NewTool(cronStore)
	registry.Register(cronTool.Descriptor(), cronTool)

	return registry, cronStore
}

// buildRuntime wires the full component graph from config. withMCP
// controls whether configured MCP servers are connected; listing
// commands skip them.
func buildRuntime(ctx context.Context, cfg *config.Config, withMCP bool) (*runtime, error) {
	if err := cfg.EnsureRuntimeDirs(); err != nil {
		return nil, err
	}

	client, err := providers.NewRegistry().BuildClient(providerOptions(cfg))
	if err != nil {
		return nil, err
	}
	slog.Info("provider ready", "provider", resolveProviderName(cfg), "model", cfg.Agents.Model)

	memStore := memory.NewStore(cfg.MemoryPath(),
		memory.WithHalfLife(time.Duration(cfg.Memory.HalfLifeDays*24)*time.Hour),
		memory.WithMaxRecords(cfg.Memory.MaxRecords),
	)
	if n, err := memStore.Load(0); err != nil {
		slog.Warn("memory store unreadable, starting empty", "error", err)
	} else if n > 0 {
		slog.Info("memory loaded", "records", n)
	}

	thresholdPath := cfg.ThresholdPath()
	if !cfg.Adaptive.Enabled {
		// Disabled keeps the gate in-memory only; nothing persists.
		thresholdPath = ""
	}
	adaptive := decision.NewAdaptiveThreshold(thresholdPath, cfg.Adaptive.InitialBits,
		decision.WithBounds(cfg.Adaptive.MinBits, cfg.Adaptive.MaxBits),
		decision.WithLearningRate(cfg.Adaptive.Step),
	)

	sessMgr := sessions.NewManager(cfg.SessionsPath())

	var library *skills.Library
	if cfg.Skills.Enabled {
		library = skills.NewLibrary(cfg.SkillsPath(), filepath.Join(config.ConfigDir(), "skill_usage.jsonl"))
		slog.Info("skills enabled", "dir", cfg.SkillsPath(), "count", len(library.List()))
	}

	var dual *agent.DualMemoryStore
	if cfg.DualMemory.Enabled {
		dir := cfg.DualMemoryDir()
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(cfg.WorkspacePath(), dir)
		}
		dual = agent.NewDualMemoryStore(dir, client, sessMgr, nil)
	}

	var subagent *agent.SubagentCoordinator
	if cfg.Subagents.Enabled {
		subagent = agent.NewSubagentCoordinator(client, cfg.Subagents.MinConfidence, agent.DefaultReviewBudget, nil)
	}

	registry, cronStore := buildToolRegistry(cfg)

	var mcpMgr *mcp.Manager
	if withMCP && len(cfg.MCPServers) > 0 {
		mcpMgr = mcp.NewManager(registry, cfg.MCPServers)
		if err := mcpMgr.Start(ctx); err != nil {
			slog.Warn("some MCP servers failed to start", "error", err)
		}
		slog.Info("mcp servers connected", "tools", mcpMgr.ToolNames())
	}

	loop, err := agent.NewLoop(agent.Deps{
		Client:     client,
		Registry:   registry,
		Memory:     memStore,
		Sessions:   sessMgr,
		Adaptive:   adaptive,
		Skills:     library,
		DualMemory: dual,
		Subagent:   subagent,
	}, agent.Config{
		TopK:                 cfg.Memory.TopK,
		MaxToolChain:         cfg.Tools.MaxToolChain,
		WorkspaceRoot:        cfg.WorkspacePath(),
		ConsolidationEnabled: cfg.Sessions.ConsolidationEnabled && dual != nil,
	})
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:       cfg,
		client:    client,
		registry:  registry,
		memStore:  memStore,
		sessions:  sessMgr,
		library:   library,
		adaptive:  adaptive,
		dual:      dual,
		cronStore: cronStore,
		mcpMgr:    mcpMgr,
		msgBus:    bus.NewMessageBus(),
		loop:      loop,
	}, nil
}

// shutdown flushes state in dependency order: MCP connections first,
// pending consolidations next, persistent stores last.
func (rt *runtime) shutdown() {
	if rt.mcpMgr != nil {
		rt.mcpMgr.Stop()
	}
	if rt.dual != nil {
		rt.dual.Wait()
	}
	if err := rt.memStore.Save(); err != nil {
		slog.Error("memory save failed", "error", err)
	}
	if err := rt.sessions.Save(); err != nil {
		slog.Error("session save failed", "error", err)
	}
	slog.Info("state persisted", "memories", rt.memStore.Len())
}
