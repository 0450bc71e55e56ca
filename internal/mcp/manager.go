// Package mcp connects picoagent to external MCP servers, exposing
// their tools through the registry, and can also serve picoagent's own
// tools to other MCP clients over stdio.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/picoagent/internal/tools"
)

const (
	healthCheckInterval  = 30 * time.Second
	initialBackoff       = 2 * time.Second
	maxBackoff           = 60 * time.Second
	maxReconnectAttempts = 10

	defaultTimeoutSec = 60
)

// ServerConfig describes one external MCP server. Transport is "stdio",
// "sse", or "streamable-http"; stdio servers use Command/Args/Env, the
// HTTP transports use URL/Headers.
type ServerConfig struct {
	Name           string            `json:"name"`
	Transport      string            `json:"transport,omitempty"` // default stdio
	Command        string            `json:"command,omitempty"`
	Args           []string          `json:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	URL            string            `json:"url,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	Disabled       bool              `json:"disabled,omitempty"`
}

// ServerStatus reports the connection status of one server.
type ServerStatus struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Connected bool   `json:"connected"`
	ToolCount int    `json:"tool_count"`
	Error     string `json:"error,omitempty"`
}

type serverState struct {
	name      string
	transport string
	client    *mcpclient.Client
	connected atomic.Bool
	toolNames []string
	cancel    context.CancelFunc

	mu             sync.Mutex
	reconnAttempts int
	lastErr        string
}

// Manager owns external MCP connections and their registered tools.
type Manager struct {
	mu       sync.RWMutex
	servers  map[string]*serverState
	registry *tools.Registry
	configs  []ServerConfig
}

func NewManager(registry *tools.Registry, configs []ServerConfig) *Manager {
	return &Manager{
		servers:  make(map[string]*serverState),
		registry: registry,
		configs:  configs,
	}
}

// Start connects every configured server. Failures are logged and
// collected, not fatal: one broken server must not take down the agent.
func (m *Manager) Start(ctx context.Context) error {
	var errs []string
	for _, cfg := range m.configs {
		if cfg.Disabled {
			slog.Info("mcp server disabled", "server", cfg.Name)
			continue
		}
		if err := m.connectServer(ctx, cfg); err != nil {
			slog.Warn("mcp server connect failed", "server", cfg.Name, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", cfg.Name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("some MCP servers failed to connect: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Stop closes every connection and unregisters the bridged tools.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, ss := range m.servers {
		if ss.cancel != nil {
			ss.cancel()
		}
		if ss.client != nil {
			if err := ss.client.Close(); err != nil {
				slog.Debug("mcp server close error", "server", name, "error", err)
			}
		}
		for _, toolName := range ss.toolNames {
			m.registry.Unregister(toolName)
		}
	}
	m.servers = make(map[string]*serverState)
}

// ToolNames returns all bridged tool names across servers.
func (m *Manager) ToolNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for _, ss := range m.servers {
		names = append(names, ss.toolNames...)
	}
	return names
}

// ServerStatus reports the state of every connected server.
func (m *Manager) ServerStatus() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	statuses := make([]ServerStatus, 0, len(m.servers))
	for _, ss := range m.servers {
		ss.mu.Lock()
		lastErr := ss.lastErr
		ss.mu.Unlock()
		statuses = append(statuses, ServerStatus{
			Name:      ss.name,
			Transport: ss.transport,
			Connected: ss.connected.Load(),
			ToolCount: len(ss.toolNames),
			Error:     lastErr,
		})
	}
	return statuses
}

func (m *Manager) connectServer(ctx context.Context, cfg ServerConfig) error {
	transportType := cfg.Transport
	if transportType == "" {
		transportType = "stdio"
	}
	client, err := createClient(transportType, cfg)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	// stdio starts itself; the HTTP transports need an explicit Start.
	if transportType != "stdio" {
		if err := client.Start(ctx); err != nil {
			_ = client.Close()
			return fmt.Errorf("start transport: %w", err)
		}
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "picoagent", Version: "0.2.0"}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		_ = client.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	listed, err := client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("list tools: %w", err)
	}

	timeoutSec := cfg.TimeoutSeconds
	if timeoutSec <= 0 {
		timeoutSec = defaultTimeoutSec
	}

	ss := &serverState{name: cfg.Name, transport: transportType, client: client}
	ss.connected.Store(true)

	var registered []string
	for _, remote := range listed.Tools {
		desc := bridgeDescriptor(cfg.Name, remote, timeoutSec)
		runner := &bridgeTool{serverName: cfg.Name, remoteName: remote.Name, client: client}
		if err := m.registry.Register(desc, runner); err != nil {
			slog.Warn("mcp tool skipped", "server", cfg.Name, "tool", desc.Name, "error", err)
			continue
		}
		registered = append(registered, desc.Name)
	}
	ss.toolNames = registered

	hctx, hcancel := context.WithCancel(context.Background())
	ss.cancel = hcancel
	go m.healthLoop(hctx, ss)

	m.mu.Lock()
	m.servers[cfg.Name] = ss
	m.mu.Unlock()

	slog.Info("mcp server connected", "server", cfg.Name, "transport", transportType, "tools", len(registered))
	return nil
}

func createClient(transportType string, cfg ServerConfig) (*mcpclient.Client, error) {
	switch transportType {
	case "stdio":
		return mcpclient.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)
	case "sse":
		var opts []transport.ClientOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, mcpclient.WithHeaders(cfg.Headers))
		}
		return mcpclient.NewSSEMCPClient(cfg.URL, opts...)
	case "streamable-http":
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		return mcpclient.NewStreamableHttpClient(cfg.URL, opts...)
	default:
		return nil, fmt.Errorf("unsupported transport: %q", transportType)
	}
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// healthLoop pings the server periodically, flipping connected state
// and reconnecting with backoff on failure.
func (m *Manager) healthLoop(ctx context.Context, ss *serverState) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := ss.client.Ping(ctx)
			if err == nil {
				ss.markHealthy()
				continue
			}
			// Servers without "ping" are still alive.
			if strings.Contains(strings.ToLower(err.Error()), "method not found") {
				ss.markHealthy()
				continue
			}
			ss.connected.Store(false)
			ss.mu.Lock()
			ss.lastErr = err.Error()
			ss.mu.Unlock()
			slog.Warn("mcp health check failed", "server", ss.name, "error", err)
			m.tryReconnect(ctx, ss)
		}
	}
}

func (ss *serverState) markHealthy() {
	ss.connected.Store(true)
	ss.mu.Lock()
	ss.reconnAttempts = 0
	ss.lastErr = ""
	ss.mu.Unlock()
}

func (m *Manager) tryReconnect(ctx context.Context, ss *serverState) {
	ss.mu.Lock()
	if ss.reconnAttempts >= maxReconnectAttempts {
		ss.lastErr = fmt.Sprintf("max reconnect attempts (%d) reached", maxReconnectAttempts)
		ss.mu.Unlock()
		slog.Error("mcp reconnect attempts exhausted", "server", ss.name)
		return
	}
	ss.reconnAttempts++
	attempt := ss.reconnAttempts
	ss.mu.Unlock()

	backoff := initialBackoff * time.Duration(1<<(attempt-1))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	slog.Info("mcp reconnecting", "server", ss.name, "attempt", attempt, "backoff", backoff)

	select {
	case <-ctx.Done():
		return
	case <-time.After(backoff):
	}

	// The transport may have recovered on its own.
	if err := ss.client.Ping(ctx); err == nil {
		ss.markHealthy()
		slog.Info("mcp server reconnected", "server", ss.name)
	}
}
