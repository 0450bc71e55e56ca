package mcp

import (
	"context"
	"encoding/json"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nextlevelbuilder/picoagent/internal/tools"
)

// NewServer exposes the registry's tools over MCP so external agents
// can call picoagent's shell, file, search, and skills.
func NewServer(registry *tools.Registry, workspaceRoot string) *server.MCPServer {
	srv := server.NewMCPServer(
		"picoagent",
		"0.2.0",
		server.WithToolCapabilities(false),
	)
	for _, desc := range registry.List() {
		srv.AddTool(exportTool(desc), makeHandler(registry, desc.Name, workspaceRoot))
	}
	return srv
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func ServeStdio(srv *server.MCPServer) error {
	return server.ServeStdio(srv)
}

func exportTool(desc tools.Descriptor) mcpgo.Tool {
	return mcpgo.Tool{
		Name:        desc.Name,
		Description: desc.Description,
		InputSchema: exportSchema(desc.Schema),
	}
}

// exportSchema converts a registry schema to the wire shape. A nil
// schema exports as a permissive object.
func exportSchema(s *tools.Schema) mcpgo.ToolInputSchema {
	out := mcpgo.ToolInputSchema{Type: "object"}
	if s == nil {
		return out
	}
	out.Required = s.Required
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, prop := range s.Properties {
			raw, err := json.Marshal(prop)
			if err != nil {
				continue
			}
			var generic map[string]any
			if err := json.Unmarshal(raw, &generic); err != nil {
				continue
			}
			props[name] = generic
		}
		out.Properties = props
	}
	return out
}

func makeHandler(registry *tools.Registry, name, workspaceRoot string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		result := registry.Run(ctx, name, args, tools.Context{
			WorkspaceRoot: workspaceRoot,
			SessionID:     "mcp",
		})
		if !result.Success {
			return mcpgo.NewToolResultError(result.Output), nil
		}
		return mcpgo.NewToolResultText(result.Output), nil
	}
}
