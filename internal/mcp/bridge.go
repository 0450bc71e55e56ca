package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/picoagent/internal/tools"
)

// toolCaller is the slice of the MCP client the bridge needs.
type toolCaller interface {
	CallTool(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error)
}

// bridgeTool forwards registry calls to a remote MCP tool.
type bridgeTool struct {
	serverName string
	remoteName string
	client     toolCaller
}

// bridgeName builds the registry name for a remote tool. The mcp_ prefix
// keeps remote tools distinguishable from builtins.
func bridgeName(serverName, toolName string) string {
	return fmt.Sprintf("mcp_%s_%s", serverName, toolName)
}

// bridgeDescriptor converts a remote tool definition into a registry
// descriptor. Remote schemas are often partial, so unknown keys are
// allowed and unconvertible schemas degrade to a permissive object.
func bridgeDescriptor(serverName string, remote mcpgo.Tool, timeoutSec int) tools.Descriptor {
	desc := remote.Description
	if desc == "" {
		desc = remote.Name
	}
	return tools.Descriptor{
		Name:        bridgeName(serverName, remote.Name),
		Description: desc,
		Schema:      convertSchema(remote.InputSchema),
		// MCP tools are stateful; never cache.
		Cacheable:      false,
		TimeoutSeconds: timeoutSec,
	}
}

func convertSchema(in mcpgo.ToolInputSchema) *tools.Schema {
	permissive := &tools.Schema{Type: "object", AdditionalProperties: true}
	raw, err := json.Marshal(in)
	if err != nil {
		return permissive
	}
	var schema tools.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return permissive
	}
	if schema.Type != "object" {
		return permissive
	}
	schema.AdditionalProperties = true
	if schema.Check() != nil {
		return permissive
	}
	return &schema
}

func (b *bridgeTool) Run(ctx context.Context, args map[string]any, _ tools.Context) *tools.Result {
	req := mcpgo.CallToolRequest{}
	req.Params.Name = b.remoteName
	req.Params.Arguments = args

	res, err := b.client.CallTool(ctx, req)
	if err != nil {
		return tools.Fail(fmt.Sprintf("mcp call failed: %v", err))
	}

	output := flattenContent(res.Content)
	if res.IsError {
		return tools.Fail(output)
	}
	return tools.Ok(output)
}

func flattenContent(content []mcpgo.Content) string {
	var parts []string
	for _, item := range content {
		if text, ok := mcpgo.AsTextContent(item); ok {
			if text.Text != "" {
				parts = append(parts, text.Text)
			}
			continue
		}
		parts = append(parts, fmt.Sprintf("%v", item))
	}
	out := strings.TrimSpace(strings.Join(parts, "\n"))
	if out == "" {
		return "(no output)"
	}
	return out
}
