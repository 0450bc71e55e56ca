package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List available tools",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfigOrExit()
			registry, _ := buildToolRegistry(cfg)

			for _, desc := range registry.List() {
				cache := "no"
				if desc.Cacheable {
					cache = "yes"
				}
				timeout := desc.TimeoutSeconds
				if timeout == 0 {
					timeout = cfg.Tools.TimeoutSeconds
				}
				fmt.Printf("%s\n  cache=%s timeout=%ds\n  %s\n", desc.Name, cache, timeout, desc.Description)
			}
			if len(cfg.MCPServers) > 0 {
				fmt.Printf("\n%d MCP server(s) configured; their tools register at runtime.\n", len(cfg.MCPServers))
			}
		},
	}
}
