package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/picoagent/internal/mcp"
)

func mcpCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mcp",
		Short: "Inspect configured MCP servers or serve picoagent's tools over MCP",
	}
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured MCP servers",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfigOrExit()
			if len(cfg.MCPServers) == 0 {
				fmt.Println("No MCP servers configured.")
				return
			}
			for _, server := range cfg.MCPServers {
				target := server.Command
				if server.URL != "" {
					target = server.URL
				}
				state := "enabled"
				if server.Disabled {
					state = "disabled"
				}
				transport := server.Transport
				if transport == "" {
					transport = "stdio"
				}
				fmt.Printf("%-20s %-8s %-8s %s\n", server.Name, transport, state, target)
			}
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Expose the built-in tools as an MCP stdio server",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfigOrExit()
			registry, _ := buildToolRegistry(cfg)
			if err := mcp.ServeStdio(mcp.NewServer(registry, cfg.WorkspacePath())); err != nil {
				fmt.Fprintf(os.Stderr, "mcp serve: %v\n", err)
				os.Exit(exitUser)
			}
		},
	})
	return root
}
