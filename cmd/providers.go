package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/picoagent/internal/providers"
)

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List supported providers and their credential status",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfigOrExit()
			active := resolveProviderName(cfg)

			fmt.Printf("%-12s %-30s %-10s %s\n", "NAME", "DEFAULT MODEL", "KEY", "NOTES")
			for _, spec := range providers.NewRegistry().List() {
				status := "-"
				if cfg.Providers.Get(spec.Name).APIKey != "" || os.Getenv(spec.APIKeyEnv) != "" {
					status = "set"
				}
				name := spec.Name
				if name == active {
					name += " *"
				}
				fmt.Printf("%-12s %-30s %-10s %s\n", name, spec.DefaultChatModel, status, spec.Notes)
			}
			fmt.Println("\n* = active provider")
		},
	}
}
