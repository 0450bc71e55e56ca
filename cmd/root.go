// Package cmd implements the picoagent CLI.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/picoagent/internal/config"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/picoagent/cmd.Version=v0.2.0"
var Version = "dev"

// Exit codes per the CLI contract.
const (
	exitOK       = 0
	exitUser     = 1
	exitConfig   = 2
	exitProvider = 3
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "picoagent",
	Short: "picoagent - entropy-gated personal assistant runtime",
	Long:  "picoagent is a local personal-assistant runtime that routes messages to tools through an entropy-gated scheduler with an online-tuned confidence threshold.",
	Run: func(cmd *cobra.Command, args []string) {
		runGateway()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.picoagent/config.json or $PICOAGENT_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(onboardCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(gatewayCmd())
	rootCmd.AddCommand(providersCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(skillsCmd())
	rootCmd.AddCommand(importSkillsCmd())
	rootCmd.AddCommand(installSkillCmd())
	rootCmd.AddCommand(reloadSkillsCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(pruneMemoryCmd())
	rootCmd.AddCommand(thresholdStatsCmd())
	rootCmd.AddCommand(exportSessionCmd())
	rootCmd.AddCommand(importSessionCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("picoagent %s\n", Version)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("PICOAGENT_CONFIG"); v != "" {
		return v
	}
	return config.DefaultPath()
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func loadConfigOrExit() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(exitConfig)
	}
	return cfg
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitUser)
	}
}
