package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/picoagent/internal/config"
	"github.com/nextlevelbuilder/picoagent/internal/providers"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, credentials and runtime directories",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	failed := exitOK
	report := func(ok bool, label, detail string) {
		mark := "ok"
		if !ok {
			mark = "FAIL"
		}
		fmt.Printf("[%-4s] %-20s %s\n", mark, label, detail)
	}

	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		report(false, "config", err.Error())
		os.Exit(exitConfig)
	}
	detail := path
	if _, statErr := os.Stat(config.ExpandHome(path)); os.IsNotExist(statErr) {
		detail = path + " (missing, using defaults)"
	}
	report(true, "config", detail)

	name := resolveProviderName(cfg)
	spec, specErr := providers.NewRegistry().Get(name)
	if specErr != nil {
		report(false, "provider", specErr.Error())
		failed = exitConfig
	} else {
		hasKey := cfg.Providers.Get(name).APIKey != "" || os.Getenv(spec.APIKeyEnv) != ""
		if hasKey {
			report(true, "provider", fmt.Sprintf("%s (%s)", name, cfg.Agents.Model))
			if err := probeProvider(spec.BaseURL); err != nil {
				report(false, "provider reachability", err.Error())
				failed = exitProvider
			} else {
				report(true, "provider reachability", spec.BaseURL)
			}
		} else {
			report(true, "provider", name+" (no API key; offline heuristics will be used)")
		}
	}

	if err := cfg.EnsureRuntimeDirs(); err != nil {
		report(false, "runtime dirs", err.Error())
		failed = exitConfig
	} else {
		report(true, "runtime dirs", config.ConfigDir())
	}

	ws := cfg.WorkspacePath()
	probe := filepath.Join(ws, ".picoagent-doctor")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		report(false, "workspace", fmt.Sprintf("%s not writable: %v", ws, err))
		failed = exitConfig
	} else {
		os.Remove(probe)
		report(true, "workspace", ws)
	}

	for label, p := range map[string]string{
		"memory file":    cfg.MemoryPath(),
		"sessions file":  cfg.SessionsPath(),
		"threshold file": cfg.ThresholdPath(),
		"cron file":      cfg.CronPath(),
	} {
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil {
			report(true, label, fmt.Sprintf("%s (%d bytes)", p, info.Size()))
		} else {
			report(true, label, p+" (will be created)")
		}
	}

	if len(cfg.MCPServers) > 0 {
		report(true, "mcp servers", fmt.Sprintf("%d configured", len(cfg.MCPServers)))
	}

	if failed != exitOK {
		os.Exit(failed)
	}
	fmt.Println("\nAll checks passed.")
}

// probeProvider confirms the API endpoint answers TCP/TLS at all; any
// HTTP status counts as reachable.
func probeProvider(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(baseURL)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
