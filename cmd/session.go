package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/picoagent/internal/sessions"
)

func exportSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-session <session-id>",
		Short: "Write one session's transcript as JSON to stdout",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfigOrExit()
			mgr := sessions.NewManager(cfg.SessionsPath())
			data, err := mgr.Export(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "export session: %v\n", err)
				fmt.Fprintf(os.Stderr, "known sessions: %v\n", mgr.Keys())
				os.Exit(exitUser)
			}
			os.Stdout.Write(data)
			fmt.Println()
		},
	}
}

func importSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-session <file>",
		Short: "Merge an exported session file into the session store",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfigOrExit()
			data, err := os.ReadFile(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "read session file: %v\n", err)
				os.Exit(exitUser)
			}
			mgr := sessions.NewManager(cfg.SessionsPath())
			state, err := mgr.Import(data)
			if err != nil {
				fmt.Fprintf(os.Stderr, "import session: %v\n", err)
				os.Exit(exitUser)
			}
			if err := mgr.Save(); err != nil {
				fmt.Fprintf(os.Stderr, "save sessions: %v\n", err)
				os.Exit(exitUser)
			}
			fmt.Printf("Imported session %q (%d message(s)).\n", state.Key, len(state.Messages))
		},
	}
}
