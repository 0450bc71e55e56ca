package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/picoagent/internal/decision"
	"github.com/nextlevelbuilder/picoagent/internal/memory"
)

func pruneMemoryCmd() *cobra.Command {
	var olderThanDays int
	var minScore float64
	cmd := &cobra.Command{
		Use:   "prune-memory",
		Short: "Delete old or low-scoring memory records",
		Run: func(cmd *cobra.Command, args []string) {
			if olderThanDays <= 0 && minScore <= 0 {
				fmt.Fprintln(os.Stderr, "specify --older-than and/or --min-score")
				os.Exit(exitUser)
			}
			cfg := loadConfigOrExit()
			store := memory.NewStore(cfg.MemoryPath(),
				memory.WithHalfLife(time.Duration(cfg.Memory.HalfLifeDays*24)*time.Hour),
				memory.WithMaxRecords(cfg.Memory.MaxRecords),
			)
			loaded, err := store.Load(0)
			if err != nil {
				fmt.Fprintf(os.Stderr, "load memory: %v\n", err)
				os.Exit(exitUser)
			}

			now := time.Now()
			removed := 0
			if olderThanDays > 0 {
				removed += store.PruneOlderThan(time.Duration(olderThanDays)*24*time.Hour, now)
			}
			if minScore > 0 {
				removed += store.PruneBelowScore(minScore, now)
			}
			if err := store.Save(); err != nil {
				fmt.Fprintf(os.Stderr, "save memory: %v\n", err)
				os.Exit(exitUser)
			}
			fmt.Printf("Pruned %d of %d record(s); %d remain.\n", removed, loaded, store.Len())
		},
	}
	cmd.Flags().IntVar(&olderThanDays, "older-than", 0, "drop records older than this many days")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "drop records whose decayed score is below this")
	return cmd
}

func thresholdStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "threshold-stats",
		Short: "Show the adaptive entropy gate state",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfigOrExit()
			adaptive := decision.NewAdaptiveThreshold(cfg.ThresholdPath(), cfg.Adaptive.InitialBits,
				decision.WithBounds(cfg.Adaptive.MinBits, cfg.Adaptive.MaxBits),
				decision.WithLearningRate(cfg.Adaptive.Step),
			)
			stats := adaptive.Stats()
			fmt.Printf("threshold:  %.3f bits (bounds %.2f..%.2f, step %.2f)\n",
				stats.Threshold, cfg.Adaptive.MinBits, cfg.Adaptive.MaxBits, cfg.Adaptive.Step)
			fmt.Printf("win rate:   %.1f%%\n", stats.WinRate*100)
			fmt.Printf("samples:    %d\n", stats.SampleCount)
			if !cfg.Adaptive.Enabled {
				fmt.Println("note: adaptation is disabled; the gate stays at its initial value")
			}
		},
	}
}
