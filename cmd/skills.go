package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/picoagent/internal/config"
	"github.com/nextlevelbuilder/picoagent/internal/skills"
)

func skillsCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "skills",
		Short: "Inspect the skill library",
	}
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List installed skills",
		Run: func(cmd *cobra.Command, args []string) {
			lib := openLibrary()
			all := lib.List()
			if len(all) == 0 {
				fmt.Println("No skills installed.")
				return
			}
			for _, s := range all {
				extras := describeSkill(s)
				fmt.Printf("%-20s %s%s\n", s.Name, s.Description, extras)
			}
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show per-skill usage counts",
		Run: func(cmd *cobra.Command, args []string) {
			lib := openLibrary()
			stats := lib.UsageStats()
			if len(stats) == 0 {
				fmt.Println("No usage recorded yet.")
				return
			}
			names := make([]string, 0, len(stats))
			for name := range stats {
				names = append(names, name)
			}
			sort.Slice(names, func(i, j int) bool {
				if stats[names[i]] != stats[names[j]] {
					return stats[names[i]] > stats[names[j]]
				}
				return names[i] < names[j]
			})
			for _, name := range names {
				fmt.Printf("%6d  %s\n", stats[name], name)
			}
		},
	})
	return root
}

func describeSkill(s *skills.Skill) string {
	var extras []string
	if len(s.Tags) > 0 {
		extras = append(extras, "tags: "+strings.Join(s.Tags, ", "))
	}
	if s.Tool != "" {
		extras = append(extras, "tool: "+s.Tool)
	}
	if len(s.Pipeline) > 0 {
		extras = append(extras, "pipeline: "+strings.Join(s.Pipeline, " > "))
	}
	if len(extras) == 0 {
		return ""
	}
	return " (" + strings.Join(extras, "; ") + ")"
}

func openLibrary() *skills.Library {
	cfg := loadConfigOrExit()
	return skills.NewLibrary(cfg.SkillsPath(), filepath.Join(config.ConfigDir(), "skill_usage.jsonl"))
}

func importSkillsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-skills <dir>",
		Short: "Copy every skill found under a directory into the skill library",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfigOrExit()
			n, err := importSkillTree(args[0], cfg.SkillsPath())
			if err != nil {
				fmt.Fprintf(os.Stderr, "import skills: %v\n", err)
				os.Exit(exitUser)
			}
			fmt.Printf("Imported %d skill file(s) into %s\n", n, cfg.SkillsPath())
		},
	}
}

func installSkillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install-skill <path>",
		Short: "Install a single skill file or skill directory",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfigOrExit()
			src := args[0]
			info, err := os.Stat(src)
			if err != nil {
				fmt.Fprintf(os.Stderr, "install skill: %v\n", err)
				os.Exit(exitUser)
			}
			var n int
			if info.IsDir() {
				n, err = importSkillTree(src, filepath.Join(cfg.SkillsPath(), filepath.Base(src)))
			} else {
				err = copySkillFile(src, filepath.Join(cfg.SkillsPath(), filepath.Base(src)))
				n = 1
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "install skill: %v\n", err)
				os.Exit(exitUser)
			}
			fmt.Printf("Installed %d skill file(s)\n", n)
		},
	}
}

func reloadSkillsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload-skills",
		Short: "Rescan the skill library and report what it contains",
		Run: func(cmd *cobra.Command, args []string) {
			lib := openLibrary()
			all := lib.List()
			fmt.Printf("Skill library holds %d skill(s).\n", len(all))
			for _, s := range all {
				fmt.Printf("  %s\n", s.Name)
			}
		},
	}
}

// importSkillTree copies markdown skill files from src into dst,
// preserving one directory level for SKILL.md bundles.
func importSkillTree(src, dst string) (int, error) {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		if entry.IsDir() {
			bundle := filepath.Join(srcPath, "SKILL.md")
			if _, err := os.Stat(bundle); err != nil {
				continue
			}
			if err := copySkillFile(bundle, filepath.Join(dst, entry.Name(), "SKILL.md")); err != nil {
				return count, err
			}
			count++
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		if err := copySkillFile(srcPath, filepath.Join(dst, entry.Name())); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func copySkillFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
