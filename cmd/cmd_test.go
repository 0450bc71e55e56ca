package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/picoagent/internal/config"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENROUTER_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY",
		"DEEPSEEK_API_KEY", "GROQ_API_KEY", "GEMINI_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestResolveProviderName_ExplicitWins(t *testing.T) {
	clearProviderEnv(t)
	cfg := config.Default()
	cfg.Agents.Provider = "groq"
	if got := resolveProviderName(cfg); got != "groq" {
		t.Errorf("resolveProviderName = %q", got)
	}
}

func TestResolveProviderName_AutoPicksFirstWithKey(t *testing.T) {
	clearProviderEnv(t)
	cfg := config.Default()
	cfg.Agents.Provider = "auto"
	cfg.Providers.DeepSeek.APIKey = "sk-test"
	if got := resolveProviderName(cfg); got != "deepseek" {
		t.Errorf("resolveProviderName = %q", got)
	}
}

func TestResolveProviderName_AutoWithoutKeysDefaultsToOpenAI(t *testing.T) {
	clearProviderEnv(t)
	cfg := config.Default()
	cfg.Agents.Provider = "auto"
	if got := resolveProviderName(cfg); got != "openai" {
		t.Errorf("resolveProviderName = %q", got)
	}
}

func TestProviderOptions_SplitEmbedding(t *testing.T) {
	clearProviderEnv(t)
	cfg := config.Default()
	cfg.Agents.Provider = "anthropic"
	cfg.Agents.EmbeddingProvider = "openai"
	cfg.Providers.Anthropic.APIKey = "a-key"
	cfg.Providers.OpenAI.APIKey = "o-key"

	opts := providerOptions(cfg)
	if opts.Provider != "anthropic" || opts.APIKey != "a-key" {
		t.Errorf("chat side = %+v", opts)
	}
	if opts.EmbeddingProvider != "openai" || opts.EmbeddingAPIKey != "o-key" {
		t.Errorf("embedding side = %+v", opts)
	}
}

func TestImportSkillTree(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "notes.md"), []byte("# notes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(src, "deploy"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "deploy", "SKILL.md"), []byte("---\nname: deploy\n---\nbody"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "readme.txt"), []byte("skip me"), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := importSkillTree(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("imported %d files", n)
	}
	for _, rel := range []string{"notes.md", filepath.Join("deploy", "SKILL.md")} {
		if _, err := os.Stat(filepath.Join(dst, rel)); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dst, "readme.txt")); err == nil {
		t.Error("non-markdown file was copied")
	}
}
