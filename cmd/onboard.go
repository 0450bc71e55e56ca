package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/picoagent/internal/config"
	"github.com/nextlevelbuilder/picoagent/internal/providers"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive first-run setup",
		Run: func(cmd *cobra.Command, args []string) {
			runOnboard()
		},
	}
}

func runOnboard() {
	reg := providers.NewRegistry()
	var names []string
	for _, spec := range reg.List() {
		names = append(names, spec.Name)
	}

	var (
		provider = "openrouter"
		apiKey   string
		model    string
	)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Provider").
				Description("Which LLM provider should picoagent use?").
				Options(huh.NewOptions(names...)...).
				Value(&provider),
			huh.NewInput().
				Title("API key").
				Description("Leave empty to run on the built-in offline heuristics.").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewInput().
				Title("Chat model").
				Description("Leave empty for the provider default.").
				Value(&model),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "onboarding aborted: %v\n", err)
		os.Exit(exitUser)
	}

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		cfg = config.Default()
	}
	cfg.Agents.Provider = provider
	if model != "" {
		cfg.Agents.Model = model
	} else if spec, err := reg.Get(provider); err == nil {
		cfg.Agents.Model = spec.DefaultChatModel
	}
	setProviderKey(cfg, provider, apiKey)

	path := resolveConfigPath()
	if err := config.Save(path, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "write config: %v\n", err)
		os.Exit(exitConfig)
	}

	fmt.Printf("Config written to %s\n\n", path)
	fmt.Println("Next steps:")
	fmt.Println("  picoagent agent     # chat on the terminal")
	fmt.Println("  picoagent gateway   # run the full runtime")
	fmt.Println("  picoagent doctor    # check the environment")
}

func setProviderKey(cfg *config.Config, name, key string) {
	if key == "" {
		return
	}
	switch name {
	case "openrouter":
		cfg.Providers.OpenRouter.APIKey = key
	case "anthropic":
		cfg.Providers.Anthropic.APIKey = key
	case "openai":
		cfg.Providers.OpenAI.APIKey = key
	case "deepseek":
		cfg.Providers.DeepSeek.APIKey = key
	case "groq":
		cfg.Providers.Groq.APIKey = key
	case "gemini":
		cfg.Providers.Gemini.APIKey = key
	case "vllm":
		cfg.Providers.VLLM.APIKey = key
	case "custom":
		cfg.Providers.Custom.APIKey = key
	}
}
