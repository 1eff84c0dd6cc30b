package commands

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/looptrace/internal/config"
	"github.com/l3aro/looptrace/internal/healthcheck"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize looptrace configuration interactively",
	Long: `Guides you through setting up looptrace configuration step by step.
Creates a config file with report, logging and analysis settings.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runInit(cmd)
	},
}

func positiveInt(least int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("enter a whole number")
		}
		if n < least {
			return fmt.Errorf("must be at least %d", least)
		}
		return nil
	}
}

func runInit(cmd *cobra.Command) error {
	cfg := config.DefaultConfig()
	out := cmd.OutOrStdout()

	scope := "project"
	jobs := strconv.Itoa(cfg.Jobs)
	cacheSize := strconv.Itoa(cfg.LookupCacheSize)

	// === SECTION 1: Output ===
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should the configuration live?").
				Options(
					huh.NewOption("Project (./.looptrace/config.yaml)", "project"),
					huh.NewOption("Global (~/.looptrace/config.yaml)", "global"),
				).
				Value(&scope),
			huh.NewSelect[string]().
				Title("Report format").
				Description("Used when --format is not given").
				Options(
					huh.NewOption("Text", "text"),
					huh.NewOption("JSON", "json"),
					huh.NewOption("YAML", "yaml"),
					huh.NewOption("MessagePack", "msgpack"),
					huh.NewOption("Graphviz DOT", "dot"),
				).
				Value(&cfg.Format),
			huh.NewConfirm().
				Title("Include loop instructions and the address map?").
				Value(&cfg.ShowInstructions),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 2: Analysis ===
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Strict mode").
				Description("Abort a trace on the first invalid call or return").
				Affirmative("Yes, abort").
				Negative("No, warn and continue").
				Value(&cfg.Strict),
			huh.NewInput().
				Title("Concurrent recordings for batch").
				Placeholder(jobs).
				Validate(positiveInt(1)).
				Value(&jobs),
			huh.NewInput().
				Title("Mid-block lookup cache entries (0 disables)").
				Placeholder(cacheSize).
				Validate(positiveInt(0)).
				Value(&cacheSize),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	cfg.Jobs, _ = strconv.Atoi(jobs)
	cfg.LookupCacheSize, _ = strconv.Atoi(cacheSize)

	// === SECTION 3: Logging ===
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("Debug", "debug"),
					huh.NewOption("Info", "info"),
					huh.NewOption("Warn", "warn"),
					huh.NewOption("Error", "error"),
				).
				Value(&cfg.LogLevel),
			huh.NewConfirm().
				Title("Log as JSON?").
				Value(&cfg.LogJSON),
			huh.NewConfirm().
				Title("Disable colors?").
				Value(&cfg.NoColor),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	configPath := config.ProjectConfigFilePath()
	if scope == "global" {
		configPath = config.GlobalConfigFilePath()
	}

	fmt.Fprintln(out, "\n=== Configuration Preview ===")
	fmt.Fprintf(out, "Config path: %s\n", configPath)
	fmt.Fprintf(out, "Format: %s\n", cfg.Format)
	fmt.Fprintf(out, "Show instructions: %t\n", cfg.ShowInstructions)
	fmt.Fprintf(out, "Strict: %t\n", cfg.Strict)
	fmt.Fprintf(out, "Jobs: %d\n", cfg.Jobs)
	fmt.Fprintf(out, "Lookup cache size: %d\n", cfg.LookupCacheSize)
	fmt.Fprintf(out, "Log level: %s (json %t)\n", cfg.LogLevel, cfg.LogJSON)
	fmt.Fprintln(out, "================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(out, "Configuration saved to: %s\n", configPath)

	// === SECTION 4: Health Check ===
	loadedCfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading saved config: %w", err)
	}
	result, err := healthcheck.Check(loadedCfg, configPath, configPath)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	fmt.Fprintf(out, "\nConfig Scope: %s\n", result.SavedScope)
	printStatus(out, result.Config.Status, result.Config.Error)

	fmt.Fprintln(out, "\n=== Initialization Complete ===")
	return nil
}

func init() {
	RootCmd.AddCommand(initCmd)
}
