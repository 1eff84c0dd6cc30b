package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/l3aro/looptrace/internal/config"
	"github.com/l3aro/looptrace/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor [record-file]",
	Short: "Run health checks on configuration and recordings",
	Long: `Checks the configuration and, when a recording is given, verifies that
every executed address resolves to a described block.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		explicit, _ := cmd.Flags().GetString("config")
		cfg, configPath, err := loadConfigWithPath(explicit)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		result, err := healthcheck.Check(cfg, configPath, configPath)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		if len(args) == 1 {
			result.Recording = healthcheck.CheckRecording(args[0], cfg.LookupCacheSize)
		}

		displayDoctorResult(cmd.OutOrStdout(), result)

		if result.Config.Status == "error" || (result.Recording != nil && result.Recording.Status == "error") {
			return fmt.Errorf("health check failed")
		}
		return nil
	},
}

// loadConfigWithPath loads the config that applies, returning its path.
// An empty path means only defaults and environment apply.
func loadConfigWithPath(explicit string) (*config.Config, string, error) {
	candidates := []string{config.ProjectConfigFilePath(), config.GlobalConfigFilePath()}
	if explicit != "" {
		candidates = []string{explicit}
	}

	for _, path := range candidates {
		if !fileExists(path) {
			continue
		}
		cfg, err := config.LoadFromFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config from %s: %w", path, err)
		}
		return cfg, path, nil
	}
	if explicit != "" {
		return nil, "", fmt.Errorf("config file %s not found", explicit)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, "", err
	}
	return cfg, "", nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func displayDoctorResult(w io.Writer, result *healthcheck.HealthCheckResult) {
	if result.EffectivePath == "" {
		fmt.Fprintln(w, "Using config: built-in defaults")
	} else {
		path := result.EffectivePath
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		fmt.Fprintf(w, "Using config: %s (%s)\n", path, result.EffectiveScope)
	}
	printStatus(w, result.Config.Status, result.Config.Error)

	rec := result.Recording
	if rec == nil {
		return
	}
	fmt.Fprintf(w, "\nRecording: %s\n", rec.Path)
	if rec.Format != "" {
		fmt.Fprintf(w, "  Format: %s\n", rec.Format)
		fmt.Fprintf(w, "  Blocks: %s\n", humanize.Comma(int64(rec.Blocks)))
		fmt.Fprintf(w, "  Events: %s (%s exact, %s mid-block)\n",
			humanize.Comma(int64(rec.Events)), humanize.Comma(int64(rec.ExactHits)), humanize.Comma(int64(rec.MidBlock)))
	}
	for _, addr := range rec.Unresolved {
		fmt.Fprintf(w, "  Unresolved: 0x%x\n", addr)
	}
	if extra := rec.Missing - len(rec.Unresolved); extra > 0 {
		fmt.Fprintf(w, "  ... and %d more\n", extra)
	}
	for _, pair := range rec.Overlaps {
		fmt.Fprintf(w, "  Overlap: 0x%x and 0x%x\n", pair[0], pair[1])
	}
	printStatus(w, rec.Status, rec.Error)
}

func printStatus(w io.Writer, status string, errMsg string) {
	fmt.Fprintf(w, "  Status: %s %s\n", formatStatusIcon(status), status)
	if errMsg != "" {
		fmt.Fprintf(w, "  Error: %s\n", errMsg)
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case "ready", "defaults":
		return "✓"
	case "warning":
		return "◐"
	case "error":
		return "✗"
	default:
		return "?"
	}
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
