// Package commands provides the CLI commands for looptrace.
package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/l3aro/looptrace/pkg/report"
)

// RootCmd analyzes a single recording when called without a subcommand
var RootCmd = &cobra.Command{
	Use:   "looptrace <record-file>",
	Short: "looptrace - Reconstruct loop nests from execution traces",
	Long: `looptrace replays a recorded basic-block trace, simulates the call stack
and reports every loop it finds, including loops nested across calls.

The record file holds block descriptions (tag 0) and executed blocks
(tag 1), in text or binary form.

Commands:
  batch       Analyze several independent recordings concurrently
  convert     Convert a recording between text and binary
  doctor      Check configuration and recordings
  init        Create a configuration file interactively

Use "looptrace [command] --help" for more information about a command.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadEnv(cmd)
		if err != nil {
			return err
		}

		r, err := analyzeFile(args[0], rt)
		if err != nil {
			return err
		}
		return rt.write(cmd, func(w io.Writer, opts report.TextOptions) error {
			return r.Render(w, rt.format, opts)
		})
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	flags := RootCmd.PersistentFlags()
	flags.String("config", "", "Config file path (default: project, then global config)")
	flags.StringP("format", "f", "", fmt.Sprintf("Report format %v", report.Formats))
	flags.StringP("output", "o", "", "Write the report to a file instead of stdout")
	flags.Bool("strict", false, "Abort on the first recoverable diagnostic")
	flags.Bool("instructions", false, "Include loop instructions and the address map")
	flags.Bool("no-color", false, "Disable colored text output")
	flags.BoolP("verbose", "v", false, "Verbose logging")
}
