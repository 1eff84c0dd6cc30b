package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/l3aro/looptrace/pkg/report"
)

// batchCmd analyzes independent recordings, for example one per thread
var batchCmd = &cobra.Command{
	Use:   "batch <record-file>...",
	Short: "Analyze several independent recordings concurrently",
	Long: `Analyzes each recording with its own block catalog and call stack, as
needed for traces captured from different threads. Up to --jobs recordings
are processed at once; reports are printed in argument order.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("jobs") {
			rt.cfg.Jobs, _ = cmd.Flags().GetInt("jobs")
		}
		if rt.cfg.Jobs <= 0 {
			return fmt.Errorf("jobs must be positive")
		}

		reports, err := analyzeAll(cmd, args, rt)
		if err != nil {
			return err
		}
		return rt.write(cmd, func(w io.Writer, opts report.TextOptions) error {
			return report.RenderAll(w, reports, rt.format, opts)
		})
	},
}

// analyzeAll runs every recording, at most cfg.Jobs at a time, and keeps
// the reports in argument order. The first failure cancels the rest.
func analyzeAll(cmd *cobra.Command, paths []string, rt *runEnv) ([]*report.Report, error) {
	reports := make([]*report.Report, len(paths))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(rt.cfg.Jobs)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := analyzeFile(path, rt)
			if err != nil {
				return err
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func init() {
	batchCmd.Flags().IntP("jobs", "j", 0, "Recordings analyzed concurrently (default from config)")
	RootCmd.AddCommand(batchCmd)
}
