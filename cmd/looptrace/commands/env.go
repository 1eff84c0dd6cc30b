package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/l3aro/looptrace/internal/config"
	"github.com/l3aro/looptrace/internal/log"
	"github.com/l3aro/looptrace/pkg/catalog"
	"github.com/l3aro/looptrace/pkg/loop"
	"github.com/l3aro/looptrace/pkg/record"
	"github.com/l3aro/looptrace/pkg/report"
)

// runEnv is the resolved configuration of one command invocation.
type runEnv struct {
	cfg    *config.Config
	logger log.Logger
	format report.Format
	output string
}

// loadEnv layers command line flags over the loaded configuration.
func loadEnv(cmd *cobra.Command) (*runEnv, error) {
	// arguments are valid past this point; errors are not usage errors
	cmd.SilenceUsage = true
	flags := cmd.Flags()

	configPath, _ := flags.GetString("config")
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if flags.Changed("format") {
		cfg.Format, _ = flags.GetString("format")
	}
	if flags.Changed("strict") {
		cfg.Strict, _ = flags.GetBool("strict")
	}
	if flags.Changed("instructions") {
		cfg.ShowInstructions, _ = flags.GetBool("instructions")
	}
	if flags.Changed("no-color") {
		cfg.NoColor, _ = flags.GetBool("no-color")
	}

	format, err := report.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		level = log.DebugLevel
	}

	output, _ := flags.GetString("output")
	return &runEnv{
		cfg: cfg,
		logger: log.New(log.LoggerConfig{
			Level:      level,
			JSONOutput: cfg.LogJSON,
			Stderr:     cmd.ErrOrStderr(),
		}),
		format: format,
		output: output,
	}, nil
}

// analyzeFile runs one recording through a fresh catalog and session.
func analyzeFile(path string, rt *runEnv) (*report.Report, error) {
	rec, format, err := record.LoadFile(path)
	if err != nil {
		return nil, err
	}
	rt.logger.Debug("loaded recording",
		"path", path,
		"format", string(format),
		"blocks", len(rec.Blocks),
		"events", len(rec.Events),
	)

	cat := rec.Catalog(catalog.WithLookupCacheSize(rt.cfg.LookupCacheSize))
	s := loop.NewSession(cat,
		loop.WithLogger(rt.logger),
		loop.WithStrict(rt.cfg.Strict),
	)
	if _, err := s.Run(rec.Events); err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", path, err)
	}

	r, err := report.Build(path, s, report.WithInstructions(rt.cfg.ShowInstructions))
	if err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", path, err)
	}
	rt.logger.Debug("analysis complete",
		"path", path,
		"loops", len(r.Loops),
		"diagnostics", len(r.Diagnostics),
	)
	return r, nil
}

// write sends rendered output to --output or to the command's stdout.
// Colors are only used on a terminal.
func (rt *runEnv) write(cmd *cobra.Command, render func(io.Writer, report.TextOptions) error) error {
	opts := report.TextOptions{ShowAddresses: rt.cfg.ShowInstructions}
	if rt.output == "" {
		opts.Color = !rt.cfg.NoColor && !color.NoColor
		return render(cmd.OutOrStdout(), opts)
	}

	f, err := os.Create(rt.output)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := render(f, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
