package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/looptrace/pkg/record"
)

// convertCmd rewrites a recording in the other encoding
var convertCmd = &cobra.Command{
	Use:   "convert <in> <out>",
	Short: "Convert a recording between text and binary",
	Long: `Reads a recording in either encoding and writes it to <out>. Without --to
the output uses the encoding the input is not in.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		in, out := args[0], args[1]

		rec, from, err := record.LoadFile(in)
		if err != nil {
			return err
		}

		to := record.FormatBinary
		if from == record.FormatBinary {
			to = record.FormatText
		}
		if cmd.Flags().Changed("to") {
			name, _ := cmd.Flags().GetString("to")
			if to, err = record.ParseFormat(name); err != nil {
				return err
			}
		}

		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		if err := record.Write(f, rec, to); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Converted %s (%s) to %s (%s): %d blocks, %d events\n",
			in, from, out, to, len(rec.Blocks), len(rec.Events))
		return nil
	},
}

func init() {
	convertCmd.Flags().String("to", "", "Output encoding (text or binary)")
	RootCmd.AddCommand(convertCmd)
}
