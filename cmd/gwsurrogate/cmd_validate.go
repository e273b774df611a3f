package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/gwsurrogate/config"
	"github.com/YuminosukeSato/gwsurrogate/surrogate"
)

func (a *app) validateCmd(ctx context.Context) *cobra.Command {
	var (
		n       int
		seed    uint64
		pcaOnly bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Report mismatches against directly generated waveforms",
		Long: `Draw n parameter vectors, generate their reference waveforms on the
dense grid and report the mismatch of the trained model (or, with
--pca-only, of the PCA reconstruction alone).

Examples:
  gwsurrogate validate --n 64
  gwsurrogate validate --pca-only --seed 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.loadModel()
			if err != nil {
				return err
			}
			v := &surrogate.ValidateModel{Model: m}
			var mismatches []float64
			kind := "surrogate"
			if pcaOnly {
				kind = "pca reconstruction"
				mismatches, err = v.PCAReconstructionMismatches(ctx, n, seed)
			} else {
				mismatches, err = v.ValidationMismatches(ctx, n, seed)
			}
			if err != nil {
				return err
			}
			return writeSummary(cmd.OutOrStdout(), kind, surrogate.Summarize(mismatches))
		},
	}
	cmd.Flags().IntVar(&n, "n", 32, "number of validation waveforms")
	cmd.Flags().Uint64Var(&seed, "seed", 1001, "seed of the validation parameters")
	cmd.Flags().BoolVar(&pcaOnly, "pca-only", false, "validate the PCA reconstruction instead of the regressor")
	return cmd
}

func writeSummary(w io.Writer, kind string, s surrogate.MismatchSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "KIND\tN\tMEAN\tMEDIAN\tMAX\n")
	fmt.Fprintf(tw, "%s\t%d\t%.3e\t%.3e\t%.3e\n", kind, s.N, s.Mean, s.Median, s.Max)
	return tw.Flush()
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(config.Default(), output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVar(&output, "output", "gwsurrogate.yaml", "destination file")
	cmd.AddCommand(initCmd)
	return cmd
}
