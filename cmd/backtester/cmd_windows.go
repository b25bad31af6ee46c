package main

import (
	"fmt"
	"text/tabwriter"

	"atlas/internal/walkforward"
	"atlas/types"

	"github.com/spf13/cobra"
)

var windowsData dataFlags

// windowsCmd previews the walk-forward schedule for a dataset.
var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "Print the walk-forward windows for a dataset",
	Long: `Print every train/validate/test window the configured spec produces over the data,
with the bar count of each segment.

Examples:
  backtester windows --csv spy.csv
  backtester windows --ticker SPY --from 2015-01-01`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := cfg.WindowSpec()
		if err != nil {
			return err
		}
		db := &lazyDatabase{}
		defer db.Close()
		series, err := windowsData.load(cmd.Context(), db)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "spec: %s\n", spec)
		fmt.Fprintln(tw, "#\ttrain\tbars\tvalidate\tbars\ttest\tbars")
		count := 0
		for w := range walkforward.Windows(series, spec) {
			fmt.Fprintf(tw, "%d", w.Index)
			for _, seg := range types.Segments {
				r := w.Range(seg)
				fmt.Fprintf(tw, "\t%s\t%d", r, series.Between(r).Len())
			}
			fmt.Fprintln(tw)
			count++
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d windows over %s\n", count, types.DateRange{Start: series.Start(), End: series.End()})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(windowsCmd)
	windowsData.register(windowsCmd)
}
