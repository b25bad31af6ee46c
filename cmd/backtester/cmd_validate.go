package main

import (
	"encoding/json"
	"fmt"
	"os"

	"atlas/internal/guard"
	"atlas/strategies"

	"github.com/spf13/cobra"
)

var validateJSON bool

// validateCmd runs only the static validator.
var validateCmd = &cobra.Command{
	Use:   "validate [file.star|seed]...",
	Short: "Statically validate strategies against the policy",
	Long: `Parse each strategy and check it against the configured policy without running it.
Every violation is reported with its rule id, category and source position.

Examples:
  backtester validate my_strategy.star
  backtester validate donchian momentum --json`,
	RunE: runValidate,
}

// seedsCmd lists the embedded strategies.
var seedsCmd = &cobra.Command{
	Use:   "seeds",
	Short: "List the built-in seed strategies",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range strategies.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(seedsCmd)

	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Print results as JSON")
}

func runValidate(cmd *cobra.Command, args []string) error {
	p, err := cfg.Policy()
	if err != nil {
		return err
	}
	codes, err := loadStrategies(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	rejected := 0
	results := make(map[string]any, len(codes))
	for _, code := range codes {
		res := guard.Validate(code, p)
		if !res.Passed {
			rejected++
		}
		if validateJSON {
			results[code.ID()] = res
			continue
		}
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(out, "%s  %s\n", status, code.ID())
		for _, v := range res.Violations {
			fmt.Fprintf(out, "      %s\n", v)
		}
	}
	if validateJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	}
	if rejected > 0 {
		return fmt.Errorf("%d of %d strategies rejected", rejected, len(codes))
	}
	return nil
}
