package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/gocovr/internal/config"
	"github.com/zjy-dev/gocovr/internal/logger"
	"github.com/zjy-dev/gocovr/internal/report"
	"github.com/zjy-dev/gocovr/internal/tracefile"
)

// NewMergeCommand creates the "merge" subcommand.
func NewMergeCommand() *cobra.Command {
	var (
		outputPath     string
		summaryPath    string
		functionPolicy string
		pretty         bool
		printSummary   bool
		verbose        bool
	)

	cmd := &cobra.Command{
		Use:   "merge tracefile...",
		Short: "Merge previously written tracefiles.",
		Long: `Merge previously written tracefiles into one coverage model.

Counts for the same line sum up, so tracefiles from independent test
runs combine into the coverage of the whole suite. Entries that
disagree on the structure of a source file, such as line checksums,
are rejected as conflicting.

Configuration:
  Default values are loaded from gocovr.yaml under the configs
  directory. Command line flags override the config file values.

Examples:
  # Merge two runs into one tracefile
  gocovr merge run1.json run2.json --output total.json

  # Merge and print the aggregate totals
  gocovr merge run1.json run2.json --print-summary

  # Fold functions reported at different lines onto the largest line
  gocovr merge --function-policy merge-use-line-max run1.json run2.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// Use config values as defaults, command line flags override
			if cmd.Flags().Changed("output") {
				cfg.Output.Tracefile = outputPath
			}
			if cmd.Flags().Changed("summary") {
				cfg.Output.Summary = summaryPath
			}
			if cmd.Flags().Changed("function-policy") {
				cfg.Merge.FunctionPolicy = functionPolicy
			}
			if cmd.Flags().Changed("pretty") {
				cfg.Output.Pretty = pretty
			}
			if cmd.Flags().Changed("print-summary") {
				cfg.Output.PrintSummary = printSummary
			}
			if verbose {
				cfg.Log.Level = "debug"
			}

			return runMerge(cfg, args)
		},
	}

	// Flags (defaults come from the config file, flags override when set)
	cmd.Flags().StringVar(&outputPath, "output", "", "Write the merged coverage to this tracefile")
	cmd.Flags().StringVar(&summaryPath, "summary", "", "Write a per-file metrics summary to this file")
	cmd.Flags().StringVar(&functionPolicy, "function-policy", "strict", "How to merge functions reported at different lines (strict, merge-use-line-0, merge-use-line-min, merge-use-line-max, separate)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the JSON outputs")
	cmd.Flags().BoolVar(&printSummary, "print-summary", false, "Print the aggregate totals to stdout")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Log at debug level")

	return cmd
}

func runMerge(cfg *config.Config, paths []string) error {
	logger.Init(cfg.Log.Level)
	logger.SetColorEnable(!cfg.Log.NoColor)

	mergeOpts, err := cfg.MergeOptions()
	if err != nil {
		return err
	}
	sortKey, err := cfg.SortKey()
	if err != nil {
		return err
	}

	container, err := tracefile.ReadAll(paths, mergeOpts)
	if err != nil {
		return err
	}
	fmt.Printf("[Merge] Merged %d tracefile(s) covering %d source file(s)\n", len(paths), container.Len())

	if cfg.Output.Tracefile != "" {
		if err := tracefile.WriteFile(cfg.Output.Tracefile, container, cfg.Output.Pretty); err != nil {
			return err
		}
		fmt.Printf("[Merge] Tracefile written to %s\n", cfg.Output.Tracefile)
	}
	if cfg.Output.Summary != "" {
		writer := report.NewJSONSummaryWriter(cfg.Output.Summary, sortKey, cfg.Output.SortReverse, cfg.Output.Pretty)
		if err := writer.Write(container); err != nil {
			return err
		}
		fmt.Printf("[Merge] Summary written to %s\n", cfg.Output.Summary)
	}
	if cfg.Output.PrintSummary {
		if err := report.PrintSummary(os.Stdout, container); err != nil {
			return err
		}
	}

	return nil
}
