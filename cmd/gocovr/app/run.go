package app

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/gocovr/internal/config"
	"github.com/zjy-dev/gocovr/internal/logger"
	"github.com/zjy-dev/gocovr/internal/pipeline"
	"github.com/zjy-dev/gocovr/internal/report"
	"github.com/zjy-dev/gocovr/internal/tracefile"
)

// NewRunCommand creates the "run" subcommand.
func NewRunCommand() *cobra.Command {
	var (
		rootDir         string
		gcovExecutable  string
		objectDirectory string
		parallel        int
		filters         []string
		excludes        []string
		gcovFilters     []string
		gcovExcludes    []string
		decisions       bool
		calls           bool
		useGcovFiles    bool
		keepGcovFiles   bool
		deleteGcovFiles bool
		tracefilePath   string
		summaryPath     string
		pretty          bool
		printSummary    bool
		verbose         bool
	)

	cmd := &cobra.Command{
		Use:   "run [search_path...]",
		Short: "Collect coverage from the data files of an instrumented build.",
		Long: `Collect coverage from the data files a test run left behind.

This command:
  1. Scans the search paths for gcov data files
  2. Runs gcov on each one, probing candidate working directories
     until the compile-time paths inside the file resolve
  3. Parses the JSON or text reports gcov produces
  4. Applies exclusion markers, patterns and heuristics
  5. Merges everything into one model and writes the outputs

Positional arguments replace the configured search paths. Without
them the project root is scanned.

Configuration:
  Default values are loaded from gocovr.yaml under the configs
  directory. Command line flags override the config file values.

Examples:
  # Collect coverage for the project in the current directory
  gocovr run --print-summary

  # Search a separate build tree and write a tracefile
  gocovr run build --tracefile coverage.json

  # Only report source files under src/, four gcov processes
  gocovr run --filter 'src/.*' --parallel 4

  # Consume reports an earlier gcov invocation already wrote
  gocovr run --use-gcov-files --keep-gcov-files`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// Use config values as defaults, command line flags override
			if cmd.Flags().Changed("root") {
				cfg.Root = rootDir
			}
			if cmd.Flags().Changed("gcov-executable") {
				cfg.GcovExecutable = gcovExecutable
			}
			if cmd.Flags().Changed("object-directory") {
				cfg.ObjectDirectory = objectDirectory
			}
			if cmd.Flags().Changed("parallel") {
				cfg.Parallel = parallel
			}
			if cmd.Flags().Changed("filter") {
				cfg.Filter = filters
			}
			if cmd.Flags().Changed("exclude") {
				cfg.Exclude = excludes
			}
			if cmd.Flags().Changed("gcov-filter") {
				cfg.GcovFilter = gcovFilters
			}
			if cmd.Flags().Changed("gcov-exclude") {
				cfg.GcovExclude = gcovExcludes
			}
			if cmd.Flags().Changed("decisions") {
				cfg.Decisions = decisions
			}
			if cmd.Flags().Changed("calls") {
				cfg.Calls = calls
			}
			if cmd.Flags().Changed("use-gcov-files") {
				cfg.Gcov.UseExistingFiles = useGcovFiles
			}
			if cmd.Flags().Changed("keep-gcov-files") {
				cfg.Gcov.KeepFiles = keepGcovFiles
			}
			if cmd.Flags().Changed("delete-gcov-files") {
				cfg.Gcov.DeleteDataFiles = deleteGcovFiles
			}
			if cmd.Flags().Changed("tracefile") {
				cfg.Output.Tracefile = tracefilePath
			}
			if cmd.Flags().Changed("summary") {
				cfg.Output.Summary = summaryPath
			}
			if cmd.Flags().Changed("pretty") {
				cfg.Output.Pretty = pretty
			}
			if cmd.Flags().Changed("print-summary") {
				cfg.Output.PrintSummary = printSummary
			}
			if len(args) > 0 {
				cfg.SearchPaths = args
			}
			if verbose {
				cfg.Log.Level = "debug"
			}

			return runCollect(cfg)
		},
	}

	// Flags (defaults come from the config file, flags override when set)
	cmd.Flags().StringVar(&rootDir, "root", ".", "Project root directory")
	cmd.Flags().StringVar(&gcovExecutable, "gcov-executable", "gcov", "Gcov command, possibly with arguments (e.g. \"llvm-cov gcov\")")
	cmd.Flags().StringVar(&objectDirectory, "object-directory", "", "Directory the compiler wrote object files to")
	cmd.Flags().IntVar(&parallel, "parallel", 1, "Number of gcov processes to run in parallel")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Report only source files matching this regular expression")
	cmd.Flags().StringArrayVar(&excludes, "exclude", nil, "Exclude source files matching this regular expression")
	cmd.Flags().StringArrayVar(&gcovFilters, "gcov-filter", nil, "Keep only gcov report files matching this regular expression")
	cmd.Flags().StringArrayVar(&gcovExcludes, "gcov-exclude", nil, "Exclude gcov report files matching this regular expression")
	cmd.Flags().BoolVar(&decisions, "decisions", false, "Analyze decision coverage")
	cmd.Flags().BoolVar(&calls, "calls", false, "Keep call coverage records")
	cmd.Flags().BoolVar(&useGcovFiles, "use-gcov-files", false, "Consume existing gcov report files instead of running gcov")
	cmd.Flags().BoolVar(&keepGcovFiles, "keep-gcov-files", false, "Keep gcov report files, renamed after their data file")
	cmd.Flags().BoolVar(&deleteGcovFiles, "delete-gcov-files", false, "Delete consumed .gcda files after the run")
	cmd.Flags().StringVar(&tracefilePath, "tracefile", "", "Write the merged coverage to this tracefile")
	cmd.Flags().StringVar(&summaryPath, "summary", "", "Write a per-file metrics summary to this file")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the JSON outputs")
	cmd.Flags().BoolVar(&printSummary, "print-summary", false, "Print the aggregate totals to stdout")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Log at debug level")

	return cmd
}

func runCollect(cfg *config.Config) error {
	logger.Init(cfg.Log.Level)
	logger.SetColorEnable(!cfg.Log.NoColor)

	// 1. Validate the option sections before touching any file
	parseOpts, err := cfg.GcovOptions()
	if err != nil {
		return err
	}
	ignoreSource, ignoreOutput, ignoreNoWorkingDir, err := cfg.IgnoreErrorFlags()
	if err != nil {
		return err
	}
	exclusionOpts, err := cfg.ExclusionOptions()
	if err != nil {
		return err
	}
	mergeOpts, err := cfg.MergeOptions()
	if err != nil {
		return err
	}
	sortKey, err := cfg.SortKey()
	if err != nil {
		return err
	}

	// 2. Compile the path filters
	fileFilters, err := pipeline.NewFileFilters(cfg.Filter, cfg.Exclude)
	if err != nil {
		return err
	}
	reportFilters, err := pipeline.NewFileFilters(cfg.GcovFilter, cfg.GcovExclude)
	if err != nil {
		return err
	}
	excludeDirs, err := pipeline.CompileFilterPatterns(cfg.ExcludeDirectories)
	if err != nil {
		return err
	}

	// 3. Collect the coverage data
	fmt.Printf("[Run] Project root: %s\n", cfg.Root)
	fmt.Printf("[Run] Gcov executable: %s\n", cfg.GcovExecutable)

	container, err := pipeline.Run(context.Background(), pipeline.Options{
		GcovCmd:            cfg.GcovExecutable,
		RootDir:            cfg.Root,
		SearchPaths:        cfg.SearchPaths,
		ObjDir:             cfg.ObjectDirectory,
		UseExistingFiles:   cfg.Gcov.UseExistingFiles,
		Filters:            fileFilters,
		ReportFilters:      reportFilters,
		ExcludeDirs:        excludeDirs,
		Parallel:           cfg.Parallel,
		KeepReportFiles:    cfg.Gcov.KeepFiles,
		DeleteDataFiles:    cfg.Gcov.DeleteDataFiles,
		IgnoreSourceErrors: ignoreSource,
		IgnoreOutputErrors: ignoreOutput,
		IgnoreNoWorkingDir: ignoreNoWorkingDir,
		Parse:              parseOpts,
		Exclusions:         exclusionOpts,
		Merge:              mergeOpts,
		AnalyzeDecisions:   cfg.Decisions,
	})
	if err != nil {
		return err
	}
	fmt.Printf("[Run] Collected coverage for %d source file(s)\n", container.Len())

	// 4. Write the requested outputs
	if cfg.Output.Tracefile != "" {
		if err := tracefile.WriteFile(cfg.Output.Tracefile, container, cfg.Output.Pretty); err != nil {
			return err
		}
		fmt.Printf("[Run] Tracefile written to %s\n", cfg.Output.Tracefile)
	}
	if cfg.Output.Summary != "" {
		writer := report.NewJSONSummaryWriter(cfg.Output.Summary, sortKey, cfg.Output.SortReverse, cfg.Output.Pretty)
		if err := writer.Write(container); err != nil {
			return err
		}
		fmt.Printf("[Run] Summary written to %s\n", cfg.Output.Summary)
	}
	if cfg.Output.PrintSummary {
		if err := report.PrintSummary(os.Stdout, container); err != nil {
			return err
		}
	}

	return nil
}
