// Package config loads the tool configuration from configs/gocovr.yaml
// with GOCOVR_ environment overrides, and turns the raw sections into
// the option structs the pipeline consumes.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/zjy-dev/gocovr/internal/coverage"
	"github.com/zjy-dev/gocovr/internal/exclusions"
	"github.com/zjy-dev/gocovr/internal/gcov"
)

// Config is the whole configuration tree, one field per option of the
// collection pipeline and the output stage.
type Config struct {
	// Root anchors the working directory search and is scanned when
	// SearchPaths is empty.
	Root string `mapstructure:"root"`
	// GcovExecutable invokes the coverage tool, possibly with embedded
	// arguments such as "llvm-cov gcov".
	GcovExecutable string `mapstructure:"gcov_executable"`
	// SearchPaths lists directories or single files to scan for
	// coverage data.
	SearchPaths []string `mapstructure:"search_paths"`
	// ObjectDirectory names the directory the compiler wrote object
	// files to.
	ObjectDirectory string `mapstructure:"object_directory"`
	// Parallel caps concurrent gcov invocations.
	Parallel int `mapstructure:"parallel"`

	// Filter and Exclude select measured source files by resolved
	// path. GcovFilter and GcovExclude select gcov report files
	// instead.
	Filter      []string `mapstructure:"filter"`
	Exclude     []string `mapstructure:"exclude"`
	GcovFilter  []string `mapstructure:"gcov_filter"`
	GcovExclude []string `mapstructure:"gcov_exclude"`
	// ExcludeDirectories prunes matching directories from the scan.
	ExcludeDirectories []string `mapstructure:"exclude_directories"`

	// Decisions enables the decision coverage heuristic.
	Decisions bool `mapstructure:"decisions"`
	// Calls keeps call coverage records instead of dropping them.
	Calls bool `mapstructure:"calls"`

	Gcov       GcovConfig       `mapstructure:"gcov"`
	Exclusions ExclusionsConfig `mapstructure:"exclusions"`
	Merge      MergeConfig      `mapstructure:"merge"`
	Output     OutputConfig     `mapstructure:"output"`
	Log        LogConfig        `mapstructure:"log"`
}

// GcovConfig groups the options of the gcov invocation and its
// parsers.
type GcovConfig struct {
	// UseExistingFiles consumes already generated report files instead
	// of running the tool.
	UseExistingFiles bool `mapstructure:"use_existing_files"`
	// KeepFiles keeps the report files, renamed after their data file.
	KeepFiles bool `mapstructure:"keep_files"`
	// DeleteDataFiles removes consumed .gcda files after the run.
	DeleteDataFiles bool `mapstructure:"delete_data_files"`
	// IgnoreErrors lists gcov failure classes to tolerate:
	// no_working_dir_found, source_not_found, output_error or all.
	IgnoreErrors []string `mapstructure:"ignore_errors"`
	// IgnoreParseErrors lists parse anomaly classes to downgrade from
	// fatal to warnings, e.g. negative_hits.warn_once_per_file.
	IgnoreParseErrors []string `mapstructure:"ignore_parse_errors"`
	// SuspiciousHitsThreshold is the lowest hit count treated as
	// corrupt; zero disables the check.
	SuspiciousHitsThreshold int64 `mapstructure:"suspicious_hits_threshold"`
	// SourceEncoding names the character set of the measured sources.
	SourceEncoding string `mapstructure:"source_encoding"`
}

// ExclusionsConfig groups the source-level exclusion passes.
type ExclusionsConfig struct {
	// NoMarkers disables the EXCL comment markers.
	NoMarkers bool `mapstructure:"no_markers"`
	// MarkerPrefix is a regular expression matching the alias part of
	// an exclusion marker.
	MarkerPrefix string `mapstructure:"marker_prefix"`
	// LinesByPattern and BranchesByPattern exclude lines matching a
	// regular expression anchored at the line start.
	LinesByPattern    string `mapstructure:"lines_by_pattern"`
	BranchesByPattern string `mapstructure:"branches_by_pattern"`
	// Functions lists regular expressions excluding whole functions by
	// name.
	Functions []string `mapstructure:"functions"`

	ThrowBranches       bool `mapstructure:"throw_branches"`
	UnreachableBranches bool `mapstructure:"unreachable_branches"`
	FunctionLines       bool `mapstructure:"function_lines"`
	InternalFunctions   bool `mapstructure:"internal_functions"`
	NoncodeLines        bool `mapstructure:"noncode_lines"`
}

// MergeConfig controls how coverage fragments combine.
type MergeConfig struct {
	// FunctionPolicy resolves functions reported at multiple
	// definition lines: strict, merge-use-line-0, merge-use-line-min,
	// merge-use-line-max or separate.
	FunctionPolicy string `mapstructure:"function_policy"`
}

// OutputConfig selects what the run writes.
type OutputConfig struct {
	// Tracefile is the interchange document path; empty writes none.
	Tracefile string `mapstructure:"tracefile"`
	// Summary is the per-file metrics document path; empty writes
	// none.
	Summary string `mapstructure:"summary"`
	// Pretty indents the JSON outputs.
	Pretty bool `mapstructure:"pretty"`
	// SortKey orders summary rows: filename, uncovered-number or
	// uncovered-percent.
	SortKey string `mapstructure:"sort_key"`
	// SortReverse flips the row order.
	SortReverse bool `mapstructure:"sort_reverse"`
	// PrintSummary writes the aggregate totals to stdout.
	PrintSummary bool `mapstructure:"print_summary"`
}

// LogConfig adjusts the leveled logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error or fatal.
	Level string `mapstructure:"level"`
	// NoColor disables ANSI colors on the log output.
	NoColor bool `mapstructure:"no_color"`
}

// LoadConfig reads the gocovr configuration. A missing config file is
// fine: every option has a default and can arrive via command line
// flags or GOCOVR_ environment variables instead.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("gocovr")
	v.SetConfigType("yaml")
	// The ladder makes the file findable from the repo root and from
	// within package directories during go test runs.
	v.AddConfigPath("configs")
	v.AddConfigPath("../configs")
	v.AddConfigPath("../../configs")

	v.SetEnvPrefix("GOCOVR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("gcov_executable", "gcov")
	v.SetDefault("parallel", 1)
	v.SetDefault("gcov.suspicious_hits_threshold", gcov.DefaultSuspiciousHitsThreshold)
	v.SetDefault("exclusions.marker_prefix", exclusions.DefaultMarkerPrefix)
	v.SetDefault("merge.function_policy", "strict")
	v.SetDefault("output.sort_key", "filename")
	v.SetDefault("log.level", "info")
}

// GcovOptions validates the parser section.
func (c *Config) GcovOptions() (gcov.Options, error) {
	opts := gcov.Options{
		SuspiciousHitsThreshold: c.Gcov.SuspiciousHitsThreshold,
		SourceEncoding:          c.Gcov.SourceEncoding,
		UseExistingFiles:        c.Gcov.UseExistingFiles,
	}
	if len(c.Gcov.IgnoreParseErrors) == 0 {
		return opts, nil
	}
	opts.IgnoreParseErrors = make(map[string]struct{}, len(c.Gcov.IgnoreParseErrors))
	for _, class := range c.Gcov.IgnoreParseErrors {
		switch class {
		case gcov.IgnoreAll,
			gcov.IgnoreNegativeHitsWarn, gcov.IgnoreNegativeHitsWarnOncePerFile,
			gcov.IgnoreSuspiciousWarn, gcov.IgnoreSuspiciousWarnOncePerFile:
			opts.IgnoreParseErrors[class] = struct{}{}
		default:
			return gcov.Options{}, fmt.Errorf("unknown parse error class %q", class)
		}
	}
	return opts, nil
}

// IgnoreErrorFlags folds the gcov ignore_errors list into the three
// pipeline switches.
func (c *Config) IgnoreErrorFlags() (source, output, noWorkingDir bool, err error) {
	for _, class := range c.Gcov.IgnoreErrors {
		switch class {
		case "all":
			source, output, noWorkingDir = true, true, true
		case "source_not_found":
			source = true
		case "output_error":
			output = true
		case "no_working_dir_found":
			noWorkingDir = true
		default:
			return false, false, false, fmt.Errorf("unknown gcov error class %q", class)
		}
	}
	return source, output, noWorkingDir, nil
}

// ExclusionOptions compiles the exclusion section. Pattern mistakes
// surface here, before any file is parsed.
func (c *Config) ExclusionOptions() (exclusions.Options, error) {
	opts := exclusions.Options{
		RespectMarkers:      !c.Exclusions.NoMarkers,
		MarkerPrefix:        c.Exclusions.MarkerPrefix,
		ThrowBranches:       c.Exclusions.ThrowBranches,
		UnreachableBranches: c.Exclusions.UnreachableBranches,
		FunctionLines:       c.Exclusions.FunctionLines,
		InternalFunctions:   c.Exclusions.InternalFunctions,
		NoncodeLines:        c.Exclusions.NoncodeLines,
		Calls:               !c.Calls,
	}
	if opts.MarkerPrefix == "" {
		opts.MarkerPrefix = exclusions.DefaultMarkerPrefix
	}
	if _, err := regexp.Compile(opts.MarkerPrefix); err != nil {
		return exclusions.Options{}, fmt.Errorf("invalid exclusion marker prefix %q: %w", opts.MarkerPrefix, err)
	}

	if c.Exclusions.LinesByPattern != "" {
		rx, err := regexp.Compile(c.Exclusions.LinesByPattern)
		if err != nil {
			return exclusions.Options{}, fmt.Errorf("invalid line exclusion pattern: %w", err)
		}
		opts.LinePattern = rx
	}
	if c.Exclusions.BranchesByPattern != "" {
		rx, err := regexp.Compile(c.Exclusions.BranchesByPattern)
		if err != nil {
			return exclusions.Options{}, fmt.Errorf("invalid branch exclusion pattern: %w", err)
		}
		opts.BranchPattern = rx
	}
	for _, pattern := range c.Exclusions.Functions {
		rx, err := exclusions.CompileFunctionPattern(pattern)
		if err != nil {
			return exclusions.Options{}, fmt.Errorf("invalid function exclusion pattern %q: %w", pattern, err)
		}
		opts.ExcludeFunctions = append(opts.ExcludeFunctions, rx)
	}
	return opts, nil
}

// MergeOptions resolves the merge section.
func (c *Config) MergeOptions() (coverage.MergeOptions, error) {
	policy, err := coverage.ParseFunctionPolicy(c.Merge.FunctionPolicy)
	if err != nil {
		return coverage.MergeOptions{}, err
	}
	return coverage.MergeOptions{FuncPolicy: policy}, nil
}

// SortKey resolves the summary row ordering.
func (c *Config) SortKey() (coverage.SortKey, error) {
	return coverage.ParseSortKey(c.Output.SortKey)
}
