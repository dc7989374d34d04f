// Package exclusions filters coverage data by source-level exclusion
// rules: marker comments such as GCOVR_EXCL_LINE, user-supplied line
// and function patterns, and heuristics for lines that cannot
// meaningfully be covered.
//
// Each rule is a separate pass over one file's coverage model. Apply
// runs every pass enabled by the options, in a fixed order, and
// modifies the model in place.
package exclusions

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/zjy-dev/gocovr/internal/coverage"
	"github.com/zjy-dev/gocovr/internal/logger"
)

// DefaultMarkerPrefix matches the GCOVR, GCOV and LCOV marker aliases.
const DefaultMarkerPrefix = "[GL]COVR?"

// Options selects which exclusion passes run and how markers are
// recognized.
type Options struct {
	// RespectMarkers enables scanning the source text for _EXCL_
	// marker comments.
	RespectMarkers bool

	// MarkerPrefix is a regular expression matching the alias part of
	// a marker, e.g. GCOVR in GCOVR_EXCL_LINE.
	MarkerPrefix string

	// LinePattern and BranchPattern exclude single lines whose source
	// text starts with a match. Nil disables the pattern.
	LinePattern   *regexp.Regexp
	BranchPattern *regexp.Regexp

	// ExcludeFunctions drops coverage for functions whose name matches
	// one of the patterns. Compile the patterns with
	// CompileFunctionPattern so a pattern must cover the whole name.
	ExcludeFunctions []*regexp.Regexp

	// ThrowBranches drops branches gcov marked as exception-only.
	ThrowBranches bool

	// UnreachableBranches drops branches on lines that hold no code
	// once comments are stripped.
	UnreachableBranches bool

	// FunctionLines removes line records on function definition lines.
	FunctionLines bool

	// InternalFunctions removes compiler-generated symbols such as
	// static initializers.
	InternalFunctions bool

	// NoncodeLines removes uncovered lines that do not look like code.
	NoncodeLines bool

	// Calls drops call records.
	Calls bool
}

// DefaultOptions returns the stock exclusion behavior: markers are
// respected and call records are dropped, everything else is opt-in.
func DefaultOptions() Options {
	return Options{
		RespectMarkers: true,
		MarkerPrefix:   DefaultMarkerPrefix,
		Calls:          true,
	}
}

// CompileFunctionPattern compiles a function exclusion pattern. The
// compiled expression matches only when the pattern covers the entire
// function name.
func CompileFunctionPattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`\A(?:` + pattern + `)\z`)
}

// Apply runs every enabled exclusion pass against one file's coverage
// model. lines is the source text of the measured file, indexed by
// line number starting at one. The model is modified in place.
func Apply(filecov *coverage.FileCoverage, lines []string, opts Options) error {
	if opts.NoncodeLines {
		removeNoncodeLines(filecov, lines)
	}

	if opts.RespectMarkers {
		if err := applyExclusionMarkers(filecov, lines, opts); err != nil {
			return err
		}
	}

	if len(opts.ExcludeFunctions) > 0 {
		removeFunctions(filecov, opts.ExcludeFunctions)
	}

	if opts.ThrowBranches {
		removeThrowBranches(filecov)
	}

	if opts.UnreachableBranches {
		removeUnreachableBranches(filecov, lines)
	}

	if opts.FunctionLines {
		removeFunctionLines(filecov)
	}

	if opts.InternalFunctions {
		removeInternalFunctions(filecov)
	}

	if opts.Calls {
		removeCalls(filecov)
	}

	return nil
}

// removeFunctions excludes every function whose name matches one of
// the patterns, together with the lines it exclusively owns. Function
// spans are only known when the tool reported start and end positions;
// a match without them is reported but cannot be excluded.
func removeFunctions(filecov *coverage.FileCoverage, patterns []*regexp.Regexp) {
	if len(filecov.Functions) == 0 {
		return
	}
	byLine := functionsByLine(filecov)

	var (
		excludeRanges [][2]int
		excludedFns   []*coverage.FunctionCoverage
	)
	for _, key := range filecov.SortedFunctionKeys() {
		functioncov := filecov.Functions[key]
		for _, pattern := range patterns {
			if !pattern.MatchString(functioncov.Key()) {
				continue
			}
			if len(functioncov.Start) == 0 {
				warnFunctionExcludeNotSupported()
				break
			}
			for _, lineno := range functioncov.Linenos() {
				start, ok := functioncov.Start[lineno]
				if !ok {
					warnFunctionExcludeNotSupported()
					continue
				}
				// Probe just right of the definition, as if a marker
				// followed it.
				ranges, matched := functionExcludeRanges(filecov.Filename, lineno, start.Column+1, byLine)
				excludeRanges = append(excludeRanges, ranges...)
				if matched != nil {
					excludedFns = append(excludedFns, matched)
				}
			}
			break
		}
	}
	logger.Debugf("Exclusion ranges for functions in %s: %v.", filecov.Filename, excludeRanges)

	excluded := makeInAnyRange(excludeRanges)
	applyExclusionRanges(filecov, excluded, excluded, excludedFns)
}

// removeThrowBranches drops branches annotated as "throw".
func removeThrowBranches(filecov *coverage.FileCoverage) {
	for _, linecov := range filecov.SortedLines() {
		for _, key := range linecov.SortedBranchKeys() {
			if !linecov.Branches[key].Throw {
				continue
			}
			logger.Debugf("Excluding unreachable branch on line %d file %s: detected as exception-only code", linecov.Lineno, filecov.Filename)
			delete(linecov.Branches, key)
		}
	}
}

// removeFunctionLines removes line records on lines that hold a
// function definition.
func removeFunctionLines(filecov *coverage.FileCoverage) {
	knownFunctionLines := make(map[int]struct{})
	for _, functioncov := range filecov.Functions {
		for lineno := range functioncov.Count {
			knownFunctionLines[lineno] = struct{}{}
		}
	}
	for _, linecov := range filecov.SortedLines() {
		if _, ok := knownFunctionLines[linecov.Lineno]; ok {
			filecov.RemoveLine(linecov)
		}
	}
}

// removeInternalFunctions removes compiler-generated functions, e.g.
// for static initialization, together with the lines attributed to
// them.
func removeInternalFunctions(filecov *coverage.FileCoverage) {
	for _, key := range filecov.SortedFunctionKeys() {
		functioncov := filecov.Functions[key]
		if !isInternalFunction(functioncov.Key()) {
			continue
		}
		logger.Debugf("Ignoring symbol %s in line %s in file %s",
			functioncov.DisplayName(), joinLinenos(functioncov.Linenos()), filecov.Filename)

		delete(filecov.Functions, key)
		for _, linecov := range filecov.Lines {
			if linecov.FunctionName != "" && linecov.FunctionName == functioncov.Name {
				linecov.Exclude()
			}
		}
	}
}

// isInternalFunction reports whether the symbol belongs to the
// construction or destruction of static objects.
func isInternalFunction(name string) bool {
	return strings.HasPrefix(name, "__") || strings.HasPrefix(name, "_GLOBAL__sub_I_")
}

// removeCalls drops the call records of every line.
func removeCalls(filecov *coverage.FileCoverage) {
	for _, linecov := range filecov.Lines {
		linecov.ClearCalls()
	}
}

func joinLinenos(linenos []int) string {
	rendered := make([]string, len(linenos))
	for i, lineno := range linenos {
		rendered[i] = strconv.Itoa(lineno)
	}
	return strings.Join(rendered, ", ")
}
