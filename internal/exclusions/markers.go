package exclusions

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/zjy-dev/gocovr/internal/coverage"
	"github.com/zjy-dev/gocovr/internal/logger"
)

const (
	excludeFlag       = "_EXCL_"
	excludeLineWord   = ""
	excludeBranchWord = "BR_"
)

// predicate answers whether a line number falls into an excluded
// range. Instances returned by makeInAnyRange keep a search hint, so
// they are not safe for concurrent use.
type predicate func(lineno int) bool

// applyExclusionMarkers scans the source text for exclusion markers
// and applies the resulting line and branch exclusions to the model.
func applyExclusionMarkers(filecov *coverage.FileCoverage, lines []string, opts Options) error {
	warnings := &rangeWarnings{filename: filecov.Filename}
	byLine := functionsByLine(filecov)

	lineExcluded, excludedFns, err := findExcludedRanges(
		filecov.Filename, lines, warnings, byLine, excludeLineWord, opts.LinePattern, opts.MarkerPrefix)
	if err != nil {
		return err
	}
	branchExcluded, _, err := findExcludedRanges(
		filecov.Filename, lines, warnings, nil, excludeBranchWord, opts.BranchPattern, opts.MarkerPrefix)
	if err != nil {
		return err
	}

	applyExclusionRanges(filecov, lineExcluded, branchExcluded, excludedFns)
	return nil
}

// findExcludedRanges scans all source lines for one marker family and
// returns the exclusion predicate plus any functions excluded through
// FUNCTION markers. The line family recognizes LINE, START, STOP and
// FUNCTION; the branch family has no FUNCTION marker.
func findExcludedRanges(
	filename string,
	lines []string,
	warnings *rangeWarnings,
	byLine map[int][]*coverage.FunctionCoverage,
	word string,
	customPattern *regexp.Regexp,
	prefix string,
) (predicate, []*coverage.FunctionCoverage, error) {
	postfix := "(LINE|START|STOP|FUNCTION)"
	if word == excludeBranchWord {
		postfix = "(LINE|START|STOP)"
	}
	markerRx, err := regexp.Compile("(" + prefix + ")" + excludeFlag + word + postfix)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid exclusion marker prefix %q: %w", prefix, err)
	}

	scan := &markerScan{word: word, warnings: warnings}
	var excludedFns []*coverage.FunctionCoverage

	for i, code := range lines {
		lineno := i + 1
		if strings.Contains(code, excludeFlag) {
			for _, m := range markerRx.FindAllStringSubmatchIndex(code, -1) {
				header := code[m[2]:m[3]]
				flag := code[m[4]:m[5]]
				if flag == "FUNCTION" {
					ranges, functioncov := functionExcludeRanges(filename, lineno, m[0]+1, byLine)
					scan.ranges = append(scan.ranges, ranges...)
					if functioncov != nil {
						excludedFns = append(excludedFns, functioncov)
					}
					continue
				}
				scan.process(lineno, header, flag)
			}
		}

		if customPattern != nil {
			// Anchored at the line start, like the reference tooling
			// expects its exclusion patterns to be.
			if loc := customPattern.FindStringIndex(code); loc != nil && loc[0] == 0 {
				scan.ranges = append(scan.ranges, [2]int{lineno, lineno})
			}
		}
	}

	return scan.finish(), excludedFns, nil
}

// markerRegion is one open START marker on the scan stack.
type markerRegion struct {
	header string
	lineno int
}

// markerScan accumulates the exclusion ranges of one marker family
// over a single pass of the source text. START markers open a region,
// STOP markers close the most recent one; the stop line itself stays
// included.
type markerScan struct {
	word     string
	warnings *rangeWarnings

	ranges [][2]int
	stack  []markerRegion
}

func (s *markerScan) process(lineno int, header, flag string) {
	switch flag {
	case "LINE":
		if len(s.stack) > 0 {
			s.warnings.lineAfterStart(lineno, s.marker(header, "LINE"), s.stack[len(s.stack)-1].lineno)
		} else {
			s.ranges = append(s.ranges, [2]int{lineno, lineno})
		}
	case "START":
		s.stack = append(s.stack, markerRegion{header: header, lineno: lineno})
	case "STOP":
		if len(s.stack) == 0 {
			s.warnings.stopWithoutStart(lineno, s.marker(header, "START"), s.marker(header, "STOP"))
			return
		}
		region := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		if region.header != header {
			s.warnings.mismatchedStartStop(region.lineno, s.marker(region.header, "START"), lineno, s.marker(header, "STOP"))
		}
		s.ranges = append(s.ranges, [2]int{region.lineno, lineno - 1})
	}
}

// finish reports regions that were never closed and builds the
// predicate over everything collected.
func (s *markerScan) finish() predicate {
	for _, region := range s.stack {
		s.warnings.startWithoutStop(region.lineno, s.marker(region.header, "START"), s.marker(region.header, "STOP"))
	}
	return makeInAnyRange(s.ranges)
}

func (s *markerScan) marker(header, flag string) string {
	return header + excludeFlag + s.word + flag
}

// rangeWarnings logs problems found during marker processing.
type rangeWarnings struct {
	filename string
}

func (w *rangeWarnings) mismatchedStartStop(startLineno int, start string, stopLineno int, stop string) {
	logger.Warnf("%s found on line %d was terminated by %s on line %d, when processing %s.",
		start, startLineno, stop, stopLineno, w.filename)
}

func (w *rangeWarnings) stopWithoutStart(lineno int, expectedStart, stop string) {
	logger.Warnf("mismatched coverage exclusion flags.\n          %s found on line %d without corresponding %s, when processing %s.",
		stop, lineno, expectedStart, w.filename)
}

func (w *rangeWarnings) startWithoutStop(lineno int, start, expectedStop string) {
	logger.Warnf("The coverage exclusion region start flag %s\n          on line %d did not have corresponding %s flag\n          in file %s.",
		start, lineno, expectedStop, w.filename)
}

func (w *rangeWarnings) lineAfterStart(lineno int, start string, startLineno int) {
	logger.Warnf("%s found on line %d in excluded region started on line %d, when processing %s.",
		start, lineno, startLineno, w.filename)
}

// applyExclusionRanges marks the model according to the two range
// predicates. A line exclusion takes the whole record out of
// reporting; a branch exclusion keeps the line count and only hides
// its branch and condition data. Line records attributed to one of
// the excluded functions are taken out even when their line is shared
// with another function, so only the excluded function's contribution
// disappears.
func applyExclusionRanges(filecov *coverage.FileCoverage, lineExcluded, branchExcluded predicate, excludedFns []*coverage.FunctionCoverage) {
	names := make(map[string]struct{}, len(excludedFns))
	for _, functioncov := range excludedFns {
		if functioncov.Name != "" {
			names[functioncov.Name] = struct{}{}
		}
	}

	for _, linecov := range filecov.SortedLines() {
		_, owned := names[linecov.FunctionName]
		switch {
		case lineExcluded(linecov.Lineno) || owned:
			linecov.Exclude()
		case branchExcluded(linecov.Lineno):
			linecov.ExcludeBranches()
		}
	}

	for _, key := range filecov.SortedFunctionKeys() {
		functioncov := filecov.Functions[key]
		for _, lineno := range functioncov.Linenos() {
			if lineExcluded(lineno) {
				functioncov.Count[lineno] = 0
				functioncov.Excluded[lineno] = true
			}
		}
	}

	for _, functioncov := range excludedFns {
		for _, lineno := range functioncov.Linenos() {
			functioncov.Count[lineno] = 0
		}
		functioncov.SetExcluded()
	}
}

// makeInAnyRange builds a predicate reporting whether a value falls in
// any of the inclusive ranges. Queries tend to arrive in ascending
// order, so the predicate keeps a hint into the sorted ranges and only
// restarts from the front when a query goes backwards.
func makeInAnyRange(ranges [][2]int) predicate {
	sorted := append([][2]int(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i][0] != sorted[j][0] {
			return sorted[i][0] < sorted[j][0]
		}
		return sorted[i][1] < sorted[j][1]
	})

	hintValue := 0
	hintIndex := 0
	return func(value int) bool {
		if value < hintValue {
			hintIndex = 0
		}
		hintValue = value

		for i := hintIndex; i < len(sorted); i++ {
			hintIndex = i
			if value < sorted[i][0] {
				return false
			}
			if value <= sorted[i][1] {
				return true
			}
		}
		hintIndex = len(sorted)
		return false
	}
}
