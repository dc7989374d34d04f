package exclusions

import (
	"sort"

	"github.com/zjy-dev/gocovr/internal/coverage"
	"github.com/zjy-dev/gocovr/internal/logger"
)

// functionsByLine indexes the file's functions by definition line.
// Only functions with a reported start position participate; the text
// format does not carry positions, so the map stays empty for data
// parsed from it. Functions sharing a line are ordered by start
// column.
func functionsByLine(filecov *coverage.FileCoverage) map[int][]*coverage.FunctionCoverage {
	byLine := make(map[int][]*coverage.FunctionCoverage)
	for _, key := range filecov.SortedFunctionKeys() {
		functioncov := filecov.Functions[key]
		for lineno := range functioncov.Start {
			byLine[lineno] = append(byLine[lineno], functioncov)
		}
	}
	for lineno, fns := range byLine {
		sort.Slice(fns, func(i, j int) bool {
			a, b := fns[i].Start[lineno], fns[j].Start[lineno]
			if a.Column != b.Column {
				return a.Column < b.Column
			}
			return fns[i].Key() < fns[j].Key()
		})
	}
	return byLine
}

// functionExcludeRanges resolves a function exclusion requested at the
// given position into line ranges covering the function body, minus
// the spans of other functions nested inside it or sharing its lines.
// The matched function is returned alongside the ranges so the caller
// can strip its per-function contribution from shared lines; both are
// nil when no function definition encloses the position.
func functionExcludeRanges(filename string, lineno, columnno int, byLine map[int][]*coverage.FunctionCoverage) ([][2]int, *coverage.FunctionCoverage) {
	if len(byLine) == 0 {
		warnFunctionMarkerNotSupported(filename, lineno, columnno)
		return nil, nil
	}

	var (
		matched   *coverage.FunctionCoverage
		rest      []*coverage.FunctionCoverage
		linenoEnd int
	)
	candidates := byLine[lineno]
	for i, functioncov := range candidates {
		start, end := functioncov.Start[lineno], functioncov.End[lineno]
		if columnno > start.Column && (lineno < end.Line || columnno < end.Column) {
			matched = functioncov
			rest = candidates[i+1:]
			linenoEnd = end.Line
			break
		}
	}
	if matched == nil {
		warnFunctionMarkerNotAtFunctionLine(filename, lineno, columnno)
		return nil, nil
	}

	// The remaining functions on the marker line and functions defined
	// on later lines of the body stay included.
	var includedRanges [][2]int
	for _, functioncov := range rest {
		includedRanges = append(includedRanges, [2]int{lineno, functioncov.End[lineno].Line + 1})
	}
	for functionLineno := lineno + 1; functionLineno < linenoEnd; functionLineno++ {
		for _, functioncov := range byLine[functionLineno] {
			includedRanges = append(includedRanges,
				[2]int{functioncov.Start[functionLineno].Line, functioncov.End[functionLineno].Line})
		}
	}

	var excludeRanges [][2]int
	if len(includedRanges) > 0 {
		lastIncludeEnd := lineno
		for _, included := range includedRanges {
			excludeRanges = append(excludeRanges, [2]int{lastIncludeEnd, included[0] - 1})
			lastIncludeEnd = included[1] + 1
		}
		excludeRanges = append(excludeRanges, [2]int{lastIncludeEnd, linenoEnd})
	} else {
		excludeRanges = append(excludeRanges, [2]int{lineno, linenoEnd})
	}
	return excludeRanges, matched
}

func warnFunctionExcludeNotSupported() {
	logger.Warnf("Function exclusion not supported for this compiler.")
}

func warnFunctionMarkerNotSupported(filename string, lineno, columnno int) {
	logger.Warnf("Function exclude marker found on line %d:%d but not supported for this compiler, when processing %s.",
		lineno, columnno, filename)
}

func warnFunctionMarkerNotAtFunctionLine(filename string, lineno, columnno int) {
	logger.Warnf("Function exclude marker found on line %d:%d but no function definition found, when processing %s.",
		lineno, columnno, filename)
}
