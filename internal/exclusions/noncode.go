package exclusions

import (
	"regexp"
	"strings"

	"github.com/zjy-dev/gocovr/internal/coverage"
	"github.com/zjy-dev/gocovr/internal/logger"
)

var (
	cxxCommentRx = regexp.MustCompile(`//.*`)
	cCommentRx   = regexp.MustCompile(`/\*.*?\*/`)
)

// removeNoncodeLines drops uncovered line records whose source text is
// only a brace or an else keyword. gcov attributes such lines to the
// surrounding block, which pollutes line totals with entries no test
// run could ever change.
func removeNoncodeLines(filecov *coverage.FileCoverage, lines []string) {
	for _, linecov := range filecov.SortedLines() {
		if linecov.Lineno > len(lines) {
			continue
		}
		if linecov.Count == 0 && isNonCode(lines[linecov.Lineno-1]) {
			logger.Debugf("%s Removing line detected as non code", linecov.Location())
			filecov.RemoveLine(linecov)
		}
	}
}

// removeUnreachableBranches clears branch records on lines that hold
// nothing but braces once comments are stripped. Branches there belong
// to compiler-generated cleanup code.
func removeUnreachableBranches(filecov *coverage.FileCoverage, lines []string) {
	for _, linecov := range filecov.SortedLines() {
		if !linecov.HasReportableBranches() {
			continue
		}
		if linecov.Lineno > len(lines) || lineCanContainBranches(lines[linecov.Lineno-1]) {
			continue
		}
		logger.Debugf("%s Removing unreachable branch detected as compiler-generated code", linecov.Location())
		linecov.ClearBranches()
	}
}

func stripComments(code string) string {
	code = cxxCommentRx.ReplaceAllString(code, "")
	return cCommentRx.ReplaceAllString(code, "")
}

func isNonCode(code string) bool {
	code = strings.TrimSpace(stripComments(code))
	return code == "" || code == "{" || code == "}" || code == "else"
}

func lineCanContainBranches(code string) bool {
	code = strings.ReplaceAll(strings.TrimSpace(stripComments(code)), " ", "")
	switch code {
	case "", "{", "}", "{}":
		return false
	}
	return true
}
