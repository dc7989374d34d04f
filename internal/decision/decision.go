// Package decision heuristically classifies source lines as
// control-flow decision points and derives outcome summaries from the
// branch data attached to them.
//
// The classifier is textual: it recognizes if, ternary, switch/case,
// while, do/while and for constructs on prepared source lines without
// parsing the language. Keyword hits inside string and character
// literals or comments are suppressed. For a simple two-way branch the
// true/false orientation follows the branch order reported by the
// tool, which can be inverted for some constructs; the counts
// themselves are exact.
package decision

import (
	"strings"

	"github.com/zjy-dev/gocovr/internal/coverage"
	"github.com/zjy-dev/gocovr/internal/logger"
)

// Analyze walks the source text of one measured file and attaches
// Decision values to its line records. lines is indexed by line number
// starting at one. The model is modified in place.
func Analyze(filecov *coverage.FileCoverage, lines []string) {
	logger.Debugf("Starting the decision analysis for %s", filecov.Filename)

	parser := newDecisionParser(filecov)
	for i, code := range lines {
		parser.parseLine(i+1, code)
	}

	logger.Debugf("Decision analysis for %s finished", filecov.Filename)
}

// decisionParser carries the scan state across source lines. A
// decision spread over several lines stays active until its brackets
// balance, then the first following measured line closes it.
type decisionParser struct {
	// byLine resolves a line number to its single coverage record.
	// Lines with several records (one per owning function) are mapped
	// to nil and treated like unmeasured lines.
	byLine map[int]*coverage.LineCoverage

	active       bool
	lastDecision *coverage.LineCoverage
	openParens   int
}

func newDecisionParser(filecov *coverage.FileCoverage) *decisionParser {
	byLine := make(map[int]*coverage.LineCoverage)
	for _, linecov := range filecov.Lines {
		if _, seen := byLine[linecov.Lineno]; seen {
			byLine[linecov.Lineno] = nil
		} else {
			byLine[linecov.Lineno] = linecov
		}
	}
	return &decisionParser{byLine: byLine}
}

func (p *decisionParser) parseLine(lineno int, code string) {
	linecov := p.byLine[lineno]

	if linecov == nil && !isSwitch(code) {
		return
	}

	if p.active {
		p.continueMultiline(lineno, code)
	}
	if p.active {
		return
	}

	if !isBranchStatement(code) && !isLoop(code) && !isTernary(code) {
		return
	}

	if linecov != nil && len(linecov.Branches) > 0 {
		compact := isLoop(code) || isOnelineBranch(code) || isTernary(code) ||
			(isClosedBranch(code) && len(linecov.Branches) == 2)
		if !compact {
			p.startMultiline(linecov, code)
			return
		}
		if len(linecov.Branches) == 2 {
			// A compact decision can only be derived from the two
			// branch counts directly.
			keys := linecov.SortedBranchKeys()
			linecov.Decision = coverage.DecisionConditional{
				CountTrue:  linecov.Branches[keys[0]].Count,
				CountFalse: linecov.Branches[keys[1]].Count,
			}
		} else {
			linecov.Decision = coverage.DecisionUncheckable{}
			logger.Debugf("Uncheckable decision at line %d", lineno)
		}
		return
	}

	if isSwitch(code) {
		// Case labels carry no branch data; the hit count of the case
		// body shows up on the next measured line before a break.
		maxLineno := lineno + 1
		for measured := range p.byLine {
			if measured > maxLineno {
				maxLineno = measured
			}
		}
		stopsAtBreak := strings.Contains(prepareDecisionString(code), " break ;")
		for nextLineno := lineno; nextLineno < maxLineno; nextLineno++ {
			if next := p.byLine[nextLineno]; next != nil {
				next.Decision = coverage.DecisionSwitch{Count: next.Count}
				break
			}
			if stopsAtBreak {
				break
			}
		}
	}
}

// startMultiline opens bracket tracking for a decision whose
// expression continues on later lines.
func (p *decisionParser) startMultiline(linecov *coverage.LineCoverage, code string) {
	p.active = true
	p.lastDecision = linecov
	p.openParens += parenDelta(code)
}

// continueMultiline consumes one more line of an open decision. Once
// the expression's parentheses balance, the current line's execution
// count is the true outcome and the remainder of the decision line's
// count is the false outcome.
func (p *decisionParser) continueMultiline(lineno int, code string) {
	linecov := p.byLine[lineno]
	var execCount int64
	if linecov != nil {
		execCount = linecov.Count
	}

	if p.openParens != 0 {
		p.openParens += parenDelta(code)
		return
	}

	deltaCount := p.lastDecision.Count - execCount
	if deltaCount >= 0 {
		p.lastDecision.Decision = coverage.DecisionConditional{
			CountTrue:  execCount,
			CountFalse: deltaCount,
		}
	} else {
		p.lastDecision.Decision = coverage.DecisionUncheckable{}
		logger.Debugf("Uncheckable decision at line %d. (Delta = %d)", lineno, deltaCount)
	}
	p.active = false
	p.openParens = 0
	p.lastDecision = nil
}
