package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/gocovr/internal/coverage"
)

func insertLine(t *testing.T, filecov *coverage.FileCoverage, lineno int, functionName string, count int64) *coverage.LineCoverage {
	t.Helper()

	linecov, err := coverage.NewLineCoverage(lineno, functionName, count, "")
	require.NoError(t, err)
	inserted, err := filecov.InsertLine(linecov, coverage.DefaultMergeOptions())
	require.NoError(t, err)
	return inserted
}

func insertBranches(t *testing.T, linecov *coverage.LineCoverage, counts ...int64) {
	t.Helper()

	for branchno, count := range counts {
		branchcov, err := coverage.NewBranchCoverage(branchno, coverage.UnknownBlock, coverage.UnknownBlock, count, false, false)
		require.NoError(t, err)
		linecov.InsertBranch(branchcov)
	}
}

func TestPrepareDecisionString(t *testing.T) {
	t.Run("should pad separators and collapse whitespace", func(t *testing.T) {
		prepared := prepareDecisionString("   a++;if  (a > 5)  { // check for something ")
		assert.Equal(t, " a++ ; if ( a > 5 ) {", prepared)
	})

	t.Run("should blank comments without joining tokens", func(t *testing.T) {
		prepared := prepareDecisionString("def/* Comment */ault: /* xxx */")
		assert.Equal(t, " def ault :", prepared)
	})

	t.Run("should blank string and character literals", func(t *testing.T) {
		assert.Equal(t, " printf ( ) ;", prepareDecisionString(`printf("if (x) { }");`))
		assert.Equal(t, " c = ;", prepareDecisionString(`c = '{';`))
	})

	t.Run("should blank literals left open at the end of the line", func(t *testing.T) {
		assert.Equal(t, " s =", prepareDecisionString(`s = "if (unterminated`))
	})
}

func TestClassifiers(t *testing.T) {
	t.Run("should recognize branch statements", func(t *testing.T) {
		assert.True(t, isBranchStatement("if(a>5){a = 0;}"))
		assert.True(t, isBranchStatement("} else if (x) {"))
		assert.True(t, isBranchStatement("case 5:"))
		assert.True(t, isBranchStatement("default:"))
		assert.False(t, isBranchStatement("notify(x);"))
		assert.False(t, isBranchStatement("endif(x);"))
	})

	t.Run("should recognize loops", func(t *testing.T) {
		assert.True(t, isLoop("while (a>5) {"))
		assert.True(t, isLoop("} while (x);"))
		assert.True(t, isLoop("for (int i = 0; i < n; i++) {"))
		assert.False(t, isLoop("forty(2);"))
	})

	t.Run("should recognize one line branches", func(t *testing.T) {
		assert.True(t, isOnelineBranch("if(a>5){a = 0;}"))
		assert.False(t, isOnelineBranch("if(a>5){"))
	})

	t.Run("should recognize closed branches", func(t *testing.T) {
		assert.True(t, isClosedBranch("if(a>5){ // A comment"))
		assert.False(t, isClosedBranch("while (a>5"))
		assert.False(t, isClosedBranch("if(a>5){a = 0;}"))
	})

	t.Run("should recognize ternary expressions", func(t *testing.T) {
		assert.True(t, isTernary("y = x > 3 ? a : b;"))
		assert.True(t, isTernary("return flag ? \"y\" : \"n\";"))
		assert.False(t, isTernary("std::vector<int>::iterator it;"))
		assert.False(t, isTernary("label: x = y;"))
	})

	t.Run("should not match keywords inside literals", func(t *testing.T) {
		assert.False(t, isBranchStatement(`log("checking; if (x) run");`))
		assert.False(t, isLoop(`log("busy while (locked)");`))
		assert.False(t, isSwitch(`log("default: none");`))
	})

	t.Run("should ignore literals when counting parentheses", func(t *testing.T) {
		assert.Equal(t, 0, parenDelta(`f("((((");`))
		assert.Equal(t, 0, parenDelta(`put('(');`))
		assert.Equal(t, 1, parenDelta("if (x > 0 &&"))
		assert.Equal(t, -1, parenDelta("    y < 5) {"))
	})
}

func TestAnalyze(t *testing.T) {
	t.Run("should derive a conditional from a one line branch", func(t *testing.T) {
		filecov := coverage.NewFileCoverage("oneline.cpp")
		linecov := insertLine(t, filecov, 2, "", 3)
		insertBranches(t, linecov, 2, 1)

		Analyze(filecov, []string{
			"int run(int a) {",
			"  if (a > 5) { a = 0; }",
			"}",
		})

		assert.Equal(t, coverage.DecisionConditional{CountTrue: 2, CountFalse: 1}, linecov.Decision)
	})

	t.Run("should derive a conditional from a loop", func(t *testing.T) {
		filecov := coverage.NewFileCoverage("loop.cpp")
		linecov := insertLine(t, filecov, 1, "", 2)
		insertBranches(t, linecov, 1, 1)

		Analyze(filecov, []string{"} while (count < 3);"})

		assert.Equal(t, coverage.DecisionConditional{CountTrue: 1, CountFalse: 1}, linecov.Decision)
	})

	t.Run("should mark loops with extra branches as uncheckable", func(t *testing.T) {
		filecov := coverage.NewFileCoverage("compound.cpp")
		linecov := insertLine(t, filecov, 1, "", 4)
		insertBranches(t, linecov, 2, 1, 1)

		Analyze(filecov, []string{"while (a && b) {"})

		assert.Equal(t, coverage.DecisionUncheckable{}, linecov.Decision)
	})

	t.Run("should track a decision across continuation lines", func(t *testing.T) {
		filecov := coverage.NewFileCoverage("multiline.cpp")
		condition := insertLine(t, filecov, 1, "", 5)
		insertBranches(t, condition, 3, 2, 1, 1)
		continuation := insertLine(t, filecov, 2, "", 5)
		body := insertLine(t, filecov, 3, "", 3)

		Analyze(filecov, []string{
			"if (x > 0 &&",
			"    y < 5) {",
			"  body();",
			"}",
		})

		assert.Equal(t, coverage.DecisionConditional{CountTrue: 3, CountFalse: 2}, condition.Decision)
		assert.Nil(t, continuation.Decision)
		assert.Nil(t, body.Decision)
	})

	t.Run("should mark impossible execution deltas as uncheckable", func(t *testing.T) {
		filecov := coverage.NewFileCoverage("delta.cpp")
		condition := insertLine(t, filecov, 1, "", 2)
		insertBranches(t, condition, 1, 1, 0, 0)
		insertLine(t, filecov, 2, "", 2)
		insertLine(t, filecov, 3, "", 5)

		Analyze(filecov, []string{
			"if (p &&",
			"    q) {",
			"  run();",
		})

		assert.Equal(t, coverage.DecisionUncheckable{}, condition.Decision)
	})

	t.Run("should attach switch decisions to the first measured case line", func(t *testing.T) {
		filecov := coverage.NewFileCoverage("switch.cpp")
		dispatch := insertLine(t, filecov, 1, "", 4)
		handler := insertLine(t, filecov, 3, "", 4)
		breakLine := insertLine(t, filecov, 4, "", 4)
		closer := insertLine(t, filecov, 6, "", 4)

		Analyze(filecov, []string{
			"switch (v) {",
			"case 1:",
			"  handle();",
			"  break;",
			"case 2: break;",
			"}",
		})

		assert.Equal(t, coverage.DecisionSwitch{Count: 4}, handler.Decision)
		assert.Nil(t, dispatch.Decision)
		assert.Nil(t, breakLine.Decision)
		assert.Nil(t, closer.Decision)
	})

	t.Run("should attach switch decisions to the default label body", func(t *testing.T) {
		filecov := coverage.NewFileCoverage("default.cpp")
		insertLine(t, filecov, 1, "", 2)
		fallback := insertLine(t, filecov, 3, "", 0)
		insertLine(t, filecov, 4, "", 2)

		Analyze(filecov, []string{
			"switch (v) {",
			"default:",
			"  fallback();",
			"}",
		})

		assert.Equal(t, coverage.DecisionSwitch{Count: 0}, fallback.Decision)
	})

	t.Run("should derive a conditional from a ternary expression", func(t *testing.T) {
		filecov := coverage.NewFileCoverage("ternary.cpp")
		linecov := insertLine(t, filecov, 1, "", 3)
		insertBranches(t, linecov, 2, 1)

		Analyze(filecov, []string{"y = x > 3 ? a : b;"})

		assert.Equal(t, coverage.DecisionConditional{CountTrue: 2, CountFalse: 1}, linecov.Decision)
	})

	t.Run("should mark ternaries with extra branches as uncheckable", func(t *testing.T) {
		filecov := coverage.NewFileCoverage("nested-ternary.cpp")
		linecov := insertLine(t, filecov, 1, "", 3)
		insertBranches(t, linecov, 2, 1, 1, 0)

		Analyze(filecov, []string{"y = (a ? b : c) ? d : e;"})

		assert.Equal(t, coverage.DecisionUncheckable{}, linecov.Decision)
	})

	t.Run("should ignore decision keywords inside string literals", func(t *testing.T) {
		filecov := coverage.NewFileCoverage("literals.cpp")
		logged := insertLine(t, filecov, 1, "", 2)
		insertBranches(t, logged, 1, 1)
		real := insertLine(t, filecov, 2, "", 2)
		insertBranches(t, real, 1, 1)

		Analyze(filecov, []string{
			`log("no branch; if (x) taken");`,
			"if (x) { use(); }",
		})

		assert.Nil(t, logged.Decision)
		assert.Equal(t, coverage.DecisionConditional{CountTrue: 1, CountFalse: 1}, real.Decision)
	})

	t.Run("should skip lines measured for several functions", func(t *testing.T) {
		filecov := coverage.NewFileCoverage("ambiguous.cpp")
		first := insertLine(t, filecov, 2, "_Z1fv", 2)
		insertBranches(t, first, 1, 1)
		second := insertLine(t, filecov, 2, "_Z1gv", 1)

		Analyze(filecov, []string{
			"int x;",
			"if (shared()) { a(); }",
		})

		assert.Nil(t, first.Decision)
		assert.Nil(t, second.Decision)
	})
}
