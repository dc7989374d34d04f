package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/zjy-dev/gocovr/internal/coverage"
)

func insertFileWithLines(t *testing.T, container *coverage.Container, name string, covered, uncovered int) {
	t.Helper()
	opts := coverage.DefaultMergeOptions()
	fc := coverage.NewFileCoverage(name)

	lineno := 1
	for i := 0; i < covered; i++ {
		linecov, err := coverage.NewLineCoverage(lineno, "", 1, "")
		require.NoError(t, err)
		_, err = fc.InsertLine(linecov, opts)
		require.NoError(t, err)
		lineno++
	}
	for i := 0; i < uncovered; i++ {
		linecov, err := coverage.NewLineCoverage(lineno, "", 0, "")
		require.NoError(t, err)
		_, err = fc.InsertLine(linecov, opts)
		require.NoError(t, err)
		lineno++
	}
	require.NoError(t, container.Insert(fc, opts))
}

func writeSummary(t *testing.T, container *coverage.Container, sortKey coverage.SortKey, reverse, pretty bool) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "summary.json")
	require.NoError(t, NewJSONSummaryWriter(path, sortKey, reverse, pretty).Write(container))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func rowFilenames(data []byte) []string {
	var filenames []string
	for _, result := range gjson.GetBytes(data, "files.#.filename").Array() {
		filenames = append(filenames, result.String())
	}
	return filenames
}

func TestJSONSummaryWriter(t *testing.T) {
	t.Run("should write one row per file in natural name order", func(t *testing.T) {
		container := coverage.NewContainer()
		insertFileWithLines(t, container, "file10.cpp", 1, 0)
		insertFileWithLines(t, container, "file2.cpp", 1, 0)
		insertFileWithLines(t, container, "alpha.cpp", 1, 0)

		data := writeSummary(t, container, coverage.SortFilename, false, false)
		assert.Equal(t, []string{"alpha.cpp", "file2.cpp", "file10.cpp"}, rowFilenames(data))
		assert.Equal(t, SummaryFormatVersion, gjson.GetBytes(data, "format_version").String())
	})

	t.Run("should order rows by uncovered lines on request", func(t *testing.T) {
		container := coverage.NewContainer()
		insertFileWithLines(t, container, "a.cpp", 2, 1)
		insertFileWithLines(t, container, "b.cpp", 0, 3)
		insertFileWithLines(t, container, "c.cpp", 2, 0)

		data := writeSummary(t, container, coverage.SortUncoveredNumber, false, false)
		assert.Equal(t, []string{"c.cpp", "a.cpp", "b.cpp"}, rowFilenames(data))

		data = writeSummary(t, container, coverage.SortUncoveredNumber, true, false)
		assert.Equal(t, []string{"b.cpp", "a.cpp", "c.cpp"}, rowFilenames(data))
	})

	t.Run("should apply the shared percentage contract and sum totals", func(t *testing.T) {
		container := coverage.NewContainer()
		insertFileWithLines(t, container, "empty.cpp", 0, 0)
		insertFileWithLines(t, container, "full.cpp", 4, 0)
		insertFileWithLines(t, container, "partial.cpp", 2, 1)

		data := writeSummary(t, container, coverage.SortFilename, false, false)
		assert.Equal(t, gjson.Null, gjson.GetBytes(data, "files.0.line_percent").Type)
		assert.Equal(t, 100.0, gjson.GetBytes(data, "files.1.line_percent").Float())
		assert.Equal(t, 66.7, gjson.GetBytes(data, "files.2.line_percent").Float())

		assert.Equal(t, int64(7), gjson.GetBytes(data, "line_total").Int())
		assert.Equal(t, int64(6), gjson.GetBytes(data, "line_covered").Int())
		assert.Equal(t, 85.7, gjson.GetBytes(data, "line_percent").Float())
	})

	t.Run("should create missing output directories", func(t *testing.T) {
		container := coverage.NewContainer()
		insertFileWithLines(t, container, "a.cpp", 1, 0)

		path := filepath.Join(t.TempDir(), "nested", "reports", "summary.json")
		require.NoError(t, NewJSONSummaryWriter(path, coverage.SortFilename, false, false).Write(container))
		assert.FileExists(t, path)
	})

	t.Run("should pretty print on request", func(t *testing.T) {
		container := coverage.NewContainer()
		insertFileWithLines(t, container, "a.cpp", 1, 0)

		data := writeSummary(t, container, coverage.SortFilename, false, true)
		assert.Contains(t, string(data), "\n  \"format_version\"")
	})
}

func TestPrintSummary(t *testing.T) {
	t.Run("should print the three core scopes", func(t *testing.T) {
		container := coverage.NewContainer()
		insertFileWithLines(t, container, "a.cpp", 2, 1)

		var buf bytes.Buffer
		require.NoError(t, PrintSummary(&buf, container))
		assert.Equal(t,
			"lines: 66.7% (2 out of 3)\nfunctions: 0.0% (0 out of 0)\nbranches: 0.0% (0 out of 0)\n",
			buf.String())
	})

	t.Run("should print optional scopes only when measured", func(t *testing.T) {
		opts := coverage.DefaultMergeOptions()
		fc := coverage.NewFileCoverage("a.cpp")
		linecov, err := coverage.NewLineCoverage(1, "", 1, "")
		require.NoError(t, err)

		branch, err := coverage.NewBranchCoverage(0, coverage.UnknownBlock, coverage.UnknownBlock, 1, false, false)
		require.NoError(t, err)
		linecov.InsertBranch(branch)
		branch, err = coverage.NewBranchCoverage(1, coverage.UnknownBlock, coverage.UnknownBlock, 0, false, false)
		require.NoError(t, err)
		linecov.InsertBranch(branch)

		condition, err := coverage.NewConditionCoverage(0, 4, 2, []int{0}, []int{1})
		require.NoError(t, err)
		linecov.AddCondition(condition)

		call, err := coverage.NewCallCoverage(0, coverage.UnknownBlock, 2, 1)
		require.NoError(t, err)
		linecov.InsertCall(call)

		linecov.Decision = coverage.DecisionConditional{CountTrue: 1, CountFalse: 0}

		_, err = fc.InsertLine(linecov, opts)
		require.NoError(t, err)
		container := coverage.NewContainer()
		require.NoError(t, container.Insert(fc, opts))

		var buf bytes.Buffer
		require.NoError(t, PrintSummary(&buf, container))
		assert.Equal(t,
			"lines: 100.0% (1 out of 1)\n"+
				"functions: 0.0% (0 out of 0)\n"+
				"branches: 50.0% (1 out of 2)\n"+
				"conditions: 50.0% (2 out of 4)\n"+
				"decisions: 50.0% (1 out of 2, 0 uncheckable)\n"+
				"calls: 100.0% (1 out of 1)\n",
			buf.String())
	})
}
