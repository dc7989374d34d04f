package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zjy-dev/gocovr/internal/coverage"
)

// SummaryFormatVersion identifies the summary document schema.
const SummaryFormatVersion = "1"

// metricCells carries every per-scope metric. Percentages are nil when
// nothing was measurable and serialize as JSON null, so consumers can
// tell "no data" from 0%.
type metricCells struct {
	LineTotal   int      `json:"line_total"`
	LineCovered int      `json:"line_covered"`
	LinePercent *float64 `json:"line_percent"`

	FunctionTotal   int      `json:"function_total"`
	FunctionCovered int      `json:"function_covered"`
	FunctionPercent *float64 `json:"function_percent"`

	BranchTotal   int      `json:"branch_total"`
	BranchCovered int      `json:"branch_covered"`
	BranchPercent *float64 `json:"branch_percent"`

	ConditionTotal   int      `json:"condition_total"`
	ConditionCovered int      `json:"condition_covered"`
	ConditionPercent *float64 `json:"condition_percent"`

	DecisionTotal       int      `json:"decision_total"`
	DecisionCovered     int      `json:"decision_covered"`
	DecisionUncheckable int      `json:"decision_uncheckable"`
	DecisionPercent     *float64 `json:"decision_percent"`

	CallTotal   int      `json:"call_total"`
	CallCovered int      `json:"call_covered"`
	CallPercent *float64 `json:"call_percent"`
}

type summaryRow struct {
	Filename string `json:"filename"`
	metricCells
}

type summaryDocument struct {
	FormatVersion string       `json:"format_version"`
	Files         []summaryRow `json:"files"`
	metricCells
}

// JSONSummaryWriter implements the Writer interface by saving per-file
// metrics plus aggregate totals as one JSON document.
type JSONSummaryWriter struct {
	path    string
	sortKey coverage.SortKey
	reverse bool
	pretty  bool
}

// NewJSONSummaryWriter creates a summary writer for the given output
// path. Rows are ordered by sortKey; ties always break by natural
// filename order.
func NewJSONSummaryWriter(path string, sortKey coverage.SortKey, reverse, pretty bool) *JSONSummaryWriter {
	return &JSONSummaryWriter{path: path, sortKey: sortKey, reverse: reverse, pretty: pretty}
}

// Write saves the summary of the container.
func (w *JSONSummaryWriter) Write(container *coverage.Container) error {
	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create summary directory: %w", err)
		}
	}

	doc := summaryDocument{
		FormatVersion: SummaryFormatVersion,
		Files:         []summaryRow{},
		metricCells:   cellsOf(container.Stats()),
	}
	for _, filename := range container.SortedFilenames(w.sortKey, w.reverse) {
		doc.Files = append(doc.Files, summaryRow{
			Filename:    filename,
			metricCells: cellsOf(container.Get(filename).Stats()),
		})
	}

	data, err := marshalSummary(doc, w.pretty)
	if err != nil {
		return fmt.Errorf("rendering summary: %w", err)
	}
	return os.WriteFile(w.path, data, 0644)
}

func marshalSummary(doc summaryDocument, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(doc, "", "  ")
	}
	return json.Marshal(doc)
}

func cellsOf(stats coverage.SummarizedStats) metricCells {
	return metricCells{
		LineTotal:   stats.Line.Total,
		LineCovered: stats.Line.Covered,
		LinePercent: stats.Line.Percent(),

		FunctionTotal:   stats.Function.Total,
		FunctionCovered: stats.Function.Covered,
		FunctionPercent: stats.Function.Percent(),

		BranchTotal:   stats.Branch.Total,
		BranchCovered: stats.Branch.Covered,
		BranchPercent: stats.Branch.Percent(),

		ConditionTotal:   stats.Condition.Total,
		ConditionCovered: stats.Condition.Covered,
		ConditionPercent: stats.Condition.Percent(),

		DecisionTotal:       stats.Decision.Total,
		DecisionCovered:     stats.Decision.Covered,
		DecisionUncheckable: stats.Decision.Uncheckable,
		DecisionPercent:     stats.Decision.Percent(),

		CallTotal:   stats.Call.Total,
		CallCovered: stats.Call.Covered,
		CallPercent: stats.Call.Percent(),
	}
}
