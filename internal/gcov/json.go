package gcov

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/tidwall/gjson"

	"github.com/zjy-dev/gocovr/internal/coverage"
	"github.com/zjy-dev/gocovr/internal/logger"
	"github.com/zjy-dev/gocovr/internal/sourceio"
)

// GcovJSONVersion is the only intermediate-format version this parser
// understands. The file can be produced externally, so the version is
// checked rather than assumed.
const GcovJSONVersion = "2"

// ParsedFile pairs one file's fragment with the source text the parser
// read to compute checksums. Later passes (exclusion markers, decision
// analysis) reuse the text instead of reading the file again.
type ParsedFile struct {
	Coverage    *coverage.FileCoverage
	SourceLines []string
}

// ParseJSON extracts coverage fragments from gcov's JSON intermediate
// format. One document describes many source files; keep filters them
// by resolved path (nil keeps all). Unlike the text format the JSON
// format carries no source text, so the measured files are read from
// disk.
func ParseJSON(data []byte, dataSource string, keep func(string) bool, opts Options, diag *Diagnostics) ([]ParsedFile, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("gcov JSON output %s is not valid JSON", dataSource)
	}
	root := gjson.ParseBytes(data)

	if version := root.Get("format_version").String(); version != GcovJSONVersion {
		return nil, fmt.Errorf("got wrong JSON format version %s, expected %s", version, GcovJSONVersion)
	}
	workingDir := root.Get("current_working_directory").String()

	var parsed []ParsedFile
	for _, fileNode := range root.Get("files").Array() {
		reportedName := fileNode.Get("file").String()
		filename := resolveReportedPath(workingDir, reportedName)
		logger.Debugf("Parsing coverage data for file %s", filename)

		if keep != nil && !keep(filename) {
			continue
		}

		sourceLines, err := readMeasuredSource(filename, reportedName, fileNode, opts)
		if err != nil {
			return nil, err
		}

		filecov, err := parseFileNode(fileNode, filename, dataSource, sourceLines, opts, diag)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, ParsedFile{Coverage: filecov, SourceLines: sourceLines})
	}
	return parsed, nil
}

// resolveReportedPath anchors the tool's reported file path at its
// recorded working directory.
func resolveReportedPath(workingDir, reportedName string) string {
	if filepath.IsAbs(reportedName) {
		return filepath.Clean(reportedName)
	}
	return filepath.Join(workingDir, reportedName)
}

// readMeasuredSource loads the source text for checksums and later
// analysis passes. Standard input has no text; a file shorter than its
// coverage data is padded so every measured line has a row.
func readMeasuredSource(filename, reportedName string, fileNode gjson.Result, opts Options) ([]string, error) {
	lineNodes := fileNode.Get("lines").Array()
	maxMeasuredLine := 1
	if len(lineNodes) > 0 {
		maxMeasuredLine = int(lineNodes[len(lineNodes)-1].Get("line_number").Int())
	}

	if reportedName == "<stdin>" {
		message := fmt.Sprintf("Got sourcefile %s, using empty lines.", reportedName)
		logger.Infof("%s", message)
		sourceLines := make([]string, maxMeasuredLine)
		sourceLines[0] = fmt.Sprintf("/* %s */", message)
		return sourceLines, nil
	}

	sourceLines, err := sourceio.ReadLines(filename, opts.SourceEncoding)
	if err != nil {
		return nil, err
	}
	if len(sourceLines) < maxMeasuredLine {
		logger.Warnf("File %s has %d line(s) but coverage data has %d line(s).",
			filename, len(sourceLines), maxMeasuredLine)
		for len(sourceLines) < maxMeasuredLine {
			sourceLines = append(sourceLines, "/*EOF*/")
		}
	}
	return sourceLines, nil
}

func parseFileNode(fileNode gjson.Result, filename, dataSource string, sourceLines []string, opts Options, diag *Diagnostics) (*coverage.FileCoverage, error) {
	validator := newHitsValidator(opts, diag)
	filecov := coverage.NewFileCoverage(filename, dataSource)

	for _, lineNode := range fileNode.Get("lines").Array() {
		lineno := int(lineNode.Get("line_number").Int())
		rawLine := sourceLineAt(sourceLines, lineno)

		count, err := validator.check(lineNode.Get("count").Int(), rawLine)
		if err != nil {
			return nil, err
		}
		linecov, err := coverage.NewLineCoverage(lineno, lineNode.Get("function_name").String(), count, md5Hex(rawLine))
		if err != nil {
			return nil, err
		}
		if blockIDs := lineNode.Get("block_ids"); blockIDs.Exists() {
			ids := blockIDs.Array()
			linecov.BlockIDs = make([]int, 0, len(ids))
			for _, id := range ids {
				linecov.BlockIDs = append(linecov.BlockIDs, int(id.Int()))
			}
		}
		inserted, err := filecov.InsertLine(linecov, coverage.DefaultMergeOptions())
		if err != nil {
			return nil, err
		}

		for index, branchNode := range lineNode.Get("branches").Array() {
			hits, err := validator.check(branchNode.Get("count").Int(), rawLine)
			if err != nil {
				return nil, err
			}
			branchcov, err := coverage.NewBranchCoverage(
				index,
				blockIDOrUnknown(branchNode.Get("source_block_id")),
				blockIDOrUnknown(branchNode.Get("destination_block_id")),
				hits,
				branchNode.Get("fallthrough").Bool(),
				branchNode.Get("throw").Bool())
			if err != nil {
				return nil, err
			}
			inserted.InsertBranch(branchcov)
		}

		for index, conditionNode := range lineNode.Get("conditions").Array() {
			count, err := validator.check(conditionNode.Get("count").Int(), rawLine)
			if err != nil {
				return nil, err
			}
			conditioncov, err := coverage.NewConditionCoverage(
				index,
				count,
				conditionNode.Get("covered").Int(),
				intSlice(conditionNode.Get("not_covered_true")),
				intSlice(conditionNode.Get("not_covered_false")))
			if err != nil {
				return nil, err
			}
			inserted.AddCondition(conditioncov)
		}
	}

	for _, functionNode := range fileNode.Get("functions").Array() {
		startLine := int(functionNode.Get("start_line").Int())
		start := coverage.Position{Line: startLine, Column: int(functionNode.Get("start_column").Int())}
		end := coverage.Position{Line: int(functionNode.Get("end_line").Int()), Column: int(functionNode.Get("end_column").Int())}

		functioncov, err := coverage.NewFunctionCoverage(
			functionNode.Get("name").String(),
			functionNode.Get("demangled_name").String(),
			startLine,
			functionNode.Get("execution_count").Int(),
			blocksPercent(functionNode.Get("blocks_executed").Float(), functionNode.Get("blocks").Float()),
			&start, &end)
		if err != nil {
			return nil, err
		}
		if _, err := filecov.InsertFunction(functioncov, coverage.MaxLineMergeOptions()); err != nil {
			return nil, err
		}
	}

	validator.logTotals()
	return filecov, nil
}

// blocksPercent reports the covered-block ratio, with 100 reserved for
// complete coverage and anything less capped at 99.9.
func blocksPercent(executed, total float64) float64 {
	if executed == total {
		return 100.0
	}
	percent := math.Round(executed/total*1000) / 10
	if percent > 99.9 {
		percent = 99.9
	}
	return percent
}

func blockIDOrUnknown(node gjson.Result) int {
	if !node.Exists() {
		return coverage.UnknownBlock
	}
	return int(node.Int())
}

func intSlice(node gjson.Result) []int {
	items := node.Array()
	if len(items) == 0 {
		return nil
	}
	values := make([]int, 0, len(items))
	for _, item := range items {
		values = append(values, int(item.Int()))
	}
	return values
}

func sourceLineAt(sourceLines []string, lineno int) string {
	if lineno < 1 || lineno > len(sourceLines) {
		return ""
	}
	return sourceLines[lineno-1]
}
