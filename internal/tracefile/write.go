package tracefile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/zjy-dev/gocovr/internal/coverage"
)

// Write serializes the container. Files, entities and provenance are
// emitted in sorted order so equal containers produce byte-equal
// documents.
func Write(w io.Writer, container *coverage.Container, pretty bool) error {
	doc := document{FormatVersion: FormatVersion, Files: []fileEntry{}}
	for _, filename := range container.SortedFilenames(coverage.SortFilename, false) {
		doc.Files = append(doc.Files, fileEntryOf(container.Get(filename)))
	}

	encoder := json.NewEncoder(w)
	if pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(doc)
}

// WriteFile serializes the container to path.
func WriteFile(path string, container *coverage.Container, pretty bool) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating tracefile: %w", err)
	}
	if err := Write(file, container, pretty); err != nil {
		file.Close()
		return fmt.Errorf("writing tracefile %s: %w", path, err)
	}
	return file.Close()
}

func fileEntryOf(fc *coverage.FileCoverage) fileEntry {
	entry := fileEntry{
		Path:       fc.Filename,
		Provenance: fc.SortedDataSources(),
		Functions:  []functionEntry{},
		Lines:      []lineEntry{},
	}

	for _, name := range fc.SortedFunctionKeys() {
		fn := fc.Functions[name]
		for _, lineno := range fn.Linenos() {
			entry.Functions = append(entry.Functions, functionEntry{
				Name:           fn.Name,
				DemangledName:  fn.DemangledName,
				Lineno:         lineno,
				ExecutionCount: fn.Count[lineno],
				BlocksPercent:  fn.Blocks[lineno],
				Excluded:       fn.Excluded[lineno],
				Start:          positionAt(fn.Start, lineno),
				End:            positionAt(fn.End, lineno),
			})
		}
	}

	for _, linecov := range fc.SortedLines() {
		entry.Lines = append(entry.Lines, lineEntryOf(linecov))
	}
	return entry
}

func lineEntryOf(linecov *coverage.LineCoverage) lineEntry {
	entry := lineEntry{
		LineNumber:   linecov.Lineno,
		FunctionName: linecov.FunctionName,
		Count:        linecov.Count,
		MD5:          linecov.MD5,
		BlockIDs:     linecov.BlockIDs,
		Excluded:     linecov.Excluded,
		Decision:     decisionEntryOf(linecov.Decision),
	}

	for _, key := range linecov.SortedBranchKeys() {
		branchcov := linecov.Branches[key]
		entry.Branches = append(entry.Branches, branchEntry{
			Branchno:    branchcov.Branchno,
			SourceBlock: branchcov.SourceBlock,
			DestBlock:   branchcov.DestBlock,
			Count:       branchcov.Count,
			Fallthrough: branchcov.Fallthrough,
			Throw:       branchcov.Throw,
			Excluded:    branchcov.Excluded,
		})
	}

	for _, key := range linecov.SortedConditionKeys() {
		conditioncov := linecov.Conditions[key]
		entry.Conditions = append(entry.Conditions, conditionEntry{
			Conditionno:     conditioncov.Conditionno,
			Count:           conditioncov.Count,
			Covered:         conditioncov.Covered,
			NotCoveredTrue:  conditioncov.NotCoveredTrue,
			NotCoveredFalse: conditioncov.NotCoveredFalse,
			Excluded:        conditioncov.Excluded,
		})
	}

	for _, key := range linecov.SortedCallKeys() {
		callcov := linecov.Calls[key]
		entry.Calls = append(entry.Calls, callEntry{
			Callno:      callcov.Callno,
			SourceBlock: callcov.SourceBlock,
			DestBlock:   callcov.DestBlock,
			Count:       callcov.Count,
			Excluded:    callcov.Excluded,
		})
	}
	return entry
}

func decisionEntryOf(decision coverage.Decision) *decisionEntry {
	switch d := decision.(type) {
	case nil:
		return nil
	case coverage.DecisionUncheckable:
		return &decisionEntry{Type: "uncheckable"}
	case coverage.DecisionConditional:
		return &decisionEntry{Type: "conditional", CountTrue: d.CountTrue, CountFalse: d.CountFalse}
	case coverage.DecisionSwitch:
		return &decisionEntry{Type: "switch", Count: d.Count}
	default:
		return nil
	}
}

func positionAt(positions map[int]coverage.Position, lineno int) *coverage.Position {
	if position, ok := positions[lineno]; ok {
		return &position
	}
	return nil
}
