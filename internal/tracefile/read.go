package tracefile

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sourcegraph/conc/iter"

	"github.com/zjy-dev/gocovr/internal/coverage"
	"github.com/zjy-dev/gocovr/internal/logger"
)

// Read parses one tracefile document. source names the document in
// diagnostics and becomes the provenance of entries that carry none.
func Read(data []byte, source string, opts coverage.MergeOptions) (*coverage.Container, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("tracefile %s: %w", source, err)
	}
	if doc.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("tracefile %s has format version %q, this build reads version %q",
			source, doc.FormatVersion, FormatVersion)
	}

	container := coverage.NewContainer()
	for _, entry := range doc.Files {
		fc, err := entry.toCoverage(source, opts)
		if err != nil {
			return nil, fmt.Errorf("tracefile %s: %w", source, err)
		}
		if err := container.Insert(fc, opts); err != nil {
			return nil, fmt.Errorf("tracefile %s: %w", source, err)
		}
	}
	return container, nil
}

// ReadFile parses the tracefile at path.
func ReadFile(path string, opts coverage.MergeOptions) (*coverage.Container, error) {
	logger.Debugf("Reading tracefile %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tracefile: %w", err)
	}
	return Read(data, path, opts)
}

// ReadAll loads several tracefiles in parallel and merges them into
// one container. Order of paths does not influence the result.
func ReadAll(paths []string, opts coverage.MergeOptions) (*coverage.Container, error) {
	containers, err := iter.MapErr(paths, func(path *string) (*coverage.Container, error) {
		return ReadFile(*path, opts)
	})
	if err != nil {
		return nil, err
	}

	merged := coverage.NewContainer()
	for _, container := range containers {
		if err := merged.Merge(container, opts); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

func (entry fileEntry) toCoverage(source string, opts coverage.MergeOptions) (*coverage.FileCoverage, error) {
	provenance := entry.Provenance
	if len(provenance) == 0 {
		provenance = []string{source}
	}
	fc := coverage.NewFileCoverage(entry.Path, provenance...)

	for _, fe := range entry.Functions {
		fn, err := coverage.NewFunctionCoverage(fe.Name, fe.DemangledName, fe.Lineno, fe.ExecutionCount, fe.BlocksPercent, fe.Start, fe.End)
		if err != nil {
			return nil, fmt.Errorf("file %s: %w", entry.Path, err)
		}
		if fe.Excluded {
			fn.SetExcluded()
		}
		if _, err := fc.InsertFunction(fn, opts); err != nil {
			return nil, fmt.Errorf("file %s: %w", entry.Path, err)
		}
	}

	for _, le := range entry.Lines {
		linecov, err := le.toCoverage()
		if err != nil {
			return nil, fmt.Errorf("file %s: %w", entry.Path, err)
		}
		if _, err := fc.InsertLine(linecov, opts); err != nil {
			return nil, fmt.Errorf("file %s: %w", entry.Path, err)
		}
	}
	return fc, nil
}

func (le lineEntry) toCoverage() (*coverage.LineCoverage, error) {
	linecov, err := coverage.NewLineCoverage(le.LineNumber, le.FunctionName, le.Count, le.MD5)
	if err != nil {
		return nil, err
	}
	linecov.BlockIDs = append([]int(nil), le.BlockIDs...)
	linecov.Excluded = le.Excluded

	for _, be := range le.Branches {
		branchcov, err := coverage.NewBranchCoverage(be.Branchno, be.SourceBlock, be.DestBlock, be.Count, be.Fallthrough, be.Throw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", le.LineNumber, err)
		}
		branchcov.Excluded = be.Excluded
		linecov.InsertBranch(branchcov)
	}

	for _, ce := range le.Conditions {
		conditioncov, err := coverage.NewConditionCoverage(ce.Conditionno, ce.Count, ce.Covered, ce.NotCoveredTrue, ce.NotCoveredFalse)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", le.LineNumber, err)
		}
		conditioncov.Excluded = ce.Excluded
		linecov.AddCondition(conditioncov)
	}

	for _, ce := range le.Calls {
		callcov, err := coverage.NewCallCoverage(ce.Callno, ce.SourceBlock, ce.DestBlock, ce.Count)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", le.LineNumber, err)
		}
		callcov.Excluded = ce.Excluded
		linecov.InsertCall(callcov)
	}

	if le.Decision != nil {
		decision, err := le.Decision.toDecision()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", le.LineNumber, err)
		}
		linecov.Decision = decision
	}
	return linecov, nil
}

func (de decisionEntry) toDecision() (coverage.Decision, error) {
	switch de.Type {
	case "uncheckable":
		return coverage.DecisionUncheckable{}, nil
	case "conditional":
		return coverage.DecisionConditional{CountTrue: de.CountTrue, CountFalse: de.CountFalse}, nil
	case "switch":
		return coverage.DecisionSwitch{Count: de.Count}, nil
	default:
		return nil, fmt.Errorf("unknown decision type %q", de.Type)
	}
}
