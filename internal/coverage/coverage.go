// Package coverage holds the canonical coverage data model: per-file
// line, branch, condition, call, function and decision records, the
// merge rules that fold fragments from many gcov invocations into one
// consistent model, and the roll-up statistics consumed by report
// writers.
//
// Every entity carries a merge key, a stable structural identity used
// to match corresponding records across fragments regardless of the
// order gcov emitted them in. Merging is commutative and associative
// for structurally compatible fragments; incompatible fragments fail
// with a MergeConflictError instead of being silently reconciled.
package coverage

import (
	"fmt"
	"sort"
)

// Position is a line/column source location.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Less reports whether p sorts before other.
func (p Position) Less(other Position) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Column < other.Column
}

// LineKey identifies a line record within a file. gcov can report
// several function instances on the same source line (macros, template
// specializations), so the owning function name is part of the
// identity. FunctionName is empty when the tool did not attribute the
// line to a function.
type LineKey struct {
	Lineno       int
	FunctionName string
}

// FileCoverage is the per-source-file coverage model. It exclusively
// owns its function and line maps; entities are created when first
// observed and mutated in place by every later merge.
type FileCoverage struct {
	Filename string

	// DataSources records which raw data files contributed fragments.
	DataSources map[string]struct{}

	Functions map[string]*FunctionCoverage
	Lines     map[LineKey]*LineCoverage
}

// NewFileCoverage creates an empty file model for the given normalized
// source path.
func NewFileCoverage(filename string, dataSources ...string) *FileCoverage {
	fc := &FileCoverage{
		Filename:    filename,
		DataSources: make(map[string]struct{}),
		Functions:   make(map[string]*FunctionCoverage),
		Lines:       make(map[LineKey]*LineCoverage),
	}
	for _, source := range dataSources {
		fc.DataSources[source] = struct{}{}
	}
	return fc
}

// InsertLine adds a line record to the file, merging it into an
// existing record with the same key if present. The returned value is
// the record now stored in the model.
func (fc *FileCoverage) InsertLine(linecov *LineCoverage, opts MergeOptions) (*LineCoverage, error) {
	key := linecov.Key()
	if existing, ok := fc.Lines[key]; ok {
		if err := existing.Merge(linecov, opts); err != nil {
			return nil, err
		}
		return existing, nil
	}
	fc.Lines[key] = linecov
	return linecov, nil
}

// InsertFunction adds a function record to the file, merging it into
// an existing record with the same name if present.
func (fc *FileCoverage) InsertFunction(functioncov *FunctionCoverage, opts MergeOptions) (*FunctionCoverage, error) {
	key := functioncov.Key()
	if key == "" {
		return nil, fmt.Errorf("function record in %s has neither mangled nor demangled name", fc.Filename)
	}
	if existing, ok := fc.Functions[key]; ok {
		if err := existing.Merge(functioncov, opts); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if err := functioncov.normalize(opts); err != nil {
		return nil, err
	}
	fc.Functions[key] = functioncov
	return functioncov, nil
}

// Merge folds other into fc. Both models must describe the same file.
// Adopted entities are deep-copied, so other remains usable afterwards.
func (fc *FileCoverage) Merge(other *FileCoverage, opts MergeOptions) error {
	if fc.Filename != other.Filename {
		return fmt.Errorf("cannot merge coverage for %q into %q", other.Filename, fc.Filename)
	}

	for source := range other.DataSources {
		fc.DataSources[source] = struct{}{}
	}

	for key, linecov := range other.Lines {
		if existing, ok := fc.Lines[key]; ok {
			if err := existing.Merge(linecov, opts); err != nil {
				return err
			}
		} else {
			fc.Lines[key] = linecov.Clone()
		}
	}

	for key, functioncov := range other.Functions {
		if existing, ok := fc.Functions[key]; ok {
			if err := existing.Merge(functioncov, opts); err != nil {
				return err
			}
		} else {
			clone := functioncov.Clone()
			if err := clone.normalize(opts); err != nil {
				return err
			}
			fc.Functions[key] = clone
		}
	}

	return nil
}

// Clone returns a deep copy of the file model.
func (fc *FileCoverage) Clone() *FileCoverage {
	clone := NewFileCoverage(fc.Filename)
	for source := range fc.DataSources {
		clone.DataSources[source] = struct{}{}
	}
	for key, linecov := range fc.Lines {
		clone.Lines[key] = linecov.Clone()
	}
	for key, functioncov := range fc.Functions {
		clone.Functions[key] = functioncov.Clone()
	}
	return clone
}

// SortedLineKeys returns the line keys ordered by line number, then by
// owning function name. Serialization and statistics use this order so
// output is deterministic.
func (fc *FileCoverage) SortedLineKeys() []LineKey {
	keys := make([]LineKey, 0, len(fc.Lines))
	for key := range fc.Lines {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Lineno != keys[j].Lineno {
			return keys[i].Lineno < keys[j].Lineno
		}
		return keys[i].FunctionName < keys[j].FunctionName
	})
	return keys
}

// SortedLines returns the line records in SortedLineKeys order.
func (fc *FileCoverage) SortedLines() []*LineCoverage {
	keys := fc.SortedLineKeys()
	lines := make([]*LineCoverage, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, fc.Lines[key])
	}
	return lines
}

// SortedFunctionKeys returns the function map keys in lexical order.
func (fc *FileCoverage) SortedFunctionKeys() []string {
	keys := make([]string, 0, len(fc.Functions))
	for key := range fc.Functions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// SortedDataSources returns the provenance set in lexical order.
func (fc *FileCoverage) SortedDataSources() []string {
	sources := make([]string, 0, len(fc.DataSources))
	for source := range fc.DataSources {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources
}

// LinesAt returns every line record on the given source line, across
// all owning functions, in function-name order.
func (fc *FileCoverage) LinesAt(lineno int) []*LineCoverage {
	var lines []*LineCoverage
	for key, linecov := range fc.Lines {
		if key.Lineno == lineno {
			lines = append(lines, linecov)
		}
	}
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].FunctionName < lines[j].FunctionName
	})
	return lines
}

// RemoveLine deletes a line record from the file.
func (fc *FileCoverage) RemoveLine(linecov *LineCoverage) {
	delete(fc.Lines, linecov.Key())
}
