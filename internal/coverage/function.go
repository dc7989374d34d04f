package coverage

import (
	"fmt"
	"sort"
	"strings"
)

// FunctionPolicy selects how to reconcile a function name observed at
// different definition lines across fragments. gcov attributes
// template specializations and macro expansions inconsistently across
// versions and optimization levels, so the same function can
// legitimately appear at several lines.
type FunctionPolicy int

const (
	// FunctionStrict rejects multiple definition lines as a merge
	// conflict. This is the default.
	FunctionStrict FunctionPolicy = iota
	// FunctionLineZero folds all definition lines into line 0.
	FunctionLineZero
	// FunctionLineMin folds into the smallest observed line.
	FunctionLineMin
	// FunctionLineMax folds into the largest observed line.
	FunctionLineMax
	// FunctionSeparate keeps one entry per definition line.
	FunctionSeparate
)

// String returns the policy name as accepted by configuration.
func (p FunctionPolicy) String() string {
	switch p {
	case FunctionStrict:
		return "strict"
	case FunctionLineZero:
		return "merge-use-line-0"
	case FunctionLineMin:
		return "merge-use-line-min"
	case FunctionLineMax:
		return "merge-use-line-max"
	case FunctionSeparate:
		return "separate"
	default:
		return fmt.Sprintf("FunctionPolicy(%d)", int(p))
	}
}

// ParseFunctionPolicy maps a configuration string to a policy.
func ParseFunctionPolicy(name string) (FunctionPolicy, error) {
	switch name {
	case "", "strict":
		return FunctionStrict, nil
	case "merge-use-line-0":
		return FunctionLineZero, nil
	case "merge-use-line-min":
		return FunctionLineMin, nil
	case "merge-use-line-max":
		return FunctionLineMax, nil
	case "separate":
		return FunctionSeparate, nil
	default:
		return FunctionStrict, fmt.Errorf("unknown function merge mode %q", name)
	}
}

// FunctionCoverage is the execution record of one function. All
// per-definition-line data lives in maps keyed by line number so the
// merge policies stay total even when a name is seen at several lines.
type FunctionCoverage struct {
	// Name is the mangled symbol, DemangledName the human-readable
	// signature. Either may be empty when the tool reported only one
	// form.
	Name          string
	DemangledName string

	Count    map[int]int64
	Blocks   map[int]float64
	Excluded map[int]bool
	Start    map[int]Position
	End      map[int]Position
}

// NewFunctionCoverage creates a function record for one definition
// line. A lone name containing "(" is taken to be the demangled
// signature, matching how gcov omits mangled names in text output.
func NewFunctionCoverage(name, demangledName string, lineno int, count int64, blocks float64, start, end *Position) (*FunctionCoverage, error) {
	if lineno < 0 {
		return nil, fmt.Errorf("function %s: definition line must not be negative, got %d", name, lineno)
	}
	if count < 0 {
		return nil, fmt.Errorf("function %s has negative call count %d", name, count)
	}
	if demangledName == "" && strings.Contains(name, "(") {
		demangledName, name = name, ""
	}

	fn := &FunctionCoverage{
		Name:          name,
		DemangledName: demangledName,
		Count:         map[int]int64{lineno: count},
		Blocks:        map[int]float64{lineno: blocks},
		Excluded:      map[int]bool{lineno: false},
		Start:         make(map[int]Position),
		End:           make(map[int]Position),
	}
	if start != nil {
		fn.Start[lineno] = *start
	}
	if end != nil {
		fn.End[lineno] = *end
	}
	return fn, nil
}

// Key returns the merge key: the demangled name when known, otherwise
// the mangled one.
func (fn *FunctionCoverage) Key() string {
	if fn.DemangledName != "" {
		return fn.DemangledName
	}
	return fn.Name
}

// DisplayName returns the key; it exists for readable call sites in
// diagnostics.
func (fn *FunctionCoverage) DisplayName() string {
	return fn.Key()
}

// Linenos returns the definition lines in ascending order.
func (fn *FunctionCoverage) Linenos() []int {
	linenos := make([]int, 0, len(fn.Count))
	for lineno := range fn.Count {
		linenos = append(linenos, lineno)
	}
	sort.Ints(linenos)
	return linenos
}

// SetExcluded marks every definition-line entry as excluded.
func (fn *FunctionCoverage) SetExcluded() {
	for lineno := range fn.Excluded {
		fn.Excluded[lineno] = true
	}
}

// Merge folds another record for the same key into fn and applies the
// policy. Differing mangled names for one demangled signature keep the
// lexicographically smaller symbol. other is not modified.
func (fn *FunctionCoverage) Merge(other *FunctionCoverage, opts MergeOptions) error {
	if fn.Key() != other.Key() {
		return fmt.Errorf("cannot merge function %q into %q: merge keys differ", other.DisplayName(), fn.DisplayName())
	}

	switch {
	case fn.Name == "":
		fn.Name = other.Name
	case other.Name != "" && other.Name < fn.Name:
		fn.Name = other.Name
	}
	if fn.DemangledName == "" {
		fn.DemangledName = other.DemangledName
	}

	for lineno, count := range other.Count {
		if _, ok := fn.Count[lineno]; ok {
			fn.foldLine(lineno, count, other.Blocks[lineno], other.Excluded[lineno], positionAt(other.Start, lineno), positionAt(other.End, lineno))
		} else {
			fn.Count[lineno] = count
			fn.Blocks[lineno] = other.Blocks[lineno]
			fn.Excluded[lineno] = other.Excluded[lineno]
			if start, ok := other.Start[lineno]; ok {
				fn.Start[lineno] = start
			}
			if end, ok := other.End[lineno]; ok {
				fn.End[lineno] = end
			}
		}
	}

	return fn.normalize(opts)
}

// foldLine accumulates a second observation of the same definition
// line: call counts sum, the block percentage keeps its maximum, the
// span widens to cover both observations.
func (fn *FunctionCoverage) foldLine(lineno int, count int64, blocks float64, excluded bool, start, end *Position) {
	fn.Count[lineno] += count
	if blocks > fn.Blocks[lineno] {
		fn.Blocks[lineno] = blocks
	}
	fn.Excluded[lineno] = fn.Excluded[lineno] || excluded
	if start != nil {
		if existing, ok := fn.Start[lineno]; !ok || start.Less(existing) {
			fn.Start[lineno] = *start
		}
	}
	if end != nil {
		if existing, ok := fn.End[lineno]; !ok || existing.Less(*end) {
			fn.End[lineno] = *end
		}
	}
}

// normalize applies the function policy to the per-line maps.
func (fn *FunctionCoverage) normalize(opts MergeOptions) error {
	linenos := fn.Linenos()

	var target int
	switch opts.FuncPolicy {
	case FunctionSeparate:
		return nil
	case FunctionStrict:
		if len(linenos) <= 1 {
			return nil
		}
		rendered := make([]string, len(linenos))
		for i, lineno := range linenos {
			rendered[i] = fmt.Sprintf("%d", lineno)
		}
		return &MergeConflictError{
			Entity:   "function",
			Key:      fn.DisplayName(),
			Property: "definition line",
			ValueA:   rendered[0],
			ValueB:   strings.Join(rendered[1:], ", "),
			Hint:     "select a function merge mode: merge-use-line-0, merge-use-line-min, merge-use-line-max or separate",
		}
	case FunctionLineZero:
		target = 0
	case FunctionLineMin:
		target = linenos[0]
	case FunctionLineMax:
		target = linenos[len(linenos)-1]
	default:
		return fmt.Errorf("unhandled function merge mode %v", opts.FuncPolicy)
	}

	if len(linenos) == 1 && linenos[0] == target {
		return nil
	}

	count := int64(0)
	blocks := 0.0
	excluded := false
	var start, end *Position
	for _, lineno := range linenos {
		count += fn.Count[lineno]
		if fn.Blocks[lineno] > blocks {
			blocks = fn.Blocks[lineno]
		}
		excluded = excluded || fn.Excluded[lineno]
		if s, ok := fn.Start[lineno]; ok && (start == nil || s.Less(*start)) {
			sCopy := s
			start = &sCopy
		}
		if e, ok := fn.End[lineno]; ok && (end == nil || end.Less(e)) {
			eCopy := e
			end = &eCopy
		}
	}

	fn.Count = map[int]int64{target: count}
	fn.Blocks = map[int]float64{target: blocks}
	fn.Excluded = map[int]bool{target: excluded}
	fn.Start = make(map[int]Position)
	fn.End = make(map[int]Position)
	if start != nil {
		fn.Start[target] = *start
	}
	if end != nil {
		fn.End[target] = *end
	}
	return nil
}

// Clone returns a deep copy of the function record.
func (fn *FunctionCoverage) Clone() *FunctionCoverage {
	clone := &FunctionCoverage{
		Name:          fn.Name,
		DemangledName: fn.DemangledName,
		Count:         make(map[int]int64, len(fn.Count)),
		Blocks:        make(map[int]float64, len(fn.Blocks)),
		Excluded:      make(map[int]bool, len(fn.Excluded)),
		Start:         make(map[int]Position, len(fn.Start)),
		End:           make(map[int]Position, len(fn.End)),
	}
	for lineno, count := range fn.Count {
		clone.Count[lineno] = count
	}
	for lineno, blocks := range fn.Blocks {
		clone.Blocks[lineno] = blocks
	}
	for lineno, excluded := range fn.Excluded {
		clone.Excluded[lineno] = excluded
	}
	for lineno, start := range fn.Start {
		clone.Start[lineno] = start
	}
	for lineno, end := range fn.End {
		clone.End[lineno] = end
	}
	return clone
}

// positionAt returns a pointer to the map entry or nil when absent.
func positionAt(positions map[int]Position, lineno int) *Position {
	if position, ok := positions[lineno]; ok {
		return &position
	}
	return nil
}
