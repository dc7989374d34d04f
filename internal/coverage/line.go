package coverage

import (
	"fmt"
	"sort"
)

// LineCoverage is the execution record for one source line within one
// function context.
type LineCoverage struct {
	Lineno       int
	FunctionName string
	Count        int64
	Excluded     bool

	// MD5 is the checksum of the source line text. Two fragments for
	// the same line key must agree on it; a mismatch means the
	// fragments were produced from different source revisions.
	MD5 string

	// BlockIDs is the sorted set of basic block ids gcov attributed to
	// this line, nil when the tool did not report blocks.
	BlockIDs []int

	Branches   map[BranchKey]*BranchCoverage
	Conditions map[ConditionKey]*ConditionCoverage
	Calls      map[CallKey]*CallCoverage
	Decision   Decision
}

// NewLineCoverage creates a line record. Counts must already be
// sanitized by the parser; a negative count here is a programming
// error, not tool data.
func NewLineCoverage(lineno int, functionName string, count int64, md5 string) (*LineCoverage, error) {
	if lineno < 1 {
		return nil, fmt.Errorf("line number must be positive, got %d", lineno)
	}
	if count < 0 {
		return nil, fmt.Errorf("line %d has negative execution count %d", lineno, count)
	}
	return &LineCoverage{
		Lineno:       lineno,
		FunctionName: functionName,
		Count:        count,
		MD5:          md5,
		Branches:     make(map[BranchKey]*BranchCoverage),
		Conditions:   make(map[ConditionKey]*ConditionCoverage),
		Calls:        make(map[CallKey]*CallCoverage),
	}, nil
}

// Key returns the merge key of the line.
func (lc *LineCoverage) Key() LineKey {
	return LineKey{Lineno: lc.Lineno, FunctionName: lc.FunctionName}
}

// Location renders the line position for diagnostics.
func (lc *LineCoverage) Location() string {
	if lc.FunctionName == "" {
		return fmt.Sprintf("line %d", lc.Lineno)
	}
	return fmt.Sprintf("line %d (%s)", lc.Lineno, lc.FunctionName)
}

// InsertBranch adds a branch record, merging on key collision.
func (lc *LineCoverage) InsertBranch(branchcov *BranchCoverage) *BranchCoverage {
	key := branchcov.Key()
	if existing, ok := lc.Branches[key]; ok {
		existing.Merge(branchcov)
		return existing
	}
	lc.Branches[key] = branchcov
	return branchcov
}

// AddCondition appends a condition observed by the parser. The shape
// ordinal is assigned from the conditions already present: the n-th
// condition with a given outcome count gets ordinal n. Merge preserves
// the keys assigned here, so conditions pair up across fragments by
// shape rather than by the raw index the tool printed.
func (lc *LineCoverage) AddCondition(conditioncov *ConditionCoverage) *ConditionCoverage {
	ordinal := 0
	for key := range lc.Conditions {
		if key.Count == conditioncov.Count && key.Ordinal >= ordinal {
			ordinal = key.Ordinal + 1
		}
	}
	key := ConditionKey{Count: conditioncov.Count, Ordinal: ordinal}
	lc.Conditions[key] = conditioncov
	return conditioncov
}

// InsertCall adds a call record, merging on key collision.
func (lc *LineCoverage) InsertCall(callcov *CallCoverage) *CallCoverage {
	key := callcov.Key()
	if existing, ok := lc.Calls[key]; ok {
		existing.Merge(callcov)
		return existing
	}
	lc.Calls[key] = callcov
	return callcov
}

// Merge folds another record for the same line key into lc. Execution
// counts sum, exclusion flags accumulate, block id sets union, and the
// nested branch/condition/call maps merge by their own keys. The
// checksum must agree; disagreement is a structural conflict. other is
// not modified.
func (lc *LineCoverage) Merge(other *LineCoverage, opts MergeOptions) error {
	if lc.Lineno != other.Lineno || lc.FunctionName != other.FunctionName {
		return fmt.Errorf("cannot merge %s into %s: merge keys differ", other.Location(), lc.Location())
	}

	md5, err := mergeProperty("line", lc.Location(), "md5 checksum", lc.MD5, other.MD5)
	if err != nil {
		return err
	}
	lc.MD5 = md5

	lc.Count += other.Count
	lc.Excluded = lc.Excluded || other.Excluded
	lc.BlockIDs = unionBlockIDs(lc.BlockIDs, other.BlockIDs)

	for key, branchcov := range other.Branches {
		if existing, ok := lc.Branches[key]; ok {
			existing.Merge(branchcov)
		} else {
			lc.Branches[key] = branchcov.Clone()
		}
	}

	for key, conditioncov := range other.Conditions {
		if existing, ok := lc.Conditions[key]; ok {
			existing.Merge(conditioncov)
		} else {
			lc.Conditions[key] = conditioncov.Clone()
		}
	}

	for key, callcov := range other.Calls {
		if existing, ok := lc.Calls[key]; ok {
			existing.Merge(callcov)
		} else {
			lc.Calls[key] = callcov.Clone()
		}
	}

	lc.Decision = MergeDecisions(lc.Decision, other.Decision)
	return nil
}

// Exclude marks the line and everything it owns as excluded and drops
// any decision derived for it. Reporting skips excluded records while
// keeping them in the model for traceability.
func (lc *LineCoverage) Exclude() {
	lc.Excluded = true
	for _, branchcov := range lc.Branches {
		branchcov.Excluded = true
	}
	for _, conditioncov := range lc.Conditions {
		conditioncov.Excluded = true
	}
	for _, callcov := range lc.Calls {
		callcov.Excluded = true
	}
	lc.Decision = nil
}

// ExcludeBranches marks only the branch and condition records as
// excluded. The line count and any decision stay reportable.
func (lc *LineCoverage) ExcludeBranches() {
	for _, branchcov := range lc.Branches {
		branchcov.Excluded = true
	}
	for _, conditioncov := range lc.Conditions {
		conditioncov.Excluded = true
	}
}

// HasReportableBranches reports whether any branch survives exclusion.
func (lc *LineCoverage) HasReportableBranches() bool {
	if lc.Excluded {
		return false
	}
	for _, branchcov := range lc.Branches {
		if !branchcov.Excluded {
			return true
		}
	}
	return false
}

// ClearBranches removes all branch records, for lines detected as
// carrying compiler-generated branches only.
func (lc *LineCoverage) ClearBranches() {
	lc.Branches = make(map[BranchKey]*BranchCoverage)
}

// ClearCalls removes all call records from the line.
func (lc *LineCoverage) ClearCalls() {
	lc.Calls = make(map[CallKey]*CallCoverage)
}

// SortedBranchKeys returns branch keys in deterministic order.
func (lc *LineCoverage) SortedBranchKeys() []BranchKey {
	keys := make([]BranchKey, 0, len(lc.Branches))
	for key := range lc.Branches {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// SortedConditionKeys returns condition keys in deterministic order.
func (lc *LineCoverage) SortedConditionKeys() []ConditionKey {
	keys := make([]ConditionKey, 0, len(lc.Conditions))
	for key := range lc.Conditions {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// SortedCallKeys returns call keys in deterministic order.
func (lc *LineCoverage) SortedCallKeys() []CallKey {
	keys := make([]CallKey, 0, len(lc.Calls))
	for key := range lc.Calls {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Clone returns a deep copy of the line record.
func (lc *LineCoverage) Clone() *LineCoverage {
	clone := &LineCoverage{
		Lineno:       lc.Lineno,
		FunctionName: lc.FunctionName,
		Count:        lc.Count,
		Excluded:     lc.Excluded,
		MD5:          lc.MD5,
		Branches:     make(map[BranchKey]*BranchCoverage, len(lc.Branches)),
		Conditions:   make(map[ConditionKey]*ConditionCoverage, len(lc.Conditions)),
		Calls:        make(map[CallKey]*CallCoverage, len(lc.Calls)),
		Decision:     lc.Decision,
	}
	if lc.BlockIDs != nil {
		clone.BlockIDs = append([]int(nil), lc.BlockIDs...)
	}
	for key, branchcov := range lc.Branches {
		clone.Branches[key] = branchcov.Clone()
	}
	for key, conditioncov := range lc.Conditions {
		clone.Conditions[key] = conditioncov.Clone()
	}
	for key, callcov := range lc.Calls {
		clone.Calls[key] = callcov.Clone()
	}
	return clone
}

// unionBlockIDs merges two sorted block id sets, keeping nil when both
// inputs are nil.
func unionBlockIDs(a, b []int) []int {
	if a == nil && b == nil {
		return nil
	}
	seen := make(map[int]struct{}, len(a)+len(b))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	for _, id := range b {
		seen[id] = struct{}{}
	}
	union := make([]int, 0, len(seen))
	for id := range seen {
		union = append(union, id)
	}
	sort.Ints(union)
	return union
}
