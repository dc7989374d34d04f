package coverage

import (
	"fmt"
	"sort"
)

// ConditionKey is the merge key of a condition record. Conditions are
// matched by shape, never by their position in gcov's output: the
// total outcome count plus an ordinal among same-count conditions on
// the line. gcov reports conditions for the same source line in
// different relative order and number across compilation units, so a
// positional match would pair unrelated records.
type ConditionKey struct {
	Count   int64
	Ordinal int
}

// Less reports whether k sorts before other.
func (k ConditionKey) Less(other ConditionKey) bool {
	if k.Count != other.Count {
		return k.Count < other.Count
	}
	return k.Ordinal < other.Ordinal
}

// ConditionCoverage is the MC/DC style outcome record for one
// condition expression on a line.
type ConditionCoverage struct {
	// Conditionno is the index gcov reported the condition under.
	// Display metadata only; the merge identity is the shape.
	Conditionno int

	Count    int64
	Covered  int64
	Excluded bool

	// NotCoveredTrue and NotCoveredFalse hold the sorted indices of
	// terms whose true (respectively false) outcome was never seen.
	NotCoveredTrue  []int
	NotCoveredFalse []int
}

// NewConditionCoverage creates a condition record and validates its
// internal consistency.
func NewConditionCoverage(conditionno int, count, covered int64, notCoveredTrue, notCoveredFalse []int) (*ConditionCoverage, error) {
	if count < 0 {
		return nil, fmt.Errorf("condition %d has negative outcome count %d", conditionno, count)
	}
	if covered < 0 {
		return nil, fmt.Errorf("condition %d has negative covered count %d", conditionno, covered)
	}
	if covered+int64(len(notCoveredTrue))+int64(len(notCoveredFalse)) != count {
		return nil, fmt.Errorf(
			"condition %d is inconsistent: count %d != covered %d + %d not-covered terms",
			conditionno, count, covered, len(notCoveredTrue)+len(notCoveredFalse))
	}
	nct := append([]int(nil), notCoveredTrue...)
	ncf := append([]int(nil), notCoveredFalse...)
	sort.Ints(nct)
	sort.Ints(ncf)
	return &ConditionCoverage{
		Conditionno:     conditionno,
		Count:           count,
		Covered:         covered,
		NotCoveredTrue:  nct,
		NotCoveredFalse: ncf,
	}, nil
}

// Merge folds another record with the same shape key into cc. A term
// outcome counts as covered once any fragment covered it, so the
// not-covered sets intersect and the covered total is recomputed from
// what remains.
func (cc *ConditionCoverage) Merge(other *ConditionCoverage) {
	cc.NotCoveredTrue = intersectInts(cc.NotCoveredTrue, other.NotCoveredTrue)
	cc.NotCoveredFalse = intersectInts(cc.NotCoveredFalse, other.NotCoveredFalse)
	cc.Covered = cc.Count - int64(len(cc.NotCoveredTrue)) - int64(len(cc.NotCoveredFalse))
	cc.Excluded = cc.Excluded || other.Excluded
}

// Clone returns a copy of the condition record.
func (cc *ConditionCoverage) Clone() *ConditionCoverage {
	clone := *cc
	clone.NotCoveredTrue = append([]int(nil), cc.NotCoveredTrue...)
	clone.NotCoveredFalse = append([]int(nil), cc.NotCoveredFalse...)
	return &clone
}

// intersectInts returns the sorted intersection of two sorted sets,
// nil when empty so cloned and merged records compare equal.
func intersectInts(a, b []int) []int {
	inB := make(map[int]struct{}, len(b))
	for _, v := range b {
		inB[v] = struct{}{}
	}
	var intersection []int
	for _, v := range a {
		if _, ok := inB[v]; ok {
			intersection = append(intersection, v)
		}
	}
	sort.Ints(intersection)
	return intersection
}
