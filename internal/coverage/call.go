package coverage

import "fmt"

// CallKey is the merge key of a call record.
type CallKey struct {
	Callno      int
	SourceBlock int
	DestBlock   int
}

// Less reports whether k sorts before other.
func (k CallKey) Less(other CallKey) bool {
	if k.Callno != other.Callno {
		return k.Callno < other.Callno
	}
	if k.SourceBlock != other.SourceBlock {
		return k.SourceBlock < other.SourceBlock
	}
	return k.DestBlock < other.DestBlock
}

// CallCoverage is the returned-count record for one call site on a
// line. The text format identifies calls by index, the JSON format by
// destination block; at least one of the two must be present.
type CallCoverage struct {
	Callno      int
	SourceBlock int
	DestBlock   int
	Count       int64
	Excluded    bool
}

// NewCallCoverage creates a call record. Use UnknownBlock for ids the
// tool did not report and a negative callno when only blocks identify
// the call.
func NewCallCoverage(callno, sourceBlock, destBlock int, count int64) (*CallCoverage, error) {
	if callno < 0 && destBlock == UnknownBlock {
		return nil, fmt.Errorf("call record needs a call number or a destination block")
	}
	if count < 0 {
		return nil, fmt.Errorf("call %d has negative returned count %d", callno, count)
	}
	return &CallCoverage{
		Callno:      callno,
		SourceBlock: sourceBlock,
		DestBlock:   destBlock,
		Count:       count,
	}, nil
}

// Key returns the merge key of the call.
func (cc *CallCoverage) Key() CallKey {
	return CallKey{Callno: cc.Callno, SourceBlock: cc.SourceBlock, DestBlock: cc.DestBlock}
}

// Covered reports whether the call ever returned.
func (cc *CallCoverage) Covered() bool {
	return cc.Count > 0
}

// Merge folds another record with the same key into cc.
func (cc *CallCoverage) Merge(other *CallCoverage) {
	cc.Count += other.Count
	cc.Excluded = cc.Excluded || other.Excluded
}

// Clone returns a copy of the call record.
func (cc *CallCoverage) Clone() *CallCoverage {
	clone := *cc
	return &clone
}
