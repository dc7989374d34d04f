package coverage

import "fmt"

// UnknownBlock marks a missing source or destination block id. Older
// gcov versions report branches without block context.
const UnknownBlock = -1

// BranchKey is the merge key of a branch record.
type BranchKey struct {
	Branchno    int
	SourceBlock int
	DestBlock   int
}

// Less reports whether k sorts before other.
func (k BranchKey) Less(other BranchKey) bool {
	if k.Branchno != other.Branchno {
		return k.Branchno < other.Branchno
	}
	if k.SourceBlock != other.SourceBlock {
		return k.SourceBlock < other.SourceBlock
	}
	return k.DestBlock < other.DestBlock
}

// BranchCoverage is the taken-count record for one branch of one line.
type BranchCoverage struct {
	Branchno    int
	SourceBlock int
	DestBlock   int
	Count       int64
	Fallthrough bool
	Throw       bool
	Excluded    bool
}

// NewBranchCoverage creates a branch record. Use UnknownBlock for
// block ids the tool did not report.
func NewBranchCoverage(branchno, sourceBlock, destBlock int, count int64, fallthru, throw bool) (*BranchCoverage, error) {
	if branchno < 0 {
		return nil, fmt.Errorf("branch number must not be negative, got %d", branchno)
	}
	if count < 0 {
		return nil, fmt.Errorf("branch %d has negative taken count %d", branchno, count)
	}
	return &BranchCoverage{
		Branchno:    branchno,
		SourceBlock: sourceBlock,
		DestBlock:   destBlock,
		Count:       count,
		Fallthrough: fallthru,
		Throw:       throw,
	}, nil
}

// Key returns the merge key of the branch.
func (bc *BranchCoverage) Key() BranchKey {
	return BranchKey{Branchno: bc.Branchno, SourceBlock: bc.SourceBlock, DestBlock: bc.DestBlock}
}

// Covered reports whether the branch was ever taken.
func (bc *BranchCoverage) Covered() bool {
	return bc.Count > 0
}

// Merge folds another record with the same key into bc.
func (bc *BranchCoverage) Merge(other *BranchCoverage) {
	bc.Count += other.Count
	bc.Fallthrough = bc.Fallthrough || other.Fallthrough
	bc.Throw = bc.Throw || other.Throw
	bc.Excluded = bc.Excluded || other.Excluded
}

// Clone returns a copy of the branch record.
func (bc *BranchCoverage) Clone() *BranchCoverage {
	clone := *bc
	return &clone
}
