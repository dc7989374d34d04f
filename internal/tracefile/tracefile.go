// Package tracefile reads and writes the JSON interchange format for
// merged coverage data. A tracefile snapshots a whole container, so
// separate ingestion runs can be combined later without re-running
// gcov.
package tracefile

import "github.com/zjy-dev/gocovr/internal/coverage"

// FormatVersion is the schema version this build reads and writes.
// Readers reject documents with any other version instead of guessing.
const FormatVersion = "1"

type document struct {
	FormatVersion string      `json:"format_version"`
	Files         []fileEntry `json:"files"`
}

type fileEntry struct {
	Path string `json:"path"`
	// Provenance lists the raw data files the entry was built from.
	Provenance []string        `json:"provenance,omitempty"`
	Functions  []functionEntry `json:"functions"`
	Lines      []lineEntry     `json:"lines"`
}

// functionEntry is one definition line of one function. A function
// kept separate per definition line occupies several entries sharing
// its name.
type functionEntry struct {
	Name           string             `json:"name,omitempty"`
	DemangledName  string             `json:"demangled_name,omitempty"`
	Lineno         int                `json:"lineno"`
	ExecutionCount int64              `json:"execution_count"`
	BlocksPercent  float64            `json:"blocks_percent,omitempty"`
	Excluded       bool               `json:"excluded,omitempty"`
	Start          *coverage.Position `json:"start,omitempty"`
	End            *coverage.Position `json:"end,omitempty"`
}

type lineEntry struct {
	LineNumber   int              `json:"line_number"`
	FunctionName string           `json:"function_name,omitempty"`
	Count        int64            `json:"count"`
	MD5          string           `json:"md5,omitempty"`
	BlockIDs     []int            `json:"block_ids,omitempty"`
	Excluded     bool             `json:"excluded,omitempty"`
	Branches     []branchEntry    `json:"branches,omitempty"`
	Conditions   []conditionEntry `json:"conditions,omitempty"`
	Calls        []callEntry      `json:"calls,omitempty"`
	Decision     *decisionEntry   `json:"decision,omitempty"`
}

type branchEntry struct {
	Branchno    int   `json:"branchno"`
	SourceBlock int   `json:"source_block_id"`
	DestBlock   int   `json:"destination_block_id"`
	Count       int64 `json:"count"`
	Fallthrough bool  `json:"fallthrough,omitempty"`
	Throw       bool  `json:"throw,omitempty"`
	Excluded    bool  `json:"excluded,omitempty"`
}

type conditionEntry struct {
	Conditionno     int   `json:"conditionno"`
	Count           int64 `json:"count"`
	Covered         int64 `json:"covered"`
	NotCoveredTrue  []int `json:"not_covered_true,omitempty"`
	NotCoveredFalse []int `json:"not_covered_false,omitempty"`
	Excluded        bool  `json:"excluded,omitempty"`
}

type callEntry struct {
	Callno      int   `json:"callno"`
	SourceBlock int   `json:"source_block_id"`
	DestBlock   int   `json:"destination_block_id"`
	Count       int64 `json:"count"`
	Excluded    bool  `json:"excluded,omitempty"`
}

// decisionEntry is the tagged serialization of a decision variant:
// "uncheckable", "conditional" with count_true/count_false, or
// "switch" with count.
type decisionEntry struct {
	Type       string `json:"type"`
	CountTrue  int64  `json:"count_true,omitempty"`
	CountFalse int64  `json:"count_false,omitempty"`
	Count      int64  `json:"count,omitempty"`
}
