// Package gcov parses the output formats of the gcov tool: the
// annotated-source text format (.gcov) and the JSON intermediate
// format. Both parsers produce fragments of the coverage data model
// for a single invocation; folding fragments together is the model's
// job, not the parser's.
//
// The text grammar is reverse engineered from gcov's own formatting
// code and carries compensation for known tool quirks: aggregated
// template specialization sections, function tags that apply to a
// later source line, negative counters leaking from the profiling
// runtime, and percentages that destroy the underlying count.
package gcov

import "go.uber.org/atomic"

// Ignorable parse anomalies, settable via the gcov-ignore-parse-errors
// option. "all" covers every class.
const (
	IgnoreAll                         = "all"
	IgnoreNegativeHitsWarn            = "negative_hits.warn"
	IgnoreNegativeHitsWarnOncePerFile = "negative_hits.warn_once_per_file"
	IgnoreSuspiciousWarn              = "suspicious_hits.warn"
	IgnoreSuspiciousWarnOncePerFile   = "suspicious_hits.warn_once_per_file"
)

// DefaultSuspiciousHitsThreshold flags counters at or above 2^32,
// where the profiling runtime's known overflow bug starts producing
// garbage.
const DefaultSuspiciousHitsThreshold = int64(1) << 32

// Options configures parsing of a single gcov output file.
type Options struct {
	// IgnoreParseErrors lists anomaly classes to downgrade from fatal
	// errors to diagnostics.
	IgnoreParseErrors map[string]struct{}

	// SuspiciousHitsThreshold is the lowest hit value treated as
	// corrupt. Zero disables the check.
	SuspiciousHitsThreshold int64

	// SourceEncoding names the character set of the measured sources.
	// Empty means UTF-8.
	SourceEncoding string

	// UseExistingFiles marks runs over pre-generated gcov files, where
	// some tool quirks deserve a louder diagnosis.
	UseExistingFiles bool
}

// DefaultOptions returns the strict configuration: nothing ignored,
// default suspicious threshold.
func DefaultOptions() Options {
	return Options{SuspiciousHitsThreshold: DefaultSuspiciousHitsThreshold}
}

func (o Options) ignoresAny(classes ...string) bool {
	for _, class := range classes {
		if _, ok := o.IgnoreParseErrors[class]; ok {
			return true
		}
	}
	return false
}

// Diagnostics tallies non-fatal parse anomalies across all workers of
// a run so the pipeline can print one closing summary.
type Diagnostics struct {
	NegativeHits      atomic.Int64
	SuspiciousHits    atomic.Int64
	UnrecognizedLines atomic.Int64
}

// HasAnomalies reports whether any anomaly was recorded.
func (d *Diagnostics) HasAnomalies() bool {
	return d.NegativeHits.Load() > 0 || d.SuspiciousHits.Load() > 0 || d.UnrecognizedLines.Load() > 0
}
