package gcov

import "fmt"

// ParseError reports the first fatal anomaly of a gcov report,
// located by its line number in the report file.
type ParseError struct {
	File   string
	Lineno int
	Text   string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.File, e.Lineno, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// UnknownLineError reports a gcov output line that matches no known
// grammar production.
type UnknownLineError struct {
	Line string
}

func (e *UnknownLineError) Error() string {
	return fmt.Sprintf("unrecognized gcov output line %q", e.Line)
}

// NegativeHitsError reports a negative counter. These come from a
// known counter-overflow bug in the profiling runtime, see
// https://gcc.gnu.org/bugzilla/show_bug.cgi?id=68080.
type NegativeHitsError struct {
	Line string
}

func (e *NegativeHitsError) Error() string {
	return fmt.Sprintf(
		"negative hit value in gcov line %q caused by a bug in the gcov tool; "+
			"use gcov-ignore-parse-errors with negative_hits.warn or "+
			"negative_hits.warn_once_per_file to continue",
		e.Line)
}

// SuspiciousHitsError reports a counter at or above the suspicious
// threshold, another symptom of the same counter-overflow bug.
type SuspiciousHitsError struct {
	Line string
}

func (e *SuspiciousHitsError) Error() string {
	return fmt.Sprintf(
		"suspicious hit value in gcov line %q caused by a bug in the gcov tool; "+
			"use gcov-ignore-parse-errors with suspicious_hits.warn or "+
			"suspicious_hits.warn_once_per_file to continue, or raise "+
			"gcov-suspicious-hits-threshold",
		e.Line)
}
