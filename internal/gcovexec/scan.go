package gcovexec

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	createdFileRx = regexp.MustCompile("[Cc]reating ['`](.*)'$")

	sourceErrorRx = regexp.MustCompile(
		`[Cc](?:annot|ould not) open (?:source|graph) file|: No such file or directory`)
	outputErrorRx = regexp.MustCompile(
		`[Cc](?:annot|ould not) open output file|Operation not permitted|Permission denied|Read-only file system`)
	unknownArgRx = regexp.MustCompile(`Unknown command line argument`)
)

// CreatedFiles scans gcov's stdout for the report files the tool
// announced. keep filters by the name gcov printed (nil keeps all);
// the all result ignores the filter so the caller can clean up every
// produced file. Paths are joined to dir, the directory gcov ran in.
func CreatedFiles(stdout, dir string, keep func(name string) bool) (active, all []string) {
	seen := make(map[string]struct{})
	for _, line := range strings.Split(stdout, "\n") {
		match := createdFileRx.FindStringSubmatch(strings.TrimSpace(line))
		if match == nil {
			continue
		}
		name := match[1]
		full := filepath.Join(dir, name)
		if _, ok := seen[full]; ok {
			continue
		}
		seen[full] = struct{}{}

		all = append(all, full)
		if keep != nil && !keep(name) {
			continue
		}
		active = append(active, full)
	}
	return active, all
}

// StderrMissingSource reports whether gcov complained about a source
// or graph file it could not resolve. The usual cause is a wrong
// working directory, so the caller retries from the next candidate.
func StderrMissingSource(stderr string) bool {
	return sourceErrorRx.MatchString(stderr)
}

// StderrOutputError reports whether gcov could not write a report
// file.
func StderrOutputError(stderr string) bool {
	return outputErrorRx.MatchString(stderr)
}

// StderrUnknownArgument reports whether gcov rejected part of its
// command line. This is a configuration error, never cured by another
// working directory.
func StderrUnknownArgument(stderr string) bool {
	return unknownArgRx.MatchString(stderr)
}
