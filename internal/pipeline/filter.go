package pipeline

import (
	"fmt"
	"regexp"
)

// FileFilters selects files by path. A path is kept when at least one
// include pattern matches it from the start (an empty include list
// keeps everything) and no exclude pattern does.
type FileFilters struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewFileFilters compiles include and exclude patterns. The patterns
// are anchored at the start of the path but may match a prefix, so
// "src/" keeps everything under that directory.
func NewFileFilters(include, exclude []string) (*FileFilters, error) {
	inc, err := CompileFilterPatterns(include)
	if err != nil {
		return nil, err
	}
	exc, err := CompileFilterPatterns(exclude)
	if err != nil {
		return nil, err
	}
	return &FileFilters{include: inc, exclude: exc}, nil
}

// CompileFilterPatterns compiles path patterns anchored at the start
// of the matched string.
func CompileFilterPatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		rx, err := regexp.Compile(`\A(?:` + pattern + `)`)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, rx)
	}
	return compiled, nil
}

// Keep reports whether path passes the filters. The patterns see
// exactly the given string, so callers pass cleaned paths. A nil
// receiver keeps everything.
func (f *FileFilters) Keep(path string) bool {
	if f == nil {
		return true
	}
	if len(f.include) > 0 && !matchAny(f.include, path) {
		return false
	}
	return !matchAny(f.exclude, path)
}

func matchAny(filters []*regexp.Regexp, path string) bool {
	for _, rx := range filters {
		if rx.MatchString(path) {
			return true
		}
	}
	return false
}
