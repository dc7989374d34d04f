package pipeline

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/zjy-dev/gocovr/internal/logger"
	"github.com/zjy-dev/gocovr/internal/sourceio"
)

var (
	dataFileRx   = regexp.MustCompile(`\.gc(da|no)$`)
	reportFileRx = regexp.MustCompile(`\.gcov(\.json\.gz)?$`)
)

// FindDataFiles scans the search paths for .gcda and .gcno files. A
// lone .gcno file still names a compilation unit the tests never
// exercised, which is worth reporting as uncovered, so .gcno files are
// kept unless a .gcda sibling exists.
func FindDataFiles(searchPaths []string, excludeDirs []*regexp.Regexp) ([]string, error) {
	files, err := searchFiles(searchPaths, excludeDirs, dataFileRx)
	if err != nil {
		return nil, err
	}

	gcdaStems := make(map[string]struct{})
	for _, file := range files {
		if strings.HasSuffix(file, ".gcda") {
			gcdaStems[strings.TrimSuffix(file, ".gcda")] = struct{}{}
		}
	}

	kept := make([]string, 0, len(files))
	for _, file := range files {
		if strings.HasSuffix(file, ".gcno") {
			if _, ok := gcdaStems[strings.TrimSuffix(file, ".gcno")]; ok {
				continue
			}
		}
		kept = append(kept, file)
	}
	logger.Debugf("Found %d coverage data files, will process %d", len(files), len(kept))
	return kept, nil
}

// FindReportFiles scans the search paths for already generated gcov
// report files, in the text format or the gzipped JSON format.
func FindReportFiles(searchPaths []string, excludeDirs []*regexp.Regexp) ([]string, error) {
	return searchFiles(searchPaths, excludeDirs, reportFileRx)
}

// searchFiles walks every search path and collects the files whose
// name matches rx. A search path naming a file is taken as is when it
// matches. Directories matching one of excludeDirs are pruned.
func searchFiles(searchPaths []string, excludeDirs []*regexp.Regexp, rx *regexp.Regexp) ([]string, error) {
	seen := make(map[string]struct{})
	var found []string
	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		found = append(found, path)
	}

	for _, searchPath := range searchPaths {
		searchPath = filepath.Clean(searchPath)
		info, err := os.Stat(searchPath)
		if err != nil {
			return nil, &sourceio.FilesystemError{Path: searchPath, Op: "scanning", Err: err}
		}
		if !info.IsDir() {
			if rx.MatchString(searchPath) {
				add(searchPath)
			}
			continue
		}

		logger.Debugf("Scanning directory %s for coverage data files", searchPath)
		err = filepath.WalkDir(searchPath, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() {
				if path != searchPath && matchAny(excludeDirs, path) {
					return filepath.SkipDir
				}
				return nil
			}
			if rx.MatchString(entry.Name()) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, &sourceio.FilesystemError{Path: searchPath, Op: "scanning", Err: err}
		}
	}

	sort.Strings(found)
	return found, nil
}
