package gcovexec

import (
	"fmt"
	"os"
	"path/filepath"
)

// PotentialWorkingDirs lists candidate directories for running gcov on
// the given data file, most promising first. gcov resolves relative
// source paths against its working directory, which must match the
// compiler's; that directory is unknown, so candidates are tried in
// order: the configured object directory (absolute, or resolved
// against the data file's directory and the process working
// directory), the project root, and, when no object directory
// candidate exists, every parent of the data file down to the last
// candidate. A configured object directory that matches nothing is
// reported alongside the remaining candidates.
func PotentialWorkingDirs(absDataFile, objDir, rootDir string) ([]string, error) {
	var dirs []string
	var objDirErr error

	if objDir != "" {
		dirs = objDirCandidates(absDataFile, objDir)
		if len(dirs) == 0 {
			objDirErr = fmt.Errorf(
				"cannot identify the location where the compiler was run using gcov-object-directory=%s", objDir)
		}
	}

	considerParents := len(dirs) == 0
	dirs = append(dirs, rootDir)

	if considerParents {
		wd := filepath.Dir(absDataFile)
		for wd != dirs[len(dirs)-1] {
			dirs = append(dirs, wd)
			wd = filepath.Dir(wd)
		}
	}
	return dirs, objDirErr
}

func objDirCandidates(absDataFile, objDir string) []string {
	if filepath.IsAbs(objDir) {
		if isDir(objDir) {
			return []string{objDir}
		}
		return nil
	}

	var candidates []string
	prefixes := []string{filepath.Dir(absDataFile)}
	if cwd, err := os.Getwd(); err == nil {
		prefixes = append(prefixes, cwd)
	}
	for _, prefix := range prefixes {
		if dir := filepath.Join(prefix, objDir); isDir(dir) {
			candidates = append(candidates, dir)
		}
	}
	return candidates
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
