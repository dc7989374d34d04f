package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/zjy-dev/gocovr/internal/logger"
)

// guessSourceFileName resolves the source path a gcov report announces
// in its Source header. gcov records the path as the compiler saw it,
// relative to the compiler's working directory, which can only be
// reconstructed by probing the directories the build plausibly used.
// dataFile is empty when the report was not produced by this run; the
// guess then falls back to the report file's own surroundings.
func guessSourceFileName(gcovname, reportFile, dataFile, rootDir, startingDir, objDir, currdir string) string {
	var fname string
	if dataFile == "" {
		fname = guessViaAliases(gcovname, currdir, reportFile)
	} else {
		fname = guessViaHeuristics(gcovname, currdir, rootDir, startingDir, objDir, dataFile)
	}
	logger.Debugf("Resolved source file of %s as %s", reportFile, fname)
	return fname
}

func guessViaAliases(gcovname, currdir, reportFile string) string {
	initial := realpath(joinPath(commonDir(reportFile, currdir), gcovname))
	if pathExists(initial) {
		return initial
	}

	fname := realpath(joinPath(filepath.Dir(reportFile), gcovname))
	if pathExists(fname) {
		return fname
	}
	return initial
}

func guessViaHeuristics(gcovname, currdir, rootDir, startingDir, objDir, dataFile string) string {
	// gcov prints the path with forward slashes regardless of the OS.
	gcovname = filepath.FromSlash(gcovname)

	if fname := joinPath(currdir, gcovname); pathExists(fname) {
		return fname
	}
	if fname := joinPath(rootDir, gcovname); pathExists(fname) {
		return fname
	}
	if fname := joinPath(startingDir, gcovname); pathExists(fname) {
		return fname
	}
	if objDir != "" {
		if fname := joinPath(objDir, gcovname); pathExists(fname) {
			return fname
		}
	}

	dataDir := filepath.Dir(dataFile)
	if fname := joinPath(dataDir, gcovname); pathExists(fname) {
		return fname
	}
	return joinPath(dataDir, filepath.Base(gcovname))
}

// joinPath appends name to dir the way the build tools resolve paths:
// an absolute name stands alone.
func joinPath(dir, name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(dir, name)
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// realpath resolves symlinks when the path exists, otherwise it
// returns the path unchanged.
func realpath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}

// commonDir returns the deepest directory containing both paths.
func commonDir(a, b string) string {
	sep := string(filepath.Separator)
	as := strings.Split(realpath(absOrSelf(a)), sep)
	bs := strings.Split(realpath(absOrSelf(b)), sep)

	i := 0
	for i < len(as) && i < len(bs) && as[i] == bs[i] {
		i++
	}
	common := strings.Join(as[:i], sep)
	if common == "" {
		return sep
	}
	return common
}

func absOrSelf(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
