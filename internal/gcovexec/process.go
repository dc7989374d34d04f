package gcovexec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"github.com/zjy-dev/gocovr/internal/coverage"
	"github.com/zjy-dev/gocovr/internal/logger"
	"github.com/zjy-dev/gocovr/internal/worker"
)

// RunOptions configures how coverage data files are turned into
// parsed fragments.
type RunOptions struct {
	// ObjDir is the configured object directory, empty when the
	// working directory should be inferred from the data file path.
	ObjDir string
	// RootDir is the project root, always tried as a working
	// directory.
	RootDir string

	// KeepReportFiles keeps the produced report files, renamed after
	// their data file, instead of removing them.
	KeepReportFiles bool
	// DeleteDataFiles schedules consumed .gcda files for removal at
	// the end of the run.
	DeleteDataFiles bool

	// KeepReport filters produced report files by the name gcov
	// printed; nil keeps all.
	KeepReport func(name string) bool

	// IgnoreSourceErrors accepts "cannot open source file" complaints
	// instead of trying the next working directory.
	IgnoreSourceErrors bool
	// IgnoreOutputErrors tolerates report files gcov failed to write.
	IgnoreOutputErrors bool
	// IgnoreNoWorkingDir downgrades an exhausted working directory
	// search from fatal to a logged error.
	IgnoreNoWorkingDir bool
}

// ProcessFunc parses one report file into coverage fragments.
// dataFile is the absolute path of the coverage data file gcov
// consumed, for source file name guessing.
type ProcessFunc func(reportFile, dataFile, workDir string) ([]*coverage.FileCoverage, error)

// ProcessDataFile runs gcov on one .gcda/.gcno file, trying candidate
// working directories until one resolves the sources, and feeds every
// produced report file to process. Only the fragments of the winning
// attempt are returned; a failed attempt leaves nothing behind, so a
// retry from the next directory cannot double-count. The returned
// paths are files the caller should remove once the whole run
// succeeded.
//
// A merge conflict from process ends the directory search immediately:
// the data is structurally inconsistent and no working directory can
// cure that. Other per-directory failures accumulate; when no
// directory works they form one error, fatal unless IgnoreNoWorkingDir
// is set.
func (p *Program) ProcessDataFile(dataFile string, locks *worker.DirectoryLocks, opts RunOptions, process ProcessFunc) ([]*coverage.FileCoverage, []string, error) {
	logger.Debugf("Processing file: %s", dataFile)

	absDataFile, err := filepath.Abs(dataFile)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving %s: %w", dataFile, err)
	}

	dirs, attemptErrs := PotentialWorkingDirs(absDataFile, opts.ObjDir, opts.RootDir)

	var toErase []string
	if opts.DeleteDataFiles && !strings.HasSuffix(absDataFile, ".gcno") {
		toErase = append(toErase, absDataFile)
	}

	for _, dir := range dirs {
		fragments, done, attemptErr := p.processInDir(absDataFile, dir, locks, opts, process)
		if attemptErr != nil {
			var conflict *coverage.MergeConflictError
			if errors.As(attemptErr, &conflict) {
				return nil, toErase, attemptErr
			}
			attemptErrs = multierr.Append(attemptErrs, fmt.Errorf("in directory %s: %w", dir, attemptErr))
		}
		if done {
			return fragments, toErase, nil
		}
	}

	failure := fmt.Errorf("gcov produced errors processing %s and no candidate working directory resolved them: %w",
		dataFile, attemptErrs)
	logger.Errorf("%v", failure)
	if opts.IgnoreNoWorkingDir {
		return nil, toErase, nil
	}
	return nil, toErase, failure
}

func (p *Program) processInDir(absDataFile, dir string, locks *worker.DirectoryLocks, opts RunOptions, process ProcessFunc) (fragments []*coverage.FileCoverage, done bool, err error) {
	if err := p.ensureProbed(); err != nil {
		return nil, false, err
	}

	// gcov report names depend only on the source names, so
	// concurrent runs in one directory would collide.
	defer locks.Lock(dir)()

	stdout, stderr, runErr := p.RunData(dir, absDataFile)
	active, all := CreatedFiles(stdout, dir, opts.KeepReport)

	keepActive := false
	defer func() {
		leftover := all
		if keepActive {
			leftover = difference(all, active)
		}
		removeFiles(leftover)
	}()

	if runErr != nil {
		return nil, false, runErr
	}

	if StderrUnknownArgument(stderr) {
		return nil, false, fmt.Errorf("error in gcov command line: %s", strings.TrimSpace(stderr))
	}

	if (StderrMissingSource(stderr) && !opts.IgnoreSourceErrors) ||
		(StderrOutputError(stderr) && !opts.IgnoreOutputErrors) {
		// Most likely a wrong working directory guess.
		return nil, false, errors.New(strings.TrimSpace(stderr))
	}

	for _, reportFile := range active {
		if _, statErr := os.Stat(reportFile); statErr != nil {
			if opts.IgnoreOutputErrors {
				continue
			}
			return nil, false, fmt.Errorf("report file %s announced by gcov does not exist", reportFile)
		}
		parsed, processErr := process(reportFile, absDataFile, dir)
		if processErr != nil {
			return nil, false, processErr
		}
		fragments = append(fragments, parsed...)
	}

	if opts.KeepReportFiles {
		if renameErr := renameReports(absDataFile, active); renameErr != nil {
			return nil, false, renameErr
		}
		keepActive = true
	}
	return fragments, true, nil
}

func difference(all, kept []string) []string {
	keptSet := make(map[string]struct{}, len(kept))
	for _, path := range kept {
		keptSet[path] = struct{}{}
	}
	var rest []string
	for _, path := range all {
		if _, ok := keptSet[path]; !ok {
			rest = append(rest, path)
		}
	}
	return rest
}

func removeFiles(paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warnf("Could not remove %s: %v", path, err)
		}
	}
}

// renameReports prefixes kept report files with their data file's
// name, so reports from different compilation units do not overwrite
// each other.
func renameReports(absDataFile string, reports []string) error {
	base := filepath.Base(absDataFile)
	for _, report := range reports {
		dir, name := filepath.Split(report)
		if err := os.Rename(report, filepath.Join(dir, base+"."+name)); err != nil {
			return fmt.Errorf("keeping report file %s: %w", report, err)
		}
	}
	return nil
}
