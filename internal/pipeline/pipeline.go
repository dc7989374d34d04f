// Package pipeline discovers coverage data files, drives gcov over
// them with bounded parallelism, and folds every parsed fragment into
// one coverage container.
//
// The stages per data file are: invoke gcov in a suitable working
// directory, parse the produced reports, apply the exclusion passes,
// optionally run the decision heuristic, and merge the fragment. The
// merged container is shared; the per-file work is not.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/zjy-dev/gocovr/internal/coverage"
	"github.com/zjy-dev/gocovr/internal/exclusions"
	"github.com/zjy-dev/gocovr/internal/exec"
	"github.com/zjy-dev/gocovr/internal/gcov"
	"github.com/zjy-dev/gocovr/internal/gcovexec"
	"github.com/zjy-dev/gocovr/internal/logger"
	"github.com/zjy-dev/gocovr/internal/sourceio"
	"github.com/zjy-dev/gocovr/internal/worker"
)

// Options configures a collection run.
type Options struct {
	// GcovCmd invokes the gcov tool, possibly with embedded arguments
	// such as "llvm-cov gcov". Empty means "gcov".
	GcovCmd string

	// RootDir is the project root. It anchors the working directory
	// search and is scanned when SearchPaths is empty.
	RootDir string

	// StartingDir is the directory the run was launched from. Empty
	// means the current working directory.
	StartingDir string

	// SearchPaths lists directories or single files to scan for
	// coverage data. Empty falls back to RootDir plus ObjDir.
	SearchPaths []string

	// ObjDir names the directory the compiler wrote object files to,
	// for builds that separate them from the sources.
	ObjDir string

	// UseExistingFiles consumes already generated gcov report files
	// instead of running the tool.
	UseExistingFiles bool

	// Filters selects measured source files by resolved path.
	Filters *FileFilters

	// ReportFilters selects gcov report files by the name the tool
	// announced.
	ReportFilters *FileFilters

	// ExcludeDirs prunes matching directories from the scan.
	ExcludeDirs []*regexp.Regexp

	// Parallel caps concurrent gcov invocations; zero or less runs
	// sequentially.
	Parallel int

	// KeepReportFiles keeps the gcov report files, renamed after
	// their data file, instead of treating them as temporaries.
	KeepReportFiles bool

	// DeleteDataFiles removes consumed .gcda files after the run.
	DeleteDataFiles bool

	// The Ignore options relax individual gcov failure classes, each
	// matching the tool option of the same name.
	IgnoreSourceErrors bool
	IgnoreOutputErrors bool
	IgnoreNoWorkingDir bool

	// Executor runs subprocesses; nil uses the real one.
	Executor exec.Executor

	// Parse, Exclusions and Merge configure the downstream passes.
	Parse      gcov.Options
	Exclusions exclusions.Options
	Merge      coverage.MergeOptions

	// AnalyzeDecisions enables the decision heuristic after the
	// exclusion passes.
	AnalyzeDecisions bool
}

// run is the shared state of one collection.
type run struct {
	opts      Options
	currdir   string
	objDirAbs string
	program   *gcovexec.Program
	locks     *worker.DirectoryLocks
	container *coverage.Container
	diag      *gcov.Diagnostics

	mu        sync.Mutex
	skipped   error
	skipCount int64
	toErase   map[string]struct{}
}

// Run executes a full collection: discovery, parallel gcov
// invocation, parsing, exclusion and decision passes, and the merge
// into one container. Filesystem trouble with an individual input
// skips that input; the run only fails outright when not a single
// file could be processed.
func Run(ctx context.Context, opts Options) (*coverage.Container, error) {
	r, err := newRun(opts)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx)
}

func newRun(opts Options) (*run, error) {
	if opts.GcovCmd == "" {
		opts.GcovCmd = "gcov"
	}
	if opts.RootDir == "" {
		opts.RootDir = "."
	}
	rootDir, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolving root directory: %w", err)
	}
	opts.RootDir = rootDir

	currdir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving current directory: %w", err)
	}
	if opts.StartingDir == "" {
		opts.StartingDir = currdir
	}

	var objDirAbs string
	if opts.ObjDir != "" {
		if objDirAbs, err = filepath.Abs(opts.ObjDir); err != nil {
			return nil, fmt.Errorf("resolving object directory: %w", err)
		}
	}

	if len(opts.SearchPaths) == 0 {
		opts.SearchPaths = []string{opts.RootDir}
		if opts.ObjDir != "" {
			opts.SearchPaths = append(opts.SearchPaths, opts.ObjDir)
		}
	}

	opts.Parse.UseExistingFiles = opts.UseExistingFiles

	executor := opts.Executor
	if executor == nil {
		executor = exec.NewCommandExecutor()
	}
	// The JSON report format carries no call records, so it is only
	// requested when calls are dropped anyway.
	program, err := gcovexec.NewProgram(opts.GcovCmd, executor, opts.Exclusions.Calls)
	if err != nil {
		return nil, err
	}

	return &run{
		opts:      opts,
		currdir:   currdir,
		objDirAbs: objDirAbs,
		program:   program,
		locks:     worker.NewDirectoryLocks(),
		container: coverage.NewContainer(),
		diag:      &gcov.Diagnostics{},
		toErase:   make(map[string]struct{}),
	}, nil
}

func (r *run) collect(ctx context.Context) (*coverage.Container, error) {
	files, err := r.discover()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		logger.Warnf("No coverage data files found in %s", strings.Join(r.opts.SearchPaths, ", "))
		return r.container, nil
	}

	process := r.processDataFile
	if r.opts.UseExistingFiles {
		process = r.processReportFile
	}

	pool := worker.NewPool(ctx, r.opts.Parallel)
	for _, file := range files {
		file := file // the submitted closure outlives the iteration; pre-1.22 range variables are shared
		pool.Submit(func(context.Context) error {
			err := process(file)
			var fsErr *sourceio.FilesystemError
			if errors.As(err, &fsErr) {
				r.recordSkip(file, err)
				return nil
			}
			return err
		})
	}
	if err := pool.Wait(); err != nil {
		return nil, err
	}
	if err := r.failWhenNothingProcessed(pool.Completed()); err != nil {
		return nil, err
	}

	r.eraseScheduled()
	r.logSummary()
	return r.container, nil
}

func (r *run) discover() ([]string, error) {
	if r.opts.UseExistingFiles {
		return FindReportFiles(r.opts.SearchPaths, r.opts.ExcludeDirs)
	}
	return FindDataFiles(r.opts.SearchPaths, r.opts.ExcludeDirs)
}

func (r *run) recordSkip(file string, err error) {
	logger.Warnf("Skipping %s: %v", file, err)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped = multierr.Append(r.skipped, err)
	r.skipCount++
}

// failWhenNothingProcessed turns the collected skips into a hard
// error when every input was skipped. A partial harvest with a
// warning trail is still a result.
func (r *run) failWhenNothingProcessed(completed int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.skipCount > 0 && completed == r.skipCount {
		return fmt.Errorf("no coverage data file could be processed: %w", r.skipped)
	}
	return nil
}

func (r *run) scheduleErase(paths []string) {
	if len(paths) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, path := range paths {
		r.toErase[path] = struct{}{}
	}
}

func (r *run) eraseScheduled() {
	r.mu.Lock()
	paths := make([]string, 0, len(r.toErase))
	for path := range r.toErase {
		paths = append(paths, path)
	}
	r.toErase = make(map[string]struct{})
	r.mu.Unlock()

	sort.Strings(paths)
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warnf("Could not remove %s: %v", path, err)
		}
	}
}

// logSummary prints the end of run accounting: files gathered and the
// anomaly totals the parsers collected along the way.
func (r *run) logSummary() {
	logger.Infof("Gathered coverage data for %d files", r.container.Len())
	if negative := r.diag.NegativeHits.Load(); negative > 0 {
		logger.Warnf("Ignored %d negative hits in total.", negative)
	}
	if suspicious := r.diag.SuspiciousHits.Load(); suspicious > 0 {
		logger.Warnf("Ignored %d suspicious hits in total.", suspicious)
	}
	if unrecognized := r.diag.UnrecognizedLines.Load(); unrecognized > 0 {
		logger.Warnf("Skipped %d unrecognized lines in total.", unrecognized)
	}
}
