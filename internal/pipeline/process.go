package pipeline

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zjy-dev/gocovr/internal/coverage"
	"github.com/zjy-dev/gocovr/internal/decision"
	"github.com/zjy-dev/gocovr/internal/exclusions"
	"github.com/zjy-dev/gocovr/internal/gcov"
	"github.com/zjy-dev/gocovr/internal/gcovexec"
	"github.com/zjy-dev/gocovr/internal/logger"
	"github.com/zjy-dev/gocovr/internal/sourceio"
)

// processDataFile runs gcov over one .gcda or .gcno file and merges
// the resulting fragments. Nothing is merged when the invocation
// failed, so a retry in another working directory cannot double count.
func (r *run) processDataFile(dataFile string) error {
	logger.Debugf("Processing file: %s", dataFile)
	fragments, toErase, err := r.program.ProcessDataFile(dataFile, r.locks, r.runOptions(), r.parseReport)
	if err != nil {
		return err
	}
	r.scheduleErase(toErase)
	return r.mergeFragments(fragments)
}

// processReportFile consumes one pre-existing gcov report file.
func (r *run) processReportFile(reportFile string) error {
	if !r.opts.ReportFilters.Keep(reportFile) {
		logger.Debugf("Excluding gcov report file %s", reportFile)
		return nil
	}

	fragments, err := r.parseReport(reportFile, "", "")
	if err != nil {
		return err
	}
	if !r.opts.KeepReportFiles {
		r.scheduleErase([]string{reportFile})
	}
	return r.mergeFragments(fragments)
}

func (r *run) runOptions() gcovexec.RunOptions {
	return gcovexec.RunOptions{
		ObjDir:             r.opts.ObjDir,
		RootDir:            r.opts.RootDir,
		KeepReportFiles:    r.opts.KeepReportFiles,
		DeleteDataFiles:    r.opts.DeleteDataFiles,
		KeepReport:         r.opts.ReportFilters.Keep,
		IgnoreSourceErrors: r.opts.IgnoreSourceErrors,
		IgnoreOutputErrors: r.opts.IgnoreOutputErrors,
		IgnoreNoWorkingDir: r.opts.IgnoreNoWorkingDir,
	}
}

// parseReport turns one gcov report file into coverage fragments.
// dataFile names the data file gcov consumed, or is empty when the
// report pre-existed the run.
func (r *run) parseReport(reportFile, dataFile, workDir string) ([]*coverage.FileCoverage, error) {
	if strings.HasSuffix(reportFile, ".gcov.json.gz") {
		return r.parseJSONReport(reportFile)
	}
	return r.parseTextReport(reportFile, dataFile)
}

func (r *run) parseTextReport(reportFile, dataFile string) ([]*coverage.FileCoverage, error) {
	reportLines, err := sourceio.ReadLines(reportFile, r.opts.Parse.SourceEncoding)
	if err != nil {
		return nil, err
	}

	metadata, err := gcov.ParseMetadata(reportFile, reportLines)
	if err != nil {
		return nil, err
	}

	filename := filepath.Clean(guessSourceFileName(
		strings.TrimSpace(metadata["Source"]), reportFile, dataFile,
		r.opts.RootDir, r.opts.StartingDir, r.objDirAbs, r.currdir))
	if !r.opts.Filters.Keep(filename) {
		logger.Debugf("Filtering coverage data for file %s", filename)
		return nil, nil
	}
	logger.Debugf("Parsing coverage data for file %s", filename)

	filecov, sourceLines, err := gcov.ParseText(reportLines, filename, reportFile, r.opts.Parse, r.diag)
	if err != nil {
		return nil, err
	}
	if err := r.refine(filecov, sourceLines); err != nil {
		return nil, err
	}
	return []*coverage.FileCoverage{filecov}, nil
}

func (r *run) parseJSONReport(reportFile string) ([]*coverage.FileCoverage, error) {
	data, err := readGzip(reportFile)
	if err != nil {
		return nil, err
	}

	parsed, err := gcov.ParseJSON(data, reportFile, r.keepMeasured, r.opts.Parse, r.diag)
	if err != nil {
		return nil, err
	}

	fragments := make([]*coverage.FileCoverage, 0, len(parsed))
	for _, pf := range parsed {
		if err := r.refine(pf.Coverage, pf.SourceLines); err != nil {
			return nil, err
		}
		fragments = append(fragments, pf.Coverage)
	}
	return fragments, nil
}

func (r *run) keepMeasured(filename string) bool {
	if r.opts.Filters.Keep(filepath.Clean(filename)) {
		return true
	}
	logger.Debugf("Filtering coverage data for file %s", filename)
	return false
}

// refine runs the exclusion passes and the optional decision analysis
// over a freshly parsed fragment.
func (r *run) refine(filecov *coverage.FileCoverage, sourceLines []string) error {
	if err := exclusions.Apply(filecov, sourceLines, r.opts.Exclusions); err != nil {
		return err
	}
	if r.opts.AnalyzeDecisions {
		decision.Analyze(filecov, sourceLines)
	}
	return nil
}

func (r *run) mergeFragments(fragments []*coverage.FileCoverage) error {
	for _, fragment := range fragments {
		if err := r.container.Insert(fragment, r.opts.Merge); err != nil {
			return err
		}
	}
	return nil
}

// readGzip reads a gzip compressed report file whole.
func readGzip(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &sourceio.FilesystemError{Path: path, Op: "reading", Err: err}
	}
	defer file.Close()

	zr, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", path, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", path, err)
	}
	return data, nil
}
