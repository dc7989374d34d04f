// Package gcovexec drives the external gcov tool: it probes what the
// installed binary can do, assembles the invocation for a coverage
// data file, and classifies the tool's output streams.
//
// The tool's capabilities differ between GCC versions and between GCC
// and LLVM builds, so the supported flag set is detected once from the
// help and version output and cached for the life of the program
// value. All invocations force an English locale because the stdout
// and stderr scraping matches English messages.
package gcovexec

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zjy-dev/gocovr/internal/exec"
	"github.com/zjy-dev/gocovr/internal/gcov"
	"github.com/zjy-dev/gocovr/internal/logger"
)

// gcovEnv pins the tool's message language so output scraping works.
var gcovEnv = []string{"LC_ALL=C", "LANGUAGE=en_US"}

// ToolInvocationError reports a gcov run that failed outright: death
// by signal, an exit code outside the allow list, or a command line
// the tool rejected.
type ToolInvocationError struct {
	Command  string
	ExitCode int
	// Signaled is set when the process died from a signal; ExitCode
	// then holds the negative status.
	Signaled bool
	Stderr   string
}

func (e *ToolInvocationError) Error() string {
	if e.Signaled {
		return fmt.Sprintf("%s return code was %d (exited by signal), stderr was >>%s<<", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s return code was %d, stderr was >>%s<<", e.Command, e.ExitCode, e.Stderr)
}

// Program wraps one gcov executable with its detected capabilities.
// A single Program is shared by all workers; probing happens once.
type Program struct {
	executor exec.Executor
	cmd      []string

	// preferJSON enables the JSON intermediate format when the tool
	// supports it. The JSON format carries no call records, so callers
	// that need call data must leave it off.
	preferJSON bool

	mu           sync.Mutex
	probed       bool
	defaultArgs  []string
	allowedExits map[int]struct{}
}

// NewProgram creates a driver for the given gcov command. The command
// may carry embedded arguments separated by spaces ("llvm-cov gcov").
func NewProgram(cmd string, executor exec.Executor, preferJSON bool) (*Program, error) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return nil, fmt.Errorf("gcov command is empty")
	}
	return &Program{
		executor:     executor,
		cmd:          fields,
		preferJSON:   preferJSON,
		allowedExits: map[int]struct{}{0: {}},
	}, nil
}

// Command returns the configured command line for diagnostics.
func (p *Program) Command() string {
	return strings.Join(p.cmd, " ")
}

// DefaultArgs returns the capability-dependent flags added to every
// data invocation, probing the tool on first use.
func (p *Program) DefaultArgs() ([]string, error) {
	if err := p.ensureProbed(); err != nil {
		return nil, err
	}
	return append([]string(nil), p.defaultArgs...), nil
}

func (p *Program) ensureProbed() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.probed {
		return nil
	}

	help, err := p.helpText()
	if err != nil {
		return err
	}

	args := []string{"--branch-counts", "--branch-probabilities", "--all-blocks"}

	if p.preferJSON && strings.Contains(help, "--json-format") {
		version, err := p.versionText()
		if err != nil {
			return err
		}
		if strings.Contains(version, "JSON format version: "+gcov.GcovJSONVersion) {
			logger.Debugf("GCOV capabilities: JSON format available.")
			args = append(args, "--json-format")
			if strings.Contains(help, "--condition") {
				logger.Debugf("GCOV capabilities: Condition coverage available.")
				args = append(args, "--condition")
			}
		} else {
			logger.Debugf("GCOV capabilities: Unsupported JSON format detected.")
		}
	}

	if strings.Contains(help, "--demangled-names") {
		logger.Debugf("GCOV capabilities: Demangled names available.")
		args = append(args, "--demangled-names")
	}

	switch {
	case strings.Contains(help, "--hash-filenames"):
		logger.Debugf("GCOV capabilities: Hashing of filenames available.")
		args = append(args, "--hash-filenames")
	case strings.Contains(help, "--preserve-paths"):
		logger.Debugf("GCOV capabilities: Preserving of paths available.")
		args = append(args, "--preserve-paths")
	default:
		logger.Warnf("Options '--hash-filenames' and '--preserve-paths' are not supported by '%s'. "+
			"Source files with identical file names may result in incorrect coverage.", p.Command())
	}

	// GCC's gcov exits with 6 on write errors that may still have
	// produced usable report files. LLVM's does not.
	if !strings.Contains(help, "LLVM") {
		p.allowedExits[6] = struct{}{}
	}

	p.defaultArgs = args
	p.probed = true
	return nil
}

// helpText concatenates the output of --help and --help-hidden; only
// invocations the tool accepts contribute. GCC's gcov rejects
// --help-hidden, LLVM's hides most flags without it.
func (p *Program) helpText() (string, error) {
	var help strings.Builder
	for _, flag := range []string{"--help", "--help-hidden"} {
		result, err := p.run("", []string{flag})
		if err != nil {
			return "", err
		}
		if result.ExitCode == 0 {
			help.WriteString(result.Stdout)
		}
	}
	if help.Len() == 0 {
		return "", fmt.Errorf("could not get help output of %s", p.Command())
	}
	return help.String(), nil
}

func (p *Program) versionText() (string, error) {
	result, err := p.run("", []string{"--version"})
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("could not get version information of %s", p.Command())
	}
	return result.Stdout, nil
}

func (p *Program) run(dir string, args []string) (*exec.ExecutionResult, error) {
	name := p.cmd[0]
	full := append(append([]string(nil), p.cmd[1:]...), args...)
	logger.Debugf("Running gcov: '%s %s' in %q", name, strings.Join(full, " "), dir)

	result, err := p.executor.RunIn(dir, gcovEnv, name, full...)
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", p.Command(), err)
	}
	return result, nil
}

// RunData invokes gcov on one coverage data file from the given
// working directory. The caller must hold the directory lock for dir.
// The object directory is passed relative to dir when possible,
// mirroring how the compiler was likely invoked there.
func (p *Program) RunData(dir, absDataFile string) (stdout, stderr string, err error) {
	if err := p.ensureProbed(); err != nil {
		return "", "", err
	}

	objectDir := filepath.Dir(absDataFile)
	if rel, relErr := filepath.Rel(dir, objectDir); relErr == nil {
		objectDir = rel
	}

	args := []string{filepath.ToSlash(absDataFile)}
	args = append(args, p.defaultArgs...)
	args = append(args, "--object-directory", objectDir)

	result, err := p.run(dir, args)
	if err != nil {
		return "", "", err
	}
	logger.Debugf("GCOV return code was %d, stderr was:\n%s<<", result.ExitCode, result.Stderr)

	if result.ExitCode < 0 {
		return result.Stdout, result.Stderr, &ToolInvocationError{
			Command:  p.Command(),
			ExitCode: result.ExitCode,
			Signaled: true,
			Stderr:   result.Stderr,
		}
	}
	if _, ok := p.allowedExits[result.ExitCode]; !ok {
		return result.Stdout, result.Stderr, &ToolInvocationError{
			Command:  p.Command(),
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
		}
	}
	return result.Stdout, result.Stderr, nil
}
