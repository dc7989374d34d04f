package gcovexec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/gocovr/internal/coverage"
	"github.com/zjy-dev/gocovr/internal/exec"
	"github.com/zjy-dev/gocovr/internal/worker"
)

// MockExecutor is a mock implementation of exec.Executor for testing.
type MockExecutor struct {
	RunInFunc func(dir string, env []string, command string, args ...string) (*exec.ExecutionResult, error)
}

func (m *MockExecutor) Run(command string, args ...string) (*exec.ExecutionResult, error) {
	return m.RunIn("", nil, command, args...)
}

func (m *MockExecutor) RunIn(dir string, env []string, command string, args ...string) (*exec.ExecutionResult, error) {
	if m.RunInFunc != nil {
		return m.RunInFunc(dir, env, command, args...)
	}
	return &exec.ExecutionResult{ExitCode: 0}, nil
}

func TestNewProgram(t *testing.T) {
	t.Run("should reject an empty command", func(t *testing.T) {
		_, err := NewProgram("  ", &MockExecutor{}, false)
		assert.Error(t, err)
	})

	t.Run("should keep embedded arguments", func(t *testing.T) {
		program, err := NewProgram("llvm-cov gcov", &MockExecutor{}, false)
		require.NoError(t, err)
		assert.Equal(t, "llvm-cov gcov", program.Command())
	})
}

func TestDefaultArgs(t *testing.T) {
	t.Run("should enable every capability a full featured gcov reports", func(t *testing.T) {
		help := "Usage: gcov [OPTION...]\n  --json-format\n  --condition\n  --demangled-names\n  --hash-filenames\n"
		executor := &MockExecutor{RunInFunc: func(dir string, env []string, command string, args ...string) (*exec.ExecutionResult, error) {
			switch args[len(args)-1] {
			case "--help":
				return &exec.ExecutionResult{Stdout: help}, nil
			case "--help-hidden":
				return &exec.ExecutionResult{ExitCode: 1}, nil
			case "--version":
				return &exec.ExecutionResult{Stdout: "gcov (GCC) 14.2.0\nJSON format version: 2\n"}, nil
			}
			return nil, fmt.Errorf("unexpected invocation: %v", args)
		}}
		program, err := NewProgram("gcov", executor, true)
		require.NoError(t, err)

		args, err := program.DefaultArgs()
		require.NoError(t, err)
		assert.Equal(t, []string{
			"--branch-counts", "--branch-probabilities", "--all-blocks",
			"--json-format", "--condition", "--demangled-names", "--hash-filenames",
		}, args)
	})

	t.Run("should keep text output when the JSON format version differs", func(t *testing.T) {
		executor := &MockExecutor{RunInFunc: func(dir string, env []string, command string, args ...string) (*exec.ExecutionResult, error) {
			switch args[len(args)-1] {
			case "--help":
				return &exec.ExecutionResult{Stdout: "  --json-format\n  --preserve-paths\n"}, nil
			case "--help-hidden":
				return &exec.ExecutionResult{ExitCode: 1}, nil
			case "--version":
				return &exec.ExecutionResult{Stdout: "gcov (GCC) 8.5.0\nJSON format version: 1\n"}, nil
			}
			return nil, fmt.Errorf("unexpected invocation: %v", args)
		}}
		program, err := NewProgram("gcov", executor, true)
		require.NoError(t, err)

		args, err := program.DefaultArgs()
		require.NoError(t, err)
		assert.Equal(t, []string{
			"--branch-counts", "--branch-probabilities", "--all-blocks", "--preserve-paths",
		}, args)
	})

	t.Run("should not probe the version when text output is preferred", func(t *testing.T) {
		versionCalls := 0
		executor := &MockExecutor{RunInFunc: func(dir string, env []string, command string, args ...string) (*exec.ExecutionResult, error) {
			switch args[len(args)-1] {
			case "--help":
				return &exec.ExecutionResult{Stdout: "  --json-format\n  --hash-filenames\n"}, nil
			case "--help-hidden":
				return &exec.ExecutionResult{ExitCode: 1}, nil
			case "--version":
				versionCalls++
				return &exec.ExecutionResult{Stdout: "JSON format version: 2\n"}, nil
			}
			return nil, fmt.Errorf("unexpected invocation: %v", args)
		}}
		program, err := NewProgram("gcov", executor, false)
		require.NoError(t, err)

		args, err := program.DefaultArgs()
		require.NoError(t, err)
		assert.NotContains(t, args, "--json-format")
		assert.Zero(t, versionCalls)
	})

	t.Run("should concatenate visible and hidden help", func(t *testing.T) {
		executor := &MockExecutor{RunInFunc: func(dir string, env []string, command string, args ...string) (*exec.ExecutionResult, error) {
			switch args[len(args)-1] {
			case "--help":
				return &exec.ExecutionResult{Stdout: "USAGE: llvm-cov gcov [options] SOURCEFILE (LLVM)\n  --hash-filenames\n"}, nil
			case "--help-hidden":
				return &exec.ExecutionResult{Stdout: "  --demangled-names\n"}, nil
			}
			return nil, fmt.Errorf("unexpected invocation: %v", args)
		}}
		program, err := NewProgram("llvm-cov gcov", executor, false)
		require.NoError(t, err)

		args, err := program.DefaultArgs()
		require.NoError(t, err)
		assert.Equal(t, []string{
			"--branch-counts", "--branch-probabilities", "--all-blocks",
			"--demangled-names", "--hash-filenames",
		}, args)
	})

	t.Run("should fail when the tool offers no help output", func(t *testing.T) {
		executor := &MockExecutor{RunInFunc: func(dir string, env []string, command string, args ...string) (*exec.ExecutionResult, error) {
			return &exec.ExecutionResult{ExitCode: 1}, nil
		}}
		program, err := NewProgram("gcov", executor, false)
		require.NoError(t, err)

		_, err = program.DefaultArgs()
		assert.ErrorContains(t, err, "could not get help output of gcov")
	})

	t.Run("should probe capabilities only once", func(t *testing.T) {
		helpCalls := 0
		executor := &MockExecutor{RunInFunc: func(dir string, env []string, command string, args ...string) (*exec.ExecutionResult, error) {
			helpCalls++
			return &exec.ExecutionResult{Stdout: "  --hash-filenames\n"}, nil
		}}
		program, err := NewProgram("gcov", executor, false)
		require.NoError(t, err)

		_, err = program.DefaultArgs()
		require.NoError(t, err)
		_, err = program.DefaultArgs()
		require.NoError(t, err)
		assert.Equal(t, 2, helpCalls)
	})
}

func TestRunData(t *testing.T) {
	newProgram := func(t *testing.T, help string, onData func(dir string, env []string, args []string) *exec.ExecutionResult) *Program {
		t.Helper()
		executor := &MockExecutor{RunInFunc: func(dir string, env []string, command string, args ...string) (*exec.ExecutionResult, error) {
			switch args[len(args)-1] {
			case "--help":
				return &exec.ExecutionResult{Stdout: help}, nil
			case "--help-hidden":
				return &exec.ExecutionResult{ExitCode: 1}, nil
			}
			return onData(dir, env, args), nil
		}}
		program, err := NewProgram("gcov", executor, false)
		require.NoError(t, err)
		return program
	}

	t.Run("should assemble the gcov invocation", func(t *testing.T) {
		root := t.TempDir()
		objDir := filepath.Join(root, "obj")
		require.NoError(t, os.MkdirAll(objDir, 0o755))
		absData := filepath.Join(objDir, "main.gcda")

		var gotDir string
		var gotEnv, gotArgs []string
		program := newProgram(t, "  --hash-filenames\n", func(dir string, env []string, args []string) *exec.ExecutionResult {
			gotDir = dir
			gotEnv = env
			gotArgs = append([]string(nil), args...)
			return &exec.ExecutionResult{Stdout: "ok"}
		})

		stdout, stderr, err := program.RunData(root, absData)
		require.NoError(t, err)
		assert.Equal(t, "ok", stdout)
		assert.Empty(t, stderr)
		assert.Equal(t, root, gotDir)
		assert.Equal(t, []string{"LC_ALL=C", "LANGUAGE=en_US"}, gotEnv)
		assert.Equal(t, []string{
			filepath.ToSlash(absData),
			"--branch-counts", "--branch-probabilities", "--all-blocks", "--hash-filenames",
			"--object-directory", "obj",
		}, gotArgs)
	})

	t.Run("should tolerate exit code 6 from a GCC gcov", func(t *testing.T) {
		program := newProgram(t, "  --hash-filenames\n", func(dir string, env []string, args []string) *exec.ExecutionResult {
			return &exec.ExecutionResult{Stdout: "Creating 'main.cpp.gcov'\n", Stderr: "write failure", ExitCode: 6}
		})

		stdout, stderr, err := program.RunData(t.TempDir(), "/tmp/main.gcda")
		require.NoError(t, err)
		assert.Contains(t, stdout, "Creating")
		assert.Equal(t, "write failure", stderr)
	})

	t.Run("should reject exit code 6 from an LLVM gcov", func(t *testing.T) {
		program := newProgram(t, "USAGE: llvm-cov gcov (LLVM)\n  --hash-filenames\n", func(dir string, env []string, args []string) *exec.ExecutionResult {
			return &exec.ExecutionResult{Stderr: "write failure", ExitCode: 6}
		})

		_, _, err := program.RunData(t.TempDir(), "/tmp/main.gcda")
		var toolErr *ToolInvocationError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, 6, toolErr.ExitCode)
		assert.False(t, toolErr.Signaled)
		assert.ErrorContains(t, err, "return code was 6")
	})

	t.Run("should report death by signal", func(t *testing.T) {
		program := newProgram(t, "  --hash-filenames\n", func(dir string, env []string, args []string) *exec.ExecutionResult {
			return &exec.ExecutionResult{ExitCode: -15}
		})

		_, _, err := program.RunData(t.TempDir(), "/tmp/main.gcda")
		var toolErr *ToolInvocationError
		require.ErrorAs(t, err, &toolErr)
		assert.True(t, toolErr.Signaled)
		assert.ErrorContains(t, err, "(exited by signal)")
	})

	t.Run("should reject other nonzero exit codes", func(t *testing.T) {
		program := newProgram(t, "  --hash-filenames\n", func(dir string, env []string, args []string) *exec.ExecutionResult {
			return &exec.ExecutionResult{ExitCode: 2}
		})

		_, _, err := program.RunData(t.TempDir(), "/tmp/main.gcda")
		var toolErr *ToolInvocationError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, 2, toolErr.ExitCode)
	})
}

func TestCreatedFiles(t *testing.T) {
	t.Run("should collect files in the order gcov announced them", func(t *testing.T) {
		stdout := "File 'src/main.cpp'\nCreating 'main.cpp.gcov'\n\nFile 'src/util.cpp'\nCreating 'util.cpp.gcov'\n"
		active, all := CreatedFiles(stdout, "/work", nil)
		expected := []string{"/work/main.cpp.gcov", "/work/util.cpp.gcov"}
		assert.Equal(t, expected, active)
		assert.Equal(t, expected, all)
	})

	t.Run("should filter kept files without losing track of produced ones", func(t *testing.T) {
		stdout := "Creating 'main.cpp.gcov'\nCreating 'util.cpp.gcov'\n"
		active, all := CreatedFiles(stdout, "/work", func(name string) bool { return name == "main.cpp.gcov" })
		assert.Equal(t, []string{"/work/main.cpp.gcov"}, active)
		assert.Equal(t, []string{"/work/main.cpp.gcov", "/work/util.cpp.gcov"}, all)
	})

	t.Run("should deduplicate repeated announcements", func(t *testing.T) {
		stdout := "Creating 'main.cpp.gcov'\nCreating 'main.cpp.gcov'\n"
		active, _ := CreatedFiles(stdout, "/work", nil)
		assert.Equal(t, []string{"/work/main.cpp.gcov"}, active)
	})

	t.Run("should recognize older quoting and indented lines", func(t *testing.T) {
		stdout := "  creating `main.c.gcov'\nthis line is creating nothing\n"
		active, _ := CreatedFiles(stdout, "/work", nil)
		assert.Equal(t, []string{"/work/main.c.gcov"}, active)
	})
}

func TestStderrClassification(t *testing.T) {
	t.Run("should recognize unresolved source and graph files", func(t *testing.T) {
		for _, stderr := range []string{
			"main.cpp:cannot open source file",
			"Could not open source file main.cpp",
			"main.gcno:cannot open graph file",
			"main.gcno: No such file or directory",
		} {
			assert.True(t, StderrMissingSource(stderr), stderr)
		}
		assert.False(t, StderrMissingSource("Lines executed:87.5% of 8"))
	})

	t.Run("should recognize unwritable report files", func(t *testing.T) {
		for _, stderr := range []string{
			"main.cpp.gcov:cannot open output file",
			"Could not open output file main.cpp.gcov",
			"main.cpp.gcov: Operation not permitted",
			"main.cpp.gcov: Permission denied",
			"main.cpp.gcov: Read-only file system",
		} {
			assert.True(t, StderrOutputError(stderr), stderr)
		}
		assert.False(t, StderrOutputError("Lines executed:87.5% of 8"))
	})

	t.Run("should recognize rejected arguments", func(t *testing.T) {
		assert.True(t, StderrUnknownArgument("gcov: Unknown command line argument '--condition'"))
		assert.False(t, StderrUnknownArgument(""))
	})
}

func TestPotentialWorkingDirs(t *testing.T) {
	t.Run("should stop at the root directory when the data file sits there", func(t *testing.T) {
		root := t.TempDir()
		dirs, err := PotentialWorkingDirs(filepath.Join(root, "main.gcda"), "", root)
		require.NoError(t, err)
		assert.Equal(t, []string{root}, dirs)
	})

	t.Run("should walk the data file parents when no object directory is set", func(t *testing.T) {
		root := t.TempDir()
		absData := filepath.Join(root, "a", "b", "main.gcda")
		dirs, err := PotentialWorkingDirs(absData, "", root)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(dirs), 3)
		assert.Equal(t, root, dirs[0])
		assert.Equal(t, filepath.Join(root, "a", "b"), dirs[1])
		assert.Equal(t, filepath.Join(root, "a"), dirs[2])
		assert.Equal(t, string(filepath.Separator), dirs[len(dirs)-1])
	})

	t.Run("should use an existing absolute object directory as the only candidate", func(t *testing.T) {
		objDir := t.TempDir()
		root := t.TempDir()
		dirs, err := PotentialWorkingDirs(filepath.Join(root, "main.gcda"), objDir, root)
		require.NoError(t, err)
		assert.Equal(t, []string{objDir, root}, dirs)
	})

	t.Run("should report a missing object directory and fall back to parents", func(t *testing.T) {
		root := t.TempDir()
		dirs, err := PotentialWorkingDirs(filepath.Join(root, "main.gcda"), filepath.Join(root, "nope"), root)
		assert.ErrorContains(t, err, "gcov-object-directory")
		assert.Equal(t, []string{root}, dirs)
	})

	t.Run("should resolve a relative object directory against the data file", func(t *testing.T) {
		root := t.TempDir()
		build := filepath.Join(root, "build")
		require.NoError(t, os.MkdirAll(filepath.Join(build, "objs"), 0o755))
		dirs, err := PotentialWorkingDirs(filepath.Join(build, "main.gcda"), "objs", root)
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(build, "objs"), root}, dirs)
	})
}

type gcovCall struct {
	dir  string
	args []string
}

// newGcovProgram stubs a text-mode GCC gcov whose data invocations are
// answered by onData and recorded.
func newGcovProgram(t *testing.T, onData func(dir string, args []string) *exec.ExecutionResult) (*Program, *[]gcovCall) {
	t.Helper()
	calls := &[]gcovCall{}
	executor := &MockExecutor{RunInFunc: func(dir string, env []string, command string, args ...string) (*exec.ExecutionResult, error) {
		switch args[len(args)-1] {
		case "--help":
			return &exec.ExecutionResult{Stdout: "Usage: gcov [OPTION...]\n  --hash-filenames\n"}, nil
		case "--help-hidden":
			return &exec.ExecutionResult{ExitCode: 1}, nil
		}
		*calls = append(*calls, gcovCall{dir: dir, args: append([]string(nil), args...)})
		return onData(dir, args), nil
	}}
	program, err := NewProgram("gcov", executor, false)
	require.NoError(t, err)
	return program, calls
}

func writeReport(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	return "Creating '" + name + "'\n"
}

func TestProcessDataFile(t *testing.T) {
	t.Run("should parse announced reports and clean them up", func(t *testing.T) {
		root := t.TempDir()
		dataFile := filepath.Join(root, "main.gcda")
		require.NoError(t, os.WriteFile(dataFile, []byte{0}, 0o644))

		program, calls := newGcovProgram(t, func(dir string, args []string) *exec.ExecutionResult {
			return &exec.ExecutionResult{Stdout: writeReport(t, dir, "main.cpp.gcov", "coverage")}
		})

		var contents []string
		process := func(reportFile, dataFile, workDir string) ([]*coverage.FileCoverage, error) {
			data, err := os.ReadFile(reportFile)
			require.NoError(t, err)
			contents = append(contents, string(data))
			return []*coverage.FileCoverage{coverage.NewFileCoverage("main.cpp")}, nil
		}

		fragments, toErase, err := program.ProcessDataFile(dataFile, worker.NewDirectoryLocks(), RunOptions{RootDir: root}, process)
		require.NoError(t, err)
		require.Len(t, fragments, 1)
		assert.Equal(t, "main.cpp", fragments[0].Filename)
		assert.Empty(t, toErase)
		assert.Equal(t, []string{"coverage"}, contents)
		assert.NoFileExists(t, filepath.Join(root, "main.cpp.gcov"))
		require.Len(t, *calls, 1)
		assert.Equal(t, root, (*calls)[0].dir)
	})

	t.Run("should retry from the next candidate directory when sources cannot be opened", func(t *testing.T) {
		root := t.TempDir()
		build := filepath.Join(root, "build")
		require.NoError(t, os.MkdirAll(build, 0o755))
		dataFile := filepath.Join(build, "main.gcda")
		require.NoError(t, os.WriteFile(dataFile, []byte{0}, 0o644))

		program, calls := newGcovProgram(t, func(dir string, args []string) *exec.ExecutionResult {
			if dir == root {
				return &exec.ExecutionResult{Stderr: "main.cpp:cannot open source file\n"}
			}
			return &exec.ExecutionResult{Stdout: writeReport(t, dir, "main.cpp.gcov", "coverage")}
		})

		var dataFiles, workDirs []string
		process := func(reportFile, dataFile, workDir string) ([]*coverage.FileCoverage, error) {
			dataFiles = append(dataFiles, dataFile)
			workDirs = append(workDirs, workDir)
			return []*coverage.FileCoverage{coverage.NewFileCoverage("main.cpp")}, nil
		}

		fragments, _, err := program.ProcessDataFile(dataFile, worker.NewDirectoryLocks(), RunOptions{RootDir: root}, process)
		require.NoError(t, err)
		assert.Len(t, fragments, 1)
		assert.Equal(t, []string{dataFile}, dataFiles)
		assert.Equal(t, []string{build}, workDirs)
		require.Len(t, *calls, 2)
		assert.Equal(t, root, (*calls)[0].dir)
		assert.Equal(t, build, (*calls)[1].dir)
	})

	t.Run("should fail fast when fragments conflict structurally", func(t *testing.T) {
		root := t.TempDir()
		build := filepath.Join(root, "build")
		require.NoError(t, os.MkdirAll(build, 0o755))
		dataFile := filepath.Join(build, "main.gcda")
		require.NoError(t, os.WriteFile(dataFile, []byte{0}, 0o644))

		program, calls := newGcovProgram(t, func(dir string, args []string) *exec.ExecutionResult {
			return &exec.ExecutionResult{Stdout: writeReport(t, dir, "main.cpp.gcov", "coverage")}
		})

		conflict := &coverage.MergeConflictError{Entity: "line", Key: "5", Property: "md5", ValueA: "a", ValueB: "b"}
		process := func(reportFile, dataFile, workDir string) ([]*coverage.FileCoverage, error) {
			return nil, fmt.Errorf("parsing %s: %w", reportFile, conflict)
		}

		_, _, err := program.ProcessDataFile(dataFile, worker.NewDirectoryLocks(), RunOptions{RootDir: root}, process)
		var got *coverage.MergeConflictError
		require.ErrorAs(t, err, &got)
		assert.Len(t, *calls, 1)
	})

	t.Run("should schedule consumed data files for deletion", func(t *testing.T) {
		root := t.TempDir()
		process := func(reportFile, dataFile, workDir string) ([]*coverage.FileCoverage, error) {
			return nil, nil
		}
		opts := RunOptions{RootDir: root, DeleteDataFiles: true}

		dataFile := filepath.Join(root, "main.gcda")
		require.NoError(t, os.WriteFile(dataFile, []byte{0}, 0o644))
		program, _ := newGcovProgram(t, func(dir string, args []string) *exec.ExecutionResult {
			return &exec.ExecutionResult{}
		})
		_, toErase, err := program.ProcessDataFile(dataFile, worker.NewDirectoryLocks(), opts, process)
		require.NoError(t, err)
		assert.Equal(t, []string{dataFile}, toErase)

		graphFile := filepath.Join(root, "main.gcno")
		require.NoError(t, os.WriteFile(graphFile, []byte{0}, 0o644))
		program, _ = newGcovProgram(t, func(dir string, args []string) *exec.ExecutionResult {
			return &exec.ExecutionResult{}
		})
		_, toErase, err = program.ProcessDataFile(graphFile, worker.NewDirectoryLocks(), opts, process)
		require.NoError(t, err)
		assert.Empty(t, toErase)
	})

	t.Run("should rename kept report files after their data file", func(t *testing.T) {
		root := t.TempDir()
		dataFile := filepath.Join(root, "main.gcda")
		require.NoError(t, os.WriteFile(dataFile, []byte{0}, 0o644))

		program, _ := newGcovProgram(t, func(dir string, args []string) *exec.ExecutionResult {
			stdout := writeReport(t, dir, "main.cpp.gcov", "coverage")
			stdout += writeReport(t, dir, "extra.cpp.gcov", "unwanted")
			return &exec.ExecutionResult{Stdout: stdout}
		})

		var reports []string
		process := func(reportFile, dataFile, workDir string) ([]*coverage.FileCoverage, error) {
			reports = append(reports, filepath.Base(reportFile))
			return nil, nil
		}

		opts := RunOptions{
			RootDir:         root,
			KeepReportFiles: true,
			KeepReport:      func(name string) bool { return name == "main.cpp.gcov" },
		}
		_, _, err := program.ProcessDataFile(dataFile, worker.NewDirectoryLocks(), opts, process)
		require.NoError(t, err)
		assert.Equal(t, []string{"main.cpp.gcov"}, reports)
		assert.FileExists(t, filepath.Join(root, "main.gcda.main.cpp.gcov"))
		assert.NoFileExists(t, filepath.Join(root, "main.cpp.gcov"))
		assert.NoFileExists(t, filepath.Join(root, "extra.cpp.gcov"))
	})

	t.Run("should treat an unknown command line argument as a configuration error", func(t *testing.T) {
		root := t.TempDir()
		dataFile := filepath.Join(root, "main.gcda")
		require.NoError(t, os.WriteFile(dataFile, []byte{0}, 0o644))

		program, _ := newGcovProgram(t, func(dir string, args []string) *exec.ExecutionResult {
			return &exec.ExecutionResult{Stderr: "gcov: Unknown command line argument '--condition'\n"}
		})
		process := func(reportFile, dataFile, workDir string) ([]*coverage.FileCoverage, error) {
			return nil, errors.New("must not be called")
		}

		_, _, err := program.ProcessDataFile(dataFile, worker.NewDirectoryLocks(), RunOptions{RootDir: root}, process)
		assert.ErrorContains(t, err, "error in gcov command line")
		assert.ErrorContains(t, err, "no candidate working directory")
	})

	t.Run("should only log an exhausted directory search when that is allowed", func(t *testing.T) {
		root := t.TempDir()
		dataFile := filepath.Join(root, "main.gcda")
		require.NoError(t, os.WriteFile(dataFile, []byte{0}, 0o644))

		program, _ := newGcovProgram(t, func(dir string, args []string) *exec.ExecutionResult {
			return &exec.ExecutionResult{Stderr: "main.cpp:cannot open source file\n"}
		})
		process := func(reportFile, dataFile, workDir string) ([]*coverage.FileCoverage, error) {
			return nil, errors.New("must not be called")
		}

		opts := RunOptions{RootDir: root, IgnoreNoWorkingDir: true}
		fragments, _, err := program.ProcessDataFile(dataFile, worker.NewDirectoryLocks(), opts, process)
		require.NoError(t, err)
		assert.Empty(t, fragments)
	})

	t.Run("should skip reports gcov announced but never wrote when allowed", func(t *testing.T) {
		root := t.TempDir()
		dataFile := filepath.Join(root, "main.gcda")
		require.NoError(t, os.WriteFile(dataFile, []byte{0}, 0o644))

		program, _ := newGcovProgram(t, func(dir string, args []string) *exec.ExecutionResult {
			return &exec.ExecutionResult{Stdout: "Creating 'ghost.gcov'\n"}
		})
		process := func(reportFile, dataFile, workDir string) ([]*coverage.FileCoverage, error) {
			return nil, errors.New("must not be called")
		}

		opts := RunOptions{RootDir: root, IgnoreOutputErrors: true}
		fragments, _, err := program.ProcessDataFile(dataFile, worker.NewDirectoryLocks(), opts, process)
		require.NoError(t, err)
		assert.Empty(t, fragments)
	})

	t.Run("should fail when an announced report is missing", func(t *testing.T) {
		root := t.TempDir()
		dataFile := filepath.Join(root, "main.gcda")
		require.NoError(t, os.WriteFile(dataFile, []byte{0}, 0o644))

		program, _ := newGcovProgram(t, func(dir string, args []string) *exec.ExecutionResult {
			return &exec.ExecutionResult{Stdout: "Creating 'ghost.gcov'\n"}
		})
		process := func(reportFile, dataFile, workDir string) ([]*coverage.FileCoverage, error) {
			return nil, errors.New("must not be called")
		}

		_, _, err := program.ProcessDataFile(dataFile, worker.NewDirectoryLocks(), RunOptions{RootDir: root}, process)
		assert.ErrorContains(t, err, "does not exist")
	})
}
