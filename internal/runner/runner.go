package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/snl-sec/snlscan/internal/model"
)

// lineBufferSize is the channel buffer between the stdout reader and the
// consumer. Large enough that a briefly slow parser does not stall the
// tool's stdout pipe.
const lineBufferSize = 256

// maxLineSize bounds a single output line. Detection tools occasionally
// emit very long matched-at URLs with embedded payloads; 1MB accommodates
// them without letting a misbehaving tool exhaust memory.
const maxLineSize = 1024 * 1024

// Runner locates and executes external scanning tools.
type Runner struct {
	// binDir is the bundled binary directory checked before the search
	// path. Empty disables the check.
	binDir string

	// logger for structured logging.
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithBinDir sets the bundled binary directory checked before the search path.
func WithBinDir(dir string) Option {
	return func(r *Runner) {
		r.binDir = dir
	}
}

// WithLogger sets a custom logger for the runner.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// New creates a new Runner with the given options.
func New(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Resolve locates a tool binary. Explicit paths (containing a separator)
// are verified directly. Bare names are checked against the bundled bin
// directory first, then the search path. Returns ErrToolNotFound when
// neither yields an executable.
//
// Design decision: Resolution never touches the process environment. The
// original temptation is to prepend the bundled directory to PATH, but
// that leaks configuration into every child process and makes resolution
// order a global property.
func (r *Runner) Resolve(name string) (string, error) {
	if strings.ContainsRune(name, os.PathSeparator) {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
		}
		return name, nil
	}

	if r.binDir != "" {
		bundled := filepath.Join(r.binDir, name)
		if info, err := os.Stat(bundled); err == nil && !info.IsDir() {
			return bundled, nil
		}
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return path, nil
}

// Invocation describes one tool execution.
type Invocation struct {
	// Path is the tool binary: an absolute path or a bare name passed
	// through Resolve.
	Path string

	// Args are the command-line arguments.
	Args []string

	// OutputFile, when set, is a result file the tool writes. The runner
	// removes any pre-existing file at this path before starting so a
	// failed run can never be confused with a previous run's results.
	OutputFile string

	// Timeout is the hard wall-clock budget. The process is killed when
	// it expires; output collected so far is preserved.
	Timeout time.Duration
}

// ExitInfo describes how a tool execution ended.
type ExitInfo struct {
	// ExitCode is the process exit code, or -1 if the process was killed.
	ExitCode int

	// TimedOut is true when the hard timeout expired and the process was
	// terminated. Partial output remains valid.
	TimedOut bool

	// Err is the invocation error, if any. Wraps ErrToolTimeout on
	// timeout and ErrToolInvocation on abnormal exit.
	Err error

	// Stats holds statistics extracted from the diagnostic stream.
	Stats model.PipelineStats

	// Diagnostics is the collected diagnostic (stderr) output, truncated
	// to a reasonable size, for inclusion in failure messages.
	Diagnostics string

	// Duration is the observed wall-clock run time.
	Duration time.Duration
}

// Execution is one running tool process. Lines() must be drained before
// calling Wait; Wait blocks until the process exits or the timeout fires.
type Execution struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	lines  chan string

	started time.Time
	timeout time.Duration

	mu      sync.Mutex
	stderr  []string
	stats   model.PipelineStats
	readers sync.WaitGroup

	logger *slog.Logger
}

// Start resolves and launches a tool. Standard output is streamed through
// the returned Execution's line channel; the diagnostic stream is
// collected in the background.
//
// The caller must consume Lines() and then call Wait(). Start returns an
// error only for failures before the process is running (resolution,
// pipe creation, spawn); everything after that is reported via ExitInfo.
func (r *Runner) Start(ctx context.Context, inv Invocation) (*Execution, error) {
	path, err := r.Resolve(inv.Path)
	if err != nil {
		return nil, err
	}

	// Stale result files from a previous run must not contaminate this
	// one; the recovery parser reads this path when streaming fails.
	if inv.OutputFile != "" {
		if err := os.Remove(inv.OutputFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("clear stale output file: %w", err)
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc = func() {}
	if inv.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
	} else {
		r.logger.Warn("tool invocation has no timeout", "path", path)
	}

	cmd := exec.CommandContext(runCtx, path, inv.Args...)
	// Bounds the wait when a killed tool leaves a forked child holding
	// the output pipes.
	cmd.WaitDelay = 10 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	e := &Execution{
		cmd:     cmd,
		cancel:  cancel,
		lines:   make(chan string, lineBufferSize),
		timeout: inv.Timeout,
		logger:  r.logger,
	}

	e.started = time.Now()
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", path, err)
	}

	r.logger.Info("tool started",
		"path", path,
		"args", strings.Join(inv.Args, " "),
		"timeout", inv.Timeout,
	)

	// Stdout reader: forwards lines until EOF (process exit or kill),
	// then closes the channel so consumers observe end-of-stream.
	e.readers.Add(1)
	go func() {
		defer e.readers.Done()
		defer close(e.lines)

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			e.lines <- line
		}
	}()

	// Stderr reader: collects diagnostics and extracts stats as lines
	// arrive. Malformed diagnostic lines are ignored.
	e.readers.Add(1)
	go func() {
		defer e.readers.Done()

		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := scanner.Text()
			e.mu.Lock()
			if len(e.stderr) < maxDiagnosticLines {
				e.stderr = append(e.stderr, line)
			}
			extractStats(line, &e.stats)
			e.mu.Unlock()
		}
	}()

	return e, nil
}

// maxDiagnosticLines bounds the retained diagnostic output.
const maxDiagnosticLines = 500

// Lines returns the single-pass, forward-only stream of stdout lines.
// The channel is closed when the process' stdout is exhausted, including
// after a forced termination.
func (e *Execution) Lines() <-chan string {
	return e.lines
}

// Wait blocks until the process exits (or is killed by the timeout) and
// both output streams are fully drained, then reports how the run ended.
//
// A timeout produces ExitInfo with TimedOut=true and Err wrapping
// ErrToolTimeout; the caller decides whether the partial output already
// streamed is sufficient. Any other non-zero exit wraps ErrToolInvocation.
func (e *Execution) Wait() ExitInfo {
	defer e.cancel()

	waitErr := e.cmd.Wait()
	e.readers.Wait()

	e.mu.Lock()
	info := ExitInfo{
		ExitCode:    -1,
		Stats:       e.stats,
		Diagnostics: strings.Join(e.stderr, "\n"),
		Duration:    time.Since(e.started),
	}
	e.mu.Unlock()

	if state := e.cmd.ProcessState; state != nil {
		info.ExitCode = state.ExitCode()
	}

	if waitErr == nil {
		return info
	}

	// Distinguish the hard timeout from genuine tool failures: the
	// context deadline means we killed it ourselves.
	if e.timeout > 0 && info.Duration >= e.timeout && killedByUs(waitErr) {
		info.TimedOut = true
		info.Err = fmt.Errorf("%w after %s", ErrToolTimeout, e.timeout)
		e.logger.Warn("tool killed by hard timeout",
			"timeout", e.timeout,
			"duration", info.Duration,
		)
		return info
	}

	info.Err = fmt.Errorf("%w: %v", ErrToolInvocation, waitErr)
	return info
}

// killedByUs reports whether the wait error looks like our forced
// termination rather than the tool's own crash.
func killedByUs(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return !exitErr.Exited()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
