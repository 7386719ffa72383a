package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// DefaultTimeout bounds a command when the caller gives no timeout.
const DefaultTimeout = 30 * time.Second

// maxOutputBytes caps captured stdout/stderr per command.
const maxOutputBytes = 4096

// ErrEmptyCommand is returned when Run is called without a binary.
var ErrEmptyCommand = errors.New("process: empty command")

// Logger defines the logging interface for the runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Result holds the outcome of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes short-lived external commands (nmcli, restart commands)
// with a hard timeout. The whole process group is killed on expiry so
// helper children cannot outlive the call.
type Runner struct {
	timeout time.Duration
	logger  Logger
}

// NewRunner creates a runner. A zero timeout selects DefaultTimeout.
func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{timeout: timeout, logger: noopLogger{}}
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// Run executes argv[0] with argv[1:] and waits for it to exit.
// A non-zero exit status is returned as an error alongside the Result.
func (r *Runner) Run(ctx context.Context, argv ...string) (Result, error) {
	if len(argv) == 0 || argv[0] == "" {
		return Result{}, ErrEmptyCommand
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // argv comes from agent configuration
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid signals the process group created via Setpgid
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	stdout := &cappedBuffer{limit: maxOutputBytes}
	stderr := &cappedBuffer{limit: maxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r.logger.Debug("running command", "binary", argv[0], "args", redactArgs(argv[1:]))

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	if ctx.Err() == context.DeadlineExceeded {
		r.logger.Warn("command timed out", "binary", argv[0], "timeout", r.timeout)
		return res, fmt.Errorf("running %s: timed out after %s", argv[0], r.timeout)
	}
	if err != nil {
		return res, fmt.Errorf("running %s: %w", argv[0], err)
	}
	return res, nil
}

// redactArgs hides the value following "password" so secrets passed to
// nmcli never reach the log.
func redactArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == "password" {
			out[i+1] = "***"
		}
	}
	return out
}

// cappedBuffer keeps the first limit bytes and silently drops the rest.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
