// pkg/execrun/runner.go
// Package execrun executes one external tool at a time: it streams the
// process's combined output line-by-line, enforces an overall timeout with a
// graceful-terminate-then-kill escalation, and guarantees the process is
// reaped on every exit path.
package execrun

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// SentinelExitCode is reported when the process did not produce a normal
// exit: timeout, signal, or a runner-internal failure.
const SentinelExitCode = -1

// DefaultGracePeriod is how long a terminated process gets to exit after
// SIGTERM before it is force-killed.
const DefaultGracePeriod = 10 * time.Second

// Command describes one external tool invocation.
type Command struct {
	// Args is the argument vector; Args[0] is the executable.
	Args []string
	// Dir is the working directory; empty means inherit.
	Dir string
	// Timeout bounds the whole invocation. Zero means no timeout.
	Timeout time.Duration
	// Tag is attached to every streamed output line for traceability,
	// typically the target the command runs against.
	Tag string
}

// Result is the structured outcome of a run.
type Result struct {
	// ExitCode is the process exit code, or SentinelExitCode when the
	// process was timed out, signalled, or never ran.
	ExitCode int
	// TimedOut reports that the overall timeout elapsed and the process was
	// terminated by the runner.
	TimedOut bool
}

// Runner runs external commands. Workers depend on this interface so tests
// can substitute a fake and exercise the pipeline without spawning tools.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// LineHandler receives each output line together with the command tag.
type LineHandler func(tag, line string)

// Exec is the production Runner.
type Exec struct {
	grace  time.Duration
	handle LineHandler
}

// New returns a Runner that logs streamed output through zerolog.
func New() *Exec {
	return &Exec{
		grace: DefaultGracePeriod,
		handle: func(tag, line string) {
			log.Info().Str("target", tag).Msg(line)
		},
	}
}

// WithGracePeriod overrides the SIGTERM-to-SIGKILL delay.
func (e *Exec) WithGracePeriod(d time.Duration) *Exec {
	e.grace = d
	return e
}

// WithLineHandler overrides where streamed output lines go.
func (e *Exec) WithLineHandler(h LineHandler) *Exec {
	e.handle = h
	return e
}

// Run starts the command and blocks until it has fully exited. Standard
// output and standard error are merged and streamed line-by-line to the
// configured handler. If cmd.Timeout elapses, or ctx is cancelled, the
// process receives SIGTERM and is force-killed after the grace period; Wait
// reaps it on every path, so no process outlives the call.
func (e *Exec) Run(ctx context.Context, cmd Command) (Result, error) {
	if len(cmd.Args) == 0 {
		return Result{ExitCode: SentinelExitCode}, errors.New("empty command")
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if cmd.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	proc := exec.CommandContext(runCtx, cmd.Args[0], cmd.Args[1:]...)
	proc.Dir = cmd.Dir
	proc.Cancel = func() error {
		log.Warn().Str("command", cmd.Args[0]).Str("target", cmd.Tag).Dur("grace", e.grace).
			Msg("Deadline reached, asking process to terminate")
		return proc.Process.Signal(syscall.SIGTERM)
	}
	// If SIGTERM is ignored, WaitDelay has os/exec kill the process and
	// force the output pipe closed so the read loop below cannot hang.
	proc.WaitDelay = e.grace

	stdout, err := proc.StdoutPipe()
	if err != nil {
		return Result{ExitCode: SentinelExitCode}, fmt.Errorf("create output pipe: %w", err)
	}
	proc.Stderr = proc.Stdout

	if err := proc.Start(); err != nil {
		return Result{ExitCode: SentinelExitCode}, fmt.Errorf("start %s: %w", cmd.Args[0], err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		e.handle(cmd.Tag, scanner.Text())
	}

	waitErr := proc.Wait()

	if runCtx.Err() != nil {
		timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)
		return Result{ExitCode: SentinelExitCode, TimedOut: timedOut}, nil
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return Result{ExitCode: exitErr.ExitCode()}, nil
		}
		return Result{ExitCode: SentinelExitCode}, fmt.Errorf("wait for %s: %w", cmd.Args[0], waitErr)
	}
	return Result{ExitCode: proc.ProcessState.ExitCode()}, nil
}
