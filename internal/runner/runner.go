// Package runner executes wrapped tools as child processes.
//
// A Runner turns a model.Stage into a model.StageResult. A non-zero exit
// status is not an error: it is reported through StageResult.ExitCode so
// the pipeline can decide whether to abort. Errors are reserved for
// conditions where the tool could not run to completion at all: it is
// missing, it could not be started, or the run was interrupted.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shinji-kodama/pdevtools/internal/model"
)

// DefaultWaitDelay is how long a child gets to exit after it has been
// sent an interrupt before it is killed.
const DefaultWaitDelay = 5 * time.Second

// DefaultTailBytes is how much of each output stream is retained when
// the stream is also forwarded to a writer.
const DefaultTailBytes = 16 * 1024

// Invocation is one request to run a stage.
type Invocation struct {
	Stage model.Stage

	// Dir is the child's working directory. Empty inherits ours.
	Dir string

	// Env holds extra KEY=VALUE pairs appended to our environment.
	Env []string

	// Stdin feeds the child's standard input. Nil connects it to the
	// null device.
	Stdin io.Reader

	// Stdout and Stderr receive the child's output as it is produced.
	// When nil, output is only captured into the StageResult.
	Stdout io.Writer
	Stderr io.Writer
}

// Runner runs stages. Implementations must be safe for sequential reuse.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (model.StageResult, error)
}

// ExecRunner runs stages with os/exec.
type ExecRunner struct {
	Log zerolog.Logger

	// WaitDelay bounds the grace period after an interrupt.
	WaitDelay time.Duration

	// TailBytes bounds captured output per stream when it is also being
	// streamed. Output that is not streamed is captured in full.
	TailBytes int
}

// NewExecRunner creates an ExecRunner with default limits.
func NewExecRunner(log zerolog.Logger) *ExecRunner {
	return &ExecRunner{
		Log:       log,
		WaitDelay: DefaultWaitDelay,
		TailBytes: DefaultTailBytes,
	}
}

// Run executes inv.Stage and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (model.StageResult, error) {
	result := model.StageResult{Stage: inv.Stage}

	path, err := exec.LookPath(inv.Stage.Command)
	if err != nil {
		return result, model.WrapCLIError(model.ExitToolNotFound,
			fmt.Sprintf("%s is not installed or not on PATH", inv.Stage.Command), err)
	}

	// #nosec G204: command and args come from the project's own configuration
	cmd := exec.CommandContext(ctx, path, inv.Stage.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = append(os.Environ(), inv.Env...)
	cmd.Stdin = inv.Stdin

	// On cancellation ask the child to stop the way a terminal would,
	// then kill it once WaitDelay has passed.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.WaitDelay

	stdout := newTail(r.limitFor(inv.Stdout))
	stderr := newTail(r.limitFor(inv.Stderr))
	cmd.Stdout = teeTo(stdout, inv.Stdout)
	cmd.Stderr = teeTo(stderr, inv.Stderr)

	r.Log.Debug().
		Str("stage", inv.Stage.Name).
		Str("dir", inv.Dir).
		Msg(inv.Stage.CommandLine())

	start := time.Now()
	runErr := cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if ctx.Err() != nil {
		result.Status = model.StageFailed
		result.ExitCode = int(model.ExitInterrupted)
		return result, model.WrapCLIError(model.ExitInterrupted,
			fmt.Sprintf("interrupted while running %s", inv.Stage.Name), ctx.Err())
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return result, model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("failed to run %s", inv.Stage.Name), runErr)
		}
		result.Status = model.StageFailed
		result.ExitCode = exitErr.ExitCode()
		if result.ExitCode < 0 {
			// Terminated by a signal we did not send.
			result.ExitCode = int(model.ExitGeneralError)
		}
	} else {
		result.Status = model.StageOK
	}

	r.Log.Debug().
		Str("stage", inv.Stage.Name).
		Int("exit", result.ExitCode).
		Dur("took", result.Duration).
		Msg("stage finished")

	return result, nil
}

func (r *ExecRunner) limitFor(w io.Writer) int {
	if w == nil {
		return 0
	}
	if r.TailBytes > 0 {
		return r.TailBytes
	}
	return DefaultTailBytes
}

func teeTo(capture *tail, w io.Writer) io.Writer {
	if w == nil {
		return capture
	}
	return io.MultiWriter(w, capture)
}

// tail retains the last max bytes written to it. max <= 0 keeps everything.
type tail struct {
	max int
	buf []byte
}

func newTail(max int) *tail {
	return &tail{max: max}
}

func (t *tail) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if t.max > 0 && len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tail) String() string {
	return string(t.buf)
}

// DryRunner prints each stage's command line instead of running it.
// Every stage reports success.
type DryRunner struct {
	Out io.Writer
}

// Run writes the command line of inv.Stage to Out.
func (r *DryRunner) Run(_ context.Context, inv Invocation) (model.StageResult, error) {
	line := inv.Stage.CommandLine()
	if inv.Dir != "" {
		line = fmt.Sprintf("(cd %s && %s)", inv.Dir, line)
	}
	if len(inv.Env) > 0 {
		line = strings.Join(inv.Env, " ") + " " + line
	}
	if _, err := fmt.Fprintln(r.Out, line); err != nil {
		return model.StageResult{}, err
	}
	return model.StageResult{Stage: inv.Stage, Status: model.StageOK}, nil
}
