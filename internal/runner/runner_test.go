package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/pdevtools/internal/model"
)

// writeScript creates an executable shell script in dir and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newTestRunner(t *testing.T) *ExecRunner {
	r := NewExecRunner(zerolog.New(zerolog.NewTestWriter(t)))
	r.WaitDelay = time.Second
	return r
}

func TestExecRunner_Success(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "tool", `echo "out:$1"; echo "err" >&2`)

	var stdout, stderr bytes.Buffer
	result, err := newTestRunner(t).Run(context.Background(), Invocation{
		Stage:  model.Stage{Name: "tool", Command: script, Args: []string{"a"}},
		Stdout: &stdout,
		Stderr: &stderr,
	})
	require.NoError(t, err)

	assert.Equal(t, model.StageOK, result.Status)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "out:a\n", stdout.String(), "output is streamed")
	assert.Equal(t, "err\n", stderr.String())
	assert.Equal(t, "out:a\n", result.Stdout, "output is also captured")
	assert.Equal(t, "err\n", result.Stderr)
}

func TestExecRunner_NonZeroExitIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "tool", `echo "boom" >&2; exit 3`)

	result, err := newTestRunner(t).Run(context.Background(), Invocation{
		Stage: model.Stage{Name: "tool", Command: script},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StageFailed, result.Status)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "boom\n", result.Stderr)
}

func TestExecRunner_WorkingDirAndEnv(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "tool", `pwd; echo "$PDEV_TEST_VALUE"`)

	work := t.TempDir()
	result, err := newTestRunner(t).Run(context.Background(), Invocation{
		Stage: model.Stage{Name: "tool", Command: script},
		Dir:   work,
		Env:   []string{"PDEV_TEST_VALUE=42"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(result.Stdout), "\n")
	require.Len(t, lines, 2)
	resolvedWork, _ := filepath.EvalSymlinks(work)
	resolvedPwd, _ := filepath.EvalSymlinks(lines[0])
	assert.Equal(t, resolvedWork, resolvedPwd)
	assert.Equal(t, "42", lines[1])
}

func TestExecRunner_ToolNotFound(t *testing.T) {
	_, err := newTestRunner(t).Run(context.Background(), Invocation{
		Stage: model.Stage{Name: "black", Command: "pdevtools-no-such-tool"},
	})
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitToolNotFound, cliErr.Code)
	assert.Contains(t, cliErr.Message, "pdevtools-no-such-tool")
}

func TestExecRunner_Interrupted(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "tool", `exec sleep 5`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := newTestRunner(t).Run(ctx, Invocation{
		Stage: model.Stage{Name: "tool", Command: script},
	})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second, "child must not run to completion")

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitInterrupted, cliErr.Code)
	assert.Equal(t, int(model.ExitInterrupted), result.ExitCode)
}

func TestTail(t *testing.T) {
	tl := newTail(4)
	_, _ = tl.Write([]byte("ab"))
	_, _ = tl.Write([]byte("cdef"))
	assert.Equal(t, "cdef", tl.String())

	unbounded := newTail(0)
	_, _ = unbounded.Write([]byte("abcdef"))
	assert.Equal(t, "abcdef", unbounded.String())
}

func TestDryRunner(t *testing.T) {
	var out bytes.Buffer
	r := &DryRunner{Out: &out}

	result, err := r.Run(context.Background(), Invocation{
		Stage: model.Stage{Name: "black", Command: "black", Args: []string{"--line-length", "88", "src"}},
		Dir:   "/work",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StageOK, result.Status)
	assert.Equal(t, "(cd /work && black --line-length 88 src)\n", out.String())
}

func TestExecRunner_Stdin(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "tool", `cat`)

	result, err := newTestRunner(t).Run(context.Background(), Invocation{
		Stage: model.Stage{Name: "tool", Command: script},
		Stdin: strings.NewReader("FROM python:3.12-slim\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, "FROM python:3.12-slim\n", result.Stdout)
}
