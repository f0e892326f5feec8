package model

import (
	"fmt"
	"strings"
	"time"
)

// PipelineKind identifies one of the three tool pipelines.
type PipelineKind string

const (
	// PipelineFormat rewrites sources in place: autoflake → isort → black.
	// Stages run fail-fast.
	PipelineFormat PipelineKind = "format"

	// PipelineLint reports docstring and code-quality violations.
	// Every check runs regardless of earlier failures.
	PipelineLint PipelineKind = "lint"

	// PipelineTest runs pytest with coverage measurement enabled.
	PipelineTest PipelineKind = "test"
)

// String returns the string representation of PipelineKind.
func (k PipelineKind) String() string {
	return string(k)
}

// FailFast reports whether the first failing stage aborts the pipeline.
// Only the format pipeline is fail-fast: later stages must never run on
// an intermediate state left behind by a broken rewrite.
func (k PipelineKind) FailFast() bool {
	return k == PipelineFormat
}

// Stage is a single tool invocation within a pipeline.
type Stage struct {
	// Name is the short stage identifier shown in summaries (e.g., "isort").
	Name string `json:"name"`

	// Command is the executable to run. It is resolved against PATH
	// unless it contains a path separator.
	Command string `json:"command"`

	// Args are passed to Command verbatim.
	Args []string `json:"args"`
}

// CommandLine renders the stage as a shell-like command line for dry-run
// output and log messages. Arguments containing whitespace are quoted.
func (s Stage) CommandLine() string {
	parts := make([]string, 0, len(s.Args)+1)
	parts = append(parts, quoteArg(s.Command))
	for _, a := range s.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(a string) string {
	if a == "" {
		return `""`
	}
	if strings.ContainsAny(a, " \t\n\"'") {
		return fmt.Sprintf("%q", a)
	}
	return a
}

// StageStatus is the outcome of a single stage.
type StageStatus string

const (
	// StageOK means the tool exited with status 0.
	StageOK StageStatus = "ok"

	// StageFailed means the tool exited with a non-zero status.
	StageFailed StageStatus = "failed"

	// StageSkipped means the stage never ran because an earlier stage
	// of a fail-fast pipeline failed.
	StageSkipped StageStatus = "skipped"
)

// String returns the string representation of StageStatus.
func (s StageStatus) String() string {
	return string(s)
}

// StageResult records what happened when a stage was executed (or skipped).
type StageResult struct {
	Stage Stage `json:"stage"`

	Status StageStatus `json:"status"`

	// ExitCode is the tool's exit status. Zero for skipped stages.
	ExitCode int `json:"exitCode"`

	Duration time.Duration `json:"duration"`

	// Stdout and Stderr hold captured tool output. When output is streamed
	// to the terminal they contain only the tail kept for error messages.
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
}

// Failed reports whether the stage ran and exited non-zero.
func (r StageResult) Failed() bool {
	return r.Status == StageFailed
}

// Outcome aggregates the stage results of one pipeline run.
type Outcome struct {
	Pipeline PipelineKind `json:"pipeline"`

	// Target is the resolved path (or pytest argument list) the pipeline
	// operated on.
	Target string `json:"target"`

	Results []StageResult `json:"results"`

	// Aborted is true when a fail-fast pipeline stopped early.
	Aborted bool `json:"aborted"`
}

// FirstFailure returns the first stage, in run order, that exited
// non-zero. ok is false when every stage succeeded.
func (o *Outcome) FirstFailure() (StageResult, bool) {
	for _, r := range o.Results {
		if r.Failed() {
			return r, true
		}
	}
	return StageResult{}, false
}

// Failures returns all failed stages in run order.
func (o *Outcome) Failures() []StageResult {
	var failed []StageResult
	for _, r := range o.Results {
		if r.Failed() {
			failed = append(failed, r)
		}
	}
	return failed
}

// Skipped returns the names of stages that never ran.
func (o *Outcome) Skipped() []string {
	var names []string
	for _, r := range o.Results {
		if r.Status == StageSkipped {
			names = append(names, r.Stage.Name)
		}
	}
	return names
}

// ExitCode is the aggregate process exit status: 0 when every stage
// succeeded, otherwise the exit code of the first failing stage.
func (o *Outcome) ExitCode() int {
	if r, ok := o.FirstFailure(); ok {
		return r.ExitCode
	}
	return 0
}

// ExitCode defines the CLI exit codes owned by pdevtools itself.
// Exit codes produced by wrapped tools are propagated unchanged and may
// overlap these values.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitInvalidInput indicates invalid configuration, an unusable
	// target path, or a malformed dependency manifest.
	ExitInvalidInput ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 125

	// ExitToolNotFound indicates a wrapped tool or plugin is missing.
	ExitToolNotFound ExitCode = 127

	// ExitInterrupted indicates the operator interrupted the run.
	ExitInterrupted ExitCode = 130
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
