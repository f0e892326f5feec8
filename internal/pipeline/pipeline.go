// Package pipeline runs the format, lint and test pipelines.
//
// A pipeline is an ordered list of model.Stage values executed one at a
// time through a runner.Runner. The format pipeline is fail-fast: once a
// stage exits non-zero the remaining stages are recorded as skipped and
// never started. The lint pipeline runs every check and aggregates the
// failures. The test pipeline is a single pytest stage whose exit code is
// returned unchanged.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/shinji-kodama/pdevtools/internal/config"
	"github.com/shinji-kodama/pdevtools/internal/model"
	"github.com/shinji-kodama/pdevtools/internal/presets"
	"github.com/shinji-kodama/pdevtools/internal/runner"
)

// Options configures a Pipeline.
type Options struct {
	Runner runner.Runner
	Log    zerolog.Logger

	// Dir is the working directory of the format and lint tools, normally
	// the project root.
	Dir string

	// TestDir is pytest's working directory so relative test paths resolve
	// as the user typed them. Empty means Dir.
	TestDir string

	// Stdout and Stderr receive live tool output. Nil captures only.
	Stdout io.Writer
	Stderr io.Writer

	// SkipPreflight disables the coverage plugin check (dry runs).
	SkipPreflight bool
}

// Pipeline executes stages with a shared runner and output destination.
type Pipeline struct {
	opts Options
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{opts: opts}
}

// Format rewrites target in place with autoflake, isort and black.
func (p *Pipeline) Format(ctx context.Context, cfg *config.Config, target string) (*model.Outcome, error) {
	return p.Run(ctx, model.PipelineFormat, target, FormatStages(cfg, target))
}

// Lint checks target with pydocstyle and pylint against a generated pylintrc.
func (p *Pipeline) Lint(ctx context.Context, cfg *config.Config, target string) (*model.Outcome, error) {
	files, cleanup, err := presets.WriteTemp(cfg)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return p.Run(ctx, model.PipelineLint, target, LintStages(cfg, files.PylintRC, target))
}

// Test runs pytest with coverage. args are passed to pytest unmodified.
func (p *Pipeline) Test(ctx context.Context, cfg *config.Config, args []string) (*model.Outcome, error) {
	if !p.opts.SkipPreflight {
		if err := p.checkCoveragePlugin(ctx, cfg); err != nil {
			return nil, err
		}
	}

	files, cleanup, err := presets.WriteTemp(cfg)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	testRun := *p
	if p.opts.TestDir != "" {
		testRun.opts.Dir = p.opts.TestDir
	}
	return testRun.Run(ctx, model.PipelineTest, strings.Join(args, " "), []model.Stage{TestStage(cfg, files.CoverageRC, args)})
}

// Run executes stages in order and returns the outcome together with an
// error describing the failure, if any. The error is a *model.CLIError
// whose Code is the process exit status.
func (p *Pipeline) Run(ctx context.Context, kind model.PipelineKind, target string, stages []model.Stage) (*model.Outcome, error) {
	outcome := &model.Outcome{Pipeline: kind, Target: target}
	log := p.opts.Log.With().Str("pipeline", kind.String()).Logger()

	var fatal error
	for i, s := range stages {
		if outcome.Aborted {
			outcome.Results = append(outcome.Results, model.StageResult{Stage: s, Status: model.StageSkipped})
			continue
		}

		if err := ctx.Err(); err != nil {
			fatal = model.WrapCLIError(model.ExitInterrupted, "interrupted", err)
			outcome.Aborted = true
			outcome.Results = append(outcome.Results, model.StageResult{Stage: s, Status: model.StageSkipped})
			continue
		}

		log.Info().Str("stage", s.Name).Int("step", i+1).Int("of", len(stages)).Msg("running")

		result, err := p.opts.Runner.Run(ctx, runner.Invocation{
			Stage:  s,
			Dir:    p.opts.Dir,
			Stdout: p.opts.Stdout,
			Stderr: p.opts.Stderr,
		})
		if err != nil {
			result.Stage = s
			result.Status = model.StageFailed
			result.ExitCode = exitCodeOf(err)
			outcome.Results = append(outcome.Results, result)

			// Interrupts always stop the run. Other runner errors stop
			// only a fail-fast pipeline.
			if result.ExitCode == int(model.ExitInterrupted) || kind.FailFast() {
				fatal = err
				outcome.Aborted = true
			} else {
				log.Warn().Err(err).Str("stage", s.Name).Msg("check could not run")
			}
			continue
		}

		outcome.Results = append(outcome.Results, result)
		if result.Failed() && kind.FailFast() {
			outcome.Aborted = true
		}
	}

	if fatal != nil {
		return outcome, fatal
	}
	return outcome, failureError(outcome)
}

// checkCoveragePlugin verifies that pytest-cov is importable before any
// test runs.
func (p *Pipeline) checkCoveragePlugin(ctx context.Context, cfg *config.Config) error {
	check := PluginCheckStage(cfg)
	result, err := p.opts.Runner.Run(ctx, runner.Invocation{Stage: check, Dir: p.opts.Dir})
	if err != nil {
		return err
	}
	if result.Failed() {
		msg := fmt.Sprintf("coverage plugin pytest-cov is not importable by %s", cfg.Test.Python)
		if detail := lastLine(result.Stderr); detail != "" {
			return model.WrapCLIError(model.ExitToolNotFound, msg, errors.New(detail))
		}
		return model.NewCLIError(model.ExitToolNotFound, msg)
	}
	p.opts.Log.Debug().Str("python", cfg.Test.Python).Msg("pytest-cov available")
	return nil
}

// failureError converts a completed outcome into the error the command
// returns. It is nil when every stage succeeded.
func failureError(o *model.Outcome) error {
	first, ok := o.FirstFailure()
	if !ok {
		return nil
	}
	code := model.ExitCode(first.ExitCode)

	switch o.Pipeline {
	case model.PipelineFormat:
		msg := fmt.Sprintf("%s failed with exit code %d", first.Stage.Name, first.ExitCode)
		if skipped := o.Skipped(); len(skipped) > 0 {
			msg += fmt.Sprintf("; skipped %s", strings.Join(skipped, ", "))
		}
		return model.NewCLIError(code, msg)

	case model.PipelineLint:
		var errs error
		for _, r := range o.Failures() {
			errs = multierr.Append(errs, fmt.Errorf("%s exited with code %d", r.Stage.Name, r.ExitCode))
		}
		n := len(multierr.Errors(errs))
		return model.WrapCLIError(code, fmt.Sprintf("%d of %d checks failed", n, len(o.Results)), errs)

	default:
		return model.NewCLIError(code, fmt.Sprintf("%s exited with code %d", first.Stage.Name, first.ExitCode))
	}
}

func exitCodeOf(err error) int {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return int(cliErr.Code)
	}
	return int(model.ExitGeneralError)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
