package cli

import (
	"fmt"
	"io"
	"maps"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/pdevtools/internal/config"
	"github.com/shinji-kodama/pdevtools/internal/logging"
	"github.com/shinji-kodama/pdevtools/internal/model"
	"github.com/shinji-kodama/pdevtools/internal/pipeline"
	"github.com/shinji-kodama/pdevtools/internal/project"
	"github.com/shinji-kodama/pdevtools/internal/report"
	"github.com/shinji-kodama/pdevtools/internal/runner"
)

// session is the per-invocation state every command starts from: the
// working directory, the project root, the effective configuration and a
// logger and runner built from it.
type session struct {
	g *globalOptions

	cwd      string
	root     string
	resolver *project.Resolver
	cfg      *config.Config
	log      zerolog.Logger
	runner   runner.Runner

	// stdout and stderr receive live tool output. Both are nil in JSON
	// mode, where output is captured into the summary instead.
	stdout io.Writer
	stderr io.Writer
}

// newSession resolves the project root and loads the configuration for
// cmd. flagKeys maps the command's own flags onto configuration keys.
func (g *globalOptions) newSession(cmd *cobra.Command, flagKeys map[string]string) (*session, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	resolver := project.NewResolver()
	root, err := resolver.Root(cwd)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]string, len(globalFlagKeys)+len(flagKeys))
	maps.Copy(keys, globalFlagKeys)
	maps.Copy(keys, flagKeys)

	cfg, err := config.Load(config.LoadOptions{
		ProjectRoot: root,
		ConfigFile:  g.configFile,
		Flags:       cmd.Flags(),
		FlagKeys:    keys,
	})
	if err != nil {
		return nil, err
	}

	log := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Verbose: g.verbose,
		Out:     cmd.ErrOrStderr(),
	})
	log.Debug().Str("root", root).Strs("sources", cfg.Sources).Msg("configuration loaded")

	s := &session{
		g:        g,
		cwd:      cwd,
		root:     root,
		resolver: resolver,
		cfg:      cfg,
		log:      log,
	}

	switch {
	case g.dryRun && g.jsonOutput:
		// stdout carries the JSON document.
		s.runner = &runner.DryRunner{Out: cmd.ErrOrStderr()}
	case g.dryRun:
		s.runner = &runner.DryRunner{Out: cmd.OutOrStdout()}
	default:
		s.runner = runner.NewExecRunner(log)
	}

	if !g.jsonOutput {
		s.stdout = cmd.OutOrStdout()
		s.stderr = cmd.ErrOrStderr()
	}
	return s, nil
}

// pipeline returns a Pipeline rooted at the project root.
func (s *session) pipeline() *pipeline.Pipeline {
	return pipeline.New(pipeline.Options{
		Runner:        s.runner,
		Log:           s.log,
		Dir:           s.root,
		TestDir:       s.cwd,
		Stdout:        s.stdout,
		Stderr:        s.stderr,
		SkipPreflight: s.g.dryRun,
	})
}

// target resolves the optional path argument of fmt and lint.
func (s *session) target(args []string) (string, error) {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	return s.resolver.Target(s.root, arg)
}

// finish writes the pipeline summary and returns the command's error.
// In JSON mode the error is already part of the document and is only
// passed on for its exit code.
func (s *session) finish(cmd *cobra.Command, outcome *model.Outcome, runErr error) error {
	if outcome == nil {
		return runErr
	}

	if s.g.jsonOutput {
		if err := report.WriteOutcomeJSON(cmd.OutOrStdout(), outcome, runErr); err != nil {
			return err
		}
		if runErr != nil {
			return &reportedError{err: runErr}
		}
		return nil
	}

	if !s.g.dryRun {
		report.WriteOutcome(cmd.ErrOrStderr(), outcome)
	}
	return runErr
}
