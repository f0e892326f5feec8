package cli

import (
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/pdevtools/internal/config"
)

var lintFlagKeys = map[string]string{
	"convention":      "lint.convention",
	"max-line-length": "lint.max_line_length",
	"disable":         "lint.disable",
}

// newLintCommand creates the lint command.
func newLintCommand(g *globalOptions, use string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: "Check Python code with pydocstyle and pylint",
		Long: `Check docstrings with pydocstyle, then run pylint with a generated
configuration. Both checks always run, even when the first one reports
violations. The exit code is 0 only if both pass; otherwise it is the exit
code of the first failing check.

No file is modified.

Examples:
  plint
  plint src/
  pdevtools lint --disable C0114,R0903`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.newSession(cmd, lintFlagKeys)
			if err != nil {
				return err
			}
			target, err := s.target(args)
			if err != nil {
				return err
			}
			outcome, err := s.pipeline().Lint(cmd.Context(), s.cfg, target)
			return s.finish(cmd, outcome, err)
		},
	}

	flags := cmd.Flags()
	flags.String("convention", config.DefaultConvention, "Docstring convention: pep257, numpy, google")
	flags.Int("max-line-length", 0, "pylint max-line-length (default: the format line length)")
	flags.StringSlice("disable", nil, "pylint messages to disable (comma-separated)")

	return cmd
}
