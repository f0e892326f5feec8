package cli

import (
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/pdevtools/internal/config"
)

// formatFlagKeys maps the fmt flags onto configuration keys. Flags only
// override the configuration when given explicitly.
var formatFlagKeys = map[string]string{
	"line-length":             "format.line_length",
	"profile":                 "format.import_profile",
	"remove-unused-variables": "format.remove_unused_variables",
}

// newFormatCommand creates the format command. use differs between the
// umbrella subcommand ("fmt [path]") and the standalone binary.
func newFormatCommand(g *globalOptions, use string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: "Format Python code with autoflake, isort and black",
		Long: `Rewrite Python files in place. Three tools run in a fixed order:

  1. autoflake  removes unused imports and unused variables
  2. isort      sorts imports using the configured profile
  3. black      formats the code

Each tool must succeed before the next starts. When one fails, the rest
are skipped and its exit code is returned.

The target defaults to the project root.

Examples:
  pfmt
  pfmt src/
  pdevtools fmt --line-length 100 app.py`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.newSession(cmd, formatFlagKeys)
			if err != nil {
				return err
			}
			target, err := s.target(args)
			if err != nil {
				return err
			}
			outcome, err := s.pipeline().Format(cmd.Context(), s.cfg, target)
			return s.finish(cmd, outcome, err)
		},
	}

	flags := cmd.Flags()
	flags.Int("line-length", config.DefaultLineLength, "Maximum line length for isort and black")
	flags.String("profile", config.DefaultImportProfile, "isort profile")
	flags.Bool("remove-unused-variables", true, "Remove unused variables as well as imports (--remove-unused-variables=false keeps them)")

	return cmd
}
