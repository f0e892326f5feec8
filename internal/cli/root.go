// Package cli implements the cobra-based commands for pdevtools.
//
// The umbrella binary exposes every pipeline as a subcommand (fmt, lint,
// test) next to the container commands (build, images) and config
// helpers. The standalone pfmt, plint and ptest binaries wrap the same
// pipeline commands as their root command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/pdevtools/internal/model"
	"github.com/shinji-kodama/pdevtools/internal/report"
)

// Version, Commit, and Date are injected from main via ldflags.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// globalOptions holds the persistent flags shared by every command of
// one root.
type globalOptions struct {
	// configFile overrides config file discovery.
	configFile string

	// jsonOutput prints a machine-readable summary on stdout; tool output
	// is captured rather than streamed.
	jsonOutput bool

	// verbose forces debug logging.
	verbose bool

	// dryRun prints tool command lines instead of running them.
	dryRun bool

	// logLevel overrides log.level.
	logLevel string
}

// globalFlagKeys maps persistent flags onto configuration keys.
var globalFlagKeys = map[string]string{
	"log-level": "log.level",
}

func (g *globalOptions) register(cmd *cobra.Command) {
	// PersistentFlags are inherited by every subcommand.
	flags := cmd.PersistentFlags()
	flags.StringVarP(&g.configFile, "config", "c", "", "Config file (default: .pdevtools.{yaml,yml,jsonc,json} in the project root)")
	flags.BoolVar(&g.jsonOutput, "json", false, "Output in JSON format")
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "Enable verbose output")
	flags.BoolVarP(&g.dryRun, "dry-run", "n", false, "Print tool command lines without running them")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error, off")
}

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}

// NewRootCommand creates the pdevtools umbrella command.
func NewRootCommand() *cobra.Command {
	g := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "pdevtools",
		Short: "Run Python formatters, linters and tests with preset configuration",
		Long: `pdevtools runs third-party Python tools in a fixed order with preset
configuration:

  fmt    autoflake, then isort, then black (stops at the first failure)
  lint   pydocstyle and pylint (both always run)
  test   pytest with coverage through pytest-cov

and builds a reproducible container with those tools installed.

Settings come from pyproject.toml, .pdevtools.yaml, PDEVTOOLS_* environment
variables and flags, in increasing order of precedence.`,

		// Errors are printed by Run in text or JSON form.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: versionString(),
	}
	g.register(rootCmd)

	rootCmd.AddCommand(newFormatCommand(g, "fmt [path]"))
	rootCmd.AddCommand(newLintCommand(g, "lint [path]"))
	rootCmd.AddCommand(newTestCommand(g, "test [pytest args...]"))
	rootCmd.AddCommand(newBuildCommand(g))
	rootCmd.AddCommand(newImagesCommand(g))
	rootCmd.AddCommand(newConfigCommand(g))

	return rootCmd
}

// NewFormatRootCommand creates the standalone pfmt command.
func NewFormatRootCommand() *cobra.Command {
	return standalone(func(g *globalOptions) *cobra.Command { return newFormatCommand(g, "pfmt [path]") })
}

// NewLintRootCommand creates the standalone plint command.
func NewLintRootCommand() *cobra.Command {
	return standalone(func(g *globalOptions) *cobra.Command { return newLintCommand(g, "plint [path]") })
}

// NewTestRootCommand creates the standalone ptest command.
func NewTestRootCommand() *cobra.Command {
	return standalone(func(g *globalOptions) *cobra.Command { return newTestCommand(g, "ptest [pytest args...]") })
}

func standalone(build func(*globalOptions) *cobra.Command) *cobra.Command {
	g := &globalOptions{}
	cmd := build(g)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.Version = versionString()
	g.register(cmd)
	return cmd
}

// reportedError marks an error whose details were already written as part
// of the command's JSON output. Run only uses it for the exit code.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// Run executes rootCmd, prints any error and returns the exit code.
//
// CLIError values carry their own exit code (which may be a wrapped
// tool's code); other errors map to ExitGeneralError.
func Run(ctx context.Context, rootCmd *cobra.Command) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return int(model.ExitSuccess)
	}

	code := model.ExitGeneralError
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		code = cliErr.Code
	}
	if ctx.Err() != nil && code == model.ExitGeneralError {
		code = model.ExitInterrupted
	}

	var reported *reportedError
	if !errors.As(err, &reported) {
		printError(rootCmd.ErrOrStderr(), jsonRequested(rootCmd), err)
	}

	if code == model.ExitSuccess {
		// A CLIError built from a zero code still has to fail the process.
		code = model.ExitGeneralError
	}
	return int(code)
}

// jsonRequested reports whether --json was given. Subcommands share the
// root's persistent flag values, so the root's flag reflects any command.
func jsonRequested(rootCmd *cobra.Command) bool {
	f := rootCmd.PersistentFlags().Lookup("json")
	return f != nil && f.Value.String() == "true"
}

// printError writes err to w as "Error: ..." or, in JSON mode, as
// {"error": {"code": ..., "message": ...}}.
func printError(w io.Writer, asJSON bool, err error) {
	if asJSON {
		_ = report.WriteErrorJSON(w, err)
		return
	}
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
}
