package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/pdevtools/internal/model"
)

var testFlagKeys = map[string]string{
	"fail-under": "test.fail_under",
	"cov":        "test.coverage_source",
}

// testOwnFlags are the long flags the test command consumes. Every other
// argument, including all short flags, belongs to pytest.
var testOwnFlags = []string{"dry-run", "json", "config", "log-level", "fail-under", "cov"}

// newTestCommand creates the test command. Flag parsing is done by
// splitTestArgs so pytest's short flags (-k, -x, -v, -n ...) reach pytest.
func newTestCommand(g *globalOptions, use string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: "Run pytest with coverage",
		Long: `Run pytest with coverage measurement through pytest-cov. Test
directories, setup.py, virtualenvs and __init__.py files are always
excluded from the coverage figures.

Arguments are passed to pytest unchanged and the exit code mirrors
pytest's (0 passed, 1 failures, 5 no tests collected, ...). Only the long
flags --dry-run, --json, --config, --log-level, --fail-under and --cov are
read by this command; everything after -- goes to pytest untouched.

Examples:
  ptest
  ptest -x tests/test_api.py
  ptest -k "slow and not db" -v
  ptest --fail-under 80 -n 4`,
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pytestArgs, action, err := splitTestArgs(cmd, args)
			if err != nil {
				return err
			}
			switch action {
			case "help":
				return cmd.Help()
			case "version":
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", cmd.Name(), cmd.Version)
				return err
			}

			s, err := g.newSession(cmd, testFlagKeys)
			if err != nil {
				return err
			}
			outcome, err := s.pipeline().Test(cmd.Context(), s.cfg, pytestArgs)
			return s.finish(cmd, outcome, err)
		},
	}

	flags := cmd.Flags()
	flags.Float64("fail-under", 0, "Fail when total coverage is below this percentage")
	flags.StringSlice("cov", nil, "Coverage source (repeatable; default: the project root)")

	return cmd
}

// splitTestArgs applies the command's own long flags found before the
// first "--" and returns the remaining arguments for pytest in their
// original order. action is "help" or "version" when that flag was given.
func splitTestArgs(cmd *cobra.Command, args []string) (pytestArgs []string, action string, err error) {
	// Persistent flags are merged into cmd.Flags() during parsing, which
	// is disabled for this command.
	_ = cmd.InheritedFlags()
	flags := cmd.Flags()

	pytestArgs = make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			return append(pytestArgs, args[i+1:]...), "", nil
		case arg == "--help":
			return nil, "help", nil
		case arg == "--version" && !cmd.HasParent():
			return nil, "version", nil
		case !strings.HasPrefix(arg, "--"):
			pytestArgs = append(pytestArgs, arg)
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		f := flags.Lookup(name)
		if !slices.Contains(testOwnFlags, name) || f == nil {
			pytestArgs = append(pytestArgs, arg)
			continue
		}

		if !hasValue {
			switch {
			case f.NoOptDefVal != "":
				value = f.NoOptDefVal
			case i+1 < len(args):
				i++
				value = args[i]
			default:
				return nil, "", model.NewCLIError(model.ExitInvalidInput,
					fmt.Sprintf("flag needs an argument: --%s", name))
			}
		}
		if err := flags.Set(name, value); err != nil {
			return nil, "", model.WrapCLIError(model.ExitInvalidInput,
				fmt.Sprintf("invalid argument %q for --%s", value, name), err)
		}
	}
	return pytestArgs, "", nil
}
