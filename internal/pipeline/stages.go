package pipeline

import (
	"fmt"

	"github.com/shinji-kodama/pdevtools/internal/config"
	"github.com/shinji-kodama/pdevtools/internal/model"
)

// FormatStages returns the format pipeline for target in its fixed order:
// unused-code removal, import sorting, then formatting.
func FormatStages(cfg *config.Config, target string) []model.Stage {
	f := cfg.Format
	lineLength := fmt.Sprint(f.LineLength)

	autoflake := []string{"--in-place", "--recursive", "--remove-all-unused-imports"}
	if f.RemoveUnusedVariables {
		autoflake = append(autoflake, "--remove-unused-variables")
	}

	return []model.Stage{
		stage(config.ToolAutoflake, f.Autoflake, autoflake, target),
		stage(config.ToolIsort, f.Isort, []string{"--profile", f.ImportProfile, "--line-length", lineLength}, target),
		stage(config.ToolBlack, f.Black, []string{"--line-length", lineLength}, target),
	}
}

// LintStages returns the docstring check followed by the general linter.
// pylintrc is the generated rcfile path.
func LintStages(cfg *config.Config, pylintrc, target string) []model.Stage {
	l := cfg.Lint
	return []model.Stage{
		stage(config.ToolPydocstyle, l.Pydocstyle, []string{"--convention=" + l.Convention}, target),
		stage(config.ToolPylint, l.Pylint, []string{"--rcfile=" + pylintrc, "--recursive=y"}, target),
	}
}

// TestStage returns the pytest invocation with coverage enabled. args are
// the caller's pytest arguments and are passed through unmodified after
// the configured extra arguments.
func TestStage(cfg *config.Config, coveragerc string, args []string) model.Stage {
	t := cfg.Test

	preset := make([]string, 0, len(t.CoverageSource)+len(t.Report)+2)
	if len(t.CoverageSource) == 0 {
		// measure the whole project, wherever pytest is started from
		root := cfg.ProjectRoot
		if root == "" {
			root = "."
		}
		preset = append(preset, "--cov="+root)
	}
	for _, src := range t.CoverageSource {
		preset = append(preset, "--cov="+src)
	}
	preset = append(preset, "--cov-config="+coveragerc)
	for _, r := range t.Report {
		preset = append(preset, "--cov-report="+r)
	}

	s := stage(config.ToolPytest, t.Pytest, preset)
	s.Args = append(s.Args, args...)
	return s
}

// PluginCheckStage returns the interpreter call that fails when the
// pytest-cov plugin cannot be imported.
func PluginCheckStage(cfg *config.Config) model.Stage {
	return model.Stage{
		Name:    "pytest-cov",
		Command: cfg.Test.Python,
		Args:    []string{"-c", "import pytest_cov"},
	}
}

// stage assembles preset args, configured extra args and the trailing
// operands into one invocation.
func stage(name string, tool config.ToolConfig, preset []string, operands ...string) model.Stage {
	args := make([]string, 0, len(preset)+len(tool.Args)+len(operands))
	args = append(args, preset...)
	args = append(args, tool.Args...)
	args = append(args, operands...)
	return model.Stage{Name: name, Command: tool.Command, Args: args}
}
