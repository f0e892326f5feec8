// Package config loads the layered pdevtools configuration.
//
// Precedence, lowest to highest:
//
//	defaults < pyproject.toml < .pdevtools.{yaml,yml,json,jsonc} < PDEVTOOLS_* env < flags
//
// Configuration is read once at invocation start and is read-only afterwards.
package config

import (
	"fmt"
	"slices"

	"github.com/shinji-kodama/pdevtools/internal/logging"
	"github.com/shinji-kodama/pdevtools/internal/model"
)

// Tool names used as default commands and stage names.
const (
	ToolAutoflake  = "autoflake"
	ToolIsort      = "isort"
	ToolBlack      = "black"
	ToolPydocstyle = "pydocstyle"
	ToolPylint     = "pylint"
	ToolPytest     = "pytest"
)

// Default values for the preset configuration.
const (
	DefaultLineLength    = 88
	DefaultImportProfile = "black"
	DefaultConvention    = "pep257"
	DefaultPython        = "python3"
	DefaultBaseImage     = "python:3.12-slim"
	DefaultManifest      = "requirements.txt"
	DefaultWorkdir       = "/app"
	DefaultImageTag      = "pdevtools:latest"
	DefaultLogLevel      = "warn"
)

// DefaultOmit lists the coverage exclusions applied to every test run.
// User-configured patterns are appended to these, never substituted.
var DefaultOmit = []string{
	"*/test/*",
	"*/tests/*",
	"*/test_*.py",
	"*/conftest.py",
	"*/setup.py",
	"*/__init__.py",
	"*/.venv/*",
	"*/venv/*",
	"*/site-packages/*",
}

// DefaultCoverageReport is the pytest-cov report list.
var DefaultCoverageReport = []string{"term-missing"}

// isortProfiles are the built-in isort profiles accepted by --profile.
var isortProfiles = []string{
	"black", "django", "pycharm", "google", "open_stack",
	"plone", "attrs", "hug", "wemake", "appnexus",
}

// docstringConventions are the conventions pydocstyle understands.
var docstringConventions = []string{"pep257", "numpy", "google"}

// Config is the effective configuration for one invocation.
type Config struct {
	Format    FormatConfig    `koanf:"format" yaml:"format"`
	Lint      LintConfig      `koanf:"lint" yaml:"lint"`
	Test      TestConfig      `koanf:"test" yaml:"test"`
	Container ContainerConfig `koanf:"container" yaml:"container"`
	Log       LogConfig       `koanf:"log" yaml:"log"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-" yaml:"-"`

	// Sources lists the files that contributed to this configuration,
	// in load order.
	Sources []string `koanf:"-" yaml:"-"`
}

// ToolConfig describes how one wrapped tool is invoked.
type ToolConfig struct {
	// Command is the executable name or path.
	Command string `koanf:"command" yaml:"command"`

	// Args are appended after the preset arguments and before the target.
	Args []string `koanf:"args" yaml:"args,omitempty"`
}

// FormatConfig configures the format pipeline.
type FormatConfig struct {
	LineLength            int        `koanf:"line_length" yaml:"line_length"`
	ImportProfile         string     `koanf:"import_profile" yaml:"import_profile"`
	RemoveUnusedVariables bool       `koanf:"remove_unused_variables" yaml:"remove_unused_variables"`
	Autoflake             ToolConfig `koanf:"autoflake" yaml:"autoflake"`
	Isort                 ToolConfig `koanf:"isort" yaml:"isort"`
	Black                 ToolConfig `koanf:"black" yaml:"black"`
}

// LintConfig configures the lint pipeline.
type LintConfig struct {
	Convention string `koanf:"convention" yaml:"convention"`

	// MaxLineLength is written to the generated pylintrc. Zero means
	// "same as format.line_length".
	MaxLineLength int `koanf:"max_line_length" yaml:"max_line_length"`

	// Disable lists pylint message IDs or symbols to disable.
	Disable []string `koanf:"disable" yaml:"disable,omitempty"`

	// Ignore lists file or directory base names pylint skips.
	Ignore []string `koanf:"ignore" yaml:"ignore,omitempty"`

	Pydocstyle ToolConfig `koanf:"pydocstyle" yaml:"pydocstyle"`
	Pylint     ToolConfig `koanf:"pylint" yaml:"pylint"`
}

// TestConfig configures the test pipeline.
type TestConfig struct {
	// Python is the interpreter used to verify the coverage plugin.
	Python string `koanf:"python" yaml:"python"`

	// CoverageSource lists --cov targets. Empty measures the project root.
	CoverageSource []string `koanf:"coverage_source" yaml:"coverage_source,omitempty"`

	// Omit is appended to DefaultOmit in the generated .coveragerc.
	Omit []string `koanf:"omit" yaml:"omit,omitempty"`

	Report    []string   `koanf:"report" yaml:"report"`
	FailUnder float64    `koanf:"fail_under" yaml:"fail_under"`
	Pytest    ToolConfig `koanf:"pytest" yaml:"pytest"`
}

// ContainerConfig describes the reproducible tool container.
type ContainerConfig struct {
	BaseImage string   `koanf:"base_image" yaml:"base_image"`
	Manifest  string   `koanf:"manifest" yaml:"manifest"`
	Workdir   string   `koanf:"workdir" yaml:"workdir"`
	Tag       string   `koanf:"tag" yaml:"tag"`
	PipArgs   []string `koanf:"pip_args" yaml:"pip_args,omitempty"`
}

// LogConfig configures diagnostics.
type LogConfig struct {
	Level string `koanf:"level" yaml:"level"`
}

// Defaults returns the preset configuration as a flat koanf key map.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"format.line_length":             DefaultLineLength,
		"format.import_profile":          DefaultImportProfile,
		"format.remove_unused_variables": true,
		"format.autoflake.command":       ToolAutoflake,
		"format.isort.command":           ToolIsort,
		"format.black.command":           ToolBlack,

		"lint.convention":         DefaultConvention,
		"lint.max_line_length":    0,
		"lint.pydocstyle.command": ToolPydocstyle,
		"lint.pylint.command":     ToolPylint,

		"test.python":         DefaultPython,
		"test.report":         DefaultCoverageReport,
		"test.fail_under":     0.0,
		"test.pytest.command": ToolPytest,

		"container.base_image": DefaultBaseImage,
		"container.manifest":   DefaultManifest,
		"container.workdir":    DefaultWorkdir,
		"container.tag":        DefaultImageTag,

		"log.level": DefaultLogLevel,
	}
}

// EffectiveMaxLineLength returns the pylint line limit.
func (c *Config) EffectiveMaxLineLength() int {
	if c.Lint.MaxLineLength > 0 {
		return c.Lint.MaxLineLength
	}
	return c.Format.LineLength
}

// Validate checks value ranges and enumerations. It returns a CLIError
// with ExitInvalidInput describing the first problem found.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return model.NewCLIError(model.ExitInvalidInput, "invalid configuration: "+fmt.Sprintf(format, args...))
	}

	if c.Format.LineLength < 1 || c.Format.LineLength > 1000 {
		return invalid("format.line_length %d out of range (1-1000)", c.Format.LineLength)
	}
	if c.Lint.MaxLineLength < 0 || c.Lint.MaxLineLength > 1000 {
		return invalid("lint.max_line_length %d out of range (0-1000)", c.Lint.MaxLineLength)
	}
	if !slices.Contains(isortProfiles, c.Format.ImportProfile) {
		return invalid("format.import_profile %q is not an isort profile (valid: %v)", c.Format.ImportProfile, isortProfiles)
	}
	if !slices.Contains(docstringConventions, c.Lint.Convention) {
		return invalid("lint.convention %q is not a pydocstyle convention (valid: %v)", c.Lint.Convention, docstringConventions)
	}
	if c.Test.FailUnder < 0 || c.Test.FailUnder > 100 {
		return invalid("test.fail_under %v out of range (0-100)", c.Test.FailUnder)
	}
	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		return invalid("log.level %q is not a log level (valid: trace, debug, info, warn, error, off)", c.Log.Level)
	}

	tools := []struct {
		key  string
		tool ToolConfig
	}{
		{"format.autoflake", c.Format.Autoflake},
		{"format.isort", c.Format.Isort},
		{"format.black", c.Format.Black},
		{"lint.pydocstyle", c.Lint.Pydocstyle},
		{"lint.pylint", c.Lint.Pylint},
		{"test.pytest", c.Test.Pytest},
	}
	for _, t := range tools {
		if t.tool.Command == "" {
			return invalid("%s.command must not be empty", t.key)
		}
	}

	if c.Container.BaseImage == "" {
		return invalid("container.base_image must not be empty")
	}
	if c.Container.Manifest == "" {
		return invalid("container.manifest must not be empty")
	}
	return nil
}
