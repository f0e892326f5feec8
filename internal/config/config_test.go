package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/pdevtools/internal/model"
)

// writeFile is a test helper that writes content to dir/name.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func requireExitCode(t *testing.T, err error, code model.ExitCode) {
	t.Helper()
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr), "expected CLIError, got %v", err)
	assert.Equal(t, code, cliErr.Code)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(LoadOptions{ProjectRoot: t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, DefaultLineLength, cfg.Format.LineLength)
	assert.Equal(t, DefaultImportProfile, cfg.Format.ImportProfile)
	assert.True(t, cfg.Format.RemoveUnusedVariables)
	assert.Equal(t, ToolAutoflake, cfg.Format.Autoflake.Command)
	assert.Equal(t, ToolIsort, cfg.Format.Isort.Command)
	assert.Equal(t, ToolBlack, cfg.Format.Black.Command)
	assert.Equal(t, DefaultConvention, cfg.Lint.Convention)
	assert.Equal(t, ToolPytest, cfg.Test.Pytest.Command)
	assert.Equal(t, DefaultCoverageReport, cfg.Test.Report)
	assert.Equal(t, DefaultBaseImage, cfg.Container.BaseImage)
	assert.Empty(t, cfg.Sources)
	assert.Equal(t, DefaultLineLength, cfg.EffectiveMaxLineLength())
}

func TestLoad_YAMLFile(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, ".pdevtools.yaml", `
format:
  line_length: 100
  black:
    command: /opt/bin/black
    args: ["--preview"]
lint:
  convention: google
  disable: [C0114, R0903]
test:
  omit: ["*/migrations/*"]
`)

	cfg, err := Load(LoadOptions{ProjectRoot: root})
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Format.LineLength)
	assert.Equal(t, "/opt/bin/black", cfg.Format.Black.Command)
	assert.Equal(t, []string{"--preview"}, cfg.Format.Black.Args)
	assert.Equal(t, ToolIsort, cfg.Format.Isort.Command, "unset keys keep defaults")
	assert.Equal(t, "google", cfg.Lint.Convention)
	assert.Equal(t, []string{"C0114", "R0903"}, cfg.Lint.Disable)
	assert.Equal(t, []string{"*/migrations/*"}, cfg.Test.Omit)
	assert.Equal(t, []string{path}, cfg.Sources)
}

func TestLoad_JSONCFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".pdevtools.jsonc", `{
  // comments are allowed
  "format": {
    "line_length": 79, /* trailing comma below */
  },
}`)

	cfg, err := Load(LoadOptions{ProjectRoot: root})
	require.NoError(t, err)
	assert.Equal(t, 79, cfg.Format.LineLength)
}

func TestLoad_Pyproject(t *testing.T) {
	root := t.TempDir()
	pyproject := writeFile(t, root, "pyproject.toml", `
[project]
name = "demo"

[tool.black]
line-length = 120

[tool.isort]
profile = "google"
line_length = 99

[tool.pydocstyle]
convention = "numpy"

[tool.coverage.run]
source = ["demo"]
omit = ["demo/vendored/*"]

[tool.coverage.report]
fail_under = 80

[tool.pdevtools.lint]
disable = ["W0511"]
`)

	cfg, err := Load(LoadOptions{ProjectRoot: root})
	require.NoError(t, err)

	assert.Equal(t, 120, cfg.Format.LineLength, "black line-length wins over isort")
	assert.Equal(t, "google", cfg.Format.ImportProfile)
	assert.Equal(t, "numpy", cfg.Lint.Convention)
	assert.Equal(t, []string{"demo"}, cfg.Test.CoverageSource)
	assert.Equal(t, []string{"demo/vendored/*"}, cfg.Test.Omit)
	assert.InDelta(t, 80.0, cfg.Test.FailUnder, 0.001)
	assert.Equal(t, []string{"W0511"}, cfg.Lint.Disable)
	assert.Equal(t, []string{pyproject}, cfg.Sources)
}

func TestLoad_ConfigFileOverridesPyproject(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pyproject.toml", "[tool.black]\nline-length = 120\n")
	writeFile(t, root, ".pdevtools.yml", "format:\n  line_length: 90\n")

	cfg, err := Load(LoadOptions{ProjectRoot: root})
	require.NoError(t, err)
	assert.Equal(t, 90, cfg.Format.LineLength)
	assert.Len(t, cfg.Sources, 2)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".pdevtools.yaml", "format:\n  line_length: 90\n")
	t.Setenv("PDEVTOOLS_FORMAT__LINE_LENGTH", "110")
	t.Setenv("PDEVTOOLS_LOG__LEVEL", "debug")

	cfg, err := Load(LoadOptions{ProjectRoot: root})
	require.NoError(t, err)
	assert.Equal(t, 110, cfg.Format.LineLength)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	root := t.TempDir()
	t.Setenv("PDEVTOOLS_FORMAT__LINE_LENGTH", "110")

	fs := pflag.NewFlagSet("fmt", pflag.ContinueOnError)
	fs.Int("line-length", 0, "")
	fs.String("profile", "", "")
	require.NoError(t, fs.Parse([]string{"--line-length=72"}))

	cfg, err := Load(LoadOptions{
		ProjectRoot: root,
		Flags:       fs,
		FlagKeys: map[string]string{
			"line-length": "format.line_length",
			"profile":     "format.import_profile",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 72, cfg.Format.LineLength)
	assert.Equal(t, DefaultImportProfile, cfg.Format.ImportProfile, "unchanged flags are ignored")
}

func TestLoad_ExplicitConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "custom.yaml", "lint:\n  convention: google\n")

	cfg, err := Load(LoadOptions{ProjectRoot: t.TempDir(), ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, "google", cfg.Lint.Convention)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name   string
		files  map[string]string
		config string
	}{
		{
			name:  "line length out of range",
			files: map[string]string{".pdevtools.yaml": "format:\n  line_length: 0\n"},
		},
		{
			name:  "unknown isort profile",
			files: map[string]string{".pdevtools.yaml": "format:\n  import_profile: pretty\n"},
		},
		{
			name:  "unknown docstring convention",
			files: map[string]string{".pdevtools.yaml": "lint:\n  convention: sphinx\n"},
		},
		{
			name:  "fail_under above 100",
			files: map[string]string{".pdevtools.yaml": "test:\n  fail_under: 101\n"},
		},
		{
			name:  "unknown log level",
			files: map[string]string{".pdevtools.yaml": "log:\n  level: debgu\n"},
		},
		{
			name:  "empty tool command",
			files: map[string]string{".pdevtools.yaml": "format:\n  black:\n    command: \"\"\n"},
		},
		{
			name:  "malformed pyproject",
			files: map[string]string{"pyproject.toml": "[tool.black\n"},
		},
		{
			name:  "malformed yaml",
			files: map[string]string{".pdevtools.yaml": "format: [\n"},
		},
		{
			name:   "missing explicit file",
			config: "does-not-exist.yaml",
		},
		{
			name:   "unsupported extension",
			files:  map[string]string{"cfg.ini": "[format]\n"},
			config: "cfg.ini",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, root, name, content)
			}
			explicit := ""
			if tt.config != "" {
				explicit = filepath.Join(root, tt.config)
			}

			_, err := Load(LoadOptions{ProjectRoot: root, ConfigFile: explicit})
			require.Error(t, err)
			requireExitCode(t, err, model.ExitInvalidInput)
		})
	}
}

func TestLoad_EnvLogLevelTypo(t *testing.T) {
	t.Setenv("PDEVTOOLS_LOG__LEVEL", "debgu")

	_, err := Load(LoadOptions{ProjectRoot: t.TempDir()})
	requireExitCode(t, err, model.ExitInvalidInput)
	assert.ErrorContains(t, err, `log.level "debgu"`)
}

// Coverage resolves relative omit patterns against pytest's working
// directory, which need not be the project root.
func TestDefaultOmit_MatchesFromAnyDirectory(t *testing.T) {
	for _, pattern := range DefaultOmit {
		assert.True(t, strings.HasPrefix(pattern, "*/"), "pattern %q", pattern)
	}
	assert.Contains(t, DefaultOmit, "*/setup.py")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "format.line_length", envKey("PDEVTOOLS_FORMAT__LINE_LENGTH"))
	assert.Equal(t, "lint.pylint.command", envKey("PDEVTOOLS_LINT__PYLINT__COMMAND"))
}

func TestWriteDefault(t *testing.T) {
	root := t.TempDir()

	path, err := WriteDefault(root, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".pdevtools.yaml"), path)

	// The written file must load back to the defaults.
	cfg, err := Load(LoadOptions{ProjectRoot: root})
	require.NoError(t, err)
	assert.Equal(t, DefaultLineLength, cfg.Format.LineLength)
	assert.Equal(t, []string{path}, cfg.Sources)

	// A second write without force is refused.
	_, err = WriteDefault(root, false)
	requireExitCode(t, err, model.ExitInvalidInput)

	_, err = WriteDefault(root, true)
	assert.NoError(t, err)
}

func TestMarshalYAML(t *testing.T) {
	cfg, err := DefaultConfig()
	require.NoError(t, err)

	data, err := MarshalYAML(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "line_length: 88")
	assert.Contains(t, string(data), "import_profile: black")
	assert.NotContains(t, string(data), "ProjectRoot")
}
