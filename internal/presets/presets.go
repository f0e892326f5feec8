// Package presets renders the preset tool configuration files handed to
// the wrapped tools: a coverage.py rcfile for pytest-cov and a pylintrc.
//
// Both are INI documents generated from the effective configuration into
// a per-invocation temporary directory, so the user's own tool config
// files are never modified.
package presets

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/shinji-kodama/pdevtools/internal/config"
)

// File names inside the generated directory.
const (
	CoverageRCName = "coveragerc"
	PylintRCName   = "pylintrc"
)

// DefaultPylintIgnore lists base names pylint never descends into.
var DefaultPylintIgnore = []string{".git", ".venv", "venv", "build", "dist", "__pycache__"}

// Files locates the generated configuration files.
type Files struct {
	Dir        string
	CoverageRC string
	PylintRC   string
}

// Coverage builds the coverage.py configuration: branch coverage, the
// preset omit list followed by configured patterns, and report options.
func Coverage(cfg config.TestConfig) *ini.File {
	f := ini.Empty()

	run, _ := f.NewSection("run")
	_, _ = run.NewKey("branch", "True")
	if len(cfg.CoverageSource) > 0 {
		_, _ = run.NewKey("source", strings.Join(cfg.CoverageSource, ","))
	}
	_, _ = run.NewKey("omit", strings.Join(mergeUnique(config.DefaultOmit, cfg.Omit), ","))

	report, _ := f.NewSection("report")
	_, _ = report.NewKey("show_missing", "True")
	_, _ = report.NewKey("skip_empty", "True")
	_, _ = report.NewKey("omit", strings.Join(mergeUnique(config.DefaultOmit, cfg.Omit), ","))
	if cfg.FailUnder > 0 {
		_, _ = report.NewKey("fail_under", strconv.FormatFloat(cfg.FailUnder, 'f', -1, 64))
	}

	return f
}

// Pylint builds the pylintrc for the lint pipeline.
func Pylint(cfg *config.Config) *ini.File {
	f := ini.Empty()

	main, _ := f.NewSection("MAIN")
	_, _ = main.NewKey("ignore", strings.Join(mergeUnique(DefaultPylintIgnore, cfg.Lint.Ignore), ","))
	_, _ = main.NewKey("jobs", "1")

	format, _ := f.NewSection("FORMAT")
	_, _ = format.NewKey("max-line-length", strconv.Itoa(cfg.EffectiveMaxLineLength()))

	if len(cfg.Lint.Disable) > 0 {
		messages, _ := f.NewSection("MESSAGES CONTROL")
		_, _ = messages.NewKey("disable", strings.Join(cfg.Lint.Disable, ","))
	}

	return f
}

// Write renders both files into dir.
func Write(dir string, cfg *config.Config) (*Files, error) {
	files := &Files{
		Dir:        dir,
		CoverageRC: filepath.Join(dir, CoverageRCName),
		PylintRC:   filepath.Join(dir, PylintRCName),
	}
	if err := Coverage(cfg.Test).SaveTo(files.CoverageRC); err != nil {
		return nil, fmt.Errorf("write %s: %w", files.CoverageRC, err)
	}
	if err := Pylint(cfg).SaveTo(files.PylintRC); err != nil {
		return nil, fmt.Errorf("write %s: %w", files.PylintRC, err)
	}
	return files, nil
}

// WriteTemp renders both files into a fresh temporary directory. The
// returned cleanup func removes it.
func WriteTemp(cfg *config.Config) (*Files, func(), error) {
	dir, err := os.MkdirTemp("", "pdevtools-")
	if err != nil {
		return nil, func() {}, fmt.Errorf("create preset dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	files, err := Write(dir, cfg)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return files, cleanup, nil
}

// mergeUnique returns base followed by the entries of extra not already
// present, preserving order.
func mergeUnique(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, v := range list {
			v = strings.TrimSpace(v)
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
