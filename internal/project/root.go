// Package project resolves the project root and the target path a
// pipeline operates on.
//
// The project root is, in order of preference:
//  1. the top-level directory of the Git working tree containing the
//     start directory (`git rev-parse --show-toplevel`)
//  2. the nearest ancestor holding a Python project marker file
//     (pyproject.toml, setup.py, setup.cfg, .pdevtools.yaml)
//  3. the start directory itself
//
// Git is invoked through os/exec so the resolution matches what the user
// sees in their terminal, including worktrees and submodules.
package project

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shinji-kodama/pdevtools/internal/model"
)

// maxUpwardSearchLevels limits how far up the directory tree marker
// files are searched.
const maxUpwardSearchLevels = 10

// MarkerFiles identify the root of a Python project.
var MarkerFiles = []string{
	"pyproject.toml",
	"setup.py",
	"setup.cfg",
	".pdevtools.yaml",
	".pdevtools.yml",
}

// Resolver finds project roots and validates target paths.
type Resolver struct {
	// GitBinary is the git executable. Empty disables Git detection.
	GitBinary string
}

// NewResolver creates a Resolver that uses the git binary on PATH.
func NewResolver() *Resolver {
	return &Resolver{GitBinary: "git"}
}

// Root returns the project root for start (see package documentation).
// start is made absolute first; it must be an existing directory.
func (r *Resolver) Root(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", model.WrapCLIError(model.ExitInvalidInput,
			fmt.Sprintf("cannot resolve %q", start), err)
	}

	if r.GitBinary != "" {
		if top, err := r.gitTopLevel(abs); err == nil {
			return top, nil
		}
	}

	if root := findMarkerUpward(abs); root != "" {
		return root, nil
	}
	return abs, nil
}

// Target resolves the target path argument. An empty arg selects the
// project root. Relative paths are resolved against the current
// directory. The target must exist; it may be a file or a directory.
func (r *Resolver) Target(root, arg string) (string, error) {
	if arg == "" {
		return root, nil
	}

	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", model.WrapCLIError(model.ExitInvalidInput,
			fmt.Sprintf("cannot resolve target %q", arg), err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", model.WrapCLIError(model.ExitInvalidInput,
			fmt.Sprintf("target path %s does not exist", abs), err)
	}
	return abs, nil
}

// gitTopLevel runs `git rev-parse --show-toplevel` in dir.
func (r *Resolver) gitTopLevel(dir string) (string, error) {
	output, err := r.runGit(dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return filepath.Clean(strings.TrimSpace(output)), nil
}

// runGit executes a git command with the given arguments in the specified
// directory via the -C flag and returns stdout. On failure the error
// message includes git's stderr.
func (r *Resolver) runGit(dir string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", dir}, args...)

	// #nosec G204: args are constructed internally, not from user input
	cmd := exec.Command(r.GitBinary, fullArgs...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		message := fmt.Sprintf("git %s failed", strings.Join(args, " "))
		if stderrStr != "" {
			message = fmt.Sprintf("%s: %s", message, stderrStr)
		}
		return "", fmt.Errorf("%s: %w", message, err)
	}
	return stdout.String(), nil
}

// findMarkerUpward searches from dir towards the filesystem root for a
// directory containing one of MarkerFiles. Returns "" if none is found
// within maxUpwardSearchLevels.
func findMarkerUpward(dir string) string {
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if hasMarker(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func hasMarker(dir string) bool {
	for _, name := range MarkerFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}
