package project

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/pdevtools/internal/model"
)

// setupTestRepo creates a temporary directory with an initialized Git
// repository. No commit is needed for rev-parse --show-toplevel.
func setupTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	cmd := exec.Command("git", "-C", dir, "init")
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "git init failed: %s", string(output))

	// Resolve symlinks (macOS /var → /private/var) so paths compare equal
	// to what git reports.
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	return resolved
}

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

// TestRoot_GitTopLevel verifies that a nested directory resolves to the
// repository's top-level directory.
func TestRoot_GitTopLevel(t *testing.T) {
	repo := setupTestRepo(t)
	nested := filepath.Join(repo, "pkg", "sub")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	root, err := NewResolver().Root(nested)
	require.NoError(t, err)
	assert.Equal(t, repo, root)
}

// TestRoot_MarkerFile verifies the upward marker search when Git is
// disabled.
func TestRoot_MarkerFile(t *testing.T) {
	dir := tempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte("[project]\n"), 0o644))
	nested := filepath.Join(dir, "src", "demo")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	r := &Resolver{}
	root, err := r.Root(nested)
	require.NoError(t, err)
	assert.Equal(t, dir, root)
}

// TestRoot_FallbackToStart verifies that without Git or markers the start
// directory is the root.
func TestRoot_FallbackToStart(t *testing.T) {
	dir := tempDir(t)

	r := &Resolver{GitBinary: "git-binary-that-does-not-exist"}
	root, err := r.Root(dir)
	require.NoError(t, err)

	// An ancestor of the temp dir could carry a marker file on odd hosts;
	// the result must be dir or one of its ancestors.
	rel, err := filepath.Rel(root, dir)
	require.NoError(t, err)
	assert.NotContains(t, rel, "..")
}

func TestTarget(t *testing.T) {
	root := tempDir(t)
	file := filepath.Join(root, "module.py")
	require.NoError(t, os.WriteFile(file, []byte("x = 1\n"), 0o644))

	r := NewResolver()

	t.Run("empty selects root", func(t *testing.T) {
		got, err := r.Target(root, "")
		require.NoError(t, err)
		assert.Equal(t, root, got)
	})

	t.Run("existing file", func(t *testing.T) {
		got, err := r.Target(root, file)
		require.NoError(t, err)
		assert.Equal(t, file, got)
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := r.Target(root, filepath.Join(root, "missing.py"))
		require.Error(t, err)
		var cliErr *model.CLIError
		require.True(t, errors.As(err, &cliErr))
		assert.Equal(t, model.ExitInvalidInput, cliErr.Code)
	})
}
