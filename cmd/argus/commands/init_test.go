package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cagmero/ARGUS/internal/analyzers"
	"github.com/cagmero/ARGUS/internal/config"
)

func TestInitCreatesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "project")

	stdout, _, code := execute(t, "init", dir)
	require.Equal(t, 0, code)
	for _, name := range []string{".argus.yml", ".argusignore", filepath.Join(".github", "workflows", "argus.yml")} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		require.NotEmpty(t, data, name)
		require.Contains(t, stdout, "create "+filepath.Join(dir, name))
	}
}

func TestInitConfigLoadsBack(t *testing.T) {
	dir := t.TempDir()
	_, _, code := execute(t, "init", dir)
	require.Equal(t, 0, code)

	cfg, err := config.Load(filepath.Join(dir, ".argus.yml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate(analyzers.Known))
	require.Equal(t, config.Default().Analyzers, cfg.Analyzers)
	require.Equal(t, config.Default().SeverityThreshold, cfg.SeverityThreshold)
	require.Equal(t, config.Default().IncludePatterns, cfg.IncludePatterns)
}

func TestInitSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, ".argus.yml")
	require.NoError(t, os.WriteFile(existing, []byte("max_workers: 2\n"), 0o644))

	stdout, _, code := execute(t, "init", dir)
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "skip "+existing)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	require.Equal(t, "max_workers: 2\n", string(data))

	_, err = os.Stat(filepath.Join(dir, ".argusignore"))
	require.NoError(t, err)
}

func TestInitHook(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))

	_, _, code := execute(t, "init", dir, "--hook")
	require.Equal(t, 0, code)

	hookPath := filepath.Join(dir, ".git", "hooks", "pre-commit")
	info, err := os.Stat(hookPath)
	require.NoError(t, err)
	require.True(t, info.Mode()&0o111 != 0, "hook should be executable")
	data, err := os.ReadFile(hookPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "argus scan")

	_, err = os.Stat(filepath.Join(dir, ".argus.yml"))
	require.True(t, os.IsNotExist(err))
}

func TestInitHookNoGitDir(t *testing.T) {
	_, stderr, code := execute(t, "init", t.TempDir(), "--hook")
	require.Equal(t, exitInvocation, code)
	require.Contains(t, stderr, ".git")
}

func TestInitCIOnly(t *testing.T) {
	dir := t.TempDir()

	_, _, code := execute(t, "init", dir, "--ci")
	require.Equal(t, 0, code)

	_, err := os.Stat(filepath.Join(dir, ".github", "workflows", "argus.yml"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, ".argus.yml"))
	require.True(t, os.IsNotExist(err), ".argus.yml should not be created with --ci")
	_, err = os.Stat(filepath.Join(dir, ".argusignore"))
	require.True(t, os.IsNotExist(err), ".argusignore should not be created with --ci")
}
