package scanner_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/cagmero/ARGUS/internal/scanner"
	"github.com/stretchr/testify/require"
)

func skipIfNoGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not on PATH")
	}
}

func gitRepo(t *testing.T) (string, func(args ...string)) {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test",
			"GIT_AUTHOR_EMAIL=test@test.com",
			"GIT_COMMITTER_NAME=test",
			"GIT_COMMITTER_EMAIL=test@test.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("init")
	run("config", "user.email", "test@test.com")
	run("config", "user.name", "test")
	return dir, run
}

func TestGitChangedFilesModifiedAndUntracked(t *testing.T) {
	skipIfNoGit(t)
	dir, run := gitRepo(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "approval.teal"), []byte("#pragma version 8\nint 1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clear.teal"), []byte("#pragma version 8\nint 1\n"), 0644))
	run("add", "approval.teal", "clear.teal")
	run("commit", "-m", "init")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "approval.teal"), []byte("#pragma version 8\nint 0\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deploy.ts"), []byte("export {}\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "contract.wasm"), []byte{0x00, 0x61}, 0644))

	files, err := scanner.GitChangedFiles(context.Background(), dir)
	require.NoError(t, err)

	require.Contains(t, files, "approval.teal")
	require.Contains(t, files, "deploy.ts")
	require.NotContains(t, files, "clear.teal")
	require.NotContains(t, files, "contract.wasm")
}

func TestGitChangedFilesNotARepo(t *testing.T) {
	skipIfNoGit(t)

	files, err := scanner.GitChangedFiles(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.Empty(t, files)
}
