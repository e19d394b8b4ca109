package scanner

import (
	"context"
	"os/exec"
	"strings"
)

// GitChangedFiles returns files under root that are modified, staged, or
// untracked, relative to root and slash-separated. Binary extensions are
// filtered out. If git is missing or root is not inside a repository the
// function returns an empty slice and no error.
func GitChangedFiles(ctx context.Context, root string) ([]string, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, nil
	}
	if _, err := runGit(ctx, root, "rev-parse", "--git-dir"); err != nil {
		return nil, nil
	}

	seen := make(map[string]bool)
	var files []string
	add := func(out string) {
		for _, f := range splitLines(out) {
			if f != "" && !seen[f] && !isBinaryExt(f) {
				seen[f] = true
				files = append(files, f)
			}
		}
	}

	// Repositories without commits have no HEAD to diff against.
	out, err := runGit(ctx, root, "diff", "--name-only", "--relative", "HEAD")
	if err != nil {
		out, err = runGit(ctx, root, "diff", "--name-only", "--relative", "--cached")
		if err != nil {
			return nil, nil
		}
	}
	add(out)

	if out, err := runGit(ctx, root, "ls-files", "--others", "--exclude-standard"); err == nil {
		add(out)
	}
	return files, ctx.Err()
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func splitLines(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
