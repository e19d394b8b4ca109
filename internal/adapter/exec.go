// Package adapter wraps external Algorand analyzers (tealer, panda and the
// smart-contract quality-assurance tool) behind the scanner.Analyzer
// contract. Each adapter spawns its tool under the unit context, parses the
// tool's report and normalizes it into vulnerabilities.
package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// ErrToolNotFound is returned when none of an adapter's commands is on PATH.
var ErrToolNotFound = errors.New("analyzer tool not found")

// waitDelay bounds how long a killed tool may hold its output pipes open.
const waitDelay = 2 * time.Second

// maxStderr caps the stderr excerpt carried in errors.
const maxStderr = 512

// Command is one way of invoking a tool. The target file is appended after
// Args.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	return shellquote.Join(append([]string{c.Name}, c.Args...)...)
}

// Settings are the per-adapter options read from analyzer_settings.<id>.
type Settings struct {
	// Command replaces the built-in candidates when set.
	Command *Command
	// Args are appended before the target file.
	Args []string
}

// ParseSettings reads the "command" and "args" keys. Both accept a shell
// quoted string; "args" also accepts a list.
func ParseSettings(m map[string]any) (Settings, error) {
	var s Settings
	if raw, ok := m["command"]; ok {
		line, ok := raw.(string)
		if !ok {
			return s, fmt.Errorf("command must be a string, got %T", raw)
		}
		words, err := shellquote.Split(line)
		if err != nil {
			return s, fmt.Errorf("parsing command %q: %w", line, err)
		}
		if len(words) == 0 {
			return s, fmt.Errorf("command is empty")
		}
		s.Command = &Command{Name: words[0], Args: words[1:]}
	}
	switch raw := m["args"].(type) {
	case nil:
	case string:
		words, err := shellquote.Split(raw)
		if err != nil {
			return s, fmt.Errorf("parsing args %q: %w", raw, err)
		}
		s.Args = words
	case []any:
		for _, a := range raw {
			s.Args = append(s.Args, fmt.Sprint(a))
		}
	case []string:
		s.Args = append(s.Args, raw...)
	default:
		return s, fmt.Errorf("args must be a string or a list, got %T", raw)
	}
	return s, nil
}

// tool holds what every adapter needs to run its executable.
type tool struct {
	name       string
	candidates []Command
	settings   Settings
	// accept lists exit codes that still carry a report.
	accept []int
}

// resolve returns the first command whose executable is on PATH.
func (t *tool) resolve() (Command, string, error) {
	candidates := t.candidates
	if t.settings.Command != nil {
		candidates = []Command{*t.settings.Command}
	}
	var names []string
	for _, c := range candidates {
		if p, err := exec.LookPath(c.Name); err == nil {
			return c, p, nil
		}
		names = append(names, c.Name)
	}
	return Command{}, "", fmt.Errorf("%w: %s (tried %s)", ErrToolNotFound, t.name, strings.Join(names, ", "))
}

// Available reports the command that would run, if any.
func (t *tool) Available() (string, bool) {
	c, _, err := t.resolve()
	if err != nil {
		return "", false
	}
	return c.String(), true
}

// run executes the tool on file and returns its stdout. The process is
// killed when ctx ends and its pipes are released within waitDelay.
func (t *tool) run(ctx context.Context, file string) ([]byte, error) {
	c, path, err := t.resolve()
	if err != nil {
		return nil, err
	}
	args := append(append(append([]string(nil), c.Args...), t.settings.Args...), file)

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || !t.accepts(exitErr.ExitCode()) {
			return nil, fmt.Errorf("%s: %w: %s", c.Name, err, excerpt(stderr.String()))
		}
	}
	return stdout.Bytes(), nil
}

func (t *tool) accepts(code int) bool {
	for _, c := range t.accept {
		if c == code {
			return true
		}
	}
	return false
}

// materialize returns an on-disk path for the file content. Files parsed
// from inline content are written to a temporary file that cleanup removes.
func materialize(absPath, display string, content []byte) (path string, cleanup func(), err error) {
	if absPath != "" {
		return absPath, func() {}, nil
	}
	f, err := os.CreateTemp("", "argus-*"+filepath.Ext(display))
	if err != nil {
		return "", nil, fmt.Errorf("creating temp file: %w", err)
	}
	cleanup = func() { os.Remove(f.Name()) }
	if _, err := f.Write(content); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("writing temp file: %w", err)
	}
	return f.Name(), cleanup, nil
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		s = s[:maxStderr] + "..."
	}
	if s == "" {
		return "no output on stderr"
	}
	return s
}
