package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cagmero/ARGUS/internal/config"
)

var (
	flagHook   bool
	flagCIOnly bool
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default Argus configuration",
		Long:  `Scaffolds .argus.yml with the default settings, an .argusignore file and a GitHub Actions workflow.`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInit,
	}
	cmd.Flags().BoolVar(&flagHook, "hook", false, "Create a git pre-commit hook that runs argus")
	cmd.Flags().BoolVar(&flagCIOnly, "ci", false, "Only generate the GitHub Actions workflow")
	return cmd
}

type scaffold struct {
	path    string
	content []byte
	mode    os.FileMode
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	w := cmd.OutOrStdout()

	workflow := scaffold{filepath.Join(dir, ".github", "workflows", "argus.yml"), []byte(workflowTemplate), 0o644}
	switch {
	case flagHook:
		gitDir := filepath.Join(dir, ".git")
		if _, err := os.Stat(gitDir); os.IsNotExist(err) {
			return fmt.Errorf("no .git directory found in %s (is this a git repository?)", dir)
		}
		return writeScaffolds(w, scaffold{filepath.Join(gitDir, "hooks", "pre-commit"), []byte(preCommitTemplate), 0o755})
	case flagCIOnly:
		return writeScaffolds(w, workflow)
	}

	doc, err := config.Default().YAML()
	if err != nil {
		return fmt.Errorf("rendering default configuration: %w", err)
	}
	return writeScaffolds(w,
		scaffold{filepath.Join(dir, config.FileNames[0]), append([]byte(configHeader), doc...), 0o644},
		scaffold{filepath.Join(dir, ".argusignore"), []byte(ignoreTemplate), 0o644},
		workflow,
	)
}

// writeScaffolds creates each file unless it already exists.
func writeScaffolds(w io.Writer, files ...scaffold) error {
	for _, f := range files {
		if _, err := os.Stat(f.path); err == nil {
			fmt.Fprintf(w, "  skip %s (already exists)\n", f.path)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", f.path, err)
		}
		if err := os.WriteFile(f.path, f.content, f.mode); err != nil {
			return fmt.Errorf("writing %s: %w", f.path, err)
		}
		fmt.Fprintf(w, "  create %s\n", f.path)
	}
	return nil
}

const configHeader = `# Argus configuration. Every key can be overridden with an ARGUS_ environment
# variable, e.g. ARGUS_SEVERITY_THRESHOLD=HIGH.
#
# analyzers: builtin, tealer, panda, quality-assurance
# severity_threshold: INFO, LOW, MEDIUM, HIGH, CRITICAL
# output_format: json, structured, text, sarif, markdown, html
# rule_overrides:
#   default-approve:
#     severity: MEDIUM
#   unhandled-async-call:
#     disabled: true

`

const ignoreTemplate = `# Paths matching these patterns are skipped during directory scans.

# Dependencies and virtualenvs
node_modules/
.venv/
venv/
__pycache__/

# Build output
build/
dist/
artifacts/

# Generated clients
*.arc32.json
*.arc56.json
`

const preCommitTemplate = `#!/bin/sh
# argus pre-commit hook
echo "Running argus scan..."
argus scan . --format text --no-color --severity high
status=$?
if [ $status -ge 2 ]; then
  exit 1
fi
exit 0
`

const workflowTemplate = `name: Argus

on:
  push:
    branches: [main]
  pull_request:
    branches: [main]

permissions:
  security-events: write
  contents: read

jobs:
  argus:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4

      - uses: actions/setup-go@v5
        with:
          go-version: stable

      - name: Install argus
        run: go install github.com/cagmero/ARGUS/cmd/argus@latest

      - name: Install tealer
        run: pip install tealer

      - name: Run argus
        id: scan
        continue-on-error: true
        run: argus scan . --analyzers builtin,tealer --format sarif --output argus.sarif

      - name: Upload SARIF results
        if: always()
        uses: github/codeql-action/upload-sarif@v3
        with:
          sarif_file: argus.sarif

      - name: Fail on findings
        if: steps.scan.outcome == 'failure'
        run: exit 1
`
