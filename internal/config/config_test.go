package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cagmero/ARGUS/internal/config"
	"github.com/cagmero/ARGUS/internal/rules"
	"github.com/cagmero/ARGUS/internal/types"
)

func known(id string) bool { return id == "builtin" || id == "tealer" }

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	data := []byte(`
target_paths:
  - contracts/
  - scripts/
exclude_patterns:
  - "**/vendor/**"
analyzers: [builtin, tealer]
severity_threshold: HIGH
output_format: sarif
max_workers: 2
timeout: 30
scan_timeout: 600
analyzer_settings:
  tealer:
    command: /opt/tealer/bin/tealer --format json
rule_overrides:
  default-approve:
    severity: medium
  explicit-error:
    disabled: true
`)
	path := filepath.Join(dir, ".argus.yml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"contracts/", "scripts/"}, cfg.TargetPaths)
	require.Equal(t, []string{"**/vendor/**"}, cfg.ExcludePatterns)
	require.Equal(t, config.Default().IncludePatterns, cfg.IncludePatterns, "unset keys keep defaults")
	require.Equal(t, []string{"builtin", "tealer"}, cfg.Analyzers)
	require.Equal(t, types.SeverityHigh, cfg.Threshold())
	require.Equal(t, "sarif", cfg.OutputFormat)
	require.Equal(t, 2, cfg.MaxWorkers)
	require.Equal(t, 30*time.Second, cfg.UnitTimeout())
	require.Equal(t, 10*time.Minute, cfg.ScanDeadline())
	require.Equal(t, "/opt/tealer/bin/tealer --format json", cfg.AnalyzerSettings["tealer"]["command"])
	require.Equal(t, "medium", cfg.RuleOverrides["default-approve"].Severity)
	require.True(t, cfg.RuleOverrides["explicit-error"].Disabled)
	require.NoError(t, cfg.Validate(known))
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".argus.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"severity_threshold": "MEDIUM", "max_workers": 8}`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, types.SeverityMedium, cfg.Threshold())
	require.Equal(t, 8, cfg.MaxWorkers)
	require.Equal(t, "json", cfg.OutputFormat)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
	require.NoError(t, cfg.Validate(known))
	require.Equal(t, 5*time.Minute, cfg.UnitTimeout())
	require.Zero(t, cfg.ScanDeadline())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ARGUS_MAX_WORKERS", "16")
	t.Setenv("ARGUS_SEVERITY_THRESHOLD", "CRITICAL")

	dir := t.TempDir()
	path := filepath.Join(dir, ".argus.yml")
	require.NoError(t, os.WriteFile(path, []byte("max_workers: 2\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 16, cfg.MaxWorkers)
	require.Equal(t, types.SeverityCritical, cfg.Threshold())
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".argus.yml")
	require.NoError(t, os.WriteFile(path, []byte("target_paths: [unclosed\n"), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), path)
}

func TestLoadTooLarge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".argus.yml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("#", 1<<20+1)), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "too large")
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	path, err := config.Find(dir)
	require.NoError(t, err)
	require.Empty(t, path)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".argus.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".argus.yaml"), []byte(""), 0o644))
	path, err = config.Find(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, ".argus.yaml"), path, ".yaml is preferred over .json")

	file := filepath.Join(dir, "approval.teal")
	require.NoError(t, os.WriteFile(file, []byte("int 1\n"), 0o644))
	path, err = config.Find(file)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, ".argus.yaml"), path)
}

func TestParseSniffsFormat(t *testing.T) {
	cfg, err := config.Parse([]byte(`{"analyzers": ["tealer"]}`), "")
	require.NoError(t, err)
	require.Equal(t, []string{"tealer"}, cfg.Analyzers)

	cfg, err = config.Parse([]byte("analyzers:\n  - builtin\n"), "")
	require.NoError(t, err)
	require.Equal(t, []string{"builtin"}, cfg.Analyzers)
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	cfg.SeverityThreshold = "SEVERE"
	cfg.OutputFormat = "pdf"
	cfg.Analyzers = []string{"builtin", "slither"}
	cfg.MaxWorkers = 0
	cfg.Timeout = -1
	cfg.RuleOverrides = map[string]rules.RuleOverride{"default-approve": {Severity: "loud"}}

	err := cfg.Validate(known)
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"severity_threshold", "output_format", `"slither"`, "max_workers", "timeout", "rule_overrides.default-approve"} {
		require.Contains(t, msg, want)
	}
}

func TestValidateEmptyLists(t *testing.T) {
	cfg := config.Default()
	cfg.TargetPaths = nil
	cfg.Analyzers = nil
	err := cfg.Validate(known)
	require.ErrorContains(t, err, "target_paths is empty")
	require.ErrorContains(t, err, "analyzers is empty")
}

func TestClone(t *testing.T) {
	cfg := config.Default()
	cfg.AnalyzerSettings = map[string]map[string]any{"tealer": {"command": "tealer"}}
	cfg.RuleOverrides = map[string]rules.RuleOverride{"default-approve": {Disabled: true}}

	c := cfg.Clone()
	c.TargetPaths[0] = "elsewhere"
	c.AnalyzerSettings["tealer"]["command"] = "other"
	c.RuleOverrides["explicit-error"] = rules.RuleOverride{Disabled: true}

	require.Equal(t, ".", cfg.TargetPaths[0])
	require.Equal(t, "tealer", cfg.AnalyzerSettings["tealer"]["command"])
	require.Len(t, cfg.RuleOverrides, 1)
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.Analyzers = []string{"builtin", "tealer"}
	data, err := cfg.YAML()
	require.NoError(t, err)
	require.Contains(t, string(data), "severity_threshold: LOW")

	back, err := config.Parse(data, "yaml")
	require.NoError(t, err)
	require.Equal(t, cfg.Analyzers, back.Analyzers)
	require.Equal(t, cfg.ExcludePatterns, back.ExcludePatterns)
}
