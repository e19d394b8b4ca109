package argus_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cagmero/ARGUS"
)

const adminProgram = `#pragma version 8
txn ApplicationArgs 0
byte "set_admin"
==
bnz set_admin
int 0
return
set_admin:
byte "admin_key"
byte "Zq8vLx2pR4"
app_global_put
int 1
return
`

func writeContract(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "admin.teal"), []byte(adminProgram), 0o644))
	return dir
}

func TestScan(t *testing.T) {
	dir := writeContract(t)

	result, err := argus.Scan(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Equal(t, 1, result.Summary.FilesScanned)
	require.Equal(t, []string{"builtin"}, result.Summary.ToolsUsed)
	require.Len(t, result.Vulnerabilities, 2)
	require.Equal(t, "hardcoded-secret", result.Vulnerabilities[0].RuleID, "CRITICAL sorts first")
	require.Equal(t, "missing-access-control", result.Vulnerabilities[1].RuleID)
	require.Equal(t, 3, result.ExitCode())
}

func TestScanMinSeverity(t *testing.T) {
	dir := writeContract(t)

	result, err := argus.Scan(context.Background(), []string{dir}, argus.WithMinSeverity(argus.SeverityCritical))
	require.NoError(t, err)
	require.Len(t, result.Vulnerabilities, 1)
	require.Equal(t, 1, result.Summary.TotalVulnerabilities)
	require.Zero(t, result.Summary.High)
}

func TestScanRuleOverrides(t *testing.T) {
	dir := writeContract(t)

	result, err := argus.Scan(context.Background(), []string{dir}, argus.WithRuleOverrides(map[string]argus.RuleOverride{
		"hardcoded-secret":       {Disabled: true},
		"missing-access-control": {Severity: "medium"},
	}))
	require.NoError(t, err)
	require.Len(t, result.Vulnerabilities, 1)
	require.Equal(t, argus.SeverityMedium, result.Vulnerabilities[0].Severity)
	require.Equal(t, 1, result.ExitCode())
}

func TestScanInvalidConfig(t *testing.T) {
	_, err := argus.Scan(context.Background(), []string{"."}, argus.WithAnalyzers("slither"))
	require.True(t, errors.Is(err, argus.ErrInvalidConfig))

	_, err = argus.Scan(context.Background(), []string{"."}, argus.WithWorkers(0))
	require.True(t, errors.Is(err, argus.ErrInvalidConfig))

	_, err = argus.Scan(context.Background(), []string{"."}, argus.WithRuleOverrides(map[string]argus.RuleOverride{
		"no-such-rule": {Disabled: true},
	}))
	require.True(t, errors.Is(err, argus.ErrInvalidConfig))
}

func TestScanNoTargets(t *testing.T) {
	_, err := argus.Scan(context.Background(), []string{filepath.Join(t.TempDir(), "missing")})
	require.True(t, errors.Is(err, argus.ErrNoTargets))
}

func TestScanWithConfig(t *testing.T) {
	dir := writeContract(t)
	cfg := argus.DefaultConfig()
	cfg.TargetPaths = []string{dir}
	cfg.SeverityThreshold = "CRITICAL"

	result, err := argus.Scan(context.Background(), nil, argus.WithConfig(cfg), argus.WithTimeout(1500*time.Millisecond))
	require.NoError(t, err)
	require.Len(t, result.Vulnerabilities, 1)
}

func TestScanContent(t *testing.T) {
	result, err := argus.ScanContent(context.Background(), adminProgram, "inline/admin.teal")
	require.NoError(t, err)
	require.Equal(t, "inline/admin.teal", result.Target)
	require.Len(t, result.Vulnerabilities, 2)
	require.Equal(t, "inline/admin.teal", result.Vulnerabilities[0].File)
}

func TestScanContentClean(t *testing.T) {
	src := "#pragma version 8\nint 1\nreturn\n"
	result, err := argus.ScanContent(context.Background(), src, "")
	require.NoError(t, err)
	require.Equal(t, 1, result.Summary.FilesScanned)
	require.Empty(t, result.Vulnerabilities)
	require.Equal(t, 0, result.ExitCode())
}

func TestListRules(t *testing.T) {
	all, err := argus.ListRules()
	require.NoError(t, err)
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		require.Less(t, all[i-1].ID, all[i].ID, "rules are ordered by id")
	}

	scripts, err := argus.ListRules(argus.WithFileType(argus.FileTypeScript))
	require.NoError(t, err)
	require.NotEmpty(t, scripts)
	require.Less(t, len(scripts), len(all))
	ids := make([]string, len(scripts))
	for i, r := range scripts {
		ids[i] = r.ID
	}
	require.Contains(t, ids, "unhandled-async-call")
	require.NotContains(t, ids, "default-approve")
}

func TestExplainRule(t *testing.T) {
	detail, err := argus.ExplainRule("  Hardcoded-Secret ")
	require.NoError(t, err)
	require.Equal(t, "hardcoded-secret", detail.ID)
	require.Equal(t, "CRITICAL", detail.Severity)
	require.Equal(t, "CWE-798", detail.CWE)
	require.NotEmpty(t, detail.Description)

	_, err = argus.ExplainRule("no-such-rule")
	require.True(t, errors.Is(err, argus.ErrRuleNotFound))
}

func TestAnalyzers(t *testing.T) {
	infos, err := argus.Analyzers()
	require.NoError(t, err)
	require.Len(t, infos, len(argus.AnalyzerNames()))
	require.Equal(t, "builtin", infos[0].Name)
	require.False(t, infos[0].External)
	require.True(t, infos[0].Available)
}
