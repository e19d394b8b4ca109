package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cagmero/ARGUS"
	"github.com/cagmero/ARGUS/internal/update"
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

// execute runs the CLI in-process and returns stdout, stderr and the exit code.
func execute(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func contractDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "admin.teal"), []byte(adminProgram), 0o644))
	return dir
}

type scanResponse struct {
	Summary struct {
		FilesScanned int `json:"files_scanned"`
		Total        int `json:"total_vulnerabilities"`
	} `json:"summary"`
	Vulnerabilities []struct {
		RuleID   string `json:"rule_id"`
		Severity string `json:"severity"`
	} `json:"vulnerabilities"`
	Errors []string `json:"errors"`
}

func TestScanJSON(t *testing.T) {
	dir := contractDir(t)

	stdout, _, code := execute(t, "scan", dir, "--format", "json")
	require.Equal(t, 3, code)

	var resp scanResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Equal(t, 1, resp.Summary.FilesScanned)
	require.Equal(t, 2, resp.Summary.Total)
	require.Equal(t, "hardcoded-secret", resp.Vulnerabilities[0].RuleID)
	require.Equal(t, "CRITICAL", resp.Vulnerabilities[0].Severity)
	require.Empty(t, resp.Errors)
}

func TestScanUsesConfigFile(t *testing.T) {
	dir := contractDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".argus.yml"), []byte(`
severity_threshold: CRITICAL
output_format: json
rule_overrides:
  hardcoded-secret:
    severity: HIGH
`), 0o644))

	stdout, _, code := execute(t, "scan", dir)
	require.Equal(t, 0, code, "the only CRITICAL rule was downgraded")
	var resp scanResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Empty(t, resp.Vulnerabilities)

	stdout, _, code = execute(t, "scan", dir, "--severity", "low")
	require.Equal(t, 2, code, "flags override the document")
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Vulnerabilities, 2)
}

func TestScanExplicitConfig(t *testing.T) {
	dir := contractDir(t)
	cfgPath := filepath.Join(t.TempDir(), "argus.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"output_format": "json", "rule_overrides": {"missing-access-control": {"disabled": true}}}`), 0o644))

	stdout, _, code := execute(t, "scan", dir, "--config", cfgPath)
	require.Equal(t, 3, code)
	var resp scanResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Vulnerabilities, 1)
	require.Equal(t, "hardcoded-secret", resp.Vulnerabilities[0].RuleID)
}

func TestScanTextOutput(t *testing.T) {
	dir := contractDir(t)

	stdout, _, code := execute(t, "scan", dir, "-f", "text", "--no-color")
	require.Equal(t, 3, code)
	require.Contains(t, stdout, "ARGUS SCAN RESULTS")
	require.Contains(t, stdout, "hardcoded-secret")
	require.NotContains(t, stdout, "\033[")
}

func TestScanOutputFile(t *testing.T) {
	dir := contractDir(t)
	out := filepath.Join(t.TempDir(), "argus.sarif")

	stdout, _, code := execute(t, "scan", dir, "--format", "sarif", "-o", out)
	require.Equal(t, 3, code)
	require.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(data), `"version": "2.1.0"`)
	require.Contains(t, string(data), "hardcoded-secret")
}

func TestScanCleanExitsZero(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clear.teal"), []byte("#pragma version 8\nint 1\nreturn\n"), 0o644))

	_, _, code := execute(t, "scan", dir, "--format", "json")
	require.Equal(t, 0, code)
}

func TestScanInvocationErrors(t *testing.T) {
	dir := contractDir(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad severity", []string{"scan", dir, "--severity", "severe"}, "severity_threshold"},
		{"unknown analyzer", []string{"scan", dir, "-a", "mythril"}, "mythril"},
		{"unknown format", []string{"scan", dir, "--format", "pdf"}, "output_format"},
		{"missing target", []string{"scan", filepath.Join(dir, "missing")}, "no target"},
		{"unknown flag", []string{"scan", dir, "--bogus"}, "unknown flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := execute(t, tt.args...)
			require.Equal(t, exitInvocation, code)
			require.Contains(t, stderr, "Error:")
			require.Contains(t, stderr, tt.want)
		})
	}
}

func TestScanHistory(t *testing.T) {
	dir := contractDir(t)
	db := filepath.Join(t.TempDir(), "history.db")

	_, stderr, code := execute(t, "scan", dir, "--format", "json", "--history-db", db)
	require.Equal(t, 3, code)
	require.NotContains(t, stderr, "new vulnerabilities")

	_, stderr, code = execute(t, "scan", dir, "--format", "json", "--history-db", db)
	require.Equal(t, 3, code)
	require.Contains(t, stderr, "0 new vulnerabilities since the previous scan")

	stdout, _, code := execute(t, "history", "--db", db, "--format", "json")
	require.Equal(t, 0, code)
	var scans []struct {
		Target   string `json:"target"`
		Total    int    `json:"total_vulnerabilities"`
		ExitCode int    `json:"exit_code"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &scans))
	require.Len(t, scans, 2)
	require.Equal(t, dir, scans[0].Target)
	require.Equal(t, 2, scans[0].Total)
	require.Equal(t, 3, scans[0].ExitCode)

	stdout, _, code = execute(t, "history", "--db", db, "--no-color")
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "TARGET")
	require.Contains(t, stdout, dir)

	stdout, _, code = execute(t, "history", "prune", "--db", db, "--keep", "1")
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "Deleted 1 scans")
}

func TestHistoryEmpty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	stdout, _, code := execute(t, "history", "--db", db)
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "No scans recorded.")

	_, stderr, code := execute(t, "history", "prune", "--db", db, "--keep", "0")
	require.Equal(t, exitInvocation, code)
	require.Contains(t, stderr, "--keep")
}

func TestAnalyzersCommand(t *testing.T) {
	stdout, _, code := execute(t, "analyzers")
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "NAME")
	require.Contains(t, stdout, "builtin")
	require.Contains(t, stdout, "tealer")

	stdout, _, code = execute(t, "analyzers", "--format", "json")
	require.Equal(t, 0, code)
	var infos []argus.AnalyzerInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &infos))
	names := make([]string, len(infos))
	for i, a := range infos {
		names[i] = a.Name
	}
	require.ElementsMatch(t, argus.AnalyzerNames(), names)
}

func TestVersion(t *testing.T) {
	stdout, _, code := execute(t, "version")
	require.Equal(t, 0, code)
	require.Equal(t, "argus dev (commit: none)\n", stdout)
}

func TestVerboseAndQuietConflict(t *testing.T) {
	_, stderr, code := execute(t, "version", "-v", "-q")
	require.Equal(t, exitInvocation, code)
	require.Contains(t, stderr, "none of the others can be")
}

func TestVersionCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tag_name": "v1.1.0"}`))
	}))
	defer srv.Close()
	orig, origVersion := newChecker, Version
	newChecker = func() *update.Checker { return &update.Checker{BaseURL: srv.URL, Client: srv.Client()} }
	Version = "v1.0.0"
	defer func() { newChecker, Version = orig, origVersion }()

	stdout, _, code := execute(t, "version", "--check")
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "argus v1.0.0")
	require.Contains(t, stdout, "A newer release is available: v1.1.0")
	require.Contains(t, stdout, "cmd/argus@v1.1.0")
}
