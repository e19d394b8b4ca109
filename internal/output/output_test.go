package output_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cagmero/ARGUS/internal/output"
	"github.com/cagmero/ARGUS/internal/types"
)

func sampleResult() *types.ScanResult {
	return &types.ScanResult{
		Target: "contracts",
		Summary: types.ScanSummary{
			FilesScanned:         2,
			TotalVulnerabilities: 3,
			Critical:             1,
			High:                 1,
			Medium:               1,
			Duration:             1500 * time.Millisecond,
			ToolsUsed:            []string{"builtin", "tealer"},
		},
		Vulnerabilities: []types.Vulnerability{
			{
				File: "contracts/approval.teal", Line: 12, Severity: types.SeverityCritical,
				Tool: "builtin", RuleID: "missing-rekey-check", RuleName: "Missing RekeyTo check",
				Message:       "transaction approved without checking RekeyTo",
				Description:   "The program approves without asserting RekeyTo is the zero address.",
				CWE:           "CWE-284",
				CodeSnippet:   "int 1",
				FixSuggestion: "assert txn RekeyTo == global ZeroAddress",
			},
			{
				File: "contracts/approval.teal", Line: 14, Column: 3, Severity: types.SeverityHigh,
				Tool: "tealer", RuleID: "is-updatable",
				Message:    "application can be updated by anyone",
				Confidence: "HIGH",
			},
			{
				File: "scripts/deploy.ts", Line: 7, Severity: types.SeverityMedium,
				Tool: "builtin", RuleID: "hardcoded-secret",
				Message: `mnemonic | "<redacted>" assigned inline`,
			},
		},
		Errors: []types.ScanError{
			{Category: types.ErrTimeout, Analyzer: "tealer", File: "contracts/clear.teal", Message: "exceeded 5s deadline"},
			{Category: types.ErrInput, File: "contracts/blob.teal", Message: "not valid UTF-8"},
		},
	}
}

func TestNew(t *testing.T) {
	for _, name := range output.Formats() {
		f, err := output.New(name, output.Options{})
		require.NoError(t, err, name)
		require.NotNil(t, f)
		require.True(t, output.Known(name))
	}
	f, err := output.New("STRUCTURED", output.Options{})
	require.NoError(t, err)
	require.IsType(t, &output.JSONFormatter{}, f)

	_, err = output.New("pdf", output.Options{})
	require.True(t, errors.Is(err, output.ErrUnknownFormat))
	require.False(t, output.Known("pdf"))
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&output.JSONFormatter{}).Format(&buf, sampleResult()))

	var doc struct {
		Summary struct {
			FilesScanned         int      `json:"files_scanned"`
			TotalVulnerabilities int      `json:"total_vulnerabilities"`
			Critical             int      `json:"critical"`
			ScanDuration         float64  `json:"scan_duration"`
			ToolsUsed            []string `json:"tools_used"`
		} `json:"summary"`
		Vulnerabilities []map[string]any `json:"vulnerabilities"`
		Errors          []string         `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Equal(t, 2, doc.Summary.FilesScanned)
	require.Equal(t, 3, doc.Summary.TotalVulnerabilities)
	require.Equal(t, 1, doc.Summary.Critical)
	require.InDelta(t, 1.5, doc.Summary.ScanDuration, 0.001)
	require.Equal(t, []string{"builtin", "tealer"}, doc.Summary.ToolsUsed)
	require.Len(t, doc.Vulnerabilities, 3)
	require.Equal(t, "CRITICAL", doc.Vulnerabilities[0]["severity"])
	require.Equal(t, "CWE-284", doc.Vulnerabilities[0]["cwe_id"])
	require.NotContains(t, doc.Vulnerabilities[0], "column")
	require.EqualValues(t, 3, doc.Vulnerabilities[1]["column"])
	require.Len(t, doc.Errors, 2)
	require.Contains(t, doc.Errors[0], "timeout [tealer] contracts/clear.teal")
}

func TestJSONFormatterEmptyLists(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&output.JSONFormatter{}).Format(&buf, &types.ScanResult{}))
	out := buf.String()
	require.Contains(t, out, `"vulnerabilities": []`)
	require.Contains(t, out, `"errors": []`)
	require.Contains(t, out, `"tools_used": []`)
}

func TestTerminalFormatterNoFindings(t *testing.T) {
	var buf bytes.Buffer
	result := &types.ScanResult{Target: "contracts", Summary: types.ScanSummary{FilesScanned: 5}}
	require.NoError(t, (&output.TerminalFormatter{NoColor: true}).Format(&buf, result))

	out := buf.String()
	require.Contains(t, out, "ARGUS SCAN RESULTS")
	require.Contains(t, out, "No vulnerabilities found")
	require.Contains(t, out, "Target: contracts")
	require.Contains(t, out, "5 files scanned")
	require.Contains(t, out, "0 vulnerabilities")
	require.NotContains(t, out, "\033[")
}

func TestTerminalFormatterWithFindings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&output.TerminalFormatter{NoColor: true}).Format(&buf, sampleResult()))

	out := buf.String()
	require.Contains(t, out, "CRITICAL (1)")
	require.Contains(t, out, "HIGH (1)")
	require.Contains(t, out, "MEDIUM (1)")
	require.Contains(t, out, "missing-rekey-check")
	require.Contains(t, out, "contracts/approval.teal")
	require.Contains(t, out, "L14:3")
	require.Contains(t, out, "[tealer]")
	require.Contains(t, out, "int 1", "snippets are shown for HIGH and above")
	require.NotContains(t, out, "Fix:", "fix suggestions need verbose")
	require.Contains(t, out, "HOTSPOTS")
	require.Contains(t, out, "contracts/approval.teal:12-14")
	require.Contains(t, out, "ERRORS (2)")
	require.Contains(t, out, "exceeded 5s deadline")
	require.Contains(t, out, "Analyzers: builtin, tealer")
	require.Contains(t, out, "1.50s")

	require.Less(t, strings.Index(out, "CRITICAL (1)"), strings.Index(out, "HIGH (1)"))
	require.Less(t, strings.Index(out, "HIGH (1)"), strings.Index(out, "MEDIUM (1)"))
}

func TestTerminalFormatterVerbose(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&output.TerminalFormatter{NoColor: true, Verbose: true}).Format(&buf, sampleResult()))
	out := buf.String()
	require.Contains(t, out, "Fix: assert txn RekeyTo == global ZeroAddress")
	require.Contains(t, out, "CWE-284")
}

func TestTerminalFormatterColor(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	var buf bytes.Buffer
	require.NoError(t, (&output.TerminalFormatter{}).Format(&buf, sampleResult()))
	require.Contains(t, buf.String(), "\033[")
}

func TestTerminalFormatterNoColorEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	require.NoError(t, (&output.TerminalFormatter{}).Format(&buf, sampleResult()))
	require.NotContains(t, buf.String(), "\033[")
}

type sarifDoc struct {
	Version string `json:"version"`
	Runs    []struct {
		Tool struct {
			Driver struct {
				Name  string `json:"name"`
				Rules []struct {
					ID               string                 `json:"id"`
					ShortDescription struct{ Text string }  `json:"shortDescription"`
					FullDescription  *struct{ Text string } `json:"fullDescription"`
					Help             *struct{ Text string } `json:"help"`
					Properties struct {
						Tags             []string `json:"tags"`
						Precision        string   `json:"precision"`
						SecuritySeverity string   `json:"security-severity"`
					} `json:"properties"`
				} `json:"rules"`
			} `json:"driver"`
		} `json:"tool"`
		BaseIDs map[string]struct {
			URI string `json:"uri"`
		} `json:"originalUriBaseIds"`
		Results []struct {
			RuleID    string `json:"ruleId"`
			Level     string `json:"level"`
			Locations []struct {
				PhysicalLocation struct {
					ArtifactLocation struct {
						URI       string `json:"uri"`
						URIBaseID string `json:"uriBaseId"`
					} `json:"artifactLocation"`
					Region struct {
						StartLine   int `json:"startLine"`
						StartColumn int `json:"startColumn"`
					} `json:"region"`
				} `json:"physicalLocation"`
			} `json:"locations"`
		} `json:"results"`
		Invocations []struct {
			ExecutionSuccessful bool `json:"executionSuccessful"`
			Notifications       []struct {
				Level   string `json:"level"`
				Message struct {
					Text string `json:"text"`
				} `json:"message"`
			} `json:"toolExecutionNotifications"`
		} `json:"invocations"`
	} `json:"runs"`
}

func TestSARIFFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&output.SARIFFormatter{}).Format(&buf, sampleResult()))

	var doc sarifDoc
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Equal(t, "2.1.0", doc.Version)
	require.Len(t, doc.Runs, 2, "one run per analyzer")

	builtin, tealer := doc.Runs[0], doc.Runs[1]
	require.Equal(t, "argus", builtin.Tool.Driver.Name)
	require.Equal(t, "tealer", tealer.Tool.Driver.Name)

	require.Len(t, builtin.Results, 2)
	require.Equal(t, "missing-rekey-check", builtin.Results[0].RuleID)
	require.Equal(t, "error", builtin.Results[0].Level)
	require.Equal(t, "warning", builtin.Results[1].Level)
	require.Equal(t, 12, builtin.Results[0].Locations[0].PhysicalLocation.Region.StartLine)
	require.Equal(t, "contracts/approval.teal", builtin.Results[0].Locations[0].PhysicalLocation.ArtifactLocation.URI)

	require.Equal(t, "%SRCROOT%", builtin.Results[0].Locations[0].PhysicalLocation.ArtifactLocation.URIBaseID)

	rule := builtin.Tool.Driver.Rules[0]
	require.Equal(t, "Missing RekeyTo check", rule.ShortDescription.Text)
	require.NotNil(t, rule.FullDescription)
	require.Equal(t, "The program approves without asserting RekeyTo is the zero address.", rule.FullDescription.Text)
	require.Contains(t, rule.Properties.Tags, "external/cwe/cwe-284")
	require.Equal(t, "9.5", rule.Properties.SecuritySeverity)
	require.NotNil(t, rule.Help)
	require.Equal(t, "assert txn RekeyTo == global ZeroAddress", rule.Help.Text)

	require.Len(t, tealer.Results, 1)
	require.Equal(t, 3, tealer.Results[0].Locations[0].PhysicalLocation.Region.StartColumn)
	require.Equal(t, "high", tealer.Tool.Driver.Rules[0].Properties.Precision)
	require.Equal(t, "is-updatable", tealer.Tool.Driver.Rules[0].ShortDescription.Text, "no catalog name falls back to the id")

	// the input error has no analyzer and lands on the first run
	require.False(t, builtin.Invocations[0].ExecutionSuccessful)
	require.Len(t, builtin.Invocations[0].Notifications, 1)
	require.Contains(t, builtin.Invocations[0].Notifications[0].Message.Text, "not valid UTF-8")
	require.False(t, tealer.Invocations[0].ExecutionSuccessful)
	require.Contains(t, tealer.Invocations[0].Notifications[0].Message.Text, "exceeded 5s deadline")
}

func TestSARIFFormatterRelativeURIs(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	result := &types.ScanResult{
		Summary: types.ScanSummary{ToolsUsed: []string{"builtin"}},
		Vulnerabilities: []types.Vulnerability{
			{File: filepath.Join(root, "contracts", "vault.teal"), Line: 3, Severity: types.SeverityHigh, Tool: "builtin", RuleID: "a", Message: "first"},
			{File: filepath.Join(root, "contracts", "vault.teal"), Line: 9, Severity: types.SeverityHigh, Tool: "builtin", RuleID: "a", Message: "second"},
			{File: filepath.Join(outside, "lib.teal"), Line: 1, Severity: types.SeverityLow, Tool: "builtin", RuleID: "b", Message: "third"},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, (&output.SARIFFormatter{BaseDir: root}).Format(&buf, result))

	var doc sarifDoc
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	run := doc.Runs[0]
	require.True(t, strings.HasPrefix(run.BaseIDs["%SRCROOT%"].URI, "file:///"))
	require.True(t, strings.HasSuffix(run.BaseIDs["%SRCROOT%"].URI, "/"))

	in := run.Results[0].Locations[0].PhysicalLocation.ArtifactLocation
	require.Equal(t, "contracts/vault.teal", in.URI)
	require.Equal(t, "%SRCROOT%", in.URIBaseID)

	out := run.Results[2].Locations[0].PhysicalLocation.ArtifactLocation
	require.True(t, strings.HasPrefix(out.URI, "file:///"), out.URI)
	require.True(t, strings.HasSuffix(out.URI, "/lib.teal"), out.URI)
	require.Empty(t, out.URIBaseID)

	// rule text never comes from a result message
	require.Len(t, run.Tool.Driver.Rules, 2)
	require.Equal(t, "a", run.Tool.Driver.Rules[0].ShortDescription.Text)
}

func TestSARIFFormatterEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&output.SARIFFormatter{}).Format(&buf, &types.ScanResult{}))

	var doc sarifDoc
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Runs, 1)
	require.Equal(t, "argus", doc.Runs[0].Tool.Driver.Name)
	require.Empty(t, doc.Runs[0].Results)
	require.True(t, doc.Runs[0].Invocations[0].ExecutionSuccessful)
	require.Contains(t, buf.String(), `"results": []`)
}

func TestMarkdownFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&output.MarkdownFormatter{}).Format(&buf, sampleResult()))

	out := buf.String()
	require.Contains(t, out, "Argus scan: 3 vulnerabilities")
	require.Contains(t, out, "**1 CRITICAL**")
	require.Contains(t, out, "<details open>")
	require.Contains(t, out, "| `missing-rekey-check` |")
	require.Contains(t, out, "`contracts/approval.teal`")
	require.Contains(t, out, "(CWE-284)")
	require.Contains(t, out, `mnemonic \| "&lt;redacted&gt;" assigned inline`)
	require.Contains(t, out, "**Hotspots:**")
	require.Contains(t, out, "**Top affected files:**")
	require.Contains(t, out, "Errors (2)")
}

func TestMarkdownFormatterClean(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&output.MarkdownFormatter{}).Format(&buf, &types.ScanResult{Summary: types.ScanSummary{FilesScanned: 4}}))
	out := buf.String()
	require.Contains(t, out, "no vulnerabilities found")
	require.Contains(t, out, "4 files")
	require.NotContains(t, out, "<details")
}

func TestHTMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&output.HTMLFormatter{}).Format(&buf, sampleResult()))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	require.Contains(t, out, "<title>Argus scan report: contracts</title>")
	require.Contains(t, out, "<table>")
	require.Contains(t, out, "<code>missing-rekey-check</code>")
	require.Contains(t, out, "<details open>")
	require.NotContains(t, out, "<redacted>", "finding text is escaped")
	require.True(t, strings.HasSuffix(out, "</html>\n"))
}
