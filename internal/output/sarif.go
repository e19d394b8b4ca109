package output

import (
	"encoding/json"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cagmero/ARGUS/internal/types"
)

const (
	sarifSchema  = "https://docs.oasis-open.org/sarif/sarif/v2.1.0/sarif-schema-2.1.0.json"
	sarifVersion = "2.1.0"
	argusURI     = "https://github.com/cagmero/ARGUS"
	srcRoot      = "%SRCROOT%"
)

// SARIFFormatter writes SARIF 2.1.0 with one run per analyzer, for code
// scanning dashboards. Artifact URIs are relative to BaseDir, or to the
// working directory when BaseDir is empty.
type SARIFFormatter struct {
	BaseDir string
}

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool        sarifTool                        `json:"tool"`
	BaseIDs     map[string]sarifArtifactLocation `json:"originalUriBaseIds,omitempty"`
	Results     []sarifResult                    `json:"results"`
	Invocations []sarifInvocation                `json:"invocations"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version,omitempty"`
	InformationURI string      `json:"informationUri,omitempty"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string              `json:"id"`
	ShortDescription sarifMessage        `json:"shortDescription"`
	FullDescription  *sarifMessage       `json:"fullDescription,omitempty"`
	Help             *sarifMessage       `json:"help,omitempty"`
	DefaultConfig    sarifDefaultConfig  `json:"defaultConfiguration"`
	Properties       sarifRuleProperties `json:"properties"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifRuleProperties struct {
	Tags             []string `json:"tags,omitempty"`
	Precision        string   `json:"precision,omitempty"`
	SecuritySeverity string   `json:"security-severity"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	RuleIndex int             `json:"ruleIndex"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI       string `json:"uri"`
	URIBaseID string `json:"uriBaseId,omitempty"`
}

type sarifRegion struct {
	StartLine   int           `json:"startLine"`
	StartColumn int           `json:"startColumn,omitempty"`
	Snippet     *sarifMessage `json:"snippet,omitempty"`
}

type sarifInvocation struct {
	ExecutionSuccessful bool                `json:"executionSuccessful"`
	Notifications       []sarifNotification `json:"toolExecutionNotifications,omitempty"`
}

type sarifNotification struct {
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

func (f *SARIFFormatter) Format(w io.Writer, result *types.ScanResult) error {
	tools := result.Summary.ToolsUsed
	if len(tools) == 0 {
		tools = []string{"argus"}
	}

	base, err := f.baseDir()
	if err != nil {
		return err
	}

	runs := make([]sarifRun, len(tools))
	index := make(map[string]int, len(tools))
	for i, tool := range tools {
		index[tool] = i
		runs[i] = sarifRun{
			Tool:    sarifTool{Driver: driverFor(tool)},
			BaseIDs: map[string]sarifArtifactLocation{srcRoot: {URI: strings.TrimSuffix(fileURI(base), "/") + "/"}},
			Results: []sarifResult{},
		}
	}

	ruleIndex := make([]map[string]int, len(runs))
	for i := range ruleIndex {
		ruleIndex[i] = map[string]int{}
	}
	for _, v := range result.Vulnerabilities {
		ri, ok := index[v.Tool]
		if !ok {
			ri = 0
		}
		run := &runs[ri]
		idx, seen := ruleIndex[ri][v.RuleID]
		if !seen {
			idx = len(run.Tool.Driver.Rules)
			ruleIndex[ri][v.RuleID] = idx
			run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, ruleFor(v))
		}
		run.Results = append(run.Results, sarifResult{
			RuleID:    v.RuleID,
			RuleIndex: idx,
			Level:     severityToLevel(v.Severity),
			Message:   sarifMessage{Text: v.Message},
			Locations: []sarifLocation{locationFor(base, v.File, v.Line, v.Column, v.CodeSnippet)},
		})
	}

	notes := make([][]sarifNotification, len(runs))
	for _, e := range result.Errors {
		ri, ok := index[e.Analyzer]
		if !ok {
			ri = 0
		}
		n := sarifNotification{Level: "error", Message: sarifMessage{Text: e.Error()}}
		if e.Category == types.ErrSkipped {
			n.Level = "warning"
		}
		if e.File != "" {
			n.Locations = []sarifLocation{locationFor(base, e.File, 0, 0, "")}
		}
		notes[ri] = append(notes[ri], n)
	}
	for i := range runs {
		if runs[i].Tool.Driver.Rules == nil {
			runs[i].Tool.Driver.Rules = []sarifRule{}
		}
		runs[i].Invocations = []sarifInvocation{{
			ExecutionSuccessful: len(notes[i]) == 0,
			Notifications:       notes[i],
		}}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sarifLog{Schema: sarifSchema, Version: sarifVersion, Runs: runs})
}

func (f *SARIFFormatter) baseDir() (string, error) {
	if f.BaseDir == "" {
		return os.Getwd()
	}
	return filepath.Abs(f.BaseDir)
}

func driverFor(tool string) sarifDriver {
	d := sarifDriver{Name: tool}
	switch tool {
	case "builtin", "argus":
		d.Name = "argus"
		d.Version = ToolVersion
		d.InformationURI = argusURI
	case "tealer":
		d.InformationURI = "https://github.com/crytic/tealer"
	}
	return d
}

func ruleFor(v types.Vulnerability) sarifRule {
	r := sarifRule{
		ID:               v.RuleID,
		ShortDescription: sarifMessage{Text: v.RuleName},
		DefaultConfig:    sarifDefaultConfig{Level: severityToLevel(v.Severity)},
		Properties: sarifRuleProperties{
			Tags:             []string{"security"},
			Precision:        precisionOf(v.Confidence),
			SecuritySeverity: securitySeverity(v.Severity),
		},
	}
	if r.ShortDescription.Text == "" {
		r.ShortDescription.Text = v.RuleID
	}
	if v.CWE != "" {
		r.Properties.Tags = append(r.Properties.Tags, "external/cwe/"+strings.ToLower(v.CWE))
	}
	if v.Description != "" {
		r.FullDescription = &sarifMessage{Text: v.Description}
	}
	if v.FixSuggestion != "" {
		r.Help = &sarifMessage{Text: v.FixSuggestion}
	}
	return r
}

func locationFor(base, file string, line, col int, snippet string) sarifLocation {
	loc := sarifLocation{PhysicalLocation: sarifPhysicalLocation{
		ArtifactLocation: artifactFor(base, file),
	}}
	if line > 0 {
		reg := &sarifRegion{StartLine: line, StartColumn: col}
		if snippet != "" {
			reg.Snippet = &sarifMessage{Text: snippet}
		}
		loc.PhysicalLocation.Region = reg
	}
	return loc
}

// artifactFor names file relative to base under %SRCROOT%. Relative files
// are taken from the working directory; files outside base keep an absolute
// file URI.
func artifactFor(base, file string) sarifArtifactLocation {
	abs, err := filepath.Abs(file)
	if err != nil {
		return sarifArtifactLocation{URI: filepath.ToSlash(file)}
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return sarifArtifactLocation{URI: fileURI(abs)}
	}
	u := url.URL{Path: filepath.ToSlash(rel)}
	return sarifArtifactLocation{URI: u.String(), URIBaseID: srcRoot}
}

func fileURI(p string) string {
	p = filepath.ToSlash(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p}
	return u.String()
}

func severityToLevel(sev types.Severity) string {
	switch sev {
	case types.SeverityCritical, types.SeverityHigh:
		return "error"
	case types.SeverityMedium:
		return "warning"
	case types.SeverityLow:
		return "note"
	default:
		return "none"
	}
}

// securitySeverity maps to the CVSS-style score code scanning ranks by.
func securitySeverity(sev types.Severity) string {
	switch sev {
	case types.SeverityCritical:
		return "9.5"
	case types.SeverityHigh:
		return "8.0"
	case types.SeverityMedium:
		return "5.5"
	case types.SeverityLow:
		return "3.0"
	default:
		return "0.0"
	}
}

func precisionOf(confidence string) string {
	switch strings.ToUpper(confidence) {
	case "HIGH":
		return "high"
	case "MEDIUM":
		return "medium"
	case "LOW":
		return "low"
	}
	return ""
}
