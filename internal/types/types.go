// Package types defines shared data structures (Vulnerability, Severity, ScanResult,
// ParsedFile, Fact) used across the scanner, parser, engine and output packages
// to prevent import cycles.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Severity represents the severity level of a vulnerability.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// Severities lists every level from most to least severe.
var Severities = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityInfo,
}

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "CRITICAL"
	case SeverityHigh:
		return "HIGH"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityLow:
		return "LOW"
	case SeverityInfo:
		return "INFO"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity converts a string to a Severity level.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRITICAL":
		return SeverityCritical, nil
	case "HIGH":
		return SeverityHigh, nil
	case "MEDIUM":
		return SeverityMedium, nil
	case "LOW":
		return SeverityLow, nil
	case "INFO", "INFORMATIONAL":
		return SeverityInfo, nil
	default:
		return SeverityInfo, fmt.Errorf("unknown severity: %q", s)
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	sev, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// FileType is the closed set of artifact kinds the scanner understands.
type FileType int

const (
	FileTypeUnknown FileType = iota
	// FileTypeContractASM is TEAL assembly.
	FileTypeContractASM
	// FileTypeEmbeddedDSL is a contract written in Python (PyTeal, Algorand Python, Beaker).
	FileTypeEmbeddedDSL
	// FileTypeScript is SDK integration code in TypeScript or JavaScript.
	FileTypeScript
)

func (t FileType) String() string {
	switch t {
	case FileTypeContractASM:
		return "CONTRACT_ASM"
	case FileTypeEmbeddedDSL:
		return "EMBEDDED_DSL"
	case FileTypeScript:
		return "SCRIPT"
	default:
		return "UNKNOWN"
	}
}

// ParseFileType accepts the canonical names plus the short aliases used on the
// command line (asm, teal, dsl, python, script, ts, js).
func ParseFileType(s string) (FileType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CONTRACT_ASM", "ASM", "TEAL":
		return FileTypeContractASM, nil
	case "EMBEDDED_DSL", "DSL", "PYTHON", "PY", "PYTEAL":
		return FileTypeEmbeddedDSL, nil
	case "SCRIPT", "TS", "JS", "TYPESCRIPT", "JAVASCRIPT":
		return FileTypeScript, nil
	default:
		return FileTypeUnknown, fmt.Errorf("unknown file type: %q", s)
	}
}

func (t FileType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *FileType) UnmarshalText(text []byte) error {
	ft, err := ParseFileType(string(text))
	if err != nil {
		return err
	}
	*t = ft
	return nil
}

// Vulnerability represents a single reported issue.
type Vulnerability struct {
	File          string   `json:"file"`
	Line          int      `json:"line"`
	Column        int      `json:"column,omitempty"`
	Severity      Severity `json:"severity"`
	Tool          string   `json:"tool"`
	RuleID        string   `json:"rule_id"`
	RuleName      string   `json:"rule_name,omitempty"`
	Message       string   `json:"message"`
	Description   string   `json:"description,omitempty"`
	CWE           string   `json:"cwe_id,omitempty"`
	Confidence    string   `json:"confidence,omitempty"`
	CodeSnippet   string   `json:"code_snippet,omitempty"`
	FixSuggestion string   `json:"fix_suggestion,omitempty"`
}

// Key returns the dedup identity of the vulnerability.
func (v Vulnerability) Key() string {
	return fmt.Sprintf("%s:%d:%s:%s", v.File, v.Line, v.RuleID, v.Tool)
}

// ErrorCategory tags a ScanError with its origin.
type ErrorCategory string

const (
	ErrInput    ErrorCategory = "input"
	ErrAnalyzer ErrorCategory = "analyzer"
	ErrTimeout  ErrorCategory = "timeout"
	ErrSkipped  ErrorCategory = "skipped"
)

// ScanError is a non-fatal problem encountered while scanning. It is always
// surfaced in the result, never dropped.
type ScanError struct {
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`
	File     string        `json:"file,omitempty"`
	Analyzer string        `json:"analyzer,omitempty"`
}

func (e ScanError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Category))
	if e.Analyzer != "" {
		b.WriteString(" [")
		b.WriteString(e.Analyzer)
		b.WriteString("]")
	}
	if e.File != "" {
		b.WriteString(" ")
		b.WriteString(e.File)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// ScanSummary holds the counters reported alongside the vulnerability list.
type ScanSummary struct {
	FilesScanned         int           `json:"files_scanned"`
	TotalVulnerabilities int           `json:"total_vulnerabilities"`
	Critical             int           `json:"critical"`
	High                 int           `json:"high"`
	Medium               int           `json:"medium"`
	Low                  int           `json:"low"`
	Info                 int           `json:"-"`
	Duration             time.Duration `json:"-"`
	ToolsUsed            []string      `json:"tools_used"`
}

// MarshalJSON serializes Duration as fractional seconds under scan_duration.
func (s ScanSummary) MarshalJSON() ([]byte, error) {
	type Alias ScanSummary
	tools := s.ToolsUsed
	if tools == nil {
		tools = []string{}
	}
	a := Alias(s)
	a.ToolsUsed = tools
	return json.Marshal(struct {
		Alias
		ScanDuration float64 `json:"scan_duration"`
	}{
		Alias:        a,
		ScanDuration: s.Duration.Seconds(),
	})
}

// Count returns the number of vulnerabilities at exactly sev.
func (s ScanSummary) Count(sev Severity) int {
	switch sev {
	case SeverityCritical:
		return s.Critical
	case SeverityHigh:
		return s.High
	case SeverityMedium:
		return s.Medium
	case SeverityLow:
		return s.Low
	default:
		return s.Info
	}
}

// ScanResult holds the complete results of a scan.
type ScanResult struct {
	Summary         ScanSummary     `json:"summary"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	Errors          []ScanError     `json:"-"`
	Target          string          `json:"-"`
}

// MarshalJSON renders errors as plain strings and never emits null lists.
func (r ScanResult) MarshalJSON() ([]byte, error) {
	vulns := r.Vulnerabilities
	if vulns == nil {
		vulns = []Vulnerability{}
	}
	errs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e.Error()
	}
	return json.Marshal(struct {
		Summary         ScanSummary     `json:"summary"`
		Vulnerabilities []Vulnerability `json:"vulnerabilities"`
		Errors          []string        `json:"errors"`
	}{
		Summary:         r.Summary,
		Vulnerabilities: vulns,
		Errors:          errs,
	})
}

// HighestSeverity returns the most severe level present and whether any
// vulnerability was reported at all.
func (r *ScanResult) HighestSeverity() (Severity, bool) {
	if len(r.Vulnerabilities) == 0 {
		return SeverityInfo, false
	}
	highest := SeverityInfo
	for _, v := range r.Vulnerabilities {
		if v.Severity > highest {
			highest = v.Severity
		}
	}
	return highest, true
}

// ExitCode maps the surfaced vulnerabilities to the CI exit code:
// 3 when CRITICAL is present, 2 for HIGH, 1 for MEDIUM, 0 otherwise.
func (r *ScanResult) ExitCode() int {
	sev, ok := r.HighestSeverity()
	if !ok {
		return 0
	}
	switch sev {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}
