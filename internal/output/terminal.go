package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/cagmero/ARGUS/internal/meta"
	"github.com/cagmero/ARGUS/internal/types"
)

// ANSI color codes
const (
	reset     = "\033[0m"
	bold      = "\033[1m"
	dim       = "\033[2m"
	underline = "\033[4m"
	red       = "\033[31m"
	yellow    = "\033[33m"
	blue      = "\033[34m"
	magenta   = "\033[35m"
	cyan      = "\033[36m"
)

const (
	barWidth     = 40
	lineWidth    = 72
	ruleIDWidth  = 30
	messageWidth = 56
	previewWidth = 64
	maxHotspots  = 5
)

// TerminalFormatter renders a report grouped by severity and file.
type TerminalFormatter struct {
	NoColor bool
	Verbose bool
}

type terminalWriter struct {
	w       io.Writer
	noColor bool
	verbose bool
}

func (f *TerminalFormatter) Format(w io.Writer, result *types.ScanResult) error {
	t := &terminalWriter{
		w:       w,
		noColor: f.NoColor || os.Getenv("NO_COLOR") != "",
		verbose: f.Verbose,
	}

	t.header(result)
	if len(result.Vulnerabilities) == 0 {
		fmt.Fprintf(w, "\n  %s No vulnerabilities found.\n", t.color(cyan, "✔"))
	} else {
		t.dashboard(result.Summary)
		for _, sev := range types.Severities {
			if vulns := filterBySeverity(result.Vulnerabilities, sev); len(vulns) > 0 {
				t.severitySection(sev, vulns)
			}
		}
		t.hotspots(meta.Correlate(result.Vulnerabilities))
		t.topFiles(result.Vulnerabilities)
	}
	t.scanErrors(result.Errors)
	t.footer(result)
	return nil
}

func (t *terminalWriter) color(code, text string) string {
	if t.noColor {
		return text
	}
	return code + text + reset
}

func (t *terminalWriter) separator() string {
	return strings.Repeat("─", lineWidth)
}

func (t *terminalWriter) sectionHeader(title string) string {
	prefix := "── " + title + " "
	remaining := max(lineWidth-utf8.RuneCountInString(prefix), 0)
	return t.color(bold, prefix+strings.Repeat("─", remaining))
}

func (t *terminalWriter) header(result *types.ScanResult) {
	sep := t.separator()
	fmt.Fprintf(t.w, "\n%s\n", t.color(dim, sep))
	fmt.Fprintf(t.w, "  %s\n", t.color(bold, "ARGUS SCAN RESULTS"))

	var parts []string
	if result.Target != "" {
		parts = append(parts, "Target: "+result.Target)
	}
	parts = append(parts, fmt.Sprintf("%d files", result.Summary.FilesScanned))
	if len(result.Summary.ToolsUsed) > 0 {
		parts = append(parts, "Analyzers: "+strings.Join(result.Summary.ToolsUsed, ", "))
	}
	if result.Summary.Duration > 0 {
		parts = append(parts, fmt.Sprintf("%.2fs", result.Summary.Duration.Seconds()))
	}
	fmt.Fprintf(t.w, "  %s\n", strings.Join(parts, "  ·  "))
	fmt.Fprintf(t.w, "%s\n", t.color(dim, sep))
}

func (t *terminalWriter) dashboard(s types.ScanSummary) {
	peak := 0
	for _, sev := range types.Severities {
		peak = max(peak, s.Count(sev))
	}
	if peak == 0 {
		return
	}

	fmt.Fprintln(t.w)
	for _, sev := range types.Severities {
		c := s.Count(sev)
		if c == 0 {
			continue
		}
		label := fmt.Sprintf("  %-10s", sev.String())
		fmt.Fprintf(t.w, "%s %s %4d\n", t.color(bold, label), t.bar(c, peak, sev), c)
	}
	fmt.Fprintf(t.w, "\n  %s\n", t.color(bold, fmt.Sprintf("%d vulnerabilities", s.TotalVulnerabilities)))
}

func (t *terminalWriter) bar(count, peak int, sev types.Severity) string {
	filled := count * barWidth / peak
	if filled == 0 {
		filled = 1
	}
	// one empty block keeps the bar boundary visible
	filled = min(filled, barWidth-1)
	return t.color(severityColor(sev), strings.Repeat("█", filled)) +
		t.color(dim, strings.Repeat("░", barWidth-filled))
}

func (t *terminalWriter) severitySection(sev types.Severity, vulns []types.Vulnerability) {
	fmt.Fprintf(t.w, "\n%s\n", t.sectionHeader(fmt.Sprintf("%s (%d)", sev, len(vulns))))
	for _, group := range groupByFile(vulns) {
		fmt.Fprintf(t.w, "\n  %s\n", t.color(bold+underline, group.file))
		for _, v := range group.vulns {
			t.vulnerability(v, sev >= types.SeverityHigh)
		}
	}
}

func (t *terminalWriter) vulnerability(v types.Vulnerability, expanded bool) {
	loc := fmt.Sprintf("L%d", v.Line)
	if v.Column > 0 {
		loc += fmt.Sprintf(":%d", v.Column)
	}
	fmt.Fprintf(t.w, "    %s %s %-*s %s %s\n",
		t.icon(v.Severity),
		t.color(bold, fmt.Sprintf("%-*s", ruleIDWidth, truncate(v.RuleID, ruleIDWidth))),
		messageWidth, truncate(v.Message, messageWidth),
		t.color(cyan, loc),
		t.color(dim, "["+v.Tool+"]"),
	)

	gutter := t.color(dim, "│")
	if expanded && v.CodeSnippet != "" {
		fmt.Fprintf(t.w, "      %s %s\n", gutter, t.color(dim, truncate(v.CodeSnippet, previewWidth)))
	}
	if !t.verbose {
		return
	}
	if v.CWE != "" {
		fmt.Fprintf(t.w, "      %s %s\n", gutter, t.color(magenta, v.CWE))
	}
	if v.FixSuggestion != "" {
		fmt.Fprintf(t.w, "      %s %s\n", gutter, t.color(yellow, "Fix: "+v.FixSuggestion))
	}
}

func (t *terminalWriter) hotspots(spots []meta.Hotspot) {
	if len(spots) == 0 {
		return
	}
	fmt.Fprintf(t.w, "\n%s\n\n", t.sectionHeader("HOTSPOTS"))
	for _, h := range spots[:min(len(spots), maxHotspots)] {
		fmt.Fprintf(t.w, "  %s %s  %d findings  (max %s)\n",
			t.icon(h.Max),
			t.color(cyan, fmt.Sprintf("%s:%d-%d", h.File, h.StartLine, h.EndLine)),
			len(h.Findings), h.Max)
	}
}

func (t *terminalWriter) topFiles(vulns []types.Vulnerability) {
	top := topFiles(vulns, 5)
	if len(top) == 0 {
		return
	}
	fmt.Fprintf(t.w, "\n%s\n\n", t.sectionHeader("TOP AFFECTED FILES"))
	for _, fc := range top {
		fmt.Fprintf(t.w, "  %4d  %s\n", fc.count, fc.file)
	}
}

func (t *terminalWriter) scanErrors(errs []types.ScanError) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintf(t.w, "\n%s\n\n", t.sectionHeader(fmt.Sprintf("ERRORS (%d)", len(errs))))
	for _, e := range errs {
		fmt.Fprintf(t.w, "  %s %s\n", t.color(red, "!"), e.Error())
	}
}

func (t *terminalWriter) footer(result *types.ScanResult) {
	sep := t.separator()
	fmt.Fprintf(t.w, "\n%s\n", t.color(dim, sep))
	parts := []string{
		fmt.Sprintf("%d files scanned", result.Summary.FilesScanned),
		fmt.Sprintf("%d vulnerabilities", result.Summary.TotalVulnerabilities),
	}
	if len(result.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("%d errors", len(result.Errors)))
	}
	if result.Summary.Duration > 0 {
		parts = append(parts, fmt.Sprintf("%.2fs", result.Summary.Duration.Seconds()))
	}
	fmt.Fprintf(t.w, "  %s\n", strings.Join(parts, " · "))
	fmt.Fprintf(t.w, "%s\n", t.color(dim, sep))
}

func (t *terminalWriter) icon(sev types.Severity) string {
	switch sev {
	case types.SeverityCritical:
		return t.color(red+bold, "✖")
	case types.SeverityHigh:
		return t.color(red, "▲")
	case types.SeverityMedium:
		return t.color(yellow, "■")
	case types.SeverityLow:
		return t.color(blue, "●")
	default:
		return t.color(cyan, "○")
	}
}

func severityColor(sev types.Severity) string {
	switch sev {
	case types.SeverityCritical:
		return red + bold
	case types.SeverityHigh:
		return red
	case types.SeverityMedium:
		return yellow
	case types.SeverityLow:
		return blue
	default:
		return cyan
	}
}
