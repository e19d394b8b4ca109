package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/cagmero/ARGUS/internal/meta"
	"github.com/cagmero/ARGUS/internal/types"
)

// MarkdownFormatter writes a GitHub-flavored report for job summaries and
// pull request comments.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) Format(w io.Writer, result *types.ScanResult) error {
	s := result.Summary
	if len(result.Vulnerabilities) == 0 {
		fmt.Fprintf(w, "### :white_check_mark: Argus scan: no vulnerabilities found\n\n")
	} else {
		fmt.Fprintf(w, "### :rotating_light: Argus scan: %d vulnerabilities\n\n", s.TotalVulnerabilities)
	}

	stats := fmt.Sprintf("%d files · %.2fs", s.FilesScanned, s.Duration.Seconds())
	if result.Target != "" {
		stats = fmt.Sprintf("**Target:** %s · ", code(result.Target)) + stats
	}
	if len(s.ToolsUsed) > 0 {
		stats += " · analyzers: " + strings.Join(s.ToolsUsed, ", ")
	}
	fmt.Fprintf(w, "> %s\n\n", stats)

	if len(result.Vulnerabilities) > 0 {
		var badges []string
		for _, sev := range types.Severities {
			if c := s.Count(sev); c > 0 {
				badges = append(badges, fmt.Sprintf("%s **%d %s**", severityEmoji(sev), c, sev))
			}
		}
		fmt.Fprintf(w, "%s\n\n", strings.Join(badges, " · "))

		for _, sev := range types.Severities {
			if vulns := filterBySeverity(result.Vulnerabilities, sev); len(vulns) > 0 {
				markdownSection(w, sev, vulns)
			}
		}
		markdownHotspots(w, meta.Correlate(result.Vulnerabilities))
		markdownTopFiles(w, result.Vulnerabilities)
	}
	markdownErrors(w, result.Errors)

	fmt.Fprintf(w, "---\n*Scanned by [Argus](%s) %s*\n", argusURI, ToolVersion)
	return nil
}

func markdownSection(w io.Writer, sev types.Severity, vulns []types.Vulnerability) {
	open := ""
	if sev >= types.SeverityHigh {
		open = " open"
	}
	fmt.Fprintf(w, "<details%s>\n", open)
	fmt.Fprintf(w, "<summary>%s <strong>%s (%d)</strong></summary>\n\n", severityEmoji(sev), sev, len(vulns))
	fmt.Fprintf(w, "| Rule | Message | File | Line | Analyzer |\n")
	fmt.Fprintf(w, "|------|---------|------|------|----------|\n")
	for _, group := range groupByFile(vulns) {
		for _, v := range group.vulns {
			msg := escapeMarkdown(truncate(v.Message, 120))
			if v.CWE != "" {
				msg += " (" + escapeMarkdown(v.CWE) + ")"
			}
			if v.CodeSnippet != "" {
				msg += "<br>" + code(truncate(v.CodeSnippet, 60))
			}
			fmt.Fprintf(w, "| %s | %s | %s | L%d | %s |\n",
				code(v.RuleID), msg, code(v.File), v.Line, escapeMarkdown(v.Tool))
		}
	}
	fmt.Fprintf(w, "\n</details>\n\n")
}

func markdownHotspots(w io.Writer, spots []meta.Hotspot) {
	if len(spots) == 0 {
		return
	}
	fmt.Fprintf(w, "**Hotspots:**\n\n")
	fmt.Fprintf(w, "| Location | Findings | Max severity |\n")
	fmt.Fprintf(w, "|----------|----------|--------------|\n")
	for _, h := range spots[:min(len(spots), maxHotspots)] {
		fmt.Fprintf(w, "| %s | %d | %s %s |\n",
			code(fmt.Sprintf("%s:%d-%d", h.File, h.StartLine, h.EndLine)),
			len(h.Findings), severityEmoji(h.Max), h.Max)
	}
	fmt.Fprintf(w, "\n")
}

func markdownTopFiles(w io.Writer, vulns []types.Vulnerability) {
	top := topFiles(vulns, 5)
	if len(top) < 2 {
		return
	}
	fmt.Fprintf(w, "**Top affected files:**\n\n")
	fmt.Fprintf(w, "| File | Vulnerabilities |\n")
	fmt.Fprintf(w, "|------|-----------------|\n")
	for _, fc := range top {
		fmt.Fprintf(w, "| %s | %d |\n", code(fc.file), fc.count)
	}
	fmt.Fprintf(w, "\n")
}

func markdownErrors(w io.Writer, errs []types.ScanError) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintf(w, "<details>\n<summary>:warning: <strong>Errors (%d)</strong></summary>\n\n", len(errs))
	for _, e := range errs {
		fmt.Fprintf(w, "- %s\n", escapeMarkdown(e.Error()))
	}
	fmt.Fprintf(w, "\n</details>\n\n")
}

func severityEmoji(sev types.Severity) string {
	switch sev {
	case types.SeverityCritical:
		return ":red_circle:"
	case types.SeverityHigh:
		return ":orange_circle:"
	case types.SeverityMedium:
		return ":yellow_circle:"
	case types.SeverityLow:
		return ":blue_circle:"
	default:
		return ":white_circle:"
	}
}

// code wraps s in a table-safe code span.
func code(s string) string {
	s = strings.ReplaceAll(s, "`", "'")
	s = strings.ReplaceAll(s, "|", "\\|")
	return "`" + s + "`"
}

func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
