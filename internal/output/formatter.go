// Package output renders scan results as JSON, terminal text, SARIF,
// Markdown and HTML.
package output

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/cagmero/ARGUS/internal/types"
)

// ErrUnknownFormat is returned by New for an unregistered format name.
var ErrUnknownFormat = errors.New("unknown output format")

// ToolVersion is the argus version reported in SARIF and Markdown output.
var ToolVersion = "dev"

// Formatter writes one scan result.
type Formatter interface {
	Format(w io.Writer, result *types.ScanResult) error
}

// Options tunes the formatters. BaseDir is the directory SARIF locations
// are made relative to; empty means the working directory.
type Options struct {
	NoColor bool
	Verbose bool
	BaseDir string
}

var formats = []string{"json", "structured", "text", "sarif", "markdown", "html"}

// Formats lists the accepted format names.
func Formats() []string { return slices.Clone(formats) }

// Known reports whether format names a formatter.
func Known(format string) bool {
	return slices.Contains(formats, strings.ToLower(strings.TrimSpace(format)))
}

// New returns the formatter for format.
func New(format string, opts Options) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json", "structured":
		return &JSONFormatter{}, nil
	case "text":
		return &TerminalFormatter{NoColor: opts.NoColor, Verbose: opts.Verbose}, nil
	case "sarif":
		return &SARIFFormatter{BaseDir: opts.BaseDir}, nil
	case "markdown":
		return &MarkdownFormatter{}, nil
	case "html":
		return &HTMLFormatter{}, nil
	}
	return nil, fmt.Errorf("%w %q (want one of %s)", ErrUnknownFormat, format, strings.Join(formats, ", "))
}

// JSONFormatter writes the scan response document, indented.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(w io.Writer, result *types.ScanResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func filterBySeverity(vulns []types.Vulnerability, sev types.Severity) []types.Vulnerability {
	var out []types.Vulnerability
	for _, v := range vulns {
		if v.Severity == sev {
			out = append(out, v)
		}
	}
	return out
}

type fileGroup struct {
	file  string
	vulns []types.Vulnerability
}

// groupByFile keeps first-appearance order, which follows the result order.
func groupByFile(vulns []types.Vulnerability) []fileGroup {
	index := map[string]int{}
	var groups []fileGroup
	for _, v := range vulns {
		i, ok := index[v.File]
		if !ok {
			i = len(groups)
			index[v.File] = i
			groups = append(groups, fileGroup{file: v.File})
		}
		groups[i].vulns = append(groups[i].vulns, v)
	}
	return groups
}

type fileCount struct {
	file  string
	count int
}

// topFiles returns up to limit files with the most vulnerabilities.
func topFiles(vulns []types.Vulnerability, limit int) []fileCount {
	counts := map[string]int{}
	for _, v := range vulns {
		counts[v.File]++
	}
	out := make([]fileCount, 0, len(counts))
	for file, n := range counts {
		out = append(out, fileCount{file, n})
	}
	slices.SortFunc(out, func(a, b fileCount) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.file, b.file)
	})
	return out[:min(len(out), limit)]
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
