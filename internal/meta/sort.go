package meta

import (
	"cmp"
	"slices"

	"github.com/cagmero/ARGUS/internal/types"
)

// Compare orders vulnerabilities by severity (most severe first), then file,
// line, tool, rule id, column and message. It is a total order over every
// serialized field that can differ between two findings on the same line.
func Compare(a, b types.Vulnerability) int {
	if c := cmp.Compare(b.Severity, a.Severity); c != 0 {
		return c
	}
	if c := cmp.Compare(a.File, b.File); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Line, b.Line); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Tool, b.Tool); c != 0 {
		return c
	}
	if c := cmp.Compare(a.RuleID, b.RuleID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Column, b.Column); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Message, b.Message); c != 0 {
		return c
	}
	if c := cmp.Compare(a.CodeSnippet, b.CodeSnippet); c != 0 {
		return c
	}
	return cmp.Compare(a.Description, b.Description)
}

// Sort puts vulns in canonical report order.
func Sort(vulns []types.Vulnerability) {
	slices.SortStableFunc(vulns, Compare)
}

// SortErrors orders scan errors by file, analyzer, category and message.
func SortErrors(errs []types.ScanError) {
	slices.SortStableFunc(errs, func(a, b types.ScanError) int {
		if c := cmp.Compare(a.File, b.File); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Analyzer, b.Analyzer); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Category, b.Category); c != 0 {
			return c
		}
		return cmp.Compare(a.Message, b.Message)
	})
}
