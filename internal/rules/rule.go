// Package rules loads and compiles the detection rule catalog. Builtin rules
// are embedded YAML documents; each one carries the fixed severity, CWE and
// remediation text used to enrich detector hits. Rules loaded from a custom
// directory are pure pattern rules matched line by line.
package rules

import (
	"regexp"
	"strings"

	"github.com/cagmero/ARGUS/internal/types"
)

// MatchMode determines how multiple patterns are combined.
type MatchMode int

const (
	MatchAny MatchMode = iota // any pattern match triggers a finding
	MatchAll                  // all patterns must match on the same line
)

// PatternType represents the type of a pattern.
type PatternType string

const (
	PatternRegex    PatternType = "regex"
	PatternContains PatternType = "contains"
)

// RawPattern is a single pattern as defined in YAML.
type RawPattern struct {
	Type  PatternType `yaml:"type"`
	Value string      `yaml:"value"`
}

// RawExamples holds sample code. For rules with patterns they double as
// self-tests: true positives must match, false positives must not.
type RawExamples struct {
	TruePositive  []string `yaml:"true_positive"`
	FalsePositive []string `yaml:"false_positive"`
}

// RawRule is the YAML representation of a rule.
type RawRule struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Severity    string       `yaml:"severity"`
	CWE         string       `yaml:"cwe"`
	Category    string       `yaml:"category"`
	FileTypes   []string     `yaml:"file_types"`
	Fix         string       `yaml:"fix"`
	MatchMode   string       `yaml:"match_mode"`
	Patterns    []RawPattern `yaml:"patterns"`
	Examples    RawExamples  `yaml:"examples"`
	// Source is the file the rule was read from.
	Source string `yaml:"-"`
}

// CompiledPattern is a pattern ready for matching.
type CompiledPattern struct {
	Type  PatternType
	Regex *regexp.Regexp // set when Type == PatternRegex
	Value string         // set when Type == PatternContains (lowercased)
}

// Match reports whether s matches the pattern.
func (p CompiledPattern) Match(s string) bool {
	switch p.Type {
	case PatternRegex:
		return p.Regex != nil && p.Regex.MatchString(s)
	case PatternContains:
		return strings.Contains(strings.ToLower(s), p.Value)
	}
	return false
}

// CompiledRule is a rule compiled and ready for execution.
type CompiledRule struct {
	ID          string
	Name        string
	Description string
	Severity    types.Severity
	CWE         string
	Category    string
	// FileTypes lists the artifact kinds the rule applies to; empty means all.
	FileTypes []types.FileType
	Fix       string
	MatchMode MatchMode
	Patterns  []CompiledPattern
	Examples  RawExamples
}

// Applies reports whether the rule covers files of type ft.
func (r *CompiledRule) Applies(ft types.FileType) bool {
	if len(r.FileTypes) == 0 {
		return ft != types.FileTypeUnknown
	}
	for _, t := range r.FileTypes {
		if t == ft {
			return true
		}
	}
	return false
}

// Matches reports whether s satisfies the rule's patterns under its match mode.
// A rule without patterns never matches.
func (r *CompiledRule) Matches(s string) bool {
	if len(r.Patterns) == 0 {
		return false
	}
	for _, p := range r.Patterns {
		ok := p.Match(s)
		if ok && r.MatchMode == MatchAny {
			return true
		}
		if !ok && r.MatchMode == MatchAll {
			return false
		}
	}
	return r.MatchMode == MatchAll
}

func (r *CompiledRule) clone() *CompiledRule {
	c := *r
	return &c
}
