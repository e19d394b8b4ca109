package rules

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/cagmero/ARGUS/internal/types"
)

var (
	idPattern  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)
	cwePattern = regexp.MustCompile(`^(?i:cwe-)?([0-9]+)$`)
)

// Compile validates raw and converts it into a CompiledRule. Rules carrying
// patterns must agree with their own examples: every true positive matches
// and no false positive does.
func Compile(raw RawRule) (*CompiledRule, error) {
	if raw.ID == "" {
		return nil, errors.New("rule missing id")
	}
	if !idPattern.MatchString(raw.ID) {
		return nil, fmt.Errorf("rule %q: id may only hold letters, digits, '-', '_' and '.'", raw.ID)
	}
	fail := func(format string, args ...any) error {
		return fmt.Errorf("rule %s: %s", raw.ID, fmt.Sprintf(format, args...))
	}

	sev, err := types.ParseSeverity(raw.Severity)
	if err != nil {
		return nil, fail("%v", err)
	}
	cwe, err := normalizeCWE(raw.CWE)
	if err != nil {
		return nil, fail("%v", err)
	}
	mode, err := parseMatchMode(raw.MatchMode)
	if err != nil {
		return nil, fail("%v", err)
	}

	compiled := &CompiledRule{
		ID:          raw.ID,
		Name:        strings.TrimSpace(raw.Name),
		Description: strings.TrimSpace(raw.Description),
		Severity:    sev,
		CWE:         cwe,
		Category:    strings.ToLower(strings.TrimSpace(raw.Category)),
		Fix:         strings.TrimSpace(raw.Fix),
		MatchMode:   mode,
		Examples:    raw.Examples,
	}
	if compiled.Name == "" {
		compiled.Name = raw.ID
	}

	for _, name := range raw.FileTypes {
		ft, err := types.ParseFileType(name)
		if err != nil {
			return nil, fail("file_types: %v", err)
		}
		if !slices.Contains(compiled.FileTypes, ft) {
			compiled.FileTypes = append(compiled.FileTypes, ft)
		}
	}
	slices.Sort(compiled.FileTypes)

	for i, p := range raw.Patterns {
		cp, err := compilePattern(p)
		if err != nil {
			return nil, fail("pattern %d: %v", i, err)
		}
		compiled.Patterns = append(compiled.Patterns, cp)
	}
	if err := checkExamples(compiled); err != nil {
		return nil, fail("%v", err)
	}
	return compiled, nil
}

// normalizeCWE accepts "CWE-798", "cwe-798" or "798".
func normalizeCWE(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	m := cwePattern.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("invalid cwe %q", s)
	}
	return "CWE-" + m[1], nil
}

func parseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return MatchAny, nil
	case "all":
		return MatchAll, nil
	default:
		return MatchAny, fmt.Errorf("match_mode must be any or all, got %q", s)
	}
}

func compilePattern(p RawPattern) (CompiledPattern, error) {
	if p.Value == "" {
		return CompiledPattern{}, errors.New("empty value")
	}
	cp := CompiledPattern{Type: p.Type, Value: p.Value}
	switch p.Type {
	case PatternRegex:
		re, err := regexp.Compile(p.Value)
		if err != nil {
			return cp, fmt.Errorf("invalid regex: %w", err)
		}
		cp.Regex = re
	case PatternContains:
		cp.Value = strings.ToLower(p.Value)
	default:
		return cp, fmt.Errorf("unknown type %q", p.Type)
	}
	return cp, nil
}

// checkExamples runs a pattern rule against its examples. Detector rules
// without patterns keep their examples as documentation only.
func checkExamples(r *CompiledRule) error {
	if len(r.Patterns) == 0 {
		return nil
	}
	var errs []error
	for _, tp := range r.Examples.TruePositive {
		if !r.Matches(tp) {
			errs = append(errs, fmt.Errorf("true_positive not matched: %q", tp))
		}
	}
	for _, fp := range r.Examples.FalsePositive {
		if r.Matches(fp) {
			errs = append(errs, fmt.Errorf("false_positive matched: %q", fp))
		}
	}
	return errors.Join(errs...)
}

// CompileAll compiles raws and reports every invalid rule, including ids
// defined more than once.
func CompileAll(raws []RawRule) ([]*CompiledRule, []error) {
	var (
		compiled []*CompiledRule
		errs     []error
	)
	seen := make(map[string]string, len(raws))
	for _, raw := range raws {
		if prev, dup := seen[raw.ID]; dup && raw.ID != "" {
			errs = append(errs, fmt.Errorf("rule %s: defined in %s and %s", raw.ID, prev, raw.Source))
			continue
		}
		seen[raw.ID] = raw.Source
		cr, err := Compile(raw)
		if err != nil {
			if raw.Source != "" {
				err = fmt.Errorf("%s: %w", raw.Source, err)
			}
			errs = append(errs, err)
			continue
		}
		compiled = append(compiled, cr)
	}
	return compiled, errs
}

// RuleOverride changes one rule's severity or disables it from the
// configuration document.
type RuleOverride struct {
	Severity string `yaml:"severity" json:"severity" mapstructure:"severity"`
	Disabled bool   `yaml:"disabled" json:"disabled" mapstructure:"disabled"`
}

// ApplyOverrides returns the rules left after overrides. The input slice is
// never changed; an invalid severity keeps the rule as it was.
func ApplyOverrides(compiled []*CompiledRule, overrides map[string]RuleOverride) ([]*CompiledRule, []error) {
	var (
		out  []*CompiledRule
		errs []error
	)
	for _, rule := range compiled {
		ovr, ok := overrides[rule.ID]
		switch {
		case !ok:
		case ovr.Disabled:
			continue
		case ovr.Severity != "":
			sev, err := types.ParseSeverity(ovr.Severity)
			if err != nil {
				errs = append(errs, fmt.Errorf("rule %s override: %w", rule.ID, err))
				break
			}
			rule = rule.clone()
			rule.Severity = sev
		}
		out = append(out, rule)
	}
	return out, errs
}
