// Package engine is the builtin analyzer. It runs one detector per enabled
// catalog rule over a parsed file's fact stream and enriches every hit with
// the rule's fixed severity, CWE and remediation text.
package engine

import (
	"context"
	"fmt"

	"github.com/cagmero/ARGUS/internal/engine/pattern"
	"github.com/cagmero/ARGUS/internal/rules"
	"github.com/cagmero/ARGUS/internal/types"
)

// Name is the analyzer id reported on builtin findings.
const Name = "builtin"

// Hit is one raw detector result, before enrichment from the catalog.
type Hit struct {
	RuleID  string
	Line    int
	Message string
}

// Detector checks one rule over a single file. Detectors keep no state
// between files.
type Detector interface {
	ID() string
	Applies(ft types.FileType) bool
	Detect(pf *types.ParsedFile) []Hit
}

type constructor func(rule *rules.CompiledRule) Detector

// detectors maps rule ids to their fact-stream implementations. Catalog rules
// without an entry here run as line patterns.
var detectors = map[string]constructor{
	"missing-access-control":        newAccessControl,
	"hardcoded-secret":              newHardcodedSecret,
	"unchecked-arithmetic":          newUncheckedArithmetic,
	"weak-randomness":               newWeakRandomness,
	"timestamp-dependency":          newTimestampDependency,
	"unsafe-state-access":           newUnsafeStateAccess,
	"unprotected-privileged-branch": newPrivilegedBranch,
	"default-approve":               newDefaultApprove,
	"unsafe-dynamic-execution":      newDynamicExecution,
	"explicit-error":                newExplicitError,
	"unhandled-async-call":          newUnhandledAsync,
	"unvalidated-transaction":       newUnvalidatedTransaction,
}

// Engine implements the scanner's Analyzer contract over the rule catalog.
type Engine struct {
	rules     map[string]*rules.CompiledRule
	detectors []Detector
}

// New builds an engine for every rule in catalog. Rules disabled through
// overrides are absent from the catalog and never run.
func New(catalog *rules.Catalog) *Engine {
	e := &Engine{rules: make(map[string]*rules.CompiledRule)}
	var custom []*rules.CompiledRule
	for _, r := range catalog.Rules() {
		e.rules[r.ID] = r
		if ctor, ok := detectors[r.ID]; ok {
			e.detectors = append(e.detectors, ctor(r))
			continue
		}
		if len(r.Patterns) > 0 {
			custom = append(custom, r)
		}
	}
	if len(custom) > 0 {
		e.detectors = append(e.detectors, patternDetector{pattern.NewMatcher(custom)})
	}
	return e
}

func (e *Engine) Name() string { return Name }

// Supports reports whether any enabled detector covers ft.
func (e *Engine) Supports(ft types.FileType) bool {
	for _, d := range e.detectors {
		if d.Applies(ft) {
			return true
		}
	}
	return false
}

// Detectors returns the ids of the detectors the engine runs, in run order.
func (e *Engine) Detectors() []string {
	ids := make([]string, len(e.detectors))
	for i, d := range e.detectors {
		ids[i] = d.ID()
	}
	return ids
}

// Analyze runs every applicable detector over pf. A rule reports a given
// line at most once.
func (e *Engine) Analyze(ctx context.Context, pf *types.ParsedFile) ([]types.Vulnerability, error) {
	var vulns []types.Vulnerability
	seen := make(map[string]bool)
	for _, d := range e.detectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !d.Applies(pf.Type) {
			continue
		}
		for _, h := range d.Detect(pf) {
			rule, ok := e.rules[h.RuleID]
			if !ok {
				continue
			}
			key := fmt.Sprintf("%d:%s", h.Line, h.RuleID)
			if seen[key] {
				continue
			}
			seen[key] = true
			vulns = append(vulns, types.Vulnerability{
				File:          pf.Path,
				Line:          h.Line,
				Severity:      rule.Severity,
				Tool:          Name,
				RuleID:        rule.ID,
				RuleName:      rule.Name,
				Message:       h.Message,
				Description:   rule.Description,
				CWE:           rule.CWE,
				CodeSnippet:   pf.Line(h.Line),
				FixSuggestion: rule.Fix,
			})
		}
	}
	return vulns, nil
}

// base carries the rule a detector reports under.
type base struct {
	rule *rules.CompiledRule
}

func (b base) ID() string { return b.rule.ID }

func (b base) Applies(ft types.FileType) bool { return b.rule.Applies(ft) }

func (b base) hit(line int, format string, args ...any) Hit {
	return Hit{RuleID: b.rule.ID, Line: line, Message: fmt.Sprintf(format, args...)}
}

// patternDetector runs custom catalog rules as line patterns.
type patternDetector struct {
	m *pattern.Matcher
}

func (p patternDetector) ID() string { return "pattern" }

func (p patternDetector) Applies(ft types.FileType) bool { return p.m.Applies(ft) }

func (p patternDetector) Detect(pf *types.ParsedFile) []Hit {
	var hits []Hit
	for _, m := range p.m.Match(pf) {
		hits = append(hits, Hit{RuleID: m.RuleID, Line: m.Line, Message: m.Message()})
	}
	return hits
}
