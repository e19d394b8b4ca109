package engine

import (
	"strings"

	"github.com/cagmero/ARGUS/internal/rules"
	"github.com/cagmero/ARGUS/internal/types"
)

// accessControl flags shared-state writes reachable without a sender
// identity check. The application-creation path is exempt.
type accessControl struct{ base }

func newAccessControl(r *rules.CompiledRule) Detector { return accessControl{base{r}} }

func (d accessControl) Detect(pf *types.ParsedFile) []Hit {
	switch pf.Type {
	case types.FileTypeContractASM:
		return d.teal(pf)
	case types.FileTypeEmbeddedDSL:
		return d.dsl(pf)
	}
	return nil
}

func (d accessControl) teal(pf *types.ParsedFile) []Hit {
	c := newCFG(pf)
	guardedOut := func(b int) bool {
		for _, f := range c.facts[b] {
			if isIdentityCheck(f) {
				return true
			}
		}
		return false
	}
	guarded := c.dominated(isIdentityBranch, guardedOut)
	creating := c.dominated(isCreateBranch, nil)

	var hits []Hit
	for b := range pf.Blocks {
		if guarded[b] || creating[b] {
			continue
		}
		for _, f := range c.facts[b] {
			if isIdentityCheck(f) {
				break
			}
			if f.Kind == types.FactStateWrite && !f.Flags.Has(types.FlagIdentity) {
				hits = append(hits, d.hit(f.Line, "%s writes %q without checking the caller's identity", f.Op, f.Name))
				break
			}
		}
	}
	return hits
}

func (d accessControl) dsl(pf *types.ParsedFile) []Hit {
	exempt := creationRanges(pf)
	isExempt := func(line int) bool {
		for _, r := range exempt {
			if line >= r[0] && line <= r[1] {
				return true
			}
		}
		return false
	}

	var hits []Hit
	for _, def := range pf.Facts {
		if def.Kind != types.FactDeclaration || def.Op != "def" || !def.Flags.Has(types.FlagEntry) || def.Flags.Has(types.FlagCreate) {
			continue
		}
		checked := 0
		for _, f := range pf.FactsIn(def.Block) {
			if f.Flags.Has(types.FlagIdentity) && f.Flags.Any(types.FlagEquality|types.FlagChecked) && f.Kind != types.FactStateWrite {
				if checked == 0 || f.Line < checked {
					checked = f.Line
				}
				continue
			}
			if f.Kind != types.FactStateWrite || f.Flags.Has(types.FlagIdentity) || isExempt(f.Line) {
				continue
			}
			if checked > 0 && checked <= f.Line {
				continue
			}
			hits = append(hits, d.hit(f.Line, "%s writes state %q without checking the caller's identity", def.Name, f.Name))
			break
		}
	}
	return hits
}

// creationRanges returns the line ranges executed only when the application
// is being created: bodies of `if` statements on ApplicationID == 0, PyTeal
// Cond arms on the same condition and the expressions those arms name.
func creationRanges(pf *types.ParsedFile) [][2]int {
	var ranges [][2]int
	named := make(map[string]bool)
	for _, f := range pf.Facts {
		if !isCondition(f) || !f.Flags.Has(types.FlagCreate) || f.Flags.Has(types.FlagNegated) {
			continue
		}
		switch f.Op {
		case "if", "elif", "while":
			ranges = append(ranges, [2]int{f.Line, indentedBodyEnd(pf, f.Line)})
		default:
			end := max(f.End, f.Line)
			ranges = append(ranges, [2]int{f.Line, end})
		}
		if f.Name != "" {
			named[f.Name] = true
		}
	}
	for _, f := range pf.Facts {
		if f.Kind == types.FactAssign && named[f.Name] {
			ranges = append(ranges, [2]int{f.Line, max(f.End, f.Line)})
		}
	}
	return ranges
}

// indentedBodyEnd returns the last line of the block opened by the Python
// statement header on line.
func indentedBodyEnd(pf *types.ParsedFile, line int) int {
	if line < 1 || line > len(pf.Lines) {
		return line
	}
	indent := func(s string) int { return len(s) - len(strings.TrimLeft(s, " \t")) }
	header := indent(pf.Lines[line-1])
	end := line
	for n := line + 1; n <= len(pf.Lines); n++ {
		text := pf.Lines[n-1]
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if indent(text) <= header {
			break
		}
		end = n
	}
	return end
}
