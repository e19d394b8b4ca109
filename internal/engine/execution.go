package engine

import (
	"strings"

	"github.com/cagmero/ARGUS/internal/rules"
	"github.com/cagmero/ARGUS/internal/types"
)

// dynamicExecution flags non-literal data executed as code: evaluators and
// shells called with computed arguments, and inner application calls whose
// program comes from caller input.
type dynamicExecution struct{ base }

func newDynamicExecution(r *rules.CompiledRule) Detector { return dynamicExecution{base{r}} }

func (d dynamicExecution) Detect(pf *types.ParsedFile) []Hit {
	var hits []Hit
	for _, f := range pf.Facts {
		switch f.Kind {
		case types.FactCall:
			if len(f.Args) == 0 || f.Flags.Has(types.FlagLiteral) {
				continue
			}
			if d.rule.Matches(f.Name) || f.Op == "new Function" {
				hits = append(hits, d.hit(f.Line, "%s executes a value that is not a literal", f.Name))
			}
		case types.FactAssign:
			if isProgramField(f.Name) && f.Flags.Has(types.FlagExternal) {
				hits = append(hits, d.hit(f.Line, "inner transaction %s is taken from caller input", strings.TrimPrefix(f.Name, "itxn.")))
			}
		}
	}
	return hits
}

func isProgramField(name string) bool {
	field, ok := strings.CutPrefix(name, "itxn.")
	if !ok {
		return false
	}
	switch strings.ReplaceAll(strings.ToLower(field), "_", "") {
	case "approvalprogram", "clearstateprogram", "approvalprogrampages", "clearstateprogrampages":
		return true
	}
	return false
}
