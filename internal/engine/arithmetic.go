package engine

import (
	"github.com/cagmero/ARGUS/internal/rules"
	"github.com/cagmero/ARGUS/internal/types"
)

// uncheckedArithmetic flags additions and subtractions on balance-like values
// with no ordering check earlier in the same block.
type uncheckedArithmetic struct{ base }

func newUncheckedArithmetic(r *rules.CompiledRule) Detector { return uncheckedArithmetic{base{r}} }

func (d uncheckedArithmetic) Detect(pf *types.ParsedFile) []Hit {
	var hits []Hit
	for _, f := range pf.Facts {
		if f.Kind != types.FactArithmetic || (f.Op != "+" && f.Op != "-") || !f.Flags.Has(types.FlagBalance) {
			continue
		}
		if boundsChecked(pf, f) {
			continue
		}
		hits = append(hits, d.hit(f.Line, "balance arithmetic %s has no bounds check", describe(f)))
	}
	return hits
}

func boundsChecked(pf *types.ParsedFile, at types.Fact) bool {
	for _, g := range pf.Facts {
		if g.Block != at.Block || g.Line > at.Line {
			continue
		}
		if (isCondition(g) || g.Kind == types.FactCompare) && g.Flags.Has(types.FlagOrdering) {
			return true
		}
	}
	return false
}
