package engine

import (
	"strings"

	"github.com/cagmero/ARGUS/internal/rules"
	"github.com/cagmero/ARGUS/internal/types"
)

type weakRandomness struct{ base }

func newWeakRandomness(r *rules.CompiledRule) Detector { return weakRandomness{base{r}} }

func (d weakRandomness) Detect(pf *types.ParsedFile) []Hit {
	var hits []Hit
	for _, f := range pf.Facts {
		switch f.Kind {
		case types.FactArithmetic:
			if f.Flags.Has(types.FlagTime) && (f.Op == "%" || f.Op == "/" || f.Op == "//") {
				hits = append(hits, d.hit(f.Line, "time-derived value used as randomness: %s", describe(f)))
			}
		case types.FactCall:
			name := strings.ToLower(f.Name)
			switch {
			case d.rule.Matches(f.Name):
				hits = append(hits, d.hit(f.Line, "%s is not a secure source of randomness", f.Name))
			case f.Flags.Has(types.FlagTime) && (strings.Contains(name, "sha") || strings.Contains(name, "keccak") || strings.Contains(name, "hash")):
				hits = append(hits, d.hit(f.Line, "%s is seeded with a time-derived value", f.Name))
			}
		}
	}
	return hits
}

// timestampDependency flags conditions requiring a time source to equal an
// exact value.
type timestampDependency struct{ base }

func newTimestampDependency(r *rules.CompiledRule) Detector { return timestampDependency{base{r}} }

func (d timestampDependency) Detect(pf *types.ParsedFile) []Hit {
	var hits []Hit
	for _, f := range pf.Facts {
		if isCondition(f) && f.Flags.Has(types.FlagTime|types.FlagEquality) {
			hits = append(hits, d.hit(f.Line, "condition depends on an exact time value: %s", describe(f)))
		}
	}
	return hits
}
