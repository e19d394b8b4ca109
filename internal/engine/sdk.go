package engine

import (
	"strings"

	"github.com/cagmero/ARGUS/internal/rules"
	"github.com/cagmero/ARGUS/internal/types"
)

type unhandledAsync struct{ base }

func newUnhandledAsync(r *rules.CompiledRule) Detector { return unhandledAsync{base{r}} }

func (d unhandledAsync) Detect(pf *types.ParsedFile) []Hit {
	var hits []Hit
	for _, f := range pf.Facts {
		if f.Kind != types.FactCall || !f.Flags.Has(types.FlagAwait) || f.Flags.Has(types.FlagGuarded) {
			continue
		}
		if d.rule.Matches(f.Name) {
			hits = append(hits, d.hit(f.Line, "awaited %s has no error handling", f.Name))
		}
	}
	return hits
}

// unvalidatedTransaction flags transaction builders in functions that never
// validate an address.
type unvalidatedTransaction struct{ base }

func newUnvalidatedTransaction(r *rules.CompiledRule) Detector {
	return unvalidatedTransaction{base{r}}
}

func (d unvalidatedTransaction) Detect(pf *types.ParsedFile) []Hit {
	validated := make(map[int]bool)
	for _, f := range pf.Facts {
		if f.Kind == types.FactCall && strings.HasSuffix(f.Name, "isValidAddress") {
			validated[f.Block] = true
		}
	}
	var hits []Hit
	for _, f := range pf.Facts {
		if f.Kind == types.FactCall && !validated[f.Block] && d.rule.Matches(f.Name) {
			hits = append(hits, d.hit(f.Line, "%s builds a transaction from addresses that are never validated", f.Name))
		}
	}
	return hits
}
