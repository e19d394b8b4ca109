package engine

import (
	"strings"

	"github.com/cagmero/ARGUS/internal/rules"
	"github.com/cagmero/ARGUS/internal/types"
)

type unsafeStateAccess struct{ base }

func newUnsafeStateAccess(r *rules.CompiledRule) Detector { return unsafeStateAccess{base{r}} }

func (d unsafeStateAccess) Detect(pf *types.ParsedFile) []Hit {
	var hits []Hit
	for _, f := range pf.Facts {
		if f.Kind == types.FactStateRead && !f.Flags.Has(types.FlagChecked) {
			if strings.Contains(f.Op, f.Name) {
				hits = append(hits, d.hit(f.Line, "%s is read without checking that it exists", f.Op))
			} else {
				hits = append(hits, d.hit(f.Line, "%s reads %q without checking that it exists", f.Op, f.Name))
			}
		}
	}
	return hits
}

// privilegedBranch flags conditions whose only requirement is that the caller
// equals a hardcoded address.
type privilegedBranch struct{ base }

func newPrivilegedBranch(r *rules.CompiledRule) Detector { return privilegedBranch{base{r}} }

const otherConstraints = types.FlagOrdering | types.FlagTime | types.FlagExternal | types.FlagBalance

func (d privilegedBranch) Detect(pf *types.ParsedFile) []Hit {
	var hits []Hit
	for _, f := range pf.Facts {
		if isCondition(f) && f.Flags.Has(types.FlagSentinel) && !f.Flags.Any(otherConstraints) {
			hits = append(hits, d.hit(f.Line, "privileged path is gated only by a hardcoded address"))
		}
	}
	return hits
}
