package engine

import (
	"github.com/cagmero/ARGUS/internal/rules"
	"github.com/cagmero/ARGUS/internal/types"
)

// defaultApprove flags dispatchers whose fallback path approves the call.
type defaultApprove struct{ base }

func newDefaultApprove(r *rules.CompiledRule) Detector { return defaultApprove{base{r}} }

func (d defaultApprove) Detect(pf *types.ParsedFile) []Hit {
	if pf.Type == types.FileTypeContractASM {
		return d.teal(pf)
	}
	var hits []Hit
	for _, f := range pf.Facts {
		if f.Kind == types.FactTransfer && f.Flags.Has(types.FlagFallback|types.FlagApprove) {
			hits = append(hits, d.hit(f.Line, "dispatch fallback approves unmatched calls"))
		}
	}
	return hits
}

func (d defaultApprove) teal(pf *types.ParsedFile) []Hit {
	c := newCFG(pf)
	var hits []Hit
	for b := range pf.Blocks {
		if _, ok := c.fallback(b); !ok {
			continue
		}
		if ret, ok := c.fallbackReturn(b); ok {
			hits = append(hits, d.hit(ret.Line, "dispatch fallback approves unmatched calls"))
		}
	}
	return hits
}

// fallback returns the block reached from b when none of its dispatch
// selectors match.
func (c *cfg) fallback(b int) (int, bool) {
	facts := c.facts[b]
	if len(facts) == 0 {
		return -1, false
	}
	last := facts[len(facts)-1]
	switch {
	case (last.Kind == types.FactBranch || last.Kind == types.FactBranchEq) && last.Flags.Has(types.FlagDispatch):
		_, fails := c.edges(last)
		return fails, fails >= 0
	case last.Kind == types.FactTransfer && last.Flags.Has(types.FlagDispatch):
		// switch and match fall through when no label is selected
		fall := c.pf.Blocks[b].Fallthrough
		return fall, fall >= 0
	}
	return -1, false
}

// fallbackReturn follows the fallback chain from the dispatch block start
// through further dispatch blocks and unconditional jumps, and returns the
// approving return that ends it.
func (c *cfg) fallbackReturn(start int) (types.Fact, bool) {
	visited := make(map[int]bool)
	cur := start
	for cur >= 0 && !visited[cur] {
		visited[cur] = true
		if next, ok := c.fallback(cur); ok {
			cur = next
			continue
		}
		next := c.pf.Blocks[cur].Fallthrough
		for _, f := range c.facts[cur] {
			if f.Kind != types.FactTransfer {
				continue
			}
			switch f.Op {
			case "return":
				return f, f.Flags.Has(types.FlagApprove)
			case "err", "retsub":
				return types.Fact{}, false
			case "b":
				next = c.target(f.Name)
			}
		}
		cur = next
	}
	return types.Fact{}, false
}

type explicitError struct{ base }

func newExplicitError(r *rules.CompiledRule) Detector { return explicitError{base{r}} }

func (d explicitError) Detect(pf *types.ParsedFile) []Hit {
	var hits []Hit
	for _, f := range pf.Facts {
		if f.Kind == types.FactTransfer && f.Op == "err" {
			hits = append(hits, d.hit(f.Line, "err aborts the program without a diagnostic"))
		}
	}
	return hits
}
