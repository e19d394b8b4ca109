package engine

import (
	"strconv"

	"github.com/cagmero/ARGUS/internal/types"
)

// cfg is the control-flow view of a TEAL program shared by the flow-aware
// detectors.
type cfg struct {
	pf     *types.ParsedFile
	facts  [][]types.Fact
	preds  [][]int
	labels map[string]int
}

func newCFG(pf *types.ParsedFile) *cfg {
	c := &cfg{
		pf:     pf,
		facts:  make([][]types.Fact, len(pf.Blocks)),
		preds:  pf.Preds(),
		labels: make(map[string]int),
	}
	for _, f := range pf.Facts {
		if f.Block >= 0 && f.Block < len(c.facts) {
			c.facts[f.Block] = append(c.facts[f.Block], f)
		}
	}
	for _, b := range pf.Blocks {
		if b.Label == "" {
			continue
		}
		if _, dup := c.labels[b.Label]; !dup {
			c.labels[b.Label] = b.ID
		}
	}
	return c
}

// branch returns the conditional jump ending block b.
func (c *cfg) branch(b int) (types.Fact, bool) {
	facts := c.facts[b]
	for i := len(facts) - 1; i >= 0; i-- {
		switch facts[i].Kind {
		case types.FactBranch, types.FactBranchEq:
			return facts[i], true
		}
	}
	return types.Fact{}, false
}

// target returns the block a jump to label lands in, or -1.
func (c *cfg) target(label string) int {
	if id, ok := c.labels[label]; ok {
		return id
	}
	return -1
}

// edges returns the successors of a conditional jump: the block reached when
// the condition holds and the one reached when it does not. bz and negated
// comparisons swap the two.
func (c *cfg) edges(br types.Fact) (holds, fails int) {
	taken, fall := c.target(br.Name), c.pf.Blocks[br.Block].Fallthrough
	if br.Flags.Has(types.FlagNegated) {
		return fall, taken
	}
	return taken, fall
}

// along reports whether the edge from -> to is the one followed when the
// condition of from's closing branch holds, for a branch matching sel.
func (c *cfg) along(from, to int, sel func(types.Fact) bool) bool {
	br, ok := c.branch(from)
	if !ok || !sel(br) {
		return false
	}
	holds, fails := c.edges(br)
	return holds == to && holds != fails
}

// dominated computes, for every block, whether each path from an entry point
// reaches it through a block where pass holds or across an edge selected by
// sel. It is the greatest fixpoint, so loops do not break the property.
func (c *cfg) dominated(sel func(types.Fact) bool, pass func(b int) bool) []bool {
	in := make([]bool, len(c.pf.Blocks))
	for b := range in {
		in[b] = len(c.preds[b]) > 0 && !c.pf.Blocks[b].Entry
	}
	for changed := true; changed; {
		changed = false
		for b := range in {
			if !in[b] {
				continue
			}
			for _, p := range c.preds[b] {
				if in[p] || pass != nil && pass(p) || c.along(p, b, sel) {
					continue
				}
				in[b] = false
				changed = true
				break
			}
		}
	}
	return in
}

func isCondition(f types.Fact) bool {
	switch f.Kind {
	case types.FactBranch, types.FactBranchEq, types.FactGuard:
		return true
	}
	return false
}

// isIdentityCheck reports whether f requires the caller to equal a known
// account for execution to continue.
func isIdentityCheck(f types.Fact) bool {
	return f.Kind == types.FactGuard && f.Flags.Has(types.FlagIdentity|types.FlagEquality) && !f.Flags.Has(types.FlagNegated)
}

func isIdentityBranch(f types.Fact) bool {
	return f.Flags.Has(types.FlagIdentity | types.FlagEquality)
}

func isCreateBranch(f types.Fact) bool {
	return f.Flags.Has(types.FlagCreate)
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func describe(f types.Fact) string {
	if len(f.Args) == 2 {
		return f.Args[0] + " " + f.Op + " " + f.Args[1]
	}
	if f.Value != "" {
		return f.Value
	}
	return f.Op
}
