package rules

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cagmero/ARGUS/internal/rules/builtin"
)

// Catalog is an immutable, ID-indexed set of compiled rules.
type Catalog struct {
	rules []*CompiledRule
	byID  map[string]*CompiledRule
}

// NewCatalog indexes compiled rules. Duplicate IDs are an error.
func NewCatalog(compiled []*CompiledRule) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*CompiledRule, len(compiled))}
	for _, r := range compiled {
		if _, dup := c.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate rule id %q", r.ID)
		}
		c.byID[r.ID] = r
		c.rules = append(c.rules, r)
	}
	sort.Slice(c.rules, func(i, j int) bool { return c.rules[i].ID < c.rules[j].ID })
	return c, nil
}

// Builtin loads and compiles the embedded rule catalog.
func Builtin() (*Catalog, error) {
	raws, err := LoadFromFS(builtin.FS())
	if err != nil {
		return nil, fmt.Errorf("loading builtin rules: %w", err)
	}
	compiled, errs := CompileAll(raws)
	if len(errs) > 0 {
		return nil, fmt.Errorf("compiling builtin rules: %w", errors.Join(errs...))
	}
	return NewCatalog(compiled)
}

// Rules returns every rule ordered by ID.
func (c *Catalog) Rules() []*CompiledRule {
	out := make([]*CompiledRule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Get looks a rule up by ID.
func (c *Catalog) Get(id string) (*CompiledRule, bool) {
	r, ok := c.byID[id]
	return r, ok
}

func (c *Catalog) Len() int { return len(c.rules) }

// WithOverrides returns a catalog with rule overrides applied. Overrides that
// name unknown rules or carry invalid severities are reported together.
func (c *Catalog) WithOverrides(overrides map[string]RuleOverride) (*Catalog, error) {
	var errs []error
	for id := range overrides {
		if _, ok := c.byID[id]; !ok {
			errs = append(errs, fmt.Errorf("override for unknown rule %q", id))
		}
	}
	applied, ovrErrs := ApplyOverrides(c.rules, overrides)
	errs = append(errs, ovrErrs...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return NewCatalog(applied)
}

// WithCustom returns a catalog extended with the pattern rules found in dir.
func (c *Catalog) WithCustom(dir string) (*Catalog, error) {
	raws, err := LoadFromDir(dir)
	if err != nil {
		return nil, fmt.Errorf("loading custom rules: %w", err)
	}
	compiled, errs := CompileAll(raws)
	for _, r := range compiled {
		if len(r.Patterns) == 0 {
			errs = append(errs, fmt.Errorf("rule %s: custom rules need at least one pattern", r.ID))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("compiling custom rules: %w", errors.Join(errs...))
	}
	return NewCatalog(append(c.Rules(), compiled...))
}
