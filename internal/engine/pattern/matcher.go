// Package pattern runs line-oriented pattern rules, such as those loaded from
// a custom rules directory, over parsed files. Encoded blobs (base64, hex)
// are decoded and matched as well.
package pattern

import (
	"fmt"
	"strings"

	"github.com/cagmero/ARGUS/internal/rules"
	"github.com/cagmero/ARGUS/internal/types"
)

const maxExcerpt = 120

// Match is one line matched by a rule.
type Match struct {
	RuleID   string
	RuleName string
	Line     int
	Text     string
	// Encoding is "base64" or "hex" when the match came from a decoded blob.
	Encoding string
}

// Message renders the match for a report.
func (m Match) Message() string {
	name := m.RuleName
	if name == "" {
		name = m.RuleID
	}
	if m.Encoding != "" {
		return fmt.Sprintf("%s (decoded %s): %s", name, m.Encoding, m.Text)
	}
	return fmt.Sprintf("%s: %s", name, m.Text)
}

// Matcher applies compiled pattern rules line by line.
type Matcher struct {
	rules []*rules.CompiledRule
}

// NewMatcher creates a matcher for the rules that carry patterns.
func NewMatcher(compiled []*rules.CompiledRule) *Matcher {
	m := &Matcher{}
	for _, r := range compiled {
		if len(r.Patterns) > 0 {
			m.rules = append(m.rules, r)
		}
	}
	return m
}

// Applies reports whether any rule covers files of type ft.
func (m *Matcher) Applies(ft types.FileType) bool {
	for _, r := range m.rules {
		if r.Applies(ft) {
			return true
		}
	}
	return false
}

// Match returns every line of pf matched by an applicable rule, followed by
// matches found inside decoded blobs. Under match mode "all" every pattern
// must hit the same line.
func (m *Matcher) Match(pf *types.ParsedFile) []Match {
	var applicable []*rules.CompiledRule
	for _, r := range m.rules {
		if r.Applies(pf.Type) {
			applicable = append(applicable, r)
		}
	}
	if len(applicable) == 0 {
		return nil
	}

	var matches []Match
	for _, rule := range applicable {
		for i, line := range pf.Lines {
			if rule.Matches(line) {
				matches = append(matches, Match{
					RuleID:   rule.ID,
					RuleName: rule.Name,
					Line:     i + 1,
					Text:     excerpt(line),
				})
			}
		}
	}
	return append(matches, DecodeAndRescan(pf, applicable)...)
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxExcerpt {
		return s[:maxExcerpt] + "..."
	}
	return s
}
