package engine

import (
	"regexp"
	"strings"

	"github.com/cagmero/ARGUS/internal/rules"
	"github.com/cagmero/ARGUS/internal/types"
)

var secretNameRe = regexp.MustCompile(`(?i)(secret|passw(or)?d|passphrase|mnemonic|seed[_-]?phrase|private[_-]?key|priv[_-]?key|api[_-]?(key|token|secret)|admin[_-]?key|access[_-]?(key|token)|auth[_-]?token|bearer|credential)|^sk$`)

// minSecretLen is the shortest literal reported on name alone.
const minSecretLen = 6

type hardcodedSecret struct{ base }

func newHardcodedSecret(r *rules.CompiledRule) Detector { return hardcodedSecret{base{r}} }

func (d hardcodedSecret) Detect(pf *types.ParsedFile) []Hit {
	var hits []Hit
	for _, f := range pf.Facts {
		switch f.Kind {
		case types.FactLiteralAssign:
			if repeated(f.Value) {
				continue
			}
			switch {
			case d.rule.Matches(f.Value):
				hits = append(hits, d.hit(f.Line, "%q is assigned a value matching a known secret format", f.Name))
			case secretNameRe.MatchString(f.Name) && plausibleSecret(f.Value):
				hits = append(hits, d.hit(f.Line, "hardcoded literal assigned to secret-like name %q", f.Name))
			}
		case types.FactCall:
			for _, a := range f.Args {
				if !repeated(a) && d.rule.Matches(a) {
					hits = append(hits, d.hit(f.Line, "%s is called with a literal matching a known secret format", f.Name))
					break
				}
			}
		}
	}
	return hits
}

// plausibleSecret filters values too short or numeric to be credentials.
func plausibleSecret(v string) bool {
	return len(v) >= minSecretLen && !isNumeric(v)
}

// repeated reports whether v is one character repeated, like the local
// sandbox token.
func repeated(v string) bool {
	return v != "" && strings.Count(v, v[:1]) == len(v)
}
