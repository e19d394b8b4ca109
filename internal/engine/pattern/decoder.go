package pattern

import (
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"github.com/cagmero/ARGUS/internal/rules"
	"github.com/cagmero/ARGUS/internal/types"
)

var (
	base64Re = regexp.MustCompile(`[A-Za-z0-9+/]{16,}={0,2}`)
	hexRe    = regexp.MustCompile(`(?:0x)?[0-9a-fA-F]{16,}`)
)

// minDecoded is the shortest decoded payload worth matching.
const minDecoded = 8

// DecodeAndRescan finds base64 and hex blobs in pf's lines, decodes them and
// matches the decoded text against compiled. Matches are reported on the line
// holding the blob.
func DecodeAndRescan(pf *types.ParsedFile, compiled []*rules.CompiledRule) []Match {
	var matches []Match
	for i, line := range pf.Lines {
		for _, blob := range base64Re.FindAllString(line, -1) {
			decoded, err := base64.StdEncoding.DecodeString(blob)
			if err != nil {
				decoded, err = base64.URLEncoding.DecodeString(blob)
				if err != nil {
					continue
				}
			}
			matches = append(matches, rescan(decoded, i+1, compiled, "base64")...)
		}
		for _, blob := range hexRe.FindAllString(line, -1) {
			blob = strings.TrimPrefix(blob, "0x")
			if len(blob)%2 != 0 {
				continue
			}
			decoded, err := hex.DecodeString(blob)
			if err != nil {
				continue
			}
			matches = append(matches, rescan(decoded, i+1, compiled, "hex")...)
		}
	}
	return matches
}

func rescan(decoded []byte, line int, compiled []*rules.CompiledRule, encoding string) []Match {
	if len(decoded) < minDecoded || !isPrintable(decoded) {
		return nil
	}
	var matches []Match
	for _, rule := range compiled {
		for _, text := range strings.Split(string(decoded), "\n") {
			if rule.Matches(text) {
				matches = append(matches, Match{
					RuleID:   rule.ID,
					RuleName: rule.Name,
					Line:     line,
					Text:     excerpt(text),
					Encoding: encoding,
				})
				break
			}
		}
	}
	return matches
}

func isPrintable(data []byte) bool {
	printable := 0
	for _, b := range data {
		if unicode.IsPrint(rune(b)) || b == '\n' || b == '\r' || b == '\t' {
			printable++
		}
	}
	return float64(printable)/float64(len(data)) > 0.7
}
