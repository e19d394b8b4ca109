// Package classify decides which parser handles a file, by extension first and
// by content sniffing when the extension is missing or ambiguous.
package classify

import (
	"bufio"
	"bytes"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cagmero/ARGUS/internal/types"
)

// SniffSize is the number of leading bytes inspected by content sniffing.
const SniffSize = 4096

var extensions = map[string]types.FileType{
	".teal": types.FileTypeContractASM,
	".py":   types.FileTypeEmbeddedDSL,
	".pyi":  types.FileTypeEmbeddedDSL,
	".ts":   types.FileTypeScript,
	".tsx":  types.FileTypeScript,
	".mts":  types.FileTypeScript,
	".cts":  types.FileTypeScript,
	".js":   types.FileTypeScript,
	".jsx":  types.FileTypeScript,
	".mjs":  types.FileTypeScript,
	".cjs":  types.FileTypeScript,
}

var (
	tealPragmaRe = regexp.MustCompile(`^#pragma\s+version\s+\d+`)
	tealLabelRe  = regexp.MustCompile(`^[A-Za-z_][\w.]*:$`)
	tealOpRe     = regexp.MustCompile(`^(txn|txna|gtxn|global|int|byte|pushint|pushbytes|app_global_(get|put)|callsub|retsub|bnz|bz|b|err|return|assert)\b`)

	pyImportRe    = regexp.MustCompile(`^(from\s+(pyteal|algopy|beaker|algosdk)(\.\w+)*\s+import\b|import\s+(pyteal|algopy|beaker|algosdk)\b)`)
	pyDecoratorRe = regexp.MustCompile(`^@(\w+\.)?(abimethod|baremethod|subroutine|Subroutine|external|create|method)\b`)
	pyDefRe       = regexp.MustCompile(`^(async\s+)?def\s+\w+\s*\(.*\)\s*(->\s*[^:]+)?:\s*$`)
	pyClassRe     = regexp.MustCompile(`^class\s+\w+(\(.*\))?:\s*$`)

	jsImportRe  = regexp.MustCompile(`^import\s+.*\s+from\s+['"][^'"]+['"]`)
	jsRequireRe = regexp.MustCompile(`\brequire\(\s*['"][^'"]+['"]\s*\)`)
	jsExportRe  = regexp.MustCompile(`^export\s+(default\s+)?(const|let|function|class|async|interface|type)\b`)
	jsDeclRe    = regexp.MustCompile(`^(const|let|var)\s+[\w${}\[\], ]+\s*=`)
)

// ByExtension returns the type implied by the path's extension alone.
func ByExtension(path string) types.FileType {
	if ft, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return ft
	}
	return types.FileTypeUnknown
}

// Classify returns the file type for path given the leading bytes of its content.
func Classify(path string, head []byte) types.FileType {
	if ft := ByExtension(path); ft != types.FileTypeUnknown {
		return ft
	}
	return Sniff(head)
}

// Sniff inspects content for language fingerprints.
func Sniff(head []byte) types.FileType {
	if len(head) > SniffSize {
		head = head[:SniffSize]
	}
	if bytes.HasPrefix(head, []byte("#!")) {
		first, _, _ := bytes.Cut(head, []byte("\n"))
		switch {
		case bytes.Contains(first, []byte("python")):
			return types.FileTypeEmbeddedDSL
		case bytes.Contains(first, []byte("node")), bytes.Contains(first, []byte("deno")), bytes.Contains(first, []byte("ts-node")):
			return types.FileTypeScript
		}
	}

	var score [4]int
	firstSignificant := true
	sc := bufio.NewScanner(bytes.NewReader(head))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if firstSignificant {
			firstSignificant = false
			if tealPragmaRe.MatchString(line) {
				return types.FileTypeContractASM
			}
		}
		switch {
		case pyImportRe.MatchString(line):
			score[types.FileTypeEmbeddedDSL] += 3
		case pyDecoratorRe.MatchString(line):
			score[types.FileTypeEmbeddedDSL] += 2
		case pyDefRe.MatchString(line), pyClassRe.MatchString(line):
			score[types.FileTypeEmbeddedDSL]++
		case jsImportRe.MatchString(line), jsRequireRe.MatchString(line):
			score[types.FileTypeScript] += 3
		case jsExportRe.MatchString(line):
			score[types.FileTypeScript] += 2
		case jsDeclRe.MatchString(line):
			score[types.FileTypeScript]++
		case tealLabelRe.MatchString(line), tealOpRe.MatchString(line):
			score[types.FileTypeContractASM]++
		}
	}

	best, bestScore := types.FileTypeUnknown, 1
	for _, ft := range []types.FileType{types.FileTypeContractASM, types.FileTypeEmbeddedDSL, types.FileTypeScript} {
		if score[ft] > bestScore {
			best, bestScore = ft, score[ft]
		}
	}
	return best
}

// Decodable reports whether content can be treated as text.
func Decodable(content []byte) bool {
	if bytes.IndexByte(content, 0) >= 0 {
		return false
	}
	return utf8.Valid(content)
}
