package parser_test

import (
	"strings"
	"testing"

	"github.com/cagmero/ARGUS/internal/parser"
	"github.com/cagmero/ARGUS/internal/types"
	"github.com/stretchr/testify/require"
)

func factsOf(pf *types.ParsedFile, kind types.FactKind) []types.Fact {
	var out []types.Fact
	for _, f := range pf.Facts {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func factAt(t *testing.T, pf *types.ParsedFile, kind types.FactKind, line int) types.Fact {
	t.Helper()
	for _, f := range pf.Facts {
		if f.Kind == kind && f.Line == line {
			return f
		}
	}
	require.Failf(t, "fact not found", "no %s fact on line %d", kind, line)
	return types.Fact{}
}

const dispatchProgram = `#pragma version 8
txn ApplicationID
int 0
==
bnz create
txn OnCompletion
int NoOp
==
bnz handle_noop
err
create:
byte "admin_key"
byte "hunter2"
app_global_put
int 1
return
handle_noop:
byte "winner"
global LatestTimestamp
int 100
%
app_global_put
int 1
return
`

func TestTEALBlocks(t *testing.T) {
	pf := parser.Parse("approval.teal", types.FileTypeContractASM, []byte(dispatchProgram))

	require.Equal(t, 8, pf.Version)
	require.Empty(t, pf.Warnings)
	require.Len(t, pf.Blocks, 5)

	require.True(t, pf.Blocks[0].Entry)
	require.Equal(t, 2, pf.Blocks[0].Start)
	require.Equal(t, 5, pf.Blocks[0].End)
	require.Equal(t, 1, pf.Blocks[0].Fallthrough)
	require.ElementsMatch(t, []int{1, 3}, pf.Blocks[0].Succs)

	require.ElementsMatch(t, []int{2, 4}, pf.Blocks[1].Succs)
	require.Empty(t, pf.Blocks[2].Succs, "err terminates")

	require.Equal(t, "create", pf.Blocks[3].Label)
	require.Equal(t, -1, pf.Blocks[3].Fallthrough)
	require.Equal(t, "handle_noop", pf.Blocks[4].Label)
}

func TestTEALCreationBranch(t *testing.T) {
	pf := parser.Parse("approval.teal", types.FileTypeContractASM, []byte(dispatchProgram))

	br := factAt(t, pf, types.FactBranchEq, 5)
	require.Equal(t, "create", br.Name)
	require.True(t, br.Flags.Has(types.FlagCreate|types.FlagEquality|types.FlagDispatch))
	require.False(t, br.Flags.Has(types.FlagNegated))

	oc := factAt(t, pf, types.FactBranchEq, 9)
	require.True(t, oc.Flags.Has(types.FlagDispatch))
	require.False(t, oc.Flags.Has(types.FlagCreate))
}

func TestTEALStateWritesAndLiterals(t *testing.T) {
	pf := parser.Parse("approval.teal", types.FileTypeContractASM, []byte(dispatchProgram))

	w := factAt(t, pf, types.FactStateWrite, 14)
	require.Equal(t, "admin_key", w.Name)
	require.Equal(t, 3, w.Block)
	require.True(t, w.Flags.Has(types.FlagLiteral))

	lit := factAt(t, pf, types.FactLiteralAssign, 13)
	require.Equal(t, "admin_key", lit.Name)
	require.Equal(t, "hunter2", lit.Value)
	require.Equal(t, `byte "hunter2"`, lit.Text)

	winner := factAt(t, pf, types.FactStateWrite, 22)
	require.Equal(t, "winner", winner.Name)
	require.True(t, winner.Flags.Has(types.FlagTime))
}

func TestTEALTimeArithmetic(t *testing.T) {
	pf := parser.Parse("approval.teal", types.FileTypeContractASM, []byte(dispatchProgram))

	mod := factAt(t, pf, types.FactArithmetic, 21)
	require.Equal(t, "%", mod.Op)
	require.True(t, mod.Flags.Has(types.FlagTime))
	require.Equal(t, []string{"global LatestTimestamp", "int 100"}, mod.Args)
}

func TestTEALReturnFlags(t *testing.T) {
	pf := parser.Parse("approval.teal", types.FileTypeContractASM, []byte(dispatchProgram))

	require.True(t, factAt(t, pf, types.FactTransfer, 16).Flags.Has(types.FlagApprove))
	errFact := factAt(t, pf, types.FactTransfer, 10)
	require.Equal(t, "err", errFact.Op)
	require.True(t, errFact.Flags.Has(types.FlagReject))
}

func TestTEALIdentityGuard(t *testing.T) {
	src := "#pragma version 6\ntxn Sender\nglobal CreatorAddress\n==\nassert\nbyte \"owner\"\ntxn Sender\napp_global_put\nint 1\nreturn\n"
	pf := parser.Parse("a.teal", types.FileTypeContractASM, []byte(src))

	g := factAt(t, pf, types.FactGuard, 5)
	require.True(t, g.Flags.Has(types.FlagIdentity|types.FlagCreator|types.FlagEquality))
	require.False(t, g.Flags.Has(types.FlagSentinel))
}

func TestTEALSentinelComparison(t *testing.T) {
	addr := strings.Repeat("A", 58)
	src := "txn Sender\naddr " + addr + "\n==\nbnz admin\nint 0\nreturn\nadmin:\nint 1\nreturn\n"
	pf := parser.Parse("a.teal", types.FileTypeContractASM, []byte(src))

	br := factAt(t, pf, types.FactBranchEq, 4)
	require.True(t, br.Flags.Has(types.FlagSentinel|types.FlagIdentity))
}

func TestTEALBzNegates(t *testing.T) {
	src := "txn Sender\nglobal CreatorAddress\n==\nbz fail\nint 1\nreturn\nfail:\nerr\n"
	pf := parser.Parse("a.teal", types.FileTypeContractASM, []byte(src))
	require.True(t, factAt(t, pf, types.FactBranchEq, 4).Flags.Has(types.FlagNegated|types.FlagIdentity))
}

func TestTEALScratchSurvivesBlocks(t *testing.T) {
	src := "global LatestTimestamp\nstore 1\nb next\nnext:\nload 1\nint 10\n%\npop\nint 1\nreturn\n"
	pf := parser.Parse("a.teal", types.FileTypeContractASM, []byte(src))

	mod := factAt(t, pf, types.FactArithmetic, 7)
	require.True(t, mod.Flags.Has(types.FlagTime))
	require.Equal(t, 1, mod.Block)
}

func TestTEALStackResetsAtBlockBoundary(t *testing.T) {
	src := "global LatestTimestamp\nint 1\nbnz next\nnext:\nint 10\n%\npop\n"
	pf := parser.Parse("a.teal", types.FileTypeContractASM, []byte(src))

	mod := factAt(t, pf, types.FactArithmetic, 6)
	require.False(t, mod.Flags.Has(types.FlagTime), "stack values do not cross block boundaries")
}

func TestTEALLocalWriteToSender(t *testing.T) {
	src := "int 0\nbyte \"balance\"\nint 5\napp_local_put\ntxn Accounts 1\nbyte \"balance\"\nint 5\napp_local_put\n"
	pf := parser.Parse("a.teal", types.FileTypeContractASM, []byte(src))

	require.True(t, factAt(t, pf, types.FactStateWrite, 4).Flags.Has(types.FlagIdentity))
	require.False(t, factAt(t, pf, types.FactStateWrite, 8).Flags.Has(types.FlagIdentity))
}

func TestTEALInnerApprovalProgram(t *testing.T) {
	src := "itxn_begin\ntxna ApplicationArgs 1\nitxn_field ApprovalProgram\nitxn_submit\n"
	pf := parser.Parse("a.teal", types.FileTypeContractASM, []byte(src))

	f := factAt(t, pf, types.FactAssign, 3)
	require.Equal(t, "itxn.ApprovalProgram", f.Name)
	require.True(t, f.Flags.Has(types.FlagExternal))
}

func TestTEALEncodedByteLiterals(t *testing.T) {
	src := "byte base64 c2VjcmV0\nbyte 0x68656c6c6f\nbyte b64(c2VjcmV0)\n"
	pf := parser.Parse("a.teal", types.FileTypeContractASM, []byte(src))
	require.Empty(t, pf.Warnings)

	src = "byte \"api_key\"\nbyte base64 c2VjcmV0\napp_global_put\nbyte \"greeting\"\nbyte 0x68656c6c6f\napp_global_put\n"
	pf = parser.Parse("a.teal", types.FileTypeContractASM, []byte(src))
	require.Equal(t, "secret", factAt(t, pf, types.FactLiteralAssign, 2).Value)
	require.Equal(t, "hello", factAt(t, pf, types.FactLiteralAssign, 5).Value)
}

func TestTEALWarnings(t *testing.T) {
	src := "#pragma version 8\nfrobnicate\nb nowhere\n"
	pf := parser.Parse("a.teal", types.FileTypeContractASM, []byte(src))

	require.Len(t, pf.Warnings, 2)
	require.Equal(t, 2, pf.Warnings[0].Line)
	require.Contains(t, pf.Warnings[0].Message, "frobnicate")
	require.Equal(t, 3, pf.Warnings[1].Line)
	require.Contains(t, pf.Warnings[1].Message, "nowhere")
}

func TestTEALCommentsAndSemicolons(t *testing.T) {
	src := "int 1 // always\nbyte \"a // b\"; pop\nreturn\n"
	pf := parser.Parse("a.teal", types.FileTypeContractASM, []byte(src))
	require.Empty(t, pf.Warnings)
	require.True(t, factAt(t, pf, types.FactTransfer, 3).Flags.Has(types.FlagApprove))
}

func TestParseEmptyAndUnknown(t *testing.T) {
	pf := parser.Parse("empty.teal", types.FileTypeContractASM, nil)
	require.Empty(t, pf.Facts)
	require.Empty(t, pf.Blocks)

	pf = parser.Parse("notes.txt", types.FileTypeUnknown, []byte("hello\n"))
	require.Empty(t, pf.Facts)
	require.Equal(t, []string{"hello"}, pf.Lines)
}
