package parser_test

import (
	"testing"

	"github.com/cagmero/ARGUS/internal/parser"
	"github.com/cagmero/ARGUS/internal/types"
	"github.com/stretchr/testify/require"
)

const sendScript = `import algosdk, { makePaymentTxnWithSuggestedParamsFromObject as makePay } from "algosdk";

const client = new algosdk.Algodv2("", "https://testnet-api.algonode.cloud", 443);
// eval(process.argv[2]);

async function send(from, to, amount) {
  // fetch params
  const params = await client.getTransactionParams().do();
  const txn = makePay({ from, to, amount, suggestedParams: params });
  try {
    await client.sendRawTransaction(txn).do();
  } catch (e) {
    console.log(` + "`failed to send to ${to}`" + `);
  }
}
`

func callNamed(t *testing.T, pf *types.ParsedFile, name string) types.Fact {
	t.Helper()
	for _, f := range factsOf(pf, types.FactCall) {
		if f.Name == name {
			return f
		}
	}
	require.Failf(t, "call not found", "no call to %s", name)
	return types.Fact{}
}

func TestScriptImports(t *testing.T) {
	pf := parser.Parse("send.ts", types.FileTypeScript, []byte(sendScript))
	require.Empty(t, pf.Warnings)

	imp := factAt(t, pf, types.FactImport, 1)
	require.Equal(t, "algosdk", imp.Name)
	require.ElementsMatch(t, []string{"makePay", "algosdk"}, imp.Args)
	require.True(t, pf.Imports("algosdk"))
}

func TestScriptCommentedCodeIgnored(t *testing.T) {
	pf := parser.Parse("send.ts", types.FileTypeScript, []byte(sendScript))
	for _, f := range factsOf(pf, types.FactCall) {
		require.NotEqual(t, "eval", f.Name)
	}
}

func TestScriptClientCallResolution(t *testing.T) {
	pf := parser.Parse("send.ts", types.FileTypeScript, []byte(sendScript))

	do := callNamed(t, pf, "algosdk.Algodv2.getTransactionParams.do")
	require.Equal(t, 8, do.Line)
	require.True(t, do.Flags.Has(types.FlagAwait))
	require.False(t, do.Flags.Has(types.FlagGuarded))
	require.Equal(t, "send", pf.Blocks[do.Block].Label)

	pay := callNamed(t, pf, "algosdk.makePaymentTxnWithSuggestedParamsFromObject")
	require.Equal(t, 9, pay.Line)
	require.Equal(t, "makePay", pay.Op)

	ctor := callNamed(t, pf, "algosdk.Algodv2")
	require.Equal(t, "new algosdk.Algodv2", ctor.Op)
}

func TestScriptTryRegion(t *testing.T) {
	pf := parser.Parse("send.ts", types.FileTypeScript, []byte(sendScript))

	send := callNamed(t, pf, "algosdk.Algodv2.sendRawTransaction")
	require.Equal(t, 11, send.Line)
	require.True(t, send.Flags.Has(types.FlagGuarded|types.FlagAwait))

	chained := callNamed(t, pf, "algosdk.Algodv2.sendRawTransaction.do")
	require.True(t, chained.Flags.Has(types.FlagGuarded|types.FlagAwait))

	log := callNamed(t, pf, "console.log")
	require.False(t, log.Flags.Has(types.FlagGuarded), "catch bodies are outside the try region")
}

func TestScriptTemplateInterpolation(t *testing.T) {
	pf := parser.Parse("send.ts", types.FileTypeScript, []byte(sendScript))

	tmpl := factAt(t, pf, types.FactTemplate, 13)
	require.Equal(t, "to", tmpl.Value)
}

func TestScriptPromiseCatch(t *testing.T) {
	src := `const algosdk = require("algosdk");
const indexer = new algosdk.Indexer("", "https://idx.example", 443);
indexer.lookupAccountByID(addr).do().then(r => r).catch(console.error);
`
	pf := parser.Parse("lookup.js", types.FileTypeScript, []byte(src))

	require.Equal(t, "require", factAt(t, pf, types.FactImport, 1).Op)
	call := callNamed(t, pf, "algosdk.Indexer.lookupAccountByID")
	require.True(t, call.Flags.Has(types.FlagGuarded))
	require.False(t, call.Flags.Has(types.FlagAwait))
}

func TestScriptMethodDefinitions(t *testing.T) {
	src := `class Wallet {
  async sign(txn) {
    return txn.signTxn(this.key);
  }
}
`
	pf := parser.Parse("wallet.ts", types.FileTypeScript, []byte(src))

	for _, f := range factsOf(pf, types.FactCall) {
		require.NotEqual(t, "sign", f.Name, "method definitions are not calls")
	}
	call := callNamed(t, pf, "txn.signTxn")
	require.Equal(t, 3, call.Line)
	require.Equal(t, "sign", pf.Blocks[call.Block].Label)
	require.Equal(t, "Wallet", factAt(t, pf, types.FactDeclaration, 1).Name)
}

func TestScriptTimeArithmetic(t *testing.T) {
	src := "const pick = Date.now() % 10;\n"
	pf := parser.Parse("pick.js", types.FileTypeScript, []byte(src))

	mod := factAt(t, pf, types.FactArithmetic, 1)
	require.Equal(t, "%", mod.Op)
	require.True(t, mod.Flags.Has(types.FlagTime))
}

func TestScriptLiteralAssignments(t *testing.T) {
	src := `const MNEMONIC = "abandon abandon abandon";
const config = { apiToken: 'aaaa-bbbb', port: 443 };
`
	pf := parser.Parse("config.js", types.FileTypeScript, []byte(src))

	lits := factsOf(pf, types.FactLiteralAssign)
	require.Len(t, lits, 2)
	require.Equal(t, "MNEMONIC", lits[0].Name)
	require.Equal(t, "abandon abandon abandon", lits[0].Value)
	require.Equal(t, "apiToken", lits[1].Name)
	require.Equal(t, "aaaa-bbbb", lits[1].Value)
	require.Equal(t, 2, lits[1].Line)
}

func TestScriptUnterminatedLiterals(t *testing.T) {
	pf := parser.Parse("bad.js", types.FileTypeScript, []byte("const s = \"abc\nfoo();\n"))
	require.Len(t, pf.Warnings, 1)
	require.Equal(t, 1, pf.Warnings[0].Line)
	require.Contains(t, pf.Warnings[0].Message, "unterminated string")

	pf = parser.Parse("bad.js", types.FileTypeScript, []byte("const s = `abc\n"))
	require.Len(t, pf.Warnings, 1)
	require.Contains(t, pf.Warnings[0].Message, "unterminated template")
}

func TestScriptClientFactoryBinding(t *testing.T) {
	src := `import { AlgorandClient } from "@algorandfoundation/algokit-utils";

const algorand = AlgorandClient.testNet();
const status = await algorand.client.algod.status().do();
`
	pf := parser.Parse("factory.ts", types.FileTypeScript, []byte(src))
	call := callNamed(t, pf, "@algorandfoundation/algokit-utils.AlgorandClient.testNet.client.algod.status")
	require.Equal(t, 4, call.Line)
	require.True(t, call.Flags.Has(types.FlagAwait))
}
