package adapter

import (
	"strings"

	"github.com/cagmero/ARGUS/internal/types"
)

// defaultCWE is used when neither the tool nor the lookup table names one.
const defaultCWE = "CWE-693"

// checkInfo maps a tool detector to a CWE and a remediation hint.
type checkInfo struct {
	cwe string
	fix string
}

var tealerChecks = map[string]checkInfo{
	"unprotected-deletable":      {"CWE-284", "Reject DeleteApplication unless the sender is the creator or an admin."},
	"unprotected-updatable":      {"CWE-284", "Reject UpdateApplication unless the sender is the creator or an admin."},
	"group-size-check":           {"CWE-20", "Validate global GroupSize before trusting sibling transactions."},
	"fee-check":                  {"CWE-20", "Bound txn Fee so the account cannot be drained through fees."},
	"rekey-to":                   {"CWE-284", "Assert txn RekeyTo == global ZeroAddress."},
	"can-rekey":                  {"CWE-284", "Assert txn RekeyTo == global ZeroAddress."},
	"close-remainder-to":         {"CWE-284", "Assert txn CloseRemainderTo == global ZeroAddress."},
	"can-close-account":          {"CWE-284", "Assert txn CloseRemainderTo == global ZeroAddress."},
	"asset-close-to":             {"CWE-284", "Assert txn AssetCloseTo == global ZeroAddress."},
	"can-close-asset":            {"CWE-284", "Assert txn AssetCloseTo == global ZeroAddress."},
	"missing-fee-check":          {"CWE-20", "Bound txn Fee so the account cannot be drained through fees."},
	"is-deletable":               {"CWE-284", "Reject DeleteApplication unless the sender is authorized."},
	"is-updatable":               {"CWE-284", "Reject UpdateApplication unless the sender is authorized."},
	"unprotected-deletable-apps": {"CWE-284", "Reject DeleteApplication unless the sender is authorized."},
}

// tealerImpact maps tealer's impact names.
var tealerImpact = map[string]types.Severity{
	"critical":      types.SeverityCritical,
	"high":          types.SeverityHigh,
	"medium":        types.SeverityMedium,
	"low":           types.SeverityLow,
	"informational": types.SeverityInfo,
	"optimization":  types.SeverityInfo,
}

// severityOf maps a tool's severity label through table, defaulting to MEDIUM.
func severityOf(label string, table map[string]types.Severity) types.Severity {
	key := strings.ToLower(strings.TrimSpace(label))
	if sev, ok := table[key]; ok {
		return sev
	}
	if sev, err := types.ParseSeverity(key); err == nil && key != "" {
		return sev
	}
	return types.SeverityMedium
}

// confidenceOf normalizes a confidence label to upper case.
func confidenceOf(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}

// lineOf clamps a reported line into the file.
func lineOf(line int, pf *types.ParsedFile) int {
	if line < 1 {
		return 1
	}
	if n := len(pf.Lines); n > 0 && line > n {
		return n
	}
	return line
}

// finding builds a vulnerability from the common fields, filling the snippet
// from the parsed file when the tool gave none.
func finding(tool string, pf *types.ParsedFile, line int, sev types.Severity, rule, msg string) types.Vulnerability {
	line = lineOf(line, pf)
	return types.Vulnerability{
		File:        pf.Path,
		Line:        line,
		Severity:    sev,
		Tool:        tool,
		RuleID:      rule,
		Message:     msg,
		CodeSnippet: pf.Line(line),
	}
}
