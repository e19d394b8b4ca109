package parser

import (
	"regexp"
	"strings"

	"github.com/cagmero/ARGUS/internal/types"
)

// Recognizers shared by the DSL and script parsers. They tag expression text
// with the semantic flags detectors reason about.
var (
	balanceRe = regexp.MustCompile(`(?i)(balance|amount|\bamt\b|total|supply|reserve|funds?\b|stake|deposit|collateral|debt|shares|escrow)`)
	addrRe    = regexp.MustCompile(`^[A-Z2-7]{58}$`)

	dslTimeRe     = regexp.MustCompile(`Global\.(latest_timestamp|latestTimestamp\(\)|round\b|round\(\))|\btime\.time\(\)|datetime\.(now|utcnow)\(`)
	dslIdentityRe = regexp.MustCompile(`\b(Txn|txn|Txn\.sender)\.(sender|Sender)\b|\bTxn\.sender\(\)`)
	dslCreatorRe  = regexp.MustCompile(`Global\.(creator_address|creatorAddress\(\))|Application\.creator|\bapp\.creator\b|self\.(owner|admin|creator|manager|governor)\b`)
	dslExternalRe = regexp.MustCompile(`Txn\.(application_args|applicationArgs)|\bBtoi\(Txn\.application_args|\bop\.Txn\.application_args`)
	dslDispatchRe = regexp.MustCompile(`Txn\.(on_completion|onCompletion\(\)|application_id|applicationId\(\)|application_args\[0\]|applicationArgs\[0\]|num_app_args|numAppArgs\(\))|OnComplete(Action)?\.|MethodSignature\(|method_signature\(`)
	dslCreateRe   = regexp.MustCompile(`Txn\.(application_id|applicationId)(\(\))?\s*==\s*(Int\(0\)|UInt64\(0\)|0\b)`)

	jsTimeRe = regexp.MustCompile(`Date\.now\(\)|new Date\(\)|\.getTime\(\)|\bperformance\.now\(\)|['"]last-round['"]|\blastRound\b|\bfirstRound\b|\blatestTimestamp\b`)

	arithRe = regexp.MustCompile("([\\w$.\\[\\]()\"'`]+)\\s*(//|[+\\-*/%])\\s*([\\w$.\\[\\]()\"'`]+)")

	cmpOps = []string{"===", "!==", "==", "!=", "<=", ">=", " not in ", " in ", "<", ">"}
)

// comparison splits an expression on its first top-level comparison operator.
func comparison(expr string) (left, op, right string, ok bool) {
	masked := maskStrings(expr)
	depth := 0
	for i := 0; i < len(masked); i++ {
		switch masked[i] {
		case '(', '[', '{':
			depth++
			continue
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth > 0 {
			continue
		}
		for _, candidate := range cmpOps {
			if !strings.HasPrefix(masked[i:], candidate) {
				continue
			}
			// Skip arrows, shifts and assignment-like operators.
			if candidate == "<" || candidate == ">" {
				if i > 0 && (masked[i-1] == '=' || masked[i-1] == '<' || masked[i-1] == '>' || masked[i-1] == '-') {
					continue
				}
				if i+1 < len(masked) && (masked[i+1] == '<' || masked[i+1] == '>') {
					continue
				}
			}
			return strings.TrimSpace(expr[:i]), strings.TrimSpace(candidate), strings.TrimSpace(expr[i+len(candidate):]), true
		}
	}
	return "", "", "", false
}

// compareFlags derives comparison flags from an operator and its operands'
// flags. side flags are the union of the operand value flags.
func compareFlags(op string, lf, rf types.Flag, left, right string) types.Flag {
	flags := lf | rf
	switch op {
	case "==", "===":
		flags |= types.FlagEquality
	case "!=", "!==":
		flags |= types.FlagEquality | types.FlagNegated
	case "<", ">", "<=", ">=":
		flags |= types.FlagOrdering
	case "in":
		flags |= types.FlagChecked
	case "not in":
		flags |= types.FlagChecked | types.FlagNegated
	}
	if flags.Has(types.FlagEquality) {
		if lf.Has(types.FlagIdentity) && isAddressLiteral(right) || rf.Has(types.FlagIdentity) && isAddressLiteral(left) {
			flags |= types.FlagSentinel
		}
	}
	return flags
}

// isAddressLiteral reports whether expr is a hardcoded account address,
// possibly wrapped in a constructor such as Addr("...") or Account("...").
func isAddressLiteral(expr string) bool {
	expr = strings.TrimSpace(expr)
	if open := strings.IndexByte(expr, '('); open > 0 && strings.HasSuffix(expr, ")") {
		switch strings.TrimSpace(expr[:open]) {
		case "Addr", "Account", "arc4.Address", "Address", "Bytes", "Global.zero_address":
			expr = expr[open+1 : len(expr)-1]
		}
	}
	if s, ok := unquote(expr); ok {
		return addrRe.MatchString(s)
	}
	return false
}

// literalValue returns the value of a literal expression: quoted strings,
// numbers and the DSL literal constructors (Bytes("x"), Int(5), UInt64(5)).
func literalValue(expr string) (string, bool) {
	expr = strings.TrimSpace(expr)
	if s, ok := unquote(expr); ok {
		return s, true
	}
	if isNumber(expr) {
		return expr, true
	}
	if open := strings.IndexByte(expr, '('); open > 0 && strings.HasSuffix(expr, ")") {
		switch strings.TrimSpace(expr[:open]) {
		case "Bytes", "Int", "UInt64", "String", "Addr", "arc4.String", "arc4.UInt64", "Account", "Txn.note":
			inner := expr[open+1 : len(expr)-1]
			parts := splitTopLevel(inner, ',')
			if len(parts) == 0 {
				return "", false
			}
			return literalValue(parts[len(parts)-1])
		}
	}
	return "", false
}

// identifierUsed reports whether any name in names appears as a whole word in expr.
func identifierUsed(expr string, names map[string]bool) bool {
	if len(names) == 0 {
		return false
	}
	masked := maskStrings(expr)
	for i := 0; i < len(masked); {
		if !isIdentByte(masked[i]) || (i > 0 && (isIdentByte(masked[i-1]) || masked[i-1] == '.')) {
			i++
			continue
		}
		id := identAt(masked, i)
		if names[id] {
			return true
		}
		i += len(id)
	}
	return false
}

type arithSite struct {
	off         int
	op          string
	left, right string
}

// arithmetic finds binary arithmetic in expr. Matches may overlap so that
// a - b - c yields both operations. masked is maskStrings(expr).
func arithmetic(expr, masked string) []arithSite {
	var out []arithSite
	for pos := 0; pos < len(masked); {
		m := arithRe.FindStringSubmatchIndex(masked[pos:])
		if m == nil {
			break
		}
		for i := range m {
			m[i] += pos
		}
		pos = m[6]
		op := masked[m[4]:m[5]]
		left, right := expr[m[2]:m[3]], expr[m[6]:m[7]]
		// Call openers, unary signs and *args are not arithmetic.
		if strings.HasSuffix(left, "(") || strings.HasSuffix(left, "[") || op == "*" && strings.HasPrefix(right, "*") {
			continue
		}
		if op == "+" && (strings.HasPrefix(right, "+") || strings.HasSuffix(left, "+")) || op == "-" && (strings.HasPrefix(right, "-") || strings.HasSuffix(left, "-")) {
			continue
		}
		start, end := widenLeft(masked, m[2], m[3]), trimRight(masked, m[6], m[7])
		out = append(out, arithSite{off: start, op: op, left: expr[start:m[3]], right: expr[m[6]:end]})
	}
	return out
}

// widenLeft moves the start of the operand masked[start:end] left until its
// brackets balance, so "balance)" in "f(a, balance) - x" becomes
// "f(a, balance)". The callee name before the opening bracket is included.
func widenLeft(masked string, start, end int) int {
	depth := 0
	for i := end - 1; i >= 0; i-- {
		switch masked[i] {
		case ')', ']', '}':
			depth++
		case '(', '[', '{':
			depth--
		}
		if i > start {
			continue
		}
		if depth < 0 {
			return start
		}
		if depth == 0 {
			for i > 0 && (isIdentByte(masked[i-1]) || masked[i-1] == '.') {
				i--
			}
			return i
		}
	}
	return start
}

// trimRight cuts the operand masked[start:end] at the first closing bracket
// it did not open, so "amount)" in "f(balance - amount)" becomes "amount".
// An operand left open, such as "fee(x" in "a + fee(x, y)", is extended to
// its closing bracket.
func trimRight(masked string, start, end int) int {
	depth := 0
	for i := start; i < len(masked); i++ {
		switch masked[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth == 0 {
				return i
			}
			depth--
			if depth == 0 && i >= end {
				return i + 1
			}
		}
		if i >= end-1 && depth == 0 {
			return end
		}
	}
	return end
}
