package parser

import (
	"regexp"
	"strings"

	"github.com/cagmero/ARGUS/internal/types"
)

// pyLogical is one logical Python statement: physical lines joined across
// open brackets, backslash continuations and triple-quoted strings, with
// comments removed.
type pyLogical struct {
	line   int
	indent int
	code   string
	// breaks holds the offsets in code where each following physical line starts.
	breaks []int
}

func (l pyLogical) lineAt(off int) int {
	n := l.line
	for _, b := range l.breaks {
		if off >= b {
			n++
		}
	}
	return n
}

// pyLogicalLines joins physical lines into logical statements.
func pyLogicalLines(b *builder) []pyLogical {
	var (
		out    []pyLogical
		cur    strings.Builder
		breaks []int
		start  int
		indent int
		quote  byte
		triple bool
		depth  int
		tabs   bool
		spaces bool
	)
	flush := func() {
		raw := cur.String()
		code := strings.TrimSpace(raw)
		if code != "" {
			lead := len(raw) - len(strings.TrimLeft(raw, " \t\n"))
			adjusted := make([]int, 0, len(breaks))
			for _, off := range breaks {
				adjusted = append(adjusted, off-lead)
			}
			out = append(out, pyLogical{line: start, indent: indent, code: code, breaks: adjusted})
		}
		cur.Reset()
		breaks = nil
	}

	for i, raw := range b.pf.Lines {
		if cur.Len() == 0 && quote == 0 && depth == 0 {
			trimmed := strings.TrimSpace(raw)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			var usedTabs bool
			indent, usedTabs = leadingIndent(raw)
			if usedTabs {
				tabs = true
			} else if indent > 0 {
				spaces = true
			}
			start = i + 1
		} else {
			breaks = append(breaks, cur.Len())
		}

		continued := false
		for j := 0; j < len(raw); j++ {
			c := raw[j]
			if quote != 0 {
				cur.WriteByte(c)
				switch {
				case c == '\\' && j+1 < len(raw):
					j++
					cur.WriteByte(raw[j])
				case c == quote && !triple:
					quote = 0
				case c == quote && triple && strings.HasPrefix(raw[j:], strings.Repeat(string(quote), 3)):
					cur.WriteString(raw[j+1 : j+3])
					j += 2
					quote, triple = 0, false
				}
				continue
			}
			switch c {
			case '#':
				j = len(raw)
				continue
			case '"', '\'':
				quote = c
				triple = strings.HasPrefix(raw[j:], strings.Repeat(string(c), 3))
				if triple {
					cur.WriteString(raw[j : j+3])
					j += 2
					continue
				}
			case '(', '[', '{':
				depth++
			case ')', ']', '}':
				if depth > 0 {
					depth--
				}
			case '\\':
				if strings.TrimSpace(raw[j+1:]) == "" {
					continued = true
					j = len(raw)
					continue
				}
			}
			cur.WriteByte(c)
		}

		if quote != 0 && !triple {
			b.warn(i+1, "unterminated string literal")
			quote = 0
		}
		if quote != 0 || depth > 0 || continued {
			if quote != 0 {
				cur.WriteByte('\n')
			} else {
				cur.WriteByte(' ')
			}
			continue
		}
		flush()
	}
	if quote != 0 || depth > 0 {
		b.warn(start, "unexpected end of file inside an open bracket or string")
	}
	flush()
	if tabs && spaces {
		b.warn(0, "inconsistent use of tabs and spaces in indentation")
	}
	return out
}

var (
	pyDefRe      = regexp.MustCompile(`^(?:async\s+)?def\s+(\w+)\s*\((.*)\)\s*(?:->\s*.+)?:`)
	pyClassDefRe = regexp.MustCompile(`^class\s+(\w+)\s*(?:\((.*)\))?\s*:`)
	pyImportStRe = regexp.MustCompile(`^import\s+(.+)$`)
	pyFromRe     = regexp.MustCompile(`^from\s+([\w.]+)\s+import\s+(.+)$`)
	pyCallRe     = regexp.MustCompile(`([A-Za-z_]\w*(?:\s*\.\s*[A-Za-z_]\w*)*)\s*\(`)
	pyStateAttr  = regexp.MustCompile(`self\.(\w+)(\.value|\[)`)
	pyApprovalRe = regexp.MustCompile(`\b(approval_program|ApprovalProgram|clear_state_program|ClearStateProgram)\s*[:=,]\s*([^,)]+)`)
	pyStateDecl  = regexp.MustCompile(`^(GlobalState|LocalState|BoxMap|Box|BoxRef|GlobalStateValue|LocalStateValue|ReservedGlobalStateValue)\b`)

	// Decorators marking externally callable methods.
	entryDecorators = map[string]bool{
		"abimethod": true, "arc4.abimethod": true, "baremethod": true, "arc4.baremethod": true,
		"external": true, "Router.method": true, "router.method": true, "app.external": true,
		"create": true, "app.create": true, "opt_in": true, "app.opt_in": true,
		"close_out": true, "app.close_out": true, "update": true, "app.update": true,
		"delete": true, "app.delete": true, "no_op": true, "app.no_op": true,
	}

	// Keywords and builtins never treated as calls.
	pyNotCalls = map[string]bool{
		"if": true, "elif": true, "while": true, "for": true, "return": true, "assert": true,
		"and": true, "or": true, "not": true, "in": true, "is": true, "lambda": true,
		"def": true, "class": true, "with": true, "except": true, "yield": true, "await": true,
		"del": true, "print": true,
	}

	approveExprs = map[string]bool{"Approve()": true, "Int(1)": true, "True": true, "Return(Int(1))": true, "1": true}
	rejectExprs  = map[string]bool{"Reject()": true, "Int(0)": true, "False": true, "Return(Int(0))": true, "0": true}
)

type dslScope struct {
	block      int
	indent     int
	bodyIndent int
	params     map[string]bool
	entry      bool
	dispatched bool
	lastLine   int
}

type dslParser struct {
	*builder
	scopes      []*dslScope
	module      *dslScope
	decorators  []string
	stateFields map[string]string
}

func parseDSL(b *builder) {
	p := &dslParser{
		builder:     b,
		stateFields: make(map[string]string),
	}
	p.module = &dslScope{block: p.newBlock("<module>", 1), indent: -1}
	p.pf.Blocks[0].Entry = true

	for _, l := range pyLogicalLines(b) {
		p.logical(l)
	}
	for len(p.scopes) > 0 {
		p.popScope()
	}
	p.extend(p.module.block, len(p.pf.Lines))
}

func (p *dslParser) scope() *dslScope {
	if n := len(p.scopes); n > 0 {
		return p.scopes[n-1]
	}
	return p.module
}

func (p *dslParser) popScope() {
	s := p.scopes[len(p.scopes)-1]
	p.extend(s.block, s.lastLine)
	p.scopes = p.scopes[:len(p.scopes)-1]
}

func (p *dslParser) logical(l pyLogical) {
	for len(p.scopes) > 0 && l.indent <= p.scope().indent {
		p.popScope()
	}
	s := p.scope()
	if s.bodyIndent < 0 {
		s.bodyIndent = l.indent
	}
	last := l.lineAt(len(l.code))
	for _, open := range p.scopes {
		open.lastLine = last
	}

	code := l.code
	switch {
	case strings.HasPrefix(code, "@"):
		p.decorators = append(p.decorators, compact(code[1:]))
		return
	case pyClassDefRe.MatchString(code):
		m := pyClassDefRe.FindStringSubmatch(code)
		p.emit(types.Fact{Line: l.line, Kind: types.FactDeclaration, Block: s.block, Op: "class", Name: m[1], Args: splitTopLevel(m[2], ',')})
		p.decorators = nil
		return
	case pyDefRe.MatchString(code):
		p.def(l, pyDefRe.FindStringSubmatch(code))
		return
	}
	if _, ok := unquote(code); ok {
		// docstring
		return
	}
	p.statement(l, s, code, 0)
}

func decoratorName(d string) string {
	if open := strings.IndexByte(d, '('); open >= 0 {
		d = d[:open]
	}
	return strings.TrimSpace(d)
}

// isCreateDecorator reports whether a decorator restricts the method to
// application creation: @create, @app.create or create="require".
func isCreateDecorator(decorators []string) bool {
	for _, d := range decorators {
		switch decoratorName(d) {
		case "create", "app.create":
			return true
		}
		if strings.Contains(d, `create="require"`) || strings.Contains(d, `create='require'`) {
			return true
		}
	}
	return false
}

func (p *dslParser) def(l pyLogical, m []string) {
	name := m[1]
	params := make(map[string]bool)
	var names []string
	for _, raw := range splitTopLevel(m[2], ',') {
		param := strings.TrimLeft(raw, "*")
		if i := strings.IndexAny(param, ":="); i >= 0 {
			param = param[:i]
		}
		param = strings.TrimSpace(param)
		if param == "" || param == "self" || param == "cls" || param == "/" {
			continue
		}
		params[param] = true
		names = append(names, param)
	}

	entry := name == "approval_program" || name == "approval"
	for _, d := range p.decorators {
		if entryDecorators[decoratorName(d)] {
			entry = true
		}
	}

	var flags types.Flag
	if entry {
		flags = types.FlagEntry
	} else {
		// Helper parameters are not caller-controlled by themselves.
		params = nil
	}
	id := p.newBlock(name, l.line)
	if name == "create" || name == "on_create" || isCreateDecorator(p.decorators) {
		flags |= types.FlagCreate
	}
	p.emit(types.Fact{Line: l.line, Kind: types.FactDeclaration, Block: id, Op: "def", Name: name, Args: names, Value: strings.Join(p.decorators, ";"), Flags: flags})
	p.decorators = nil
	p.scopes = append(p.scopes, &dslScope{block: id, indent: l.indent, bodyIndent: -1, params: params, entry: entry, lastLine: l.line})
}

func (p *dslParser) exprFlags(expr string, s *dslScope) types.Flag {
	var flags types.Flag
	if dslTimeRe.MatchString(expr) {
		flags |= types.FlagTime
	}
	if dslIdentityRe.MatchString(expr) {
		flags |= types.FlagIdentity
	}
	if dslCreatorRe.MatchString(expr) {
		flags |= types.FlagCreator
	}
	if dslExternalRe.MatchString(expr) || identifierUsed(expr, s.params) {
		flags |= types.FlagExternal
	}
	if dslDispatchRe.MatchString(expr) {
		flags |= types.FlagDispatch
	}
	if dslCreateRe.MatchString(expr) {
		flags |= types.FlagCreate
	}
	if balanceRe.MatchString(expr) {
		flags |= types.FlagBalance
	}
	return flags
}

func (p *dslParser) condFlags(cond string, s *dslScope) types.Flag {
	cond = strings.TrimSpace(cond)
	negated := false
	if strings.HasPrefix(cond, "not ") {
		negated = true
		cond = strings.TrimSpace(cond[4:])
	}
	var flags types.Flag
	if left, op, right, ok := comparison(cond); ok {
		flags = compareFlags(op, p.exprFlags(left, s), p.exprFlags(right, s), left, right)
	} else {
		flags = p.exprFlags(cond, s)
	}
	flags |= p.exprFlags(cond, s) & types.FlagCreate
	if negated {
		flags ^= types.FlagNegated
	}
	return flags
}

// pyCondition splits "if cond: rest" style headers.
func pyCondition(code string) (kw, cond, rest string, off int, ok bool) {
	for _, k := range []string{"if", "elif", "while"} {
		if !strings.HasPrefix(code, k+" ") && !strings.HasPrefix(code, k+"(") {
			continue
		}
		masked := maskStrings(code)
		depth := 0
		for i := len(k); i < len(masked); i++ {
			switch masked[i] {
			case '(', '[', '{':
				depth++
			case ')', ']', '}':
				if depth > 0 {
					depth--
				}
			case ':':
				if depth == 0 && (i+1 >= len(masked) || masked[i+1] != '=') {
					body := code[len(k):i]
					trimmed := strings.TrimSpace(body)
					return k, trimmed, strings.TrimSpace(code[i+1:]), len(k) + strings.Index(body, trimmed), true
				}
			}
		}
	}
	return "", "", "", 0, false
}

func (p *dslParser) fact(l pyLogical, s *dslScope, off int, kind types.FactKind, op string) types.Fact {
	return types.Fact{Line: l.lineAt(off), Kind: kind, Block: s.block, Op: op}
}

// statement handles code, which starts at offset base of l.code.
func (p *dslParser) statement(l pyLogical, s *dslScope, code string, base int) {
	switch {
	case pyFromRe.MatchString(code):
		m := pyFromRe.FindStringSubmatch(code)
		f := p.fact(l, s, base, types.FactImport, "from")
		f.Name = m[1]
		for _, n := range splitTopLevel(strings.Trim(m[2], "() "), ',') {
			if fields := strings.Fields(n); len(fields) > 0 {
				f.Args = append(f.Args, fields[0])
			}
		}
		p.emit(f)
		return
	case pyImportStRe.MatchString(code):
		for _, n := range splitTopLevel(pyImportStRe.FindStringSubmatch(code)[1], ',') {
			fields := strings.Fields(n)
			if len(fields) == 0 {
				continue
			}
			f := p.fact(l, s, base, types.FactImport, "import")
			f.Name = fields[0]
			p.emit(f)
		}
		return
	case code == "return" || strings.HasPrefix(code, "return ") || strings.HasPrefix(code, "return("):
		value := strings.TrimSpace(strings.TrimPrefix(code, "return"))
		p.returnStmt(l, s, base, value)
		p.expressions(l, s, value, base+len(code)-len(value))
		return
	case strings.HasPrefix(code, "assert ") || strings.HasPrefix(code, "assert("):
		cond := strings.TrimSpace(strings.TrimPrefix(code, "assert"))
		if parts := splitTopLevel(cond, ','); len(parts) > 0 {
			cond = parts[0]
		}
		f := p.fact(l, s, base, types.FactGuard, "assert")
		f.Value = shorten(cond, 160)
		f.Flags = p.condFlags(cond, s)
		p.emit(f)
		p.expressions(l, s, cond, base+strings.Index(code, cond))
		return
	case strings.HasPrefix(code, "del "):
		for _, target := range splitTopLevel(code[4:], ',') {
			if name, ok := p.stateTarget(target); ok {
				f := p.fact(l, s, base, types.FactStateWrite, "del")
				f.Name = name
				f.Flags = p.exprFlags(target, s) & types.FlagIdentity
				p.emit(f)
			}
		}
		return
	}

	if kw, cond, rest, off, ok := pyCondition(code); ok {
		p.emit(p.branch(l, s, base+off, kw, cond))
		p.expressions(l, s, cond, base+off)
		if rest != "" {
			p.statement(l, s, rest, base+strings.LastIndex(code, rest))
		}
		return
	}

	if target, op, rhs, ok := splitAssign(code); ok {
		p.assignment(l, s, base, target, op, rhs)
		if op != ":" {
			p.expressions(l, s, rhs, base+len(code)-len(rhs))
		}
		return
	}
	p.expressions(l, s, code, base)
}

// branch builds a condition fact; callers emit it.
func (p *dslParser) branch(l pyLogical, s *dslScope, off int, op, cond string) types.Fact {
	flags := p.condFlags(cond, s)
	kind := types.FactBranch
	if flags.Has(types.FlagEquality) {
		kind = types.FactBranchEq
	}
	if flags.Has(types.FlagDispatch) {
		s.dispatched = true
	}
	f := p.fact(l, s, off, kind, op)
	f.Value = shorten(cond, 160)
	f.Flags = flags
	return f
}

func (p *dslParser) returnStmt(l pyLogical, s *dslScope, off int, value string) {
	f := p.fact(l, s, off, types.FactTransfer, "return")
	f.Value = shorten(value, 160)
	switch {
	case approveExprs[value]:
		f.Flags |= types.FlagApprove
	case rejectExprs[value]:
		f.Flags |= types.FlagReject
	}
	if s.dispatched && l.indent == s.bodyIndent {
		f.Flags |= types.FlagFallback
	}
	p.emit(f)
}

// splitAssign finds a top-level assignment. op is "=", an augmented operator
// such as "-=", or ":" for a bare annotated declaration.
func splitAssign(code string) (target, op, rhs string, ok bool) {
	masked := maskStrings(code)
	depth := 0
	for i := 0; i < len(masked); i++ {
		c := masked[i]
		switch c {
		case '(', '[', '{':
			depth++
			continue
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth > 0 || c != '=' {
			continue
		}
		if i+1 < len(masked) && masked[i+1] == '=' {
			i++
			continue
		}
		if i > 0 && strings.IndexByte("=!<>:", masked[i-1]) >= 0 {
			continue
		}
		lhs := code[:i]
		op = "="
		if i > 0 && strings.IndexByte("+-*/%&|^", masked[i-1]) >= 0 {
			op = string(masked[i-1]) + "="
			lhs = code[:i-1]
			if op == "/=" && i > 1 && masked[i-2] == '/' {
				op = "//="
				lhs = code[:i-2]
			}
		}
		target = strings.TrimSpace(lhs)
		if colon := strings.IndexByte(maskStrings(target), ':'); colon > 0 && op == "=" && !strings.Contains(target[:colon], "[") {
			target = strings.TrimSpace(target[:colon])
		}
		if target == "" || strings.ContainsAny(target, "()") {
			return "", "", "", false
		}
		return target, op, strings.TrimSpace(code[i+1:]), true
	}
	if colon := strings.IndexByte(masked, ':'); colon > 0 && !strings.ContainsAny(masked[:colon], "([{ ") {
		return strings.TrimSpace(code[:colon]), ":", strings.TrimSpace(code[colon+1:]), true
	}
	return "", "", "", false
}

// stateTarget reports whether an assignment target writes contract state and
// returns the state key.
func (p *dslParser) stateTarget(target string) (string, bool) {
	target = strings.TrimSpace(target)
	if !strings.HasPrefix(target, "self.") {
		return "", false
	}
	name := identAt(target, len("self."))
	if name == "" {
		return "", false
	}
	rest := target[len("self.")+len(name):]
	if rest == "" || rest == ".value" || strings.HasPrefix(rest, "[") {
		return name, true
	}
	return "", false
}

func (p *dslParser) assignment(l pyLogical, s *dslScope, base int, target, op, rhs string) {
	if op == ":" {
		if pyStateDecl.MatchString(rhs) {
			p.declareState(target, rhs)
		}
		return
	}
	fact := func(kind types.FactKind) types.Fact {
		f := p.fact(l, s, base, kind, op)
		f.Name = target
		return f
	}
	if pyStateDecl.MatchString(rhs) {
		p.declareState(target, rhs)
		f := fact(types.FactDeclaration)
		f.Op = "state"
		f.Value = shorten(rhs, 160)
		p.emit(f)
		return
	}

	rhsFlags := p.exprFlags(rhs, s)
	if op == "=" {
		f := fact(types.FactAssign)
		f.Value = shorten(rhs, 160)
		f.Flags = rhsFlags
		if end := l.lineAt(len(l.code)); end > f.Line {
			f.End = end
		}
		p.emit(f)
		if v, ok := literalValue(rhs); ok {
			la := fact(types.FactLiteralAssign)
			la.Value = v
			la.Flags = types.FlagLiteral
			p.emit(la)
		}
	} else {
		f := fact(types.FactArithmetic)
		f.Op = strings.TrimSuffix(op, "=")
		f.Args = []string{target, shorten(rhs, 160)}
		f.Flags = rhsFlags | p.exprFlags(target, s)
		p.emit(f)
	}

	name, ok := p.stateTarget(target)
	if !ok || s == p.module {
		return
	}
	_, declared := p.stateFields[name]
	if declared || strings.HasSuffix(target, ".value") || s.entry {
		f := fact(types.FactStateWrite)
		f.Name = name
		f.Value = shorten(rhs, 160)
		// Writes keyed by the caller's own account are scoped to the caller.
		f.Flags = rhsFlags&^types.FlagIdentity | p.exprFlags(target, s)&types.FlagIdentity
		p.emit(f)
	}
}

func (p *dslParser) declareState(target, rhs string) {
	name := strings.TrimPrefix(strings.TrimSpace(target), "self.")
	kind := "global"
	switch {
	case strings.HasPrefix(rhs, "LocalState"):
		kind = "local"
	case strings.HasPrefix(rhs, "Box"):
		kind = "box"
	}
	p.stateFields[name] = kind
}

// expressions records calls, arithmetic, state reads and inner-transaction
// program assignments found in expr, which starts at offset base of l.code.
func (p *dslParser) expressions(l pyLogical, s *dslScope, expr string, base int) {
	if expr == "" {
		return
	}
	masked := maskStrings(expr)

	for _, m := range pyCallRe.FindAllStringSubmatchIndex(masked, -1) {
		name := strings.Join(strings.Fields(masked[m[2]:m[3]]), "")
		if pyNotCalls[name] {
			continue
		}
		open := m[1] - 1
		end := matchParen(masked, open)
		if end < 0 {
			end = len(expr)
		}
		p.call(l, s, base+m[2], name, expr[open+1:end], base+open+1)
	}

	for _, a := range arithmetic(expr, masked) {
		f := p.fact(l, s, base+a.off, types.FactArithmetic, a.op)
		f.Args = []string{shorten(a.left, 120), shorten(a.right, 120)}
		f.Flags = p.exprFlags(a.left, s) | p.exprFlags(a.right, s)
		p.emit(f)
	}

	for _, m := range pyStateAttr.FindAllStringSubmatchIndex(masked, -1) {
		name := masked[m[2]:m[3]]
		if _, ok := p.stateFields[name]; !ok {
			continue
		}
		if after := strings.TrimSpace(masked[m[1]:]); strings.HasPrefix(after, "=") && !strings.HasPrefix(after, "==") {
			continue
		}
		accessor := expr[m[0]:m[1]]
		if masked[m[4]:m[5]] == "[" {
			if end := matchParen(masked, m[5]-1); end > 0 {
				accessor = expr[m[0] : end+1]
			} else {
				accessor = strings.TrimSuffix(accessor, "[")
			}
		}
		f := p.fact(l, s, base+m[0], types.FactStateRead, shorten(accessor, 80))
		f.Name = name
		p.emit(f)
	}

	for _, m := range pyApprovalRe.FindAllStringSubmatchIndex(expr, -1) {
		value := strings.TrimSpace(expr[m[4]:m[5]])
		f := p.fact(l, s, base+m[0], types.FactAssign, "itxn_field")
		f.Name = "itxn." + expr[m[2]:m[3]]
		f.Value = value
		f.Flags = p.exprFlags(value, s)
		if _, ok := literalValue(value); ok {
			f.Flags |= types.FlagLiteral
		}
		p.emit(f)
	}
}

// call records one call expression. argText starts at offset argBase of l.code.
func (p *dslParser) call(l pyLogical, s *dslScope, off int, name, argText string, argBase int) {
	spans := splitSpans(argText, ',')
	args := make([]string, len(spans))
	for i, sp := range spans {
		args[i] = sp.text
	}

	f := p.fact(l, s, off, types.FactCall, name)
	f.Name = name
	f.Value = shorten(argText, 160)
	f.Flags = p.exprFlags(argText, s)
	for _, a := range args {
		if v, ok := literalValue(a); ok {
			f.Args = append(f.Args, v)
		} else {
			f.Args = append(f.Args, shorten(a, 80))
		}
	}
	if len(args) > 0 {
		if _, ok := literalValue(args[0]); ok {
			f.Flags |= types.FlagLiteral
		}
	}
	p.emit(f)

	key := func(i int) string {
		if i >= len(args) {
			return ""
		}
		if v, ok := literalValue(args[i]); ok {
			return v
		}
		return args[i]
	}
	read := func(k string, checked bool) {
		r := p.fact(l, s, off, types.FactStateRead, name)
		r.Name = k
		if checked {
			r.Flags = types.FlagChecked
		}
		p.emit(r)
	}
	write := func(k string, acct, value int) {
		w := p.fact(l, s, off, types.FactStateWrite, name)
		w.Name = k
		if value >= 0 && value < len(args) {
			w.Value = shorten(args[value], 160)
			w.Flags = p.exprFlags(args[value], s) &^ types.FlagIdentity
		}
		if acct >= 0 && acct < len(args) {
			w.Flags |= p.exprFlags(args[acct], s) & types.FlagIdentity
		}
		p.emit(w)
		if value >= 0 && value < len(args) {
			if v, ok := literalValue(args[value]); ok {
				la := p.fact(l, s, off, types.FactLiteralAssign, name)
				la.Name, la.Value, la.Flags = k, v, types.FlagLiteral
				p.emit(la)
			}
		}
	}

	switch name {
	case "App.globalGet":
		read(key(0), false)
	case "App.globalGetEx":
		read(key(1), true)
	case "App.localGet":
		read(key(1), false)
	case "App.localGetEx":
		read(key(2), true)
	case "App.globalPut":
		write(key(0), -1, 1)
	case "App.localPut":
		write(key(1), 0, 2)
	case "App.globalDel":
		write(key(0), -1, -1)
	case "App.localDel":
		write(key(1), 0, -1)
	case "App.box_put", "BoxPut":
		write(key(0), -1, 1)
	case "op.AppGlobal.get_bytes", "op.AppGlobal.get_uint64":
		read(key(0), false)
	case "op.AppGlobal.get_ex_bytes", "op.AppGlobal.get_ex_uint64":
		read(key(1), true)
	case "op.AppLocal.get_bytes", "op.AppLocal.get_uint64":
		read(key(1), false)
	case "op.AppLocal.get_ex_bytes", "op.AppLocal.get_ex_uint64":
		read(key(2), true)
	case "op.AppGlobal.put":
		write(key(0), -1, 1)
	case "op.AppGlobal.delete":
		write(key(0), -1, -1)
	case "op.AppLocal.put":
		write(key(1), 0, 2)
	case "op.AppLocal.delete":
		write(key(1), 0, -1)
	case "Assert":
		if len(spans) > 0 {
			g := p.fact(l, s, argBase+spans[0].off, types.FactGuard, name)
			g.Value = shorten(args[0], 160)
			g.Flags = p.condFlags(args[0], s)
			p.emit(g)
		}
	case "If":
		if len(spans) > 0 {
			p.emit(p.branch(l, s, argBase+spans[0].off, name, args[0]))
		}
	case "Cond":
		p.condArms(l, s, spans, argBase)
	default:
		if strings.HasPrefix(name, "self.") && (strings.HasSuffix(name, ".get") || strings.HasSuffix(name, ".maybe")) {
			field := strings.TrimPrefix(name[:strings.LastIndexByte(name, '.')], "self.")
			if _, ok := p.stateFields[field]; ok {
				read(field, true)
			}
		}
	}
}

// condArms handles the [condition, body] arms of a PyTeal Cond. An
// always-true arm that approves is the dispatch fallback.
func (p *dslParser) condArms(l pyLogical, s *dslScope, arms []span, argBase int) {
	for _, arm := range arms {
		inner := strings.TrimSpace(arm.text)
		if !strings.HasPrefix(inner, "[") || !strings.HasSuffix(inner, "]") {
			continue
		}
		parts := splitSpans(inner[1:len(inner)-1], ',')
		if len(parts) < 2 {
			continue
		}
		off := argBase + arm.off + 1 + parts[0].off
		cond, body := parts[0].text, parts[1].text
		if cond == "Int(1)" {
			f := p.fact(l, s, off, types.FactTransfer, "cond-default")
			f.Value = shorten(body, 160)
			f.Flags = types.FlagFallback | types.FlagDispatch
			if approveExprs[body] {
				f.Flags |= types.FlagApprove
			}
			p.emit(f)
			continue
		}
		f := p.branch(l, s, off, "Cond", cond)
		if identAt(body, 0) == body {
			f.Name = body
		}
		if end := l.lineAt(argBase + arm.off + len(arm.text) - 1); end > f.Line {
			f.End = end
		}
		p.emit(f)
	}
}
