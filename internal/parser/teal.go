package parser

import (
	"strconv"
	"strings"

	"github.com/cagmero/ARGUS/internal/types"
)

// carried are the value flags that propagate through stack operations.
const carried = types.FlagTime | types.FlagIdentity | types.FlagCreator | types.FlagBalance |
	types.FlagExternal | types.FlagDispatch

// operand is one entry of the symbolic stack.
type operand struct {
	text  string
	flags types.Flag
	lit   string
	addr  bool
	// line is where the value was pushed.
	line int
}

func literal(text, value string) operand {
	return operand{text: text, flags: types.FlagLiteral, lit: value, addr: addrRe.MatchString(value)}
}

type labelRef struct {
	from  int
	line  int
	label string
}

// tealParser walks TEAL instructions once, splitting them into basic blocks
// and evaluating each block on a symbolic stack. The stack resets at block
// boundaries; scratch slots survive them.
type tealParser struct {
	*builder
	cur         int
	hasCode     bool
	pendingFall int
	line        int
	stack       []operand
	scratch     map[string]operand
	intc        []string
	bytec       []string
	labels      map[string]int
	refs        []labelRef
}

func parseTEAL(b *builder) {
	p := &tealParser{
		builder:     b,
		cur:         -1,
		pendingFall: -1,
		scratch:     make(map[string]operand),
		labels:      make(map[string]int),
	}
	for i, raw := range b.pf.Lines {
		for _, toks := range tealStatements(raw) {
			p.statement(i+1, toks)
		}
	}
	p.finish()
}

// tealStatements tokenizes one source line. Comments are dropped and ';'
// separates statements.
func tealStatements(raw string) [][]string {
	var (
		stmts [][]string
		toks  []string
		cur   strings.Builder
		inStr bool
	)
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inStr {
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(raw) {
				i++
				cur.WriteByte(raw[i])
			} else if c == '"' {
				inStr = false
			}
			continue
		}
		switch {
		case c == '"':
			inStr = true
			cur.WriteByte(c)
		case c == '/' && i+1 < len(raw) && raw[i+1] == '/':
			i = len(raw)
		case c == ';':
			flush()
			if len(toks) > 0 {
				stmts = append(stmts, toks)
				toks = nil
			}
		case c == ' ' || c == '\t' || c == '\r':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	if len(toks) > 0 {
		stmts = append(stmts, toks)
	}
	return stmts
}

func (p *tealParser) statement(line int, toks []string) {
	head := toks[0]
	switch {
	case head == "#pragma":
		if len(toks) >= 3 && toks[1] == "version" {
			v, err := strconv.Atoi(toks[2])
			if err != nil {
				p.warn(line, "invalid pragma version %q", toks[2])
				return
			}
			p.pf.Version = v
		}
		return
	case strings.HasPrefix(head, "#"):
		// #define and friends
		return
	case len(head) > 1 && strings.HasSuffix(head, ":"):
		p.label(line, strings.TrimSuffix(head, ":"))
		if len(toks) == 1 {
			return
		}
		toks = toks[1:]
	}
	p.instruction(line, toks[0], toks[1:])
}

func (p *tealParser) label(line int, name string) {
	if p.cur >= 0 {
		p.close(true)
	}
	p.open(line, name)
	if _, dup := p.labels[name]; dup {
		p.warn(line, "duplicate label %q", name)
		return
	}
	p.labels[name] = p.cur
}

func (p *tealParser) open(line int, label string) {
	id := p.newBlock(label, line)
	if id == 0 {
		p.pf.Blocks[0].Entry = true
	}
	if p.pendingFall >= 0 {
		p.pf.Blocks[p.pendingFall].Fallthrough = id
		p.addSucc(p.pendingFall, id)
		p.pendingFall = -1
	}
	p.cur = id
	p.hasCode = false
	p.stack = p.stack[:0]
}

// close ends the current block. fall reports whether execution can continue
// into the next block without a jump.
func (p *tealParser) close(fall bool) {
	p.pendingFall = -1
	if fall {
		p.pendingFall = p.cur
	}
	p.cur = -1
	p.stack = p.stack[:0]
}

func (p *tealParser) finish() {
	for _, r := range p.refs {
		id, ok := p.labels[r.label]
		if !ok {
			p.warn(r.line, "undefined label %q", r.label)
			continue
		}
		p.addSucc(r.from, id)
	}
}

func (p *tealParser) ref(line int, label string) {
	if label == "" {
		return
	}
	p.refs = append(p.refs, labelRef{from: p.cur, line: line, label: label})
}

func (p *tealParser) push(o operand) {
	if o.line == 0 {
		o.line = p.line
	}
	p.stack = append(p.stack, o)
}

func (p *tealParser) pop() operand {
	if len(p.stack) == 0 {
		return operand{text: "?"}
	}
	o := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	return o
}

func (p *tealParser) reset() {
	p.stack = p.stack[:0]
}

func (p *tealParser) fact(line int, kind types.FactKind, op string) types.Fact {
	return types.Fact{Line: line, Kind: kind, Block: p.cur, Op: op}
}

// valueLine is the line that pushed o, or fallback when unknown.
func valueLine(o operand, fallback int) int {
	if o.line > 0 {
		return o.line
	}
	return fallback
}

func first(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func keyName(o operand) string {
	if o.flags.Has(types.FlagLiteral) && o.lit != "" {
		return o.lit
	}
	return o.text
}

func (p *tealParser) instruction(line int, op string, args []string) {
	if p.cur < 0 {
		p.open(line, "")
	}
	p.hasCode = true
	p.extend(p.cur, line)
	p.line = line

	switch op {
	case "int", "pushint":
		v := first(args)
		p.push(literal(op+" "+v, v))
	case "pushints":
		for _, v := range args {
			p.push(literal("int "+v, v))
		}
	case "byte", "pushbytes":
		p.push(literal(op+" "+strings.Join(args, " "), decodeTealBytes(args)))
	case "pushbytess":
		for _, v := range args {
			p.push(literal("byte "+v, decodeTealBytes([]string{v})))
		}
	case "addr":
		v := first(args)
		o := literal("addr "+v, v)
		o.addr = true
		p.push(o)
	case "method":
		o := literal("method "+first(args), first(args))
		o.flags |= types.FlagDispatch
		p.push(o)
	case "intcblock":
		p.intc = args
	case "bytecblock":
		p.bytec = p.bytec[:0]
		for _, a := range args {
			p.bytec = append(p.bytec, decodeTealBytes([]string{a}))
		}
	case "intc", "intc_0", "intc_1", "intc_2", "intc_3":
		p.push(p.constant(op, args, p.intc))
	case "bytec", "bytec_0", "bytec_1", "bytec_2", "bytec_3":
		p.push(p.constant(op, args, p.bytec))

	case "txn", "txna", "txnas", "gtxn", "gtxna", "gtxnas", "gtxns", "gtxnsa", "gtxnsas",
		"itxn", "itxna", "itxnas", "gitxn", "gitxna", "gitxnas":
		p.txnField(op, args)
	case "global":
		var flags types.Flag
		switch first(args) {
		case "LatestTimestamp", "Round":
			flags = types.FlagTime
		case "CreatorAddress":
			flags = types.FlagCreator
		}
		p.push(operand{text: "global " + first(args), flags: flags})
	case "arg", "arg_0", "arg_1", "arg_2", "arg_3":
		p.push(operand{text: strings.TrimSpace(op + " " + first(args)), flags: types.FlagExternal})
	case "args":
		p.pop()
		p.push(operand{text: "args", flags: types.FlagExternal})

	case "store":
		v := p.pop()
		slot := first(args)
		p.scratch[slot] = v
		if v.flags.Has(types.FlagLiteral) && v.lit != "" {
			f := p.fact(valueLine(v, line), types.FactLiteralAssign, op)
			f.Name, f.Value, f.Flags = "scratch "+slot, v.lit, types.FlagLiteral
			p.emit(f)
		}
	case "load":
		if v, ok := p.scratch[first(args)]; ok {
			p.push(v)
		} else {
			p.push(operand{text: "load " + first(args)})
		}
	case "stores":
		p.pop()
		p.pop()
	case "loads":
		p.pop()
		p.push(operand{text: "loads"})

	case "pop":
		p.pop()
	case "dup":
		v := p.pop()
		p.push(v)
		p.push(v)
	case "swap":
		b, a := p.pop(), p.pop()
		p.push(b)
		p.push(a)
	case "dig":
		n, err := strconv.Atoi(first(args))
		if err != nil || n >= len(p.stack) {
			p.push(operand{text: "dig " + first(args)})
			return
		}
		p.push(p.stack[len(p.stack)-1-n])
	case "uncover", "cover", "bury":
		p.shuffle(op, first(args))

	case "app_global_get":
		k := p.pop()
		p.stateRead(line, op, k, false)
	case "app_global_get_ex":
		k := p.pop()
		p.pop()
		p.stateRead(line, op, k, true)
		p.push(operand{text: "exists"})
	case "app_local_get":
		k := p.pop()
		p.pop()
		p.stateRead(line, op, k, false)
	case "app_local_get_ex":
		k := p.pop()
		p.pop()
		p.pop()
		p.stateRead(line, op, k, true)
		p.push(operand{text: "exists"})
	case "box_get":
		k := p.pop()
		p.stateRead(line, op, k, true)
		p.push(operand{text: "exists"})
	case "box_extract":
		p.pop()
		p.pop()
		k := p.pop()
		p.stateRead(line, op, k, false)
	case "app_global_put", "box_put":
		v, k := p.pop(), p.pop()
		p.stateWrite(line, op, k, &v, nil)
	case "app_local_put":
		v, k, acct := p.pop(), p.pop(), p.pop()
		p.stateWrite(line, op, k, &v, &acct)
	case "box_replace":
		v := p.pop()
		p.pop()
		k := p.pop()
		p.stateWrite(line, op, k, &v, nil)
	case "app_global_del":
		p.stateWrite(line, op, p.pop(), nil, nil)
	case "app_local_del":
		k, acct := p.pop(), p.pop()
		p.stateWrite(line, op, k, nil, &acct)
	case "box_create":
		p.pop()
		p.stateWrite(line, op, p.pop(), nil, nil)
		p.push(operand{text: "created"})
	case "box_del":
		p.stateWrite(line, op, p.pop(), nil, nil)
		p.push(operand{text: "deleted"})

	case "+", "-", "*", "/", "%":
		b, a := p.pop(), p.pop()
		flags := (a.flags | b.flags) & carried
		f := p.fact(line, types.FactArithmetic, op)
		f.Args = []string{a.text, b.text}
		f.Flags = flags
		p.emit(f)
		p.push(operand{text: shorten("("+a.text+" "+op+" "+b.text+")", 120), flags: flags})
	case "==", "!=", "<", ">", "<=", ">=":
		b, a := p.pop(), p.pop()
		p.compare(line, op, a, b)
	case "&&", "||":
		b, a := p.pop(), p.pop()
		p.push(operand{text: "(" + a.text + " " + op + " " + b.text + ")", flags: (a.flags | b.flags) &^ types.FlagLiteral})
	case "!":
		a := p.pop()
		p.push(operand{text: "!" + a.text, flags: (a.flags ^ types.FlagNegated) &^ types.FlagLiteral})
	case "sha256", "keccak256", "sha512_256", "sha3_256", "sumhash512":
		v := p.pop()
		f := p.fact(line, types.FactCall, op)
		f.Name = op
		f.Args = []string{v.text}
		f.Flags = v.flags & carried
		p.emit(f)
		p.push(operand{text: op + "(" + v.text + ")", flags: v.flags & carried})

	case "assert":
		c := p.pop()
		f := p.fact(line, types.FactGuard, op)
		f.Value = c.text
		f.Flags = c.flags &^ types.FlagLiteral
		p.emit(f)
	case "bnz", "bz":
		c := p.pop()
		flags := c.flags &^ types.FlagLiteral
		if op == "bz" {
			flags ^= types.FlagNegated
		}
		kind := types.FactBranch
		if flags.Has(types.FlagEquality) {
			kind = types.FactBranchEq
		}
		f := p.fact(line, kind, op)
		f.Name = first(args)
		f.Value = c.text
		f.Flags = flags
		p.emit(f)
		p.ref(line, first(args))
		p.close(true)
	case "b", "callsub":
		f := p.fact(line, types.FactTransfer, op)
		f.Name = first(args)
		p.emit(f)
		p.ref(line, first(args))
		p.close(op == "callsub")
	case "retsub":
		p.emit(p.fact(line, types.FactTransfer, op))
		p.close(false)
	case "return":
		v := p.pop()
		f := p.fact(line, types.FactTransfer, op)
		f.Value = v.text
		if v.flags.Has(types.FlagLiteral) {
			if v.lit == "0" {
				f.Flags = types.FlagReject
			} else {
				f.Flags = types.FlagApprove
			}
		}
		p.emit(f)
		p.close(false)
	case "err":
		f := p.fact(line, types.FactTransfer, op)
		f.Flags = types.FlagReject
		p.emit(f)
		p.close(false)
	case "switch", "match":
		sel := p.pop()
		if op == "match" {
			for range args {
				p.pop()
			}
		}
		f := p.fact(line, types.FactTransfer, op)
		f.Args = args
		f.Value = sel.text
		f.Flags = sel.flags&carried | types.FlagDispatch
		p.emit(f)
		for _, l := range args {
			p.ref(line, l)
		}
		p.close(true)

	case "itxn_field":
		v := p.pop()
		f := p.fact(line, types.FactAssign, op)
		f.Name = "itxn." + first(args)
		f.Value = v.text
		f.Flags = v.flags & (carried | types.FlagLiteral)
		p.emit(f)

	default:
		a, ok := tealOps[op]
		if !ok {
			p.warn(line, "unknown opcode %q", op)
			p.reset()
			return
		}
		if a.pop < 0 || a.push < 0 {
			p.reset()
			return
		}
		var flags types.Flag
		for i := 0; i < a.pop; i++ {
			flags |= p.pop().flags
		}
		for i := 0; i < a.push; i++ {
			p.push(operand{text: op, flags: flags & carried})
		}
	}
}

func (p *tealParser) constant(op string, args []string, block []string) operand {
	idx := first(args)
	if i := strings.LastIndexByte(op, '_'); i > 0 {
		idx = op[i+1:]
	}
	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 || n >= len(block) {
		return operand{text: op, flags: types.FlagLiteral}
	}
	return literal(op+" ("+block[n]+")", block[n])
}

func (p *tealParser) txnField(op string, args []string) {
	switch op {
	case "txnas", "gtxnas", "gtxns", "gtxnsa", "itxnas", "gitxnas":
		p.pop()
	case "gtxnsas":
		p.pop()
		p.pop()
	}
	field, index := "", ""
	for i, a := range args {
		if a != "" && a[0] >= 'A' && a[0] <= 'Z' {
			field = a
			if i+1 < len(args) {
				index = args[i+1]
			}
			break
		}
	}
	inner := strings.HasPrefix(op, "itxn") || strings.HasPrefix(op, "gitxn")

	var flags types.Flag
	switch field {
	case "Sender":
		if !inner {
			flags = types.FlagIdentity
		}
	case "ApplicationArgs":
		flags = types.FlagExternal
		if index == "0" {
			flags |= types.FlagDispatch
		}
	case "Accounts", "Assets", "Applications", "Note":
		flags = types.FlagExternal
	case "OnCompletion", "NumAppArgs", "ApplicationID":
		flags = types.FlagDispatch
	case "FirstValid", "LastValid", "FirstValidTime":
		flags = types.FlagTime
	case "Amount", "AssetAmount":
		flags = types.FlagBalance | types.FlagExternal
	}
	p.push(operand{text: op + " " + strings.Join(args, " "), flags: flags})
}

func (p *tealParser) shuffle(op, arg string) {
	n, err := strconv.Atoi(arg)
	last := len(p.stack) - 1
	if err != nil || n > last || n < 0 {
		p.reset()
		return
	}
	pos := last - n
	switch op {
	case "uncover":
		v := p.stack[pos]
		p.stack = append(p.stack[:pos], p.stack[pos+1:]...)
		p.stack = append(p.stack, v)
	case "cover":
		v := p.stack[last]
		p.stack = p.stack[:last]
		p.stack = append(p.stack[:pos], append([]operand{v}, p.stack[pos:]...)...)
	case "bury":
		p.stack[pos] = p.stack[last]
		p.stack = p.stack[:last]
	}
}

func (p *tealParser) compare(line int, op string, a, b operand) {
	lf, rf := a.flags&carried, b.flags&carried
	flags := lf | rf
	switch op {
	case "==":
		flags |= types.FlagEquality
	case "!=":
		flags |= types.FlagEquality | types.FlagNegated
	default:
		flags |= types.FlagOrdering
	}
	if flags.Has(types.FlagEquality) {
		if lf.Has(types.FlagIdentity) && b.addr || rf.Has(types.FlagIdentity) && a.addr {
			flags |= types.FlagSentinel
		}
		if strings.Contains(a.text, "ApplicationID") && b.lit == "0" || strings.Contains(b.text, "ApplicationID") && a.lit == "0" {
			flags |= types.FlagCreate
		}
	}
	f := p.fact(line, types.FactCompare, op)
	f.Args = []string{a.text, b.text}
	f.Flags = flags
	p.emit(f)
	p.push(operand{text: shorten("("+a.text+" "+op+" "+b.text+")", 120), flags: flags})
}

func (p *tealParser) stateRead(line int, op string, key operand, checked bool) {
	f := p.fact(line, types.FactStateRead, op)
	f.Name = keyName(key)
	if checked {
		f.Flags = types.FlagChecked
	}
	p.emit(f)

	var flags types.Flag
	if balanceRe.MatchString(f.Name) {
		flags = types.FlagBalance
	}
	p.push(operand{text: "state(" + f.Name + ")", flags: flags})
}

// stateWrite records a write of val under key. acct is the account operand of
// local-state writes; writes to the sender's own account (Accounts[0]) carry
// FlagIdentity.
func (p *tealParser) stateWrite(line int, op string, key operand, val, acct *operand) {
	f := p.fact(line, types.FactStateWrite, op)
	f.Name = keyName(key)
	if val != nil {
		f.Value = val.text
		f.Flags = val.flags & (carried | types.FlagLiteral) &^ types.FlagIdentity
	}
	if acct != nil && (acct.flags.Has(types.FlagIdentity) || acct.lit == "0") {
		f.Flags |= types.FlagIdentity
	}
	p.emit(f)

	if val != nil && val.flags.Has(types.FlagLiteral) && val.lit != "" {
		la := p.fact(valueLine(*val, line), types.FactLiteralAssign, op)
		la.Name = f.Name
		la.Value = val.lit
		la.Flags = types.FlagLiteral
		p.emit(la)
	}
}
