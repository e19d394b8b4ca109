package parser

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cagmero/ARGUS/internal/types"
)

// templateSite is one ${...} interpolation inside a template literal.
type templateSite struct {
	line int
	expr string
}

// scriptSource is a TS/JS file with comments blanked out. plain keeps string
// contents; masked also blanks them. Both keep every offset and newline of
// the original so either can be sliced with positions found in the other.
type scriptSource struct {
	plain  string
	masked string
	starts []int
	sites  []templateSite
}

func (s *scriptSource) lineAt(off int) int {
	return sort.SearchInts(s.starts, off+1)
}

func (s *scriptSource) line(n int) (plain, masked string) {
	start := s.starts[n-1]
	end := len(s.plain)
	if n < len(s.starts) {
		end = s.starts[n] - 1
	}
	return s.plain[start:end], s.masked[start:end]
}

// stripScript runs the character-level pass: comments, strings and template
// literals (with nested interpolations) are recognized and recorded.
func stripScript(b *builder) *scriptSource {
	src := strings.Join(b.pf.Lines, "\n")
	plain := []byte(src)
	masked := []byte(src)

	const (
		modeCode = iota
		modeLineComment
		modeBlockComment
		modeString
	)
	type frame struct {
		template bool
		depth    int
		site     int
		start    int
	}
	var (
		stack      []frame
		sites      []templateSite
		mode       = modeCode
		quote      byte
		line       = 1
		blockStart int
	)
	blank := func(i int) {
		if src[i] != '\n' {
			plain[i], masked[i] = ' ', ' '
		}
	}

	for i := 0; i < len(src); i++ {
		c := src[i]
		if c == '\n' {
			line++
		}
		switch mode {
		case modeLineComment:
			if c == '\n' {
				mode = modeCode
			} else {
				blank(i)
			}
			continue
		case modeBlockComment:
			if c == '*' && i+1 < len(src) && src[i+1] == '/' {
				blank(i)
				blank(i + 1)
				i++
				mode = modeCode
			} else {
				blank(i)
			}
			continue
		case modeString:
			switch {
			case c == '\\' && i+1 < len(src):
				masked[i] = '_'
				i++
				if src[i] == '\n' {
					line++
				} else {
					masked[i] = '_'
				}
			case c == quote:
				mode = modeCode
			case c == '\n':
				b.warn(line-1, "unterminated string literal")
				mode = modeCode
			default:
				masked[i] = '_'
			}
			continue
		}

		if n := len(stack); n > 0 && stack[n-1].template {
			switch {
			case c == '\\' && i+1 < len(src):
				masked[i] = '_'
				i++
				if src[i] == '\n' {
					line++
				} else {
					masked[i] = '_'
				}
			case c == '`':
				stack = stack[:n-1]
			case c == '$' && i+1 < len(src) && src[i+1] == '{':
				sites = append(sites, templateSite{line: line})
				stack = append(stack, frame{site: len(sites) - 1, start: i + 2})
				i++
			case c != '\n':
				masked[i] = '_'
			}
			continue
		}

		switch {
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			mode = modeLineComment
			blank(i)
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			mode = modeBlockComment
			blockStart = line
			blank(i)
			blank(i + 1)
			i++
		case c == '"' || c == '\'':
			mode, quote = modeString, c
		case c == '`':
			stack = append(stack, frame{template: true})
		case c == '{':
			if n := len(stack); n > 0 {
				stack[n-1].depth++
			}
		case c == '}':
			if n := len(stack); n > 0 {
				top := &stack[n-1]
				if top.depth == 0 {
					sites[top.site].expr = strings.TrimSpace(src[top.start:i])
					stack = stack[:n-1]
				} else {
					top.depth--
				}
			}
		}
	}
	if mode == modeBlockComment {
		b.warn(blockStart, "unterminated block comment")
	}
	if len(stack) > 0 {
		b.warn(line, "unterminated template literal")
	}

	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &scriptSource{plain: string(plain), masked: string(masked), starts: starts, sites: sites}
}

var (
	jsImportRe     = regexp.MustCompile(`(?m)^[ \t]*import\s+(?:type\s+)?([\w$*{][^;]*?)\s+from\s+['"]([^'"]+)['"]`)
	jsImportBareRe = regexp.MustCompile(`(?m)^[ \t]*import\s+['"]([^'"]+)['"]`)
	jsRequireRe    = regexp.MustCompile(`(?:const|let|var)\s+(\{[^}]*\}|[\w$]+)\s*=\s*require\(\s*['"]([^'"]+)['"]\s*\)`)
	jsCallRe       = regexp.MustCompile(`([A-Za-z_$][\w$]*(?:\s*\??\.\s*[A-Za-z_$][\w$]*)*)\s*\(`)
	jsCondRe       = regexp.MustCompile(`\b(if|while)\s*\(`)
	jsFuncRe       = regexp.MustCompile(`\bfunction\s*\*?\s*([\w$]*)\s*\(`)
	jsArrowRe      = regexp.MustCompile(`([\w$]+)\s*[:=]\s*(?:async\s+)?(?:\([^()]*\)|[\w$]+)\s*(?::\s*[^=]+?)?=>\s*\{`)
	jsMethodRe     = regexp.MustCompile(`^\s*(?:(?:public|private|protected|static|async|override|readonly)\s+)*([\w$]+)\s*\([^()]*\)\s*(?::\s*[^{=]+)?\{`)
	jsTryRe        = regexp.MustCompile(`\btry\s*\{`)
	jsDeclRe       = regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:declare\s+)?(?:async\s+)?(function\*?|class|const|let|var|interface|type|enum|abstract\s+class)\s+([\w$]+)`)
	jsPropRe       = regexp.MustCompile("(?:^|[{,(]\\s*)([A-Za-z_$][\\w$]*|'[^']*'|\"[^\"]*\")\\s*:\\s*('[^']*'|\"[^\"]*\"|`[^`$]*`)")
	jsReturnRe     = regexp.MustCompile(`\breturn\b\s*(.*)`)
	jsExternalRe   = regexp.MustCompile(`\bprocess\.(argv|env)\b|\breq(uest)?\.(body|query|params|headers)\b|\blocation\.(search|hash|href)\b|\bprompt\(|\.value\b|\bevent\.data\b|\bJSON\.parse\(`)

	jsNotCalls = map[string]bool{
		"if": true, "for": true, "while": true, "switch": true, "catch": true, "function": true,
		"return": true, "typeof": true, "super": true, "await": true, "yield": true, "void": true,
		"constructor": true, "delete": true, "in": true, "of": true, "new": true, "case": true,
	}

	// Client constructors whose instances issue SDK requests.
	sdkClients = []string{"Algodv2", "Indexer", "Kmd", "AlgorandClient", "AlgodClient", "IndexerClient", "AlgoClient", "KmdClient"}
)

type jsScope struct {
	block int
	depth int
	try   bool
}

type scriptParser struct {
	*builder
	src      *scriptSource
	bindings map[string]string
	lineBlk  []int
	lineTry  []bool
}

func parseScript(b *builder) {
	p := &scriptParser{builder: b, src: stripScript(b), bindings: make(map[string]string)}
	module := p.newBlock("<module>", 1)
	p.pf.Blocks[module].Entry = true
	p.extend(module, len(p.pf.Lines))

	p.imports()
	p.scopes()
	p.lines()
	p.expressions()

	sort.SliceStable(p.pf.Facts, func(i, j int) bool { return p.pf.Facts[i].Line < p.pf.Facts[j].Line })
}

func (p *scriptParser) fact(off int, kind types.FactKind, op string) types.Fact {
	line := p.src.lineAt(off)
	return types.Fact{Line: line, Kind: kind, Block: p.blockAt(line), Op: op}
}

func (p *scriptParser) blockAt(line int) int {
	if line >= 1 && line < len(p.lineBlk) {
		return p.lineBlk[line]
	}
	return 0
}

// imports records ES module imports and CommonJS requires and builds the
// local binding table used to resolve call targets.
func (p *scriptParser) imports() {
	plain := p.src.plain
	for _, m := range jsImportRe.FindAllStringSubmatchIndex(p.src.masked, -1) {
		clause := plain[m[2]:m[3]]
		module, _ := unquote(plain[m[4]-1 : m[5]+1])
		f := p.fact(m[0], types.FactImport, "import")
		f.Name = module
		f.Args = p.bind(clause, module)
		p.emit(f)
	}
	for _, m := range jsImportBareRe.FindAllStringSubmatchIndex(p.src.masked, -1) {
		module, _ := unquote(plain[m[2]-1 : m[3]+1])
		f := p.fact(m[0], types.FactImport, "import")
		f.Name = module
		p.emit(f)
	}
	for _, m := range jsRequireRe.FindAllStringSubmatchIndex(p.src.masked, -1) {
		module, _ := unquote(plain[m[4]-1 : m[5]+1])
		f := p.fact(m[0], types.FactImport, "require")
		f.Name = module
		f.Args = p.bind(plain[m[2]:m[3]], module)
		p.emit(f)
	}
}

// bind parses an import clause such as `algosdk`, `* as sdk`,
// `{ a, b as c }` or `def, { a }` and returns the local names.
func (p *scriptParser) bind(clause, module string) []string {
	var locals []string
	clause = strings.TrimSpace(clause)
	if open := strings.IndexByte(clause, '{'); open >= 0 {
		end := strings.IndexByte(clause, '}')
		if end < open {
			end = len(clause)
		}
		for _, item := range splitTopLevel(clause[open+1:end], ',') {
			item = strings.TrimPrefix(strings.TrimSpace(item), "type ")
			imported, local := item, item
			for _, sep := range []string{" as ", ":"} {
				if i := strings.Index(item, sep); i >= 0 {
					imported, local = strings.TrimSpace(item[:i]), strings.TrimSpace(item[i+len(sep):])
				}
			}
			p.bindings[local] = module + "." + imported
			locals = append(locals, local)
		}
		clause = strings.TrimSpace(clause[:open] + clause[end+1:])
	}
	for _, part := range splitTopLevel(clause, ',') {
		local := strings.TrimSpace(strings.TrimPrefix(part, "* as "))
		if local == "" || local == "*" {
			continue
		}
		p.bindings[local] = module
		locals = append(locals, local)
	}
	return locals
}

// scopes assigns every line to its innermost function block and records
// which lines sit inside a try region.
func (p *scriptParser) scopes() {
	n := len(p.src.starts)
	p.lineBlk = make([]int, n+1)
	p.lineTry = make([]bool, n+1)

	var stack []jsScope
	depth := 0
	for line := 1; line <= n; line++ {
		_, masked := p.src.line(line)
		header, bodyOpen := -1, -1
		if name, open, ok := functionHeader(masked); ok {
			header, bodyOpen = p.newBlock(name, line), open
		}
		tryOpen := -1
		if loc := jsTryRe.FindStringIndex(masked); loc != nil {
			tryOpen = loc[1] - 1
		}

		blk, guarded := 0, tryOpen >= 0
		for _, sc := range stack {
			if sc.try {
				guarded = true
				continue
			}
			blk = sc.block
			p.extend(sc.block, line)
		}
		if header >= 0 {
			blk = header
		}
		p.lineBlk[line], p.lineTry[line] = blk, guarded

		for i := 0; i < len(masked); i++ {
			switch masked[i] {
			case '{':
				if i == bodyOpen {
					stack = append(stack, jsScope{block: header, depth: depth})
				}
				if i == tryOpen {
					stack = append(stack, jsScope{block: -1, depth: depth, try: true})
				}
				depth++
			case '}':
				if depth > 0 {
					depth--
				}
				for len(stack) > 0 && stack[len(stack)-1].depth >= depth {
					stack = stack[:len(stack)-1]
				}
			}
		}
	}
}

// functionHeader detects a function, arrow function or method definition
// that opens a body on this line. open is the offset of the body's brace.
func functionHeader(masked string) (name string, open int, ok bool) {
	if !strings.Contains(masked, "{") {
		return "", -1, false
	}
	if m := jsFuncRe.FindStringSubmatchIndex(masked); m != nil {
		name = masked[m[2]:m[3]]
		if name == "" {
			name = "<anonymous>"
		}
		if end := matchParen(masked, m[1]-1); end > 0 {
			if brace := strings.IndexByte(masked[end:], '{'); brace >= 0 {
				return name, end + brace, true
			}
		}
		return "", -1, false
	}
	if m := jsArrowRe.FindStringSubmatchIndex(masked); m != nil {
		return masked[m[2]:m[3]], m[1] - 1, true
	}
	if m := jsMethodRe.FindStringSubmatchIndex(masked); m != nil && !jsNotCalls[masked[m[2]:m[3]]] {
		return masked[m[2]:m[3]], m[1] - 1, true
	}
	if strings.Contains(masked, "=>") && strings.HasSuffix(strings.TrimSpace(masked), "{") {
		return "<arrow>", strings.LastIndexByte(masked, '{'), true
	}
	return "", -1, false
}

func (p *scriptParser) exprFlags(expr string) types.Flag {
	var flags types.Flag
	if jsTimeRe.MatchString(expr) {
		flags |= types.FlagTime
	}
	if jsExternalRe.MatchString(expr) {
		flags |= types.FlagExternal
	}
	if balanceRe.MatchString(expr) {
		flags |= types.FlagBalance
	}
	return flags
}

// lines handles line-oriented constructs: declarations, assignments,
// object literal properties, returns and template interpolations.
func (p *scriptParser) lines() {
	sitesByLine := make(map[int][]templateSite)
	for _, s := range p.src.sites {
		sitesByLine[s.line] = append(sitesByLine[s.line], s)
	}

	for n := 1; n <= len(p.src.starts); n++ {
		plain, masked := p.src.line(n)
		base := p.src.starts[n-1]
		trimmed := strings.TrimSpace(masked)
		lead := len(masked) - len(strings.TrimLeft(masked, " \t"))
		blk := p.blockAt(n)

		if m := jsDeclRe.FindStringSubmatch(trimmed); m != nil && !strings.HasPrefix(trimmed, "import") {
			f := p.fact(base+lead, types.FactDeclaration, strings.Fields(m[1])[len(strings.Fields(m[1]))-1])
			f.Name = m[2]
			p.emit(f)
		}

		if target, rhs, off, ok := jsAssign(plain, masked); ok {
			p.assign(base+off, target, rhs)
		}

		for _, m := range jsPropRe.FindAllStringSubmatchIndex(plain, -1) {
			// Matches starting inside a string literal are not properties.
			if masked[m[2]] == '_' && plain[m[2]] != '_' {
				continue
			}
			name, _ := unquote(plain[m[2]:m[3]])
			if name == "" {
				name = plain[m[2]:m[3]]
			}
			value, ok := unquote(plain[m[4]:m[5]])
			if !ok {
				continue
			}
			f := p.fact(base+m[2], types.FactLiteralAssign, ":")
			f.Name, f.Value, f.Flags = name, value, types.FlagLiteral
			p.emit(f)
		}

		if m := jsReturnRe.FindStringSubmatchIndex(masked); m != nil {
			f := p.fact(base+m[0], types.FactTransfer, "return")
			f.Value = shorten(strings.TrimSuffix(strings.TrimSpace(plain[m[2]:m[3]]), ";"), 160)
			p.emit(f)
		}

		for _, s := range sitesByLine[n] {
			f := types.Fact{Line: n, Kind: types.FactTemplate, Block: blk, Op: "${}", Value: shorten(s.expr, 160)}
			f.Flags = p.exprFlags(s.expr)
			p.emit(f)
		}
	}
}

// jsAssign finds a top-level assignment on a line. off is the offset of the
// target within the line.
func jsAssign(plain, masked string) (target, rhs string, off int, ok bool) {
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
		case '=':
		default:
			continue
		}
		if depth > 0 {
			continue
		}
		if i+1 < len(masked) && (masked[i+1] == '=' || masked[i+1] == '>') {
			return "", "", 0, false
		}
		if i > 0 && strings.IndexByte("=!<>+-*/%&|^?", masked[i-1]) >= 0 {
			return "", "", 0, false
		}
		lhs := strings.TrimSpace(plain[:i])
		for _, kw := range []string{"export ", "const ", "let ", "var ", "readonly ", "private ", "public ", "static "} {
			lhs = strings.TrimSpace(strings.TrimPrefix(lhs, kw))
		}
		if colon := strings.IndexByte(lhs, ':'); colon > 0 && !strings.HasPrefix(lhs, "{") {
			lhs = strings.TrimSpace(lhs[:colon])
		}
		if lhs == "" || strings.ContainsAny(lhs, "(){};") {
			return "", "", 0, false
		}
		value := strings.TrimSpace(plain[i+1:])
		value = strings.TrimSuffix(strings.TrimSuffix(value, ";"), ",")
		return lhs, strings.TrimSpace(value), strings.Index(plain, lhs), true
	}
	return "", "", 0, false
}

func (p *scriptParser) assign(off int, target, rhs string) {
	f := p.fact(off, types.FactAssign, "=")
	f.Name = target
	f.Value = shorten(rhs, 160)
	f.Flags = p.exprFlags(rhs)
	p.emit(f)

	if v, ok := literalValue(rhs); ok {
		la := f
		la.Kind = types.FactLiteralAssign
		la.Value = v
		la.Flags = types.FlagLiteral
		p.emit(la)
	}

	// Remember SDK clients so their calls resolve to the SDK.
	expr := strings.TrimSpace(strings.TrimPrefix(rhs, "await "))
	isNew := strings.HasPrefix(expr, "new ")
	ctor := identChain(strings.TrimSpace(strings.TrimPrefix(expr, "new ")))
	if ctor == "" || (!isNew && !strings.HasPrefix(expr[len(ctor):], "(")) {
		return
	}
	resolved := p.resolve(ctor)
	if !strings.HasPrefix(resolved, "algosdk") && !strings.HasPrefix(resolved, "@algorandfoundation/") {
		return
	}
	for _, c := range sdkClients {
		if (isNew && strings.HasSuffix(resolved, c)) || (!isNew && strings.Contains(resolved, c)) {
			p.bindings[target] = resolved
			return
		}
	}
}

func identChain(s string) string {
	i := 0
	for i < len(s) && (isIdentByte(s[i]) || s[i] == '.') {
		i++
	}
	return s[:i]
}

// resolve rewrites the longest bound prefix of a dotted name through the
// import and client bindings: with `import { encodeAddress } from "algosdk"`,
// encodeAddress resolves to algosdk.encodeAddress.
func (p *scriptParser) resolve(name string) string {
	parts := strings.Split(name, ".")
	for k := len(parts); k >= 1; k-- {
		if bound, ok := p.bindings[strings.Join(parts[:k], ".")]; ok {
			return strings.Join(append([]string{bound}, parts[k:]...), ".")
		}
	}
	return name
}

// expressions handles constructs that may span lines: calls and conditions.
func (p *scriptParser) expressions() {
	plain, masked := p.src.plain, p.src.masked

	type callInfo struct {
		name    string
		awaited bool
	}
	closed := make(map[int]callInfo)
	for _, m := range jsCallRe.FindAllStringSubmatchIndex(masked, -1) {
		written := strings.Join(strings.Fields(masked[m[2]:m[3]]), "")
		written = strings.ReplaceAll(written, "?.", ".")
		if jsNotCalls[written] {
			continue
		}
		before := strings.TrimRight(masked[:m[2]], " \t\n")
		if strings.HasSuffix(before, "function") {
			continue
		}
		open := m[1] - 1
		end := matchParen(masked, open)
		argEnd := end
		if argEnd < 0 {
			argEnd = len(masked)
		}
		// Method definitions: name(args) { ... }
		if end > 0 {
			after := strings.TrimLeft(masked[end+1:], " \t\n")
			if strings.HasPrefix(after, "{") && !strings.HasSuffix(before, ".") && isMethodDef(before) {
				continue
			}
		}

		name := p.resolve(written)
		awaited := strings.HasSuffix(before, "await")
		isNew := strings.HasSuffix(before, "new")
		if strings.HasSuffix(before, ").") {
			// Chained call on the result of an earlier call.
			if prev, ok := closed[len(before)-2]; ok {
				name = prev.name + "." + written
				awaited = prev.awaited
			}
		}

		line := p.src.lineAt(m[2])
		argText := plain[open+1 : argEnd]
		args := splitTopLevel(argText, ',')
		f := p.fact(m[2], types.FactCall, written)
		if isNew {
			f.Op = "new " + written
		}
		f.Name = name
		f.Value = shorten(argText, 160)
		f.Flags = p.exprFlags(argText)
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
		if awaited {
			f.Flags |= types.FlagAwait
		}
		if p.lineTry[line] || strings.Contains(masked[m[2]:min(len(masked), argEnd+200)], ".catch(") {
			f.Flags |= types.FlagGuarded
		}
		p.emit(f)

		if end > 0 {
			closed[end] = callInfo{name: name, awaited: awaited}
		}
	}

	for _, m := range jsCondRe.FindAllStringSubmatchIndex(masked, -1) {
		open := m[1] - 1
		end := matchParen(masked, open)
		if end < 0 {
			continue
		}
		cond := plain[open+1 : end]
		var flags types.Flag
		if left, op, right, ok := comparison(cond); ok {
			flags = compareFlags(op, p.exprFlags(left), p.exprFlags(right), left, right)
		} else {
			flags = p.exprFlags(cond)
		}
		kind := types.FactBranch
		if flags.Has(types.FlagEquality) {
			kind = types.FactBranchEq
		}
		f := p.fact(m[0], kind, masked[m[2]:m[3]])
		f.Value = shorten(cond, 160)
		f.Flags = flags
		p.emit(f)
	}

	for _, a := range arithmetic(plain, masked) {
		f := p.fact(a.off, types.FactArithmetic, a.op)
		f.Args = []string{shorten(a.left, 120), shorten(a.right, 120)}
		f.Flags = p.exprFlags(a.left) | p.exprFlags(a.right)
		p.emit(f)
	}
}

var methodModifiers = map[string]bool{
	"async": true, "static": true, "public": true, "private": true, "protected": true,
	"override": true, "get": true, "set": true,
}

// isMethodDef reports whether the text before a name(...) { sequence puts it
// in a class body position rather than an expression.
func isMethodDef(before string) bool {
	trimmed := strings.TrimRight(before, " \t\n")
	for {
		i := strings.LastIndexAny(trimmed, " \t\n")
		if !methodModifiers[trimmed[i+1:]] {
			break
		}
		trimmed = strings.TrimRight(trimmed[:i+1], " \t\n")
	}
	if trimmed == "" {
		return true
	}
	last := trimmed[len(trimmed)-1]
	return last == '{' || last == '}' || last == ';'
}
