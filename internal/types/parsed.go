package types

import "strings"

// FactKind classifies a Fact.
type FactKind string

const (
	FactImport        FactKind = "import"
	FactDeclaration   FactKind = "declaration"
	FactLiteralAssign FactKind = "literal-assignment"
	FactAssign        FactKind = "assignment"
	FactCall          FactKind = "call-expression"
	FactArithmetic    FactKind = "arithmetic"
	FactCompare       FactKind = "comparison"
	FactBranchEq      FactKind = "branch-on-equality"
	FactBranch        FactKind = "branch"
	FactGuard         FactKind = "guard"
	FactStateRead     FactKind = "state-read"
	FactStateWrite    FactKind = "state-write"
	FactTransfer      FactKind = "control-transfer"
	FactTemplate      FactKind = "template-interpolation"
)

// Flag is a bitset of semantic tags attached to a Fact by the parsers.
type Flag uint32

const (
	// FlagTime marks values derived from a ledger or wall-clock time source.
	FlagTime Flag = 1 << iota
	// FlagIdentity marks the caller's address (transaction sender).
	FlagIdentity
	// FlagCreator marks the application creator or another stored owner identity.
	FlagCreator
	// FlagLiteral marks a literal operand.
	FlagLiteral
	// FlagSentinel marks a comparison of the caller against a hardcoded address.
	FlagSentinel
	// FlagBalance marks balance-like values (balance, amount, supply, ...).
	FlagBalance
	// FlagExternal marks caller-controlled input (application args, method params).
	FlagExternal
	// FlagChecked marks a state read using the existence-checking variant.
	FlagChecked
	// FlagOrdering marks <, <=, > and >= comparisons.
	FlagOrdering
	// FlagEquality marks == and != comparisons.
	FlagEquality
	// FlagDispatch marks method or on-completion routing selectors.
	FlagDispatch
	// FlagCreate marks the application-creation path (ApplicationID == 0).
	FlagCreate
	FlagApprove
	FlagReject
	// FlagEntry marks an externally callable entry point.
	FlagEntry
	// FlagFallback marks the default arm of a dispatch.
	FlagFallback
	FlagAwait
	// FlagGuarded marks code covered by an error handler (try/catch).
	FlagGuarded
	// FlagNegated marks a != comparison or a branch taken when the condition is false.
	FlagNegated
)

// Has reports whether all bits of mask are set.
func (f Flag) Has(mask Flag) bool {
	return f&mask == mask
}

// Any reports whether any bit of mask is set.
func (f Flag) Any(mask Flag) bool {
	return f&mask != 0
}

// Fact is one normalized structural element of a parsed file.
type Fact struct {
	Line int `json:"line"`
	// End is the last line of a statement spanning several lines, 0 otherwise.
	End   int      `json:"end,omitempty"`
	Kind  FactKind `json:"kind"`
	Block int      `json:"block"`
	// Op is the opcode, operator, accessor or statement keyword as written.
	Op string `json:"op,omitempty"`
	// Name is the target the fact is about: assigned name, state key, callee,
	// branch label or imported module.
	Name string `json:"name,omitempty"`
	// Value is a literal value or a compact rendering of an expression.
	Value string   `json:"value,omitempty"`
	Args  []string `json:"args,omitempty"`
	Flags Flag     `json:"flags,omitempty"`
	Text  string   `json:"text,omitempty"`
}

// Block is a basic block (TEAL) or a function body (DSL, script).
type Block struct {
	ID    int    `json:"id"`
	Label string `json:"label,omitempty"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Succs []int  `json:"succs,omitempty"`
	// Fallthrough is the successor reached without taking a jump, or -1.
	Fallthrough int  `json:"fallthrough"`
	Entry       bool `json:"entry,omitempty"`
}

// ParseWarning records a construct the parser did not understand.
type ParseWarning struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ParsedFile is the output of a parser. It is owned by the parse step that
// created it and must not be modified afterwards.
type ParsedFile struct {
	Path     string
	AbsPath  string
	Type     FileType
	Content  []byte
	Lines    []string
	Facts    []Fact
	Blocks   []Block
	Warnings []ParseWarning
	// Version is the TEAL program version, 0 when not declared.
	Version int
}

// Line returns the trimmed source text of the 1-indexed line n.
func (p *ParsedFile) Line(n int) string {
	if n < 1 || n > len(p.Lines) {
		return ""
	}
	return strings.TrimSpace(p.Lines[n-1])
}

// FactsIn returns the facts belonging to block id, in source order.
func (p *ParsedFile) FactsIn(id int) []Fact {
	var out []Fact
	for _, f := range p.Facts {
		if f.Block == id {
			out = append(out, f)
		}
	}
	return out
}

// Preds returns the predecessor block IDs of each block.
func (p *ParsedFile) Preds() [][]int {
	preds := make([][]int, len(p.Blocks))
	for _, b := range p.Blocks {
		for _, s := range b.Succs {
			if s >= 0 && s < len(preds) {
				preds[s] = append(preds[s], b.ID)
			}
		}
	}
	return preds
}

// Imports reports whether the file imports a module whose name has the given prefix.
func (p *ParsedFile) Imports(prefix string) bool {
	for _, f := range p.Facts {
		if f.Kind == FactImport && strings.HasPrefix(f.Name, prefix) {
			return true
		}
	}
	return false
}
