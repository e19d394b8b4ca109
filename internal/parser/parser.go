// Package parser turns source files into the normalized fact model consumed by
// the builtin detectors. Each parser is tolerant: malformed input produces
// warnings and a partial fact list, never an error.
package parser

import (
	"fmt"
	"strings"

	"github.com/cagmero/ARGUS/internal/types"
)

// Parse builds a ParsedFile for content of the given type. Unknown types yield
// a ParsedFile with lines but no facts.
func Parse(path string, ft types.FileType, content []byte) (pf *types.ParsedFile) {
	pf = &types.ParsedFile{
		Path:    path,
		Type:    ft,
		Content: content,
		Lines:   splitLines(content),
	}
	defer func() {
		if r := recover(); r != nil {
			pf.Warnings = append(pf.Warnings, types.ParseWarning{Message: fmt.Sprintf("parser aborted: %v", r)})
		}
	}()

	b := &builder{pf: pf}
	switch ft {
	case types.FileTypeContractASM:
		parseTEAL(b)
	case types.FileTypeEmbeddedDSL:
		parseDSL(b)
	case types.FileTypeScript:
		parseScript(b)
	}
	return pf
}

func splitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	s := strings.ReplaceAll(string(content), "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

type builder struct {
	pf *types.ParsedFile
}

func (b *builder) emit(f types.Fact) {
	if f.Text == "" {
		f.Text = b.pf.Line(f.Line)
	}
	b.pf.Facts = append(b.pf.Facts, f)
}

func (b *builder) warn(line int, format string, args ...any) {
	b.pf.Warnings = append(b.pf.Warnings, types.ParseWarning{Line: line, Message: fmt.Sprintf(format, args...)})
}

func (b *builder) newBlock(label string, start int) int {
	id := len(b.pf.Blocks)
	b.pf.Blocks = append(b.pf.Blocks, types.Block{ID: id, Label: label, Start: start, End: start, Fallthrough: -1})
	return id
}

func (b *builder) extend(id, line int) {
	if id >= 0 && id < len(b.pf.Blocks) && line > b.pf.Blocks[id].End {
		b.pf.Blocks[id].End = line
	}
}

func (b *builder) addSucc(from, to int) {
	blk := &b.pf.Blocks[from]
	for _, s := range blk.Succs {
		if s == to {
			return
		}
	}
	blk.Succs = append(blk.Succs, to)
}
