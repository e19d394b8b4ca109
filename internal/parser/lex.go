package parser

import (
	"strconv"
	"strings"
)

// maskStrings returns s with the contents of string literals replaced by '_'
// so that operator and call regexes never match inside literals. Quotes are
// kept, the result has the same length as s. Template literals are masked too.
func maskStrings(s string) string {
	out := []byte(s)
	var quote byte
	triple := false
	for i := 0; i < len(out); i++ {
		c := out[i]
		if quote == 0 {
			if c == '"' || c == '\'' || c == '`' {
				quote = c
				triple = c != '`' && i+2 < len(out) && out[i+1] == c && out[i+2] == c
				if triple {
					i += 2
				}
			}
			continue
		}
		if c == '\\' && i+1 < len(out) {
			out[i] = '_'
			out[i+1] = '_'
			i++
			continue
		}
		if c == quote {
			if !triple {
				quote = 0
				continue
			}
			if i+2 < len(out) && out[i+1] == quote && out[i+2] == quote {
				i += 2
				quote = 0
				triple = false
				continue
			}
		}
		out[i] = '_'
	}
	return string(out)
}

// matchParen returns the index of the bracket closing the one at open, or -1.
// s should already be masked.
func matchParen(s string, open int) int {
	if open < 0 || open >= len(s) {
		return -1
	}
	var closer byte
	switch s[open] {
	case '(':
		closer = ')'
	case '[':
		closer = ']'
	case '{':
		closer = '}'
	default:
		return -1
	}
	opener := s[open]
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// span is a trimmed piece of a larger string and its offset in it.
type span struct {
	off  int
	text string
}

// splitSpans splits s on sep, ignoring separators nested in brackets or
// string literals. Parts are trimmed; empty parts are dropped.
func splitSpans(s string, sep byte) []span {
	masked := maskStrings(s)
	var parts []span
	add := func(from, to int) {
		raw := s[from:to]
		text := strings.TrimSpace(raw)
		if text != "" {
			parts = append(parts, span{off: from + len(raw) - len(strings.TrimLeft(raw, " \t\n")), text: text})
		}
	}
	depth, start := 0, 0
	for i := 0; i < len(masked); i++ {
		switch masked[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				add(start, i)
				start = i + 1
			}
		}
	}
	add(start, len(s))
	return parts
}

func splitTopLevel(s string, sep byte) []string {
	spans := splitSpans(s, sep)
	parts := make([]string, len(spans))
	for i, sp := range spans {
		parts[i] = sp.text
	}
	return parts
}

// unquote returns the contents of a plain string literal. Prefixed Python
// literals (b"", r"", u"") are accepted; f-strings and templates with
// interpolation are not literals.
func unquote(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		switch s[0] {
		case 'b', 'B', 'r', 'R', 'u', 'U':
			if s[1] == '"' || s[1] == '\'' {
				s = s[1:]
			}
		}
	}
	if len(s) < 2 {
		return "", false
	}
	q := s[0]
	if q != '"' && q != '\'' && q != '`' {
		return "", false
	}
	if len(s) >= 6 && strings.HasPrefix(s, strings.Repeat(string(q), 3)) && strings.HasSuffix(s, strings.Repeat(string(q), 3)) {
		return s[3 : len(s)-3], true
	}
	if s[len(s)-1] != q {
		return "", false
	}
	body := s[1 : len(s)-1]
	if q == '`' && strings.Contains(body, "${") {
		return "", false
	}
	// A closing quote inside the body means this was several literals.
	masked := maskStrings(s)
	if strings.IndexByte(masked[1:len(masked)-1], q) >= 0 {
		return "", false
	}
	if q == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u, true
		}
	}
	return body, true
}

func isNumber(s string) bool {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	if s == "" {
		return false
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	if _, err := strconv.ParseUint(s, 0, 64); err == nil {
		return true
	}
	return false
}

// identAt reads an identifier (letters, digits, underscore, dollar) starting at i.
func identAt(s string, i int) string {
	j := i
	for j < len(s) && isIdentByte(s[j]) {
		j++
	}
	return s[i:j]
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// leadingIndent measures indentation, counting a tab as four columns.
func leadingIndent(s string) (int, bool) {
	n := 0
	tabs := false
	for _, c := range s {
		switch c {
		case ' ':
			n++
		case '\t':
			n += 4
			tabs = true
		default:
			return n, tabs
		}
	}
	return n, tabs
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// shorten caps rendered expressions so facts stay small.
func shorten(s string, n int) string {
	s = compact(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
