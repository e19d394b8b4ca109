package parser

import (
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"unicode"
)

// decodeTealBytes renders the operands of a TEAL byte-literal instruction
// (byte, pushbytes, bytecblock entries) as text. Encoded forms (base64, b64,
// base32, b32, 0x) are decoded when the payload is printable; otherwise the
// literal is returned as written.
func decodeTealBytes(args []string) string {
	if len(args) == 0 {
		return ""
	}
	first := args[0]
	if s, ok := unquote(first); ok {
		return s
	}
	if strings.HasPrefix(first, "0x") {
		if b, err := hex.DecodeString(first[2:]); err == nil && printable(b) {
			return string(b)
		}
		return first
	}

	enc, payload := first, ""
	if len(args) > 1 {
		payload = args[1]
	} else if open := strings.IndexByte(first, '('); open > 0 && strings.HasSuffix(first, ")") {
		enc, payload = first[:open], first[open+1:len(first)-1]
	}
	switch enc {
	case "base64", "b64":
		if b, err := base64.StdEncoding.DecodeString(payload); err == nil && printable(b) {
			return string(b)
		}
		if b, err := base64.URLEncoding.DecodeString(payload); err == nil && printable(b) {
			return string(b)
		}
	case "base32", "b32":
		if b, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.TrimRight(payload, "=")); err == nil && printable(b) {
			return string(b)
		}
	}
	if payload != "" {
		return payload
	}
	return first
}

// printable requires most bytes to be printable so random key material is
// not rendered as garbage text.
func printable(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	n := 0
	for _, r := range string(data) {
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			n++
		}
	}
	return float64(n)/float64(len([]rune(string(data)))) > 0.9
}
