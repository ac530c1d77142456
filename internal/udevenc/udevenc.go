// Package udevenc converts between udev's escaped device-name encoding,
// plain UTF-8 strings, and the restricted alphabet allowed in object paths.
package udevenc

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Decode unescapes sequences like \x20 produced by udev_util_encode_string
// and returns a valid UTF-8 string. Decoding stops at a malformed escape, and
// the result is truncated at the first invalid UTF-8 byte.
func Decode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		if i+3 >= len(s) || s[i+1] != 'x' {
			slog.Default().Warn("malformed udev-encoded string", "value", s)
			break
		}
		hi, okHi := hexVal(s[i+2])
		lo, okLo := hexVal(s[i+3])
		if !okHi || !okLo {
			slog.Default().Warn("malformed udev-encoded string", "value", s)
			break
		}
		b.WriteByte(hi<<4 | lo)
		i += 3
	}
	decoded := b.String()
	for i := 0; i < len(decoded); {
		r, size := utf8.DecodeRuneInString(decoded[i:])
		if r == utf8.RuneError && size == 1 {
			slog.Default().Warn("udev string is not valid UTF-8", "value", decoded, "offset", i)
			return decoded[:i]
		}
		i += size
	}
	return decoded
}

// AppendSafe appends s to b using only characters permitted in an object
// path element: bytes outside [A-Za-z0-9] are escaped as _ followed by two
// hex digits.
func AppendSafe(b *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(b, "_%02x", c)
		}
	}
}

// Safe returns s escaped per AppendSafe.
func Safe(s string) string {
	var b strings.Builder
	AppendSafe(&b, s)
	return b.String()
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
