// Package sanitize cleans text captured from child process output before it
// is logged or reported as an error.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// escapeRe matches CSI sequences, OSC strings ended by BEL or ST, and
// two-byte escapes. wstunnel's tracing output colours levels with CSI SGR
// codes when it believes stderr is a terminal.
var escapeRe = regexp.MustCompile(`\x1b(?:\[[\x30-\x3f]*[\x20-\x2f]*[\x40-\x7e]|\][^\x07\x1b]*(?:\x07|\x1b\\)|[\x20-\x7e])`)

// TruncateUTF8 cuts s to at most maxBytes bytes, backing off to a rune
// boundary.
func TruncateUTF8(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// StripControlChars removes escape sequences and every control character
// except tab. Invalid UTF-8 comes out as U+FFFD.
func StripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, escapeRe.ReplaceAllString(s, ""))
}

// LogLine prepares one line of engine output for the log.
func LogLine(s string, maxBytes int) string {
	return TruncateUTF8(strings.TrimSpace(StripControlChars(s)), maxBytes)
}
