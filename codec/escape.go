// Package codec implements the weavemesh line format: delimiter escaping,
// delta compression against keyframe predecessors, key tuples, timestamps
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package codec

import "strings"

// Payload fields travel inside a comma/pipe-delimited line; literal commas,
// pipes, backslashes and newlines are converted to two-byte escapes. The
// mapping is reversible: Unescape(Escape(s)) == s for every s.
const (
	escChar = '\\'

	escComma   = 'c'
	escPipe    = 'p'
	escNewline = 'l'
	escSelf    = '\\'

	// delta-compression marks, built from the same escape lead-in
	// (never produced by Escape, therefore unambiguous on the wire)
	EmptyMark = "\\e" // field changed to the empty string
	FullMark  = "\\f" // no delta: the remainder is absolute
)

func Escape(s string) string {
	if !strings.ContainsAny(s, ",|\\\n") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case ',':
			b.WriteByte(escChar)
			b.WriteByte(escComma)
		case '|':
			b.WriteByte(escChar)
			b.WriteByte(escPipe)
		case '\n':
			b.WriteByte(escChar)
			b.WriteByte(escNewline)
		case escChar:
			b.WriteByte(escChar)
			b.WriteByte(escSelf)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func Unescape(s string) string {
	if !strings.ContainsRune(s, escChar) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != escChar || i == len(s)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case escComma:
			b.WriteByte(',')
		case escPipe:
			b.WriteByte('|')
		case escNewline:
			b.WriteByte('\n')
		case escSelf:
			b.WriteByte(escChar)
		default:
			// unknown escape: keep verbatim (future extension)
			b.WriteByte(escChar)
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// EscapeAndConcat joins escaped parts with sep; SplitAndUnescape is its exact
// inverse. The separator must be one of the escaped delimiters.
func EscapeAndConcat(sep byte, parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return Escape(parts[0])
	}
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(sep)
		}
		b.WriteString(Escape(p))
	}
	return b.String()
}

func SplitAndUnescape(s string, sep byte) []string {
	raw := strings.Split(s, string(sep))
	for i, p := range raw {
		raw[i] = Unescape(p)
	}
	return raw
}

// SplitEscaped splits without unescaping (delta compression operates on the
// escaped representation).
func SplitEscaped(s string, sep byte) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, string(sep))
}
